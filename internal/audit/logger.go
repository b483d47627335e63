package audit

import (
	"context"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/carecrypt/carecrypt-server/internal/model"
	"github.com/carecrypt/carecrypt-server/internal/reqctx"
)

// Store persists audit entries.
type Store interface {
	Create(ctx context.Context, params model.CreateAuditLogParams) error
}

// Entry describes one security-relevant event. Empty identity and IP
// fields are filled from the request context.
type Entry struct {
	Action   model.AuditAction
	Details  string
	UserID   *int64
	Username string
	IP       string
}

// Column widths of audit_logs.username and audit_logs.ip_address. Longer
// values are cut so the row is still written.
const (
	MaxUsernameLength = 255
	MaxIPLength       = 64
)

type Logger struct {
	store Store
}

func NewLogger(store Store) *Logger {
	return &Logger{store: store}
}

// Append records the entry. Failures are logged and dropped; the caller's
// operation always proceeds.
func (l *Logger) Append(ctx context.Context, entry Entry) {
	params := resolve(ctx, entry)

	emit(params)

	if l == nil || l.store == nil {
		return
	}
	if err := l.store.Create(ctx, params); err != nil {
		log.Error().Err(err).
			Str("action", string(params.Action)).
			Msg("failed to write audit log entry")
	}
}

func resolve(ctx context.Context, entry Entry) model.CreateAuditLogParams {
	params := model.CreateAuditLogParams{
		UserID:   entry.UserID,
		Username: entry.Username,
		Action:   entry.Action,
	}

	if user := reqctx.User(ctx); user != nil && params.Username == "" {
		if params.UserID == nil {
			id := user.ID
			params.UserID = &id
		}
		if *params.UserID == user.ID {
			params.Username = user.Username
		}
	}
	if params.Username == "" {
		params.Username = model.AnonymousUsername
	}
	params.Username = truncate(params.Username, MaxUsernameLength)

	if entry.Details != "" {
		details := entry.Details
		params.Details = &details
	}

	ip := entry.IP
	if ip == "" {
		ip = reqctx.ClientIP(ctx)
	}
	if ip != "" {
		ip = truncate(ip, MaxIPLength)
		params.IPAddress = &ip
	}

	return params
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func emit(params model.CreateAuditLogParams) {
	event := log.Info().
		Str("audit", "security").
		Str("event_type", string(params.Action)).
		Time("timestamp", time.Now()).
		Str("username", params.Username)

	if params.UserID != nil {
		event = event.Str("user_id", strconv.FormatInt(*params.UserID, 10))
	}
	if params.IPAddress != nil {
		event = event.Str("ip", *params.IPAddress)
	}
	if params.Details != nil {
		event = event.Str("details", *params.Details)
	}
	event.Msg("security audit event")
}
