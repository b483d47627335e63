// Package reqctx carries per-request identity through context.Context so
// the audit log and services can read it without importing middleware.
package reqctx

import (
	"context"

	"github.com/carecrypt/carecrypt-server/internal/model"
)

type contextKey string

const (
	sessionKey  contextKey = "session"
	userKey     contextKey = "user"
	clientIPKey contextKey = "clientIP"
)

func WithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

func Session(ctx context.Context) *model.Session {
	if session, ok := ctx.Value(sessionKey).(*model.Session); ok {
		return session
	}
	return nil
}

func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func User(ctx context.Context) *model.User {
	if user, ok := ctx.Value(userKey).(*model.User); ok {
		return user
	}
	return nil
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey).(string); ok {
		return ip
	}
	return ""
}
