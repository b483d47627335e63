package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/carecrypt/carecrypt-server/internal/audit"
	"github.com/carecrypt/carecrypt-server/internal/credentials"
	"github.com/carecrypt/carecrypt-server/internal/database"
	apperrors "github.com/carecrypt/carecrypt-server/internal/errors"
	"github.com/carecrypt/carecrypt-server/internal/mail"
	"github.com/carecrypt/carecrypt-server/internal/model"
	"github.com/carecrypt/carecrypt-server/internal/repository"
	"github.com/carecrypt/carecrypt-server/internal/util"
)

// ResetRequestAck is returned for every reset request, whether or not the
// email belongs to an account.
const ResetRequestAck = "If that email exists, a reset link has been sent."

const msgAccountExists = "Email or username already exists."

var errTokenConsumed = errors.New("reset token already consumed")

type AuthConfig struct {
	SessionSecret string
	IdleTimeout   time.Duration
	ResetTokenTTL time.Duration
	AppBaseURL    string
}

type AuthService struct {
	tx          database.TxRunner
	users       repository.UserRepository
	sessions    repository.SessionRepository
	resetTokens repository.PasswordResetRepository
	credentials *credentials.Store
	mailer      mail.Sender
	audit       *audit.Logger
	cfg         AuthConfig
	now         func() time.Time
}

func NewAuthService(
	tx database.TxRunner,
	users repository.UserRepository,
	sessions repository.SessionRepository,
	resetTokens repository.PasswordResetRepository,
	creds *credentials.Store,
	mailer mail.Sender,
	auditLog *audit.Logger,
	cfg AuthConfig,
) *AuthService {
	return &AuthService{
		tx:          tx,
		users:       users,
		sessions:    sessions,
		resetTokens: resetTokens,
		credentials: creds,
		mailer:      mailer,
		audit:       auditLog,
		cfg:         cfg,
		now:         time.Now,
	}
}

type LoginResult struct {
	// Token is the raw session cookie value; only its HMAC is stored.
	Token   string
	User    *model.User
	Session *model.Session
}

func (s *AuthService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identifier = strings.TrimSpace(identifier)

	user, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	var ok bool
	if user == nil {
		ok = s.credentials.VerifyAbsent(password)
	} else {
		ok = s.credentials.Verify(password, user.PasswordHash)
	}
	if !ok {
		log.Warn().Str("identifier", identifier).Msg("LOGIN FAILED")
		s.audit.Append(ctx, audit.Entry{
			Action:   model.AuditLoginFailed,
			Details:  fmt.Sprintf("Failed login attempt for: %s", identifier),
			Username: identifier,
		})
		return nil, apperrors.InvalidCredentials()
	}

	token, err := util.GenerateToken()
	if err != nil {
		return nil, apperrors.Internal("Failed to create session").WithCause(err)
	}

	session, err := s.sessions.Create(ctx, model.CreateSessionParams{
		TokenHash:  s.hashSessionToken(token),
		UserID:     user.ID,
		LastActive: s.now(),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("LOGIN SUCCESS")
	s.audit.Append(ctx, audit.Entry{
		Action:   model.AuditLoginSuccess,
		Details:  "User logged in",
		UserID:   &user.ID,
		Username: user.Username,
	})

	return &LoginResult{Token: token, User: user, Session: session}, nil
}

type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// Register validates every rule before touching the store and reports all
// violations together.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.User, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)

	violations := util.AccountViolations(username, email)
	violations = append(violations, util.NewPasswordViolations(in.Password, in.ConfirmPassword)...)
	if len(violations) > 0 {
		return nil, apperrors.Validation(violations)
	}

	hash, err := s.credentials.Hash(in.Password)
	if err != nil {
		return nil, apperrors.Internal("Failed to create account").WithCause(err)
	}

	user, err := s.users.Create(ctx, model.CreateUserParams{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		log.Warn().Str("username", username).Msg("REGISTER FAILED: duplicate account")
		return nil, apperrors.AlreadyExists(msgAccountExists)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("REGISTER")
	s.audit.Append(ctx, audit.Entry{
		Action:   model.AuditRegister,
		Details:  fmt.Sprintf("New account created with email: %s", email),
		UserID:   &user.ID,
		Username: user.Username,
	})

	return user, nil
}

func (s *AuthService) Logout(ctx context.Context, session *model.Session, user *model.User) error {
	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		return apperrors.Database(err)
	}

	entry := audit.Entry{Action: model.AuditLogout, Details: "User logged out"}
	if user != nil {
		entry.UserID = &user.ID
		entry.Username = user.Username
	}
	s.audit.Append(ctx, entry)
	return nil
}

// RequestPasswordReset always answers with ResetRequestAck. Failures after
// the account lookup are logged, not returned, so the response never
// depends on whether the email exists.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", apperrors.Database(err)
	}
	if user == nil {
		return ResetRequestAck, nil
	}

	token, err := util.GenerateURLToken()
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to generate reset token")
		return ResetRequestAck, nil
	}

	_, err = s.resetTokens.Create(ctx, model.CreatePasswordResetParams{
		UserID:    user.ID,
		TokenHash: util.HashToken(token),
		ExpiresAt: s.now().Add(s.cfg.ResetTokenTTL),
	})
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to store reset token")
		return ResetRequestAck, nil
	}

	link := strings.TrimRight(s.cfg.AppBaseURL, "/") + "/reset-password/" + token
	if err := s.mailer.Send(ctx, mail.PasswordResetMessage(user.Email, user.Username, link)); err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("failed to send reset email")
	}

	log.Info().Int64("user_id", user.ID).Msg("PASSWORD RESET REQUESTED")
	s.audit.Append(ctx, audit.Entry{
		Action:   model.AuditPasswordResetRequested,
		Details:  fmt.Sprintf("Reset requested for email: %s", email),
		UserID:   &user.ID,
		Username: user.Username,
	})

	return ResetRequestAck, nil
}

func (s *AuthService) findUsableToken(ctx context.Context, token string) (*model.PasswordResetToken, error) {
	if token == "" {
		return nil, apperrors.InvalidToken()
	}

	rt, err := s.resetTokens.FindByTokenHash(ctx, util.HashToken(token))
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if rt == nil {
		return nil, apperrors.InvalidToken()
	}
	if !rt.Usable(s.now()) {
		return nil, apperrors.TokenExpired()
	}
	return rt, nil
}

// CheckResetToken reports whether token can still be redeemed.
func (s *AuthService) CheckResetToken(ctx context.Context, token string) error {
	_, err := s.findUsableToken(ctx, token)
	return err
}

// ResetPassword consumes the token and replaces the password hash in one
// transaction, then drops every session of the user.
func (s *AuthService) ResetPassword(ctx context.Context, token, password, confirm string) error {
	rt, err := s.findUsableToken(ctx, token)
	if err != nil {
		return err
	}

	if violations := util.NewPasswordViolations(password, confirm); len(violations) > 0 {
		return apperrors.Validation(violations)
	}

	hash, err := s.credentials.Hash(password)
	if err != nil {
		return apperrors.Internal("Failed to reset password").WithCause(err)
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		consumed, err := s.resetTokens.WithTx(tx).MarkUsed(ctx, rt.ID)
		if err != nil {
			return err
		}
		if !consumed {
			return errTokenConsumed
		}
		if _, err := s.users.WithTx(tx).UpdatePasswordHash(ctx, rt.UserID, hash); err != nil {
			return err
		}
		_, err = s.sessions.WithTx(tx).DeleteByUserID(ctx, rt.UserID)
		return err
	})
	if errors.Is(err, errTokenConsumed) {
		return apperrors.TokenExpired()
	}
	if err != nil {
		return apperrors.Database(err)
	}

	log.Info().Int64("user_id", rt.UserID).Msg("PASSWORD RESET SUCCESS")
	s.audit.Append(ctx, audit.Entry{
		Action:  model.AuditPasswordResetSuccess,
		Details: "Password was reset successfully",
		UserID:  &rt.UserID,
	})
	return nil
}

// Authenticate resolves a session cookie value to its session and user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.Session, *model.User, error) {
	if token == "" {
		return nil, nil, apperrors.Unauthorized("Please log in.")
	}

	session, err := s.sessions.FindByTokenHash(ctx, s.hashSessionToken(token))
	if err != nil {
		return nil, nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, nil, apperrors.Unauthorized("Please log in.")
	}

	user, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, apperrors.Database(err)
	}
	if user == nil {
		return nil, nil, apperrors.Unauthorized("Please log in.")
	}

	return session, user, nil
}

// EnforceIdleTimeout ends the session when more than the idle timeout has
// passed since its last activity; otherwise it records activity now.
func (s *AuthService) EnforceIdleTimeout(ctx context.Context, session *model.Session, user *model.User) error {
	now := s.now()

	if session.LastActive != nil && now.Sub(*session.LastActive) > s.cfg.IdleTimeout {
		if err := s.sessions.Delete(ctx, session.ID); err != nil {
			return apperrors.Database(err)
		}

		log.Info().Int64("user_id", user.ID).Str("username", user.Username).Msg("SESSION TIMEOUT")
		s.audit.Append(ctx, audit.Entry{
			Action:   model.AuditSessionTimeout,
			Details:  "Session expired due to inactivity",
			UserID:   &user.ID,
			Username: user.Username,
		})
		return apperrors.SessionExpired()
	}

	if err := s.sessions.Touch(ctx, session.ID, now); err != nil {
		return apperrors.Database(err)
	}
	session.LastActive = &now
	return nil
}

func (s *AuthService) hashSessionToken(token string) string {
	return util.HmacSHA256(s.cfg.SessionSecret, token)
}
