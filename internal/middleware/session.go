package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/carecrypt/carecrypt-server/internal/errors"
	"github.com/carecrypt/carecrypt-server/internal/model"
	"github.com/carecrypt/carecrypt-server/internal/reqctx"
)

const (
	SessionCookie = "carecrypt_session"
	SessionMaxAge = 24 * time.Hour
)

// SessionAuthenticator resolves session cookies and enforces inactivity.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Session, *model.User, error)
	EnforceIdleTimeout(ctx context.Context, session *model.Session, user *model.User) error
}

type SessionMiddleware struct {
	auth   SessionAuthenticator
	secure bool
}

func NewSessionMiddleware(auth SessionAuthenticator, secure bool) *SessionMiddleware {
	return &SessionMiddleware{auth: auth, secure: secure}
}

// Handler admits only requests carrying a live session. Each admitted
// request refreshes the session's activity timestamp.
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil || cookie.Value == "" {
			writeError(w, apperrors.Unauthorized("Please log in.").WithRedirect(apperrors.RedirectLogin))
			return
		}

		session, user, err := m.auth.Authenticate(r.Context(), cookie.Value)
		if err != nil {
			if apperrors.GetCode(err) == apperrors.ErrCodeUnauthorized {
				ClearSessionCookie(w, m.secure)
				err = apperrors.Unauthorized("Please log in.").WithRedirect(apperrors.RedirectLogin)
			}
			writeError(w, err)
			return
		}

		ctx := reqctx.WithSession(r.Context(), session)
		ctx = reqctx.WithUser(ctx, user)

		if err := m.auth.EnforceIdleTimeout(ctx, session, user); err != nil {
			if apperrors.GetCode(err) == apperrors.ErrCodeSessionExpired {
				log.Info().Int64("user_id", user.ID).Msg("session middleware: idle timeout")
				ClearSessionCookie(w, m.secure)
			}
			writeError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
