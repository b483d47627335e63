package middleware

import (
	"net/http"

	apperrors "github.com/carecrypt/carecrypt-server/internal/errors"
	"github.com/carecrypt/carecrypt-server/internal/util"
)

const (
	CSRFCookieName = "carecrypt_csrf"
	CSRFHeaderName = "X-CSRF-Token"
)

// CSRFMiddleware provides CSRF protection for state-changing requests.
// It uses the double-submit cookie pattern:
// 1. A CSRF token is set in a cookie (readable by JavaScript)
// 2. The same token must be sent in the X-CSRF-Token header
// 3. For state-changing methods (POST, PUT, PATCH, DELETE), both must match
//
// Mounted on the whole router, so /register, /login, /forgot-password and
// /reset-password need a prior GET (the client bundle, /health or the reset
// token check) to obtain the cookie. A first POST without it is rejected but
// still receives a cookie for the retry.
type CSRFMiddleware struct {
	isProduction bool
}

func NewCSRFMiddleware(isProduction bool) *CSRFMiddleware {
	return &CSRFMiddleware{isProduction: isProduction}
}

func (m *CSRFMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(CSRFCookieName)
		if err != nil || cookie.Value == "" {
			token, err := util.GenerateToken()
			if err != nil {
				writeError(w, apperrors.Internal("Failed to generate security token").WithCause(err))
				return
			}
			m.setCSRFCookie(w, token)
			cookie = &http.Cookie{Value: token}
		}

		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		headerToken := r.Header.Get(CSRFHeaderName)
		if headerToken == "" {
			writeError(w, apperrors.Forbidden("Missing CSRF token"))
			return
		}

		if !util.ConstantTimeEqual(cookie.Value, headerToken) {
			writeError(w, apperrors.Forbidden("Invalid CSRF token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *CSRFMiddleware) setCSRFCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(SessionMaxAge.Seconds()),
		HttpOnly: false, // read by the client and echoed in the header
		Secure:   m.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

func isSafeMethod(method string) bool {
	return method == http.MethodGet ||
		method == http.MethodHead ||
		method == http.MethodOptions
}
