package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/carecrypt/carecrypt-server/internal/audit"
	apperrors "github.com/carecrypt/carecrypt-server/internal/errors"
	"github.com/carecrypt/carecrypt-server/internal/httputil"
	"github.com/carecrypt/carecrypt-server/internal/model"
	"github.com/carecrypt/carecrypt-server/internal/ratelimit"
	"github.com/carecrypt/carecrypt-server/internal/reqctx"
)

// IPRateLimitMiddleware limits requests per client address for one route.
type IPRateLimitMiddleware struct {
	limiter ratelimit.Limiter
	audit   *audit.Logger
	limit   int
	window  time.Duration
	prefix  string
}

func NewIPRateLimitMiddleware(limiter ratelimit.Limiter, auditLog *audit.Logger, limit int, window time.Duration, prefix string) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		audit:   auditLog,
		limit:   limit,
		window:  window,
		prefix:  prefix,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := reqctx.ClientIP(r.Context())
		if ip == "" {
			ip = httputil.ClientIP(r)
		}

		key := fmt.Sprintf("ip:%s:%s", m.prefix, ip)
		allowed, resetAt := m.limiter.Allow(r.Context(), key, m.limit, m.window)

		if !allowed {
			secondsLeft := int(time.Until(resetAt).Seconds()) + 1
			if secondsLeft < 1 {
				secondsLeft = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secondsLeft))

			log.Warn().Str("ip", ip).Str("route", m.prefix).Msg("rate limit exceeded")
			m.audit.Append(r.Context(), audit.Entry{
				Action:  model.AuditRateLimitExceeded,
				Details: fmt.Sprintf("Rate limit exceeded on %s %s", r.Method, r.URL.Path),
				IP:      ip,
			})

			writeError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
