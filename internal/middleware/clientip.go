package middleware

import (
	"net/http"

	"github.com/carecrypt/carecrypt-server/internal/httputil"
	"github.com/carecrypt/carecrypt-server/internal/reqctx"
)

// ClientIPMiddleware stores the caller's address in the request context for
// the audit log and the rate limiter.
type ClientIPMiddleware struct {
	proxies *httputil.TrustedProxies
}

// NewClientIPMiddleware reads forwarding headers only from proxies; nil
// keys every request on its socket address.
func NewClientIPMiddleware(proxies *httputil.TrustedProxies) *ClientIPMiddleware {
	return &ClientIPMiddleware{proxies: proxies}
}

func (m *ClientIPMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := reqctx.WithClientIP(r.Context(), m.proxies.ClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
