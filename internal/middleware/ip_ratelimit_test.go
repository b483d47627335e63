package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carecrypt/carecrypt-server/internal/audit"
	"github.com/carecrypt/carecrypt-server/internal/httputil"
	"github.com/carecrypt/carecrypt-server/internal/model"
	"github.com/carecrypt/carecrypt-server/internal/ratelimit"
)

type recordingAuditStore struct {
	mu      sync.Mutex
	entries []model.CreateAuditLogParams
}

func (s *recordingAuditStore) Create(_ context.Context, params model.CreateAuditLogParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, params)
	return nil
}

func loginRequest(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = ip + ":40000"
	return req
}

func TestIPRateLimitMiddleware(t *testing.T) {
	t.Run("sixth login in a minute is rejected", func(t *testing.T) {
		store := &recordingAuditStore{}
		m := NewIPRateLimitMiddleware(ratelimit.NewMemoryLimiter(), audit.NewLogger(store), 5, time.Minute, "login")
		handler := NewClientIPMiddleware(nil).Handler(m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})))

		for i := 0; i < 5; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, loginRequest("203.0.113.9"))
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
		}

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("203.0.113.9"))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))

		require.Len(t, store.entries, 1)
		entry := store.entries[0]
		assert.Equal(t, model.AuditRateLimitExceeded, entry.Action)
		assert.Equal(t, model.AnonymousUsername, entry.Username)
		require.NotNil(t, entry.IPAddress)
		assert.Equal(t, "203.0.113.9", *entry.IPAddress)
	})

	t.Run("addresses are limited independently", func(t *testing.T) {
		m := NewIPRateLimitMiddleware(ratelimit.NewMemoryLimiter(), nil, 1, time.Minute, "forgot")
		handler := NewClientIPMiddleware(nil).Handler(m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("198.51.100.1"))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("198.51.100.2"))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequest("198.51.100.1"))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("rotating X-Forwarded-For from one socket is still limited", func(t *testing.T) {
		store := &recordingAuditStore{}
		m := NewIPRateLimitMiddleware(ratelimit.NewMemoryLimiter(), audit.NewLogger(store), 5, time.Minute, "login")
		handler := NewClientIPMiddleware(nil).Handler(m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})))

		limited := 0
		for i := 0; i < 50; i++ {
			req := loginRequest("203.0.113.9")
			req.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code == http.StatusTooManyRequests {
				limited++
			}
		}

		assert.Equal(t, 45, limited)
		require.NotEmpty(t, store.entries)
		assert.Equal(t, "203.0.113.9", *store.entries[0].IPAddress)
	})

	t.Run("trusted proxy hop is keyed on the forwarded client", func(t *testing.T) {
		proxies, err := httputil.ParseTrustedProxies([]string{"10.0.0.0/8"})
		require.NoError(t, err)
		m := NewIPRateLimitMiddleware(ratelimit.NewMemoryLimiter(), nil, 1, time.Minute, "login")
		handler := NewClientIPMiddleware(proxies).Handler(m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})))

		send := func(client string) int {
			req := loginRequest("10.0.0.1")
			req.Header.Set("X-Forwarded-For", client)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			return rec.Code
		}

		assert.Equal(t, http.StatusOK, send("198.51.100.1"))
		assert.Equal(t, http.StatusOK, send("198.51.100.2"))
		assert.Equal(t, http.StatusTooManyRequests, send("198.51.100.1"))
	})
}
