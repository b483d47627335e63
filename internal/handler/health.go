package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db      Pinger
	timeout time.Duration
}

func NewHealthHandler(db Pinger, timeout time.Duration) *HealthHandler {
	return &HealthHandler{db: db, timeout: timeout}
}

// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	}
	if err := h.db.Ping(ctx); err != nil {
		log.Error().Err(err).Msg("health check: database unreachable")
		status = http.StatusServiceUnavailable
		body["status"] = "unavailable"
	}

	writeJSON(w, status, body)
}
