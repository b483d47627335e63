// Package ratelimit counts requests per key over a sliding window.
package ratelimit

import (
	"context"
	"time"
)

type Limiter interface {
	// Allow records one attempt under key and reports whether it fits within
	// limit attempts per window, plus when the oldest counted attempt expires.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, resetAt time.Time)
}
