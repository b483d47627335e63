package model

import "time"

// Session is the server-side authentication state behind a session cookie.
// LastActive is nil until the first authenticated request touches it.
type Session struct {
	ID         int64      `db:"id" json:"id"`
	TokenHash  string     `db:"token_hash" json:"-"`
	UserID     int64      `db:"user_id" json:"userId"`
	LastActive *time.Time `db:"last_active" json:"lastActive,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
}

type CreateSessionParams struct {
	TokenHash  string
	UserID     int64
	LastActive time.Time
}
