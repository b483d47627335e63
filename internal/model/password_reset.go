package model

import "time"

type PasswordResetToken struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"userId"`
	TokenHash string    `db:"token_hash" json:"-"`
	ExpiresAt time.Time `db:"expires_at" json:"expiresAt"`
	Used      bool      `db:"used" json:"used"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Usable reports whether the token may still be redeemed at now.
func (t *PasswordResetToken) Usable(now time.Time) bool {
	return !t.Used && !now.After(t.ExpiresAt)
}

type CreatePasswordResetParams struct {
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
}
