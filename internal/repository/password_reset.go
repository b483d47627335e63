package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/carecrypt/carecrypt-server/internal/model"
)

type PasswordResetRepository interface {
	Create(ctx context.Context, params model.CreatePasswordResetParams) (*model.PasswordResetToken, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.PasswordResetToken, error)
	// MarkUsed flips used to true only if it was false. It reports whether
	// this call was the one that consumed the token.
	MarkUsed(ctx context.Context, id int64) (bool, error)
	DeleteStale(ctx context.Context, now time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) PasswordResetRepository
}

type passwordResetRepo struct {
	db sqlxDB
}

func NewPasswordResetRepository(db *sqlx.DB) PasswordResetRepository {
	return &passwordResetRepo{db: db}
}

func (r *passwordResetRepo) WithTx(tx *sqlx.Tx) PasswordResetRepository {
	return &passwordResetRepo{db: tx}
}

func (r *passwordResetRepo) Create(ctx context.Context, params model.CreatePasswordResetParams) (*model.PasswordResetToken, error) {
	var token model.PasswordResetToken
	err := r.db.GetContext(ctx, &token, `
		INSERT INTO password_reset_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.UserID, params.TokenHash, params.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *passwordResetRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.PasswordResetToken, error) {
	var token model.PasswordResetToken
	err := r.db.GetContext(ctx, &token, `
		SELECT * FROM password_reset_tokens WHERE token_hash = $1
	`, tokenHash)
	return HandleNotFound(&token, err)
}

func (r *passwordResetRepo) MarkUsed(ctx context.Context, id int64) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx, `
		UPDATE password_reset_tokens SET used = TRUE
		WHERE id = $1 AND used = FALSE
	`, id))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *passwordResetRepo) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `
		DELETE FROM password_reset_tokens
		WHERE used = TRUE OR expires_at < $1
	`, now))
}
