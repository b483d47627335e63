package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/carecrypt/carecrypt-server/internal/model"
)

type SessionRepository interface {
	Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error)
	Touch(ctx context.Context, id int64, lastActive time.Time) error
	Delete(ctx context.Context, id int64) error
	DeleteByUserID(ctx context.Context, userID int64) (int64, error)
	// DeleteIdleBefore removes sessions whose last activity is older than cutoff.
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) SessionRepository
}

type sessionRepo struct {
	db sqlxDB
}

func NewSessionRepository(db *sqlx.DB) SessionRepository {
	return &sessionRepo{db: db}
}

func (r *sessionRepo) WithTx(tx *sqlx.Tx) SessionRepository {
	return &sessionRepo{db: tx}
}

func (r *sessionRepo) Create(ctx context.Context, params model.CreateSessionParams) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `
		INSERT INTO sessions (token_hash, user_id, last_active)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.TokenHash, params.UserID, params.LastActive)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Session, error) {
	var session model.Session
	err := r.db.GetContext(ctx, &session, `SELECT * FROM sessions WHERE token_hash = $1`, tokenHash)
	return HandleNotFound(&session, err)
}

func (r *sessionRepo) Touch(ctx context.Context, id int64, lastActive time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET last_active = $2 WHERE id = $1`, id, lastActive)
	return err
}

func (r *sessionRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

func (r *sessionRepo) DeleteByUserID(ctx context.Context, userID int64) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID))
}

func (r *sessionRepo) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE COALESCE(last_active, created_at) < $1
	`, cutoff))
}
