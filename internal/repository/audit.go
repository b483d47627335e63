package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/carecrypt/carecrypt-server/internal/model"
)

// AuditLogRepository is append-only.
type AuditLogRepository interface {
	Create(ctx context.Context, params model.CreateAuditLogParams) error
}

type auditLogRepo struct {
	db sqlxDB
}

func NewAuditLogRepository(db *sqlx.DB) AuditLogRepository {
	return &auditLogRepo{db: db}
}

func (r *auditLogRepo) Create(ctx context.Context, params model.CreateAuditLogParams) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (user_id, username, action, details, ip_address)
		VALUES ($1, $2, $3, $4, $5)
	`, params.UserID, params.Username, params.Action, params.Details, params.IPAddress)
	return err
}
