package model

import "time"

type AuditAction string

const (
	AuditLoginSuccess           AuditAction = "LOGIN_SUCCESS"
	AuditLoginFailed            AuditAction = "LOGIN_FAILED"
	AuditRegister               AuditAction = "REGISTER"
	AuditLogout                 AuditAction = "LOGOUT"
	AuditPasswordResetRequested AuditAction = "PASSWORD_RESET_REQUESTED"
	AuditPasswordResetSuccess   AuditAction = "PASSWORD_RESET_SUCCESS"
	AuditSessionTimeout         AuditAction = "SESSION_TIMEOUT"
	AuditPrescriptionAdded      AuditAction = "PRESCRIPTION_ADDED"
	AuditPrescriptionUpdated    AuditAction = "PRESCRIPTION_UPDATED"
	AuditPrescriptionDeleted    AuditAction = "PRESCRIPTION_DELETED"
	AuditPrescriptionDeleteFail AuditAction = "PRESCRIPTION_DELETE_FAILED"
	AuditRateLimitExceeded      AuditAction = "RATE_LIMIT_EXCEEDED"
)

const AnonymousUsername = "anonymous"

// AuditLogEntry is append-only; no update or delete path exists.
type AuditLogEntry struct {
	ID        int64       `db:"id" json:"id"`
	UserID    *int64      `db:"user_id" json:"userId,omitempty"`
	Username  string      `db:"username" json:"username"`
	Action    AuditAction `db:"action" json:"action"`
	Details   *string     `db:"details" json:"details,omitempty"`
	IPAddress *string     `db:"ip_address" json:"ipAddress,omitempty"`
	Timestamp time.Time   `db:"timestamp" json:"timestamp"`
}

type CreateAuditLogParams struct {
	UserID    *int64
	Username  string
	Action    AuditAction
	Details   *string
	IPAddress *string
}
