package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/carecrypt/carecrypt-server/internal/model"
)

// PrescriptionRepository scopes every read and write by owner.
type PrescriptionRepository interface {
	Create(ctx context.Context, params model.CreatePrescriptionParams) (*model.Prescription, error)
	FindByIDAndUser(ctx context.Context, id, userID int64) (*model.Prescription, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Prescription, error)
	Update(ctx context.Context, params model.UpdatePrescriptionParams) (int64, error)
	Delete(ctx context.Context, id, userID int64) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) PrescriptionRepository
}

type prescriptionRepo struct {
	db sqlxDB
}

func NewPrescriptionRepository(db *sqlx.DB) PrescriptionRepository {
	return &prescriptionRepo{db: db}
}

func (r *prescriptionRepo) WithTx(tx *sqlx.Tx) PrescriptionRepository {
	return &prescriptionRepo{db: tx}
}

func (r *prescriptionRepo) Create(ctx context.Context, params model.CreatePrescriptionParams) (*model.Prescription, error) {
	var p model.Prescription
	err := r.db.GetContext(ctx, &p, `
		INSERT INTO prescriptions (user_id, patient_name, medication, dosage, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING *
	`, params.UserID, params.PatientName, params.Medication, params.Dosage, params.Notes)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *prescriptionRepo) FindByIDAndUser(ctx context.Context, id, userID int64) (*model.Prescription, error) {
	var p model.Prescription
	err := r.db.GetContext(ctx, &p, `
		SELECT * FROM prescriptions WHERE id = $1 AND user_id = $2
	`, id, userID)
	return HandleNotFound(&p, err)
}

func (r *prescriptionRepo) ListByUser(ctx context.Context, userID int64) ([]model.Prescription, error) {
	var prescriptions []model.Prescription
	err := r.db.SelectContext(ctx, &prescriptions, `
		SELECT * FROM prescriptions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return prescriptions, nil
}

func (r *prescriptionRepo) Update(ctx context.Context, params model.UpdatePrescriptionParams) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `
		UPDATE prescriptions SET
			patient_name = $3,
			medication = $4,
			dosage = $5,
			notes = $6
		WHERE id = $1 AND user_id = $2
	`, params.ID, params.UserID, params.PatientName, params.Medication, params.Dosage, params.Notes))
}

func (r *prescriptionRepo) Delete(ctx context.Context, id, userID int64) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `
		DELETE FROM prescriptions WHERE id = $1 AND user_id = $2
	`, id, userID))
}
