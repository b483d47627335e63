package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/carecrypt/carecrypt-server/internal/model"
)

type PrescriptionImageRepository interface {
	Create(ctx context.Context, params model.CreateImageParams) (*model.PrescriptionImage, error)
	ListByPrescriptionIDs(ctx context.Context, prescriptionIDs []int64) ([]model.PrescriptionImage, error)
	// FindOwned returns the image only if its parent belongs to userID.
	FindOwned(ctx context.Context, imageID, userID int64) (*model.OwnedImage, error)
	// DeleteFromPrescription removes the listed images of one prescription
	// and returns the rows that were removed.
	DeleteFromPrescription(ctx context.Context, prescriptionID int64, imageIDs []int64) ([]model.PrescriptionImage, error)
	// ReferencedFilenames returns the subset of names still referenced by a row.
	ReferencedFilenames(ctx context.Context, filenames []string) ([]string, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) PrescriptionImageRepository
}

type prescriptionImageRepo struct {
	db sqlxDB
}

func NewPrescriptionImageRepository(db *sqlx.DB) PrescriptionImageRepository {
	return &prescriptionImageRepo{db: db}
}

func (r *prescriptionImageRepo) WithTx(tx *sqlx.Tx) PrescriptionImageRepository {
	return &prescriptionImageRepo{db: tx}
}

func (r *prescriptionImageRepo) Create(ctx context.Context, params model.CreateImageParams) (*model.PrescriptionImage, error) {
	var img model.PrescriptionImage
	err := r.db.GetContext(ctx, &img, `
		INSERT INTO prescription_images (prescription_id, filename, original_ext)
		VALUES ($1, $2, $3)
		RETURNING *
	`, params.PrescriptionID, params.Filename, params.OriginalExt)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

func (r *prescriptionImageRepo) ListByPrescriptionIDs(ctx context.Context, prescriptionIDs []int64) ([]model.PrescriptionImage, error) {
	if len(prescriptionIDs) == 0 {
		return nil, nil
	}
	var images []model.PrescriptionImage
	err := r.db.SelectContext(ctx, &images, `
		SELECT * FROM prescription_images
		WHERE prescription_id = ANY($1)
		ORDER BY id
	`, pq.Array(prescriptionIDs))
	if err != nil {
		return nil, err
	}
	return images, nil
}

func (r *prescriptionImageRepo) FindOwned(ctx context.Context, imageID, userID int64) (*model.OwnedImage, error) {
	var img model.OwnedImage
	err := r.db.GetContext(ctx, &img, `
		SELECT pi.*, p.user_id
		FROM prescription_images pi
		JOIN prescriptions p ON p.id = pi.prescription_id
		WHERE pi.id = $1 AND p.user_id = $2
	`, imageID, userID)
	return HandleNotFound(&img, err)
}

func (r *prescriptionImageRepo) DeleteFromPrescription(ctx context.Context, prescriptionID int64, imageIDs []int64) ([]model.PrescriptionImage, error) {
	if len(imageIDs) == 0 {
		return nil, nil
	}
	var removed []model.PrescriptionImage
	err := r.db.SelectContext(ctx, &removed, `
		DELETE FROM prescription_images
		WHERE prescription_id = $1 AND id = ANY($2)
		RETURNING *
	`, prescriptionID, pq.Array(imageIDs))
	if err != nil {
		return nil, err
	}
	return removed, nil
}

func (r *prescriptionImageRepo) ReferencedFilenames(ctx context.Context, filenames []string) ([]string, error) {
	if len(filenames) == 0 {
		return nil, nil
	}
	var referenced []string
	err := r.db.SelectContext(ctx, &referenced, `
		SELECT filename FROM prescription_images WHERE filename = ANY($1)
		UNION
		SELECT image_path FROM prescriptions WHERE image_path = ANY($1)
	`, pq.Array(filenames))
	if err != nil {
		return nil, err
	}
	return referenced, nil
}
