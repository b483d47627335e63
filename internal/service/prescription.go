package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/carecrypt/carecrypt-server/internal/audit"
	"github.com/carecrypt/carecrypt-server/internal/codec"
	"github.com/carecrypt/carecrypt-server/internal/database"
	apperrors "github.com/carecrypt/carecrypt-server/internal/errors"
	"github.com/carecrypt/carecrypt-server/internal/model"
	"github.com/carecrypt/carecrypt-server/internal/repository"
	"github.com/carecrypt/carecrypt-server/internal/storage"
)

const (
	searchDateLayout = "2006-01-02"
	searchDateOutput = "02 Jan 2006"
)

var allowedExtensions = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"pdf":  "application/pdf",
}

var errPrescriptionGone = errors.New("prescription not found")

// Upload is one attached file as received from the client.
type Upload struct {
	Filename string
	Data     []byte
}

// stagedFile is an encrypted upload already written to the store but not
// yet referenced by any row.
type stagedFile struct {
	name string
	ext  string
}

type PrescriptionService struct {
	tx            database.TxRunner
	prescriptions repository.PrescriptionRepository
	images        repository.PrescriptionImageRepository
	store         storage.Store
	codec         *codec.Codec
	audit         *audit.Logger
	newFilename   func() string
}

func NewPrescriptionService(
	tx database.TxRunner,
	prescriptions repository.PrescriptionRepository,
	images repository.PrescriptionImageRepository,
	store storage.Store,
	c *codec.Codec,
	auditLog *audit.Logger,
) *PrescriptionService {
	return &PrescriptionService{
		tx:            tx,
		prescriptions: prescriptions,
		images:        images,
		store:         store,
		codec:         c,
		audit:         auditLog,
		newFilename:   randomFilename,
	}
}

func randomFilename() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + ".enc"
}

// uploadExtension returns the lower-cased extension when it is accepted.
func uploadExtension(filename string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	_, ok := allowedExtensions[ext]
	return ext, ok
}

// ContentTypeForExt maps a stored extension to the MIME type served.
func ContentTypeForExt(ext string) string {
	if ct, ok := allowedExtensions[strings.ToLower(ext)]; ok {
		return ct
	}
	return "application/octet-stream"
}

func validateFields(fields model.PrescriptionFields) error {
	var violations []string
	if strings.TrimSpace(fields.PatientName) == "" {
		violations = append(violations, "Patient name is required.")
	}
	if strings.TrimSpace(fields.Medication) == "" {
		violations = append(violations, "Medication is required.")
	}
	if strings.TrimSpace(fields.Dosage) == "" {
		violations = append(violations, "Dosage is required.")
	}
	if len(violations) > 0 {
		return apperrors.Validation(violations)
	}
	return nil
}

type encryptedFields struct {
	patientName, medication, dosage, notes []byte
}

func (s *PrescriptionService) encryptFields(fields model.PrescriptionFields) (encryptedFields, error) {
	var out encryptedFields
	var err error
	if out.patientName, err = s.codec.EncryptString(fields.PatientName); err != nil {
		return out, err
	}
	if out.medication, err = s.codec.EncryptString(fields.Medication); err != nil {
		return out, err
	}
	if out.dosage, err = s.codec.EncryptString(fields.Dosage); err != nil {
		return out, err
	}
	out.notes, err = s.codec.EncryptString(fields.Notes)
	return out, err
}

func (s *PrescriptionService) decryptFields(p *model.Prescription) (model.PrescriptionFields, error) {
	var out model.PrescriptionFields
	var err error
	if out.PatientName, err = s.codec.DecryptString(p.PatientName); err != nil {
		return out, err
	}
	if out.Medication, err = s.codec.DecryptString(p.Medication); err != nil {
		return out, err
	}
	if out.Dosage, err = s.codec.DecryptString(p.Dosage); err != nil {
		return out, err
	}
	out.Notes, err = s.codec.DecryptString(p.Notes)
	return out, err
}

// stageUploads encrypts and stores every accepted upload. Disallowed and
// empty files are skipped. On failure the files written so far are removed.
func (s *PrescriptionService) stageUploads(ctx context.Context, uploads []Upload) ([]stagedFile, error) {
	staged := make([]stagedFile, 0, len(uploads))
	for _, up := range uploads {
		ext, ok := uploadExtension(up.Filename)
		if !ok || len(up.Data) == 0 {
			log.Debug().Str("filename", up.Filename).Msg("skipping upload")
			continue
		}

		ciphertext, err := s.codec.Encrypt(up.Data)
		if err != nil {
			s.discard(ctx, staged)
			return nil, apperrors.Internal("Failed to encrypt attachment").WithCause(err)
		}

		name := s.newFilename()
		if err := s.store.Put(ctx, name, ciphertext); err != nil {
			s.discard(ctx, staged)
			return nil, apperrors.Storage(err)
		}
		staged = append(staged, stagedFile{name: name, ext: ext})
	}
	return staged, nil
}

// discard removes staged files after a failed transaction. Anything left
// behind is collected by the orphan sweep.
func (s *PrescriptionService) discard(ctx context.Context, staged []stagedFile) {
	for _, f := range staged {
		s.removeFile(ctx, f.name)
	}
}

func (s *PrescriptionService) removeFile(ctx context.Context, name string) {
	if err := s.store.Delete(ctx, name); err != nil {
		log.Warn().Err(err).Str("filename", name).Msg("failed to remove stored file")
	}
}

func (s *PrescriptionService) Create(ctx context.Context, userID int64, fields model.PrescriptionFields, uploads []Upload) (*model.PrescriptionView, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	enc, err := s.encryptFields(fields)
	if err != nil {
		return nil, apperrors.Internal("Failed to encrypt prescription").WithCause(err)
	}

	staged, err := s.stageUploads(ctx, uploads)
	if err != nil {
		return nil, err
	}

	var created *model.Prescription
	images := make([]model.PrescriptionImage, 0, len(staged))
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		created, err = s.prescriptions.WithTx(tx).Create(ctx, model.CreatePrescriptionParams{
			UserID:      userID,
			PatientName: enc.patientName,
			Medication:  enc.medication,
			Dosage:      enc.dosage,
			Notes:       enc.notes,
		})
		if err != nil {
			return err
		}

		imageRepo := s.images.WithTx(tx)
		for _, f := range staged {
			img, err := imageRepo.Create(ctx, model.CreateImageParams{
				PrescriptionID: created.ID,
				Filename:       f.name,
				OriginalExt:    f.ext,
			})
			if err != nil {
				return err
			}
			images = append(images, *img)
		}
		return nil
	})
	if err != nil {
		s.discard(ctx, staged)
		log.Error().Err(err).Int64("user_id", userID).Msg("PRESCRIPTION ADD FAILED")
		return nil, apperrors.Database(err)
	}

	log.Info().Int64("user_id", userID).Int64("prescription_id", created.ID).Msg("PRESCRIPTION ADDED")
	s.audit.Append(ctx, audit.Entry{
		Action:  model.AuditPrescriptionAdded,
		Details: fmt.Sprintf("Added prescription ID: %d", created.ID),
		UserID:  &userID,
	})

	return &model.PrescriptionView{
		ID:          created.ID,
		PatientName: fields.PatientName,
		Medication:  fields.Medication,
		Dosage:      fields.Dosage,
		Notes:       fields.Notes,
		Images:      images,
		CreatedAt:   created.CreatedAt,
	}, nil
}

// List returns the user's prescriptions newest first, decrypted, with their
// attachments.
func (s *PrescriptionService) List(ctx context.Context, userID int64) ([]model.PrescriptionView, error) {
	rows, err := s.prescriptions.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return s.toViews(ctx, rows)
}

func (s *PrescriptionService) toViews(ctx context.Context, rows []model.Prescription) ([]model.PrescriptionView, error) {
	if len(rows) == 0 {
		return []model.PrescriptionView{}, nil
	}

	ids := make([]int64, len(rows))
	for i, p := range rows {
		ids[i] = p.ID
	}
	imgs, err := s.images.ListByPrescriptionIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	byParent := make(map[int64][]model.PrescriptionImage, len(rows))
	for _, img := range imgs {
		byParent[img.PrescriptionID] = append(byParent[img.PrescriptionID], img)
	}

	views := make([]model.PrescriptionView, 0, len(rows))
	for i := range rows {
		view, err := s.toView(&rows[i], byParent[rows[i].ID])
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

func (s *PrescriptionService) toView(p *model.Prescription, images []model.PrescriptionImage) (*model.PrescriptionView, error) {
	fields, err := s.decryptFields(p)
	if err != nil {
		log.Error().Err(err).Int64("prescription_id", p.ID).Msg("failed to decrypt prescription")
		return nil, apperrors.Integrity(err)
	}
	if images == nil {
		images = []model.PrescriptionImage{}
	}
	return &model.PrescriptionView{
		ID:          p.ID,
		PatientName: fields.PatientName,
		Medication:  fields.Medication,
		Dosage:      fields.Dosage,
		Notes:       fields.Notes,
		ImagePath:   p.ImagePath,
		Images:      images,
		CreatedAt:   p.CreatedAt,
	}, nil
}

func (s *PrescriptionService) Get(ctx context.Context, userID, id int64) (*model.PrescriptionView, error) {
	p, err := s.prescriptions.FindByIDAndUser(ctx, id, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if p == nil {
		return nil, apperrors.NotFound("Prescription")
	}

	imgs, err := s.images.ListByPrescriptionIDs(ctx, []int64{p.ID})
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return s.toView(p, imgs)
}

// Update re-encrypts the fields, detaches removeImageIDs and attaches
// uploads in one transaction. Detached files are deleted after commit.
func (s *PrescriptionService) Update(ctx context.Context, userID, id int64, fields model.PrescriptionFields, uploads []Upload, removeImageIDs []int64) (*model.PrescriptionView, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}

	enc, err := s.encryptFields(fields)
	if err != nil {
		return nil, apperrors.Internal("Failed to encrypt prescription").WithCause(err)
	}

	staged, err := s.stageUploads(ctx, uploads)
	if err != nil {
		return nil, err
	}

	var removed []model.PrescriptionImage
	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		n, err := s.prescriptions.WithTx(tx).Update(ctx, model.UpdatePrescriptionParams{
			ID:          id,
			UserID:      userID,
			PatientName: enc.patientName,
			Medication:  enc.medication,
			Dosage:      enc.dosage,
			Notes:       enc.notes,
		})
		if err != nil {
			return err
		}
		if n == 0 {
			return errPrescriptionGone
		}

		imageRepo := s.images.WithTx(tx)
		if len(removeImageIDs) > 0 {
			removed, err = imageRepo.DeleteFromPrescription(ctx, id, removeImageIDs)
			if err != nil {
				return err
			}
		}
		for _, f := range staged {
			if _, err := imageRepo.Create(ctx, model.CreateImageParams{
				PrescriptionID: id,
				Filename:       f.name,
				OriginalExt:    f.ext,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.discard(ctx, staged)
		if errors.Is(err, errPrescriptionGone) {
			return nil, apperrors.NotFound("Prescription")
		}
		log.Error().Err(err).Int64("user_id", userID).Int64("prescription_id", id).Msg("PRESCRIPTION UPDATE FAILED")
		return nil, apperrors.Database(err)
	}

	for _, img := range removed {
		s.removeFile(ctx, img.Filename)
	}

	log.Info().Int64("user_id", userID).Int64("prescription_id", id).Msg("PRESCRIPTION UPDATED")
	s.audit.Append(ctx, audit.Entry{
		Action:  model.AuditPrescriptionUpdated,
		Details: fmt.Sprintf("Updated prescription ID: %d", id),
		UserID:  &userID,
	})

	return s.Get(ctx, userID, id)
}

// Delete removes the prescription and its image rows, then their files.
func (s *PrescriptionService) Delete(ctx context.Context, userID, id int64) error {
	p, err := s.prescriptions.FindByIDAndUser(ctx, id, userID)
	if err != nil {
		return apperrors.Database(err)
	}
	if p == nil {
		s.auditDeleteFailed(ctx, userID, id)
		return apperrors.NotFound("Prescription")
	}

	imgs, err := s.images.ListByPrescriptionIDs(ctx, []int64{id})
	if err != nil {
		return apperrors.Database(err)
	}

	err = s.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		n, err := s.prescriptions.WithTx(tx).Delete(ctx, id, userID)
		if err != nil {
			return err
		}
		if n == 0 {
			return errPrescriptionGone
		}
		return nil
	})
	if errors.Is(err, errPrescriptionGone) {
		s.auditDeleteFailed(ctx, userID, id)
		return apperrors.NotFound("Prescription")
	}
	if err != nil {
		return apperrors.Database(err)
	}

	for _, img := range imgs {
		s.removeFile(ctx, img.Filename)
	}
	if p.ImagePath != nil && *p.ImagePath != "" {
		s.removeFile(ctx, *p.ImagePath)
	}

	log.Info().Int64("user_id", userID).Int64("prescription_id", id).Msg("PRESCRIPTION DELETED")
	s.audit.Append(ctx, audit.Entry{
		Action:  model.AuditPrescriptionDeleted,
		Details: fmt.Sprintf("Deleted prescription ID: %d", id),
		UserID:  &userID,
	})
	return nil
}

func (s *PrescriptionService) auditDeleteFailed(ctx context.Context, userID, id int64) {
	log.Warn().Int64("user_id", userID).Int64("prescription_id", id).Msg("PRESCRIPTION DELETE FAILED")
	s.audit.Append(ctx, audit.Entry{
		Action:  model.AuditPrescriptionDeleteFail,
		Details: fmt.Sprintf("Attempted to delete non-existent prescription ID: %d", id),
		UserID:  &userID,
	})
}

// Image is a decrypted attachment ready to be served.
type Image struct {
	Data        []byte
	ContentType string
}

func (s *PrescriptionService) ServeImage(ctx context.Context, userID, imageID int64) (*Image, error) {
	img, err := s.images.FindOwned(ctx, imageID, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if img == nil {
		return nil, apperrors.NotFound("Image")
	}

	ciphertext, err := s.store.Get(ctx, img.Filename)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warn().Int64("image_id", imageID).Msg("image row without stored file")
		return nil, apperrors.NotFound("Image")
	}
	if err != nil {
		return nil, apperrors.Storage(err)
	}

	data, err := s.codec.Decrypt(ciphertext)
	if err != nil {
		log.Error().Err(err).Int64("image_id", imageID).Msg("failed to decrypt image")
		return nil, apperrors.Integrity(err)
	}

	return &Image{Data: data, ContentType: ContentTypeForExt(img.OriginalExt)}, nil
}

// SearchQuery filters a user's records. Dates are YYYY-MM-DD and inclusive;
// malformed dates are ignored.
type SearchQuery struct {
	Query    string
	DateFrom string
	DateTo   string
}

func parseSearchDate(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	if _, err := time.Parse(searchDateLayout, value); err != nil {
		return "", false
	}
	return value, true
}

// Search decrypts every record of the user and filters in process, since
// ciphertext cannot be matched in the database.
func (s *PrescriptionService) Search(ctx context.Context, userID int64, q SearchQuery) ([]model.SearchResult, error) {
	views, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(strings.TrimSpace(q.Query))
	from, hasFrom := parseSearchDate(q.DateFrom)
	to, hasTo := parseSearchDate(q.DateTo)

	results := make([]model.SearchResult, 0, len(views))
	for _, v := range views {
		if needle != "" &&
			!strings.Contains(strings.ToLower(v.PatientName), needle) &&
			!strings.Contains(strings.ToLower(v.Medication), needle) {
			continue
		}

		day := v.CreatedAt.Format(searchDateLayout)
		if hasFrom && day < from {
			continue
		}
		if hasTo && day > to {
			continue
		}

		images := make([]model.ImageSummary, len(v.Images))
		for i, img := range v.Images {
			images[i] = model.ImageSummary{ID: img.ID, Ext: img.OriginalExt}
		}
		results = append(results, model.SearchResult{
			ID:          v.ID,
			PatientName: v.PatientName,
			Medication:  v.Medication,
			Dosage:      v.Dosage,
			Notes:       v.Notes,
			Images:      images,
			CreatedAt:   v.CreatedAt.Format(searchDateOutput),
		})
	}
	return results, nil
}
