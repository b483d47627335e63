package handler

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/carecrypt/carecrypt-server/internal/errors"
	"github.com/carecrypt/carecrypt-server/internal/model"
	"github.com/carecrypt/carecrypt-server/internal/reqctx"
	"github.com/carecrypt/carecrypt-server/internal/service"
)

const (
	multipartMemory = 8 << 20

	msgPrescriptionSaved   = "Prescription saved securely!"
	msgPrescriptionUpdated = "Prescription updated successfully!"
	msgPrescriptionDeleted = "Prescription deleted."
)

type PrescriptionService interface {
	Create(ctx context.Context, userID int64, fields model.PrescriptionFields, uploads []service.Upload) (*model.PrescriptionView, error)
	List(ctx context.Context, userID int64) ([]model.PrescriptionView, error)
	Get(ctx context.Context, userID, id int64) (*model.PrescriptionView, error)
	Update(ctx context.Context, userID, id int64, fields model.PrescriptionFields, uploads []service.Upload, removeImageIDs []int64) (*model.PrescriptionView, error)
	Delete(ctx context.Context, userID, id int64) error
	ServeImage(ctx context.Context, userID, imageID int64) (*service.Image, error)
	Search(ctx context.Context, userID int64, q service.SearchQuery) ([]model.SearchResult, error)
}

type PrescriptionHandler struct {
	prescriptions PrescriptionService
}

func NewPrescriptionHandler(prescriptions PrescriptionService) *PrescriptionHandler {
	return &PrescriptionHandler{prescriptions: prescriptions}
}

// Routes expects the session middleware to run first.
func (h *PrescriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/prescriptions", h.List)
	r.Post("/prescriptions", h.Create)
	r.Get("/prescriptions/{id}", h.Get)
	r.Put("/prescriptions/{id}", h.Update)
	r.Delete("/prescriptions/{id}", h.Delete)
	r.Get("/images/{id}", h.ServeImage)
	r.Get("/search", h.Search)
	r.Get("/ping", h.Ping)

	return r
}

func currentUserID(r *http.Request) int64 {
	if user := reqctx.User(r.Context()); user != nil {
		return user.ID
	}
	return 0
}

func pathID(r *http.Request, resource string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NotFound(resource)
	}
	return id, nil
}

func formFields(r *http.Request) model.PrescriptionFields {
	return model.PrescriptionFields{
		PatientName: r.FormValue("patient_name"),
		Medication:  r.FormValue("medication"),
		Dosage:      r.FormValue("dosage"),
		Notes:       r.FormValue("notes"),
	}
}

// parseRecordForm accepts multipart (with files) or urlencoded bodies.
func parseRecordForm(r *http.Request) error {
	err := r.ParseMultipartForm(multipartMemory)
	if err == nil || err == http.ErrNotMultipart {
		if err == http.ErrNotMultipart {
			if err := r.ParseForm(); err != nil {
				return apperrors.ValidationError("Invalid form data")
			}
		}
		return nil
	}
	return apperrors.ValidationError("Invalid form data").WithCause(err)
}

func readUploads(r *http.Request) ([]service.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}

	headers := r.MultipartForm.File["images"]
	uploads := make([]service.Upload, 0, len(headers))
	for _, fh := range headers {
		data, err := readUpload(fh)
		if err != nil {
			return nil, apperrors.ValidationError("Failed to read uploaded file").WithCause(err)
		}
		uploads = append(uploads, service.Upload{Filename: fh.Filename, Data: data})
	}
	return uploads, nil
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func parseRemoveIDs(r *http.Request) []int64 {
	values := r.Form["remove_image"]
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Debug().Str("value", v).Msg("ignoring malformed image id")
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// GET /api/prescriptions
func (h *PrescriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.prescriptions.List(r.Context(), currentUserID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"prescriptions": views})
}

// POST /api/prescriptions
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := parseRecordForm(r); err != nil {
		writeError(w, err)
		return
	}
	uploads, err := readUploads(r)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.prescriptions.Create(r.Context(), currentUserID(r), formFields(r), uploads)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message":      msgPrescriptionSaved,
		"prescription": view,
	})
}

// GET /api/prescriptions/{id}
func (h *PrescriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "Prescription")
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.prescriptions.Get(r.Context(), currentUserID(r), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// PUT /api/prescriptions/{id}
func (h *PrescriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "Prescription")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := parseRecordForm(r); err != nil {
		writeError(w, err)
		return
	}
	uploads, err := readUploads(r)
	if err != nil {
		writeError(w, err)
		return
	}

	view, err := h.prescriptions.Update(r.Context(), currentUserID(r), id, formFields(r), uploads, parseRemoveIDs(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":      msgPrescriptionUpdated,
		"prescription": view,
	})
}

// DELETE /api/prescriptions/{id}
func (h *PrescriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "Prescription")
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.prescriptions.Delete(r.Context(), currentUserID(r), id); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, msgPrescriptionDeleted)
}

// GET /api/images/{id}
func (h *PrescriptionHandler) ServeImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "Image")
	if err != nil {
		writeError(w, err)
		return
	}

	img, err := h.prescriptions.ServeImage(r.Context(), currentUserID(r), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Content-Disposition", "inline")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		log.Warn().Err(err).Int64("image_id", id).Msg("failed to write image response")
	}
}

// GET /api/search?q=&date_from=&date_to=
func (h *PrescriptionHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results, err := h.prescriptions.Search(r.Context(), currentUserID(r), service.SearchQuery{
		Query:    q.Get("q"),
		DateFrom: q.Get("date_from"),
		DateTo:   q.Get("date_to"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// GET /api/ping
// The session middleware has already refreshed last activity.
func (h *PrescriptionHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
