package model

import "time"

// Prescription is the stored row. Text columns hold codec ciphertext;
// a nil slice is the stored form of an absent value.
type Prescription struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	PatientName []byte    `db:"patient_name"`
	Medication  []byte    `db:"medication"`
	Dosage      []byte    `db:"dosage"`
	Notes       []byte    `db:"notes"`
	ImagePath   *string   `db:"image_path"`
	CreatedAt   time.Time `db:"created_at"`
}

type PrescriptionImage struct {
	ID             int64     `db:"id" json:"id"`
	PrescriptionID int64     `db:"prescription_id" json:"prescriptionId"`
	Filename       string    `db:"filename" json:"-"`
	OriginalExt    string    `db:"original_ext" json:"ext"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// OwnedImage is an image row joined with its parent's owner.
type OwnedImage struct {
	PrescriptionImage
	UserID int64 `db:"user_id"`
}

type CreatePrescriptionParams struct {
	UserID      int64
	PatientName []byte
	Medication  []byte
	Dosage      []byte
	Notes       []byte
}

type UpdatePrescriptionParams struct {
	ID          int64
	UserID      int64
	PatientName []byte
	Medication  []byte
	Dosage      []byte
	Notes       []byte
}

type CreateImageParams struct {
	PrescriptionID int64
	Filename       string
	OriginalExt    string
}

// PrescriptionView is a decrypted prescription as returned to its owner.
type PrescriptionView struct {
	ID          int64               `json:"id"`
	PatientName string              `json:"patientName"`
	Medication  string              `json:"medication"`
	Dosage      string              `json:"dosage"`
	Notes       string              `json:"notes,omitempty"`
	ImagePath   *string             `json:"imagePath,omitempty"`
	Images      []PrescriptionImage `json:"images"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// PrescriptionFields are the plaintext inputs of create and update.
type PrescriptionFields struct {
	PatientName string
	Medication  string
	Dosage      string
	Notes       string
}

// SearchResult is one row of the search JSON payload.
type SearchResult struct {
	ID          int64          `json:"id"`
	PatientName string         `json:"patient_name"`
	Medication  string         `json:"medication"`
	Dosage      string         `json:"dosage"`
	Notes       string         `json:"notes"`
	Images      []ImageSummary `json:"images"`
	CreatedAt   string         `json:"created_at"`
}

type ImageSummary struct {
	ID  int64  `json:"id"`
	Ext string `json:"ext"`
}
