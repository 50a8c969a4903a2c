package document

import (
	"time"

	"github.com/google/uuid"
)

// Document is clinical file metadata. The bytes live in the blob store under
// StorageKey; the row is what the audit trail and listings reference.
type Document struct {
	ID          uuid.UUID  `json:"id"`
	PatientID   uuid.UUID  `json:"patient_id"`
	Title       string     `json:"title"`
	ContentType string     `json:"content_type"`
	StorageKey  string     `json:"-"`
	SizeBytes   int64      `json:"size_bytes"`
	UploadedBy  *uuid.UUID `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
