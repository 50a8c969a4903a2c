package document

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("document not found")

// Repository is the document metadata store.
type Repository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Document, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// BlobStore holds document bytes keyed by an opaque storage key.
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader) (int64, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
