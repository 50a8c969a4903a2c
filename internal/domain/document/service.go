package document

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
)

type Service struct {
	repo  Repository
	blobs BlobStore
}

func NewService(repo Repository, blobs BlobStore) *Service {
	return &Service{repo: repo, blobs: blobs}
}

// Upload stores the file bytes first and the metadata row second, so a
// metadata failure cannot leave a row pointing at nothing.
func (s *Service) Upload(ctx context.Context, patientID uuid.UUID, title, contentType string, uploadedBy uuid.UUID, r io.Reader) (*Document, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	d := &Document{
		ID:          uuid.New(),
		PatientID:   patientID,
		Title:       title,
		ContentType: contentType,
		StorageKey:  uuid.NewString(),
		UploadedBy:  &uploadedBy,
	}

	size, err := s.blobs.Put(ctx, d.StorageKey, r)
	if err != nil {
		return nil, fmt.Errorf("store document bytes: %w", err)
	}
	d.SizeBytes = size

	if err := s.repo.Create(ctx, d); err != nil {
		s.blobs.Delete(ctx, d.StorageKey)
		return nil, err
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.repo.GetByID(ctx, id)
}

// Open returns the document metadata and a reader over its bytes. The caller
// closes the reader.
func (s *Service) Open(ctx context.Context, id uuid.UUID) (*Document, io.ReadCloser, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.blobs.Get(ctx, d.StorageKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open document bytes: %w", err)
	}
	return d, rc, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Document, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// Delete removes the metadata row and then the bytes. A blob left behind by
// a crash between the two steps is unreferenced and harmless.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return s.blobs.Delete(ctx, d.StorageKey)
}
