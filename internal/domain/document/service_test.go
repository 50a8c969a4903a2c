package document

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

type memRepo struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*Document
	fail bool
}

func newMemRepo() *memRepo {
	return &memRepo{docs: make(map[uuid.UUID]*Document)}
}

func (r *memRepo) Create(_ context.Context, d *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("metadata store unavailable")
	}
	cp := *d
	r.docs[d.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Document
	for _, d := range r.docs {
		if d.PatientID == patientID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (r *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return ErrNotFound
	}
	delete(r.docs, id)
	return nil
}

func newTestService(t *testing.T) (*Service, *memRepo) {
	t.Helper()
	blobs, err := NewDiskBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	repo := newMemRepo()
	return NewService(repo, blobs), repo
}

func TestUploadAndDownloadRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	patientID, uploader := uuid.New(), uuid.New()

	d, err := svc.Upload(ctx, patientID, "lab-results.pdf", "application/pdf", uploader, strings.NewReader("pdf bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if d.SizeBytes != int64(len("pdf bytes")) {
		t.Errorf("size = %d, want %d", d.SizeBytes, len("pdf bytes"))
	}
	if d.UploadedBy == nil || *d.UploadedBy != uploader {
		t.Error("uploader not recorded")
	}

	got, rc, err := svc.Open(ctx, d.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	if got.Title != "lab-results.pdf" {
		t.Errorf("title = %q", got.Title)
	}
	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "pdf bytes" {
		t.Errorf("content = %q, want original bytes", body)
	}
}

func TestUploadRollsBackBlobOnMetadataFailure(t *testing.T) {
	svc, repo := newTestService(t)
	repo.fail = true

	d, err := svc.Upload(context.Background(), uuid.New(), "x", "", uuid.New(), strings.NewReader("data"))
	if err == nil {
		t.Fatalf("upload succeeded despite metadata failure: %+v", d)
	}
}

func TestUploadRequiresTitle(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Upload(context.Background(), uuid.New(), "", "", uuid.New(), strings.NewReader("x")); err == nil {
		t.Error("empty title accepted")
	}
}

func TestDeleteRemovesBytes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	d, err := svc.Upload(ctx, uuid.New(), "note.txt", "text/plain", uuid.New(), strings.NewReader("bytes"))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := svc.Delete(ctx, d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, _, err := svc.Open(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("open after delete err = %v, want ErrNotFound", err)
	}
	if err := svc.Delete(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete err = %v, want ErrNotFound", err)
	}
}

func TestListByPatient(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	patientA, patientB := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		if _, err := svc.Upload(ctx, patientA, "a.txt", "", uuid.New(), strings.NewReader("x")); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Upload(ctx, patientB, "b.txt", "", uuid.New(), strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}

	_, total, err := svc.ListByPatient(ctx, patientA, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
}
