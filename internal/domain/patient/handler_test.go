package patient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carevault/carevault/internal/platform/audit"
)

type memRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*Patient
}

func newMemRepo() *memRepo {
	return &memRepo{patients: make(map[uuid.UUID]*Patient)}
}

func (r *memRepo) Create(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.patients {
		if existing.MRN == p.MRN {
			return ErrDuplicate
		}
	}
	p.Active = true
	cp := *p
	r.patients[p.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memRepo) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Patient
	for _, p := range r.patients {
		if p.Active {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (r *memRepo) Update(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.patients[p.ID]
	if !ok {
		return ErrNotFound
	}
	cp := *p
	cp.MRN, cp.Active = existing.MRN, existing.Active
	r.patients[p.ID] = &cp
	return nil
}

func (r *memRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return ErrNotFound
	}
	p.Active = false
	return nil
}

func TestUpdateRecordsValueSnapshots(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	store := audit.NewRepoMem()
	writer := audit.NewWriter(store, zerolog.Nop(), 16, time.Second)
	h := NewHandler(svc, writer)

	p := &Patient{MRN: "MRN-1", FirstName: "Ada", LastName: "L", Phone: "555-0100"}
	if err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("create: %v", err)
	}

	e := echo.New()
	body := `{"first_name":"Ada","last_name":"Lovelace","phone":"555-0199"}`
	req := httptest.NewRequest(http.MethodPut, "/patients/"+p.ID.String(), strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.Update(c); err != nil {
		t.Fatalf("update: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if handled, _ := c.Get(audit.HandledContextKey).(bool); !handled {
		t.Error("update did not flag the request as audited")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := writer.Close(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	entries := store.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.EventType != audit.EventUpdate || !entry.PHIAccessed {
		t.Errorf("entry = %s phi=%v, want update with phi", entry.EventType, entry.PHIAccessed)
	}
	wantFields := []string{"name", "phone"}
	if !reflect.DeepEqual(entry.PHIFields, wantFields) {
		t.Errorf("phi fields = %v, want %v", entry.PHIFields, wantFields)
	}
	if entry.OldValues["phone"] != "555-0100" || entry.NewValues["phone"] != "555-0199" {
		t.Errorf("value snapshots: old=%v new=%v", entry.OldValues, entry.NewValues)
	}
	if entry.ResourceID == nil || *entry.ResourceID != p.ID.String() {
		t.Error("resource id missing from update entry")
	}
}

func TestUpdateUnknownPatient(t *testing.T) {
	h := NewHandler(NewService(newMemRepo()), audit.NewWriter(audit.NewRepoMem(), zerolog.Nop(), 16, time.Second))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPut, "/patients/x", strings.NewReader(`{"first_name":"A","last_name":"B"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	err := h.Update(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("err = %v, want 404", err)
	}
}

func TestCreateDuplicateMRN(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.Create(ctx, &Patient{MRN: "MRN-1", FirstName: "A", LastName: "B"}); err != nil {
		t.Fatal(err)
	}
	err := svc.Create(ctx, &Patient{MRN: "MRN-1", FirstName: "C", LastName: "D"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestServiceValidation(t *testing.T) {
	svc := NewService(newMemRepo())
	ctx := context.Background()

	if err := svc.Create(ctx, &Patient{FirstName: "A", LastName: "B"}); err == nil {
		t.Error("missing mrn accepted")
	}
	if err := svc.Create(ctx, &Patient{MRN: "M", LastName: "B"}); err == nil {
		t.Error("missing first name accepted")
	}
}
