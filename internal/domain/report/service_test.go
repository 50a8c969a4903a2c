package report

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/carevault/carevault/internal/platform/audit"
)

type memRepo struct {
	mu      sync.Mutex
	reports map[uuid.UUID]*Report
}

func newMemRepo() *memRepo {
	return &memRepo{reports: make(map[uuid.UUID]*Report)}
}

func (r *memRepo) Create(_ context.Context, rep *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rep
	r.reports[rep.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id uuid.UUID) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rep
	return &cp, nil
}

func (r *memRepo) List(_ context.Context, limit, offset int) ([]*Report, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Report
	for _, rep := range r.reports {
		cp := *rep
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func seededTrail(t *testing.T) *audit.RepoMem {
	t.Helper()
	trail := audit.NewRepoMem()
	actorID := uuid.New()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	seed := []audit.Entry{
		{EventType: audit.EventLogin, ResourceType: audit.ResourceAuth, Severity: audit.SeverityMedium, Outcome: audit.OutcomeSuccess, ActorID: &actorID},
		{EventType: audit.EventFailedLogin, ResourceType: audit.ResourceAuth, Severity: audit.SeverityHigh, Outcome: audit.OutcomeFailure},
		{EventType: audit.EventRead, ResourceType: audit.ResourcePatient, Severity: audit.SeverityHigh, Outcome: audit.OutcomeSuccess, PHIAccessed: true, PHIFields: []string{"name", "date_of_birth"}, ActorID: &actorID},
		{EventType: audit.EventRead, ResourceType: audit.ResourcePatient, Severity: audit.SeverityHigh, Outcome: audit.OutcomeSuccess, PHIAccessed: true, PHIFields: []string{"name"}, ActorID: &actorID},
	}
	for i := range seed {
		seed[i].ID = uuid.New()
		seed[i].Action = "seeded"
		seed[i].OccurredAt = base.Add(time.Duration(i) * time.Minute)
		if err := trail.Insert(context.Background(), &seed[i]); err != nil {
			t.Fatal(err)
		}
	}
	return trail
}

func TestGenerateComplianceSummary(t *testing.T) {
	svc := NewService(newMemRepo(), seededTrail(t))

	rep, err := svc.Generate(context.Background(), TypeComplianceSummary, "", nil, nil, uuid.New())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if rep.Title != string(TypeComplianceSummary) {
		t.Errorf("default title = %q", rep.Title)
	}
	if rep.GeneratedAt == nil {
		t.Error("generated_at not set")
	}

	byType, ok := rep.Result["by_event_type"].(map[string]int)
	if !ok {
		t.Fatalf("result shape: %#v", rep.Result)
	}
	if byType[string(audit.EventRead)] != 2 || byType[string(audit.EventFailedLogin)] != 1 {
		t.Errorf("by_event_type = %v", byType)
	}
}

func TestGeneratePHIAccessReport(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, seededTrail(t))

	rep, err := svc.Generate(context.Background(), TypePHIAccess, "phi report", nil, nil, uuid.New())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if rep.Result["total_accesses"] != 2 {
		t.Errorf("total_accesses = %v, want 2", rep.Result["total_accesses"])
	}
	byField, ok := rep.Result["by_field"].(map[string]int)
	if !ok {
		t.Fatalf("result shape: %#v", rep.Result)
	}
	if byField["name"] != 2 || byField["date_of_birth"] != 1 {
		t.Errorf("by_field = %v", byField)
	}

	// The report is persisted and retrievable.
	got, err := svc.Get(context.Background(), rep.ID)
	if err != nil {
		t.Fatalf("get persisted report: %v", err)
	}
	if got.Title != "phi report" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestGenerateSecurityActivityReport(t *testing.T) {
	svc := NewService(newMemRepo(), seededTrail(t))

	rep, err := svc.Generate(context.Background(), TypeSecurityActivity, "", nil, nil, uuid.New())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if rep.Result["total_events"] != 2 {
		t.Errorf("total_events = %v, want 2", rep.Result["total_events"])
	}
	if rep.Result["failures"] != 1 {
		t.Errorf("failures = %v, want 1", rep.Result["failures"])
	}
}

func TestGenerateRejectsUnknownType(t *testing.T) {
	svc := NewService(newMemRepo(), seededTrail(t))
	if _, err := svc.Generate(context.Background(), "horoscope", "", nil, nil, uuid.New()); err == nil {
		t.Error("unknown report type accepted")
	}
}

func TestGenerateWindowIsRecordedInParameters(t *testing.T) {
	svc := NewService(newMemRepo(), seededTrail(t))
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)

	rep, err := svc.Generate(context.Background(), TypeComplianceSummary, "", &from, &to, uuid.New())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if rep.Parameters["from"] != from.Format(time.RFC3339) || rep.Parameters["to"] != to.Format(time.RFC3339) {
		t.Errorf("parameters = %v", rep.Parameters)
	}
}
