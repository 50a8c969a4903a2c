package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func draftEntry() Entry {
	return Entry{
		Action:       "GET /patients/1",
		ResourceType: ResourcePatient,
		EventType:    EventRead,
		Severity:     SeverityHigh,
		Outcome:      OutcomeSuccess,
		PHIAccessed:  true,
		PHIFields:    []string{"name"},
	}
}

func TestWriterEnqueuePersists(t *testing.T) {
	store := NewRepoMem()
	w := NewWriter(store, zerolog.Nop(), 16, time.Second)

	e := draftEntry()
	e.NewValues = map[string]any{"password": "hunter2", "name": "A"}
	w.Enqueue(e)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	entries := store.All()
	if len(entries) != 1 {
		t.Fatalf("stored %d entries, want 1", len(entries))
	}
	got := entries[0]
	if got.ID == uuid.Nil {
		t.Error("entry id was not assigned")
	}
	if got.OccurredAt.IsZero() {
		t.Error("occurred_at was not assigned")
	}
	if got.NewValues["password"] != "[REDACTED]" {
		t.Errorf("secret reached the store: %v", got.NewValues["password"])
	}
	if w.Written() != 1 {
		t.Errorf("written = %d, want 1", w.Written())
	}
}

func TestWriterRejectsInvalidEntry(t *testing.T) {
	store := NewRepoMem()
	w := NewWriter(store, zerolog.Nop(), 16, time.Second)

	e := draftEntry()
	e.EventType = "nonsense"
	w.Enqueue(e)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(store.All()) != 0 {
		t.Error("invalid entry reached the store")
	}
	if w.Failures() != 1 {
		t.Errorf("failures = %d, want 1", w.Failures())
	}
}

type failingStore struct{}

func (failingStore) Insert(context.Context, *Entry) error {
	return errors.New("disk on fire")
}

func (failingStore) InsertBatch(context.Context, []*Entry) error {
	return errors.New("disk on fire")
}

func TestWriterSurvivesStoreFailure(t *testing.T) {
	w := NewWriter(failingStore{}, zerolog.Nop(), 16, time.Second)

	w.Enqueue(draftEntry())
	w.Enqueue(draftEntry())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	if w.Failures() != 2 {
		t.Errorf("failures = %d, want 2", w.Failures())
	}
	if w.Written() != 0 {
		t.Errorf("written = %d, want 0", w.Written())
	}
}

type blockingStore struct {
	inner   *RepoMem
	started chan struct{}
	release chan struct{}
}

func (s *blockingStore) Insert(ctx context.Context, e *Entry) error {
	s.started <- struct{}{}
	<-s.release
	return s.inner.Insert(ctx, e)
}

func (s *blockingStore) InsertBatch(ctx context.Context, entries []*Entry) error {
	return s.inner.InsertBatch(ctx, entries)
}

func TestWriterDropsOnFullQueue(t *testing.T) {
	store := &blockingStore{
		inner:   NewRepoMem(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	w := NewWriter(store, zerolog.Nop(), 1, time.Second)

	// First entry occupies the worker inside Insert, leaving the queue empty.
	w.Enqueue(draftEntry())
	<-store.started

	// Second fills the single queue slot, third has nowhere to go.
	w.Enqueue(draftEntry())
	w.Enqueue(draftEntry())

	if w.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", w.Dropped())
	}

	close(store.release)
	go func() {
		for range store.started {
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	close(store.started)

	if w.Written() != 2 {
		t.Errorf("written = %d, want 2", w.Written())
	}
}

func TestWriterEnqueueAfterCloseIsSafe(t *testing.T) {
	store := NewRepoMem()
	w := NewWriter(store, zerolog.Nop(), 16, time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A straggler racing shutdown must be dropped, never panic on the
	// closed queue.
	w.Enqueue(draftEntry())
	if err := w.CreateManual(draftEntry()); err == nil {
		t.Error("expected error from manual write after close")
	}

	if w.Dropped() != 2 {
		t.Errorf("dropped = %d, want 2", w.Dropped())
	}
	if len(store.All()) != 0 {
		t.Errorf("stored %d entries, want 0", len(store.All()))
	}
	if err := w.Close(ctx); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestWriterConcurrentEnqueueDuringClose(t *testing.T) {
	store := NewRepoMem()
	w := NewWriter(store, zerolog.Nop(), 64, time.Second)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			w.Enqueue(draftEntry())
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	<-done
}

func TestWriterCreateManual(t *testing.T) {
	store := NewRepoMem()
	w := NewWriter(store, zerolog.Nop(), 16, time.Second)

	bad := draftEntry()
	bad.Outcome = "shrug"
	if err := w.CreateManual(bad); err == nil {
		t.Error("expected validation error for invalid manual entry")
	}

	good := draftEntry()
	good.Outcome = OutcomeWarning
	if err := w.CreateManual(good); err != nil {
		t.Fatalf("manual entry rejected: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}

	entries := store.All()
	if len(entries) != 1 {
		t.Fatalf("stored %d entries, want 1", len(entries))
	}
	if entries[0].Outcome != OutcomeWarning {
		t.Errorf("outcome = %q, want warning", entries[0].Outcome)
	}
}

func TestWriterWriteBatch(t *testing.T) {
	store := NewRepoMem()
	w := NewWriter(store, zerolog.Nop(), 16, time.Second)
	defer w.Close(context.Background())

	batch := []Entry{draftEntry(), draftEntry(), draftEntry()}
	if err := w.WriteBatch(context.Background(), batch); err != nil {
		t.Fatalf("batch write: %v", err)
	}
	if len(store.All()) != 3 {
		t.Fatalf("stored %d entries, want 3", len(store.All()))
	}

	bad := draftEntry()
	bad.Severity = "apocalyptic"
	if err := w.WriteBatch(context.Background(), []Entry{draftEntry(), bad}); err == nil {
		t.Error("expected batch validation error")
	}
	if len(store.All()) != 3 {
		t.Error("invalid batch was partially persisted")
	}
}
