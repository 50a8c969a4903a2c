package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RepoMem is an in-memory audit store for tests and development. It
// implements the same Store and Reader contracts as RepoPG.
type RepoMem struct {
	mu      sync.RWMutex
	entries []*Entry
}

func NewRepoMem() *RepoMem {
	return &RepoMem{entries: make([]*Entry, 0)}
}

func (r *RepoMem) Insert(_ context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	cp.CreatedAt = time.Now().UTC()
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *RepoMem) InsertBatch(ctx context.Context, entries []*Entry) error {
	for _, e := range entries {
		if err := r.Insert(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *RepoMem) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ErrNotFound
}

func matches(e *Entry, f Filter) bool {
	if f.From != nil && e.OccurredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && e.OccurredAt.After(*f.To) {
		return false
	}
	if f.ActorID != nil && (e.ActorID == nil || *e.ActorID != *f.ActorID) {
		return false
	}
	if len(f.EventTypes) > 0 {
		found := false
		for _, et := range f.EventTypes {
			if e.EventType == et {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.PHIAccessed != nil && e.PHIAccessed != *f.PHIAccessed {
		return false
	}
	return true
}

func (r *RepoMem) Search(_ context.Context, f Filter) ([]*Entry, int, error) {
	f.Normalize()

	r.mu.RLock()
	var filtered []*Entry
	for _, e := range r.entries {
		if matches(e, f) {
			filtered = append(filtered, e)
		}
	}
	r.mu.RUnlock()

	// Newest first, matching the SQL ordering.
	for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
		filtered[i], filtered[j] = filtered[j], filtered[i]
	}

	total := len(filtered)
	start := f.Offset
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return filtered[start:end], total, nil
}

func (r *RepoMem) CountByEventType(_ context.Context, from, to *time.Time) (map[string]int, error) {
	return r.countBy(from, to, func(e *Entry) string { return string(e.EventType) })
}

func (r *RepoMem) CountBySeverity(_ context.Context, from, to *time.Time) (map[string]int, error) {
	return r.countBy(from, to, func(e *Entry) string { return string(e.Severity) })
}

func (r *RepoMem) countBy(from, to *time.Time, key func(*Entry) string) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range r.entries {
		if from != nil && e.OccurredAt.Before(*from) {
			continue
		}
		if to != nil && e.OccurredAt.After(*to) {
			continue
		}
		counts[key(e)]++
	}
	return counts, nil
}

// All returns a snapshot of every stored entry, for test assertions.
func (r *RepoMem) All() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
