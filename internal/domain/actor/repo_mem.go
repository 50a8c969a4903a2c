package actor

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RepoMem is an in-memory actor directory for tests. A single mutex
// serializes the lockout counter mutations, mirroring the per-row
// serialization the SQL implementation gets from the database.
type RepoMem struct {
	mu     sync.Mutex
	actors map[uuid.UUID]*Actor
}

func NewRepoMem() *RepoMem {
	return &RepoMem{actors: make(map[uuid.UUID]*Actor)}
}

func (r *RepoMem) Create(_ context.Context, a *Actor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actors[a.ID]; ok {
		return ErrDuplicate
	}
	for _, existing := range r.actors {
		if strings.EqualFold(existing.Email, a.Email) {
			return ErrDuplicate
		}
	}
	now := time.Now().UTC()
	a.Active = true
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	r.actors[a.ID] = &cp
	return nil
}

func (r *RepoMem) GetByID(_ context.Context, id uuid.UUID) (*Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *RepoMem) GetByEmail(_ context.Context, email string) (*Actor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.actors {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *RepoMem) Update(_ context.Context, a *Actor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.actors[a.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Name = a.Name
	existing.Role = a.Role
	existing.AccessTier = a.AccessTier
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *RepoMem) Deactivate(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[id]
	if !ok {
		return ErrNotFound
	}
	a.Active = false
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *RepoMem) RecordFailure(_ context.Context, id uuid.UUID, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[id]
	if !ok {
		return 0, nil, ErrNotFound
	}
	a.FailedAttempts++
	if a.FailedAttempts >= threshold {
		until := time.Now().UTC().Add(lockFor)
		a.LockedUntil = &until
	}
	a.UpdatedAt = time.Now().UTC()
	var lockedUntil *time.Time
	if a.LockedUntil != nil {
		cp := *a.LockedUntil
		lockedUntil = &cp
	}
	return a.FailedAttempts, lockedUntil, nil
}

func (r *RepoMem) ResetFailures(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[id]
	if !ok {
		return ErrNotFound
	}
	a.FailedAttempts = 0
	a.LockedUntil = nil
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *RepoMem) SetPassword(_ context.Context, id uuid.UUID, hash string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = hash
	a.CredentialChangedAt = changedAt
	a.FailedAttempts = 0
	a.LockedUntil = nil
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *RepoMem) SetTrainingCompleted(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.actors[id]
	if !ok {
		return ErrNotFound
	}
	a.TrainingCompleted = true
	completedAt := at
	a.TrainingCompletedAt = &completedAt
	a.UpdatedAt = time.Now().UTC()
	return nil
}
