package actor

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no actor matches the lookup.
	ErrNotFound = errors.New("actor not found")
	// ErrDuplicate is returned when a create collides on a unique column.
	ErrDuplicate = errors.New("actor already exists")
)

// Repository is the actor directory. The lockout counter operations are
// atomic per actor: a burst of concurrent failed logins must converge to a
// bounded counter without lost updates.
type Repository interface {
	Create(ctx context.Context, a *Actor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Actor, error)
	GetByEmail(ctx context.Context, email string) (*Actor, error)
	Update(ctx context.Context, a *Actor) error
	Deactivate(ctx context.Context, id uuid.UUID) error

	// RecordFailure increments the failed-authentication counter and, when
	// the counter reaches threshold, transitions the actor to locked until
	// now+lockFor. The read-modify-write is serialized per actor. It returns
	// the post-increment counter and the lockout expiry, if any.
	RecordFailure(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration) (int, *time.Time, error)

	// ResetFailures zeroes the counter and clears any lockout. Called on
	// successful authentication and on credential change.
	ResetFailures(ctx context.Context, id uuid.UUID) error

	// SetPassword stores a new password hash and bumps the credential-version
	// timestamp, implicitly invalidating tokens issued before it.
	SetPassword(ctx context.Context, id uuid.UUID, hash string, changedAt time.Time) error

	// SetTrainingCompleted marks compliance training as completed at the
	// given time.
	SetTrainingCompleted(ctx context.Context, id uuid.UUID, at time.Time) error
}
