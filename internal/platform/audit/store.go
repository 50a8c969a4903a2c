package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an audit entry does not exist.
var ErrNotFound = errors.New("audit entry not found")

// Filter holds the read-side filter and pagination parameters.
type Filter struct {
	From         *time.Time
	To           *time.Time
	ActorID      *uuid.UUID
	EventTypes   []EventType
	Severity     Severity
	Outcome      Outcome
	ResourceType ResourceType
	PHIAccessed  *bool
	Limit        int
	Offset       int
}

// Normalize applies pagination defaults and caps. Both store implementations
// call it, so passing a zero-valued Filter is always safe.
func (f *Filter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	if f.Limit > 1000 {
		f.Limit = 1000
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// Reader provides read-only access to the audit store for the query and
// export service. Read operations never write further audit entries.
type Reader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	Search(ctx context.Context, f Filter) ([]*Entry, int, error)
	CountByEventType(ctx context.Context, from, to *time.Time) (map[string]int, error)
	CountBySeverity(ctx context.Context, from, to *time.Time) (map[string]int, error)
}
