package actor

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of principal roles.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleProvider      Role = "provider"
	RoleAssistant     Role = "assistant"
)

// ValidRole reports whether r is a member of the closed role set.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdministrator, RoleProvider, RoleAssistant:
		return true
	}
	return false
}

// AccessTier is an ordered authorization level gating operations beyond role
// membership: readonly < limited < full.
type AccessTier string

const (
	TierReadonly AccessTier = "readonly"
	TierLimited  AccessTier = "limited"
	TierFull     AccessTier = "full"
)

// ValidTier reports whether t is a member of the tier order.
func ValidTier(t AccessTier) bool {
	switch t {
	case TierReadonly, TierLimited, TierFull:
		return true
	}
	return false
}

func tierRank(t AccessTier) int {
	switch t {
	case TierReadonly:
		return 0
	case TierLimited:
		return 1
	case TierFull:
		return 2
	default:
		return -1
	}
}

// Covers reports whether t satisfies an operation gated at min under the
// total order readonly < limited < full.
func (t AccessTier) Covers(min AccessTier) bool {
	return tierRank(t) >= tierRank(min)
}

// Actor is an authenticated principal. Actors are soft-deactivated, never
// physically deleted: audit retention requires the identity to remain
// resolvable.
type Actor struct {
	ID                  uuid.UUID  `json:"id"`
	Email               string     `json:"email"`
	Name                string     `json:"name"`
	PasswordHash        string     `json:"-"`
	Role                Role       `json:"role"`
	AccessTier          AccessTier `json:"access_tier"`
	TrainingCompleted   bool       `json:"training_completed"`
	TrainingCompletedAt *time.Time `json:"training_completed_at,omitempty"`
	FailedAttempts      int        `json:"-"`
	LockedUntil         *time.Time `json:"-"`
	CredentialChangedAt time.Time  `json:"-"`
	Active              bool       `json:"active"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Locked reports whether authentication is currently suspended for the actor.
func (a *Actor) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}
