package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/carevault/carevault/internal/platform/metrics"
)

var (
	// ErrInvalidCredentials covers unknown accounts, deactivated accounts,
	// and wrong passwords alike, so responses do not enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrWeakPassword is returned when a password fails the configured policy.
	ErrWeakPassword = errors.New("password does not meet the minimum length policy")
	// ErrIdentifierExhausted is returned when identifier generation keeps
	// colliding. Registration retries a fixed number of times, then fails
	// explicitly instead of recursing.
	ErrIdentifierExhausted = errors.New("could not allocate a unique actor identifier")
)

// LockedError reports an authentication attempt against a locked account.
// The password is never evaluated while the lock holds.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// maxIDAttempts bounds identifier allocation retries on collision.
const maxIDAttempts = 3

// dummyHash is compared against the supplied password whenever the account
// is unknown, deactivated, or locked, so response timing does not reveal
// account state.
var dummyHash = func() []byte {
	h, err := bcrypt.GenerateFromPassword([]byte("carevault-dummy-credential"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return h
}()

// Service owns actor lifecycle and the authentication/lockout state machine.
type Service struct {
	repo              Repository
	lockoutThreshold  int
	lockoutDuration   time.Duration
	minPasswordLength int
	now               func() time.Time
}

func NewService(repo Repository, lockoutThreshold int, lockoutDuration time.Duration, minPasswordLength int) *Service {
	return &Service{
		repo:              repo,
		lockoutThreshold:  lockoutThreshold,
		lockoutDuration:   lockoutDuration,
		minPasswordLength: minPasswordLength,
		now:               time.Now,
	}
}

// Register creates a new actor with a hashed password. Identifier allocation
// retries on collision a fixed number of times before failing with
// ErrIdentifierExhausted.
func (s *Service) Register(ctx context.Context, email, name, password string, role Role, tier AccessTier) (*Actor, error) {
	if email == "" || name == "" {
		return nil, fmt.Errorf("email and name are required")
	}
	if !ValidRole(role) {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	if !ValidTier(tier) {
		return nil, fmt.Errorf("invalid access tier %q", tier)
	}
	if len(password) < s.minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	a := &Actor{
		Email:               email,
		Name:                name,
		PasswordHash:        string(hash),
		Role:                role,
		AccessTier:          tier,
		CredentialChangedAt: s.now().UTC(),
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		a.ID = uuid.New()
		err = s.repo.Create(ctx, a)
		if err == nil {
			return a, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return nil, err
		}
		// A duplicate email is not an ID collision; retrying cannot help.
		if _, lookupErr := s.repo.GetByEmail(ctx, email); lookupErr == nil {
			return nil, ErrDuplicate
		}
	}
	return nil, ErrIdentifierExhausted
}

// Authenticate runs the password check behind the lockout state machine:
// a locked account rejects without evaluating the password, a failed check
// increments the serialized counter (locking at the threshold), and a
// successful check resets the counter to zero. Every rejection path still
// performs one bcrypt comparison so timing stays uniform.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Actor, error) {
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			metrics.AuthFailures.WithLabelValues("unknown_actor").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !a.Active {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		metrics.AuthFailures.WithLabelValues("inactive_actor").Inc()
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if a.Locked(now) {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		metrics.AuthFailures.WithLabelValues("locked").Inc()
		return nil, &LockedError{Until: *a.LockedUntil}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		attempts, lockedUntil, recErr := s.repo.RecordFailure(ctx, a.ID, s.lockoutThreshold, s.lockoutDuration)
		if recErr != nil {
			return nil, fmt.Errorf("record auth failure: %w", recErr)
		}
		if lockedUntil != nil && attempts == s.lockoutThreshold {
			metrics.AuthLockouts.Inc()
		}
		metrics.AuthFailures.WithLabelValues("bad_password").Inc()
		return nil, ErrInvalidCredentials
	}

	if err := s.repo.ResetFailures(ctx, a.ID); err != nil {
		return nil, fmt.Errorf("reset auth failures: %w", err)
	}
	a.FailedAttempts = 0
	a.LockedUntil = nil
	return a, nil
}

// ChangePassword verifies the current password, applies the policy to the
// new one, and bumps the credential-version timestamp so tokens issued
// before the change are rejected from now on.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, oldPassword, newPassword string) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !a.Active {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(oldPassword)); err != nil {
		metrics.AuthFailures.WithLabelValues("bad_password").Inc()
		return ErrInvalidCredentials
	}
	if len(newPassword) < s.minPasswordLength {
		return ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.SetPassword(ctx, id, string(hash), s.now().UTC())
}

// Update applies name, role, and tier changes to an existing actor.
func (s *Service) Update(ctx context.Context, a *Actor) error {
	if !ValidRole(a.Role) {
		return fmt.Errorf("invalid role %q", a.Role)
	}
	if !ValidTier(a.AccessTier) {
		return fmt.Errorf("invalid access tier %q", a.AccessTier)
	}
	return s.repo.Update(ctx, a)
}

// CompleteTraining records compliance-training completion for the actor.
func (s *Service) CompleteTraining(ctx context.Context, id uuid.UUID) error {
	return s.repo.SetTrainingCompleted(ctx, id, s.now().UTC())
}

// Deactivate soft-deactivates the actor. Tokens stop resolving immediately;
// the identity remains for audit retention.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	return s.repo.Deactivate(ctx, id)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Actor, error) {
	return s.repo.GetByID(ctx, id)
}
