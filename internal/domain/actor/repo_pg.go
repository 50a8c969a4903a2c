package actor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

const actorCols = `id, email, name, password_hash, role, access_tier,
	training_completed, training_completed_at, failed_attempts, locked_until,
	credential_changed_at, active, created_at, updated_at`

func scanActor(row pgx.Row) (*Actor, error) {
	var a Actor
	err := row.Scan(
		&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.Role, &a.AccessTier,
		&a.TrainingCompleted, &a.TrainingCompletedAt, &a.FailedAttempts, &a.LockedUntil,
		&a.CredentialChangedAt, &a.Active, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *RepoPG) Create(ctx context.Context, a *Actor) error {
	const q = `
		INSERT INTO actors (id, email, name, password_hash, role, access_tier, credential_changed_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, q,
		a.ID, a.Email, a.Name, a.PasswordHash, a.Role, a.AccessTier, a.CredentialChangedAt,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicate
		}
		return fmt.Errorf("create actor: %w", err)
	}
	a.Active = true
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Actor, error) {
	q := fmt.Sprintf("SELECT %s FROM actors WHERE id = $1", actorCols)
	return scanActor(r.pool.QueryRow(ctx, q, id))
}

func (r *RepoPG) GetByEmail(ctx context.Context, email string) (*Actor, error) {
	q := fmt.Sprintf("SELECT %s FROM actors WHERE LOWER(email) = LOWER($1)", actorCols)
	return scanActor(r.pool.QueryRow(ctx, q, email))
}

func (r *RepoPG) Update(ctx context.Context, a *Actor) error {
	const q = `
		UPDATE actors
		SET name = $2, role = $3, access_tier = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.pool.QueryRow(ctx, q, a.ID, a.Name, a.Role, a.AccessTier).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update actor: %w", err)
	}
	return nil
}

func (r *RepoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE actors SET active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate actor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFailure increments the counter and applies the lockout in a single
// statement, so concurrent failures against the same actor serialize on the
// row and cannot lose updates.
func (r *RepoPG) RecordFailure(ctx context.Context, id uuid.UUID, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	const q = `
		UPDATE actors
		SET failed_attempts = failed_attempts + 1,
		    locked_until = CASE
		        WHEN failed_attempts + 1 >= $2 THEN NOW() + make_interval(secs => $3)
		        ELSE locked_until
		    END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING failed_attempts, locked_until`

	var attempts int
	var lockedUntil *time.Time
	err := r.pool.QueryRow(ctx, q, id, threshold, lockFor.Seconds()).Scan(&attempts, &lockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil, ErrNotFound
	}
	if err != nil {
		return 0, nil, fmt.Errorf("record auth failure: %w", err)
	}
	return attempts, lockedUntil, nil
}

func (r *RepoPG) ResetFailures(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE actors SET failed_attempts = 0, locked_until = NULL, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("reset auth failures: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) SetPassword(ctx context.Context, id uuid.UUID, hash string, changedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE actors
		SET password_hash = $2, credential_changed_at = $3,
		    failed_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1`, id, hash, changedAt)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepoPG) SetTrainingCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE actors
		SET training_completed = TRUE, training_completed_at = $2, updated_at = NOW()
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("set training completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
