package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepoPG is the PostgreSQL audit store. It implements both Store (writes,
// used only by the Writer) and Reader (query/export service).
type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

const entryCols = `id, actor_id, origin_ip, user_agent, action, resource_path, resource_id,
	resource_type, event_type, severity, outcome, phi_accessed, phi_fields,
	detail, old_values, new_values, error_message, occurred_at, duration_ms, created_at`

const insertEntrySQL = `
	INSERT INTO audit_entries (
		id, actor_id, origin_ip, user_agent, action, resource_path, resource_id,
		resource_type, event_type, severity, outcome, phi_accessed, phi_fields,
		detail, old_values, new_values, error_message, occurred_at, duration_ms
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`

func insertArgs(e *Entry) ([]any, error) {
	detail, err := marshalJSONB(e.Detail)
	if err != nil {
		return nil, fmt.Errorf("marshal detail: %w", err)
	}
	oldVals, err := marshalJSONB(e.OldValues)
	if err != nil {
		return nil, fmt.Errorf("marshal old values: %w", err)
	}
	newVals, err := marshalJSONB(e.NewValues)
	if err != nil {
		return nil, fmt.Errorf("marshal new values: %w", err)
	}
	return []any{
		e.ID, e.ActorID, e.OriginIP, e.UserAgent, e.Action, e.ResourcePath, e.ResourceID,
		e.ResourceType, e.EventType, e.Severity, e.Outcome, e.PHIAccessed, e.PHIFields,
		detail, oldVals, newVals, e.ErrorMessage, e.OccurredAt, e.Duration.Milliseconds(),
	}, nil
}

func marshalJSONB(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (r *RepoPG) Insert(ctx context.Context, e *Entry) error {
	args, err := insertArgs(e)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, insertEntrySQL, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// InsertBatch persists a sequence of entries in one round trip.
func (r *RepoPG) InsertBatch(ctx context.Context, entries []*Entry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		args, err := insertArgs(e)
		if err != nil {
			return err
		}
		batch.Queue(insertEntrySQL, args...)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range entries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert audit batch: %w", err)
		}
	}
	return nil
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	var detail, oldVals, newVals []byte
	var durationMS int64
	err := row.Scan(
		&e.ID, &e.ActorID, &e.OriginIP, &e.UserAgent, &e.Action, &e.ResourcePath, &e.ResourceID,
		&e.ResourceType, &e.EventType, &e.Severity, &e.Outcome, &e.PHIAccessed, &e.PHIFields,
		&detail, &oldVals, &newVals, &e.ErrorMessage, &e.OccurredAt, &durationMS, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Duration = time.Duration(durationMS) * time.Millisecond
	if detail != nil {
		if err := json.Unmarshal(detail, &e.Detail); err != nil {
			return nil, fmt.Errorf("unmarshal detail: %w", err)
		}
	}
	if oldVals != nil {
		if err := json.Unmarshal(oldVals, &e.OldValues); err != nil {
			return nil, fmt.Errorf("unmarshal old values: %w", err)
		}
	}
	if newVals != nil {
		if err := json.Unmarshal(newVals, &e.NewValues); err != nil {
			return nil, fmt.Errorf("unmarshal new values: %w", err)
		}
	}
	return &e, nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	q := fmt.Sprintf("SELECT %s FROM audit_entries WHERE id = $1", entryCols)
	e, err := scanEntry(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// Search returns matching entries ordered by occurrence time (newest first)
// along with the total match count.
func (r *RepoPG) Search(ctx context.Context, f Filter) ([]*Entry, int, error) {
	f.Normalize()

	where := []string{}
	args := []any{}
	idx := 1

	if f.From != nil {
		where = append(where, fmt.Sprintf("occurred_at >= $%d", idx))
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where = append(where, fmt.Sprintf("occurred_at <= $%d", idx))
		args = append(args, *f.To)
		idx++
	}
	if f.ActorID != nil {
		where = append(where, fmt.Sprintf("actor_id = $%d", idx))
		args = append(args, *f.ActorID)
		idx++
	}
	if len(f.EventTypes) > 0 {
		types := make([]string, len(f.EventTypes))
		for i, et := range f.EventTypes {
			types[i] = string(et)
		}
		where = append(where, fmt.Sprintf("event_type = ANY($%d)", idx))
		args = append(args, types)
		idx++
	}
	if f.Severity != "" {
		where = append(where, fmt.Sprintf("severity = $%d", idx))
		args = append(args, f.Severity)
		idx++
	}
	if f.Outcome != "" {
		where = append(where, fmt.Sprintf("outcome = $%d", idx))
		args = append(args, f.Outcome)
		idx++
	}
	if f.ResourceType != "" {
		where = append(where, fmt.Sprintf("resource_type = $%d", idx))
		args = append(args, f.ResourceType)
		idx++
	}
	if f.PHIAccessed != nil {
		where = append(where, fmt.Sprintf("phi_accessed = $%d", idx))
		args = append(args, *f.PHIAccessed)
		idx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	countQ := fmt.Sprintf("SELECT COUNT(*) FROM audit_entries %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM audit_entries %s ORDER BY occurred_at DESC LIMIT $%d OFFSET $%d",
		entryCols, whereClause, idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search audit entries: %w", err)
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *RepoPG) CountByEventType(ctx context.Context, from, to *time.Time) (map[string]int, error) {
	return r.countBy(ctx, "event_type", from, to)
}

func (r *RepoPG) CountBySeverity(ctx context.Context, from, to *time.Time) (map[string]int, error) {
	return r.countBy(ctx, "severity", from, to)
}

func (r *RepoPG) countBy(ctx context.Context, column string, from, to *time.Time) (map[string]int, error) {
	where := []string{}
	args := []any{}
	idx := 1
	if from != nil {
		where = append(where, fmt.Sprintf("occurred_at >= $%d", idx))
		args = append(args, *from)
		idx++
	}
	if to != nil {
		where = append(where, fmt.Sprintf("occurred_at <= $%d", idx))
		args = append(args, *to)
		idx++
	}
	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	q := fmt.Sprintf("SELECT %s, COUNT(*) FROM audit_entries %s GROUP BY %s", column, whereClause, column)
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("count audit entries by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}
