package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

const reportCols = `id, title, report_type, parameters, result,
	generated_by, generated_at, created_at, updated_at`

func scanReport(row pgx.Row) (*Report, error) {
	var r Report
	var params, result []byte
	err := row.Scan(
		&r.ID, &r.Title, &r.ReportType, &params, &result,
		&r.GeneratedBy, &r.GeneratedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &r.Parameters); err != nil {
			return nil, fmt.Errorf("decode report parameters: %w", err)
		}
	}
	if len(result) > 0 {
		if err := json.Unmarshal(result, &r.Result); err != nil {
			return nil, fmt.Errorf("decode report result: %w", err)
		}
	}
	return &r, nil
}

func marshalJSONB(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (r *RepoPG) Create(ctx context.Context, rep *Report) error {
	params, err := marshalJSONB(rep.Parameters)
	if err != nil {
		return fmt.Errorf("encode report parameters: %w", err)
	}
	result, err := marshalJSONB(rep.Result)
	if err != nil {
		return fmt.Errorf("encode report result: %w", err)
	}

	const q = `
		INSERT INTO reports (id, title, report_type, parameters, result, generated_by, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	err = r.pool.QueryRow(ctx, q,
		rep.ID, rep.Title, rep.ReportType, params, result, rep.GeneratedBy, rep.GeneratedAt,
	).Scan(&rep.CreatedAt, &rep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Report, error) {
	q := fmt.Sprintf("SELECT %s FROM reports WHERE id = $1", reportCols)
	return scanReport(r.pool.QueryRow(ctx, q, id))
}

func (r *RepoPG) List(ctx context.Context, limit, offset int) ([]*Report, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reports`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM reports ORDER BY created_at DESC LIMIT $1 OFFSET $2`, reportCols)
	rows, err := r.pool.Query(ctx, q, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, rep)
	}
	return reports, total, rows.Err()
}
