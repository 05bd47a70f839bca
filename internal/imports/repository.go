package imports

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const runColumns = `id, filename, size_bytes, status, new_count, update_count, duplicate_count, error_count, error, created_at, parsed_at, applied_at`

// Repository persists import runs in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a new run.
func (r *Repository) Insert(ctx context.Context, run ImportRun) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO import_runs (`+runColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		run.ID, run.Filename, run.SizeBytes, run.Status, run.NewCount, run.UpdateCount,
		run.DuplicateCount, run.ErrorCount, run.Error, run.CreatedAt, run.ParsedAt, run.AppliedAt)
	return err
}

// Get fetches one run by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (ImportRun, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM import_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ImportRun{}, ErrRunNotFound
	}
	return run, err
}

// List returns a page of runs, newest first, plus the total count.
func (r *Repository) List(ctx context.Context, page, perPage int) ([]ImportRun, int, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM import_runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM import_runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := []ImportRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// Save rewrites a run's mutable fields.
func (r *Repository) Save(ctx context.Context, run ImportRun) error {
	tag, err := r.pool.Exec(ctx, `UPDATE import_runs SET status = $1, new_count = $2, update_count = $3, duplicate_count = $4, error_count = $5, error = $6, parsed_at = $7, applied_at = $8 WHERE id = $9`,
		run.Status, run.NewCount, run.UpdateCount, run.DuplicateCount, run.ErrorCount,
		run.Error, run.ParsedAt, run.AppliedAt, run.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

func scanRun(row pgx.Row) (ImportRun, error) {
	var run ImportRun
	err := row.Scan(&run.ID, &run.Filename, &run.SizeBytes, &run.Status, &run.NewCount,
		&run.UpdateCount, &run.DuplicateCount, &run.ErrorCount, &run.Error,
		&run.CreatedAt, &run.ParsedAt, &run.AppliedAt)
	return run, err
}
