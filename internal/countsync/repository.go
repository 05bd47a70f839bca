package countsync

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSessionNotFound marks lookups for unknown session ids.
var ErrSessionNotFound = errors.New("countsync: session not found")

// Repository persists count sessions in PostgreSQL. The grid lives in a
// jsonb column so arbitrary count-sheet layouts survive verbatim.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores a new session.
func (r *Repository) Insert(ctx context.Context, s CountSession) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO count_sessions (id, name, status, grid, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)`,
		s.ID, s.Name, s.Status, s.Grid, s.CreatedAt, s.UpdatedAt)
	return err
}

// Get fetches one session by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (CountSession, error) {
	var s CountSession
	err := r.pool.QueryRow(ctx, `SELECT id, name, status, grid, created_at, updated_at FROM count_sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Status, &s.Grid, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CountSession{}, ErrSessionNotFound
	}
	return s, err
}

// List returns sessions, newest first.
func (r *Repository) List(ctx context.Context) ([]CountSession, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, status, grid, created_at, updated_at FROM count_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []CountSession{}
	for rows.Next() {
		var s CountSession
		if err := rows.Scan(&s.ID, &s.Name, &s.Status, &s.Grid, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Save rewrites a session's mutable fields.
func (r *Repository) Save(ctx context.Context, s CountSession) error {
	tag, err := r.pool.Exec(ctx, `UPDATE count_sessions SET name = $1, status = $2, grid = $3, updated_at = $4 WHERE id = $5`,
		s.Name, s.Status, s.Grid, time.Now(), s.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}
