package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"forumwatch-go/internal/repositories"
)

// DBTX is the subset of pgxpool.Pool the repository needs.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type SeenRepository struct {
	db   DBTX
	pool *pgxpool.Pool
}

var _ repositories.SeenRepository = (*SeenRepository)(nil)

// NewSeenRepository does not take ownership of db; pass the pool via
// WithOwnedPool when Close should release it.
func NewSeenRepository(db DBTX) *SeenRepository {
	return &SeenRepository{db: db}
}

func (r *SeenRepository) WithOwnedPool(pool *pgxpool.Pool) *SeenRepository {
	r.pool = pool
	return r
}

const (
	isSeenQuery = `SELECT EXISTS(SELECT 1 FROM notified_topics WHERE site = $1 AND link = $2)`
	markQuery   = `INSERT INTO notified_topics (site, link) VALUES ($1, $2) ON CONFLICT (site, link) DO NOTHING`
	countsQuery = `SELECT site, COUNT(*) FROM notified_topics GROUP BY site`
)

func (r *SeenRepository) IsSeen(ctx context.Context, site, link string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, isSeenQuery, site, link).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *SeenRepository) MarkSeen(ctx context.Context, site, link string) error {
	if _, err := r.db.Exec(ctx, markQuery, site, link); err != nil {
		return fmt.Errorf("%w: %w", repositories.ErrPersist, err)
	}
	return nil
}

func (r *SeenRepository) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.Query(ctx, countsQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var site string
		var n int64
		if err := rows.Scan(&site, &n); err != nil {
			return nil, err
		}
		out[site] = int(n)
	}
	return out, rows.Err()
}

func (r *SeenRepository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}
