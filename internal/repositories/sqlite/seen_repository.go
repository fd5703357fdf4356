package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"forumwatch-go/internal/repositories"
)

const schema = `
CREATE TABLE IF NOT EXISTS notified_topics (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	site        TEXT NOT NULL,
	link        TEXT NOT NULL,
	notified_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (site, link)
);`

type SeenRepository struct {
	db *sql.DB
}

var _ repositories.SeenRepository = (*SeenRepository)(nil)

func Open(ctx context.Context, path string) (*SeenRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single writer keeps sqlite from returning SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SeenRepository{db: db}, nil
}

func (r *SeenRepository) IsSeen(ctx context.Context, site, link string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM notified_topics WHERE site = ? AND link = ?)`,
		site, link,
	).Scan(&exists)
	return exists, err
}

func (r *SeenRepository) MarkSeen(ctx context.Context, site, link string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notified_topics (site, link) VALUES (?, ?) ON CONFLICT (site, link) DO NOTHING`,
		site, link,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", repositories.ErrPersist, err)
	}
	return nil
}

func (r *SeenRepository) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT site, COUNT(*) FROM notified_topics GROUP BY site`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var site string
		var n int
		if err := rows.Scan(&site, &n); err != nil {
			return nil, err
		}
		out[site] = n
	}
	return out, rows.Err()
}

func (r *SeenRepository) Close() error {
	return r.db.Close()
}
