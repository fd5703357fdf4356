package repositories

import (
	"context"
	"errors"
)

// ErrPersist reports that a mark was recorded in memory but could not be
// written to durable storage.
var ErrPersist = errors.New("persist seen state")

// SeenRepository records which topic links have been delivered, per site.
// A link is only ever added, never removed.
type SeenRepository interface {
	IsSeen(ctx context.Context, site, link string) (bool, error)
	MarkSeen(ctx context.Context, site, link string) error
	Counts(ctx context.Context) (map[string]int, error)
	Close() error
}
