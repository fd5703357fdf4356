package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"forumwatch-go/internal/repositories"
)

// SeenRepository keeps the seen-set in memory and rewrites the whole JSON
// file after every mark: {"<site url>": ["<link>", ...]}.
type SeenRepository struct {
	path   string
	logger zerolog.Logger

	mu    sync.RWMutex
	links map[string][]string
	index map[string]map[string]struct{}
}

var _ repositories.SeenRepository = (*SeenRepository)(nil)

func Open(path string, logger zerolog.Logger) (*SeenRepository, error) {
	logger = logger.With().Str("state_file", path).Logger()

	links, err := Load(path, logger)
	if err != nil {
		return nil, err
	}

	r := &SeenRepository{
		path:   path,
		logger: logger,
		links:  links,
		index:  make(map[string]map[string]struct{}, len(links)),
	}
	total := 0
	for site, list := range links {
		set := make(map[string]struct{}, len(list))
		for _, link := range list {
			set[link] = struct{}{}
		}
		r.index[site] = set
		total += len(set)
	}

	logger.Info().Int("sites", len(links)).Int("links", total).Msg("seen-set loaded")
	return r, nil
}

// Load reads the state file. A missing, empty or malformed file yields an
// empty mapping; only I/O failures other than "not found" are returned.
func Load(path string, logger zerolog.Logger) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string][]string{}, nil
	}

	var links map[string][]string
	if err := json.Unmarshal(data, &links); err != nil {
		logger.Warn().Err(err).Msg("state file is corrupt; starting with an empty seen-set")
		return map[string][]string{}, nil
	}
	if links == nil {
		links = map[string][]string{}
	}
	return links, nil
}

func (r *SeenRepository) IsSeen(_ context.Context, site, link string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.index[site][link]
	return ok, nil
}

func (r *SeenRepository) MarkSeen(_ context.Context, site, link string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.index[site]
	if set == nil {
		set = map[string]struct{}{}
		r.index[site] = set
	}
	if _, ok := set[link]; ok {
		return nil
	}
	set[link] = struct{}{}
	r.links[site] = append(r.links[site], link)

	if err := r.persistLocked(); err != nil {
		return fmt.Errorf("%w: %w", repositories.ErrPersist, err)
	}
	return nil
}

func (r *SeenRepository) Counts(_ context.Context) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.links))
	for site, list := range r.links {
		out[site] = len(list)
	}
	return out, nil
}

// Links returns a copy of the links recorded for site, in insertion order.
func (r *SeenRepository) Links(site string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.links[site]...)
}

func (r *SeenRepository) Close() error {
	return nil
}

// persistLocked writes to a temp file next to the target and renames it
// over the target so a crash never leaves a half-written state file.
func (r *SeenRepository) persistLocked() error {
	data, err := json.MarshalIndent(r.links, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(r.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	err = os.Rename(tmpName, r.path)
	return err
}
