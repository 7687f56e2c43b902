/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/friendsincode/lectern/internal/telemetry"
)

// PublicPrefix is the URL prefix the HTTP server serves the media root under.
const PublicPrefix = "/media/"

// FSResolver resolves identifiers to files under <root>/<kind>/.
type FSResolver struct {
	rootDir string
	public  string
	logger  zerolog.Logger
}

// NewFSResolver creates a filesystem resolver. Resolved paths are URLs under
// publicPrefix.
func NewFSResolver(rootDir, publicPrefix string, logger zerolog.Logger) *FSResolver {
	return &FSResolver{
		rootDir: rootDir,
		public:  publicPrefix,
		logger:  logger.With().Str("component", "media_fs").Logger(),
	}
}

// Root returns the directory served under PublicPrefix.
func (r *FSResolver) Root() string {
	return r.rootDir
}

// Resolve implements Resolver.
func (r *FSResolver) Resolve(ctx context.Context, kind Kind, id string) (Item, error) {
	if !kind.Valid() {
		return Item{}, fmt.Errorf("%w: unknown kind %q", ErrNotFound, kind)
	}
	rel, err := cleanID(id)
	if err != nil {
		telemetry.MediaResolveTotal.WithLabelValues("fs", "invalid").Inc()
		return Item{}, err
	}
	full := filepath.Join(r.rootDir, string(kind), filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		telemetry.MediaResolveTotal.WithLabelValues("fs", "miss").Inc()
		r.logger.Debug().Str("kind", string(kind)).Str("id", id).Msg("media not found")
		return Item{}, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, id)
	}
	telemetry.MediaResolveTotal.WithLabelValues("fs", "hit").Inc()
	return r.item(kind, rel), nil
}

// List implements Resolver.
func (r *FSResolver) List(ctx context.Context, kind Kind) ([]Item, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrNotFound, kind)
	}
	dir := filepath.Join(r.rootDir, string(kind))
	var items []Item
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == dir {
				return filepath.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		items = append(items, r.item(kind, filepath.ToSlash(rel)))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// CheckAccess verifies the storage directory exists and is accessible.
func (r *FSResolver) CheckAccess() error {
	info, err := os.Stat(r.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("media root directory does not exist: %s", r.rootDir)
		}
		return fmt.Errorf("cannot access media root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("media root is not a directory: %s", r.rootDir)
	}
	return nil
}

func (r *FSResolver) item(kind Kind, rel string) Item {
	return Item{
		ID:          rel,
		Kind:        kind,
		Path:        path.Join(r.public, string(kind), rel),
		DisplayName: displayName(rel),
	}
}
