/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/friendsincode/lectern/internal/cache"
)

// CachedResolver keeps successful lookups in Redis. Misses are not cached so
// a file added to the library resolves immediately.
type CachedResolver struct {
	next   Resolver
	cache  *cache.Cache
	logger zerolog.Logger
}

// NewCachedResolver wraps next.
func NewCachedResolver(next Resolver, c *cache.Cache, logger zerolog.Logger) *CachedResolver {
	return &CachedResolver{
		next:   next,
		cache:  c,
		logger: logger.With().Str("component", "media_cache").Logger(),
	}
}

// Resolve implements Resolver.
func (r *CachedResolver) Resolve(ctx context.Context, kind Kind, id string) (Item, error) {
	var item Item
	if r.cache.GetMedia(ctx, string(kind), id, &item) {
		return item, nil
	}
	item, err := r.next.Resolve(ctx, kind, id)
	if err != nil {
		return Item{}, err
	}
	if err := r.cache.SetMedia(ctx, string(kind), id, item); err != nil {
		r.logger.Debug().Err(err).Str("id", id).Msg("failed to cache media lookup")
	}
	return item, nil
}

// List implements Resolver.
func (r *CachedResolver) List(ctx context.Context, kind Kind) ([]Item, error) {
	return r.next.List(ctx, kind)
}
