/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package media resolves audio and video identifiers into something a
// rendering surface can load.
package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/friendsincode/lectern/internal/cache"
	"github.com/friendsincode/lectern/internal/config"
)

// ErrNotFound is returned when an identifier does not resolve.
var ErrNotFound = errors.New("media not found")

// Kind separates the audio and video libraries.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindAudio || k == KindVideo
}

// Item is a resolved media file.
type Item struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	Path        string `json:"path"`
	DisplayName string `json:"display_name"`
}

// Resolver looks media up by identifier.
type Resolver interface {
	Resolve(ctx context.Context, kind Kind, id string) (Item, error)
	List(ctx context.Context, kind Kind) ([]Item, error)
}

// New builds the resolver selected by configuration: S3 when a bucket is set,
// the media root otherwise, wrapped in the lookup cache when one is given.
func New(ctx context.Context, cfg *config.Config, c *cache.Cache, logger zerolog.Logger) (Resolver, error) {
	var r Resolver
	if cfg.S3Bucket != "" {
		s3r, err := NewS3Resolver(ctx, S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3UsePathStyle,
			PresignTTL:      cfg.S3PresignTTL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init s3 resolver: %w", err)
		}
		r = s3r
	} else {
		fsr := NewFSResolver(cfg.MediaRoot, PublicPrefix, logger)
		if err := fsr.CheckAccess(); err != nil {
			logger.Warn().Err(err).Msg("media library not accessible")
		}
		r = fsr
	}
	if c != nil && c.IsAvailable() {
		r = NewCachedResolver(r, c, logger)
	}
	return r, nil
}

// cleanID rejects identifiers that would escape the library.
func cleanID(id string) (string, error) {
	id = strings.TrimSpace(strings.ReplaceAll(id, "\\", "/"))
	if id == "" {
		return "", ErrNotFound
	}
	cleaned := path.Clean("/" + id)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(id, "/") || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: invalid identifier %q", ErrNotFound, id)
	}
	return cleaned, nil
}

// displayName derives a human title from a file name.
func displayName(id string) string {
	base := path.Base(id)
	if ext := path.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return strings.Join(strings.Fields(base), " ")
}
