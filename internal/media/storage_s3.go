/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/lectern/internal/telemetry"
)

// S3Config describes the bucket holding the media libraries.
type S3Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	Prefix          string
	Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	UsePathStyle    bool
	PresignTTL      time.Duration
}

// S3Resolver resolves identifiers to presigned GET URLs for objects under
// <prefix>/<kind>/.
type S3Resolver struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	prefix    string
	ttl       time.Duration
	logger    zerolog.Logger
}

// NewS3Resolver creates an S3-backed resolver.
func NewS3Resolver(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Resolver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	} else {
		logger.Warn().Msg("s3 credentials not configured, using default credential chain")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newS3Resolver(client, cfg, logger), nil
}

func newS3Resolver(client *s3.Client, cfg S3Config, logger zerolog.Logger) *S3Resolver {
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &S3Resolver{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		prefix:    strings.Trim(cfg.Prefix, "/"),
		ttl:       ttl,
		logger:    logger.With().Str("component", "media_s3").Str("bucket", cfg.Bucket).Logger(),
	}
}

func (r *S3Resolver) key(kind Kind, rel string) string {
	return path.Join(r.prefix, string(kind), rel)
}

// Resolve implements Resolver.
func (r *S3Resolver) Resolve(ctx context.Context, kind Kind, id string) (Item, error) {
	if !kind.Valid() {
		return Item{}, fmt.Errorf("%w: unknown kind %q", ErrNotFound, kind)
	}
	rel, err := cleanID(id)
	if err != nil {
		telemetry.MediaResolveTotal.WithLabelValues("s3", "invalid").Inc()
		return Item{}, err
	}
	key := r.key(kind, rel)

	_, err = r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			telemetry.MediaResolveTotal.WithLabelValues("s3", "miss").Inc()
			return Item{}, fmt.Errorf("%w: %s/%s", ErrNotFound, kind, id)
		}
		telemetry.MediaResolveTotal.WithLabelValues("s3", "error").Inc()
		return Item{}, fmt.Errorf("head %s: %w", key, err)
	}

	req, err := r.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.ttl))
	if err != nil {
		telemetry.MediaResolveTotal.WithLabelValues("s3", "error").Inc()
		return Item{}, fmt.Errorf("presign %s: %w", key, err)
	}

	telemetry.MediaResolveTotal.WithLabelValues("s3", "hit").Inc()
	return Item{ID: rel, Kind: kind, Path: req.URL, DisplayName: displayName(rel)}, nil
}

// List implements Resolver. Items carry no presigned URL; resolve one to
// load it.
func (r *S3Resolver) List(ctx context.Context, kind Kind) ([]Item, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrNotFound, kind)
	}
	prefix := r.key(kind, "") + "/"
	var items []Item
	paginator := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if rel == "" || strings.HasSuffix(rel, "/") {
				continue
			}
			items = append(items, Item{ID: rel, Kind: kind, DisplayName: displayName(rel)})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}
