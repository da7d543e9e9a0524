// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/museun/stirred/pkg/markov"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSConfig configures a GCSStore.
type GCSConfig struct {
	// Bucket is the bucket holding brain objects. Required.
	Bucket string

	// Prefix is prepended to every object name, e.g. "brains/".
	Prefix string

	// CredentialsFile is an optional service account key file. When empty,
	// Application Default Credentials are used.
	CredentialsFile string

	Logger *slog.Logger
}

// GCSStore keeps one <prefix><name>.sdb object per brain.
//
// Thread Safety: Safe for concurrent use.
type GCSStore struct {
	client *gcs.Client
	bucket *gcs.BucketHandle
	prefix string
	logger *slog.Logger
}

// NewGCSStore creates a client for cfg.Bucket.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket must not be empty")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GCSStore{
		client: client,
		bucket: client.Bucket(cfg.Bucket),
		prefix: cfg.Prefix,
		logger: logger.With(slog.String("component", "gcs_store"), slog.String("bucket", cfg.Bucket)),
	}, nil
}

func (s *GCSStore) objectName(name string) string {
	return s.prefix + name + Extension
}

// Load implements Store.
func (s *GCSStore) Load(ctx context.Context, name string) (*markov.Brain, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	r, err := s.bucket.Object(s.objectName(name)).NewReader(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", s.objectName(name), err)
	}
	defer r.Close()

	return Decode(r)
}

// Save implements Store. A failed encode aborts the upload, leaving any
// previous object in place.
func (s *GCSStore) Save(ctx context.Context, b *markov.Brain) error {
	if err := checkName(b.Name()); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.bucket.Object(s.objectName(b.Name())).NewWriter(ctx)
	w.ContentType = "application/zstd"

	if err := Encode(w, b); err != nil {
		cancel()
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("upload %s: %w", s.objectName(b.Name()), err)
	}

	s.logger.Debug("brain uploaded", slog.String("brain", b.Name()))
	return nil
}

// List implements Store.
func (s *GCSStore) List(ctx context.Context) ([]string, error) {
	it := s.bucket.Objects(ctx, &gcs.Query{Prefix: s.prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		rest := strings.TrimPrefix(attrs.Name, s.prefix)
		if strings.Contains(rest, "/") {
			continue
		}
		if name, ok := NameFromPath(rest); ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// Close implements Store.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
