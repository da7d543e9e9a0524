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
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/museun/stirred/pkg/markov"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps brains as rows of a single SQLite table.
//
// Thread Safety: Safe for concurrent use. The pool holds one connection,
// so writes are serialized and ":memory:" databases stay shared.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (creating if needed) the database at path.
// The path ":memory:" gives a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if err := createBrainTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With(slog.String("component", "sqlite_store")),
	}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, name string) (*markov.Brain, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM brains WHERE name = ?`, name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	return Decode(bytes.NewReader(payload))
}

// Save implements Store. An existing row is replaced.
func (s *SQLiteStore) Save(ctx context.Context, b *markov.Brain) error {
	if err := checkName(b.Name()); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, b); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO brains (name, depth, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			depth = excluded.depth,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, b.Name(), b.Depth(), buf.Bytes(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("write %s: %w", b.Name(), err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM brains ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list brains: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list brains: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list brains: %w", err)
	}
	return names, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func createBrainTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS brains (
			name TEXT PRIMARY KEY,
			depth INTEGER NOT NULL,
			payload BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	return err
}
