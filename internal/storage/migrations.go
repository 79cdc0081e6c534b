/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"listingstudio/internal/version"
)

func (s *DB) ensureVersion(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS version (
			id         INTEGER PRIMARY KEY CHECK(id=1),
			schema     INTEGER NOT NULL,
			app        TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, q := range ddl {
		if _, err := s.exec(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	var cur int
	err := s.queryRow(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.exec(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 0, ?, ?, ?)`, version.String(), now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := s.exec(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, version.String(), now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// SchemaVersion returns the applied migration step.
func (s *DB) SchemaVersion(ctx context.Context) (int, error) {
	var cur int
	err := s.queryRow(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	return cur, err
}

// migrations returns the DDL for step n in the active dialect.
func (s *DB) migrations(n int) []string {
	switch n {
	case 1:
		return []string{
			`CREATE TABLE IF NOT EXISTS kv (
				key        TEXT PRIMARY KEY,
				value      ` + s.d.blob + ` NOT NULL,
				updated_at ` + s.d.bigint + ` NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS edit_states (
				item_ref   TEXT PRIMARY KEY,
				doc        TEXT NOT NULL,
				updated_at ` + s.d.bigint + ` NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS originals (
				item_ref    TEXT    NOT NULL,
				idx         INTEGER NOT NULL,
				ref         TEXT    NOT NULL,
				captured_at ` + s.d.bigint + ` NOT NULL,
				PRIMARY KEY (item_ref, idx)
			)`,
			`CREATE TABLE IF NOT EXISTS previews (
				ref         TEXT    NOT NULL,
				w           INTEGER NOT NULL,
				h           INTEGER NOT NULL,
				data        ` + s.d.blob + ` NOT NULL,
				size        INTEGER NOT NULL,
				updated_at  ` + s.d.bigint + ` NOT NULL,
				last_access ` + s.d.bigint + ` NOT NULL,
				PRIMARY KEY (ref, w, h)
			)`,
		}
	case 2:
		return []string{
			`CREATE INDEX IF NOT EXISTS idx_previews_access ON previews(last_access)`,
			`CREATE INDEX IF NOT EXISTS idx_originals_item ON originals(item_ref)`,
		}
	}
	return nil
}

// runMigrations applies each pending step in its own transaction.
func (s *DB) runMigrations(ctx context.Context) error {
	cur, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if cur > schemaVersion {
		s.log.Warn("database schema is newer than this build", "db", cur, "build", schemaVersion)
		return nil
	}
	for next := cur + 1; next <= schemaVersion; next++ {
		tx, err := s.sql.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range s.migrations(next) {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, s.d.q(`UPDATE version SET schema=?, updated_at=? WHERE id=1`), next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		s.log.Info("migration applied", "step", next)
	}
	return nil
}
