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
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	applog "listingstudio/internal/log"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// schemaVersion is the latest migration step; bump it when adding one.
const schemaVersion = 2

var ErrUnsupportedDriver = errors.New("storage: unsupported driver")

type Options struct {
	Driver string // "sqlite" (default) or "pgx"
	// DSN is a file path or "file:" URI for sqlite, a postgres URL for pgx.
	DSN              string
	PreviewsMaxBytes int64 // 0 disables preview eviction
}

// DB is an open persistence adapter.
type DB struct {
	sql         *sql.DB
	d           dialect
	log         *slog.Logger
	previewsMax int64
	now         func() time.Time
}

type dialect struct {
	name   string
	blob   string
	bigint string
	pos    bool // $1-style placeholders
}

var (
	sqliteDialect = dialect{name: "sqlite", blob: "BLOB", bigint: "INTEGER"}
	pgDialect     = dialect{name: "pgx", blob: "BYTEA", bigint: "BIGINT", pos: true}
)

// q rewrites ? placeholders for dialects that need positional ones.
func (d dialect) q(query string) string {
	if !d.pos {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// Open connects, prepares the schema and runs pending migrations.
func Open(ctx context.Context, opts Options) (*DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "open").With(slog.String("driver", opts.Driver))
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, errors.New("storage: dsn is required")
	}

	var (
		db  *sql.DB
		d   dialect
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", "sqlite":
		d = sqliteDialect
		db, err = openSQLite(ctx, opts.DSN)
	case "pgx", "postgres":
		d = pgDialect
		db, err = sql.Open("pgx", opts.DSN)
		if err == nil {
			db.SetMaxOpenConns(4)
			if perr := db.PingContext(ctx); perr != nil {
				_ = db.Close()
				err = fmt.Errorf("ping postgres: %w", perr)
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, opts.Driver)
	}
	if err != nil {
		l.Error("open failed", slog.Any("err", err))
		return nil, err
	}

	s := &DB{sql: db, d: d, log: applog.WithComponent("storage"), previewsMax: opts.PreviewsMaxBytes, now: time.Now}
	if err := s.ensureVersion(ctx); err != nil {
		_ = db.Close()
		l.Error("ensure version failed", slog.Any("err", err))
		return nil, err
	}
	if err := s.runMigrations(ctx); err != nil {
		_ = db.Close()
		l.Error("migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("storage ready")
	return s, nil
}

func openSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", filepath.ToSlash(dsn))
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer keeps the embedded database free of SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	return db, nil
}

func (s *DB) Close() error { return s.sql.Close() }

// Driver reports the active dialect name.
func (s *DB) Driver() string { return s.d.name }

func (s *DB) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.sql.ExecContext(ctx, s.d.q(query), args...)
}

func (s *DB) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.sql.QueryRowContext(ctx, s.d.q(query), args...)
}

func (s *DB) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.sql.QueryContext(ctx, s.d.q(query), args...)
}
