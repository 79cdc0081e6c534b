/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package log sets up the process-wide slog logger: a compact console handler
// for interactive runs, JSON for machines, and an optional rotating file sink.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"listingstudio/internal/version"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger initialization. Each field can also come from the
// environment:
//   - LST_LOG_LEVEL=debug|info|warn|error
//   - LST_LOG_FORMAT=console|json
//   - LST_LOG_FILE=<path> (JSON lines, rotated)
//   - LST_LOG_SOURCE=true|false
type Options struct {
	Level     string
	Format    string // "console" or "json"
	AddSource bool
	File      string

	// Output receives console records; nil means stderr.
	Output io.Writer
}

var (
	mu     sync.RWMutex
	global *slog.Logger
	closer io.Closer
)

// L returns the application logger, initializing it from the environment on
// first use.
func L() *slog.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(FromEnv())
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Init replaces the global logger and slog.Default.
func Init(opts Options) {
	lvl := ParseLevel(opts.Level)
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var console slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		console = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource})
	default:
		console = newConsoleHandler(out, lvl, opts.AddSource)
	}

	handlers := []slog.Handler{console}
	var rotating *lj.Logger
	if path := strings.TrimSpace(opts.File); path != "" {
		rotating = &lj.Logger{Filename: path, MaxSize: 10, MaxBackups: 5, MaxAge: 14, Compress: true}
		handlers = append(handlers, slog.NewJSONHandler(rotating, &slog.HandlerOptions{Level: lvl, AddSource: opts.AddSource}))
	}

	logger := slog.New(fanout(handlers)).With(
		slog.String("app", "listingstudio"),
		slog.String("ver", version.Version),
	)

	mu.Lock()
	if closer != nil {
		_ = closer.Close()
		closer = nil
	}
	if rotating != nil {
		closer = rotating
	}
	global = logger
	mu.Unlock()
	slog.SetDefault(logger)
}

// Close flushes and releases the rotating file sink, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if closer == nil {
		return nil
	}
	err := closer.Close()
	closer = nil
	return err
}

func FromEnv() Options {
	return Options{
		Level:     getenv("LST_LOG_LEVEL", "info"),
		Format:    getenv("LST_LOG_FORMAT", "console"),
		AddSource: strings.EqualFold(getenv("LST_LOG_SOURCE", "false"), "true"),
		File:      os.Getenv("LST_LOG_FILE"),
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// WithComponent returns a logger tagged with the subsystem name.
func WithComponent(name string) *slog.Logger { return L().With(slog.String("component", name)) }

// WithOperation tags l with an operation name.
func WithOperation(l *slog.Logger, op string) *slog.Logger { return l.With(slog.String("op", op)) }

// WithImage tags l with the index of the image being worked on.
func WithImage(l *slog.Logger, index int) *slog.Logger { return l.With(slog.Int("image", index)) }

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
