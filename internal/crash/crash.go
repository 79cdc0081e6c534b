/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a panic into a report file and a dump of unsaved edits.
package crash

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"time"

	"listingstudio/internal/domain"
	applog "listingstudio/internal/log"
	"listingstudio/internal/storage"
	"listingstudio/internal/telemetry"
	"listingstudio/internal/version"
)

// exitFn is swapped in tests.
var exitFn = os.Exit

// Snapshotter exposes the unsaved edit parameters of an open item.
type Snapshotter interface {
	Snapshot() map[string]domain.EditParams
}

// Recover captures a panic, logs it with a stacktrace, writes a report into dir
// (the temp dir when empty) and dumps snap's unsaved edits next to it.
//
// Usage: defer crash.Recover(dir, sess)
func Recover(dir string, snap Snapshotter) {
	r := recover()
	if r == nil {
		return
	}
	l := applog.WithComponent("crash")
	stack := debug.Stack()
	l.Error("panic recovered", slog.Any("panic", r), slog.String("stack", string(stack)))

	reportPath, err := writeReport(dir, r, stack)
	if err != nil {
		l.Error("write crash report failed", slog.Any("err", err))
	}
	if snap != nil {
		if path, err := autosave(dir, snap); err != nil {
			l.Error("autosave of unsaved edits failed", slog.Any("err", err))
		} else if path != "" {
			l.Info("unsaved edits written", slog.String("path", path))
		}
	}

	_, _ = fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

func reportDir(dir string) string {
	if dir == "" {
		return os.TempDir()
	}
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

func writeReport(dir string, panicVal any, stack []byte) (string, error) {
	now := time.Now()
	path := filepath.Join(reportDir(dir), fmt.Sprintf("crash-%s.log", now.Format("20060102-150405")))

	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "Listing Studio Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", now.Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	if err := storage.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return path, err
	}
	if err := telemetry.UploadCrash(buf.Bytes()); err != nil {
		applog.WithComponent("crash").Debug("crash upload failed", slog.Any("err", err))
	}
	return path, nil
}

// autosave writes the snapshot as JSON; nothing is written when no image has
// unsaved changes.
func autosave(dir string, snap Snapshotter) (string, error) {
	edits := snap.Snapshot()
	if len(edits) == 0 {
		return "", nil
	}
	b, err := json.MarshalIndent(edits, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(reportDir(dir), fmt.Sprintf("crash-autosave-%s.json", time.Now().Format("20060102-150405")))
	return path, storage.WriteFileAtomic(path, b, 0o644)
}
