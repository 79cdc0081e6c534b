/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"listingstudio/internal/config"
	"listingstudio/internal/domain"
	applog "listingstudio/internal/log"
	"listingstudio/internal/raster"
	"listingstudio/internal/storage"
	"listingstudio/internal/templates"
	"listingstudio/internal/upload"
)

func TestReadParams(t *testing.T) {
	p, err := readParams("")
	if err != nil || !p.Equal(domain.DefaultEditParams()) {
		t.Fatalf("empty path = %+v, %v", p, err)
	}
	path := filepath.Join(t.TempDir(), "p.json")
	doc := `{"crop":{"aspect":1},"finetune":{"brightness":20},"rotation":90,"flipH":true}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err = readParams(path)
	if err != nil {
		t.Fatalf("readParams: %v", err)
	}
	if p.Rotation != 90 || !p.FlipH || p.Finetune.Brightness != 20 {
		t.Fatalf("params = %+v", p)
	}
	if _, err := readParams(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestReportExitCodes(t *testing.T) {
	l := applog.WithComponent("cli")
	if report(l, nil) != 0 {
		t.Fatalf("nil error should exit 0")
	}
	if report(l, errUsage) != 2 {
		t.Fatalf("usage error should exit 2")
	}
	if report(l, errors.New("boom")) != 1 {
		t.Fatalf("failure should exit 1")
	}
}

func TestCurrentSnapshotWithoutSession(t *testing.T) {
	if (&current{}).Snapshot() != nil {
		t.Fatalf("expected nil snapshot")
	}
}

func TestRepeatedSaveKeepsOneCopyOfEachWatermark(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	src := filepath.Join(dir, "photo.png")
	if err := imaging.Save(imaging.New(40, 30, color.NRGBA{R: 90, G: 120, B: 200, A: 255}), src); err != nil {
		t.Fatalf("write source: %v", err)
	}
	db, err := storage.Open(ctx, storage.Options{DSN: filepath.Join(dir, "ls.db")})
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	r := raster.New(raster.Options{})
	t.Cleanup(r.Close)
	a := &app{
		cfg:      config.Defaults(),
		db:       db,
		renderer: r,
		uploader: upload.NewDir(filepath.Join(dir, "uploads")),
		tpl:      templates.New(db.KV(), 0),
	}

	p := domain.DefaultEditParams()
	p.Watermarks = []domain.Watermark{{ID: "wm-sold", Text: "SOLD", Color: "#ffffff", Opacity: 0.5, FontSize: 12, X: 10, Y: 10}}
	for i := 0; i < 3; i++ {
		s, err := a.openSession(ctx, "item-7", []string{src})
		if err != nil {
			t.Fatalf("openSession: %v", err)
		}
		applyParams(s, p)
		if _, err := s.SaveActive(ctx); err != nil {
			t.Fatalf("save %d: %v", i+1, err)
		}
		s.Close()
	}

	saved, err := db.EditStates().Load(ctx, "item-7")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	wms := saved[src].Watermarks
	if len(wms) != 1 || wms[0].ID != "wm-sold" || wms[0].Text != "SOLD" {
		t.Fatalf("saved watermarks = %+v", wms)
	}
}

func TestCrashDirSitsUnderDataDir(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_DATA_HOME", base)
	t.Setenv("HOME", base)
	data, err := config.DataDir()
	if err != nil {
		t.Fatalf("DataDir: %v", err)
	}
	if got := crashDir(); got != filepath.Join(data, "crash") {
		t.Fatalf("crashDir = %q, want under %q", got, data)
	}
}
