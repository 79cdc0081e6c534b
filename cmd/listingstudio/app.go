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
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"listingstudio/internal/config"
	"listingstudio/internal/domain"
	"listingstudio/internal/editor"
	applog "listingstudio/internal/log"
	"listingstudio/internal/raster"
	"listingstudio/internal/session"
	"listingstudio/internal/storage"
	"listingstudio/internal/templates"
	"listingstudio/internal/upload"
)

// app holds the long-lived collaborators built from configuration.
type app struct {
	cfg      config.AppConfig
	db       *storage.DB
	renderer *raster.Renderer
	uploader upload.Uploader
	tpl      *templates.Store
}

func loadConfig() (config.AppConfig, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func initLogging(cfg config.AppConfig) {
	applog.Init(applog.Options{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
	})
}

func newApp(ctx context.Context, cfg config.AppConfig) (*app, error) {
	dataDir, err := config.DataDir()
	if err != nil {
		return nil, err
	}
	dsn := cfg.Storage.DSN
	if dsn == "" && cfg.Storage.Driver == "sqlite" {
		dsn = filepath.Join(dataDir, "listingstudio.db")
	}
	db, err := storage.Open(ctx, storage.Options{Driver: cfg.Storage.Driver, DSN: dsn, PreviewsMaxBytes: cfg.Storage.PreviewsMaxByte})
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg: cfg,
		db:  db,
		renderer: raster.New(raster.Options{
			Quality: cfg.Editor.JPEGQuality,
			Client:  &http.Client{Timeout: cfg.Upload.Timeout()},
		}),
		tpl: templates.New(db.KV(), cfg.Editor.MaxTemplates),
	}
	switch cfg.Upload.Mode {
	case "http":
		a.uploader = upload.NewHTTP(cfg.Upload.BaseURL, config.UploadToken, cfg.Upload.Timeout())
	default:
		dir := cfg.Upload.Dir
		if dir == "" {
			dir = filepath.Join(dataDir, "uploads")
		}
		a.uploader = upload.NewDir(dir)
	}
	return a, nil
}

func (a *app) Close() {
	a.renderer.Close()
	if err := a.db.Close(); err != nil {
		applog.WithComponent("cli").Warn("close storage", "err", err)
	}
}

func (a *app) openSession(ctx context.Context, item string, refs []string) (*session.Session, error) {
	return session.Open(ctx, session.Deps{
		Pipeline:  a.renderer,
		States:    a.db.EditStates(),
		Originals: a.db.Originals(),
		Uploader:  a.uploader,
		Templates: a.tpl,
		Previews:  a.db.Previews(),
		Sources:   a.renderer.Sources(),
		MaxUndo:   a.cfg.Editor.UndoDepth,
	}, item, refs)
}

// crashDir is where crash reports and dumps of unsaved edits go. It falls back
// to the temp dir when no data dir can be resolved.
func crashDir() string {
	dataDir, err := config.DataDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dataDir, "crash")
}

// readParams decodes an edit-state file; current and legacy shapes are accepted.
// An empty path yields defaults.
func readParams(path string) (domain.EditParams, error) {
	if path == "" {
		return domain.DefaultEditParams(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.EditParams{}, err
	}
	p, err := storage.DecodeEditState(b)
	if err != nil {
		return domain.EditParams{}, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// applyParams drives the editor to p on the active image: the image-agnostic
// part through a template, explicit crop geometry and watermarks as their own
// actions. Watermarks already on the image (restored from a previous save) are
// updated in place rather than added again.
func applyParams(s *session.Session, p domain.EditParams) {
	s.Dispatch(editor.LoadTemplate{Template: domain.TemplateFrom("cli", p)})
	if p.Crop.CroppedAreaPixels != nil {
		s.Dispatch(editor.SetCropComplete{Area: p.Crop.CroppedArea, AreaPixels: p.Crop.CroppedAreaPixels})
	}
	for _, wm := range p.Watermarks {
		_, img := s.Store().Active()
		if wm.ID != "" && img.Current.IndexOfWatermark(wm.ID) >= 0 {
			s.Dispatch(editor.UpdateWatermark{ID: wm.ID, Patch: patchFrom(wm)})
			continue
		}
		s.Dispatch(editor.AddWatermark{Watermark: wm})
	}
}

func patchFrom(w domain.Watermark) domain.WatermarkPatch {
	return domain.WatermarkPatch{
		Text:       &w.Text,
		FontFamily: &w.FontFamily,
		FontSize:   &w.FontSize,
		Color:      &w.Color,
		Opacity:    &w.Opacity,
		X:          &w.X,
		Y:          &w.Y,
	}
}

var errUsage = errors.New("usage")
