/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"listingstudio/internal/batch"
	"listingstudio/internal/domain"
	"listingstudio/internal/editor"
	"listingstudio/internal/storage"
	"listingstudio/internal/templates"
)

const (
	refA = "https://shop.example.test/img/a.jpg"
	refB = "https://shop.example.test/img/b.jpg"
	refC = "https://shop.example.test/img/c.jpg"
	refD = "https://shop.example.test/img/d.jpg"
)

type fakePipe struct {
	mu       sync.Mutex
	rendered []string
	previews int
	fail     map[string]bool
	started  chan struct{}
	gate     chan struct{}
}

func (f *fakePipe) RenderRef(ctx context.Context, ref string, p domain.EditParams) ([]byte, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rendered = append(f.rendered, ref)
	if f.fail[ref] {
		return nil, errors.New("decode failed")
	}
	return []byte("jpeg:" + ref), nil
}

func (f *fakePipe) Preview(ctx context.Context, ref string, p domain.EditParams, maxSide int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previews++
	return []byte(fmt.Sprintf("png:%s:%d", ref, maxSide)), nil
}

type fakeUploader struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool
}

func (u *fakeUploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.fail[name] {
		return "", errors.New("upload rejected: " + name)
	}
	return fmt.Sprintf("https://cdn.example.test/%d/%s", u.calls, name), nil
}

type releaser struct{ refs []string }

func (r *releaser) Release(ref string) { r.refs = append(r.refs, ref) }

type brokenStates struct{}

func (brokenStates) Load(context.Context, string) (map[string]domain.EditParams, error) {
	return nil, errors.New("db offline")
}
func (brokenStates) Put(context.Context, string, string, domain.EditParams) error { return nil }

type fixture struct {
	db    *storage.DB
	pipe  *fakePipe
	up    *fakeUploader
	saves []string
	deps  Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(context.Background(), storage.Options{DSN: filepath.Join(t.TempDir(), "ls.db"), PreviewsMaxBytes: 1 << 20})
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	f := &fixture{db: db, pipe: &fakePipe{fail: map[string]bool{}}, up: &fakeUploader{}}
	f.deps = Deps{
		Pipeline:  f.pipe,
		States:    db.EditStates(),
		Originals: db.Originals(),
		Uploader:  f.up,
		Templates: templates.New(db.KV(), 0),
		Previews:  db.Previews(),
		OnSave: func(ctx context.Context, index int, ref string) error {
			f.saves = append(f.saves, fmt.Sprintf("%d=%s", index, ref))
			return nil
		},
	}
	return f
}

func (f *fixture) open(t *testing.T, refs ...string) *Session {
	t.Helper()
	s, err := Open(context.Background(), f.deps, "item-1", refs)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestOpenRestoresSavedStateByBasename(t *testing.T) {
	f := newFixture(t)
	p := domain.DefaultEditParams()
	p.Rotation = 90
	if err := f.db.EditStates().Put(context.Background(), "item-1", "https://old-cdn.example.test/a.jpg", p); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s := f.open(t, refA, refB)
	if got := s.Store().Image(0).Current.Rotation; got != 90 {
		t.Fatalf("rotation = %d, want 90", got)
	}
	if s.Store().Modified(0) {
		t.Fatalf("loaded state should be the new baseline")
	}
	if got := s.Store().Image(1).Current.Rotation; got != 0 {
		t.Fatalf("image 1 rotation = %d", got)
	}
}

func TestOpenIgnoresLoadFailure(t *testing.T) {
	f := newFixture(t)
	f.deps.States = brokenStates{}
	s := f.open(t, refA)
	if !s.Store().Image(0).Current.Equal(domain.DefaultEditParams()) {
		t.Fatalf("expected defaults after load failure")
	}
}

func TestOpenValidatesDeps(t *testing.T) {
	if _, err := Open(context.Background(), Deps{}, "x", []string{refA}); err == nil {
		t.Fatalf("expected error for missing deps")
	}
	f := newFixture(t)
	if _, err := Open(context.Background(), f.deps, "x", nil); err == nil {
		t.Fatalf("expected error for empty item")
	}
}

func TestSaveActiveRendersFromOriginal(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, refA, refB)
	ctx := context.Background()

	s.Dispatch(editor.RotateRight{})
	url1, err := s.SaveActive(ctx)
	if err != nil {
		t.Fatalf("SaveActive: %v", err)
	}
	if s.Refs()[0] != url1 || f.saves[0] != "0="+url1 {
		t.Fatalf("ref not replaced: refs=%v saves=%v", s.Refs(), f.saves)
	}
	if !s.Store().State().Edited(0) {
		t.Fatalf("image should be marked edited")
	}
	saved, err := f.db.EditStates().Load(ctx, "item-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved[refA].Rotation != 90 {
		t.Fatalf("saved map = %+v", saved)
	}

	s.Dispatch(editor.ToggleFlipH{})
	if _, err := s.SaveActive(ctx); err != nil {
		t.Fatalf("second SaveActive: %v", err)
	}
	if len(f.pipe.rendered) != 2 || f.pipe.rendered[0] != refA || f.pipe.rendered[1] != refA {
		t.Fatalf("rendered = %v, want original twice", f.pipe.rendered)
	}
	origs, _ := f.db.Originals().List(ctx, "item-1")
	if origs[0] != refA || origs[1] != refB {
		t.Fatalf("originals = %v", origs)
	}
}

func TestSaveActiveSurfacesRenderError(t *testing.T) {
	f := newFixture(t)
	f.pipe.fail[refA] = true
	s := f.open(t, refA)
	if _, err := s.SaveActive(context.Background()); err == nil {
		t.Fatalf("expected render error")
	}
	if s.Refs()[0] != refA || f.up.calls != 0 {
		t.Fatalf("failed save must not upload or swap refs")
	}
	if s.Processing() {
		t.Fatalf("processing flag should be released")
	}
}

func TestSaveGuard(t *testing.T) {
	f := newFixture(t)
	f.pipe.started = make(chan struct{}, 1)
	f.pipe.gate = make(chan struct{})
	s := f.open(t, refA, refB)

	errc := make(chan error, 1)
	go func() {
		_, err := s.SaveActive(context.Background())
		errc <- err
	}()
	<-f.pipe.started
	if _, err := s.SaveActive(context.Background()); !errors.Is(err, ErrSaveInProgress) {
		t.Fatalf("concurrent save err = %v", err)
	}
	if _, err := s.ApplyToAll(context.Background(), nil); !errors.Is(err, ErrSaveInProgress) {
		t.Fatalf("concurrent apply err = %v", err)
	}
	close(f.pipe.gate)
	if err := <-errc; err != nil {
		t.Fatalf("first save: %v", err)
	}
}

func TestApplyToAllSkipsFailures(t *testing.T) {
	f := newFixture(t)
	f.pipe.fail[refC] = true
	s := f.open(t, refA, refB, refC, refD)
	s.Dispatch(editor.SetFinetune{Key: domain.Brightness, Value: 30})
	s.Dispatch(editor.RotateRight{})

	var last batch.Progress
	res, err := s.ApplyToAll(context.Background(), func(p batch.Progress) { last = p })
	if err != nil {
		t.Fatalf("ApplyToAll: %v", err)
	}
	if res.Total != 3 || len(res.Succeeded) != 2 || res.Skipped() != 1 || res.Failed[0].Index != 2 {
		t.Fatalf("result = %+v", res)
	}
	if last != (batch.Progress{Done: 3, Total: 3}) {
		t.Fatalf("progress = %+v", last)
	}
	if f.up.calls != 2 {
		t.Fatalf("uploads = %d, want 2", f.up.calls)
	}
	refs := s.Refs()
	if refs[0] != refA || refs[2] != refC || refs[1] == refB || refs[3] == refD {
		t.Fatalf("refs = %v", refs)
	}
	img := s.Store().Image(1)
	if img.Current.Rotation != 90 || img.Current.Finetune.Brightness != 30 {
		t.Fatalf("target state = %+v", img.Current)
	}
	saved, _ := f.db.EditStates().Load(context.Background(), "item-1")
	if _, ok := saved[refC]; ok {
		t.Fatalf("failed target should not be persisted")
	}
	if saved[refD].Rotation != 90 {
		t.Fatalf("saved = %+v", saved)
	}
}

func TestApplyToAllContinuesPastUploadFailure(t *testing.T) {
	f := newFixture(t)
	f.up.fail = map[string]bool{"c.jpg": true}
	s := f.open(t, refA, refB, refC, refD)
	s.Dispatch(editor.RotateRight{})

	var last batch.Progress
	res, err := s.ApplyToAll(context.Background(), func(p batch.Progress) { last = p })
	if err != nil {
		t.Fatalf("ApplyToAll: %v", err)
	}
	if f.up.calls != 3 {
		t.Fatalf("upload attempts = %d, want 3", f.up.calls)
	}
	if last != (batch.Progress{Done: 3, Total: 3}) {
		t.Fatalf("progress = %+v", last)
	}
	if res.Skipped() != 1 || res.Failed[0].Index != 2 || len(res.Succeeded) != 2 {
		t.Fatalf("result = %+v", res)
	}
	refs := s.Refs()
	if refs[2] != refC || refs[3] == refD {
		t.Fatalf("refs = %v", refs)
	}
}

func TestResetAllImagesReplaysOriginals(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, refA, refB)
	ctx := context.Background()
	s.Dispatch(editor.RotateRight{})
	if _, err := s.SaveActive(ctx); err != nil {
		t.Fatalf("SaveActive: %v", err)
	}
	if err := s.ResetAllImages(ctx); err != nil {
		t.Fatalf("ResetAllImages: %v", err)
	}
	if s.Refs()[0] != refA {
		t.Fatalf("ref not restored: %v", s.Refs())
	}
	if f.saves[len(f.saves)-1] != "0="+refA || len(f.saves) != 2 {
		t.Fatalf("save callback calls = %v", f.saves)
	}
	if got := s.Store().Image(0).Current.Rotation; got != 0 {
		t.Fatalf("rotation after reset = %d", got)
	}
	if origs, _ := f.db.Originals().List(ctx, "item-1"); len(origs) != 0 {
		t.Fatalf("originals not cleared: %v", origs)
	}
}

func TestTemplatesThroughSession(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, refA, refB)
	ctx := context.Background()
	s.Dispatch(editor.ToggleFlipV{})
	tpl, err := s.SaveTemplate(ctx, "mirror")
	if err != nil {
		t.Fatalf("SaveTemplate: %v", err)
	}
	s.Dispatch(editor.SwitchImage{Index: 1})
	if err := s.LoadTemplate(ctx, tpl.ID); err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}
	if !s.Store().Image(1).Current.FlipV {
		t.Fatalf("template not applied")
	}
	if err := s.DeleteTemplate(ctx, tpl.ID); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	list, _ := s.Templates(ctx)
	if len(list) != 0 {
		t.Fatalf("templates = %v", list)
	}
	if err := s.LoadTemplate(ctx, tpl.ID); !errors.Is(err, templates.ErrNotFound) {
		t.Fatalf("load deleted err = %v", err)
	}
}

func TestThumbnailUsesPreviewCache(t *testing.T) {
	f := newFixture(t)
	s := f.open(t, refA)
	for i := 0; i < 2; i++ {
		b, err := s.Thumbnail(context.Background(), 0, 128)
		if err != nil || string(b) != "png:"+refA+":128" {
			t.Fatalf("Thumbnail = %q, %v", b, err)
		}
	}
	if f.pipe.previews != 1 {
		t.Fatalf("preview renders = %d, want 1", f.pipe.previews)
	}
	if _, err := s.Thumbnail(context.Background(), 5, 128); err == nil {
		t.Fatalf("expected range error")
	}
}

func TestSnapshotAndClose(t *testing.T) {
	f := newFixture(t)
	rel := &releaser{}
	f.deps.Sources = rel
	s, err := Open(context.Background(), f.deps, "item-1", []string{refA, refB})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Dispatch(editor.RotateLeft{})
	snap := s.Snapshot()
	if len(snap) != 1 || snap[refA].Rotation != 270 {
		t.Fatalf("snapshot = %+v", snap)
	}
	s.Close()
	s.Close()
	if len(rel.refs) != 2 {
		t.Fatalf("released = %v", rel.refs)
	}
}
