/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package session ties one item's editor state to rendering, upload and
// persistence.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"listingstudio/internal/batch"
	"listingstudio/internal/domain"
	"listingstudio/internal/editor"
	applog "listingstudio/internal/log"
	"listingstudio/internal/storage"
	"listingstudio/internal/templates"
	"listingstudio/internal/upload"
)

var ErrSaveInProgress = errors.New("save already in progress")

// Pipeline renders a source reference.
type Pipeline interface {
	RenderRef(ctx context.Context, ref string, p domain.EditParams) ([]byte, error)
	Preview(ctx context.Context, ref string, p domain.EditParams, maxSide int) ([]byte, error)
}

// EditStates persists the per-item edit-state map keyed by original reference.
type EditStates interface {
	Load(ctx context.Context, itemRef string) (map[string]domain.EditParams, error)
	Put(ctx context.Context, itemRef, ref string, p domain.EditParams) error
}

// Originals remembers the first reference seen for each image index.
type Originals interface {
	Capture(ctx context.Context, itemRef string, index int, ref string) (bool, error)
	List(ctx context.Context, itemRef string) (map[int]string, error)
	Clear(ctx context.Context, itemRef string) error
}

// Previews caches thumbnails.
type Previews interface {
	GetOrCreate(ctx context.Context, ref string, w, h int, gen func(context.Context) ([]byte, error)) ([]byte, error)
}

// Releaser drops cached source bytes for a reference.
type Releaser interface {
	Release(ref string)
}

// Deps are the collaborators of a Session. Previews, Sources, Templates and
// OnSave are optional.
type Deps struct {
	Pipeline  Pipeline
	States    EditStates
	Originals Originals
	Uploader  upload.Uploader
	Templates *templates.Store
	Previews  Previews
	Sources   Releaser
	MaxUndo   int

	// OnSave is told whenever an image's listing reference changes.
	OnSave func(ctx context.Context, index int, ref string) error
}

// Session is the editor for one listing item.
type Session struct {
	deps    Deps
	itemRef string
	store   *editor.Store
	log     *slog.Logger

	mu   sync.Mutex
	refs []string

	processing atomic.Bool
	closeOnce  sync.Once
}

// Open initializes one image per ref and restores saved edit states. Load
// failures are logged and the affected images keep their defaults.
func Open(ctx context.Context, deps Deps, itemRef string, refs []string) (*Session, error) {
	if deps.Pipeline == nil || deps.States == nil || deps.Originals == nil || deps.Uploader == nil {
		return nil, errors.New("session: pipeline, states, originals and uploader are required")
	}
	if len(refs) == 0 {
		return nil, errors.New("session: item has no images")
	}
	s := &Session{
		deps:    deps,
		itemRef: itemRef,
		store:   editor.NewStore(editor.Options{MaxUndo: deps.MaxUndo}),
		log:     applog.WithComponent("session").With(slog.String("item", itemRef)),
		refs:    append([]string(nil), refs...),
	}
	for i := range refs {
		s.store.Dispatch(editor.InitImage{Index: i})
	}

	saved, err := deps.States.Load(ctx, itemRef)
	if err != nil {
		s.log.Warn("load saved states failed; using defaults", "err", err)
		saved = nil
	}
	origs, err := deps.Originals.List(ctx, itemRef)
	if err != nil {
		s.log.Warn("load originals failed", "err", err)
		origs = nil
	}
	restored := 0
	for i, ref := range refs {
		key := ref
		if o, ok := origs[i]; ok {
			key = o
		}
		if p, _, ok := storage.Lookup(saved, key); ok {
			s.store.Dispatch(editor.LoadSavedState{Index: i, Saved: p})
			restored++
		}
	}
	s.store.Dispatch(editor.SwitchImage{Index: 0})
	s.log.Info("session open", "images", len(refs), "restored", restored)
	return s, nil
}

// Dispatch forwards a to the editor store.
func (s *Session) Dispatch(a editor.Action) editor.State { return s.store.Dispatch(a) }

func (s *Session) Store() *editor.Store { return s.store }

// Refs returns the current listing references.
func (s *Session) Refs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.refs...)
}

func (s *Session) setRef(i int, ref string) {
	s.mu.Lock()
	s.refs[i] = ref
	s.mu.Unlock()
}

func (s *Session) begin() error {
	if !s.processing.CompareAndSwap(false, true) {
		return ErrSaveInProgress
	}
	return nil
}

func (s *Session) end() { s.processing.Store(false) }

// Processing reports whether a save, batch or reset is running.
func (s *Session) Processing() bool { return s.processing.Load() }

// captureOriginals records every image's current reference the first time a
// save happens for the item and returns the full original map.
func (s *Session) captureOriginals(ctx context.Context) (map[int]string, error) {
	for i, ref := range s.Refs() {
		if _, err := s.deps.Originals.Capture(ctx, s.itemRef, i, ref); err != nil {
			return nil, fmt.Errorf("capture originals: %w", err)
		}
	}
	origs, err := s.deps.Originals.List(ctx, s.itemRef)
	if err != nil {
		return nil, fmt.Errorf("list originals: %w", err)
	}
	return origs, nil
}

func (s *Session) original(origs map[int]string, i int) string {
	if o, ok := origs[i]; ok {
		return o
	}
	return s.Refs()[i]
}

// publish uploads data for image i, swaps in the new reference and persists p
// under the original reference.
func (s *Session) publish(ctx context.Context, i int, orig string, p domain.EditParams, data []byte) (string, error) {
	url, err := s.deps.Uploader.Upload(ctx, storage.Basename(orig), data)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	if s.deps.OnSave != nil {
		if err := s.deps.OnSave(ctx, i, url); err != nil {
			return "", fmt.Errorf("save callback: %w", err)
		}
	}
	s.setRef(i, url)
	if err := s.deps.States.Put(ctx, s.itemRef, orig, p); err != nil {
		return "", fmt.Errorf("persist edit state: %w", err)
	}
	return url, nil
}

// SaveActive renders the active image from its original, uploads it and
// records its parameters. The new reference is returned.
func (s *Session) SaveActive(ctx context.Context) (string, error) {
	if err := s.begin(); err != nil {
		return "", err
	}
	defer s.end()

	idx, img := s.store.Active()
	lg := applog.WithImage(applog.WithOperation(s.log, "save"), idx)
	origs, err := s.captureOriginals(ctx)
	if err != nil {
		return "", err
	}
	orig := s.original(origs, idx)
	data, err := s.deps.Pipeline.RenderRef(ctx, orig, img.Current)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	url, err := s.publish(ctx, idx, orig, img.Current, data)
	if err != nil {
		lg.Error("save failed", "err", err)
		return "", err
	}
	s.store.Dispatch(editor.MarkSaved{Index: idx})
	lg.Info("saved", "ref", url, "bytes", len(data))
	return url, nil
}

// ApplyToAll copies the active image's look onto every other image, then
// renders and publishes each of them. Per-image failures are reported in the
// result and do not stop the batch.
func (s *Session) ApplyToAll(ctx context.Context, onProgress func(batch.Progress)) (batch.Result, error) {
	if err := s.begin(); err != nil {
		return batch.Result{}, err
	}
	defer s.end()

	origs, err := s.captureOriginals(ctx)
	if err != nil {
		return batch.Result{}, err
	}
	st := s.store.State()
	srcIdx := st.Active()
	src, _ := st.Image(srcIdx)
	source := src.Current.Clone()

	var targets []batch.Target
	for _, i := range st.Indices() {
		if i == srcIdx {
			continue
		}
		img, _ := st.Image(i)
		targets = append(targets, batch.Target{Index: i, Ref: s.original(origs, i), Base: img.Current})
	}
	s.store.Dispatch(editor.ApplyToAll{})

	persist := func(ctx context.Context, t batch.Target, p domain.EditParams, data []byte) error {
		_, err := s.publish(ctx, t.Index, t.Ref, p, data)
		return err
	}
	res := batch.New(s.deps.Pipeline, persist).ApplyToAll(ctx, source, srcIdx, targets, onProgress)
	return res, nil
}

// ResetAllImages puts every captured original reference back on the listing,
// restores each image to its session baseline and forgets the originals.
func (s *Session) ResetAllImages(ctx context.Context) error {
	if err := s.begin(); err != nil {
		return err
	}
	defer s.end()

	origs, err := s.deps.Originals.List(ctx, s.itemRef)
	if err != nil {
		return fmt.Errorf("list originals: %w", err)
	}
	refs := s.Refs()
	var errs []error
	for i := range refs {
		orig, ok := origs[i]
		if !ok || orig == refs[i] {
			continue
		}
		if s.deps.OnSave != nil {
			if err := s.deps.OnSave(ctx, i, orig); err != nil {
				errs = append(errs, fmt.Errorf("restore image %d: %w", i, err))
				continue
			}
		}
		s.setRef(i, orig)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.store.Dispatch(editor.ResetAllImages{})
	if err := s.deps.Originals.Clear(ctx, s.itemRef); err != nil {
		return fmt.Errorf("clear originals: %w", err)
	}
	s.log.Info("all images reset", "restored", len(origs))
	return nil
}

// Thumbnail returns an unedited preview of image i no larger than side.
func (s *Session) Thumbnail(ctx context.Context, i, side int) ([]byte, error) {
	refs := s.Refs()
	if i < 0 || i >= len(refs) {
		return nil, fmt.Errorf("image index %d out of range", i)
	}
	gen := func(ctx context.Context) ([]byte, error) {
		return s.deps.Pipeline.Preview(ctx, refs[i], domain.DefaultEditParams(), side)
	}
	if s.deps.Previews == nil {
		return gen(ctx)
	}
	return s.deps.Previews.GetOrCreate(ctx, refs[i], side, side, gen)
}

// Snapshot returns the live parameters of every modified image keyed by its
// current reference.
func (s *Session) Snapshot() map[string]domain.EditParams {
	st := s.store.State()
	refs := s.Refs()
	out := map[string]domain.EditParams{}
	for _, i := range st.Indices() {
		if i >= len(refs) || !st.Modified(i) {
			continue
		}
		img, _ := st.Image(i)
		out[refs[i]] = img.Current.Clone()
	}
	return out
}

func (s *Session) SaveTemplate(ctx context.Context, name string) (domain.Template, error) {
	if s.deps.Templates == nil {
		return domain.Template{}, errors.New("session: no template store")
	}
	_, img := s.store.Active()
	return s.deps.Templates.Save(ctx, name, img.Current)
}

// LoadTemplate applies the template with id to the active image.
func (s *Session) LoadTemplate(ctx context.Context, id string) error {
	if s.deps.Templates == nil {
		return errors.New("session: no template store")
	}
	t, err := s.deps.Templates.Get(ctx, id)
	if err != nil {
		return err
	}
	s.store.Dispatch(editor.LoadTemplate{Template: t})
	return nil
}

func (s *Session) DeleteTemplate(ctx context.Context, id string) error {
	if s.deps.Templates == nil {
		return errors.New("session: no template store")
	}
	return s.deps.Templates.Delete(ctx, id)
}

func (s *Session) Templates(ctx context.Context) ([]domain.Template, error) {
	if s.deps.Templates == nil {
		return nil, nil
	}
	return s.deps.Templates.List(ctx)
}

// Close releases cached source bytes for every reference the session touched.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.deps.Sources == nil {
			return
		}
		seen := map[string]bool{}
		release := func(ref string) {
			if ref != "" && !seen[ref] {
				seen[ref] = true
				s.deps.Sources.Release(ref)
			}
		}
		for _, r := range s.Refs() {
			release(r)
		}
		if origs, err := s.deps.Originals.List(context.Background(), s.itemRef); err == nil {
			for _, r := range origs {
				release(r)
			}
		}
	})
}
