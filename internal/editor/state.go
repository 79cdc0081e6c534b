/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package editor implements the per-image edit state machine.
//
// All transitions are pure: Reduce takes a State and an Action and returns a new
// State without modifying the old one. Store serializes dispatches so transitions
// run to completion in dispatch order.
package editor

import (
	"sort"

	"listingstudio/internal/domain"
	"listingstudio/internal/undo"
)

// ImageState is the edit state of one image: live parameters, history and the
// session baseline.
type ImageState struct {
	Current      domain.EditParams
	SessionStart domain.EditParams
	History      undo.History[domain.EditParams]

	// committed holds the finetune values of the last commit; preview frames only
	// touch Current.
	committed domain.Finetune
}

func newImageState(maxUndo int) ImageState {
	p := domain.DefaultEditParams()
	return ImageState{
		Current:      p,
		SessionStart: p.Clone(),
		History:      undo.NewHistory[domain.EditParams](maxUndo),
	}
}

// snapshot builds an undo entry from the committed view of the image. Snapshots
// are EditParams and never carry history or baseline.
func (img ImageState) snapshot() domain.EditParams {
	p := img.Current.Clone()
	p.Finetune = img.committed
	return p
}

// Committed returns the last committed finetune values.
func (img ImageState) Committed() domain.Finetune { return img.committed }

// CanRevert reports whether there is an undo snapshot.
func (img ImageState) CanRevert() bool { return img.History.Undo.Len() > 0 }

// CanRedo reports whether a reverted snapshot can be re-applied.
func (img ImageState) CanRedo() bool { return img.History.Redo.Len() > 0 }

// Modified reports whether the image differs from its session baseline. The
// auto-computed crop geometry is ignored.
func (img ImageState) Modified() bool {
	return !img.Current.EqualIgnoringGeometry(img.SessionStart)
}

// commit applies next as a discrete edit: one snapshot of the pre-change state is
// recorded unless next changes nothing.
func (img ImageState) commit(next domain.EditParams) ImageState {
	if next.Equal(img.snapshot()) {
		img.Current = next
		return img
	}
	img.History = img.History.Record(img.snapshot())
	img.Current = next
	img.committed = next.Finetune
	return img
}

// replace installs p without touching history.
func (img ImageState) replace(p domain.EditParams) ImageState {
	img.Current = p
	img.committed = p.Finetune
	return img
}

// State is the whole editor: one ImageState per initialized index, the active
// index and the set of images saved or batch-edited in this session.
type State struct {
	images  map[int]ImageState
	edited  map[int]bool
	active  int
	maxUndo int
}

// NewState returns an empty editor. maxUndo caps each image's history (0 = unlimited).
func NewState(maxUndo int) State {
	if maxUndo < 0 {
		maxUndo = 0
	}
	return State{images: map[int]ImageState{}, edited: map[int]bool{}, maxUndo: maxUndo}
}

// Active returns the active image index.
func (s State) Active() int { return s.active }

// Image returns the state of index i. Uninitialized indices yield a default state
// and false.
func (s State) Image(i int) (ImageState, bool) {
	img, ok := s.images[i]
	if !ok {
		return newImageState(s.maxUndo), false
	}
	return img, true
}

// Indices lists the initialized image indices in ascending order.
func (s State) Indices() []int {
	out := make([]int, 0, len(s.images))
	for i := range s.images {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Edited reports whether image i was saved or batch-edited in this session.
func (s State) Edited(i int) bool { return s.edited[i] }

// Modified reports whether image i differs from its session baseline.
func (s State) Modified(i int) bool {
	img, ok := s.images[i]
	return ok && img.Modified()
}

func (s State) clone() State {
	n := State{
		images:  make(map[int]ImageState, len(s.images)+1),
		edited:  make(map[int]bool, len(s.edited)),
		active:  s.active,
		maxUndo: s.maxUndo,
	}
	for k, v := range s.images {
		n.images[k] = v
	}
	for k, v := range s.edited {
		n.edited[k] = v
	}
	return n
}

// ensure returns the state for i, creating a default one when absent.
func (s State) ensure(i int) ImageState {
	if img, ok := s.images[i]; ok {
		return img
	}
	return newImageState(s.maxUndo)
}

// updateActive runs fn on the active image and stores the result in a new State.
func (s State) updateActive(fn func(ImageState) ImageState) State {
	n := s.clone()
	n.images[n.active] = fn(n.ensure(n.active))
	return n
}
