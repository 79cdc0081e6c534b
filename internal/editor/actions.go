/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"math"

	"github.com/google/uuid"

	"listingstudio/internal/domain"
)

// Action is a state transition. Every action type carries its own handler, so
// adding an action without a handler does not compile.
type Action interface {
	apply(State) State
}

// Reduce applies a to s and returns the resulting State. s is not modified.
func Reduce(s State, a Action) State {
	if a == nil {
		return s
	}
	return a.apply(s)
}

// InitImage creates the default state for Index if it does not exist yet.
type InitImage struct{ Index int }

func (a InitImage) apply(s State) State {
	if _, ok := s.images[a.Index]; ok {
		return s
	}
	n := s.clone()
	n.images[a.Index] = newImageState(n.maxUndo)
	return n
}

// SwitchImage changes the active image. No image state is touched.
type SwitchImage struct{ Index int }

func (a SwitchImage) apply(s State) State {
	n := s.clone()
	n.active = a.Index
	return n
}

// SetCropPosition is a crop drag/zoom preview. Zoom nil keeps the current zoom.
type SetCropPosition struct {
	Position domain.Point
	Zoom     *float64
}

func (a SetCropPosition) apply(s State) State {
	return s.updateActive(func(img ImageState) ImageState {
		img.Current = img.Current.Clone()
		img.Current.Crop.Position = a.Position
		if a.Zoom != nil {
			img.Current.Crop.Zoom = math.Max(1, *a.Zoom)
		}
		return img
	})
}

// SetCropComplete records the crop surface's computed rectangles.
type SetCropComplete struct {
	Area       *domain.Area
	AreaPixels *domain.Area
}

func (a SetCropComplete) apply(s State) State {
	return s.updateActive(func(img ImageState) ImageState {
		p := img.Current.Clone()
		p.Crop.CroppedArea = copyArea(a.Area)
		p.Crop.CroppedAreaPixels = copyArea(a.AreaPixels)
		img.Current = p
		return img
	})
}

// SetAspect locks the crop to Aspect (nil for free-form) and recenters it.
type SetAspect struct {
	Aspect *float64
	Label  string
}

func (a SetAspect) apply(s State) State {
	return s.updateActive(func(img ImageState) ImageState {
		next := img.snapshot()
		next.Crop.Aspect = nil
		if a.Aspect != nil && *a.Aspect > 0 && !math.IsInf(*a.Aspect, 0) && !math.IsNaN(*a.Aspect) {
			v := *a.Aspect
			next.Crop.Aspect = &v
		}
		next.Crop.AspectLabel = a.Label
		if next.Crop.SameAspect(img.Current.Crop) {
			// Same lock: recenter without an undo step.
			cur := img.Current.Clone()
			cur.Crop.Recenter()
			img.Current = cur
			return img
		}
		next.Crop.Recenter()
		return img.commit(next)
	})
}

// SetFinetunePreview updates the live slider value while dragging.
type SetFinetunePreview struct {
	Key   domain.FinetuneKey
	Value int
}

func (a SetFinetunePreview) apply(s State) State {
	if !a.Key.Valid() {
		return s
	}
	return s.updateActive(func(img ImageState) ImageState {
		img.Current = img.Current.Clone()
		img.Current.Finetune = img.Current.Finetune.With(a.Key, a.Value)
		return img
	})
}

// SetFinetune commits a slider release. The recorded snapshot holds the value the
// slider had before the drag started, not the last preview frame.
type SetFinetune struct {
	Key   domain.FinetuneKey
	Value int
}

func (a SetFinetune) apply(s State) State {
	if !a.Key.Valid() {
		return s
	}
	return s.updateActive(func(img ImageState) ImageState {
		v := domain.ClampFinetune(a.Value)
		if img.committed.Get(a.Key) == v {
			img.Current = img.Current.Clone()
			img.Current.Finetune = img.Current.Finetune.With(a.Key, v)
			return img
		}
		img.History = img.History.Record(img.snapshot())
		img.Current = img.Current.Clone()
		img.Current.Finetune = img.committed.With(a.Key, v)
		img.committed = img.Current.Finetune
		return img
	})
}

// ResetFinetune zeroes all three sliders as one undo step.
type ResetFinetune struct{}

func (ResetFinetune) apply(s State) State {
	return s.updateActive(func(img ImageState) ImageState {
		if img.Current.Finetune.IsZero() && img.committed.IsZero() {
			return img
		}
		next := img.snapshot()
		next.Finetune = domain.Finetune{}
		return img.commit(next)
	})
}

// RotateLeft rotates counter-clockwise by 90 degrees.
type RotateLeft struct{}

func (RotateLeft) apply(s State) State { return rotate(s, -90) }

// RotateRight rotates clockwise by 90 degrees.
type RotateRight struct{}

func (RotateRight) apply(s State) State { return rotate(s, 90) }

func rotate(s State, delta int) State {
	return s.updateActive(func(img ImageState) ImageState {
		next := img.snapshot()
		next.Rotation = domain.SnapRotation(next.Rotation + delta)
		return img.commit(next)
	})
}

// ToggleFlipH mirrors the image horizontally.
type ToggleFlipH struct{}

func (ToggleFlipH) apply(s State) State {
	return s.updateActive(func(img ImageState) ImageState {
		next := img.snapshot()
		next.FlipH = !next.FlipH
		return img.commit(next)
	})
}

// ToggleFlipV mirrors the image vertically.
type ToggleFlipV struct{}

func (ToggleFlipV) apply(s State) State {
	return s.updateActive(func(img ImageState) ImageState {
		next := img.snapshot()
		next.FlipV = !next.FlipV
		return img.commit(next)
	})
}

// AddWatermark appends a watermark. An empty ID, or one already used on the
// image, is replaced with a fresh one.
type AddWatermark struct{ Watermark domain.Watermark }

func (a AddWatermark) apply(s State) State {
	w := a.Watermark
	w.Opacity = math.Min(1, math.Max(0, w.Opacity))
	return s.updateActive(func(img ImageState) ImageState {
		next := img.snapshot()
		if w.ID == "" || next.IndexOfWatermark(w.ID) >= 0 {
			w.ID = uuid.NewString()
		}
		next.Watermarks = append(next.Watermarks, w)
		return img.commit(next)
	})
}

// RemoveWatermark deletes the watermark with ID; unknown ids are ignored.
type RemoveWatermark struct{ ID string }

func (a RemoveWatermark) apply(s State) State {
	img := s.ensure(s.active)
	idx := img.Current.IndexOfWatermark(a.ID)
	if idx < 0 {
		return s
	}
	return s.updateActive(func(img ImageState) ImageState {
		next := img.snapshot()
		next.Watermarks = append(next.Watermarks[:idx:idx], next.Watermarks[idx+1:]...)
		return img.commit(next)
	})
}

// UpdateWatermark edits a watermark live (dragging, typing). It records no undo.
type UpdateWatermark struct {
	ID    string
	Patch domain.WatermarkPatch
}

func (a UpdateWatermark) apply(s State) State {
	img := s.ensure(s.active)
	idx := img.Current.IndexOfWatermark(a.ID)
	if idx < 0 {
		return s
	}
	return s.updateActive(func(img ImageState) ImageState {
		p := img.Current.Clone()
		p.Watermarks[idx] = p.Watermarks[idx].Apply(a.Patch)
		img.Current = p
		return img
	})
}

// LoadTemplate merges a template into the active image and recenters the crop.
type LoadTemplate struct{ Template domain.Template }

func (a LoadTemplate) apply(s State) State {
	return s.updateActive(func(img ImageState) ImageState {
		return img.commit(a.Template.ApplyTo(img.snapshot()))
	})
}

// Revert restores the most recent undo snapshot of the active image.
type Revert struct{}

func (Revert) apply(s State) State {
	img := s.ensure(s.active)
	if !img.CanRevert() {
		return s
	}
	return s.updateActive(func(img ImageState) ImageState {
		h, prev, _ := img.History.Back(img.snapshot())
		img.History = h
		return img.replace(prev)
	})
}

// Redo re-applies the most recently reverted snapshot.
type Redo struct{}

func (Redo) apply(s State) State {
	img := s.ensure(s.active)
	if !img.CanRedo() {
		return s
	}
	return s.updateActive(func(img ImageState) ImageState {
		h, next, _ := img.History.Forward(img.snapshot())
		img.History = h
		return img.replace(next)
	})
}

// ResetAll restores the active image to its session baseline and drops its history.
type ResetAll struct{}

func (ResetAll) apply(s State) State {
	n := s.clone()
	n.images[n.active] = resetImage(n.ensure(n.active))
	delete(n.edited, n.active)
	return n
}

// ResetAllImages restores every tracked image to its session baseline.
type ResetAllImages struct{}

func (ResetAllImages) apply(s State) State {
	n := s.clone()
	for i, img := range n.images {
		n.images[i] = resetImage(img)
	}
	n.edited = map[int]bool{}
	return n
}

func resetImage(img ImageState) ImageState {
	img.History = img.History.Clear()
	return img.replace(img.SessionStart.Clone())
}

// ApplyToAll copies the active image's finetune, rotation, flips and crop aspect
// to every target, recording one undo step per changed target. Crop geometry is
// cleared on targets. Targets nil means every other initialized image. The
// active image and all targets are marked edited.
type ApplyToAll struct{ Targets []int }

func (a ApplyToAll) apply(s State) State {
	n := s.clone()
	src := n.ensure(n.active).snapshot()
	targets := a.Targets
	if targets == nil {
		targets = s.Indices()
	}
	for _, t := range targets {
		if t == n.active {
			continue
		}
		img := n.ensure(t)
		n.images[t] = img.commit(domain.TransferTo(img.snapshot(), src))
		n.edited[t] = true
	}
	if _, ok := n.images[n.active]; !ok {
		n.images[n.active] = n.ensure(n.active)
	}
	n.edited[n.active] = true
	return n
}

// LoadSavedState replaces an image's state with a persisted one. The loaded
// parameters become the new session baseline and history is dropped.
type LoadSavedState struct {
	Index int
	Saved domain.EditParams
}

func (a LoadSavedState) apply(s State) State {
	saved := a.Saved.Clone()
	saved.Rotation = domain.SnapRotation(saved.Rotation)
	if saved.Crop.Zoom < 1 {
		saved.Crop.Zoom = 1
	}
	n := s.clone()
	img := newImageState(n.maxUndo)
	img.SessionStart = saved.Clone()
	n.images[a.Index] = img.replace(saved)
	return n
}

// MarkSaved flags Index as edited after a successful save.
type MarkSaved struct{ Index int }

func (a MarkSaved) apply(s State) State {
	if s.edited[a.Index] {
		return s
	}
	n := s.clone()
	n.edited[a.Index] = true
	return n
}

func copyArea(a *domain.Area) *domain.Area {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}
