/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "math"

// FinetuneKey names one of the three tonal sliders.
type FinetuneKey string

const (
	Brightness FinetuneKey = "brightness"
	Contrast   FinetuneKey = "contrast"
	Shadows    FinetuneKey = "shadows"
)

// FinetuneKeys lists the sliders in display order.
var FinetuneKeys = []FinetuneKey{Brightness, Contrast, Shadows}

// Valid reports whether k names a known slider.
func (k FinetuneKey) Valid() bool {
	switch k {
	case Brightness, Contrast, Shadows:
		return true
	}
	return false
}

// Get returns the value for key k (0 for unknown keys).
func (f Finetune) Get(k FinetuneKey) int {
	switch k {
	case Brightness:
		return f.Brightness
	case Contrast:
		return f.Contrast
	case Shadows:
		return f.Shadows
	}
	return 0
}

// With returns a copy with key k set to v, clamped to [-100,100].
func (f Finetune) With(k FinetuneKey, v int) Finetune {
	v = ClampFinetune(v)
	switch k {
	case Brightness:
		f.Brightness = v
	case Contrast:
		f.Contrast = v
	case Shadows:
		f.Shadows = v
	}
	return f
}

// IsZero reports whether all sliders are neutral.
func (f Finetune) IsZero() bool { return f == Finetune{} }

// ClampFinetune clamps v to the slider range.
func ClampFinetune(v int) int {
	if v < -100 {
		return -100
	}
	if v > 100 {
		return 100
	}
	return v
}

// NormalizeRotation maps any angle into [0, 360).
func NormalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

// SnapRotation rounds deg to the nearest quarter turn and normalizes it, so the
// result is always one of 0, 90, 180 or 270.
func SnapRotation(deg int) int {
	return NormalizeRotation(int(math.Round(float64(deg)/90)) * 90)
}

// DefaultEditParams is the state of an untouched image: free-form crop, neutral tone, no overlays.
func DefaultEditParams() EditParams {
	return EditParams{
		Crop:       Crop{Zoom: 1, AspectLabel: "Free"},
		Watermarks: []Watermark{},
	}
}

// Recenter resets the crop surface so the crop is derived from the aspect again.
func (c *Crop) Recenter() {
	c.Position = Point{}
	c.Zoom = 1
	c.CroppedAreaPixels = nil
	c.CroppedArea = nil
}

// Clone returns a deep copy of p; the result shares no pointers or slices with p.
func (p EditParams) Clone() EditParams {
	out := p
	out.Crop.CroppedAreaPixels = cloneArea(p.Crop.CroppedAreaPixels)
	out.Crop.CroppedArea = cloneArea(p.Crop.CroppedArea)
	if p.Crop.Aspect != nil {
		a := *p.Crop.Aspect
		out.Crop.Aspect = &a
	}
	out.Watermarks = make([]Watermark, len(p.Watermarks))
	copy(out.Watermarks, p.Watermarks)
	return out
}

// Equal deep-compares two parameter sets. A nil and an empty watermark list are equal.
func (p EditParams) Equal(o EditParams) bool {
	return p.Crop.Position == o.Crop.Position &&
		p.Crop.Zoom == o.Crop.Zoom &&
		areaEqual(p.Crop.CroppedAreaPixels, o.Crop.CroppedAreaPixels) &&
		areaEqual(p.Crop.CroppedArea, o.Crop.CroppedArea) &&
		p.EqualIgnoringGeometry(o)
}

// EqualIgnoringGeometry compares everything except the auto-computed crop fields
// (position, zoom and both crop rectangles). The crop surface reports its geometry
// on mount, so those fields change on untouched images.
func (p EditParams) EqualIgnoringGeometry(o EditParams) bool {
	if !aspectEqual(p.Crop.Aspect, o.Crop.Aspect) || p.Crop.AspectLabel != o.Crop.AspectLabel {
		return false
	}
	if p.Finetune != o.Finetune || p.Rotation != o.Rotation || p.FlipH != o.FlipH || p.FlipV != o.FlipV {
		return false
	}
	if len(p.Watermarks) != len(o.Watermarks) {
		return false
	}
	for i := range p.Watermarks {
		if p.Watermarks[i] != o.Watermarks[i] {
			return false
		}
	}
	return true
}

// TransferTo copies the transferable parameters of src (finetune, rotation, flips and
// crop aspect) onto base and resets base's crop geometry, which only makes sense for
// the image it was measured on. Watermarks of base are kept.
func TransferTo(base, src EditParams) EditParams {
	out := base.Clone()
	out.Finetune = src.Finetune
	out.Rotation = SnapRotation(src.Rotation)
	out.FlipH = src.FlipH
	out.FlipV = src.FlipV
	out.Crop.Aspect = nil
	if src.Crop.Aspect != nil {
		a := *src.Crop.Aspect
		out.Crop.Aspect = &a
	}
	out.Crop.AspectLabel = src.Crop.AspectLabel
	out.Crop.Recenter()
	return out
}

// IndexOfWatermark returns the position of the watermark with id, or -1.
func (p EditParams) IndexOfWatermark(id string) int {
	for i, w := range p.Watermarks {
		if w.ID == id {
			return i
		}
	}
	return -1
}

// Apply returns w with the non-nil fields of patch applied.
func (w Watermark) Apply(patch WatermarkPatch) Watermark {
	if patch.Text != nil {
		w.Text = *patch.Text
	}
	if patch.FontFamily != nil {
		w.FontFamily = *patch.FontFamily
	}
	if patch.FontSize != nil {
		w.FontSize = *patch.FontSize
	}
	if patch.Color != nil {
		w.Color = *patch.Color
	}
	if patch.Opacity != nil {
		w.Opacity = math.Min(1, math.Max(0, *patch.Opacity))
	}
	if patch.X != nil {
		w.X = *patch.X
	}
	if patch.Y != nil {
		w.Y = *patch.Y
	}
	return w
}

func cloneArea(a *Area) *Area {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func areaEqual(a, b *Area) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SameAspect reports whether c and o lock the same aspect under the same label.
func (c Crop) SameAspect(o Crop) bool {
	return aspectEqual(c.Aspect, o.Aspect) && c.AspectLabel == o.AspectLabel
}

func aspectEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
