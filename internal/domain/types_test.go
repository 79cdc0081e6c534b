/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"testing"
)

func TestCloneSharesNothing(t *testing.T) {
	a := 1.5
	p := DefaultEditParams()
	p.Crop.Aspect = &a
	p.Crop.CroppedAreaPixels = &Area{X: 1, Y: 2, Width: 3, Height: 4}
	p.Watermarks = append(p.Watermarks, Watermark{ID: "w1", Text: "hi"})

	c := p.Clone()
	*c.Crop.Aspect = 2
	c.Crop.CroppedAreaPixels.Width = 99
	c.Watermarks[0].Text = "changed"

	if *p.Crop.Aspect != 1.5 || p.Crop.CroppedAreaPixels.Width != 3 || p.Watermarks[0].Text != "hi" {
		t.Fatalf("clone aliases original: %+v", p)
	}
}

func TestEqualIgnoringGeometry(t *testing.T) {
	a := DefaultEditParams()
	b := DefaultEditParams()
	b.Crop.Position = Point{X: 12, Y: -3}
	b.Crop.Zoom = 1.7
	b.Crop.CroppedAreaPixels = &Area{Width: 10, Height: 10}
	b.Crop.CroppedArea = &Area{Width: 50, Height: 50}
	if a.Equal(b) {
		t.Fatalf("Equal should see geometry differences")
	}
	if !a.EqualIgnoringGeometry(b) {
		t.Fatalf("geometry-only change must not count")
	}
	b.FlipH = true
	if a.EqualIgnoringGeometry(b) {
		t.Fatalf("flip must count as a modification")
	}
}

func TestNilAndEmptyWatermarksEqual(t *testing.T) {
	a := DefaultEditParams()
	b := DefaultEditParams()
	b.Watermarks = nil
	if !a.Equal(b) {
		t.Fatalf("nil and empty watermark lists should compare equal")
	}
}

func TestNormalizeRotation(t *testing.T) {
	cases := map[int]int{0: 0, 90: 90, 360: 0, -90: 270, 450: 90, -360: 0}
	for in, want := range cases {
		if got := NormalizeRotation(in); got != want {
			t.Fatalf("NormalizeRotation(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSnapRotation(t *testing.T) {
	cases := map[int]int{0: 0, 44: 0, 45: 90, 91: 90, -45: 270, -90: 270, 225: 270, 315: 0, 630: 270}
	for in, want := range cases {
		if got := SnapRotation(in); got != want {
			t.Fatalf("SnapRotation(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestTransferToResetsGeometryKeepsWatermarks(t *testing.T) {
	one := 1.0
	src := DefaultEditParams()
	src.Finetune = Finetune{Brightness: 20, Contrast: -5, Shadows: 7}
	src.Rotation = 90
	src.FlipV = true
	src.Crop.Aspect = &one
	src.Crop.AspectLabel = "1:1"
	src.Crop.CroppedAreaPixels = &Area{X: 5, Y: 5, Width: 100, Height: 100}

	base := DefaultEditParams()
	base.Crop.CroppedAreaPixels = &Area{X: 1, Y: 1, Width: 2, Height: 2}
	base.Watermarks = []Watermark{{ID: "keep"}}

	got := TransferTo(base, src)
	if got.Finetune != src.Finetune || got.Rotation != 90 || !got.FlipV || got.FlipH {
		t.Fatalf("transfer lost parameters: %+v", got)
	}
	if got.Crop.Aspect == nil || *got.Crop.Aspect != 1 || got.Crop.AspectLabel != "1:1" {
		t.Fatalf("aspect not transferred: %+v", got.Crop)
	}
	if got.Crop.CroppedAreaPixels != nil || got.Crop.CroppedArea != nil || got.Crop.Zoom != 1 {
		t.Fatalf("geometry not reset: %+v", got.Crop)
	}
	if len(got.Watermarks) != 1 || got.Watermarks[0].ID != "keep" {
		t.Fatalf("watermarks of target should be kept: %+v", got.Watermarks)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	sq := 1.0
	p := DefaultEditParams()
	p.Finetune.Brightness = 20
	p.Crop.Aspect = &sq
	p.Crop.AspectLabel = "Square"
	p.Watermarks = []Watermark{{ID: "x", Text: "mine"}}

	tpl := TemplateFrom("bright square", p)
	b, err := json.Marshal(tpl)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Template
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	fresh := back.ApplyTo(DefaultEditParams())
	if fresh.Finetune.Brightness != 20 {
		t.Fatalf("brightness = %d, want 20", fresh.Finetune.Brightness)
	}
	if fresh.Crop.Aspect == nil || *fresh.Crop.Aspect != 1 || fresh.Crop.CroppedAreaPixels != nil {
		t.Fatalf("crop not recentered on template aspect: %+v", fresh.Crop)
	}
	if len(fresh.Watermarks) != 0 {
		t.Fatalf("template must not carry watermarks")
	}
}

func TestWatermarkApplyClampsOpacity(t *testing.T) {
	op := 1.7
	txt := "SOLD"
	w := Watermark{ID: "a", Text: "x", Opacity: 0.5}.Apply(WatermarkPatch{Opacity: &op, Text: &txt})
	if w.Opacity != 1 || w.Text != "SOLD" || w.ID != "a" {
		t.Fatalf("unexpected patch result: %+v", w)
	}
}
