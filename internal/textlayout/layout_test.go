/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"testing"

	"golang.org/x/image/font/gofont/goregular"
)

func TestMeasure_Deterministic(t *testing.T) {
	w1, h1 := Measure(BasicProvider{}, FontSpec{}, "ABC")
	wa, _ := Measure(BasicProvider{}, FontSpec{}, "A")
	wbc, h2 := Measure(BasicProvider{}, FontSpec{}, "BC")
	if w1 != wa+wbc || h1 != h2 {
		t.Fatalf("expected additive widths, got %v vs %v+%v", w1, wa, wbc)
	}
	if w1 != 21 || h1 <= 0 {
		t.Fatalf("Face7x13 should be 7px per glyph, got w=%v h=%v", w1, h1)
	}
}

func TestDefaultLibraryResolvesFamilies(t *testing.T) {
	p := NewOTProvider(DefaultLibrary())

	_, met := p.Resolve(FontSpec{Family: "Arial", SizePt: 40})
	if met.Ascent < 30 || met.Ascent > 45 {
		t.Fatalf("unexpected ascent for 40px face: %v", met.Ascent)
	}
	// Unknown families fall back to the regular face rather than basicfont.
	f1, _ := p.Resolve(FontSpec{Family: "Comic Sans MS", SizePt: 40})
	f2, _ := p.Resolve(FontSpec{Family: "sans-serif", SizePt: 40})
	w1, _ := Measure(p, FontSpec{Family: "Comic Sans MS", SizePt: 40}, "Sale")
	w2, _ := Measure(p, FontSpec{Family: "sans-serif", SizePt: 40}, "Sale")
	if f1 == nil || f2 == nil || w1 != w2 {
		t.Fatalf("fallback face mismatch: %v vs %v", w1, w2)
	}
	wide, _ := Measure(p, FontSpec{Family: "'Impact', sans-serif", SizePt: 40}, "Sale")
	if wide == w2 {
		t.Fatalf("Impact should resolve to the bold face")
	}
}

func TestProviderCachesFaces(t *testing.T) {
	p := NewOTProvider(DefaultLibrary())
	a, _ := p.Resolve(FontSpec{Family: "monospace", SizePt: 18})
	b, _ := p.Resolve(FontSpec{Family: "MONOSPACE", SizePt: 18})
	if a != b {
		t.Fatalf("expected cached face for same family and size")
	}
}

func TestEmptyLibraryUsesFallbackProvider(t *testing.T) {
	p := NewOTProvider(NewFontLibrary())
	w, _ := Measure(p, FontSpec{Family: "Arial", SizePt: 30}, "AB")
	if w != 14 {
		t.Fatalf("expected basicfont width 14, got %v", w)
	}
	lib := NewFontLibrary()
	if err := lib.Register("Brand", goregular.TTF); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := lib.Register("broken", []byte("not a font")); err == nil {
		t.Fatalf("expected parse error")
	}
	if got := lib.Families(); len(got) != 1 || got[0] != "brand" {
		t.Fatalf("families = %v", got)
	}
}

func TestBaselineOffsetsByAscent(t *testing.T) {
	pt := Baseline(BasicProvider{}, FontSpec{}, 10, 20)
	_, met := BasicProvider{}.Resolve(FontSpec{})
	if pt.X.Round() != 10 || pt.Y.Round() != 20+int(met.Ascent) {
		t.Fatalf("baseline = %v", pt)
	}
}
