/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FontLibrary stores parsed OpenType fonts by lower-cased family name.
type FontLibrary struct {
	mu       sync.RWMutex
	fonts    map[string]*opentype.Font
	fallback string
}

func NewFontLibrary() *FontLibrary { return &FontLibrary{fonts: make(map[string]*opentype.Font)} }

// DefaultLibrary returns a library with the bundled Go fonts registered under
// the generic CSS families and the names the watermark picker offers. Unknown
// families resolve to the regular face.
func DefaultLibrary() *FontLibrary {
	fl := NewFontLibrary()
	must := func(family string, data []byte) {
		if err := fl.Register(family, data); err != nil {
			panic(err)
		}
	}
	must("sans-serif", goregular.TTF)
	must("Arial", goregular.TTF)
	must("Helvetica", goregular.TTF)
	must("Impact", gobold.TTF)
	must("bold", gobold.TTF)
	must("monospace", gomono.TTF)
	must("Courier New", gomono.TTF)
	fl.fallback = "sans-serif"
	return fl
}

// Register parses data and stores it under family. The first registered
// family becomes the fallback unless one is already set.
func (fl *FontLibrary) Register(family string, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %q: %w", family, err)
	}
	key := normFamily(family)
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.fonts == nil {
		fl.fonts = make(map[string]*opentype.Font)
	}
	fl.fonts[key] = f
	if fl.fallback == "" {
		fl.fallback = key
	}
	return nil
}

// LoadTTF loads a font file from disk under family.
func (fl *FontLibrary) LoadTTF(family, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", path, err)
	}
	return fl.Register(family, data)
}

// Families lists registered family keys.
func (fl *FontLibrary) Families() []string {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	out := make([]string, 0, len(fl.fonts))
	for k := range fl.fonts {
		out = append(out, k)
	}
	return out
}

// find accepts a CSS-style family list ("Impact, sans-serif") and returns the
// first registered match, then the fallback.
func (fl *FontLibrary) find(family string) *opentype.Font {
	if fl == nil {
		return nil
	}
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	for _, cand := range strings.Split(family, ",") {
		if f, ok := fl.fonts[normFamily(cand)]; ok {
			return f
		}
	}
	return fl.fonts[normFamily(fl.fallback)]
}

func normFamily(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), `"'`))
}

// OTProvider resolves FontSpec through a FontLibrary and falls back to another
// Provider when nothing matches. Faces are cached per family and size.
type OTProvider struct {
	Lib      *FontLibrary
	DPI      float64 // 72 when zero, so SizePt maps 1:1 to pixels
	Fallback Provider

	mu    sync.Mutex
	faces map[faceKey]resolved
}

type faceKey struct {
	family string
	size   float32
}

type resolved struct {
	face font.Face
	met  Metrics
}

func NewOTProvider(lib *FontLibrary) *OTProvider { return &OTProvider{Lib: lib} }

func (p *OTProvider) Resolve(spec FontSpec) (font.Face, Metrics) {
	if spec.SizePt <= 0 {
		spec.SizePt = 12
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = 72
	}
	key := faceKey{family: normFamily(spec.Family), size: spec.SizePt}

	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.faces[key]; ok {
		return r.face, r.met
	}
	if f := p.Lib.find(spec.Family); f != nil {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: float64(spec.SizePt), DPI: dpi, Hinting: font.HintingNone})
		if err == nil {
			r := resolved{face: face, met: metricsOf(face)}
			if p.faces == nil {
				p.faces = make(map[faceKey]resolved)
			}
			p.faces[key] = r
			return r.face, r.met
		}
	}
	fb := p.Fallback
	if fb == nil {
		fb = BasicProvider{}
	}
	return fb.Resolve(spec)
}
