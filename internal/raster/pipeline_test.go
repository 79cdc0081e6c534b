/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package raster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/disintegration/imaging"

	"listingstudio/internal/domain"
	"listingstudio/internal/textlayout"
)

func ptr[T any](v T) *T { return &v }

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// gradient gives every pixel a distinct value so geometry is observable.
func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 7, A: 255})
		}
	}
	return img
}

func newTestRenderer() *Renderer {
	return New(Options{Fonts: textlayout.BasicProvider{}})
}

func TestResolveCrop(t *testing.T) {
	b := image.Rect(0, 0, 1000, 500)

	r, fb := ResolveCrop(b, domain.Crop{Aspect: ptr(1.0)})
	if r != image.Rect(250, 0, 750, 500) || fb {
		t.Fatalf("aspect 1 on 1000x500 = %v, want (250,0)-(750,500)", r)
	}
	r, _ = ResolveCrop(b, domain.Crop{Aspect: ptr(4.0)})
	if r != image.Rect(0, 125, 1000, 375) {
		t.Fatalf("aspect 4 on 1000x500 = %v", r)
	}
	r, _ = ResolveCrop(b, domain.Crop{CroppedAreaPixels: &domain.Area{X: 900, Y: 400, Width: 300, Height: 300}, Aspect: ptr(1.0)})
	if r != image.Rect(900, 400, 1000, 500) {
		t.Fatalf("explicit crop should clamp to bounds, got %v", r)
	}
	r, fb = ResolveCrop(b, domain.Crop{CroppedAreaPixels: &domain.Area{X: 2000, Y: 0, Width: 10, Height: 10}})
	if r != b || !fb {
		t.Fatalf("zero-area clamp should fall back to full rect, got %v fb=%v", r, fb)
	}
	r, fb = ResolveCrop(b, domain.Crop{CroppedAreaPixels: &domain.Area{Width: 0, Height: 10}})
	if r != b || fb {
		t.Fatalf("non-positive crop should be ignored, got %v fb=%v", r, fb)
	}
}

func TestOutputSize(t *testing.T) {
	cases := []struct{ deg, w, h int }{{0, 40, 20}, {90, 20, 40}, {180, 40, 20}, {270, 20, 40}}
	for _, c := range cases {
		if w, h := OutputSize(40, 20, c.deg); w != c.w || h != c.h {
			t.Fatalf("OutputSize(40,20,%d) = %dx%d, want %dx%d", c.deg, w, h, c.w, c.h)
		}
	}
	if w, h := OutputSize(10, 10, 45); w != 14 || h != 14 {
		t.Fatalf("45° bounding box = %dx%d", w, h)
	}
}

func TestComposeIdentity(t *testing.T) {
	src := gradient(8, 5)
	out := newTestRenderer().Compose(src, domain.DefaultEditParams(), nil)
	if !bytes.Equal(out.Pix, src.Pix) {
		t.Fatalf("default params should reproduce the source")
	}
}

func TestComposeRotateClockwise(t *testing.T) {
	src := gradient(4, 2)
	p := domain.DefaultEditParams()
	p.Rotation = 90
	out := newTestRenderer().Compose(src, p, nil)
	if out.Bounds().Dx() != 2 || out.Bounds().Dy() != 4 {
		t.Fatalf("rotated bounds = %v", out.Bounds())
	}
	// Clockwise: output top-left is the source bottom-left.
	if got, want := out.NRGBAAt(0, 0), src.NRGBAAt(0, 1); got != want {
		t.Fatalf("top-left = %v, want %v", got, want)
	}
	if got, want := out.NRGBAAt(1, 3), src.NRGBAAt(3, 0); got != want {
		t.Fatalf("bottom-right = %v, want %v", got, want)
	}
}

func TestComposeFlip(t *testing.T) {
	src := gradient(3, 3)
	p := domain.DefaultEditParams()
	p.FlipH = true
	out := newTestRenderer().Compose(src, p, nil)
	if out.NRGBAAt(0, 1) != src.NRGBAAt(2, 1) {
		t.Fatalf("horizontal flip mismatch")
	}
	p.FlipH, p.FlipV = false, true
	out = newTestRenderer().Compose(src, p, nil)
	if out.NRGBAAt(1, 0) != src.NRGBAAt(1, 2) {
		t.Fatalf("vertical flip mismatch")
	}
}

func TestComposeCropFromAspect(t *testing.T) {
	src := gradient(20, 10)
	p := domain.DefaultEditParams()
	p.Crop.Aspect = ptr(1.0)
	out := newTestRenderer().Compose(src, p, nil)
	if out.Bounds().Dx() != 10 || out.Bounds().Dy() != 10 {
		t.Fatalf("bounds = %v", out.Bounds())
	}
	if out.NRGBAAt(0, 0) != src.NRGBAAt(5, 0) {
		t.Fatalf("crop not centered")
	}
}

func TestToneBrightnessZeroIsIdentity(t *testing.T) {
	if gammaLUT(0) != nil || contrastLUT(0) != nil {
		t.Fatalf("zero adjustments should skip their pass")
	}
	src := solid(2, 2, color.NRGBA{R: 100, G: 150, B: 200, A: 255})
	p := domain.DefaultEditParams()
	p.Finetune.Brightness = 50
	out := newTestRenderer().Compose(src, p, nil)
	// gamma 0.5 brightens: sqrt(100/255)*255 ≈ 160
	if got := out.NRGBAAt(0, 0).R; got != 160 {
		t.Fatalf("brightness +50 R = %d, want 160", got)
	}
	if out.NRGBAAt(0, 0).A != 255 {
		t.Fatalf("alpha must be untouched")
	}
}

func TestToneContrast(t *testing.T) {
	src := solid(1, 1, color.NRGBA{R: 60, G: 128, B: 255, A: 255})
	p := domain.DefaultEditParams()
	p.Finetune.Contrast = -100
	got := newTestRenderer().Compose(src, p, nil).NRGBAAt(0, 0)
	if got.R != 128 || got.G != 128 || got.B != 128 {
		t.Fatalf("contrast -100 should flatten to mid gray, got %v", got)
	}
	p.Finetune.Contrast = 100
	got = newTestRenderer().Compose(src, p, nil).NRGBAAt(0, 0)
	if got.R != 0 || got.B != 255 {
		t.Fatalf("contrast +100 should stretch, got %v", got)
	}
}

func TestShadowsLiftBlack(t *testing.T) {
	src := solid(2, 2, color.NRGBA{A: 255})
	p := domain.DefaultEditParams()
	p.Finetune.Shadows = 50
	got := newTestRenderer().Compose(src, p, nil).NRGBAAt(1, 1)
	if got.R != 50 || got.G != 50 || got.B != 50 {
		t.Fatalf("shadows +50 on black = %v, want 50", got)
	}
	white := solid(1, 1, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	if got := newTestRenderer().Compose(white, p, nil).NRGBAAt(0, 0); got.R != 255 {
		t.Fatalf("bright pixels should be skipped, got %v", got)
	}
}

func TestWatermarkDrawn(t *testing.T) {
	src := solid(100, 40, color.NRGBA{A: 255})
	p := domain.DefaultEditParams()
	wms := []domain.Watermark{
		{ID: "a", Text: "SALE", Color: "#ffffff", Opacity: 1, X: 10, Y: 10},
		{ID: "b", Text: "HIDDEN", Color: "white", Opacity: 0, X: 50, Y: 50},
	}
	out := newTestRenderer().Compose(src, p, wms)
	lit := 0
	for y := 0; y < 40; y++ {
		for x := 0; x < 100; x++ {
			c := out.NRGBAAt(x, y)
			if c.R > 0 {
				lit++
				if x < 10 || y < 4 {
					t.Fatalf("text drawn left/above its anchor at (%d,%d)", x, y)
				}
			}
		}
	}
	if lit == 0 {
		t.Fatalf("watermark text not drawn")
	}
}

func TestParseColor(t *testing.T) {
	c, ok := ParseColor("#f00")
	if !ok || c != (color.NRGBA{R: 255, A: 255}) {
		t.Fatalf("#f00 = %v %v", c, ok)
	}
	if c, ok := ParseColor("White"); !ok || c.G != 255 {
		t.Fatalf("white = %v %v", c, ok)
	}
	if _, ok := ParseColor("not-a-color"); ok {
		t.Fatalf("expected parse failure")
	}
}

func TestRenderEncodesJPEG(t *testing.T) {
	r := newTestRenderer()
	data, err := r.Render(context.Background(), gradient(30, 20), domain.DefaultEditParams(), nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if img.Bounds().Dx() != 30 || img.Bounds().Dy() != 20 {
		t.Fatalf("output bounds = %v", img.Bounds())
	}
	if !bytes.HasPrefix(data, []byte{0xff, 0xd8}) {
		t.Fatalf("expected JPEG SOI marker")
	}

	if _, err := r.Render(context.Background(), image.NewNRGBA(image.Rect(0, 0, 0, 0)), domain.DefaultEditParams(), nil); !errors.Is(err, ErrSource) {
		t.Fatalf("empty source err = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Render(ctx, gradient(2, 2), domain.DefaultEditParams(), nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled render err = %v", err)
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSourceCacheFetchesRemoteOnce(t *testing.T) {
	body := encodePNG(t, gradient(6, 4))
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	c := NewSourceCache(srv.Client())
	ref := srv.URL + "/items/42/photo.png"
	for i := 0; i < 2; i++ {
		img, err := c.Load(context.Background(), ref)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if img.Bounds().Dx() != 6 {
			t.Fatalf("bounds = %v", img.Bounds())
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one fetch, got %d", hits.Load())
	}
	if b, ok := c.Bytes(ref); !ok || !bytes.Equal(b, body) {
		t.Fatalf("raw bytes not retained")
	}
	c.Release(ref)
	if c.Len() != 0 {
		t.Fatalf("release did not drop buffers")
	}
}

func TestSourceCacheFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	c := NewSourceCache(srv.Client())
	_, err := c.Load(context.Background(), srv.URL+"/x.jpg")
	if !errors.Is(err, ErrSource) {
		t.Fatalf("expected ErrSource, got %v", err)
	}
	if !strings.Contains(err.Error(), "403") || strings.Contains(err.Error(), "direct access") {
		t.Fatalf("remote failure should report only the fetch error: %v", err)
	}

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.jpg")
	if err := os.WriteFile(bad, []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Load(context.Background(), bad); !errors.Is(err, ErrSource) {
		t.Fatalf("expected ErrSource for undecodable file, got %v", err)
	}
}

func TestRenderRefAndPreviewFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "src.png")
	if err := os.WriteFile(path, encodePNG(t, gradient(200, 100)), 0o600); err != nil {
		t.Fatal(err)
	}
	r := newTestRenderer()
	t.Cleanup(r.Close)

	p := domain.DefaultEditParams()
	p.Rotation = 270
	data, err := r.RenderRef(context.Background(), "file://"+path, p)
	if err != nil {
		t.Fatalf("RenderRef: %v", err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 200 {
		t.Fatalf("rotated output = %v", img.Bounds())
	}

	prev, err := r.Preview(context.Background(), path, domain.DefaultEditParams(), 50)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	pimg, err := png.Decode(bytes.NewReader(prev))
	if err != nil {
		t.Fatalf("preview should be PNG: %v", err)
	}
	if pimg.Bounds().Dx() != 50 || pimg.Bounds().Dy() != 25 {
		t.Fatalf("preview bounds = %v", pimg.Bounds())
	}
}
