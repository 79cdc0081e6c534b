/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package raster turns a source image plus edit parameters into encoded output
// bytes: crop, rotate, flip, tone and watermark passes, then JPEG.
package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"

	"github.com/disintegration/imaging"

	"listingstudio/internal/domain"
	applog "listingstudio/internal/log"
	"listingstudio/internal/textlayout"
)

var (
	// ErrSource wraps failures to obtain or decode source pixels.
	ErrSource = errors.New("raster: source unavailable")
	// ErrEncode wraps failures while encoding the output surface.
	ErrEncode = errors.New("raster: encode failed")
)

type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
)

type Options struct {
	Quality int    // JPEG quality, 95 when zero
	Format  Format // JPEG when empty
	Fonts   textlayout.Provider
	Client  *http.Client // for remote sources; http.DefaultClient when nil
}

// Renderer runs the pipeline. It is safe for concurrent use; the only shared
// state is the source cache.
type Renderer struct {
	opts  Options
	fonts textlayout.Provider
	cache *SourceCache
	log   *slog.Logger
}

func New(opts Options) *Renderer {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 95
	}
	if opts.Format == "" {
		opts.Format = JPEG
	}
	fonts := opts.Fonts
	if fonts == nil {
		fonts = textlayout.NewOTProvider(textlayout.DefaultLibrary())
	}
	return &Renderer{
		opts:  opts,
		fonts: fonts,
		cache: NewSourceCache(opts.Client),
		log:   applog.WithComponent("raster"),
	}
}

// Sources exposes the cache so callers can release buffers they are done with.
func (r *Renderer) Sources() *SourceCache { return r.cache }

// Close drops every cached source buffer.
func (r *Renderer) Close() { r.cache.Close() }

// Compose produces the edited surface without encoding it.
func (r *Renderer) Compose(src image.Image, p domain.EditParams, wms []domain.Watermark) *image.NRGBA {
	base := imaging.Clone(src)
	crop, fellBack := ResolveCrop(base.Bounds(), p.Crop)
	if fellBack {
		r.log.Debug("crop rect empty after clamp", "requested", p.Crop.CroppedAreaPixels, "bounds", base.Bounds().String())
	}
	out := composite(base, crop, p)
	applyLUT(out, gammaLUT(p.Finetune.Brightness))
	applyShadows(out, p.Finetune.Shadows)
	r.drawWatermarks(out, wms)
	return out
}

// Render composes src with p and wms and encodes the result.
func (r *Renderer) Render(ctx context.Context, src image.Image, p domain.EditParams, wms []domain.Watermark) ([]byte, error) {
	if src == nil || src.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrSource)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := r.Compose(src, p, wms)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.encode(out, r.opts.Format)
}

// RenderRef loads ref through the source cache and renders it with the
// watermarks carried in p.
func (r *Renderer) RenderRef(ctx context.Context, ref string, p domain.EditParams) ([]byte, error) {
	src, err := r.cache.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return r.Render(ctx, src, p, p.Watermarks)
}

// Preview renders ref and shrinks the result to fit within maxSide, encoded as
// PNG so repeated previews do not accumulate JPEG loss.
func (r *Renderer) Preview(ctx context.Context, ref string, p domain.EditParams, maxSide int) ([]byte, error) {
	src, err := r.cache.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := r.Compose(src, p, p.Watermarks)
	var img image.Image = out
	if maxSide > 0 && (out.Bounds().Dx() > maxSide || out.Bounds().Dy() > maxSide) {
		img = imaging.Fit(out, maxSide, maxSide, imaging.Lanczos)
	}
	return r.encode(img, PNG)
}

func (r *Renderer) encode(img image.Image, f Format) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch f {
	case PNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	default:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(r.opts.Quality))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return buf.Bytes(), nil
}
