/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package raster

import (
	"image"
	"math"

	"listingstudio/internal/domain"
)

// lut maps one 8-bit channel value to another.
type lut [256]uint8

func identityLUT() *lut {
	var t lut
	for i := range t {
		t[i] = uint8(i)
	}
	return &t
}

// contrastLUT follows the CSS contrast() filter: (v-127.5)·c+127.5 with
// c = max(0, 1+contrast/100).
func contrastLUT(contrast int) *lut {
	if contrast == 0 {
		return nil
	}
	c := math.Max(0, 1+float64(contrast)/100)
	var t lut
	for i := range t {
		t[i] = clamp8((float64(i)-127.5)*c + 127.5)
	}
	return &t
}

// gammaLUT brightens for positive values: gamma = 2^(-b/50).
func gammaLUT(brightness int) *lut {
	if brightness == 0 {
		return nil
	}
	g := math.Pow(2, -float64(brightness)/50)
	var t lut
	for i := range t {
		t[i] = clamp8(math.Pow(float64(i)/255, g) * 255)
	}
	return &t
}

func clamp8(v float64) uint8 {
	v = math.Round(v)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// composite draws crop of src into a new surface sized for the rotation,
// rotated clockwise about the center and mirrored per the flip flags. Each
// output pixel samples the source pixel it lands on, so quarter turns are
// lossless. Contrast is folded into the same pass.
func composite(src *image.NRGBA, crop image.Rectangle, p domain.EditParams) *image.NRGBA {
	cw, ch := crop.Dx(), crop.Dy()
	ow, oh := OutputSize(cw, ch, p.Rotation)
	dst := image.NewNRGBA(image.Rect(0, 0, ow, oh))

	sin, cos := sinCos(p.Rotation)
	fx, fy := 1.0, 1.0
	if p.FlipH {
		fx = -1
	}
	if p.FlipV {
		fy = -1
	}
	tone := contrastLUT(p.Finetune.Contrast)
	if tone == nil {
		tone = identityLUT()
	}

	hw, hh := float64(ow)/2, float64(oh)/2
	cx, cy := float64(cw)/2, float64(ch)/2
	for oy := 0; oy < oh; oy++ {
		dy := float64(oy) + 0.5 - hh
		row := dst.Pix[oy*dst.Stride:]
		for ox := 0; ox < ow; ox++ {
			dx := float64(ox) + 0.5 - hw
			// inverse of rotate(θ)·scale(fx,fy)
			x := (dx*cos + dy*sin) * fx
			y := (-dx*sin + dy*cos) * fy
			sx := int(math.Floor(x + cx))
			sy := int(math.Floor(y + cy))
			if sx < 0 || sy < 0 || sx >= cw || sy >= ch {
				continue
			}
			si := src.PixOffset(crop.Min.X+sx, crop.Min.Y+sy)
			d := row[ox*4 : ox*4+4 : ox*4+4]
			d[0] = tone[src.Pix[si]]
			d[1] = tone[src.Pix[si+1]]
			d[2] = tone[src.Pix[si+2]]
			d[3] = src.Pix[si+3]
		}
	}
	return dst
}

// applyLUT rewrites R, G and B of every pixel in place; alpha is untouched.
func applyLUT(img *image.NRGBA, t *lut) {
	if t == nil {
		return
	}
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			row[i] = t[row[i]]
			row[i+1] = t[row[i+1]]
			row[i+2] = t[row[i+2]]
		}
	}
}

// applyShadows lifts (or deepens) dark pixels, weighted by how far below
// luminance 192 they sit.
func applyShadows(img *image.NRGBA, shadows int) {
	if shadows == 0 {
		return
	}
	s := float64(shadows)
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+b.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			r, g, bl := float64(row[i]), float64(row[i+1]), float64(row[i+2])
			lum := 0.299*r + 0.587*g + 0.114*bl
			w := math.Max(0, (192-lum)/192)
			if w < 0.01 {
				continue
			}
			adj := math.Round(s * w)
			row[i] = clamp8(r + adj)
			row[i+1] = clamp8(g + adj)
			row[i+2] = clamp8(bl + adj)
		}
	}
}
