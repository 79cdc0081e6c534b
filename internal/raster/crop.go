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

// ResolveCrop picks the source rectangle to draw. Explicit pixel geometry wins,
// then a finite aspect yields the centered maximal rectangle, else the full
// bounds. fellBack reports that explicit geometry clamped to nothing.
func ResolveCrop(b image.Rectangle, c domain.Crop) (r image.Rectangle, fellBack bool) {
	if a := c.CroppedAreaPixels; a != nil && a.Width > 0 && a.Height > 0 {
		x0 := int(math.Round(a.X))
		y0 := int(math.Round(a.Y))
		r = image.Rect(x0, y0, x0+int(math.Round(a.Width)), y0+int(math.Round(a.Height)))
		r = r.Add(b.Min).Intersect(b)
		if r.Empty() {
			return b, true
		}
		return r, false
	}
	if c.Aspect != nil && *c.Aspect > 0 && !math.IsInf(*c.Aspect, 0) && !math.IsNaN(*c.Aspect) {
		return aspectRect(b, *c.Aspect), false
	}
	return b, false
}

func aspectRect(b image.Rectangle, aspect float64) image.Rectangle {
	sw, sh := float64(b.Dx()), float64(b.Dy())
	if sw == 0 || sh == 0 {
		return b
	}
	w, h := sw, sh
	if sw/sh > aspect {
		w = math.Round(sh * aspect)
	} else {
		h = math.Round(sw / aspect)
	}
	w = math.Max(1, w)
	h = math.Max(1, h)
	x := b.Min.X + int(math.Round((sw-w)/2))
	y := b.Min.Y + int(math.Round((sh-h)/2))
	return image.Rect(x, y, x+int(w), y+int(h))
}

// OutputSize is the bounding box of a w×h rectangle rotated by deg degrees.
func OutputSize(w, h, deg int) (int, int) {
	sin, cos := sinCos(deg)
	fw, fh := float64(w), float64(h)
	ow := math.Round(fw*math.Abs(cos) + fh*math.Abs(sin))
	oh := math.Round(fw*math.Abs(sin) + fh*math.Abs(cos))
	return int(math.Max(1, ow)), int(math.Max(1, oh))
}

// sinCos is exact for quarter turns so right-angle rotations map pixels 1:1.
func sinCos(deg int) (float64, float64) {
	switch domain.NormalizeRotation(deg) {
	case 0:
		return 0, 1
	case 90:
		return 1, 0
	case 180:
		return 0, -1
	case 270:
		return -1, 0
	}
	return math.Sincos(float64(deg) * math.Pi / 180)
}
