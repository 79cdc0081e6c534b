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
	"image/color"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"

	"listingstudio/internal/domain"
	"listingstudio/internal/textlayout"
)

var namedColors = map[string]string{
	"white":  "#ffffff",
	"black":  "#000000",
	"red":    "#ff0000",
	"green":  "#008000",
	"blue":   "#0000ff",
	"yellow": "#ffff00",
	"gray":   "#808080",
	"grey":   "#808080",
	"orange": "#ffa500",
}

// ParseColor accepts #rgb, #rrggbb and a few CSS color names.
func ParseColor(s string) (color.NRGBA, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if hex, ok := namedColors[s]; ok {
		s = hex
	}
	if s != "" && !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, false
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, true
}

// drawWatermarks paints each watermark in list order with its opacity as the
// global alpha. The anchor is the text's top-left at (x%·W, y%·H).
func (r *Renderer) drawWatermarks(dst *image.NRGBA, wms []domain.Watermark) {
	if len(wms) == 0 {
		return
	}
	w, h := float64(dst.Bounds().Dx()), float64(dst.Bounds().Dy())
	for _, wm := range wms {
		if wm.Text == "" || wm.Opacity <= 0 {
			continue
		}
		col, ok := ParseColor(wm.Color)
		if !ok {
			r.log.Debug("watermark color unparseable, using white", "id", wm.ID, "color", wm.Color)
			col = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
		}
		col.A = uint8(math.Round(math.Min(1, wm.Opacity) * 255))

		spec := textlayout.FontSpec{Family: wm.FontFamily, SizePt: float32(wm.FontSize)}
		face, _ := r.fonts.Resolve(spec)
		d := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(col),
			Face: face,
			Dot:  textlayout.Baseline(r.fonts, spec, wm.X/100*w, wm.Y/100*h),
		}
		d.DrawString(wm.Text)
	}
}
