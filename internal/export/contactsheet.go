/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export writes rendered listing photos to printable documents.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"

	applog "listingstudio/internal/log"
	"listingstudio/internal/storage"
)

// SheetImage is one rendered photo placed on a contact sheet.
type SheetImage struct {
	Name    string
	Data    []byte // JPEG or PNG
	Caption string
}

// SheetOptions controls contact sheet layout. Units are points.
type SheetOptions struct {
	Title   string
	Columns int
	PageW   float64
	PageH   float64
	Margin  float64
	Gutter  float64
	// Captions prints each image's Caption (or Name) below its cell.
	Captions bool
}

// DefaultSheetOptions is an A4 portrait sheet with three columns.
func DefaultSheetOptions() SheetOptions {
	return SheetOptions{Columns: 3, PageW: 595, PageH: 842, Margin: 36, Gutter: 12, Captions: true}
}

const (
	titleSize   = 14.0
	captionSize = 8.0
)

// ContactSheetPDF lays imgs out in a grid across as many pages as needed and
// writes the PDF to outPath.
func ContactSheetPDF(outPath string, imgs []SheetImage, opt SheetOptions) error {
	if len(imgs) == 0 {
		return errors.New("contact sheet: no images")
	}
	def := DefaultSheetOptions()
	if opt.Columns <= 0 {
		opt.Columns = def.Columns
	}
	if opt.PageW <= 0 || opt.PageH <= 0 {
		opt.PageW, opt.PageH = def.PageW, def.PageH
	}
	if opt.Margin < 0 {
		opt.Margin = 0
	}
	if opt.Gutter < 0 {
		opt.Gutter = 0
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: opt.PageW, Ht: opt.PageH},
	})
	pdf.SetAuthor("Listing Studio", false)
	if opt.Title != "" {
		pdf.SetTitle(opt.Title, true)
	}
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetFont("Helvetica", "", captionSize)

	top := opt.Margin
	if opt.Title != "" {
		top += titleSize * 1.6
	}
	cellW := (opt.PageW - 2*opt.Margin - float64(opt.Columns-1)*opt.Gutter) / float64(opt.Columns)
	if cellW <= 0 {
		return fmt.Errorf("contact sheet: page too narrow for %d columns", opt.Columns)
	}
	capH := 0.0
	if opt.Captions {
		capH = captionSize * 1.5
	}
	cellH := cellW + capH
	rows := int((opt.PageH - top - opt.Margin + opt.Gutter) / (cellH + opt.Gutter))
	if rows < 1 {
		rows = 1
	}
	perPage := rows * opt.Columns

	l := applog.WithComponent("export")
	for i, im := range imgs {
		slot := i % perPage
		if slot == 0 {
			pdf.AddPage()
			if opt.Title != "" {
				pdf.SetFont("Helvetica", "B", titleSize)
				pdf.Text(opt.Margin, opt.Margin+titleSize, opt.Title)
				pdf.SetFont("Helvetica", "", captionSize)
			}
		}
		cx := opt.Margin + float64(slot%opt.Columns)*(cellW+opt.Gutter)
		cy := top + float64(slot/opt.Columns)*(cellH+opt.Gutter)

		name := fmt.Sprintf("img%d", i)
		info := pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: imageType(im.Data)}, bytes.NewReader(im.Data))
		if err := pdf.Error(); err != nil {
			return fmt.Errorf("contact sheet: image %q: %w", im.Name, err)
		}
		w, h := fitBox(info.Width(), info.Height(), cellW, cellW)
		pdf.ImageOptions(name, cx+(cellW-w)/2, cy+(cellW-h)/2, w, h, false, gofpdf.ImageOptions{}, 0, "")

		if opt.Captions {
			caption := im.Caption
			if caption == "" {
				caption = im.Name
			}
			pdf.SetXY(cx, cy+cellW)
			pdf.CellFormat(cellW, capH, truncate(pdf, caption, cellW), "", 0, "C", false, 0, "")
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return fmt.Errorf("contact sheet: render: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := storage.WriteFileAtomic(outPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	l.Info("contact sheet written", "path", outPath, "images", len(imgs), "pages", pdf.PageNo())
	return nil
}

func imageType(b []byte) string {
	if bytes.HasPrefix(b, []byte("\x89PNG")) {
		return "PNG"
	}
	return "JPG"
}

func fitBox(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	s := maxW / w
	if hs := maxH / h; hs < s {
		s = hs
	}
	return w * s, h * s
}

// truncate shortens s with an ellipsis until it fits width.
func truncate(pdf *gofpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(string(r)+"...") > width {
		r = r[:len(r)-1]
	}
	return string(r) + "..."
}
