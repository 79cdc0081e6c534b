/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"listingstudio/internal/domain"
)

//go:embed schema/edit_state.schema.json
var editStateSchemaJSON []byte

var editStateSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(editStateSchemaJSON))
})

// EditStates persists, per item, the map of original image reference to the
// parameters last saved for it.
type EditStates struct{ db *DB }

func (s *DB) EditStates() *EditStates { return &EditStates{db: s} }

// Load returns the saved map for itemRef. A missing item yields an empty map.
// Entries in the legacy shape are converted; entries that fail validation are
// dropped with a warning so one bad record cannot hide the rest.
func (e *EditStates) Load(ctx context.Context, itemRef string) (map[string]domain.EditParams, error) {
	var doc string
	err := e.db.queryRow(ctx, `SELECT doc FROM edit_states WHERE item_ref=?`, itemRef).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]domain.EditParams{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load edit states %s: %w", itemRef, err)
	}
	return e.decode(itemRef, []byte(doc))
}

func (e *EditStates) decode(itemRef string, doc []byte) (map[string]domain.EditParams, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(doc, &raw); err != nil {
		return nil, fmt.Errorf("decode edit states %s: %w", itemRef, err)
	}
	out := make(map[string]domain.EditParams, len(raw))
	for ref, entry := range raw {
		p, err := DecodeEditState(entry)
		if err != nil {
			e.db.log.Warn("skipping saved edit state", "item", itemRef, "ref", ref, "err", err)
			continue
		}
		out[ref] = p
	}
	return out, nil
}

// Save replaces the stored map for itemRef.
func (e *EditStates) Save(ctx context.Context, itemRef string, states map[string]domain.EditParams) error {
	if states == nil {
		states = map[string]domain.EditParams{}
	}
	doc, err := json.Marshal(states)
	if err != nil {
		return fmt.Errorf("encode edit states: %w", err)
	}
	_, err = e.db.exec(ctx, `INSERT INTO edit_states(item_ref, doc, updated_at) VALUES(?, ?, ?)
		ON CONFLICT(item_ref) DO UPDATE SET doc=excluded.doc, updated_at=excluded.updated_at`,
		itemRef, string(doc), e.db.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("save edit states %s: %w", itemRef, err)
	}
	return nil
}

// Put loads the map for itemRef, sets ref to p and writes it back.
func (e *EditStates) Put(ctx context.Context, itemRef, ref string, p domain.EditParams) error {
	m, err := e.Load(ctx, itemRef)
	if err != nil {
		return err
	}
	m[ref] = p
	return e.Save(ctx, itemRef, m)
}

// DecodeEditState converts legacy records, validates against the embedded
// schema and decodes into normalized EditParams.
func DecodeEditState(entry []byte) (domain.EditParams, error) {
	if conv, ok, err := ConvertLegacy(entry); err != nil {
		return domain.EditParams{}, err
	} else if ok {
		entry = conv
	}
	schema, err := editStateSchema()
	if err != nil {
		return domain.EditParams{}, fmt.Errorf("load schema: %w", err)
	}
	res, err := schema.Validate(gojsonschema.NewBytesLoader(entry))
	if err != nil {
		return domain.EditParams{}, fmt.Errorf("validate: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, re := range res.Errors() {
			msgs = append(msgs, re.String())
		}
		return domain.EditParams{}, fmt.Errorf("invalid edit state: %s", strings.Join(msgs, "; "))
	}
	p := domain.DefaultEditParams()
	if err := json.Unmarshal(entry, &p); err != nil {
		return domain.EditParams{}, fmt.Errorf("decode edit state: %w", err)
	}
	p.Rotation = domain.SnapRotation(p.Rotation)
	if p.Crop.Zoom < 1 {
		p.Crop.Zoom = 1
	}
	if p.Watermarks == nil {
		p.Watermarks = []domain.Watermark{}
	}
	if p.Crop.AspectLabel == "" && p.Crop.Aspect == nil {
		p.Crop.AspectLabel = "Free"
	}
	return p, nil
}

type legacyRecord struct {
	Adjustments *struct {
		Crop *struct {
			X      float64 `json:"x"`
			Y      float64 `json:"y"`
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		} `json:"crop"`
		Rotation float64 `json:"rotation"` // radians
		FlipX    bool    `json:"flipX"`
		FlipY    bool    `json:"flipY"`
	} `json:"adjustments"`
	FinetunesProps *struct {
		Gamma    *float64 `json:"gamma"`    // 1 is neutral
		Contrast *float64 `json:"contrast"` // multiplier, 1 is neutral
		Shadow   *float64 `json:"shadow"`   // -1..1
	} `json:"finetunesProps"`
}

// ConvertLegacy rewrites an {adjustments, finetunesProps} record into the
// current shape. ok is false when entry is not a legacy record.
func ConvertLegacy(entry []byte) (conv []byte, ok bool, err error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(entry, &keys); err != nil {
		return nil, false, fmt.Errorf("decode entry: %w", err)
	}
	_, hasAdj := keys["adjustments"]
	_, hasFt := keys["finetunesProps"]
	if !hasAdj && !hasFt {
		return nil, false, nil
	}
	var rec legacyRecord
	if err := json.Unmarshal(entry, &rec); err != nil {
		return nil, false, fmt.Errorf("decode legacy entry: %w", err)
	}

	p := domain.DefaultEditParams()
	if a := rec.Adjustments; a != nil {
		if c := a.Crop; c != nil && c.Width > 0 && c.Height > 0 {
			p.Crop.CroppedAreaPixels = &domain.Area{X: c.X, Y: c.Y, Width: c.Width, Height: c.Height}
		}
		quarter := int(math.Round(a.Rotation / (math.Pi / 2)))
		p.Rotation = domain.SnapRotation(quarter * 90)
		p.FlipH = a.FlipX
		p.FlipV = a.FlipY
	}
	if f := rec.FinetunesProps; f != nil {
		if f.Gamma != nil && *f.Gamma > 0 {
			p.Finetune.Brightness = domain.ClampFinetune(int(math.Round(-50 * math.Log2(*f.Gamma))))
		}
		if f.Contrast != nil {
			p.Finetune.Contrast = domain.ClampFinetune(int(math.Round((*f.Contrast - 1) * 100)))
		}
		if f.Shadow != nil {
			p.Finetune.Shadows = domain.ClampFinetune(int(math.Round(*f.Shadow * 100)))
		}
	}
	out, err := json.Marshal(p)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Lookup finds the saved state for ref: exact key first, then any key with the
// same file name, which survives gallery URL rewrites after upload.
func Lookup(states map[string]domain.EditParams, ref string) (domain.EditParams, string, bool) {
	if p, ok := states[ref]; ok {
		return p, ref, true
	}
	base := Basename(ref)
	if base == "" {
		return domain.EditParams{}, "", false
	}
	// Deterministic pick when several keys share a basename.
	var (
		best  string
		found bool
	)
	for k := range states {
		if Basename(k) == base && (!found || k < best) {
			best, found = k, true
		}
	}
	if !found {
		return domain.EditParams{}, "", false
	}
	return states[best], best, true
}

// Basename returns the last path segment of a URL or path, without query or
// fragment.
func Basename(ref string) string {
	p := ref
	if u, err := url.Parse(ref); err == nil && len(u.Scheme) != 1 {
		p = u.Path
	} else if i := strings.IndexAny(ref, "?#"); i >= 0 {
		p = ref[:i]
	}
	p = strings.ReplaceAll(p, `\`, "/")
	b := path.Base(p)
	if b == "." || b == "/" {
		return ""
	}
	return b
}
