/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// TemplateFrom extracts the image-agnostic fields of p into a template body.
// Watermarks and absolute crop geometry are never part of a template.
func TemplateFrom(name string, p EditParams) Template {
	ft := p.Finetune
	rot := SnapRotation(p.Rotation)
	fh, fv := p.FlipH, p.FlipV
	tc := &TemplateCrop{AspectLabel: p.Crop.AspectLabel}
	if p.Crop.Aspect != nil {
		a := *p.Crop.Aspect
		tc.Aspect = &a
	}
	return Template{
		Name:     name,
		Finetune: &ft,
		Crop:     tc,
		Rotation: &rot,
		FlipH:    &fh,
		FlipV:    &fv,
	}
}

// ApplyTo merges the fields present in t into p and recenters the crop.
func (t Template) ApplyTo(p EditParams) EditParams {
	out := p.Clone()
	if t.Finetune != nil {
		out.Finetune = Finetune{
			Brightness: ClampFinetune(t.Finetune.Brightness),
			Contrast:   ClampFinetune(t.Finetune.Contrast),
			Shadows:    ClampFinetune(t.Finetune.Shadows),
		}
	}
	if t.Crop != nil {
		out.Crop.Aspect = nil
		if t.Crop.Aspect != nil {
			a := *t.Crop.Aspect
			out.Crop.Aspect = &a
		}
		out.Crop.AspectLabel = t.Crop.AspectLabel
	}
	if t.Rotation != nil {
		out.Rotation = SnapRotation(*t.Rotation)
	}
	if t.FlipH != nil {
		out.FlipH = *t.FlipH
	}
	if t.FlipV != nil {
		out.FlipV = *t.FlipV
	}
	out.Crop.Recenter()
	return out
}
