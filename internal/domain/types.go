/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package domain holds the edit model shared by the editor, the raster pipeline,
// the batch orchestrator and persistence. Everything here serializes to the JSON
// shape stored per original image reference.
package domain

// Point is a crop surface position in surface units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Area is a rectangle. CroppedAreaPixels uses source pixels; CroppedArea uses percent of the source.
type Area struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Crop describes the crop surface state. Aspect nil means free-form.
type Crop struct {
	Position          Point    `json:"position"`
	Zoom              float64  `json:"zoom"`
	CroppedAreaPixels *Area    `json:"croppedAreaPixels"`
	CroppedArea       *Area    `json:"croppedArea"`
	Aspect            *float64 `json:"aspect"`
	AspectLabel       string   `json:"aspectLabel"`
}

// Finetune holds the tonal adjustments, each in [-100,100].
type Finetune struct {
	Brightness int `json:"brightness"`
	Contrast   int `json:"contrast"`
	Shadows    int `json:"shadows"`
}

// Watermark is a text overlay. X and Y are the top-left anchor in percent of the output.
type Watermark struct {
	ID         string  `json:"id"`
	Text       string  `json:"text"`
	FontFamily string  `json:"fontFamily"`
	FontSize   float64 `json:"fontSize"`
	Color      string  `json:"color"`
	Opacity    float64 `json:"opacity"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
}

// WatermarkPatch carries a partial watermark update; nil fields are left alone.
type WatermarkPatch struct {
	Text       *string  `json:"text,omitempty"`
	FontFamily *string  `json:"fontFamily,omitempty"`
	FontSize   *float64 `json:"fontSize,omitempty"`
	Color      *string  `json:"color,omitempty"`
	Opacity    *float64 `json:"opacity,omitempty"`
	X          *float64 `json:"x,omitempty"`
	Y          *float64 `json:"y,omitempty"`
}

// EditParams is the flat, history-free set of edit parameters for one image.
// It is both the live state and the undo snapshot type, so a snapshot can never
// contain a history of its own.
type EditParams struct {
	Crop       Crop        `json:"crop"`
	Finetune   Finetune    `json:"finetune"`
	Rotation   int         `json:"rotation"`
	FlipH      bool        `json:"flipH"`
	FlipV      bool        `json:"flipV"`
	Watermarks []Watermark `json:"watermarks"`
}

// Template is an image-agnostic subset of edit parameters saved by the user.
type Template struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	CreatedAt int64         `json:"createdAt"` // unix millis
	Finetune  *Finetune     `json:"finetune,omitempty"`
	Crop      *TemplateCrop `json:"crop,omitempty"`
	Rotation  *int          `json:"rotation,omitempty"`
	FlipH     *bool         `json:"flipH,omitempty"`
	FlipV     *bool         `json:"flipV,omitempty"`
}

// TemplateCrop keeps only the aspect part of a crop.
type TemplateCrop struct {
	Aspect      *float64 `json:"aspect"`
	AspectLabel string   `json:"aspectLabel"`
}
