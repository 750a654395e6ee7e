/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


// Package composition converts a live scene into the portable composition record and back.
// The record is what gets persisted, snapshotted into form fields and handed to the
// server-side renderer. Boxes are guide-relative; pixel values carry the guide width they
// were measured against.
package composition

import "kvlayout/internal/geometry"

// Record is the serialized composition.
type Record struct {
	KVAssetID  string        `json:"kv_asset_id,omitempty"`
	KVURL      string        `json:"kv_url,omitempty"`
	FontFamily string        `json:"font_family,omitempty"`
	TextColor  string        `json:"text_color,omitempty"`
	TextAlign  string        `json:"text_align,omitempty"`
	FontScale  float64       `json:"font_scale,omitempty"`
	GuideRatio string        `json:"guide_ratio,omitempty"`
	ImageBox   *geometry.Box `json:"image_box,omitempty"`
	Layers     []Layer       `json:"layers"`
	Elements   []Element     `json:"elements,omitempty"`
	Shapes     []Shape       `json:"shapes,omitempty"`
}

// Style returns the record's global style defaults.
func (r Record) Style() Style {
	return Style{FontFamily: r.FontFamily, TextColor: r.TextColor, TextAlign: r.TextAlign, FontScale: r.FontScale}
}

// Empty reports whether the record places nothing.
func (r Record) Empty() bool {
	return len(r.Layers) == 0 && len(r.Elements) == 0 && len(r.Shapes) == 0
}

// Style holds the global text defaults.
type Style struct {
	FontFamily string
	TextColor  string
	TextAlign  string
	FontScale  float64
}

// DefaultStyle is used wherever neither a layer nor the record names a style.
var DefaultStyle = Style{FontFamily: "Inter", TextColor: "#ffffff", TextAlign: "left", FontScale: 1}

// WithDefaults fills empty fields from DefaultStyle.
func (s Style) WithDefaults() Style {
	if s.FontFamily == "" {
		s.FontFamily = DefaultStyle.FontFamily
	}
	if s.TextColor == "" {
		s.TextColor = DefaultStyle.TextColor
	}
	if s.TextAlign == "" {
		s.TextAlign = DefaultStyle.TextAlign
	}
	if s.FontScale <= 0 {
		s.FontScale = DefaultStyle.FontScale
	}
	return s
}

// Layer is a text layer. FontSizePx with FontBaseW is the canonical font size;
// FontSizeNorm (font px over guide height) is kept for older records and the form output.
type Layer struct {
	ID           string           `json:"id,omitempty"`
	Z            int              `json:"z,omitempty"`
	Text         string           `json:"text"`
	Lines        []string         `json:"lines,omitempty"`
	Box          *geometry.Box    `json:"box,omitempty"`
	FontSizePx   float64          `json:"font_size_px,omitempty"`
	FontBaseW    float64          `json:"font_base_w,omitempty"`
	FontSizeNorm float64          `json:"font_size_norm,omitempty"`
	FontFamily   string           `json:"font_family,omitempty"`
	Color        string           `json:"color,omitempty"`
	Align        string           `json:"align,omitempty"`
	Background   *LayerBackground `json:"background,omitempty"`
}

// LayerBackground is a text backdrop; radius and padding each carry their own basis.
type LayerBackground struct {
	Color        string  `json:"color"`
	Opacity      float64 `json:"opacity"`
	RadiusPx     float64 `json:"radius_px,omitempty"`
	RadiusBaseW  float64 `json:"radius_base_w,omitempty"`
	PaddingPx    float64 `json:"padding_px,omitempty"`
	PaddingBaseW float64 `json:"padding_base_w,omitempty"`
}

// Element is an inserted image. Box is preferred; Left/Top/Scale/Width/Height is the older
// raw pixel transform and is only read when Box is absent.
type Element struct {
	ID      string        `json:"id,omitempty"`
	Z       int           `json:"z,omitempty"`
	AssetID string        `json:"asset_id,omitempty"`
	URL     string        `json:"url,omitempty"`
	Box     *geometry.Box `json:"box,omitempty"`
	Opacity *float64      `json:"opacity,omitempty"`

	Left   float64 `json:"left,omitempty"`
	Top    float64 `json:"top,omitempty"`
	Scale  float64 `json:"scale,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

type Shape struct {
	ID      string       `json:"id,omitempty"`
	Z       int          `json:"z,omitempty"`
	Type    string       `json:"type"`
	Box     geometry.Box `json:"box"`
	Fill    string       `json:"fill,omitempty"`
	Opacity *float64     `json:"opacity,omitempty"`
}

func ptr(v float64) *float64 { return &v }

func opacityOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return geometry.Clamp01(*p)
}
