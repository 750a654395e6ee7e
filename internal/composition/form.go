/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package composition

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"kvlayout/internal/geometry"
	"kvlayout/internal/layout"
)

// formLayer is the text layer shape the preview/export endpoint expects. Boxes are clamped
// to the guide here and nowhere else.
type formLayer struct {
	Text         string           `json:"text"`
	Lines        []string         `json:"lines,omitempty"`
	Box          geometry.Box     `json:"box"`
	FontSizeNorm float64          `json:"font_size_norm"`
	FontSizePx   float64          `json:"font_size_px,omitempty"`
	FontBaseW    float64          `json:"font_base_w,omitempty"`
	FontFamily   string           `json:"font_family"`
	Color        string           `json:"color"`
	Align        string           `json:"align"`
	Background   *LayerBackground `json:"background,omitempty"`
}

// FormFields flattens rec into the hidden fields of the preview/export form. List fields
// carry JSON strings.
func FormFields(rec Record) (url.Values, error) {
	st := rec.Style().WithDefaults()
	v := url.Values{}
	v.Set("kv_asset_id", rec.KVAssetID)
	v.Set("font_family", st.FontFamily)
	v.Set("text_color", st.TextColor)
	v.Set("text_align", st.TextAlign)
	v.Set("font_scale", strconv.FormatFloat(st.FontScale, 'f', 3, 64))
	v.Set("guide_ratio", layout.ParseRatio(rec.GuideRatio).String())

	layers := make([]formLayer, 0, len(rec.Layers))
	for _, l := range rec.Layers {
		box := DefaultTextBox
		if l.Box != nil {
			box = *l.Box
		}
		layers = append(layers, formLayer{
			Text:         l.Text,
			Lines:        l.Lines,
			Box:          box.Clamped(),
			FontSizeNorm: l.FontSizeNorm,
			FontSizePx:   l.FontSizePx,
			FontBaseW:    l.FontBaseW,
			FontFamily:   or(l.FontFamily, st.FontFamily),
			Color:        or(l.Color, st.TextColor),
			Align:        or(l.Align, st.TextAlign),
			Background:   l.Background,
		})
	}
	elements := rec.Elements
	if elements == nil {
		elements = []Element{}
	}
	shapes := rec.Shapes
	if shapes == nil {
		shapes = []Shape{}
	}
	type field struct {
		key string
		val any
	}
	fields := []field{{"text_layers", layers}, {"elements", elements}, {"shapes", shapes}}
	if rec.ImageBox != nil {
		fields = append(fields, field{"image_box", rec.ImageBox})
	}
	for _, f := range fields {
		b, err := json.Marshal(f.val)
		if err != nil {
			return nil, fmt.Errorf("composition: form field %s: %w", f.key, err)
		}
		v.Set(f.key, string(b))
	}
	return v, nil
}
