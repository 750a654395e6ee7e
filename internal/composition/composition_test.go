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
	"errors"
	"math"
	"testing"

	"kvlayout/internal/geometry"
	"kvlayout/internal/layout"
	"kvlayout/internal/scene"
)

const eps = 1e-9

func buildScene(t *testing.T) (*scene.Scene, layout.Geometry) {
	t.Helper()
	g := layout.Compute(layout.Square, layout.Size{W: 900, H: 600}, layout.Options{})
	s := scene.New()
	s.Add(&scene.Background{AssetID: "kv-1", URL: "/kv/1.png", Natural: layout.Size{W: 1200, H: 800}, Common: scene.Common{Rect: g.BackgroundRect()}})

	head := &scene.TextLayer{
		Common:     scene.Common{Rect: geometry.FromNormalized(DefaultTextBox, g.Guide)},
		Text:       "Summer sale",
		FontFamily: "Inter",
		Fill:       "#ffffff",
		Align:      "center",
		FontSize:   geometry.Measure(48, g.Guide.Width),
		Backdrop:   &scene.Backdrop{Color: "#000000", Opacity: 0.4, Radius: geometry.Measure(6, 900), Padding: geometry.Measure(12, 900)},
	}
	head.Reflow()
	s.Add(head)
	s.Add(&scene.ImageElement{AssetID: "logo", Opacity: 0.8, Natural: layout.Size{W: 200, H: 100}, Common: scene.Common{Rect: geometry.R(150, 140, 100, 50)}})
	s.Add(&scene.Shape{Type: scene.ShapeStar, Fill: "#ffcc00", Opacity: 1, Common: scene.Common{Rect: geometry.R(-20, 900, 120, 120)}})
	sub := &scene.TextLayer{
		Common:     scene.Common{Rect: geometry.R(180, 800, 500, 80)},
		Text:       "Up to 50% off",
		FontFamily: "Georgia",
		Fill:       "#ffeeaa",
		Align:      "left",
		FontSize:   geometry.Measure(28, g.Guide.Width),
	}
	sub.Reflow()
	s.Add(sub)
	s.RebuildDecorations(g)
	return s, g
}

func TestRoundTripSameGuide(t *testing.T) {
	s, g := buildScene(t)
	rec := Serialize(s, g, Style{FontFamily: "Inter", TextColor: "#ffffff", TextAlign: "center", FontScale: 1.25})
	if rec.KVAssetID != "kv-1" || rec.GuideRatio != "1:1" || rec.ImageBox == nil {
		t.Fatalf("background fields missing: %+v", rec)
	}
	ents := Deserialize(rec, g.Guide)
	orig := s.Real()[1:]
	if len(ents) != len(orig) {
		t.Fatalf("entities = %d, want %d", len(ents), len(orig))
	}
	for i, want := range orig {
		got := ents[i]
		if got.EntityID() != want.EntityID() || got.Role() != want.Role() {
			t.Fatalf("entity %d: got %s %s, want %s %s", i, got.Role(), got.EntityID(), want.Role(), want.EntityID())
		}
		if !got.Bounds().ApproxEqual(want.Bounds(), 1e-6) {
			t.Fatalf("entity %d box %+v, want %+v", i, got.Bounds(), want.Bounds())
		}
		if wt, ok := want.(*scene.TextLayer); ok {
			gt := got.(*scene.TextLayer)
			if math.Abs(gt.FontSize.Px-wt.FontSize.Px) > eps || gt.Fill != wt.Fill || gt.FontFamily != wt.FontFamily {
				t.Fatalf("text style lost: %+v vs %+v", gt, wt)
			}
			if (wt.Backdrop == nil) != (gt.Backdrop == nil) {
				t.Fatalf("backdrop presence changed")
			}
		}
	}
}

func TestProportionalScaling(t *testing.T) {
	s, g := buildScene(t)
	rec := Serialize(s, g, DefaultStyle)

	g1 := geometry.R(100, 100, 900, 900)
	g2 := geometry.R(40, 60, 450, 450)
	k := g2.Width / g1.Width
	e1 := Deserialize(rec, g1)
	e2 := Deserialize(rec, g2)
	for i := range e1 {
		r1, r2 := e1[i].Bounds(), e2[i].Bounds()
		want := geometry.R((r1.Left-g1.Left)*k+g2.Left, (r1.Top-g1.Top)*k+g2.Top, r1.Width*k, r1.Height*k)
		if !r2.ApproxEqual(want, 1e-6) {
			t.Fatalf("entity %d (%s): %+v, want %+v", i, e1[i].Role(), r2, want)
		}
		if t1, ok := e1[i].(*scene.TextLayer); ok {
			t2 := e2[i].(*scene.TextLayer)
			if math.Abs(t2.FontSize.Px-t1.FontSize.Px*k) > 1e-9 {
				t.Fatalf("font %v, want %v", t2.FontSize.Px, t1.FontSize.Px*k)
			}
		}
	}
}

func TestDefaultBoxScenario(t *testing.T) {
	guide := geometry.R(0, 0, 900, 506)
	txt := TextFromRecord(Layer{}, guide, DefaultStyle)
	want := geometry.R(72, 313.72, 720, 70.84)
	if !txt.Bounds().ApproxEqual(want, 1e-6) {
		t.Fatalf("default box = %+v, want %+v", txt.Bounds(), want)
	}
	if want := 70.84 * BoxFontFactor; math.Abs(txt.FontSize.Px-want) > 1e-9 {
		t.Fatalf("fallback font = %v, want %v", txt.FontSize.Px, want)
	}
}

func TestFontPxFallbacks(t *testing.T) {
	guide := geometry.R(0, 0, 600, 400)
	box := geometry.Box{X: 0, Y: 0, W: 0.5, H: 0.05}
	cases := []struct {
		name string
		l    Layer
		want float64
	}{
		{"px with basis", Layer{FontSizePx: 30, FontBaseW: 900, FontSizeNorm: 0.5}, 20},
		{"px only", Layer{FontSizePx: 4}, MinFontPx},
		{"legacy norm", Layer{FontSizeNorm: 0.1}, 40},
		{"legacy norm floor", Layer{FontSizeNorm: 0.001}, MinFontPx},
		{"box height", Layer{}, FallbackFontPx},
	}
	for _, c := range cases {
		if got := FontPx(c.l, box, guide); math.Abs(got-c.want) > eps {
			t.Fatalf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestImageBoxPreferredOverLegacyTransform(t *testing.T) {
	guide := geometry.R(100, 100, 800, 800)
	box := geometry.Box{X: 0.25, Y: 0.5, W: 0.1, H: 0.05}
	rec := Record{Elements: []Element{
		{AssetID: "a", Box: &box, Left: 1, Top: 2, Scale: 3, Width: 10, Height: 10},
		{AssetID: "b", Left: 10, Top: 20, Scale: 0.5, Width: 200, Height: 100},
	}}
	ents := Deserialize(rec, guide)
	if got := ents[0].Bounds(); !got.ApproxEqual(geometry.R(300, 500, 80, 40), eps) {
		t.Fatalf("box element = %+v", got)
	}
	legacy := ents[1].(*scene.ImageElement)
	if got := legacy.Bounds(); !got.ApproxEqual(geometry.R(10, 20, 100, 50), eps) {
		t.Fatalf("legacy element = %+v", got)
	}
	if legacy.Opacity != 1 {
		t.Fatalf("missing opacity should default to 1, got %v", legacy.Opacity)
	}
}

func TestDeserializeOrdersByZ(t *testing.T) {
	rec := Record{
		Layers: []Layer{{ID: "t", Z: 3}},
		Shapes: []Shape{{ID: "s", Z: 1, Type: "circle"}, {ID: "x", Z: 2, Type: "hexagon"}},
	}
	ents := Deserialize(rec, geometry.R(0, 0, 100, 100))
	ids := []string{ents[0].EntityID(), ents[1].EntityID(), ents[2].EntityID()}
	if ids[0] != "s" || ids[1] != "x" || ids[2] != "t" {
		t.Fatalf("order = %v", ids)
	}
	if ents[1].(*scene.Shape).Type != scene.ShapeRect {
		t.Fatalf("unknown shape type should fall back to rect")
	}
}

func TestEncodedRecordConformsToSchema(t *testing.T) {
	s, g := buildScene(t)
	data, err := Encode(Serialize(s, g, DefaultStyle))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := Validate(data); err != nil {
		t.Fatalf("schema: %v", err)
	}
	rec, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rec.Layers) != 2 || len(rec.Elements) != 1 || len(rec.Shapes) != 1 {
		t.Fatalf("decoded record = %+v", rec)
	}
}

func TestDecodeLegacyState(t *testing.T) {
	legacy := `{"kv_asset_id":"kv_03","font_family":"Montserrat","text_color":"#fefefe","text_align":"center",
		"font_scale":1.2,"guide_ratio":"4:5","layers":[{"text":"Hi","box":{"x":0.1,"y":0.2,"w":0.5,"h":0.1},
		"font_size_norm":0.05,"font_family":"Montserrat","color":"#fefefe","align":"center"}]}`
	rec, err := Decode([]byte(legacy))
	if err != nil {
		t.Fatalf("decode legacy: %v", err)
	}
	ents := Deserialize(rec, geometry.R(0, 0, 900, 1125))
	txt := ents[0].(*scene.TextLayer)
	if math.Abs(txt.FontSize.Px-0.05*1125) > eps || txt.Align != "center" {
		t.Fatalf("legacy layer = %+v", txt)
	}
}

func TestDecodeRejectsInvalid(t *testing.T) {
	if _, err := Decode([]byte(`{"shapes":[{"type":"hexagon","box":{"x":0,"y":0,"w":1,"h":1}}]}`)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
	if _, err := Decode([]byte(`{"layers":[{"box":{"x":0}}]}`)); !errors.Is(err, ErrInvalid) {
		t.Fatalf("incomplete box should be invalid, got %v", err)
	}
	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Fatalf("expected error for malformed JSON")
	}
}

func TestFormFields(t *testing.T) {
	s, g := buildScene(t)
	rec := Serialize(s, g, Style{FontScale: 1.5})
	v, err := FormFields(rec)
	if err != nil {
		t.Fatalf("form: %v", err)
	}
	if v.Get("kv_asset_id") != "kv-1" || v.Get("font_scale") != "1.500" || v.Get("guide_ratio") != "1:1" {
		t.Fatalf("flat fields = %v", v)
	}
	if v.Get("font_family") != DefaultStyle.FontFamily {
		t.Fatalf("empty style should fall back to defaults, got %q", v.Get("font_family"))
	}
	var layers []formLayer
	if err := json.Unmarshal([]byte(v.Get("text_layers")), &layers); err != nil {
		t.Fatalf("text_layers: %v", err)
	}
	if len(layers) != 2 {
		t.Fatalf("layers = %d", len(layers))
	}
	for _, l := range layers {
		if l.Box != l.Box.Clamped() {
			t.Fatalf("form boxes must be clamped: %+v", l.Box)
		}
	}
	var box geometry.Box
	if err := json.Unmarshal([]byte(v.Get("image_box")), &box); err != nil || !box.ApproxEqual(*rec.ImageBox, eps) {
		t.Fatalf("image_box = %q (%v)", v.Get("image_box"), err)
	}
	if v.Get("shapes") == "" || v.Get("elements") == "" {
		t.Fatalf("list fields must always be present")
	}
}

func TestRoundTripKeepsShortTextBox(t *testing.T) {
	guide := geometry.R(0, 197, 900, 506)
	s := scene.New()
	txt := &scene.TextLayer{
		Common:   scene.Common{Rect: geometry.FromNormalized(DefaultTextBox, guide)},
		Text:     "Summer sale on everything in the store",
		FontSize: geometry.Measure(75.6, guide.Width),
	}
	txt.Rewrap()
	s.Add(txt)
	if need := float64(len(txt.Lines)) * txt.FontSize.Px * scene.LineHeight; txt.Rect.Height >= need {
		t.Fatalf("fixture box %v already fits %v", txt.Rect.Height, need)
	}
	g := layout.Geometry{Ratio: layout.ParseRatio("16:9"), Guide: guide}
	rec := Serialize(s, g, DefaultStyle)
	got := Deserialize(rec, guide)
	if len(got) != 1 {
		t.Fatalf("entities = %d", len(got))
	}
	if !got[0].Bounds().ApproxEqual(txt.Bounds(), 1e-6) {
		t.Fatalf("box %+v, want %+v", got[0].Bounds(), txt.Bounds())
	}
	if rt := Serialize(sceneOf(got), g, DefaultStyle); !rt.Layers[0].Box.ApproxEqual(*rec.Layers[0].Box, 1e-9) {
		t.Fatalf("normalized box drifted: %+v -> %+v", *rec.Layers[0].Box, *rt.Layers[0].Box)
	}
}

func TestSerializeRebasesFont(t *testing.T) {
	guide := geometry.R(0, 0, 450, 450)
	s := scene.New()
	s.Add(&scene.TextLayer{
		Common:   scene.Common{Rect: geometry.R(36, 36, 360, 63)},
		Text:     "Hi",
		FontSize: geometry.Measure(48, 900),
	})
	rec := Serialize(s, layout.Geometry{Ratio: layout.Square, Guide: guide}, DefaultStyle)
	l := rec.Layers[0]
	if l.FontBaseW != 450 || math.Abs(l.FontSizePx-24) > eps {
		t.Fatalf("font = %vpx @ %v, want 24px @ 450", l.FontSizePx, l.FontBaseW)
	}
}

func sceneOf(ents []scene.Entity) *scene.Scene {
	s := scene.New()
	for _, e := range ents {
		s.Add(e)
	}
	return s
}
