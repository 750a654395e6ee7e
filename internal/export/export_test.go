/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package export

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kvlayout/internal/composition"
	"kvlayout/internal/geometry"
	"kvlayout/internal/scene"
)

func sampleRecord() composition.Record {
	op := 0.5
	return composition.Record{
		KVAssetID:  "kv1",
		KVURL:      "https://example.test/kv1.jpg",
		GuideRatio: "4:5",
		ImageBox:   &geometry.Box{X: 0, Y: 0.1, W: 1, H: 0.6},
		Layers: []composition.Layer{{
			Z:          1,
			Text:       "Fish & <Chips>",
			Box:        &composition.DefaultTextBox,
			FontSizePx: 30,
			FontBaseW:  900,
			Color:      "#112233",
			Align:      "center",
			Background: &composition.LayerBackground{Color: "#000000", Opacity: 0.4, RadiusPx: 9, RadiusBaseW: 900, PaddingPx: 18, PaddingBaseW: 900},
		}},
		Elements: []composition.Element{{Z: 2, AssetID: "logo", URL: "logo.png", Box: &geometry.Box{X: 0.7, Y: 0.05, W: 0.2, H: 0.1}, Opacity: &op}},
		Shapes:   []composition.Shape{{Z: 3, Type: "star", Box: geometry.Box{X: 0.1, Y: 0.1, W: 0.2, H: 0.2}, Fill: "#ff0000"}},
	}
}

func TestMasterFor(t *testing.T) {
	cases := []struct {
		in   string
		w, h int
	}{
		{"1:1", 1080, 1080},
		{"4:5", 1080, 1350},
		{"9:16", 1080, 1920},
		{"16:9", 1080, 608},
		{"junk", 1080, 1080},
	}
	for _, c := range cases {
		m := MasterFor(c.in)
		if m.W != c.w || m.H != c.h {
			t.Errorf("MasterFor(%q) = %v, want %dx%d", c.in, m, c.w, c.h)
		}
	}
}

func TestPlaceRescalesToMaster(t *testing.T) {
	p := Place(sampleRecord(), MasterFor("4:5"))
	if want := geometry.R(0, 135, 1080, 810); !p.Background.ApproxEqual(want, 1e-9) {
		t.Fatalf("background = %+v, want %+v", p.Background, want)
	}
	if len(p.Entities) != 3 {
		t.Fatalf("entities = %d", len(p.Entities))
	}
	txt, ok := p.Entities[0].(*scene.TextLayer)
	if !ok {
		t.Fatalf("first entity is %T", p.Entities[0])
	}
	if math.Abs(txt.FontSize.Px-36) > 1e-9 {
		t.Fatalf("font px = %v, want 36", txt.FontSize.Px)
	}
	want := geometry.R(86.4, 837, 864, 189)
	if !txt.Bounds().ApproxEqual(want, 1e-9) {
		t.Fatalf("text box = %+v, want %+v", txt.Bounds(), want)
	}
	if _, ok := p.Entities[2].(*scene.Shape); !ok {
		t.Fatalf("top entity is %T", p.Entities[2])
	}
}

func TestShapePoints(t *testing.T) {
	r := geometry.R(0, 0, 100, 100)
	if got := len(shapePoints(scene.ShapeStar, r)); got != 10 {
		t.Fatalf("star points = %d", got)
	}
	tri := shapePoints(scene.ShapeTriangle, r)
	if len(tri) != 3 || tri[0] != (geometry.Pt{X: 50, Y: 0}) {
		t.Fatalf("triangle = %+v", tri)
	}
	if shapePoints(scene.ShapeRect, r) != nil {
		t.Fatalf("rect should be drawn natively")
	}
}

func TestRGB(t *testing.T) {
	if r, g, b, ok := rgb("#0a0B0c"); !ok || r != 10 || g != 11 || b != 12 {
		t.Fatalf("rgb = %d %d %d %v", r, g, b, ok)
	}
	if r, g, b, ok := rgb("#fff"); !ok || r != 255 || g != 255 || b != 255 {
		t.Fatalf("short rgb = %d %d %d %v", r, g, b, ok)
	}
	if _, _, _, ok := rgb("red"); ok {
		t.Fatalf("named colour should not parse")
	}
}

func TestWriteSVG(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSVG(&buf, Place(sampleRecord(), MasterFor("4:5")), SVGOptions{IncludeGuides: true}); err != nil {
		t.Fatalf("svg: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`viewBox="0 0 1080 1350"`,
		`Fish &amp; &lt;Chips&gt;`,
		`text-anchor="middle"`,
		`xlink:href="https://example.test/kv1.jpg"`,
		`<polygon`,
		`stroke-dasharray`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("svg missing %q", want)
		}
	}
}

func TestWritePDF(t *testing.T) {
	rec := sampleRecord()
	var buf bytes.Buffer
	pages := []Page{Place(rec, MasterFor("1:1")), Place(rec, MasterFor("9:16"))}
	if err := WritePDF(&buf, pages, PDFOptions{IncludeGuides: true}); err != nil {
		t.Fatalf("pdf: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")) {
		t.Fatalf("not a pdf")
	}
	if err := WritePDF(&buf, nil, PDFOptions{}); err == nil {
		t.Fatalf("expected error for no pages")
	}
}

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	files, err := Batch(sampleRecord(), BatchOptions{OutDir: dir, Name: "promo", Ratios: []string{"1:1", "9:16", "1:1"}})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("files = %v", files)
	}
	for _, f := range []string{"promo-1x1-1080x1080.svg", "promo-9x16-1080x1920.svg", "promo.pdf"} {
		st, err := os.Stat(filepath.Join(dir, f))
		if err != nil {
			t.Fatalf("stat %s: %v", f, err)
		}
		if st.Size() == 0 {
			t.Fatalf("%s empty", f)
		}
	}
	if _, err := Batch(sampleRecord(), BatchOptions{OutDir: dir, Formats: []string{"png"}}); err == nil {
		t.Fatalf("expected unknown format error")
	}
}
