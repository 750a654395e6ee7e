/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package export

import (
	"fmt"
	"math"
	"strings"

	"kvlayout/internal/composition"
	"kvlayout/internal/geometry"
	"kvlayout/internal/layout"
	"kvlayout/internal/scene"
)

// MasterWidth is the pixel width every master size shares.
const MasterWidth = 1080

// MasterSize is the delivery size of a finished asset for one guide ratio.
type MasterSize struct {
	Ratio string
	W, H  int
}

func (m MasterSize) String() string { return fmt.Sprintf("%dx%d", m.W, m.H) }

// MasterSizes lists the delivery sizes the export form offers.
var MasterSizes = map[string]MasterSize{
	"1:1":  {Ratio: "1:1", W: 1080, H: 1080},
	"4:5":  {Ratio: "4:5", W: 1080, H: 1350},
	"9:16": {Ratio: "9:16", W: 1080, H: 1920},
}

// MasterFor returns the master size for ratio. Ratios without a listed master get one
// MasterWidth wide with the height following the ratio.
func MasterFor(ratio string) MasterSize {
	r := layout.ParseRatio(ratio)
	if m, ok := MasterSizes[r.String()]; ok {
		return m
	}
	return MasterSize{Ratio: r.String(), W: MasterWidth, H: int(math.Round(r.HeightFor(MasterWidth)))}
}

// Page is a composition placed against a guide at master size. Coordinates are master
// pixels with the guide at the origin.
type Page struct {
	Size MasterSize
	// Background is where the key visual lands; empty when the record has no image box.
	Background geometry.Rect
	KV         string
	KVURL      string
	// Entities are the text layers, images and shapes bottom to top.
	Entities []scene.Entity
}

// Guide is the page's guide rectangle.
func (p Page) Guide() geometry.Rect { return geometry.R(0, 0, float64(p.Size.W), float64(p.Size.H)) }

// Place lays rec out at master size m. Normalized boxes map straight onto the master
// guide, and font sizes are rescaled from the width they were measured against.
func Place(rec composition.Record, m MasterSize) Page {
	p := Page{Size: m, KV: rec.KVAssetID, KVURL: rec.KVURL}
	guide := p.Guide()
	if rec.ImageBox != nil {
		p.Background = geometry.FromNormalized(*rec.ImageBox, guide)
	}
	p.Entities = composition.Deserialize(rec, guide)
	return p
}

// shapePoints returns the outline of a polygonal shape inside r. Rectangles and circles
// are drawn natively and return nil.
func shapePoints(t scene.ShapeType, r geometry.Rect) []geometry.Pt {
	switch t {
	case scene.ShapeTriangle:
		return []geometry.Pt{{X: r.Left + r.Width/2, Y: r.Top}, {X: r.Right(), Y: r.Bottom()}, {X: r.Left, Y: r.Bottom()}}
	case scene.ShapeStar:
		c := r.Center()
		outer := math.Min(r.Width, r.Height) / 2
		inner := outer * 0.5
		pts := make([]geometry.Pt, 0, 10)
		for i := 0; i < 10; i++ {
			rad := outer
			if i%2 == 1 {
				rad = inner
			}
			a := -math.Pi/2 + float64(i)*math.Pi/5
			pts = append(pts, geometry.Pt{X: c.X + rad*math.Cos(a), Y: c.Y + rad*math.Sin(a)})
		}
		return pts
	}
	return nil
}

// backdropRect is the text layer's box grown by its backdrop padding at guide width w.
func backdropRect(t *scene.TextLayer, w float64) geometry.Rect {
	pad := t.Backdrop.Padding.Rescale(w)
	return t.Bounds().Inset(-pad, -pad)
}

// baselines returns the x anchor and one baseline per line for a text layer.
func baselines(t *scene.TextLayer) (x float64, ys []float64) {
	r := t.Bounds()
	px := t.FontSize.Px
	switch strings.ToLower(t.Align) {
	case "center", "centre":
		x = r.Left + r.Width/2
	case "right":
		x = r.Right()
	default:
		x = r.Left
	}
	lines := t.Lines
	if len(lines) == 0 {
		lines = []string{t.Text}
	}
	for i := range lines {
		ys = append(ys, r.Top+px+float64(i)*px*scene.LineHeight)
	}
	return x, ys
}

// rgb parses #rgb or #rrggbb. Anything else is reported as not ok.
func rgb(s string) (r, g, b int, ok bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0, false
	}
	if _, err := fmt.Sscanf(s, "%02x%02x%02x", &r, &g, &b); err != nil {
		return 0, 0, 0, false
	}
	return r, g, b, true
}
