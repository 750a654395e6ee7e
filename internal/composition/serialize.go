/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package composition

import (
	"math"
	"sort"

	"kvlayout/internal/geometry"
	"kvlayout/internal/layout"
	"kvlayout/internal/scene"
)

const (
	// MinFontPx floors font sizes recovered from older records and global rescaling.
	MinFontPx = 10
	// A layer with no stored size gets 60 % of its box height, at least 16 px.
	FallbackFontPx = 16
	BoxFontFactor  = 0.6

	DefaultShapeFill = "#8fe4c7"
)

// DefaultTextBox is where a text layer goes when nothing else says otherwise.
var DefaultTextBox = geometry.Box{X: 0.08, Y: 0.62, W: 0.80, H: 0.14}

// Serialize builds the record for the real entities of s against geometry g. Boxes are
// stored unclamped; the background contributes its asset reference and image box.
func Serialize(s *scene.Scene, g layout.Geometry, st Style) Record {
	guide := g.Guide
	st = st.WithDefaults()
	rec := Record{
		FontFamily: st.FontFamily,
		TextColor:  st.TextColor,
		TextAlign:  st.TextAlign,
		FontScale:  st.FontScale,
		GuideRatio: g.Ratio.String(),
		Layers:     []Layer{},
	}
	for z, e := range s.Real() {
		switch v := e.(type) {
		case *scene.Background:
			rec.KVAssetID, rec.KVURL = v.AssetID, v.URL
			if !v.Bounds().Empty() {
				b := geometry.ToNormalized(v.Bounds(), guide)
				rec.ImageBox = &b
			}
		case *scene.TextLayer:
			rec.Layers = append(rec.Layers, layerRecord(v, z, guide))
		case *scene.ImageElement:
			rec.Elements = append(rec.Elements, elementRecord(v, z, guide))
		case *scene.Shape:
			b := geometry.ToNormalized(v.Bounds(), guide)
			rec.Shapes = append(rec.Shapes, Shape{ID: v.ID, Z: z, Type: string(v.Type), Box: b, Fill: v.Fill, Opacity: ptr(v.Opacity)})
		}
	}
	return rec
}

func layerRecord(t *scene.TextLayer, z int, guide geometry.Rect) Layer {
	box := geometry.ToNormalized(t.Bounds(), guide)
	font := t.FontSize.Rebase(guide.Width)
	l := Layer{
		ID:           t.ID,
		Z:            z,
		Text:         t.Text,
		Lines:        append([]string(nil), t.Lines...),
		Box:          &box,
		FontSizePx:   font.Px,
		FontBaseW:    font.BaseWidth,
		FontSizeNorm: font.Px / guide.Height,
		FontFamily:   t.FontFamily,
		Color:        t.Fill,
		Align:        t.Align,
	}
	if bd := t.Backdrop; bd != nil {
		radius, pad := bd.Radius.Rebase(guide.Width), bd.Padding.Rebase(guide.Width)
		l.Background = &LayerBackground{
			Color:        bd.Color,
			Opacity:      bd.Opacity,
			RadiusPx:     radius.Px,
			RadiusBaseW:  radius.BaseWidth,
			PaddingPx:    pad.Px,
			PaddingBaseW: pad.BaseWidth,
		}
	}
	return l
}

func elementRecord(im *scene.ImageElement, z int, guide geometry.Rect) Element {
	r := im.Bounds()
	box := geometry.ToNormalized(r, guide)
	el := Element{
		ID:      im.ID,
		Z:       z,
		AssetID: im.AssetID,
		URL:     im.URL,
		Box:     &box,
		Opacity: ptr(im.Opacity),
		Left:    r.Left,
		Top:     r.Top,
		Width:   im.Natural.W,
		Height:  im.Natural.H,
	}
	if im.Natural.W > 0 {
		el.Scale = r.Width / im.Natural.W
	}
	return el
}

// Deserialize rebuilds the layers, elements and shapes of rec against guide, bottom to
// top. The background is not included; the caller owns background loading.
func Deserialize(rec Record, guide geometry.Rect) []scene.Entity {
	st := rec.Style().WithDefaults()
	type placed struct {
		z int
		e scene.Entity
	}
	var out []placed
	for _, l := range rec.Layers {
		out = append(out, placed{l.Z, TextFromRecord(l, guide, st)})
	}
	for _, el := range rec.Elements {
		out = append(out, placed{el.Z, imageFromRecord(el, guide)})
	}
	for _, sh := range rec.Shapes {
		out = append(out, placed{sh.Z, shapeFromRecord(sh, guide)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].z < out[j].z })
	ents := make([]scene.Entity, len(out))
	for i, p := range out {
		ents[i] = p.e
	}
	return ents
}

// TextFromRecord places one text layer against guide, filling style gaps from st.
func TextFromRecord(l Layer, guide geometry.Rect, st Style) *scene.TextLayer {
	box := DefaultTextBox
	if l.Box != nil {
		box = *l.Box
	}
	t := &scene.TextLayer{
		Common:     scene.Common{ID: l.ID, Rect: geometry.FromNormalized(box, guide)},
		Text:       l.Text,
		FontFamily: or(l.FontFamily, st.FontFamily),
		Fill:       or(l.Color, st.TextColor),
		Align:      or(l.Align, st.TextAlign),
		FontSize:   geometry.Measure(FontPx(l, box, guide), guide.Width),
	}
	if bg := l.Background; bg != nil {
		t.Backdrop = &scene.Backdrop{
			Color:   bg.Color,
			Opacity: geometry.Clamp01(bg.Opacity),
			Radius:  geometry.Scaled{Px: bg.RadiusPx, BaseWidth: bg.RadiusBaseW},
			Padding: geometry.Scaled{Px: bg.PaddingPx, BaseWidth: bg.PaddingBaseW},
		}
	}
	// the stored box is authoritative
	t.Rewrap()
	return t
}

// FontPx recovers a layer's font size for guide. A stored pixel size with its guide-width
// basis is rescaled proportionally; the other paths read records written before the basis
// was stored.
func FontPx(l Layer, box geometry.Box, guide geometry.Rect) float64 {
	switch {
	case l.FontSizePx > 0 && l.FontBaseW > 0:
		return geometry.Scaled{Px: l.FontSizePx, BaseWidth: l.FontBaseW}.Rescale(guide.Width)
	case l.FontSizePx > 0:
		return math.Max(MinFontPx, l.FontSizePx)
	case l.FontSizeNorm > 0:
		return math.Max(MinFontPx, l.FontSizeNorm*guide.Height)
	default:
		return BoxFontPx(box, guide)
	}
}

// BoxFontPx sizes text from its box height alone.
func BoxFontPx(box geometry.Box, guide geometry.Rect) float64 {
	return math.Max(FallbackFontPx, box.H*guide.Height*BoxFontFactor)
}

func imageFromRecord(el Element, guide geometry.Rect) *scene.ImageElement {
	var r geometry.Rect
	if el.Box != nil {
		r = geometry.FromNormalized(*el.Box, guide)
	} else {
		scale := el.Scale
		if scale <= 0 {
			scale = 1
		}
		r = geometry.R(el.Left, el.Top, el.Width*scale, el.Height*scale)
	}
	return &scene.ImageElement{
		Common:  scene.Common{ID: el.ID, Rect: r},
		AssetID: el.AssetID,
		URL:     el.URL,
		Opacity: opacityOr(el.Opacity, 1),
		Natural: layout.Size{W: el.Width, H: el.Height},
	}
}

func shapeFromRecord(sh Shape, guide geometry.Rect) *scene.Shape {
	typ := scene.ShapeType(sh.Type)
	if !typ.Valid() {
		typ = scene.ShapeRect
	}
	return &scene.Shape{
		Common:  scene.Common{ID: sh.ID, Rect: geometry.FromNormalized(sh.Box, guide)},
		Type:    typ,
		Fill:    or(sh.Fill, DefaultShapeFill),
		Opacity: opacityOr(sh.Opacity, 1),
	}
}

func or(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
