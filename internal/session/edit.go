/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package session

import (
	"context"
	"fmt"
	"math"
	"strings"

	"kvlayout/internal/composition"
	"kvlayout/internal/geometry"
	"kvlayout/internal/layout"
	"kvlayout/internal/scene"
)

// InsertOffset is how far each inserted text layer is nudged per existing text layer.
const InsertOffset = 10

// DuplicateOffset is how far a duplicate lands from its original.
const DuplicateOffset = 10

// DefaultCopyBoxes are where the headline, subhead and call to action go when a copy set
// creates them.
var DefaultCopyBoxes = [3]geometry.Box{
	{X: 0.08, Y: 0.60, W: 0.84, H: 0.16},
	{X: 0.08, Y: 0.78, W: 0.84, H: 0.10},
	{X: 0.08, Y: 0.90, W: 0.44, H: 0.07},
}

// TextStyle is a partial style update; empty fields and a zero FontPx are left alone.
type TextStyle struct {
	FontFamily string
	Fill       string
	Align      string
	FontPx     float64
}

// BackdropStyle describes a text backdrop in pixels at the current guide width.
type BackdropStyle struct {
	Color     string
	Opacity   float64
	RadiusPx  float64
	PaddingPx float64
}

func (s *Session) textLocked(id string) (*scene.TextLayer, error) {
	t, ok := s.scene.Get(id).(*scene.TextLayer)
	if !ok {
		return nil, fmt.Errorf("%w: no text layer %q", ErrUnknownEntity, id)
	}
	return t, nil
}

// addTextLocked creates a text layer at box, nudged by offset pixels.
func (s *Session) addTextLocked(text string, box geometry.Box, offset float64) *scene.TextLayer {
	t := composition.TextFromRecord(composition.Layer{Text: text, Box: &box}, s.geom.Guide, s.style)
	scene.Translate(t, offset, offset)
	s.scene.Add(t)
	s.scene.Refresh()
	return t
}

// InsertText adds a text layer at the default box, offset by InsertOffset pixels for each
// text layer already present.
func (s *Session) InsertText(ctx context.Context, text string) (string, error) {
	if err := s.lock(); err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	n := len(s.scene.TextLayers())
	t := s.addTextLocked(text, composition.DefaultTextBox, float64(n*InsertOffset))
	s.commitLocked(ctx)
	return t.ID, nil
}

// SetText replaces a layer's text. Bursts of calls coalesce into one history entry.
func (s *Session) SetText(ctx context.Context, id, text string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	t, err := s.textLocked(id)
	if err != nil {
		return err
	}
	t.Text = text
	t.Reflow()
	s.scene.Refresh()
	s.touchLocked(ctx)
	return nil
}

// SetTextStyle applies a partial style to one layer.
func (s *Session) SetTextStyle(ctx context.Context, id string, st TextStyle) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	t, err := s.textLocked(id)
	if err != nil {
		return err
	}
	if st.FontFamily != "" {
		t.FontFamily = st.FontFamily
	}
	if st.Fill != "" {
		t.Fill = st.Fill
	}
	if st.Align != "" {
		t.Align = st.Align
	}
	if st.FontPx > 0 {
		t.FontSize = geometry.Measure(math.Max(composition.MinFontPx, st.FontPx), s.geom.Guide.Width)
	}
	t.Reflow()
	s.scene.Refresh()
	s.commitLocked(ctx)
	return nil
}

// SetDefaults changes the global font, color and alignment and applies them to every
// text layer. Empty fields are left alone.
func (s *Session) SetDefaults(ctx context.Context, st composition.Style) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if st.FontFamily != "" {
		s.style.FontFamily = st.FontFamily
	}
	if st.TextColor != "" {
		s.style.TextColor = st.TextColor
	}
	if st.TextAlign != "" {
		s.style.TextAlign = st.TextAlign
	}
	for _, t := range s.scene.TextLayers() {
		t.FontFamily, t.Fill, t.Align = s.style.FontFamily, s.style.TextColor, s.style.TextAlign
		t.Reflow()
	}
	s.scene.Refresh()
	s.commitLocked(ctx)
	return nil
}

// SetFontScale changes the global font scale. Every text layer's size is multiplied by
// next over the previous scale, never going below composition.MinFontPx.
func (s *Session) SetFontScale(ctx context.Context, next float64) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if !(next > 0) || math.IsInf(next, 0) {
		next = 1
	}
	prev := s.style.FontScale
	if prev <= 0 {
		prev = 1
	}
	ratio := next / prev
	for _, t := range s.scene.TextLayers() {
		px := t.FontSize.Rescale(s.geom.Guide.Width)
		t.FontSize = geometry.Measure(math.Max(composition.MinFontPx, px*ratio), s.geom.Guide.Width)
		t.Reflow()
	}
	s.style.FontScale = next
	s.scene.Refresh()
	s.commitLocked(ctx)
	return nil
}

// Resize scales an entity by sx,sy about its top-left corner. A text layer folds sx into
// its width and sy into its font size.
func (s *Session) Resize(ctx context.Context, id string, sx, sy float64) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if !(sx > 0) || !(sy > 0) {
		return fmt.Errorf("session: invalid scale %gx%g", sx, sy)
	}
	e := s.scene.Get(id)
	switch v := e.(type) {
	case nil:
		return fmt.Errorf("%w: %q", ErrUnknownEntity, id)
	case *scene.Background:
		return fmt.Errorf("session: the background is sized by the guide")
	case *scene.TextLayer:
		v.ScaleX, v.ScaleY = sx, sy
		s.normalizeScaleLocked(v)
	default:
		r := e.Bounds()
		e.SetBounds(geometry.R(r.Left, r.Top, r.Width*sx, r.Height*sy))
	}
	s.scene.Refresh()
	s.commitLocked(ctx)
	return nil
}

// NormalizeScale folds any pending scale on text layers into width and font size. It
// reports how many layers changed.
func (s *Session) NormalizeScale(ctx context.Context) (int, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.scene.TextLayers() {
		if s.normalizeScaleLocked(t) {
			n++
		}
	}
	if n > 0 {
		s.scene.Refresh()
		s.commitLocked(ctx)
	}
	return n, nil
}

func (s *Session) normalizeScaleLocked(t *scene.TextLayer) bool {
	sx, sy := t.ScaleX, t.ScaleY
	if sx == 0 {
		sx = 1
	}
	if sy == 0 {
		sy = 1
	}
	if sx == 1 && sy == 1 {
		t.ScaleX, t.ScaleY = 0, 0
		return false
	}
	r := t.Bounds()
	t.SetBounds(geometry.R(r.Left, r.Top, r.Width*sx, r.Height*sy))
	px := t.FontSize.Rescale(s.geom.Guide.Width) * sy
	t.FontSize = geometry.Measure(math.Max(composition.MinFontPx, px), s.geom.Guide.Width)
	t.ScaleX, t.ScaleY = 0, 0
	t.Reflow()
	return true
}

// SetTextBackground gives a text layer a backdrop, or removes it when bd is nil.
func (s *Session) SetTextBackground(ctx context.Context, id string, bd *BackdropStyle) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	t, err := s.textLocked(id)
	if err != nil {
		return err
	}
	if bd == nil {
		t.Backdrop = nil
	} else {
		w := s.geom.Guide.Width
		t.Backdrop = &scene.Backdrop{
			Color:   bd.Color,
			Opacity: geometry.Clamp01(bd.Opacity),
			Radius:  geometry.Measure(math.Max(0, bd.RadiusPx), w),
			Padding: geometry.Measure(math.Max(0, bd.PaddingPx), w),
		}
	}
	s.scene.Refresh()
	s.commitLocked(ctx)
	return nil
}

// ApplyCopySet writes headline, subhead and call to action into the first three text
// layers, creating missing ones at DefaultCopyBoxes. It returns the three layer ids.
func (s *Session) ApplyCopySet(ctx context.Context, headline, subhead, cta string) ([]string, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	texts := [3]string{headline, subhead, cta}
	layers := s.scene.TextLayers()
	ids := make([]string, 0, len(texts))
	for i, txt := range texts {
		if i < len(layers) {
			layers[i].Text = txt
			layers[i].Reflow()
			ids = append(ids, layers[i].ID)
			continue
		}
		ids = append(ids, s.addTextLocked(txt, DefaultCopyBoxes[i], 0).ID)
	}
	s.scene.Refresh()
	s.commitLocked(ctx)
	return ids, nil
}

// AddImage inserts an asset image centred in the guide, at most 40 % of the guide wide.
func (s *Session) AddImage(ctx context.Context, assetID, rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", fmt.Errorf("session: image url is required")
	}
	natural, err := s.probe(ctx, rawURL)
	if err != nil {
		return "", err
	}
	if err := s.lock(); err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	g := s.geom.Guide
	w := math.Min(natural.W, g.Width*0.4)
	h := natural.H * w / natural.W
	c := g.Center()
	im := &scene.ImageElement{
		Common:  scene.Common{Rect: geometry.R(c.X-w/2, c.Y-h/2, w, h)},
		AssetID: assetID,
		URL:     rawURL,
		Opacity: 1,
		Natural: natural,
	}
	id := s.scene.Add(im)
	s.scene.Refresh()
	s.commitLocked(ctx)
	return id, nil
}

// AddShape inserts a shape centred in the guide, sized to 30 % of the guide's shorter side.
func (s *Session) AddShape(ctx context.Context, typ scene.ShapeType, fill string) (string, error) {
	if !typ.Valid() {
		return "", fmt.Errorf("session: unknown shape type %q", typ)
	}
	if err := s.lock(); err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	g := s.geom.Guide
	side := 0.3 * math.Min(g.Width, g.Height)
	c := g.Center()
	if fill == "" {
		fill = composition.DefaultShapeFill
	}
	sh := &scene.Shape{
		Common:  scene.Common{Rect: geometry.R(c.X-side/2, c.Y-side/2, side, side)},
		Type:    typ,
		Fill:    fill,
		Opacity: 1,
	}
	id := s.scene.Add(sh)
	s.commitLocked(ctx)
	return id, nil
}

// SetShapeStyle changes a shape's fill and opacity, or an image's opacity. Empty fill and
// nil opacity are left alone.
func (s *Session) SetShapeStyle(ctx context.Context, id, fill string, opacity *float64) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	switch v := s.scene.Get(id).(type) {
	case *scene.Shape:
		if fill != "" {
			v.Fill = fill
		}
		if opacity != nil {
			v.Opacity = geometry.Clamp01(*opacity)
		}
	case *scene.ImageElement:
		if opacity != nil {
			v.Opacity = geometry.Clamp01(*opacity)
		}
	default:
		return fmt.Errorf("%w: no shape or image %q", ErrUnknownEntity, id)
	}
	s.commitLocked(ctx)
	return nil
}

// Move drags an entity so its top-left lands at left,top, constrained to the board.
// The background may overflow further than other entities.
func (s *Session) Move(ctx context.Context, id string, left, top float64) (geometry.Rect, error) {
	if err := s.lock(); err != nil {
		return geometry.Rect{}, err
	}
	defer s.mu.Unlock()
	e := s.scene.Get(id)
	if e == nil {
		return geometry.Rect{}, fmt.Errorf("%w: %q", ErrUnknownEntity, id)
	}
	overflow := layout.EntityOverflow
	if e.Role() == scene.RoleBackground {
		overflow = layout.BackgroundOverflow
	}
	r := e.Bounds()
	r.Left, r.Top = left, top
	r = layout.ConstrainDrag(r, s.geom.Canvas, overflow)
	e.SetBounds(r)
	if bg, ok := e.(*scene.Background); ok {
		s.geom.BackgroundOffset = bg.Bounds().Min()
	}
	s.scene.Refresh()
	s.commitLocked(ctx)
	return r, nil
}

// Delete removes an entity. The background cannot be deleted.
func (s *Session) Delete(ctx context.Context, id string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	e := s.scene.Get(id)
	switch {
	case e == nil:
		return fmt.Errorf("%w: %q", ErrUnknownEntity, id)
	case e.Role() == scene.RoleBackground:
		return ErrNotDeletable
	}
	s.scene.Remove(id)
	s.scene.Refresh()
	s.commitLocked(ctx)
	return nil
}

// Duplicate clones an entity with a fresh id, DuplicateOffset pixels down and right.
func (s *Session) Duplicate(ctx context.Context, id string) (string, error) {
	if err := s.lock(); err != nil {
		return "", err
	}
	defer s.mu.Unlock()
	e := s.scene.Get(id)
	if e == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownEntity, id)
	}
	c := scene.Clone(e)
	if c == nil {
		return "", ErrNotCloneable
	}
	scene.Translate(c, DuplicateOffset, DuplicateOffset)
	nid := s.scene.Add(c)
	s.scene.Refresh()
	s.commitLocked(ctx)
	return nid, nil
}

// Order is a stacking change.
type Order string

const (
	Forward  Order = "forward"
	Backward Order = "backward"
	Front    Order = "front"
	Back     Order = "back"
)

// Reorder changes an entity's stacking. Nothing moves below the background. It reports
// whether the order changed.
func (s *Session) Reorder(ctx context.Context, id string, o Order) (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	e := s.scene.Get(id)
	if e == nil {
		return false, fmt.Errorf("%w: %q", ErrUnknownEntity, id)
	}
	var moved bool
	switch o {
	case Forward:
		moved = s.scene.BringForward(id)
	case Backward:
		moved = s.scene.SendBackward(id)
	case Front:
		moved = s.scene.BringToFront(id)
	case Back:
		moved = s.scene.SendToBack(id)
	default:
		return false, fmt.Errorf("session: unknown order %q", o)
	}
	if moved {
		s.commitLocked(ctx)
	}
	return moved, nil
}
