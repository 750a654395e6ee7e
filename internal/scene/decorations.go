/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package scene

import (
	"math"

	"kvlayout/internal/geometry"
	"kvlayout/internal/layout"
)

const (
	GuideStroke     = "#8fe4c7"
	DeadZoneFill    = "rgba(15,17,21,0.55)"
	DeadZonePattern = "diagonal-stripes"
	BoardEdgeStroke = "rgba(255,255,255,0.18)"
)

// Geometry returns the board geometry the decorations were last built for.
func (s *Scene) Geometry() (layout.Geometry, bool) { return s.geom, s.hasGeom }

// RebuildDecorations recomputes the guide outline, dead-zone quadrants, board edge and text
// backdrops for g. Decoration ids are kept across rebuilds.
func (s *Scene) RebuildDecorations(g layout.Geometry) {
	s.geom, s.hasGeom = g, true
	canvas := geometry.R(0, 0, g.Canvas.W, g.Canvas.H)

	for i, r := range deadZones(canvas, g.Guide) {
		if s.deadZone[i] == nil {
			s.deadZone[i] = &Decoration{Common: Common{ID: NewID()}, Kind: RoleDeadZone, Fill: DeadZoneFill, Pattern: DeadZonePattern, Opacity: 1}
		}
		s.deadZone[i].SetBounds(r)
	}
	if s.boardEdge == nil {
		s.boardEdge = &Decoration{Common: Common{ID: NewID()}, Kind: RoleBoardEdge, Stroke: BoardEdgeStroke, Opacity: 1}
	}
	s.boardEdge.SetBounds(canvas)
	if s.guide == nil {
		s.guide = &Decoration{Common: Common{ID: NewID()}, Kind: RoleGuideOutline, Stroke: GuideStroke, Opacity: 1}
	}
	s.guide.SetBounds(g.Guide)

	s.syncTextBackgrounds()
}

// deadZones covers the canvas outside the guide with four rectangles: the full-width bands
// above and below and the side bands level with the guide.
func deadZones(canvas, guide geometry.Rect) [4]geometry.Rect {
	w := func(v float64) float64 { return math.Max(0, v) }
	return [4]geometry.Rect{
		geometry.R(canvas.Left, canvas.Top, canvas.Width, w(guide.Top-canvas.Top)),
		geometry.R(canvas.Left, guide.Bottom(), canvas.Width, w(canvas.Bottom()-guide.Bottom())),
		geometry.R(canvas.Left, guide.Top, w(guide.Left-canvas.Left), guide.Height),
		geometry.R(guide.Right(), guide.Top, w(canvas.Right()-guide.Right()), guide.Height),
	}
}

// syncTextBackgrounds creates, updates or drops the backdrop owned by each text layer.
func (s *Scene) syncTextBackgrounds() {
	for _, t := range s.TextLayers() {
		if t.Backdrop == nil {
			t.deco = nil
			continue
		}
		if t.deco == nil {
			t.deco = &Decoration{Common: Common{ID: NewID()}, Kind: RoleTextBackground}
		}
		guideW := t.FontSize.BaseWidth
		if s.hasGeom {
			guideW = s.geom.Guide.Width
		}
		pad := t.Backdrop.Padding.Rescale(guideW)
		t.deco.Owner = t.ID
		t.deco.Fill = t.Backdrop.Color
		t.deco.Opacity = t.Backdrop.Opacity
		t.deco.Radius = t.Backdrop.Radius.Rescale(guideW)
		t.deco.SetBounds(t.Bounds().Inset(-pad, -pad))
	}
}

// Refresh re-syncs derived state after entities were edited in place.
func (s *Scene) Refresh() { s.syncTextBackgrounds() }
