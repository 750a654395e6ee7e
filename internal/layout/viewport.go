/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import (
	"math"

	"kvlayout/internal/geometry"
)

// Zoom limits and how far a zoomed canvas may be panned out of view, as a fraction of the
// smaller of canvas and viewport size. The figures are tunable.
const (
	MinZoom   = 0.4
	MaxZoom   = 2.5
	PanMargin = 0.45
)

// Viewport is the visible window onto the canvas. Offset is where the canvas's top-left
// corner lands in viewport pixels.
type Viewport struct {
	Width, Height float64
	Zoom          float64
	Offset        geometry.Pt
}

func NewViewport(w, h float64) Viewport { return Viewport{Width: w, Height: h, Zoom: 1} }

// Transform maps canvas pixels to viewport pixels.
func (v Viewport) Transform() geometry.Affine2D {
	z := v.zoom()
	return geometry.Translate(v.Offset.X, v.Offset.Y).Mul(geometry.Scale(z, z))
}

// ToCanvas maps a viewport point back into canvas pixels.
func (v Viewport) ToCanvas(p geometry.Pt) geometry.Pt { return v.Transform().Invert().Apply(p) }

func (v Viewport) zoom() float64 {
	if v.Zoom <= 0 {
		return 1
	}
	return v.Zoom
}

// ZoomTo sets the zoom level within [MinZoom, MaxZoom], keeping the canvas midpoint fixed on screen.
func (v *Viewport) ZoomTo(z float64, canvas Size) {
	z = geometry.Clamp(z, MinZoom, MaxZoom)
	old := v.zoom()
	mid := geometry.Pt{X: v.Offset.X + old*canvas.W/2, Y: v.Offset.Y + old*canvas.H/2}
	v.Zoom = z
	v.Offset = geometry.Pt{X: mid.X - z*canvas.W/2, Y: mid.Y - z*canvas.H/2}
	v.clamp(canvas)
}

// ZoomBy multiplies the zoom level by f.
func (v *Viewport) ZoomBy(f float64, canvas Size) { v.ZoomTo(v.zoom()*f, canvas) }

// PanBy moves the canvas by dx,dy viewport pixels.
func (v *Viewport) PanBy(dx, dy float64, canvas Size) {
	v.Offset = geometry.Pt{X: v.Offset.X + dx, Y: v.Offset.Y + dy}
	v.clamp(canvas)
}

// Fit resets zoom to 1 and centers the guide in the viewport.
func (v *Viewport) Fit(canvas Size, guide geometry.Rect) {
	v.Zoom = 1
	c := guide.Center()
	v.Offset = geometry.Pt{X: math.Round(v.Width/2 - c.X), Y: math.Round(v.Height/2 - c.Y)}
	v.clamp(canvas)
}

// Resize updates the viewport dimensions and re-clamps the offset.
func (v *Viewport) Resize(w, h float64, canvas Size) {
	v.Width, v.Height = w, h
	v.clamp(canvas)
}

// clamp keeps the scaled canvas from scrolling fully out of view.
func (v *Viewport) clamp(canvas Size) {
	z := v.zoom()
	v.Offset.X = clampAxis(v.Offset.X, canvas.W*z, v.Width)
	v.Offset.Y = clampAxis(v.Offset.Y, canvas.H*z, v.Height)
}

func clampAxis(off, scaled, view float64) float64 {
	if view <= 0 || scaled <= 0 {
		return off
	}
	margin := PanMargin * math.Min(scaled, view)
	lo := math.Min(0, view-scaled) - margin
	hi := math.Max(0, view-scaled) + margin
	return geometry.Clamp(off, lo, hi)
}
