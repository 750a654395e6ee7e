/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package geometry

import "math"

// Box is a position/size expressed as fractions of the guide rectangle.
// X and Y are the offset of the top-left corner from the guide's top-left corner,
// scaled by guide width and height independently. Values may leave [0,1] when an
// entity overflows the guide.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// ToNormalized converts a pixel rectangle into a guide-relative box.
// The guide must have positive width and height; an empty guide is a caller bug and panics.
func ToNormalized(r Rect, guide Rect) Box {
	if guide.Empty() {
		panic("geometry: ToNormalized called with an empty guide")
	}
	return Box{
		X: (r.Left - guide.Left) / guide.Width,
		Y: (r.Top - guide.Top) / guide.Height,
		W: r.Width / guide.Width,
		H: r.Height / guide.Height,
	}
}

// FromNormalized is the inverse of ToNormalized.
func FromNormalized(b Box, guide Rect) Rect {
	return Rect{
		Left:   guide.Left + b.X*guide.Width,
		Top:    guide.Top + b.Y*guide.Height,
		Width:  b.W * guide.Width,
		Height: b.H * guide.Height,
	}
}

// Clamp01 restricts v to [0,1].
func Clamp01(v float64) float64 { return Clamp(v, 0, 1) }

// Clamped returns the box with every component restricted to [0,1]. Only the legacy
// form output uses it; stored boxes keep their overflow.
func (b Box) Clamped() Box {
	return Box{X: Clamp01(b.X), Y: Clamp01(b.Y), W: Clamp01(b.W), H: Clamp01(b.H)}
}

func (b Box) ApproxEqual(o Box, eps float64) bool {
	return math.Abs(b.X-o.X) <= eps && math.Abs(b.Y-o.Y) <= eps &&
		math.Abs(b.W-o.W) <= eps && math.Abs(b.H-o.H) <= eps
}

// Scaled is a pixel measure captured together with the guide width it was measured
// against, so it can be re-applied proportionally on a different guide.
type Scaled struct {
	Px        float64 `json:"px"`
	BaseWidth float64 `json:"base_w"`
}

// Measure records px against the given guide width.
func Measure(px, guideWidth float64) Scaled { return Scaled{Px: px, BaseWidth: guideWidth} }

// Rescale returns the pixel value for a guide of width guideWidth:
// px * guideWidth / BaseWidth. Without a basis the stored pixel value is returned unchanged.
func (s Scaled) Rescale(guideWidth float64) float64 {
	if s.BaseWidth <= 0 || guideWidth <= 0 {
		return s.Px
	}
	return s.Px * (guideWidth / s.BaseWidth)
}

// Rebase re-expresses the measure against a new guide width, keeping its apparent size.
func (s Scaled) Rebase(guideWidth float64) Scaled {
	return Scaled{Px: s.Rescale(guideWidth), BaseWidth: guideWidth}
}
