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

const (
	// MaxBackgroundDim caps the displayed background's longer side.
	MaxBackgroundDim = 900

	// Board padding is 12 % of the guide width, kept within [MinPad, MaxPad].
	PadFraction = 0.12
	MinPad      = 40
	MaxPad      = 200
)

// Size is a width/height pair in pixels.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (s Size) Valid() bool { return s.W > 0 && s.H > 0 }

// FitBackground scales a natural image size so its longer side does not exceed maxDim,
// never upscaling. Sizes are rounded to whole pixels. Invalid input returns the zero Size.
func FitBackground(natural Size, maxDim float64) Size {
	if !natural.Valid() {
		return Size{}
	}
	if maxDim <= 0 {
		maxDim = MaxBackgroundDim
	}
	scale := math.Min(math.Min(maxDim/natural.W, maxDim/natural.H), 1)
	return Size{W: math.Round(natural.W * scale), H: math.Round(natural.H * scale)}
}

// Options tunes Compute.
type Options struct {
	// ViewportWidth widens the canvas to at least fill the visible area (0 = no widening).
	ViewportWidth float64
	// ImageBox, when set, places the background at this guide-relative box instead of centering it.
	ImageBox *geometry.Box
}

// Geometry is the full board description for one ratio/background/viewport combination.
type Geometry struct {
	Ratio            Ratio
	Background       Size
	Guide            geometry.Rect
	Canvas           Size
	BackgroundOffset geometry.Pt
	Pad              float64
}

// BackgroundRect is where the background is drawn in canvas pixels.
func (g Geometry) BackgroundRect() geometry.Rect {
	return geometry.R(g.BackgroundOffset.X, g.BackgroundOffset.Y, g.Background.W, g.Background.H)
}

// ImageBox is the background's guide-relative box.
func (g Geometry) ImageBox() geometry.Box {
	return geometry.ToNormalized(g.BackgroundRect(), g.Guide)
}

// Compute derives the guide, canvas and background offset.
// The guide width is pinned to the displayed background width and its height follows the
// ratio. Without a background the board falls back to a MaxBackgroundDim wide placeholder
// so the guide is never empty.
func Compute(ratio Ratio, background Size, opts Options) Geometry {
	if !positive(ratio.W) || !positive(ratio.H) {
		ratio = Square
	}
	guideW := background.W
	if !background.Valid() {
		background = Size{}
		guideW = MaxBackgroundDim
	}
	guideH := ratio.HeightFor(guideW)
	if guideH < 1 {
		guideH = 1
	}
	pad := geometry.Clamp(math.Round(guideW*PadFraction), MinPad, MaxPad)

	canvasW := math.Max(background.W, guideW) + 2*pad
	canvasH := math.Max(background.H, guideH) + 2*pad
	if opts.ViewportWidth > canvasW {
		canvasW = math.Round(opts.ViewportWidth)
	}

	guide := geometry.R(math.Round((canvasW-guideW)/2), math.Round((canvasH-guideH)/2), guideW, guideH)

	var offset geometry.Pt
	if opts.ImageBox != nil {
		offset = geometry.Pt{
			X: guide.Left + opts.ImageBox.X*guide.Width,
			Y: guide.Top + opts.ImageBox.Y*guide.Height,
		}
	} else {
		offset = geometry.Pt{
			X: guide.Left + math.Round((guideW-background.W)/2),
			Y: guide.Top + math.Round((guideH-background.H)/2),
		}
	}

	return Geometry{
		Ratio:            ratio,
		Background:       background,
		Guide:            guide,
		Canvas:           Size{W: canvasW, H: canvasH},
		BackgroundOffset: offset,
		Pad:              pad,
	}
}

// Reproject keeps r at the same guide-relative box when the guide changes from one
// geometry to the next.
func Reproject(r geometry.Rect, from, to Geometry) geometry.Rect {
	return geometry.FromNormalized(geometry.ToNormalized(r, from.Guide), to.Guide)
}

// ReprojectOrigin moves r so its top-left keeps the same guide-relative position while its
// pixel size is left alone. Images and shapes use it so they do not stretch.
func ReprojectOrigin(r geometry.Rect, from, to Geometry) geometry.Rect {
	p := Reproject(r, from, to)
	return geometry.R(p.Left, p.Top, r.Width, r.Height)
}

// Shift moves r by the change in background offset between two geometries, keeping its
// placement relative to the background.
func Shift(r geometry.Rect, from, to Geometry) geometry.Rect {
	return r.Translate(to.BackgroundOffset.X-from.BackgroundOffset.X, to.BackgroundOffset.Y-from.BackgroundOffset.Y)
}
