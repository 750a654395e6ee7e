/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package scene

import (
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

// LineHeight is the line advance as a multiple of the font size.
const LineHeight = 1.16

// Glyph advances come from the 7x13 bitmap face scaled to the requested size. This is an
// estimate for line breaking only; real shaping happens in the renderer.
const faceHeight = 13

// Wrap breaks text into lines no wider than maxWidth at fontPx. Explicit newlines always
// break; a single word wider than maxWidth gets a line of its own.
func Wrap(text string, maxWidth, fontPx float64) []string {
	if text == "" {
		return nil
	}
	scale := 1.0
	if fontPx > 0 {
		scale = fontPx / faceHeight
	}
	d := &font.Drawer{Face: basicfont.Face7x13}
	measure := func(s string) float64 { return float64(d.MeasureString(s)) / 64 * scale }

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		cur := words[0]
		for _, w := range words[1:] {
			next := cur + " " + w
			if maxWidth > 0 && measure(next) > maxWidth {
				lines = append(lines, cur)
				cur = w
				continue
			}
			cur = next
		}
		lines = append(lines, cur)
	}
	return lines
}

// Rewrap recomputes the line breaks for the current width and leaves the box alone.
func (t *TextLayer) Rewrap() {
	t.Lines = Wrap(t.Text, t.Rect.Width, t.FontSize.Px)
}

// Reflow re-wraps the layer's text to its width and grows the box if the lines no longer fit.
func (t *TextLayer) Reflow() {
	t.Rewrap()
	n := len(t.Lines)
	if n == 0 {
		n = 1
	}
	if need := float64(n) * t.FontSize.Px * LineHeight; need > t.Rect.Height {
		t.Rect.Height = need
	}
}
