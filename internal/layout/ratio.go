/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package layout computes the editing board: the aspect-ratio guide, the canvas around it,
// where the background sits, and how entities move when any of those change.
package layout

import (
	"math"
	"strconv"
	"strings"
)

// Ratio is a guide aspect ratio W:H.
type Ratio struct{ W, H float64 }

// Square is the fallback ratio for missing or invalid input.
var Square = Ratio{W: 1, H: 1}

// ParseRatio parses "W:H". Anything that is not two positive finite numbers yields 1:1.
func ParseRatio(s string) Ratio {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Square
	}
	w, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	h, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil || !positive(w) || !positive(h) {
		return Square
	}
	return Ratio{W: w, H: h}
}

func positive(v float64) bool { return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) }

func (r Ratio) String() string {
	if !positive(r.W) || !positive(r.H) {
		return "1:1"
	}
	return strconv.FormatFloat(r.W, 'f', -1, 64) + ":" + strconv.FormatFloat(r.H, 'f', -1, 64)
}

// HeightFor returns the guide height for a guide of the given width, rounded to whole pixels.
func (r Ratio) HeightFor(width float64) float64 {
	if !positive(r.W) || !positive(r.H) {
		r = Square
	}
	return math.Round(width * r.H / r.W)
}
