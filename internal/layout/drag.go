/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package layout

import "kvlayout/internal/geometry"

// How far past the canvas edge a dragged entity may travel, as a fraction of canvas size.
// The background gets more room so it can bleed intentionally. Tunable.
const (
	EntityOverflow     = 0.25
	BackgroundOverflow = 0.45
)

// ConstrainDrag limits a dragged rectangle so it never leaves the canvas by more than
// overflow*canvas on any side. When an axis has no legal range left (the entity is larger
// than the canvas plus both margins) the entity snaps to the centre of that axis.
func ConstrainDrag(r geometry.Rect, canvas Size, overflow float64) geometry.Rect {
	if !canvas.Valid() {
		return r
	}
	r.Left = constrainAxis(r.Left, r.Width, canvas.W, overflow)
	r.Top = constrainAxis(r.Top, r.Height, canvas.H, overflow)
	return r
}

func constrainAxis(pos, size, extent, overflow float64) float64 {
	lo := -overflow * extent
	hi := extent + overflow*extent - size
	if lo > hi {
		return (extent - size) / 2
	}
	return geometry.Clamp(pos, lo, hi)
}
