/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package scene

import (
	"kvlayout/internal/geometry"
	"kvlayout/internal/layout"
)

// Scene holds the real entities in stacking order plus the decorations derived from the
// current board geometry. It is not safe for concurrent use; the owning session serialises
// access.
type Scene struct {
	items []Entity // real entities, bottom to top; the background, if any, is first

	geom      layout.Geometry
	hasGeom   bool
	deadZone  [4]*Decoration
	boardEdge *Decoration
	guide     *Decoration
}

func New() *Scene { return &Scene{} }

// Add inserts e on top of the stack and returns its id. An entity without an id, or with
// an id already in use, receives a fresh one. Adding a background replaces the current
// one. Decorations are derived and cannot be added.
func (s *Scene) Add(e Entity) string {
	if e.Role().IsDecoration() {
		panic("scene: decorations are derived from geometry and cannot be added")
	}
	c := e.common()
	if c.ID == "" || s.Get(c.ID) != nil {
		c.ID = NewID()
	}
	if _, ok := e.(*Background); ok {
		s.RemoveWhere(func(x Entity) bool { return x.Role() == RoleBackground })
		s.items = append([]Entity{e}, s.items...)
	} else {
		s.items = append(s.items, e)
	}
	s.EnforceOrder()
	return c.ID
}

// Remove deletes the entity with the given id together with any decoration it owns.
func (s *Scene) Remove(id string) bool {
	for i, e := range s.items {
		if e.EntityID() == id {
			if t, ok := e.(*TextLayer); ok {
				t.deco = nil
			}
			last := len(s.items) - 1
			copy(s.items[i:], s.items[i+1:])
			s.items[last] = nil
			s.items = s.items[:last]
			return true
		}
	}
	return false
}

// RemoveWhere deletes every real entity matching fn and returns how many were removed.
func (s *Scene) RemoveWhere(fn func(Entity) bool) int {
	kept := s.items[:0]
	n := 0
	for _, e := range s.items {
		if fn(e) {
			if t, ok := e.(*TextLayer); ok {
				t.deco = nil
			}
			n++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(s.items); i++ {
		s.items[i] = nil
	}
	s.items = kept
	return n
}

// Get looks up a real entity by id.
func (s *Scene) Get(id string) Entity {
	for _, e := range s.items {
		if e.EntityID() == id {
			return e
		}
	}
	return nil
}

// Background returns the scene's background, or nil.
func (s *Scene) Background() *Background {
	if len(s.items) > 0 {
		if b, ok := s.items[0].(*Background); ok {
			return b
		}
	}
	return nil
}

// Entities lists everything in draw order: background, dead-zone quadrants, board edge,
// then the real entities with each text backdrop directly behind its layer, and the guide
// outline on top.
func (s *Scene) Entities() []Entity {
	out := make([]Entity, 0, len(s.items)+8)
	rest := s.items
	if bg := s.Background(); bg != nil {
		out = append(out, bg)
		rest = s.items[1:]
	}
	if s.hasGeom {
		for _, d := range s.deadZone {
			out = append(out, d)
		}
		out = append(out, s.boardEdge)
	}
	for _, e := range rest {
		if t, ok := e.(*TextLayer); ok && t.deco != nil {
			out = append(out, t.deco)
		}
		out = append(out, e)
	}
	if s.guide != nil {
		out = append(out, s.guide)
	}
	return out
}

// Real lists the non-decoration entities bottom to top. This is what the layer panel shows
// and what gets serialized.
func (s *Scene) Real() []Entity { return append([]Entity(nil), s.items...) }

// Len is the number of real entities.
func (s *Scene) Len() int { return len(s.items) }

// Of returns the real entities of concrete type T, bottom to top.
func Of[T Entity](s *Scene) []T {
	var out []T
	for _, e := range s.items {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// TextLayers is Of[*TextLayer].
func (s *Scene) TextLayers() []*TextLayer { return Of[*TextLayer](s) }

// IndexOf returns the draw-order index of id, or -1.
func (s *Scene) IndexOf(id string) int {
	for i, e := range s.Entities() {
		if e.EntityID() == id {
			return i
		}
	}
	return -1
}

// HitTest returns the topmost real entity containing p, or nil.
func (s *Scene) HitTest(p geometry.Pt) Entity {
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].Bounds().Contains(p) {
			return s.items[i]
		}
	}
	return nil
}

// EnforceOrder restores the stacking invariants after a structural change: the background
// is the bottommost real entity and every text backdrop follows its layer.
func (s *Scene) EnforceOrder() {
	for i, e := range s.items {
		if _, ok := e.(*Background); ok && i > 0 {
			copy(s.items[1:i+1], s.items[:i])
			s.items[0] = e
			break
		}
	}
	s.syncTextBackgrounds()
}

func (s *Scene) index(id string) int {
	for i, e := range s.items {
		if e.EntityID() == id {
			return i
		}
	}
	return -1
}

// floor is the lowest index a non-background entity may occupy.
func (s *Scene) floor() int {
	if s.Background() != nil {
		return 1
	}
	return 0
}

func (s *Scene) move(from, to int) {
	e := s.items[from]
	if from < to {
		copy(s.items[from:to], s.items[from+1:to+1])
	} else {
		copy(s.items[to+1:from+1], s.items[to:from])
	}
	s.items[to] = e
}

// reorder moves id to the index chosen by pick and reports whether anything changed.
// The background never moves.
func (s *Scene) reorder(id string, pick func(i, lo, hi int) int) bool {
	i := s.index(id)
	if i < 0 || s.items[i].Role() == RoleBackground {
		return false
	}
	lo, hi := s.floor(), len(s.items)-1
	to := int(geometry.Clamp(float64(pick(i, lo, hi)), float64(lo), float64(hi)))
	if to == i {
		return false
	}
	s.move(i, to)
	return true
}

func (s *Scene) BringForward(id string) bool {
	return s.reorder(id, func(i, _, _ int) int { return i + 1 })
}

func (s *Scene) SendBackward(id string) bool {
	return s.reorder(id, func(i, _, _ int) int { return i - 1 })
}

func (s *Scene) BringToFront(id string) bool {
	return s.reorder(id, func(_, _, hi int) int { return hi })
}

func (s *Scene) SendToBack(id string) bool {
	return s.reorder(id, func(_, lo, _ int) int { return lo })
}
