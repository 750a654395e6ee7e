/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package scene

import (
	"bytes"
	"math"
	"testing"

	"kvlayout/internal/geometry"
	"kvlayout/internal/layout"
)

func newText(text string, r geometry.Rect) *TextLayer {
	return &TextLayer{
		Common:     Common{Rect: r},
		Text:       text,
		FontFamily: "Inter",
		Fill:       "#ffffff",
		Align:      "left",
		FontSize:   geometry.Measure(40, 900),
	}
}

func sampleScene() (*Scene, layout.Geometry) {
	g := layout.Compute(layout.Square, layout.Size{W: 900, H: 600}, layout.Options{})
	s := New()
	s.Add(&Shape{Type: ShapeRect, Fill: "#ff0000", Opacity: 1, Common: Common{Rect: geometry.R(200, 200, 80, 80)}})
	s.Add(newText("Headline", geometry.R(180, 650, 720, 126)))
	s.Add(&Background{AssetID: "kv-1", Natural: layout.Size{W: 1200, H: 800}, Common: Common{Rect: g.BackgroundRect()}})
	s.Add(&ImageElement{AssetID: "logo", Opacity: 1, Common: Common{Rect: geometry.R(300, 300, 100, 50)}})
	s.RebuildDecorations(g)
	return s, g
}

func TestAddAssignsUniqueIDs(t *testing.T) {
	s := New()
	a := &Shape{Type: ShapeCircle, Common: Common{ID: "dup"}}
	b := &Shape{Type: ShapeStar, Common: Common{ID: "dup"}}
	c := &Shape{Type: ShapeTriangle}
	s.Add(a)
	s.Add(b)
	s.Add(c)
	if a.ID != "dup" {
		t.Fatalf("existing id should be kept, got %q", a.ID)
	}
	if b.ID == "dup" || b.ID == "" || c.ID == "" || b.ID == c.ID {
		t.Fatalf("expected fresh unique ids: %q %q", b.ID, c.ID)
	}
}

func TestDrawOrderInvariant(t *testing.T) {
	s, _ := sampleScene()
	all := s.Entities()
	if all[0].Role() != RoleBackground {
		t.Fatalf("background must be first, got %s", all[0].Role())
	}
	for i := 1; i <= 4; i++ {
		if all[i].Role() != RoleDeadZone {
			t.Fatalf("index %d: want dead-zone, got %s", i, all[i].Role())
		}
	}
	if all[5].Role() != RoleBoardEdge {
		t.Fatalf("board edge must follow the dead zones, got %s", all[5].Role())
	}
	if all[len(all)-1].Role() != RoleGuideOutline {
		t.Fatalf("guide outline must be last, got %s", all[len(all)-1].Role())
	}

	// reorders keep the invariant
	txt := s.TextLayers()[0]
	s.SendToBack(txt.ID)
	s.BringToFront(Of[*Shape](s)[0].ID)
	all = s.Entities()
	if all[0].Role() != RoleBackground || all[len(all)-1].Role() != RoleGuideOutline {
		t.Fatalf("invariant broken after reorder")
	}
	if all[6].EntityID() != txt.ID {
		t.Fatalf("text sent to back should sit right above the board edge, got %s", all[6].Role())
	}
}

func TestBackgroundStaysAtBottom(t *testing.T) {
	s, _ := sampleScene()
	bg := s.Background()
	if s.SendBackward(Of[*Shape](s)[0].ID) {
		t.Fatalf("nothing may move below the background")
	}
	if s.BringToFront(bg.ID) || s.BringForward(bg.ID) {
		t.Fatalf("background must not move")
	}
	s.Add(&Background{AssetID: "kv-2"})
	if n := len(Of[*Background](s)); n != 1 {
		t.Fatalf("want exactly one background, got %d", n)
	}
	if s.Background().AssetID != "kv-2" || s.Real()[0] != s.Background() {
		t.Fatalf("replacement background should be bottommost")
	}
}

func TestRealFiltersDecorations(t *testing.T) {
	s, _ := sampleScene()
	txt := s.TextLayers()[0]
	txt.Backdrop = &Backdrop{Color: "#000", Opacity: 0.5, Padding: geometry.Measure(12, 900)}
	s.Refresh()
	for _, e := range s.Real() {
		if e.Role().IsDecoration() {
			t.Fatalf("Real() returned decoration %s", e.Role())
		}
	}
	if got, want := len(s.Entities()), s.Len()+7; got != want {
		t.Fatalf("entities = %d, want %d", got, want)
	}
}

func TestTextBackdropSitsBehindOwner(t *testing.T) {
	s, g := sampleScene()
	txt := s.TextLayers()[0]
	txt.Backdrop = &Backdrop{Color: "#101010", Opacity: 0.6, Radius: geometry.Measure(8, 450), Padding: geometry.Measure(10, 450)}
	s.BringToFront(txt.ID)
	s.RebuildDecorations(g)

	deco := txt.Decoration()
	if deco == nil || deco.Owner != txt.ID {
		t.Fatalf("backdrop not owned by layer: %+v", deco)
	}
	// basis 450 on a 900 guide doubles padding and radius
	want := txt.Bounds().Inset(-20, -20)
	if !deco.Bounds().ApproxEqual(want, 1e-9) || deco.Radius != 16 {
		t.Fatalf("backdrop = %+v radius %v, want %+v radius 16", deco.Bounds(), deco.Radius, want)
	}
	ti, di := s.IndexOf(txt.ID), s.IndexOf(deco.ID)
	if di != ti-1 {
		t.Fatalf("backdrop index %d, text index %d", di, ti)
	}

	s.Remove(txt.ID)
	if s.IndexOf(deco.ID) != -1 {
		t.Fatalf("backdrop must go with its layer")
	}
}

func TestDeadZonesCoverOutsideGuide(t *testing.T) {
	s, g := sampleScene()
	var area float64
	for _, e := range s.Entities() {
		if e.Role() == RoleDeadZone {
			area += e.Bounds().Width * e.Bounds().Height
		}
	}
	want := g.Canvas.W*g.Canvas.H - g.Guide.Width*g.Guide.Height
	if math.Abs(area-want) > 1e-6 {
		t.Fatalf("dead-zone area %v, want %v", area, want)
	}
}

func TestCloneGetsFreshID(t *testing.T) {
	src := newText("Copy me", geometry.R(10, 10, 200, 60))
	src.ID = "orig"
	src.Backdrop = &Backdrop{Color: "#000"}
	c, ok := Clone(src).(*TextLayer)
	if !ok {
		t.Fatalf("clone type mismatch")
	}
	if c.ID == "" || c.ID == src.ID {
		t.Fatalf("clone must have a fresh id, got %q", c.ID)
	}
	c.Backdrop.Color = "#fff"
	if src.Backdrop.Color != "#000" {
		t.Fatalf("clone shares backdrop with source")
	}
	if Clone(&Background{}) != nil {
		t.Fatalf("backgrounds are not cloneable")
	}
}

func TestCaptureRestore(t *testing.T) {
	s, g := sampleScene()
	before, err := s.Capture()
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	again, _ := s.Capture()
	if !bytes.Equal(before, again) {
		t.Fatalf("capture is not deterministic")
	}

	ids := make([]string, 0)
	for _, e := range s.Real() {
		ids = append(ids, e.EntityID())
	}
	Translate(s.TextLayers()[0], 50, 50)
	s.Remove(ids[len(ids)-1])

	if err := s.Restore(before); err != nil {
		t.Fatalf("restore: %v", err)
	}
	s.RebuildDecorations(g)
	after, _ := s.Capture()
	if !bytes.Equal(before, after) {
		t.Fatalf("restore mismatch:\n%s\n%s", before, after)
	}
	for i, e := range s.Real() {
		if e.EntityID() != ids[i] {
			t.Fatalf("order/id changed at %d", i)
		}
	}
}

func TestCaptureFailsOnUnserializableState(t *testing.T) {
	s := New()
	s.Add(&Shape{Type: ShapeRect, Opacity: math.NaN()})
	if _, err := s.Capture(); err == nil {
		t.Fatalf("expected capture error for NaN")
	}
}

func TestRestoreRejectsGarbage(t *testing.T) {
	s, _ := sampleScene()
	n := s.Len()
	if err := s.Restore([]byte(`{"version":1,"nodes":[{"role":"guide-outline","data":{}}]}`)); err == nil {
		t.Fatalf("decorations must not restore")
	}
	if err := s.Restore([]byte(`not json`)); err == nil {
		t.Fatalf("expected error")
	}
	if s.Len() != n {
		t.Fatalf("failed restore modified the scene")
	}
}

func TestHitTestTopmost(t *testing.T) {
	s, _ := sampleScene()
	top := &Shape{Type: ShapeCircle, Common: Common{Rect: geometry.R(190, 190, 50, 50)}}
	s.Add(top)
	if got := s.HitTest(geometry.Pt{X: 210, Y: 210}); got != top {
		t.Fatalf("hit = %v", got)
	}
	if got := s.HitTest(geometry.Pt{X: -5, Y: -5}); got != nil {
		t.Fatalf("expected miss, got %v", got)
	}
}

func TestWrap(t *testing.T) {
	lines := Wrap("Hello world from Go", 60, 13)
	if len(lines) < 2 {
		t.Fatalf("expected wrapping, got %q", lines)
	}
	if got := Wrap("a\n\nb", 1000, 13); len(got) != 3 || got[1] != "" {
		t.Fatalf("newlines should break: %q", got)
	}
	if Wrap("", 100, 13) != nil {
		t.Fatalf("empty text has no lines")
	}

	txt := newText("one two three four five six seven", geometry.R(0, 0, 120, 10))
	txt.FontSize = geometry.Measure(20, 900)
	txt.Reflow()
	if want := float64(len(txt.Lines)) * 20 * LineHeight; txt.Rect.Height != want {
		t.Fatalf("height = %v, want %v", txt.Rect.Height, want)
	}
}

func TestRemoveClearsVacatedSlot(t *testing.T) {
	s := New()
	a := s.Add(&Shape{Type: ShapeRect, Common: Common{Rect: geometry.R(0, 0, 10, 10)}})
	s.Add(&Shape{Type: ShapeCircle, Common: Common{Rect: geometry.R(0, 0, 10, 10)}})
	if !s.Remove(a) {
		t.Fatal("remove failed")
	}
	if len(s.items) != 1 {
		t.Fatalf("items = %d", len(s.items))
	}
	if tail := s.items[:2][1]; tail != nil {
		t.Fatalf("removed entity still referenced: %v", tail)
	}
}

func TestRewrapKeepsBox(t *testing.T) {
	txt := newText("one two three four five six seven", geometry.R(0, 0, 120, 10))
	txt.FontSize = geometry.Measure(20, 900)
	txt.Rewrap()
	if len(txt.Lines) < 2 {
		t.Fatalf("expected wrapping, got %q", txt.Lines)
	}
	if txt.Rect.Height != 10 {
		t.Fatalf("height = %v, want 10", txt.Rect.Height)
	}
}
