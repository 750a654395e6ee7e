/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package geometry

import (
	"math"
	"math/rand"
	"testing"
)

func TestRectContainsAndInset(t *testing.T) {
	r := R(10, 20, 100, 50)
	if !r.Contains(Pt{10, 20}) || !r.Contains(Pt{110, 70}) {
		t.Fatalf("expected edge points to be contained")
	}
	in := r.Inset(5, 5)
	if in.Left != 15 || in.Top != 25 || in.Width != 90 || in.Height != 40 {
		t.Fatalf("unexpected inset: %+v", in)
	}
	if r.Right() != 110 || r.Bottom() != 70 {
		t.Fatalf("unexpected edges: right=%v bottom=%v", r.Right(), r.Bottom())
	}
}

func TestAffineBasicAndInvert(t *testing.T) {
	m := Translate(10, 5).Mul(Scale(2, 3))
	p := m.Apply(Pt{1, 1})
	if p.X != 12 || p.Y != 8 {
		t.Fatalf("unexpected transform result: %+v", p)
	}
	q := m.Invert().Apply(p)
	if math.Abs(q.X-1) > 1e-9 || math.Abs(q.Y-1) > 1e-9 {
		t.Fatalf("inverse did not round-trip: %+v", q)
	}
	r := m.ApplyRect(R(0, 0, 10, 10))
	if r != R(10, 5, 20, 30) {
		t.Fatalf("unexpected rect mapping: %+v", r)
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		guide := R(rng.Float64()*300-100, rng.Float64()*300-100, 1+rng.Float64()*1200, 1+rng.Float64()*1200)
		r := R(rng.Float64()*2000-500, rng.Float64()*2000-500, rng.Float64()*900, rng.Float64()*900)
		back := FromNormalized(ToNormalized(r, guide), guide)
		if !back.ApproxEqual(r, 1e-9) {
			t.Fatalf("round trip mismatch: in=%+v out=%+v guide=%+v", r, back, guide)
		}
	}
}

func TestToNormalizedKeepsOverflow(t *testing.T) {
	guide := R(100, 50, 200, 100)
	b := ToNormalized(R(50, 25, 400, 50), guide)
	want := Box{X: -0.25, Y: -0.25, W: 2, H: 0.5}
	if !b.ApproxEqual(want, 1e-12) {
		t.Fatalf("got %+v want %+v", b, want)
	}
	c := b.Clamped()
	if c != (Box{X: 0, Y: 0, W: 1, H: 0.5}) {
		t.Fatalf("unexpected clamp: %+v", c)
	}
}

func TestDefaultTextBoxAgainstWideGuide(t *testing.T) {
	r := FromNormalized(Box{X: 0.08, Y: 0.62, W: 0.80, H: 0.14}, R(0, 0, 900, 506))
	if math.Abs(r.Left-72) > 1e-9 || math.Abs(r.Top-313.72) > 1e-9 || math.Abs(r.Width-720) > 1e-9 || math.Abs(r.Height-70.84) > 1e-9 {
		t.Fatalf("unexpected pixel box: %+v", r)
	}
}

func TestToNormalizedPanicsOnEmptyGuide(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for empty guide")
		}
	}()
	_ = ToNormalized(R(0, 0, 10, 10), R(0, 0, 0, 100))
}

func TestScaledRescale(t *testing.T) {
	s := Measure(48, 900)
	if got := s.Rescale(450); got != 24 {
		t.Fatalf("Rescale(450) = %v, want 24", got)
	}
	if got := (Scaled{Px: 30}).Rescale(450); got != 30 {
		t.Fatalf("missing basis should keep px, got %v", got)
	}
	rb := s.Rebase(1800)
	if rb.Px != 96 || rb.BaseWidth != 1800 {
		t.Fatalf("unexpected rebase: %+v", rb)
	}
}

func TestClamp01(t *testing.T) {
	cases := map[float64]float64{-0.5: 0, 0: 0, 0.3: 0.3, 1: 1, 1.7: 1}
	for in, want := range cases {
		if got := Clamp01(in); got != want {
			t.Fatalf("Clamp01(%v) = %v, want %v", in, got, want)
		}
	}
}
