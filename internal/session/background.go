/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kvlayout/internal/assets"
	"kvlayout/internal/composition"
	"kvlayout/internal/geometry"
	"kvlayout/internal/layout"
	"kvlayout/internal/scene"
)

// relayout says how entities follow a geometry change.
type relayout int

const (
	// every box stays guide-relative; used when the background changes
	relayoutReproject relayout = iota
	// text stays guide-relative while images and shapes move by their origin only; used
	// when the ratio changes
	relayoutRatio
	// everything follows the background offset; used when the viewport changes
	relayoutShift
)

// computeLocked derives geometry from the ratio, the current background and the viewport.
func (s *Session) computeLocked(imageBox *geometry.Box) layout.Geometry {
	var disp layout.Size
	if bg := s.scene.Background(); bg != nil {
		disp = layout.FitBackground(bg.Natural, s.maxDim)
	}
	return layout.Compute(s.ratio, disp, layout.Options{ViewportWidth: s.view.Width, ImageBox: imageBox})
}

// currentImageBoxLocked is where the background sits relative to the guide right now.
func (s *Session) currentImageBoxLocked() *geometry.Box {
	bg := s.scene.Background()
	if bg == nil || bg.Bounds().Empty() || s.geom.Guide.Empty() {
		return s.wantBox
	}
	b := geometry.ToNormalized(bg.Bounds(), s.geom.Guide)
	return &b
}

// placeBackgroundLocked installs a loaded background, keeping the previous entity id.
func (s *Session) placeBackgroundLocked(res assets.Result) {
	bg := &scene.Background{AssetID: res.KV.ID, URL: res.KV.URL, Label: res.KV.Label, Natural: res.Natural}
	if old := s.scene.Background(); old != nil {
		bg.ID = old.ID
		s.scene.Remove(old.ID)
	}
	s.scene.Add(bg)
	s.kv = res.KV
	s.status = res.KV.DisplayName()
}

// syncBackgroundLocked puts the background where the geometry says.
func (s *Session) syncBackgroundLocked() {
	if bg := s.scene.Background(); bg != nil {
		bg.SetBounds(s.geom.BackgroundRect())
		s.wantBox = nil
	}
	s.scene.RebuildDecorations(s.geom)
}

// resetLayoutLocked discards text, images and shapes and recreates them from rec, or a
// single default text box when rec places nothing.
func (s *Session) resetLayoutLocked(rec *composition.Record) {
	s.scene.RemoveWhere(func(e scene.Entity) bool { return e.Role() != scene.RoleBackground })
	guide := s.geom.Guide
	if rec != nil && !rec.Empty() {
		for _, e := range composition.Deserialize(*rec, guide) {
			s.scene.Add(e)
		}
	} else {
		s.scene.Add(composition.TextFromRecord(composition.Layer{}, guide, s.style))
	}
	s.scene.RebuildDecorations(s.geom)
}

// relayoutLocked moves every real entity from the current geometry to next.
func (s *Session) relayoutLocked(next layout.Geometry, mode relayout) {
	prev := s.geom
	for _, e := range s.scene.Real() {
		switch v := e.(type) {
		case *scene.Background:
			v.SetBounds(next.BackgroundRect())
		case *scene.TextLayer:
			r := v.Bounds()
			if mode == relayoutShift {
				v.SetBounds(layout.Shift(r, prev, next))
				continue
			}
			v.SetBounds(layout.Reproject(r, prev, next))
			if next.Guide.Width != prev.Guide.Width {
				v.FontSize = v.FontSize.Rebase(next.Guide.Width)
				v.Rewrap()
			}
		default:
			r := e.Bounds()
			switch mode {
			case relayoutShift:
				e.SetBounds(layout.Shift(r, prev, next))
			case relayoutRatio:
				e.SetBounds(layout.ReprojectOrigin(r, prev, next))
			default:
				e.SetBounds(layout.Reproject(r, prev, next))
			}
		}
	}
	s.geom = next
	s.scene.RebuildDecorations(next)
}

// SetBackground loads kvID and makes it the background. Existing entities keep their
// guide-relative boxes. On failure the status changes and nothing else does.
func (s *Session) SetBackground(ctx context.Context, kvID string) error {
	kv, ok := s.lookupKV(kvID)
	if !ok {
		return fmt.Errorf("%w: kv %q", ErrUnknownEntity, kvID)
	}
	res, err := s.loader.Load(ctx, kv)
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	if errors.Is(err, assets.ErrSuperseded) {
		return err
	}
	if err != nil {
		return s.loadFailedLocked(kv, err)
	}
	if !s.loader.Current(res.Gen) {
		return assets.ErrSuperseded
	}
	s.applyBackgroundLocked(ctx, res)
	return nil
}

// SetBackgroundAsync starts loading kvID and applies it when done, unless a newer load
// started first. The channel closes when the load has finished or been dropped.
func (s *Session) SetBackgroundAsync(ctx context.Context, kvID string) (<-chan struct{}, error) {
	kv, ok := s.lookupKV(kvID)
	if !ok {
		return nil, fmt.Errorf("%w: kv %q", ErrUnknownEntity, kvID)
	}
	done := s.loader.LoadAsync(ctx, kv, func(res assets.Result, err error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed || !s.loader.Current(res.Gen) {
			return
		}
		if err != nil {
			_ = s.loadFailedLocked(kv, err)
			return
		}
		s.applyBackgroundLocked(ctx, res)
	})
	return done, nil
}

func (s *Session) lookupKV(id string) (assets.KV, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.Get(id)
}

func (s *Session) loadFailedLocked(kv assets.KV, err error) error {
	s.status = StatusLoadFailed
	s.log.Warn("background load failed", slog.String("kv", kv.ID), slog.String("url", kv.URL), slog.Any("err", err))
	return fmt.Errorf("load background %s: %w", kv.ID, err)
}

func (s *Session) applyBackgroundLocked(ctx context.Context, res assets.Result) {
	// a replaced background is centred; a first one honours the stored image box
	var box *geometry.Box
	if s.scene.Background() == nil {
		box = s.wantBox
	}
	s.placeBackgroundLocked(res)
	s.relayoutLocked(s.computeLocked(box), relayoutReproject)
	s.syncBackgroundLocked()
	s.log.Info("background set", slog.String("kv", res.KV.ID), slog.Float64("w", res.Natural.W), slog.Float64("h", res.Natural.H))
	s.commitLocked(ctx)
}

// SetRatio changes the guide ratio. Text keeps its normalized box; images and shapes keep
// their pixel size; a moved background keeps its place relative to the new guide.
func (s *Session) SetRatio(ctx context.Context, ratio string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	r := layout.ParseRatio(ratio)
	if r.String() != ratio {
		s.log.Debug("ratio normalized", slog.String("in", ratio), slog.String("ratio", r.String()))
	}
	box := s.currentImageBoxLocked()
	s.ratio = r
	s.relayoutLocked(s.computeLocked(box), relayoutRatio)
	s.commitLocked(ctx)
	return nil
}

// SetViewport resizes the visible area. The canvas may widen, and entities follow the
// background. This is not an undoable edit.
func (s *Session) SetViewport(ctx context.Context, w, h float64) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()
	s.view.Resize(w, h, s.geom.Canvas)
	s.relayoutLocked(s.computeLocked(s.currentImageBoxLocked()), relayoutShift)
	s.view.Resize(w, h, s.geom.Canvas)
	s.saveLocked(ctx)
	return nil
}

// Zoom sets the zoom level about the canvas midpoint.
func (s *Session) Zoom(z float64) layout.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.ZoomTo(z, s.geom.Canvas)
	return s.view
}

// ZoomBy multiplies the zoom level.
func (s *Session) ZoomBy(f float64) layout.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.ZoomBy(f, s.geom.Canvas)
	return s.view
}

// Pan moves the canvas by dx,dy viewport pixels.
func (s *Session) Pan(dx, dy float64) layout.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.PanBy(dx, dy, s.geom.Canvas)
	return s.view
}

// Fit resets the zoom and centres the guide.
func (s *Session) Fit() layout.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Fit(s.geom.Canvas, s.geom.Guide)
	return s.view
}

// ImageBox returns the background's guide-relative box.
func (s *Session) ImageBox() (geometry.Box, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bg := s.scene.Background()
	if bg == nil || bg.Bounds().Empty() {
		return geometry.Box{}, ErrNoBackground
	}
	return geometry.ToNormalized(bg.Bounds(), s.geom.Guide), nil
}

// probe reads an asset's natural size. It does not touch session state.
func (s *Session) probe(ctx context.Context, rawURL string) (layout.Size, error) {
	rc, err := s.source.Open(ctx, rawURL)
	if err != nil {
		return layout.Size{}, fmt.Errorf("open image: %w", err)
	}
	defer rc.Close()
	size, _, err := assets.Probe(rc)
	return size, err
}
