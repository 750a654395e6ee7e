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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"kvlayout/internal/composition"
	"kvlayout/internal/geometry"
	"kvlayout/internal/layout"
)

// snapshotState is one history entry: the scene graph plus what is needed to put it back
// against whatever geometry is current when it is restored.
type snapshotState struct {
	Ratio    string            `json:"ratio"`
	Style    composition.Style `json:"style"`
	Guide    geometry.Rect     `json:"guide"`
	Offset   geometry.Pt       `json:"offset"`
	ImageBox *geometry.Box     `json:"image_box,omitempty"`
	Graph    json.RawMessage   `json:"graph"`
}

// snapshotter adapts the session to history.Snapshotter. Its methods run with the session
// lock already held: either by a session method or by the debounced fire.
type snapshotter struct{ s *Session }

func (p snapshotter) Capture() ([]byte, error) {
	s := p.s
	graph, err := s.scene.Capture()
	if err != nil {
		return nil, err
	}
	st := snapshotState{
		Ratio:    s.ratio.String(),
		Style:    s.style,
		Guide:    s.geom.Guide,
		Offset:   s.geom.BackgroundOffset,
		ImageBox: s.currentImageBoxLocked(),
		Graph:    graph,
	}
	for _, v := range []float64{st.Guide.Left, st.Guide.Top, st.Guide.Width, st.Guide.Height, st.Offset.X, st.Offset.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("session: geometry is not finite")
		}
	}
	return json.Marshal(st)
}

func (p snapshotter) Restore(blob []byte) error {
	s := p.s
	var st snapshotState
	if err := json.Unmarshal(blob, &st); err != nil {
		return fmt.Errorf("session: decode snapshot: %w", err)
	}
	if err := s.scene.Restore(st.Graph); err != nil {
		return err
	}
	s.ratio = layout.ParseRatio(st.Ratio)
	s.style = st.Style.WithDefaults()
	if bg := s.scene.Background(); bg != nil {
		s.kv.ID, s.kv.URL, s.kv.Label = bg.AssetID, bg.URL, bg.Label
		s.status = s.kv.DisplayName()
	}
	// entities were captured in pixels against the snapshot's geometry
	from := layout.Geometry{Guide: st.Guide, BackgroundOffset: st.Offset}
	if s.scene.Background() == nil {
		s.wantBox = st.ImageBox
	}
	next := s.computeLocked(st.ImageBox)
	s.geom = from
	s.relayoutLocked(next, relayoutShift)
	s.scene.EnforceOrder()
	s.scene.Refresh()
	return nil
}

// Undo steps back one history entry. A pending text edit is committed first so the undo
// reverts it. It reports false at the oldest entry.
func (s *Session) Undo(ctx context.Context) (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()
	ok, err := s.hist.Undo()
	if err != nil {
		s.log.Warn("undo failed", slog.Any("err", err))
		return false, err
	}
	if ok {
		s.saveLocked(ctx)
	}
	return ok, nil
}

// CanUndo reports whether Undo would change anything.
func (s *Session) CanUndo() bool { return s.hist.CanUndo() }

// FlushHistory commits a pending debounced snapshot now.
func (s *Session) FlushHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hist.Flush()
}
