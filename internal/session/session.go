/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


// Package session owns one editor session: the scene, its geometry and viewport, the
// global text style, the undo history and where state is persisted. All state sits
// behind a single mutex, which is also the lock debounced snapshots run under.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"kvlayout/internal/assets"
	"kvlayout/internal/composition"
	"kvlayout/internal/geometry"
	"kvlayout/internal/history"
	"kvlayout/internal/layout"
	applog "kvlayout/internal/log"
	"kvlayout/internal/scene"
	"kvlayout/internal/storage"
)

var (
	// ErrNoBackground is returned by operations that need a loaded background.
	ErrNoBackground = errors.New("session: no background loaded")
	// ErrUnknownEntity is returned when an id names no real entity.
	ErrUnknownEntity = errors.New("session: unknown entity")
	// ErrNotDeletable is returned when deleting the background.
	ErrNotDeletable = errors.New("session: the background cannot be deleted")
	// ErrNotCloneable is returned when duplicating the background.
	ErrNotCloneable = errors.New("session: the background cannot be duplicated")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: closed")
)

// StatusLoadFailed is the status after a background fails to load.
const StatusLoadFailed = "Failed to load image"

// LayoutSource supplies a server-provided record for a project.
type LayoutSource interface {
	Load(ctx context.Context, project string) (composition.Record, error)
}

// Options configures a session. Zero values fall back to defaults.
type Options struct {
	Project string
	// Store persists the record after every committed edit. Nil keeps state in memory.
	Store storage.Store
	// Layouts, when set, is consulted before Store on Open.
	Layouts LayoutSource
	Catalog *assets.Catalog
	// Source opens background and image assets.
	Source assets.Source

	Ratio            string
	MaxBackgroundDim float64
	ViewportWidth    float64
	ViewportHeight   float64
	History          history.Config
}

// Session is an open composition. Methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	project string
	store   storage.Store
	layouts LayoutSource
	catalog *assets.Catalog
	source  assets.Source
	loader  *assets.Loader
	maxDim  float64

	scene *scene.Scene
	geom  layout.Geometry
	ratio layout.Ratio
	style composition.Style
	view  layout.Viewport
	hist  *history.Manager

	// kv is the requested background; it survives a failed load so the record keeps it.
	kv assets.KV
	// wantBox is the stored image box, kept while the background is not loaded.
	wantBox *geometry.Box
	status  string
	closed  bool

	log *slog.Logger
}

// New creates an empty session. Call Open to load state and a background.
func New(opts Options) (*Session, error) {
	project, err := storage.ProjectID(opts.Project)
	if err != nil {
		return nil, err
	}
	maxDim := opts.MaxBackgroundDim
	if maxDim <= 0 {
		maxDim = layout.MaxBackgroundDim
	}
	src := opts.Source
	if src == nil {
		src = assets.NewSource("")
	}
	s := &Session{
		project: project,
		store:   opts.Store,
		layouts: opts.Layouts,
		catalog: opts.Catalog,
		source:  src,
		loader:  assets.NewLoader(src),
		maxDim:  maxDim,
		scene:   scene.New(),
		ratio:   layout.ParseRatio(opts.Ratio),
		style:   composition.DefaultStyle,
		view:    layout.NewViewport(opts.ViewportWidth, opts.ViewportHeight),
		log:     applog.WithComponent("session").With(slog.String("project", project)),
	}
	if opts.Catalog == nil {
		s.catalog = assets.NewCatalog(nil)
	}
	hc := opts.History
	hc.Locker = &s.mu
	s.hist = history.NewManager(snapshotter{s}, hc)
	s.geom = s.computeLocked(nil)
	s.scene.RebuildDecorations(s.geom)
	return s, nil
}

// Open loads the project's state and background. A server layout takes precedence over
// locally stored state; missing or corrupt state means a fresh layout. The background is
// the record's KV, else kvID, else the catalog default. A background that fails to load
// leaves the layout on a placeholder guide and sets the status; Open still succeeds.
func (s *Session) Open(ctx context.Context, kvID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	ctx = applog.WithProject(ctx, s.project)

	rec, fromStore := s.loadRecordLocked(ctx)
	if rec != nil {
		s.style = rec.Style().WithDefaults()
		if rec.GuideRatio != "" {
			s.ratio = layout.ParseRatio(rec.GuideRatio)
		}
	}

	kv, ok := s.pickKVLocked(rec, kvID)
	if ok {
		s.kv = kv
		res, err := s.loader.Load(ctx, kv)
		if err != nil {
			s.status = StatusLoadFailed
			s.log.Warn("background load failed", slog.String("kv", kv.ID), slog.Any("err", err))
		} else {
			s.placeBackgroundLocked(res)
		}
	}

	s.wantBox = nil
	if rec != nil && rec.ImageBox != nil {
		b := *rec.ImageBox
		s.wantBox = &b
	}
	s.geom = s.computeLocked(s.wantBox)
	s.syncBackgroundLocked()
	s.resetLayoutLocked(rec)

	s.hist.Reset()
	if hs, ok := s.store.(storage.HistoryStore); ok && fromStore {
		entries, idx, err := hs.LoadHistory(ctx, s.project)
		if err != nil {
			s.log.Warn("history load failed", slog.Any("err", err))
		} else if len(entries) > 0 {
			s.hist.Load(entries, idx)
		}
	}
	s.hist.Snapshot()
	s.saveLocked(ctx)
	s.log.Info("session opened", slog.String("kv", s.kv.ID), slog.String("ratio", s.ratio.String()), slog.Int("entities", s.scene.Len()))
	return nil
}

// loadRecordLocked returns the record to lay out and whether it came from the local store.
func (s *Session) loadRecordLocked(ctx context.Context) (*composition.Record, bool) {
	if s.layouts != nil {
		rec, err := s.layouts.Load(ctx, s.project)
		switch {
		case err == nil:
			s.log.Debug("using server layout")
			return &rec, false
		case !errors.Is(err, storage.ErrNotFound):
			s.log.Warn("server layout unavailable", slog.Any("err", err))
		}
	}
	if s.store != nil {
		rec, err := s.store.Load(ctx, s.project)
		switch {
		case err == nil:
			return &rec, true
		case errors.Is(err, storage.ErrNotFound):
		default:
			// corrupt or unreadable state is no saved state
			s.log.Warn("saved state unusable", slog.Any("err", err))
		}
	}
	return nil, false
}

func (s *Session) pickKVLocked(rec *composition.Record, kvID string) (assets.KV, bool) {
	if rec != nil && rec.KVAssetID != "" {
		if kv, ok := s.catalog.Get(rec.KVAssetID); ok {
			return kv, true
		}
		if rec.KVURL != "" {
			return assets.KV{ID: rec.KVAssetID, URL: rec.KVURL}, true
		}
	}
	if kvID != "" {
		if kv, ok := s.catalog.Get(kvID); ok {
			return kv, true
		}
		s.log.Warn("unknown kv", slog.String("kv", kvID))
	}
	return s.catalog.Default()
}

// Close commits a pending snapshot, persists state and history, and stops the session.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.loader.Cancel()
	s.hist.Close()
	s.closed = true
	ctx = applog.WithProject(ctx, s.project)
	var errs []error
	if s.store != nil {
		if err := s.store.Save(ctx, s.project, s.recordLocked()); err != nil {
			errs = append(errs, fmt.Errorf("save state: %w", err))
		}
		if hs, ok := s.store.(storage.HistoryStore); ok {
			entries, idx := s.hist.Entries()
			if err := hs.SaveHistory(ctx, s.project, entries, idx); err != nil {
				errs = append(errs, fmt.Errorf("save history: %w", err))
			}
		}
	}
	return errors.Join(errs...)
}

// Autosave persists the current record if the session is not busy. It is meant for crash
// handlers, which may run while the session lock is held.
func (s *Session) Autosave(ctx context.Context) error {
	if !s.mu.TryLock() {
		return errors.New("session: busy, autosave skipped")
	}
	defer s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	return s.store.Save(applog.WithProject(ctx, s.project), s.project, s.recordLocked())
}

// Save persists the current record and reports any error.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	return s.store.Save(applog.WithProject(ctx, s.project), s.project, s.recordLocked())
}

// Record returns the serialized composition.
func (s *Session) Record() composition.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordLocked()
}

// FormFields returns the outbound preview/export form.
func (s *Session) FormFields() (url.Values, error) {
	return composition.FormFields(s.Record())
}

func (s *Session) recordLocked() composition.Record {
	rec := composition.Serialize(s.scene, s.geom, s.style)
	if rec.KVAssetID == "" && s.kv.ID != "" {
		rec.KVAssetID, rec.KVURL = s.kv.ID, s.kv.URL
		rec.ImageBox = s.wantBox
	}
	return rec
}

func (s *Session) Project() string { return s.project }

// Status is the background label, StatusLoadFailed, or empty before any load.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) Geometry() layout.Geometry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geom
}

func (s *Session) Viewport() layout.Viewport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *Session) Style() composition.Style {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style
}

// Entities returns every entity in draw order, decorations included.
func (s *Session) Entities() []scene.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene.Entities()
}

// Layers returns the real entities bottom to top.
func (s *Session) Layers() []scene.Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scene.Real()
}

// Entity returns a real entity by id.
func (s *Session) Entity(id string) (scene.Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.scene.Get(id)
	return e, e != nil
}

// HistoryStats reports the history length, current index and retained bytes.
func (s *Session) HistoryStats() (entries, index, size int) {
	n, sz := s.hist.Stats()
	return n, s.hist.Index(), sz
}

// saveLocked persists the record; failures are logged, never returned.
func (s *Session) saveLocked(ctx context.Context) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(applog.WithProject(ctx, s.project), s.project, s.recordLocked()); err != nil {
		s.log.Warn("save state failed", slog.Any("err", err))
	}
}

// commitLocked records a structural edit: snapshot now, then persist.
func (s *Session) commitLocked(ctx context.Context) {
	s.hist.Snapshot()
	s.saveLocked(ctx)
}

// touchLocked records a keystroke-level edit: snapshot after the debounce, persist now.
func (s *Session) touchLocked(ctx context.Context) {
	s.hist.QueueSnapshot()
	s.saveLocked(ctx)
}

func (s *Session) lock() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	return nil
}
