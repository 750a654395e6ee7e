/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


// Package history keeps a short linear undo list of whole-scene snapshots.
// It is a best-effort convenience: a snapshot that cannot be captured is skipped, never
// reported to the user.
package history

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"

	"kvlayout/internal/log"
)

const (
	// DefaultCapacity keeps memory bounded at the cost of deep undo.
	DefaultCapacity = 3
	DefaultDebounce = 250 * time.Millisecond
	DefaultMaxBytes = 16 * 1024 * 1024
)

// Snapshotter captures and restores the live scene.
// Restore is called without the manager's lock held, so it may call back into the
// manager; snapshots requested during a restore are ignored.
type Snapshotter interface {
	Capture() ([]byte, error)
	Restore([]byte) error
}

// Entry is one captured state.
type Entry struct {
	Blob []byte
	TS   time.Time
}

// Config controls depth, memory and coalescing.
type Config struct {
	// Capacity is the maximum number of entries; the oldest is dropped beyond it.
	Capacity int
	// Debounce is how long QueueSnapshot waits after the last call before capturing.
	Debounce time.Duration
	// MaxBytes is a soft cap on retained snapshot bytes; oldest entries go first, the
	// current one is always kept.
	MaxBytes int
	// Locker, if set, is held while a debounced snapshot runs, so it happens inside the
	// same critical section as the caller's edits.
	Locker sync.Locker
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// ErrClosed is returned by operations on a closed manager.
var ErrClosed = errors.New("history: manager closed")

// Manager is a linear history with no redo: an edit after an undo discards everything
// after the current entry. It is safe for concurrent use.
type Manager struct {
	cfg    Config
	target Snapshotter
	logger *slog.Logger
	queue  func(func())

	mu        sync.Mutex
	entries   []Entry
	index     int    // current entry, -1 when empty
	baseline  []byte // last known state, compared by value
	restoring bool
	pending   bool
	closed    bool
	bytes     int
}

func NewManager(target Snapshotter, cfg Config) *Manager {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		cfg:    cfg,
		target: target,
		logger: log.WithComponent("history"),
		queue:  debounce.New(cfg.Debounce),
		index:  -1,
	}
}

// Snapshot captures the scene and appends it unless it equals the current baseline.
// It reports whether an entry was added.
func (m *Manager) Snapshot() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = false
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() bool {
	if m.restoring || m.closed {
		return false
	}
	blob, err := m.target.Capture()
	if err != nil {
		m.logger.Debug("snapshot skipped", slog.Any("err", err))
		return false
	}
	if m.baseline != nil && bytes.Equal(blob, m.baseline) {
		return false
	}
	// drop the redo branch
	for _, e := range m.entries[m.index+1:] {
		m.bytes -= len(e.Blob)
	}
	m.entries = m.entries[:m.index+1]
	m.entries = append(m.entries, Entry{Blob: blob, TS: m.cfg.Now()})
	m.bytes += len(blob)
	m.enforceCapsLocked()
	m.index = len(m.entries) - 1
	m.baseline = blob
	return true
}

func (m *Manager) enforceCapsLocked() {
	drop := 0
	if n := len(m.entries); n > m.cfg.Capacity {
		drop = n - m.cfg.Capacity
	}
	total := m.bytes
	for i := 0; i < drop; i++ {
		total -= len(m.entries[i].Blob)
	}
	for total > m.cfg.MaxBytes && drop < len(m.entries)-1 {
		total -= len(m.entries[drop].Blob)
		drop++
	}
	if drop == 0 {
		return
	}
	m.entries = append([]Entry(nil), m.entries[drop:]...)
	m.bytes = total
}

// QueueSnapshot schedules a Snapshot after the debounce delay, replacing any snapshot
// already scheduled. Bursts of calls produce one entry.
func (m *Manager) QueueSnapshot() {
	m.mu.Lock()
	if m.closed || m.restoring {
		m.mu.Unlock()
		return
	}
	m.pending = true
	m.mu.Unlock()
	m.queue(m.fire)
}

func (m *Manager) fire() {
	if l := m.cfg.Locker; l != nil {
		l.Lock()
		defer l.Unlock()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.pending {
		return
	}
	m.pending = false
	m.snapshotLocked()
}

// Flush runs a scheduled snapshot now. The timer still fires later but finds nothing to do.
// Callers holding Config.Locker may call it.
func (m *Manager) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending {
		m.pending = false
		m.snapshotLocked()
	}
}

// Pending reports whether a debounced snapshot is waiting.
func (m *Manager) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// Undo steps back one entry and restores it. Pending edits are committed first so the
// undo reverts them. At the first entry it does nothing and returns false.
func (m *Manager) Undo() (bool, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false, ErrClosed
	}
	if m.pending {
		m.pending = false
		m.snapshotLocked()
	}
	if m.index <= 0 {
		m.mu.Unlock()
		return false, nil
	}
	blob := m.entries[m.index-1].Blob
	m.restoring = true
	m.mu.Unlock()

	err := m.target.Restore(blob)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.restoring = false
	if err != nil {
		return false, fmt.Errorf("history: restore: %w", err)
	}
	m.index--
	m.baseline = blob
	if cur, cerr := m.target.Capture(); cerr == nil {
		m.baseline = cur
	}
	return true, nil
}

// CanUndo reports whether Undo would step back.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index > 0 || (m.pending && m.index >= 0)
}

// Reset drops all entries and any pending snapshot.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries, m.index, m.baseline, m.bytes, m.pending = nil, -1, nil, 0, false
}

// Load replaces the history with persisted entries. index is clamped into range and the
// list is trimmed to capacity, keeping the newest entries. The target's current state is
// taken to be the entry at index, so a following Snapshot of it is a no-op.
func (m *Manager) Load(entries []Entry, index int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append([]Entry(nil), entries...)
	m.bytes = 0
	for _, e := range m.entries {
		m.bytes += len(e.Blob)
	}
	if over := len(m.entries) - m.cfg.Capacity; over > 0 {
		for _, e := range m.entries[:over] {
			m.bytes -= len(e.Blob)
		}
		m.entries = m.entries[over:]
		index -= over
	}
	switch {
	case len(m.entries) == 0:
		index = -1
	case index < 0:
		index = 0
	case index >= len(m.entries):
		index = len(m.entries) - 1
	}
	m.index = index
	m.baseline = nil
	if index >= 0 {
		m.baseline = m.entries[index].Blob
		// the reloaded scene stands for the current entry
		if cur, err := m.target.Capture(); err == nil {
			m.baseline = cur
		}
	}
	m.pending = false
}

// Entries returns a copy of the history and the current index.
func (m *Manager) Entries() ([]Entry, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...), m.index
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) Index() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Stats returns entry count and retained bytes for diagnostics.
func (m *Manager) Stats() (entries, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), m.bytes
}

// Close commits a pending snapshot and stops accepting new ones.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if m.pending {
		m.pending = false
		m.snapshotLocked()
	}
	m.closed = true
}
