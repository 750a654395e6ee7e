/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package history

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeScene is a Snapshotter over a single string.
type fakeScene struct {
	state     string
	failNext  bool
	onRestore func()
	restores  int
}

func (f *fakeScene) Capture() ([]byte, error) {
	if f.failNext {
		f.failNext = false
		return nil, errors.New("unserializable")
	}
	return []byte(f.state), nil
}

func (f *fakeScene) Restore(b []byte) error {
	f.restores++
	f.state = string(b)
	if f.onRestore != nil {
		f.onRestore()
	}
	return nil
}

func edit(m *Manager, f *fakeScene, s string) {
	f.state = s
	m.Snapshot()
}

func TestCapacityAndUndoFloor(t *testing.T) {
	f := &fakeScene{state: "load"}
	m := NewManager(f, Config{})
	m.Snapshot()
	for _, s := range []string{"a", "b", "c", "d"} {
		edit(m, f, s)
		if m.Len() > DefaultCapacity {
			t.Fatalf("history length %d exceeds capacity", m.Len())
		}
	}
	if m.Len() != 3 {
		t.Fatalf("len = %d, want 3", m.Len())
	}
	for _, want := range []string{"c", "b"} {
		ok, err := m.Undo()
		if err != nil || !ok || f.state != want {
			t.Fatalf("undo: ok=%v err=%v state=%q, want %q", ok, err, f.state, want)
		}
	}
	ok, err := m.Undo()
	if ok || err != nil || f.state != "b" {
		t.Fatalf("undo past the oldest entry must be a no-op: ok=%v state=%q", ok, f.state)
	}
}

func TestEditAfterUndoDiscardsRedo(t *testing.T) {
	f := &fakeScene{state: "A"}
	m := NewManager(f, Config{})
	m.Snapshot()
	edit(m, f, "B")
	edit(m, f, "C")
	if _, err := m.Undo(); err != nil {
		t.Fatal(err)
	}
	after := m.Index()
	edit(m, f, "D")

	entries, idx := m.Entries()
	if len(entries) != after+2 || idx != len(entries)-1 {
		t.Fatalf("entries=%d idx=%d after undo index %d", len(entries), idx, after)
	}
	for _, e := range entries {
		if string(e.Blob) == "C" {
			t.Fatalf("undone entry still reachable")
		}
	}
	got := []string{string(entries[0].Blob), string(entries[1].Blob), string(entries[2].Blob)}
	if got[0] != "A" || got[1] != "B" || got[2] != "D" {
		t.Fatalf("history = %v", got)
	}
}

func TestDuplicateSnapshotIsNoop(t *testing.T) {
	f := &fakeScene{state: "same"}
	m := NewManager(f, Config{})
	if !m.Snapshot() {
		t.Fatalf("first snapshot should be recorded")
	}
	if m.Snapshot() {
		t.Fatalf("unchanged scene must not add an entry")
	}
	if m.Len() != 1 {
		t.Fatalf("len = %d", m.Len())
	}
}

func TestCaptureFailureIsSwallowed(t *testing.T) {
	f := &fakeScene{state: "x"}
	m := NewManager(f, Config{})
	f.failNext = true
	if m.Snapshot() {
		t.Fatalf("failed capture must be skipped")
	}
	if m.Len() != 0 {
		t.Fatalf("len = %d", m.Len())
	}
	if !m.Snapshot() || m.Len() != 1 {
		t.Fatalf("next snapshot should work")
	}
}

func TestRestoreDoesNotRecord(t *testing.T) {
	f := &fakeScene{state: "one"}
	m := NewManager(f, Config{})
	f.onRestore = func() {
		if m.Snapshot() {
			t.Errorf("snapshot recorded during restore")
		}
		m.QueueSnapshot()
	}
	m.Snapshot()
	edit(m, f, "two")
	if ok, _ := m.Undo(); !ok {
		t.Fatalf("undo failed")
	}
	if m.Len() != 2 || m.Index() != 0 || m.Pending() {
		t.Fatalf("len=%d idx=%d pending=%v", m.Len(), m.Index(), m.Pending())
	}
	// the restored state is the new baseline
	if m.Snapshot() {
		t.Fatalf("snapshot right after undo should be a no-op")
	}
}

func TestQueueSnapshotCoalesces(t *testing.T) {
	var mu sync.Mutex
	f := &fakeScene{state: "start"}
	m := NewManager(f, Config{Debounce: 20 * time.Millisecond, Locker: &mu})
	m.Snapshot()

	for _, s := range []string{"h", "he", "hel", "hell", "hello"} {
		mu.Lock()
		f.state = s
		m.QueueSnapshot()
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n, pending := m.Len(), m.Pending()
		mu.Unlock()
		if !pending {
			if n != 2 {
				t.Fatalf("len = %d, want 2", n)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("debounced snapshot never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	entries, _ := m.Entries()
	if string(entries[1].Blob) != "hello" {
		t.Fatalf("coalesced entry = %q", entries[1].Blob)
	}
}

func TestUndoCommitsPendingEdit(t *testing.T) {
	f := &fakeScene{state: "base"}
	m := NewManager(f, Config{Debounce: time.Hour})
	m.Snapshot()
	f.state = "typed"
	m.QueueSnapshot()

	ok, err := m.Undo()
	if err != nil || !ok || f.state != "base" {
		t.Fatalf("undo should revert the pending burst: ok=%v state=%q", ok, f.state)
	}
	if m.Len() != 2 {
		t.Fatalf("len = %d", m.Len())
	}
}

func TestFlushAndClose(t *testing.T) {
	f := &fakeScene{state: "a"}
	m := NewManager(f, Config{Debounce: time.Hour})
	f.state = "b"
	m.QueueSnapshot()
	m.Flush()
	if m.Len() != 1 || m.Pending() {
		t.Fatalf("flush did not commit: len=%d", m.Len())
	}
	f.state = "c"
	m.QueueSnapshot()
	m.Close()
	if m.Len() != 2 {
		t.Fatalf("close should commit pending snapshot, len=%d", m.Len())
	}
	f.state = "d"
	if m.Snapshot() {
		t.Fatalf("closed manager must not record")
	}
	if _, err := m.Undo(); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}

func TestLoadTrimsAndClamps(t *testing.T) {
	f := &fakeScene{state: "x"}
	m := NewManager(f, Config{})
	in := []Entry{{Blob: []byte("1")}, {Blob: []byte("2")}, {Blob: []byte("3")}, {Blob: []byte("4")}, {Blob: []byte("5")}}
	m.Load(in, 3)
	entries, idx := m.Entries()
	if len(entries) != 3 || string(entries[0].Blob) != "3" || idx != 1 {
		t.Fatalf("entries=%d first=%q idx=%d", len(entries), entries[0].Blob, idx)
	}
	m.Load(in[:2], 99)
	if m.Index() != 1 {
		t.Fatalf("index not clamped: %d", m.Index())
	}
	m.Load(nil, 5)
	if m.Index() != -1 || m.CanUndo() {
		t.Fatalf("empty load should leave no history")
	}
}

func TestLoadTakesCurrentStateAsEntry(t *testing.T) {
	f := &fakeScene{state: "2'"}
	m := NewManager(f, Config{})
	m.Load([]Entry{{Blob: []byte("1")}, {Blob: []byte("2")}}, 1)
	if m.Snapshot() {
		t.Fatalf("reloaded state should not add an entry")
	}
	if ok, _ := m.Undo(); !ok || f.state != "1" {
		t.Fatalf("undo after load: ok=%v state=%q", ok, f.state)
	}
}

func TestMaxBytesKeepsCurrent(t *testing.T) {
	f := &fakeScene{}
	m := NewManager(f, Config{Capacity: 10, MaxBytes: 8})
	edit(m, f, "aaaaa")
	edit(m, f, "bbbbb")
	edit(m, f, "ccccccccccccc")
	n, size := m.Stats()
	if n != 1 || size != 13 {
		t.Fatalf("entries=%d bytes=%d", n, size)
	}
	if m.Index() != 0 {
		t.Fatalf("index = %d", m.Index())
	}
}
