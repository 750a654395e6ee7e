/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"kvlayout/internal/composition"
	"kvlayout/internal/history"
	applog "kvlayout/internal/log"
)

const (
	StateFileName   = "state.json"
	HistoryFileName = "history.json"
	BackupsDirName  = "backups"
	// DefaultMaxBackups is how many state backups a project keeps.
	DefaultMaxBackups = 10
)

// FileStore keeps each project in <dir>/<project>/ as state.json plus history.json.
// State writes go through a temp file and rename; the previous state is copied into
// backups/ first and is used when the current file cannot be read.
type FileStore struct {
	Dir        string
	MaxBackups int
	now        func() time.Time
}

// NewFileStore creates the root directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{Dir: dir, MaxBackups: DefaultMaxBackups, now: time.Now}, nil
}

func (s *FileStore) projectDir(project string) string { return filepath.Join(s.Dir, project) }

// Load returns the project's record. A missing project is ErrNotFound; an unreadable
// state file falls back to the newest readable backup and is ErrCorrupt without one.
func (s *FileStore) Load(_ context.Context, project string) (composition.Record, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "file_load").With(slog.String("project", project))
	path := filepath.Join(s.projectDir(project), StateFileName)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if rec, berr := s.latestBackup(project); berr == nil {
			l.Warn("state file missing; using backup")
			return rec, nil
		}
		return composition.Record{}, ErrNotFound
	case err != nil:
		return composition.Record{}, fmt.Errorf("read state: %w", err)
	}
	rec, derr := decodeState(data)
	if derr == nil {
		return rec, nil
	}
	l.Warn("state file unreadable; trying backups", slog.Any("err", derr))
	if rec, berr := s.latestBackup(project); berr == nil {
		return rec, nil
	}
	return composition.Record{}, derr
}

// Save writes the record transactionally after backing up the current state.
func (s *FileStore) Save(_ context.Context, project string, rec composition.Record) error {
	data, err := composition.Encode(rec)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	dir := s.projectDir(project)
	bdir := filepath.Join(dir, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	path := filepath.Join(dir, StateFileName)
	if _, statErr := os.Stat(path); statErr == nil {
		stamp := s.now().Format("20060102-150405.000000")
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", StateFileName, stamp))
		if cerr := copyFile(path, bpath); cerr != nil {
			return fmt.Errorf("backup current state: %w", cerr)
		}
		s.pruneBackups(bdir)
	}
	return replaceFile(path, data)
}

// LoadHistory returns the persisted history; no file means empty history.
func (s *FileStore) LoadHistory(_ context.Context, project string) ([]history.Entry, int, error) {
	data, err := os.ReadFile(filepath.Join(s.projectDir(project), HistoryFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, -1, nil
	}
	if err != nil {
		return nil, -1, fmt.Errorf("read history: %w", err)
	}
	return decodeHistory(data)
}

// SaveHistory replaces the project's history file.
func (s *FileStore) SaveHistory(_ context.Context, project string, entries []history.Entry, index int) error {
	data, err := encodeHistory(entries, index)
	if err != nil {
		return err
	}
	dir := s.projectDir(project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure project dir: %w", err)
	}
	return replaceFile(filepath.Join(dir, HistoryFileName), data)
}

// Backups lists the project's state backups, oldest first.
func (s *FileStore) Backups(project string) ([]string, error) {
	bdir := filepath.Join(s.projectDir(project), BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, StateFileName+".") && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) latestBackup(project string) (composition.Record, error) {
	candidates, err := s.Backups(project)
	if err != nil {
		return composition.Record{}, err
	}
	for i := len(candidates) - 1; i >= 0; i-- {
		b, err := os.ReadFile(candidates[i])
		if err != nil {
			continue
		}
		if rec, err := decodeState(b); err == nil {
			return rec, nil
		}
	}
	return composition.Record{}, errors.New("no usable backups")
}

func (s *FileStore) pruneBackups(bdir string) {
	keep := s.MaxBackups
	if keep <= 0 {
		return
	}
	project := filepath.Base(filepath.Dir(bdir))
	list, err := s.Backups(project)
	if err != nil || len(list) <= keep {
		return
	}
	for _, p := range list[:len(list)-keep] {
		_ = os.Remove(p)
	}
}

// replaceFile writes data to a temp file next to path and renames it over path.
func replaceFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	temp := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d-%d", base, os.Getpid(), rand.Int()))
	if err := writeFileSync(temp, data); err != nil {
		return fmt.Errorf("write temp %s: %w", base, err)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	if err := os.Rename(temp, path); err != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace %s: %w", base, err)
	}
	return nil
}

func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return writeFileSync(dst, data)
}

// historyDoc is the serialized form of a history list shared by key-value backends.
type historyDoc struct {
	Index   int            `json:"index"`
	Entries []historyEntry `json:"entries"`
}

type historyEntry struct {
	TS   time.Time `json:"ts"`
	Blob []byte    `json:"blob"`
}

func encodeHistory(entries []history.Entry, index int) ([]byte, error) {
	doc := historyDoc{Index: index, Entries: make([]historyEntry, 0, len(entries))}
	for _, e := range entries {
		doc.Entries = append(doc.Entries, historyEntry{TS: e.TS.UTC(), Blob: e.Blob})
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return data, nil
}

func decodeHistory(data []byte) ([]history.Entry, int, error) {
	var doc historyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, -1, fmt.Errorf("%w: history: %v", ErrCorrupt, err)
	}
	out := make([]history.Entry, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		out = append(out, history.Entry{Blob: e.Blob, TS: e.TS})
	}
	return out, doc.Index, nil
}
