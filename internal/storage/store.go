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
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"kvlayout/internal/composition"
	"kvlayout/internal/history"
)

var (
	// ErrNotFound is returned when a project has no saved state.
	ErrNotFound = errors.New("storage: no saved state")
	// ErrCorrupt is returned when saved state exists but cannot be decoded.
	ErrCorrupt = errors.New("storage: saved state is corrupt")
)

// DefaultProject is used when no project id is given.
const DefaultProject = "default"

// Store persists one composition record per project.
type Store interface {
	Load(ctx context.Context, project string) (composition.Record, error)
	Save(ctx context.Context, project string, rec composition.Record) error
	Close() error
}

// HistoryStore is implemented by stores that can also keep undo history.
type HistoryStore interface {
	LoadHistory(ctx context.Context, project string) ([]history.Entry, int, error)
	SaveHistory(ctx context.Context, project string, entries []history.Entry, index int) error
}

var projectRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ProjectID returns the canonical project id, DefaultProject for blank input.
func ProjectID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return DefaultProject, nil
	}
	if !projectRe.MatchString(id) {
		return "", fmt.Errorf("storage: invalid project id %q", id)
	}
	return id, nil
}

// StateKey is the key a project's record is stored under in key-value backends.
func StateKey(project string) string { return "pg_editor_state_" + project }

func historyKey(project string) string { return StateKey(project) + ":history" }

// decodeState maps any decode failure to ErrCorrupt.
func decodeState(data []byte) (composition.Record, error) {
	rec, err := composition.Decode(data)
	if err != nil {
		return composition.Record{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return rec, nil
}

// ReadRecordFile loads a record from a JSON file, for layouts handed over outside a store.
func ReadRecordFile(path string) (composition.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return composition.Record{}, ErrNotFound
		}
		return composition.Record{}, fmt.Errorf("read layout: %w", err)
	}
	return decodeState(data)
}

// Options selects and configures a backend.
type Options struct {
	Backend       string // file, sqlite, redis or postgres
	Dir           string
	RedisAddr     string
	RedisDB       int
	RedisPassword string
	PostgresDSN   string
}

// Open returns the store selected by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "file":
		return NewFileStore(opts.Dir)
	case "sqlite":
		return OpenSQLite(ctx, opts.Dir)
	case "redis":
		return NewRedisStore(ctx, RedisOptions{Addr: opts.RedisAddr, DB: opts.RedisDB, Password: opts.RedisPassword})
	case "postgres", "pg":
		return OpenPostgres(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", opts.Backend)
	}
}
