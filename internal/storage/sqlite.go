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
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"kvlayout/internal/composition"
	"kvlayout/internal/history"
	applog "kvlayout/internal/log"
	"kvlayout/internal/version"

	_ "modernc.org/sqlite"
)

const (
	SQLiteFileName = "kvlayout.sqlite"
	schemaVersion  = 2
)

// language=SQL
// dialect=SQLite
const selectStateSQL = `SELECT record FROM state WHERE project = ?`

// language=SQL
// dialect=SQLite
const upsertStateSQL = `INSERT INTO state(project, record, updated_at) VALUES (?, ?, ?)
ON CONFLICT(project) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`

// language=SQL
// dialect=SQLite
const insertSnapshotSQL = `INSERT INTO snapshots(project, seq, ts, blob) VALUES (?, ?, ?, ?)`

// language=SQL
// dialect=SQLite
const listSnapshotsSQL = `SELECT ts, blob FROM snapshots WHERE project = ? ORDER BY seq ASC`

// language=SQL
// dialect=SQLite
const deleteSnapshotsSQL = `DELETE FROM snapshots WHERE project = ?`

// language=SQL
// dialect=SQLite
const selectCursorSQL = `SELECT idx FROM history_cursor WHERE project = ?`

// language=SQL
// dialect=SQLite
const upsertCursorSQL = `INSERT INTO history_cursor(project, idx) VALUES (?, ?)
ON CONFLICT(project) DO UPDATE SET idx = excluded.idx`

// SQLiteStore keeps state and undo history for all projects in one embedded database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// SQLitePath returns the database file inside dir.
func SQLitePath(dir string) string { return filepath.Join(dir, SQLiteFileName) }

// OpenSQLite opens or creates the database under dir, enables WAL mode, and brings the
// schema up to date.
func OpenSQLite(ctx context.Context, dir string) (*SQLiteStore, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "sqlite_open").With(slog.String("dir", dir))
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		l.Error("create dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	path := SQLitePath(dir)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("sqlite ready", slog.String("path", path))
	return &SQLiteStore{db: db, path: path}, nil
}

// DB exposes the handle for maintenance commands and tests.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

// Load returns the project's record.
func (s *SQLiteStore) Load(ctx context.Context, project string) (composition.Record, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, selectStateSQL, project).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return composition.Record{}, ErrNotFound
	}
	if err != nil {
		return composition.Record{}, fmt.Errorf("select state: %w", err)
	}
	return decodeState(data)
}

// Save upserts the project's record.
func (s *SQLiteStore) Save(ctx context.Context, project string, rec composition.Record) error {
	data, err := composition.Encode(rec)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, upsertStateSQL, project, string(data), time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

// LoadHistory returns the stored entries in order and the current index, -1 when empty.
func (s *SQLiteStore) LoadHistory(ctx context.Context, project string) ([]history.Entry, int, error) {
	rows, err := s.db.QueryContext(ctx, listSnapshotsSQL, project)
	if err != nil {
		return nil, -1, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	var out []history.Entry
	for rows.Next() {
		var tsStr string
		var blob []byte
		if err := rows.Scan(&tsStr, &blob); err != nil {
			return nil, -1, err
		}
		ts, _ := time.Parse(time.RFC3339Nano, tsStr) // zero time on a bad stamp
		out = append(out, history.Entry{Blob: blob, TS: ts})
	}
	if err := rows.Err(); err != nil {
		return nil, -1, err
	}
	idx := len(out) - 1
	var cur int
	err = s.db.QueryRowContext(ctx, selectCursorSQL, project).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, -1, fmt.Errorf("select cursor: %w", err)
	default:
		idx = cur
	}
	return out, idx, nil
}

// SaveHistory replaces the project's history in one transaction.
func (s *SQLiteStore) SaveHistory(ctx context.Context, project string, entries []history.Entry, index int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, deleteSnapshotsSQL, project); err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	for i, e := range entries {
		if _, err := tx.ExecContext(ctx, insertSnapshotSQL, project, i, e.TS.UTC().Format(time.RFC3339Nano), e.Blob); err != nil {
			return fmt.Errorf("insert snapshot %d: %w", i, err)
		}
	}
	if _, err := tx.ExecContext(ctx, upsertCursorSQL, project, index); err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return tx.Commit()
}

// Projects lists every project with saved state, most recently updated first.
func (s *SQLiteStore) Projects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT project FROM state ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var cur int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, ?, ?, ?, ?)`, schemaVersion, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		// keep the stored schema for migrations
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS state (
			project    TEXT PRIMARY KEY,
			record     TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			project TEXT    NOT NULL,
			seq     INTEGER NOT NULL,
			ts      TEXT    NOT NULL,
			blob    BLOB    NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// runMigrations applies incremental schema migrations up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	// Fresh databases are seeded at schemaVersion, so the cursor table is created here as well.
	if err := ensureCursorTable(ctx, db); err != nil {
		return err
	}
	for cur < schemaVersion {
		next := cur + 1
		switch next {
		case 2:
			// v2 tracks the undo cursor separately and indexes snapshots per project
			tx, err := db.BeginTx(ctx, nil)
			if err != nil {
				return fmt.Errorf("begin migration %d: %w", next, err)
			}
			stmts := []string{
				`CREATE INDEX IF NOT EXISTS idx_snapshots_project_seq ON snapshots(project, seq);`,
				`INSERT OR IGNORE INTO history_cursor(project, idx)
					SELECT project, COUNT(*) - 1 FROM snapshots GROUP BY project;`,
			}
			for _, q := range stmts {
				if _, err := tx.ExecContext(ctx, q); err != nil {
					_ = tx.Rollback()
					return fmt.Errorf("migration %d stmt failed: %w", next, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d update version: %w", next, err)
			}
			if err := tx.Commit(); err != nil {
				return fmt.Errorf("migration %d commit: %w", next, err)
			}
		default:
			// unknown future step
		}
		cur = next
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_snapshots_project_seq ON snapshots(project, seq);`); err != nil {
		return fmt.Errorf("ensure snapshot index: %w", err)
	}
	return nil
}

func ensureCursorTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS history_cursor (
		project TEXT PRIMARY KEY,
		idx     INTEGER NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("create history_cursor: %w", err)
	}
	return nil
}
