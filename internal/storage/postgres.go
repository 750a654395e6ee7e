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
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"kvlayout/internal/composition"
	"kvlayout/internal/history"
	applog "kvlayout/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// dialect=PostgreSQL
const selectLayoutSQL = `SELECT record FROM layouts WHERE project_id = $1`

// dialect=PostgreSQL
const upsertLayoutSQL = `INSERT INTO layouts(project_id, record, updated_at) VALUES ($1, $2::jsonb, now())
ON CONFLICT (project_id) DO UPDATE SET record = EXCLUDED.record, version = layouts.version + 1, updated_at = now()`

// PostgresStore serves server-provided layouts and can act as the shared state store.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects through pgx, pings, and applies the embedded migrations.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "postgres_open")
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("storage: postgres DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		l.Error("ping failed", slog.Any("err", err))
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("migrate failed", slog.Any("err", err))
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Load returns the layout stored for project.
func (s *PostgresStore) Load(ctx context.Context, project string) (composition.Record, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, selectLayoutSQL, project).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return composition.Record{}, ErrNotFound
	}
	if err != nil {
		return composition.Record{}, fmt.Errorf("select layout: %w", err)
	}
	return decodeState(data)
}

// Save publishes rec as the project's layout, bumping its version.
func (s *PostgresStore) Save(ctx context.Context, project string, rec composition.Record) error {
	data, err := composition.Encode(rec)
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, upsertLayoutSQL, project, string(data)); err != nil {
		return fmt.Errorf("upsert layout: %w", err)
	}
	return nil
}

// LayoutVersion returns how many times the project's layout has been saved, 0 if never.
func (s *PostgresStore) LayoutVersion(ctx context.Context, project string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT version FROM layouts WHERE project_id = $1`, project).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return v, err
}

// LoadHistory returns the stored entries and cursor.
func (s *PostgresStore) LoadHistory(ctx context.Context, project string) ([]history.Entry, int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT ts, blob FROM layout_history WHERE project_id = $1 ORDER BY seq`, project)
	if err != nil {
		return nil, -1, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()
	var out []history.Entry
	for rows.Next() {
		var e history.Entry
		if err := rows.Scan(&e.TS, &e.Blob); err != nil {
			return nil, -1, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, -1, err
	}
	idx := len(out) - 1
	var cur int
	err = s.db.QueryRowContext(ctx, `SELECT idx FROM layout_history_cursor WHERE project_id = $1`, project).Scan(&cur)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, -1, fmt.Errorf("select cursor: %w", err)
	default:
		idx = cur
	}
	return out, idx, nil
}

// SaveHistory replaces the stored history in one transaction.
func (s *PostgresStore) SaveHistory(ctx context.Context, project string, entries []history.Entry, index int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM layout_history WHERE project_id = $1`, project); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	for i, e := range entries {
		if _, err := tx.ExecContext(ctx, `INSERT INTO layout_history(project_id, seq, ts, blob) VALUES ($1, $2, $3, $4)`, project, i, e.TS.UTC(), e.Blob); err != nil {
			return fmt.Errorf("insert history %d: %w", i, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO layout_history_cursor(project_id, idx) VALUES ($1, $2)
		ON CONFLICT (project_id) DO UPDATE SET idx = EXCLUDED.idx`, project, index); err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return tx.Commit()
}

// Close closes the pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

func applyMigrations(ctx context.Context, db *sql.DB) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); strings.HasSuffix(strings.ToLower(name), ".sql") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	// dialect=PostgreSQL
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	l := applog.WithComponent("storage")
	for _, fname := range files {
		version, err := parseMigrationVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(b)) == "" {
			continue
		}
		l.Info("applying migration", slog.String("file", fname))
		if _, err := db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`, version, fname); err != nil {
			return fmt.Errorf("record %s: %w", fname, err)
		}
	}
	return nil
}

func parseMigrationVersion(name string) (int64, error) {
	base := path.Base(name)
	prefix, _, ok := strings.Cut(base, "_")
	if !ok {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}
