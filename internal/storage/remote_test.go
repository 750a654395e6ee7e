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
	"os"
	"reflect"
	"testing"
	"time"

	"kvlayout/internal/history"
)

// Networked backends are exercised only when a test server is configured.

func openRedisForTest(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("KVL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KVL_TEST_REDIS_ADDR not set; skipping Redis tests")
	}
	s, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr, DB: 15, TTL: time.Minute})
	if err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openPGForTest(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("KVL_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("KVL_TEST_PG_DSN not set; skipping Postgres tests")
	}
	s, err := OpenPostgres(context.Background(), dsn)
	if err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// exerciseStore runs the behaviour every backend shares.
func exerciseStore(t *testing.T, s interface {
	Store
	HistoryStore
}, project string) {
	t.Helper()
	ctx := context.Background()
	want := sampleRecord("Remote")
	if err := s.Save(ctx, project, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, project)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("mismatch:\n got %+v\nwant %+v", got, want)
	}
	ts := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	in := []history.Entry{{Blob: []byte("x"), TS: ts}, {Blob: []byte("y"), TS: ts.Add(time.Second)}}
	if err := s.SaveHistory(ctx, project, in, 0); err != nil {
		t.Fatalf("SaveHistory: %v", err)
	}
	out, idx, err := s.LoadHistory(ctx, project)
	if err != nil || idx != 0 || len(out) != 2 || string(out[1].Blob) != "y" || !out[0].TS.Equal(ts) {
		t.Fatalf("LoadHistory: %+v idx=%d err=%v", out, idx, err)
	}
}

func TestRedisStore(t *testing.T) {
	s := openRedisForTest(t)
	project := "test-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = s.Delete(context.Background(), project) })
	if _, err := s.Load(context.Background(), project); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	exerciseStore(t, s, project)
}

func TestPostgresStore(t *testing.T) {
	s := openPGForTest(t)
	ctx := context.Background()
	project := "test-" + time.Now().Format("150405.000000")
	if _, err := s.Load(ctx, project); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	exerciseStore(t, s, project)
	if err := s.Save(ctx, project, sampleRecord("again")); err != nil {
		t.Fatal(err)
	}
	if v, err := s.LayoutVersion(ctx, project); err != nil || v != 2 {
		t.Fatalf("LayoutVersion = %d, %v", v, err)
	}
}

func TestParseMigrationVersion(t *testing.T) {
	if v, err := parseMigrationVersion("0002_history.sql"); err != nil || v != 2 {
		t.Fatalf("got %d %v", v, err)
	}
	if _, err := parseMigrationVersion("history.sql"); err == nil {
		t.Fatalf("expected error")
	}
	files, err := migrationsFS.ReadDir("migrations")
	if err != nil || len(files) < 2 {
		t.Fatalf("embedded migrations: %d %v", len(files), err)
	}
}
