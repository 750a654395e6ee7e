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
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"kvlayout/internal/composition"
	"kvlayout/internal/history"
	applog "kvlayout/internal/log"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// TTL expires idle projects; zero keeps them forever.
	TTL time.Duration
}

// RedisStore shares state between editor instances. Records live under StateKey and
// history under StateKey+":history", both as JSON strings.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errors.New("storage: redis address is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		applog.WithComponent("storage").Error("redis ping failed", slog.String("addr", opts.Addr), slog.Any("err", err))
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client, ttl: opts.TTL}, nil
}

// Load returns the project's record.
func (s *RedisStore) Load(ctx context.Context, project string) (composition.Record, error) {
	data, err := s.client.Get(ctx, StateKey(project)).Bytes()
	if errors.Is(err, redis.Nil) {
		return composition.Record{}, ErrNotFound
	}
	if err != nil {
		return composition.Record{}, fmt.Errorf("redis get: %w", err)
	}
	return decodeState(data)
}

// Save writes the project's record, refreshing its TTL.
func (s *RedisStore) Save(ctx context.Context, project string, rec composition.Record) error {
	data, err := composition.Encode(rec)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.client.Set(ctx, StateKey(project), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// LoadHistory returns the stored history; a missing key means empty history.
func (s *RedisStore) LoadHistory(ctx context.Context, project string) ([]history.Entry, int, error) {
	data, err := s.client.Get(ctx, historyKey(project)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, -1, nil
	}
	if err != nil {
		return nil, -1, fmt.Errorf("redis get: %w", err)
	}
	return decodeHistory(data)
}

// SaveHistory replaces the stored history.
func (s *RedisStore) SaveHistory(ctx context.Context, project string, entries []history.Entry, index int) error {
	data, err := encodeHistory(entries, index)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, historyKey(project), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the project's record and history.
func (s *RedisStore) Delete(ctx context.Context, project string) error {
	return s.client.Del(ctx, StateKey(project), historyKey(project)).Err()
}

// Close closes the client.
func (s *RedisStore) Close() error { return s.client.Close() }
