/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"kvlayout/internal/layout"
	applog "kvlayout/internal/log"
)

// ErrSuperseded is returned when a newer load started before this one finished.
var ErrSuperseded = errors.New("assets: load superseded by a newer request")

// Result is a finished background load.
type Result struct {
	KV      KV
	Natural layout.Size
	Format  string
	Gen     uint64
}

// Loader probes backgrounds. Every load takes a new generation; only the newest
// generation's completion is delivered.
type Loader struct {
	src Source
	gen atomic.Uint64
	log *slog.Logger
}

func NewLoader(src Source) *Loader {
	return &Loader{src: src, log: applog.WithComponent("assets")}
}

// Generation returns the newest request generation.
func (l *Loader) Generation() uint64 { return l.gen.Load() }

// Cancel invalidates any load in flight.
func (l *Loader) Cancel() { l.gen.Add(1) }

// Load probes kv synchronously. It fails with ErrSuperseded if another load started meanwhile.
func (l *Loader) Load(ctx context.Context, kv KV) (Result, error) {
	return l.load(ctx, kv, l.gen.Add(1))
}

// LoadAsync probes kv on a goroutine and calls done with the result unless a newer load
// has started by then; stale completions are dropped. The returned channel closes once the
// goroutine is finished either way.
func (l *Loader) LoadAsync(ctx context.Context, kv KV, done func(Result, error)) <-chan struct{} {
	gen := l.gen.Add(1)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		res, err := l.load(ctx, kv, gen)
		if errors.Is(err, ErrSuperseded) {
			return
		}
		if done != nil {
			done(res, err)
		}
	}()
	return finished
}

func (l *Loader) load(ctx context.Context, kv KV, gen uint64) (Result, error) {
	lg := l.log.With(slog.String("kv", kv.ID), slog.Uint64("gen", gen))
	lg.Debug("loading image", slog.String("url", kv.URL))
	if l.src == nil {
		return Result{}, errors.New("assets: no source configured")
	}
	rc, err := l.src.Open(ctx, kv.URL)
	if err != nil {
		lg.Debug("image open failed", slog.Any("err", err))
		if l.gen.Load() != gen {
			return Result{}, ErrSuperseded
		}
		return Result{KV: kv, Gen: gen}, fmt.Errorf("open %s: %w", kv.URL, err)
	}
	size, format, err := Probe(rc)
	_ = rc.Close()
	if l.gen.Load() != gen {
		lg.Debug("discarding stale load")
		return Result{}, ErrSuperseded
	}
	if err != nil {
		lg.Debug("image probe failed", slog.Any("err", err))
		return Result{KV: kv, Gen: gen}, err
	}
	lg.Debug("image loaded", slog.Float64("w", size.W), slog.Float64("h", size.H), slog.String("format", format))
	return Result{KV: kv, Natural: size, Format: format, Gen: gen}, nil
}

// Current reports whether gen is still the newest generation. Callers applying a result
// under their own lock check this again before mutating state.
func (l *Loader) Current(gen uint64) bool { return l.gen.Load() == gen }
