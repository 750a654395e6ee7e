/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package assets

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/image/bmp"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog([]byte(`[
		{"id":"a","url":"/kv/a.png","label":"Alpha"},
		{"id":"b","url":"/kv/b.png"},
		{"id":"a","url":"/kv/dup.png"},
		{"id":"","url":"/kv/none.png"}
	]`))
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	def, ok := c.Default()
	if !ok || def.ID != "a" || def.URL != "/kv/a.png" {
		t.Fatalf("default = %+v", def)
	}
	b, ok := c.Get("b")
	if !ok || b.DisplayName() != "b" {
		t.Fatalf("Get(b) = %+v %v", b, ok)
	}
	if def.DisplayName() != "Alpha" {
		t.Fatalf("label not used: %q", def.DisplayName())
	}
	if _, ok := c.Get("zzz"); ok {
		t.Fatalf("unexpected hit")
	}

	bad, err := ParseCatalog([]byte(`{oops`))
	if err == nil || bad.Len() != 0 {
		t.Fatalf("invalid catalog should be empty with error: %d %v", bad.Len(), err)
	}
	if _, ok := bad.Default(); ok {
		t.Fatalf("empty catalog has no default")
	}
}

func TestProbe(t *testing.T) {
	size, format, err := Probe(bytes.NewReader(pngBytes(t, 1200, 800)))
	if err != nil || format != "png" || size.W != 1200 || size.H != 800 {
		t.Fatalf("png probe: %+v %q %v", size, format, err)
	}
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 30, 40))); err != nil {
		t.Fatal(err)
	}
	size, format, err = Probe(&buf)
	if err != nil || format != "bmp" || size.W != 30 || size.H != 40 {
		t.Fatalf("bmp probe: %+v %q %v", size, format, err)
	}
	if _, _, err := Probe(bytes.NewReader([]byte("not an image"))); err == nil {
		t.Fatalf("expected error for garbage")
	}
}

func TestFileSourceAndLoader(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "kv.png"), pngBytes(t, 64, 32), 0o644); err != nil {
		t.Fatal(err)
	}
	l := NewLoader(NewSource(dir))
	res, err := l.Load(context.Background(), KV{ID: "kv", URL: "kv.png"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if res.Natural.W != 64 || res.Natural.H != 32 || res.Gen != l.Generation() {
		t.Fatalf("result = %+v", res)
	}
	if _, err := l.Load(context.Background(), KV{ID: "missing", URL: "nope.png"}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

// gatedSource blocks each Open until its URL is released.
type gatedSource struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	data  []byte
}

func (g *gatedSource) gate(url string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates == nil {
		g.gates = map[string]chan struct{}{}
	}
	ch, ok := g.gates[url]
	if !ok {
		ch = make(chan struct{})
		g.gates[url] = ch
	}
	return ch
}

func (g *gatedSource) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	select {
	case <-g.gate(url):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return io.NopCloser(bytes.NewReader(g.data)), nil
}

func TestLoader_StaleCompletionDiscarded(t *testing.T) {
	src := &gatedSource{data: pngBytes(t, 10, 10)}
	l := NewLoader(src)
	ctx := context.Background()

	var mu sync.Mutex
	var delivered []string
	record := func(r Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			delivered = append(delivered, r.KV.ID)
		}
	}
	first := l.LoadAsync(ctx, KV{ID: "first", URL: "1"}, record)
	second := l.LoadAsync(ctx, KV{ID: "second", URL: "2"}, record)

	close(src.gate("2"))
	waitClosed(t, second)
	close(src.gate("1"))
	waitClosed(t, first)

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 || delivered[0] != "second" {
		t.Fatalf("expected only the newest load delivered, got %v", delivered)
	}
}

func TestLoader_SyncSuperseded(t *testing.T) {
	src := &gatedSource{data: pngBytes(t, 10, 10)}
	l := NewLoader(src)
	errCh := make(chan error, 1)
	go func() {
		_, err := l.Load(context.Background(), KV{ID: "a", URL: "a"})
		errCh <- err
	}()
	// wait until the load has taken its generation
	deadline := time.Now().Add(2 * time.Second)
	for l.Generation() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	l.Cancel()
	close(src.gate("a"))
	if err := <-errCh; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for load")
	}
}
