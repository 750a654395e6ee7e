/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package crash

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeTarget struct {
	saved   int
	fail    bool
	project string
}

func (f *fakeTarget) Project() string { return f.project }

func (f *fakeTarget) Autosave(ctx context.Context) error {
	if f.fail {
		return errors.New("disk full")
	}
	f.saved++
	return nil
}

func quietStderr(t *testing.T) {
	t.Helper()
	old := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stderr = w
	t.Cleanup(func() {
		_ = w.Close()
		os.Stderr = old
		_, _ = io.Copy(io.Discard, r)
	})
}

func stubExit(t *testing.T) *int {
	t.Helper()
	code := -1
	old := exitFn
	exitFn = func(c int) { code = c }
	t.Cleanup(func() { exitFn = old })
	return &code
}

func TestWriteReportCreatesFileInTemp(t *testing.T) {
	path, err := writeReport("", nil, "boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "kvlayout crash report") {
		t.Fatalf("report header missing")
	}
	if !strings.Contains(s, "Panic: boom") {
		t.Fatalf("panic content missing: %s", s)
	}
}

func TestRecoverWritesReportAndAutosaves(t *testing.T) {
	quietStderr(t)
	code := stubExit(t)
	dir := filepath.Join(t.TempDir(), "crash")
	target := &fakeTarget{project: "promo"}

	func() {
		defer Recover(dir, target)
		panic("boom")
	}()

	if *code != 2 {
		t.Fatalf("exit code = %d, want 2", *code)
	}
	if target.saved != 1 {
		t.Fatalf("autosave calls = %d", target.saved)
	}
	files, _ := os.ReadDir(dir)
	if len(files) != 1 || !strings.HasPrefix(files[0].Name(), "crash-") {
		t.Fatalf("expected one crash report, got %v", files)
	}
	b, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "Project: promo") {
		t.Fatalf("report does not name the project: %s", b)
	}
}

func TestRecoverSurvivesFailedAutosave(t *testing.T) {
	quietStderr(t)
	code := stubExit(t)
	func() {
		defer Recover(t.TempDir(), &fakeTarget{fail: true})
		panic(errors.New("kaboom"))
	}()
	if *code != 2 {
		t.Fatalf("exit code = %d, want 2", *code)
	}
}

func TestRecoverWithoutPanicIsNoop(t *testing.T) {
	code := stubExit(t)
	target := &fakeTarget{}
	func() {
		defer Recover(t.TempDir(), target)
	}()
	if *code != -1 || target.saved != 0 {
		t.Fatalf("Recover acted without a panic")
	}
}
