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
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Source opens the bytes behind an asset URL.
type Source interface {
	Open(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// FileSource serves file:// URLs and bare paths, relative ones against Root.
type FileSource struct {
	Root string
}

func (s FileSource) Open(_ context.Context, rawURL string) (io.ReadCloser, error) {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Scheme == "file" {
		p = u.Path
	}
	if !filepath.IsAbs(p) && s.Root != "" {
		p = filepath.Join(s.Root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
	}
	return os.Open(p)
}

// HTTPSource fetches http and https URLs.
type HTTPSource struct {
	Client *http.Client
}

func (s HTTPSource) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: %s", rawURL, resp.Status)
	}
	return resp.Body, nil
}

// MultiSource dispatches on the URL scheme.
type MultiSource struct {
	File FileSource
	HTTP HTTPSource
}

// NewSource returns a MultiSource resolving local paths against root.
func NewSource(root string) MultiSource {
	return MultiSource{File: FileSource{Root: root}}
}

func (s MultiSource) Open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, errors.New("empty asset url")
	}
	lower := strings.ToLower(rawURL)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s.HTTP.Open(ctx, rawURL)
	}
	return s.File.Open(ctx, rawURL)
}
