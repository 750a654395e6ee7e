/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


// Package assets resolves key-visual backgrounds: the catalog of choices, where their bytes
// come from, and their natural size read from the image header.
package assets

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// KV is one background choice.
type KV struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Label string `json:"label,omitempty"`
}

// DisplayName is the label shown once the image loads.
func (k KV) DisplayName() string {
	if strings.TrimSpace(k.Label) != "" {
		return k.Label
	}
	return k.ID
}

// Catalog is the ordered list of KV choices. The first entry is the default.
type Catalog struct {
	items []KV
	byID  map[string]int
}

// NewCatalog indexes items; entries without an id or url are skipped and a repeated id
// keeps its first entry.
func NewCatalog(items []KV) *Catalog {
	c := &Catalog{byID: make(map[string]int, len(items))}
	for _, k := range items {
		k.ID = strings.TrimSpace(k.ID)
		if k.ID == "" || strings.TrimSpace(k.URL) == "" {
			continue
		}
		if _, dup := c.byID[k.ID]; dup {
			continue
		}
		c.byID[k.ID] = len(c.items)
		c.items = append(c.items, k)
	}
	return c
}

// ParseCatalog decodes a JSON array of KVs. Invalid input yields an empty catalog along
// with the error, so callers can log and carry on.
func ParseCatalog(data []byte) (*Catalog, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return NewCatalog(nil), nil
	}
	var items []KV
	if err := json.Unmarshal(data, &items); err != nil {
		return NewCatalog(nil), fmt.Errorf("parse catalog: %w", err)
	}
	return NewCatalog(items), nil
}

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewCatalog(nil), fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// Get looks up a KV by id.
func (c *Catalog) Get(id string) (KV, bool) {
	if c == nil {
		return KV{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return KV{}, false
	}
	return c.items[i], true
}

// Default returns the first KV.
func (c *Catalog) Default() (KV, bool) {
	if c == nil || len(c.items) == 0 {
		return KV{}, false
	}
	return c.items[0], true
}

// All returns a copy of the entries in order.
func (c *Catalog) All() []KV {
	if c == nil {
		return nil
	}
	return append([]KV(nil), c.items...)
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}
