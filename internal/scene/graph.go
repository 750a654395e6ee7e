/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package scene

import (
	"encoding/json"
	"fmt"
)

const graphVersion = 1

// node is one real entity in a scene-graph snapshot.
type node struct {
	Role Role            `json:"role"`
	Data json.RawMessage `json:"data"`
}

type graph struct {
	Version int    `json:"version"`
	Nodes   []node `json:"nodes"`
}

// Capture serializes the real entities, bottom to top. Decorations are not included; they
// are rebuilt from geometry on restore. Equal scenes produce equal bytes.
func (s *Scene) Capture() ([]byte, error) {
	g := graph{Version: graphVersion, Nodes: make([]node, 0, len(s.items))}
	for _, e := range s.items {
		b, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("scene: capture %s %s: %w", e.Role(), e.EntityID(), err)
		}
		g.Nodes = append(g.Nodes, node{Role: e.Role(), Data: b})
	}
	return json.Marshal(g)
}

// Restore replaces the real entities with those in a Capture snapshot. On error the scene is
// left untouched.
func (s *Scene) Restore(data []byte) error {
	var g graph
	if err := json.Unmarshal(data, &g); err != nil {
		return fmt.Errorf("scene: restore: %w", err)
	}
	if g.Version != graphVersion {
		return fmt.Errorf("scene: restore: unsupported graph version %d", g.Version)
	}
	items := make([]Entity, 0, len(g.Nodes))
	seen := make(map[string]bool, len(g.Nodes))
	for i, n := range g.Nodes {
		e, err := decodeNode(n)
		if err != nil {
			return fmt.Errorf("scene: restore node %d: %w", i, err)
		}
		if c := e.common(); c.ID == "" || seen[c.ID] {
			c.ID = NewID()
		}
		seen[e.EntityID()] = true
		items = append(items, e)
	}
	s.items = items
	s.EnforceOrder()
	return nil
}

func decodeNode(n node) (Entity, error) {
	var e Entity
	switch n.Role {
	case RoleBackground:
		e = &Background{}
	case RoleText:
		e = &TextLayer{}
	case RoleImage:
		e = &ImageElement{}
	case RoleShape:
		e = &Shape{}
	default:
		return nil, fmt.Errorf("role %s cannot be restored", n.Role)
	}
	if err := json.Unmarshal(n.Data, e); err != nil {
		return nil, err
	}
	return e, nil
}
