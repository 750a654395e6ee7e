/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


// Package scene is the in-process rendering surface: a registry of tagged entities in draw
// order, the derived decorations around the guide, and scene-graph snapshots.
package scene

import (
	"fmt"

	"github.com/google/uuid"

	"kvlayout/internal/geometry"
	"kvlayout/internal/layout"
)

// Role tags what an entity is. Roles are mutually exclusive.
type Role uint8

const (
	RoleBackground Role = iota + 1
	RoleText
	RoleImage
	RoleShape
	RoleTextBackground
	RoleGuideOutline
	RoleDeadZone
	RoleBoardEdge
)

var roleNames = map[Role]string{
	RoleBackground:     "background",
	RoleText:           "text",
	RoleImage:          "image",
	RoleShape:          "shape",
	RoleTextBackground: "text-background",
	RoleGuideOutline:   "guide-outline",
	RoleDeadZone:       "dead-zone",
	RoleBoardEdge:      "board-edge",
}

func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// IsDecoration reports whether entities of this role are derived, non-interactive and
// excluded from persisted state.
func (r Role) IsDecoration() bool { return r >= RoleTextBackground && r <= RoleBoardEdge }

func (r Role) MarshalText() ([]byte, error) {
	n, ok := roleNames[r]
	if !ok {
		return nil, fmt.Errorf("scene: unknown role %d", uint8(r))
	}
	return []byte(n), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	for k, n := range roleNames {
		if n == string(b) {
			*r = k
			return nil
		}
	}
	return fmt.Errorf("scene: unknown role %q", string(b))
}

// Entity is a visual object with a pixel box. The concrete types are *Background,
// *TextLayer, *ImageElement, *Shape and *Decoration; callers dispatch with a type switch.
type Entity interface {
	EntityID() string
	Role() Role
	Bounds() geometry.Rect
	SetBounds(geometry.Rect)
	common() *Common
}

// Common carries the identity and pixel box shared by every entity.
type Common struct {
	ID   string        `json:"id"`
	Rect geometry.Rect `json:"rect"`
}

func (c *Common) EntityID() string          { return c.ID }
func (c *Common) Bounds() geometry.Rect     { return c.Rect }
func (c *Common) SetBounds(r geometry.Rect) { c.Rect = r }
func (c *Common) common() *Common           { return c }
func (c *Common) moveTo(left, top float64)  { c.Rect.Left, c.Rect.Top = left, top }
func (c *Common) translate(dx, dy float64)  { c.Rect = c.Rect.Translate(dx, dy) }

// NewID returns a random entity id.
func NewID() string { return uuid.NewString() }

// Background is the key visual behind everything else. A scene holds at most one.
type Background struct {
	Common
	AssetID string      `json:"asset_id"`
	URL     string      `json:"url,omitempty"`
	Label   string      `json:"label,omitempty"`
	Natural layout.Size `json:"natural"`
}

func (*Background) Role() Role { return RoleBackground }

// TextLayer is an editable text box. FontSize keeps the pixel size together with the guide
// width it was measured against.
type TextLayer struct {
	Common
	Text       string          `json:"text"`
	Lines      []string        `json:"lines,omitempty"`
	FontFamily string          `json:"font_family"`
	Fill       string          `json:"fill"`
	Align      string          `json:"align"`
	FontSize   geometry.Scaled `json:"font_size"`
	// ScaleX/ScaleY hold an interactive resize not yet folded into width and font size.
	// Zero means 1.
	ScaleX   float64   `json:"scale_x,omitempty"`
	ScaleY   float64   `json:"scale_y,omitempty"`
	Backdrop *Backdrop `json:"backdrop,omitempty"`

	deco *Decoration
}

func (*TextLayer) Role() Role { return RoleText }

// Decoration returns the backdrop rectangle owned by this layer, or nil.
func (t *TextLayer) Decoration() *Decoration { return t.deco }

// Backdrop styles the rectangle drawn behind a text layer. Radius and padding are pixel
// values paired with their guide-width basis.
type Backdrop struct {
	Color   string          `json:"color"`
	Opacity float64         `json:"opacity"`
	Radius  geometry.Scaled `json:"radius"`
	Padding geometry.Scaled `json:"padding"`
}

// ImageElement is an inserted asset image.
type ImageElement struct {
	Common
	AssetID string      `json:"asset_id,omitempty"`
	URL     string      `json:"url,omitempty"`
	Opacity float64     `json:"opacity"`
	Natural layout.Size `json:"natural"`
}

func (*ImageElement) Role() Role { return RoleImage }

// ShapeType names a vector shape.
type ShapeType string

const (
	ShapeRect     ShapeType = "rect"
	ShapeCircle   ShapeType = "circle"
	ShapeTriangle ShapeType = "triangle"
	ShapeStar     ShapeType = "star"
)

// Valid reports whether t is one of the known shape types.
func (t ShapeType) Valid() bool {
	switch t {
	case ShapeRect, ShapeCircle, ShapeTriangle, ShapeStar:
		return true
	}
	return false
}

type Shape struct {
	Common
	Type    ShapeType `json:"type"`
	Fill    string    `json:"fill"`
	Opacity float64   `json:"opacity"`
}

func (*Shape) Role() Role { return RoleShape }

// Decoration is a derived, non-interactive rectangle: a text backdrop, the guide outline,
// a dead-zone quadrant or the board edge.
type Decoration struct {
	Common
	Kind    Role
	Owner   string // owning text layer id, text backgrounds only
	Fill    string
	Stroke  string
	Opacity float64
	Radius  float64
	Pattern string
}

func (d *Decoration) Role() Role { return d.Kind }

// Clone returns a deep copy of e with a fresh id. Backgrounds and decorations are not
// cloneable and yield nil.
func Clone(e Entity) Entity {
	switch v := e.(type) {
	case *TextLayer:
		c := *v
		c.ID = NewID()
		c.Lines = append([]string(nil), v.Lines...)
		if v.Backdrop != nil {
			bd := *v.Backdrop
			c.Backdrop = &bd
		}
		c.deco = nil
		return &c
	case *ImageElement:
		c := *v
		c.ID = NewID()
		return &c
	case *Shape:
		c := *v
		c.ID = NewID()
		return &c
	default:
		return nil
	}
}

// Translate moves e by dx,dy.
func Translate(e Entity, dx, dy float64) { e.common().translate(dx, dy) }

// MoveTo places e's top-left corner at left,top keeping its size.
func MoveTo(e Entity, left, top float64) { e.common().moveTo(left, top) }
