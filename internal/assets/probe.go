/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package assets

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"kvlayout/internal/layout"
)

// ErrEmptyImage is returned for images that decode to zero width or height.
var ErrEmptyImage = errors.New("assets: image has no area")

// Probe reads the natural size and format from an image header without decoding pixels.
func Probe(r io.Reader) (layout.Size, string, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return layout.Size{}, "", fmt.Errorf("probe image: %w", err)
	}
	size := layout.Size{W: float64(cfg.Width), H: float64(cfg.Height)}
	if !size.Valid() {
		return layout.Size{}, format, ErrEmptyImage
	}
	return size, format, nil
}
