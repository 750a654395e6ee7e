/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package export

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"kvlayout/internal/scene"
)

// SVGOptions controls SVG proofs.
type SVGOptions struct {
	// IncludeGuides outlines the guide.
	IncludeGuides bool
	GuideColor    string
	// Placeholder fills the background box when the key visual has no URL.
	Placeholder string
}

func (o SVGOptions) withDefaults() SVGOptions {
	if o.GuideColor == "" {
		o.GuideColor = "#ff3b30"
	}
	if o.Placeholder == "" {
		o.Placeholder = "#d9d9d9"
	}
	return o
}

// WriteSVG writes p as a single SVG document. Images are referenced by URL, not embedded.
func WriteSVG(w io.Writer, p Page, opt SVGOptions) error {
	opt = opt.withDefaults()
	var buf bytes.Buffer
	var werr error
	wf := func(format string, args ...any) {
		if werr != nil {
			return
		}
		_, werr = fmt.Fprintf(&buf, format, args...)
	}
	pw, ph := float64(p.Size.W), float64(p.Size.H)

	wf("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	wf("<svg xmlns=\"http://www.w3.org/2000/svg\" xmlns:xlink=\"http://www.w3.org/1999/xlink\" version=\"1.1\" width=\"%dpx\" height=\"%dpx\" viewBox=\"0 0 %d %d\">\n", p.Size.W, p.Size.H, p.Size.W, p.Size.H)
	wf("  <defs><clipPath id=\"guide\"><rect x=\"0\" y=\"0\" width=\"%g\" height=\"%g\"/></clipPath></defs>\n", pw, ph)
	wf("  <g clip-path=\"url(#guide)\">\n")
	wf("  <rect x=\"0\" y=\"0\" width=\"%g\" height=\"%g\" fill=\"#ffffff\"/>\n", pw, ph)

	if bg := p.Background; !bg.Empty() {
		if p.KVURL != "" {
			wf("  <image x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" preserveAspectRatio=\"none\" xlink:href=\"%s\"/>\n", bg.Left, bg.Top, bg.Width, bg.Height, esc(p.KVURL))
		} else {
			wf("  <rect x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" fill=\"%s\"/>\n", bg.Left, bg.Top, bg.Width, bg.Height, esc(opt.Placeholder))
		}
	}

	for _, e := range p.Entities {
		r := e.Bounds()
		switch v := e.(type) {
		case *scene.TextLayer:
			if bd := v.Backdrop; bd != nil {
				br := backdropRect(v, pw)
				rad := bd.Radius.Rescale(pw)
				wf("  <rect x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" rx=\"%g\" ry=\"%g\" fill=\"%s\" fill-opacity=\"%g\"/>\n", br.Left, br.Top, br.Width, br.Height, rad, rad, esc(bd.Color), bd.Opacity)
			}
			x, ys := baselines(v)
			lines := v.Lines
			if len(lines) == 0 {
				lines = []string{v.Text}
			}
			wf("  <text font-family=\"%s\" font-size=\"%g\" fill=\"%s\" text-anchor=\"%s\">", esc(v.FontFamily), v.FontSize.Px, esc(v.Fill), anchor(v.Align))
			for i, line := range lines {
				wf("<tspan x=\"%g\" y=\"%g\">%s</tspan>", x, ys[i], esc(line))
			}
			wf("</text>\n")
		case *scene.ImageElement:
			wf("  <image x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" opacity=\"%g\" preserveAspectRatio=\"none\" xlink:href=\"%s\"/>\n", r.Left, r.Top, r.Width, r.Height, v.Opacity, esc(v.URL))
		case *scene.Shape:
			fill := esc(v.Fill)
			switch v.Type {
			case scene.ShapeCircle:
				wf("  <ellipse cx=\"%g\" cy=\"%g\" rx=\"%g\" ry=\"%g\" fill=\"%s\" fill-opacity=\"%g\"/>\n", r.Left+r.Width/2, r.Top+r.Height/2, r.Width/2, r.Height/2, fill, v.Opacity)
			case scene.ShapeTriangle, scene.ShapeStar:
				pts := shapePoints(v.Type, r)
				coords := make([]string, len(pts))
				for i, pt := range pts {
					coords[i] = fmt.Sprintf("%g,%g", pt.X, pt.Y)
				}
				wf("  <polygon points=\"%s\" fill=\"%s\" fill-opacity=\"%g\"/>\n", strings.Join(coords, " "), fill, v.Opacity)
			default:
				wf("  <rect x=\"%g\" y=\"%g\" width=\"%g\" height=\"%g\" fill=\"%s\" fill-opacity=\"%g\"/>\n", r.Left, r.Top, r.Width, r.Height, fill, v.Opacity)
			}
		}
	}
	wf("  </g>\n")

	if opt.IncludeGuides {
		wf("  <rect x=\"0\" y=\"0\" width=\"%g\" height=\"%g\" fill=\"none\" stroke=\"%s\" stroke-width=\"2\" stroke-dasharray=\"8 6\"/>\n", pw, ph, esc(opt.GuideColor))
	}
	wf("</svg>\n")

	if werr != nil {
		return fmt.Errorf("build svg: %w", werr)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}

// ExportSVG writes p to outPath, creating its directory.
func ExportSVG(p Page, outPath string, opt SVGOptions) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	var buf bytes.Buffer
	if err := WriteSVG(&buf, p, opt); err != nil {
		return err
	}
	if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write svg: %w", err)
	}
	return nil
}

func anchor(align string) string {
	switch strings.ToLower(align) {
	case "center", "centre":
		return "middle"
	case "right":
		return "end"
	}
	return "start"
}

func esc(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
