/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package export

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"kvlayout/internal/geometry"
	"kvlayout/internal/scene"
)

// PDFOptions controls PDF proofs.
// Units are points with one master pixel per point, so a 1080x1350 master is a
// 1080x1350 pt page. Text uses the built-in core fonts and stays vector; images are
// drawn as labelled placeholders.
type PDFOptions struct {
	IncludeGuides bool
	GuideColor    string
	Placeholder   string
	Title         string
}

// WritePDF writes one page per Page, each sized to its master.
func WritePDF(w io.Writer, pages []Page, opt PDFOptions) error {
	pdf, err := buildPDF(pages, opt)
	if err != nil {
		return err
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// ExportPDF writes pages to outPath, creating its directory.
func ExportPDF(pages []Page, outPath string, opt PDFOptions) error {
	pdf, err := buildPDF(pages, opt)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func buildPDF(pages []Page, opt PDFOptions) (*gofpdf.Fpdf, error) {
	if len(pages) == 0 {
		return nil, errors.New("export: no pages")
	}
	if opt.GuideColor == "" {
		opt.GuideColor = "#ff3b30"
	}
	if opt.Placeholder == "" {
		opt.Placeholder = "#d9d9d9"
	}
	first := pages[0].Size
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: float64(first.W), Ht: float64(first.H)},
	})
	title := opt.Title
	if title == "" {
		title = "Layout proof"
	}
	pdf.SetTitle(title, true)
	pdf.SetCreator("kvlayout", false)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, p := range pages {
		pw, ph := float64(p.Size.W), float64(p.Size.H)
		pdf.AddPageFormat("", gofpdf.SizeType{Wd: pw, Ht: ph})
		pdf.ClipRect(0, 0, pw, ph, false)

		if bg := p.Background; !bg.Empty() {
			placeholder(pdf, tr, bg, opt.Placeholder, p.KV)
		}
		for _, e := range p.Entities {
			r := e.Bounds()
			switch v := e.(type) {
			case *scene.TextLayer:
				drawText(pdf, tr, v, pw)
			case *scene.ImageElement:
				pdf.SetAlpha(geometry.Clamp01(v.Opacity), "Normal")
				placeholder(pdf, tr, r, opt.Placeholder, v.AssetID)
				pdf.SetAlpha(1, "Normal")
			case *scene.Shape:
				setFill(pdf, v.Fill, 0x8f, 0xe4, 0xc7)
				pdf.SetAlpha(geometry.Clamp01(v.Opacity), "Normal")
				switch v.Type {
				case scene.ShapeCircle:
					pdf.Ellipse(r.Left+r.Width/2, r.Top+r.Height/2, r.Width/2, r.Height/2, 0, "F")
				case scene.ShapeTriangle, scene.ShapeStar:
					pts := shapePoints(v.Type, r)
					poly := make([]gofpdf.PointType, len(pts))
					for i, pt := range pts {
						poly[i] = gofpdf.PointType{X: pt.X, Y: pt.Y}
					}
					pdf.Polygon(poly, "F")
				default:
					pdf.Rect(r.Left, r.Top, r.Width, r.Height, "F")
				}
				pdf.SetAlpha(1, "Normal")
			}
		}
		pdf.ClipEnd()

		if opt.IncludeGuides {
			setDraw(pdf, opt.GuideColor)
			pdf.SetLineWidth(2)
			pdf.SetDashPattern([]float64{8, 6}, 0)
			pdf.Rect(0, 0, pw, ph, "D")
			pdf.SetDashPattern(nil, 0)
		}
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("build pdf: %w", err)
	}
	return pdf, nil
}

func drawText(pdf *gofpdf.Fpdf, tr func(string) string, t *scene.TextLayer, guideW float64) {
	if bd := t.Backdrop; bd != nil {
		br := backdropRect(t, guideW)
		setFill(pdf, bd.Color, 0, 0, 0)
		pdf.SetAlpha(bd.Opacity, "Normal")
		roundedRect(pdf, br, bd.Radius.Rescale(guideW), "F")
		pdf.SetAlpha(1, "Normal")
	}
	px := t.FontSize.Px
	pdf.SetFont(coreFont(t.FontFamily), "", px)
	r, g, b, ok := rgb(t.Fill)
	if !ok {
		r, g, b = 255, 255, 255
	}
	pdf.SetTextColor(r, g, b)
	x, ys := baselines(t)
	lines := t.Lines
	if len(lines) == 0 {
		lines = []string{t.Text}
	}
	for i, line := range lines {
		s := tr(line)
		lx := x
		switch anchor(t.Align) {
		case "middle":
			lx -= pdf.GetStringWidth(s) / 2
		case "end":
			lx -= pdf.GetStringWidth(s)
		}
		pdf.Text(lx, ys[i], s)
	}
}

func placeholder(pdf *gofpdf.Fpdf, tr func(string) string, r geometry.Rect, fill, label string) {
	setFill(pdf, fill, 0xd9, 0xd9, 0xd9)
	pdf.SetDrawColor(0x99, 0x99, 0x99)
	pdf.SetLineWidth(1)
	pdf.Rect(r.Left, r.Top, r.Width, r.Height, "FD")
	pdf.Line(r.Left, r.Top, r.Right(), r.Bottom())
	pdf.Line(r.Right(), r.Top, r.Left, r.Bottom())
	if label != "" {
		size := math.Max(10, math.Min(24, r.Height/8))
		pdf.SetFont("Helvetica", "", size)
		pdf.SetTextColor(0x55, 0x55, 0x55)
		pdf.Text(r.Left+size/2, r.Top+size*1.5, tr(label))
	}
}

// roundedRect draws r with corner radius rad as a closed path.
func roundedRect(pdf *gofpdf.Fpdf, r geometry.Rect, rad float64, style string) {
	rad = math.Min(math.Max(rad, 0), math.Min(r.Width, r.Height)/2)
	if rad == 0 {
		pdf.Rect(r.Left, r.Top, r.Width, r.Height, style)
		return
	}
	k := rad * 0.5523
	x0, y0, x1, y1 := r.Left, r.Top, r.Right(), r.Bottom()
	pdf.MoveTo(x0+rad, y0)
	pdf.LineTo(x1-rad, y0)
	pdf.CurveBezierCubicTo(x1-rad+k, y0, x1, y0+rad-k, x1, y0+rad)
	pdf.LineTo(x1, y1-rad)
	pdf.CurveBezierCubicTo(x1, y1-rad+k, x1-rad+k, y1, x1-rad, y1)
	pdf.LineTo(x0+rad, y1)
	pdf.CurveBezierCubicTo(x0+rad-k, y1, x0, y1-rad+k, x0, y1-rad)
	pdf.LineTo(x0, y0+rad)
	pdf.CurveBezierCubicTo(x0, y0+rad-k, x0+rad-k, y0, x0+rad, y0)
	pdf.ClosePath()
	pdf.DrawPath(style)
}

// coreFont maps a CSS family name onto one of the PDF core fonts.
func coreFont(family string) string {
	f := strings.ToLower(family)
	switch {
	case strings.Contains(f, "mono"), strings.Contains(f, "courier"):
		return "Courier"
	case strings.Contains(f, "times"), strings.Contains(f, "serif") && !strings.Contains(f, "sans"):
		return "Times"
	}
	return "Helvetica"
}

func setFill(pdf *gofpdf.Fpdf, hex string, dr, dg, db int) {
	r, g, b, ok := rgb(hex)
	if !ok {
		r, g, b = dr, dg, db
	}
	pdf.SetFillColor(r, g, b)
}

func setDraw(pdf *gofpdf.Fpdf, hex string) {
	r, g, b, ok := rgb(hex)
	if !ok {
		r, g, b = 255, 0, 0
	}
	pdf.SetDrawColor(r, g, b)
}
