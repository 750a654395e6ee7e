/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package export

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"kvlayout/internal/composition"
	applog "kvlayout/internal/log"
)

// PresetName names a set of default proof options.
type PresetName string

const (
	// PresetReview writes guides on, SVG and PDF.
	PresetReview PresetName = "review"
	// PresetClean writes SVG without guides.
	PresetClean PresetName = "clean"
)

// BatchOptions controls a batch proof export.
//
// Path semantics:
//   - OutDir defaults to the current directory.
//   - SVG proofs are <name>-<ratio>-<WxH>.svg, one per master size.
//   - PDF proofs are a single <name>.pdf with one page per master size.
type BatchOptions struct {
	Preset        PresetName
	Formats       []string // svg, pdf; empty means preset defaults
	Ratios        []string // empty means the record's own ratio
	IncludeGuides *bool    // overrides the preset when set
	OutDir        string
	Name          string
}

// Batch writes proofs of rec and returns the files written.
func Batch(rec composition.Record, opt BatchOptions) ([]string, error) {
	lg := applog.WithComponent("export")
	formats := opt.Formats
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	guides := presetIncludeGuides(opt.Preset)
	if opt.IncludeGuides != nil {
		guides = *opt.IncludeGuides
	}
	ratios := opt.Ratios
	if len(ratios) == 0 {
		ratios = []string{rec.GuideRatio}
	}
	name := opt.Name
	if name == "" {
		name = "layout"
	}

	pages := make([]Page, 0, len(ratios))
	seen := map[string]bool{}
	for _, r := range ratios {
		m := MasterFor(r)
		if seen[m.Ratio] {
			continue
		}
		seen[m.Ratio] = true
		pages = append(pages, Place(rec, m))
	}

	var written []string
	for _, f := range formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "svg":
			for _, p := range pages {
				out := filepath.Join(opt.OutDir, fmt.Sprintf("%s-%s-%s.svg", name, strings.ReplaceAll(p.Size.Ratio, ":", "x"), p.Size))
				if err := ExportSVG(p, out, SVGOptions{IncludeGuides: guides}); err != nil {
					return written, fmt.Errorf("svg %s: %w", p.Size.Ratio, err)
				}
				written = append(written, out)
			}
		case "pdf":
			out := filepath.Join(opt.OutDir, name+".pdf")
			if err := ExportPDF(pages, out, PDFOptions{IncludeGuides: guides, Title: name}); err != nil {
				return written, fmt.Errorf("pdf: %w", err)
			}
			written = append(written, out)
		default:
			return written, fmt.Errorf("unknown format: %s", f)
		}
	}
	lg.Info("proofs written", slog.Int("files", len(written)), slog.Int("masters", len(pages)))
	return written, nil
}

func presetDefaultFormats(p PresetName) []string {
	switch p {
	case PresetClean:
		return []string{"svg"}
	default:
		return []string{"svg", "pdf"}
	}
}

func presetIncludeGuides(p PresetName) bool {
	return p != PresetClean
}
