/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kvlayout/internal/composition"
	"kvlayout/internal/export"
	"kvlayout/internal/geometry"
	"kvlayout/internal/scene"
	"kvlayout/internal/session"
	"kvlayout/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "kvlayout %s\n", version.String())
			return err
		},
	}
}

func newCatalogCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the key visuals in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cat, err := app.catalog()
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLABEL\tURL")
			for _, kv := range cat.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", kv.ID, kv.DisplayName(), kv.URL)
			}
			return tw.Flush()
		},
	}
}

func newShowCmd(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the composition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withSession(cmd, func(_ context.Context, s *session.Session) error {
				if asJSON {
					data, err := composition.Encode(s.Record())
					if err != nil {
						return err
					}
					_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
					return err
				}
				return printSummary(cmd.OutOrStdout(), s)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stored record as JSON")
	return cmd
}

func printSummary(w io.Writer, s *session.Session) error {
	g := s.Geometry()
	n, idx, size := s.HistoryStats()
	rec := s.Record()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "project\t%s\n", s.Project())
	fmt.Fprintf(tw, "background\t%s\t%s\n", rec.KVAssetID, s.Status())
	fmt.Fprintf(tw, "ratio\t%s\n", g.Ratio)
	fmt.Fprintf(tw, "guide\t%s\n", fmtRect(g.Guide))
	fmt.Fprintf(tw, "canvas\t%gx%g\n", g.Canvas.W, g.Canvas.H)
	fmt.Fprintf(tw, "history\t%d/%d\t%d bytes\n", idx+1, n, size)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ID\tROLE\tBOX\tDETAIL")
	for _, e := range s.Layers() {
		box := "-"
		if !g.Guide.Empty() {
			b := geometry.ToNormalized(e.Bounds(), g.Guide)
			box = fmt.Sprintf("%.3f,%.3f %.3fx%.3f", b.X, b.Y, b.W, b.H)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", shortID(e.EntityID()), e.Role(), box, detail(e))
	}
	return tw.Flush()
}

func detail(e scene.Entity) string {
	switch v := e.(type) {
	case *scene.Background:
		return v.AssetID
	case *scene.TextLayer:
		return fmt.Sprintf("%q %.0fpx %s", v.Text, v.FontSize.Px, v.Fill)
	case *scene.ImageElement:
		return fmt.Sprintf("%s opacity %.2f", v.URL, v.Opacity)
	case *scene.Shape:
		return fmt.Sprintf("%s %s opacity %.2f", v.Type, v.Fill, v.Opacity)
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func fmtRect(r geometry.Rect) string {
	return fmt.Sprintf("%g,%g %gx%g", r.Left, r.Top, r.Width, r.Height)
}

func newFormCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "form",
		Short: "Print the fields submitted to the preview/export form",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withSession(cmd, func(_ context.Context, s *session.Session) error {
				v, err := s.FormFields()
				if err != nil {
					return err
				}
				keys := make([]string, 0, len(v))
				for k := range v {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				for _, k := range keys {
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", k, v.Get(k)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newHistoryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show undo history state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withSession(cmd, func(_ context.Context, s *session.Session) error {
				n, idx, size := s.HistoryStats()
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "entries=%d index=%d bytes=%d undo=%t\n", n, idx, size, s.CanUndo())
				return err
			})
		},
	}
}

func newOpenCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "open <kv-id>",
		Short: "Set the background key visual",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				if err := s.SetBackground(ctx, args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), s.Status())
				return err
			})
		},
	}
}

func newRatioCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "ratio <W:H>",
		Short: "Change the guide ratio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				if err := s.SetRatio(ctx, args[0]); err != nil {
					return err
				}
				g := s.Geometry()
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s guide %s\n", g.Ratio, fmtRect(g.Guide))
				return err
			})
		},
	}
}

func newTextCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{Use: "text", Short: "Edit text layers"}

	insert := &cobra.Command{
		Use:   "insert <text>",
		Short: "Insert a text layer at the default box",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				id, err := s.InsertText(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
				return err
			})
		},
	}

	set := &cobra.Command{
		Use:   "set <id> <text>",
		Short: "Replace a layer's text",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}
				return s.SetText(ctx, id, args[1])
			})
		},
	}

	var st session.TextStyle
	style := &cobra.Command{
		Use:   "style <id>",
		Short: "Change a layer's font, color, alignment or size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}
				return s.SetTextStyle(ctx, id, st)
			})
		},
	}
	style.Flags().StringVar(&st.FontFamily, "font", "", "font family")
	style.Flags().StringVar(&st.Fill, "color", "", "text color")
	style.Flags().StringVar(&st.Align, "align", "", "left, center or right")
	style.Flags().Float64Var(&st.FontPx, "size", 0, "font size in pixels at the current guide width")

	norm := &cobra.Command{
		Use:   "normalize",
		Short: "Fold pending text scale into width and font size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				n, err := s.NormalizeScale(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d layers normalized\n", n)
				return err
			})
		},
	}
	cmd.AddCommand(insert, set, style, norm)
	return cmd
}

func newCopySetCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "copyset <headline> <subhead> <cta>",
		Short: "Fill the headline, subhead and call to action layers",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				ids, err := s.ApplyCopySet(ctx, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(ids, " "))
				return err
			})
		},
	}
}

func newDefaultsCmd(app *App) *cobra.Command {
	var st composition.Style
	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Set the global font, color and alignment for every text layer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				return s.SetDefaults(ctx, st)
			})
		},
	}
	cmd.Flags().StringVar(&st.FontFamily, "font", "", "font family")
	cmd.Flags().StringVar(&st.TextColor, "color", "", "text color")
	cmd.Flags().StringVar(&st.TextAlign, "align", "", "left, center or right")
	return cmd
}

func newFontScaleCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "fontscale <scale>",
		Short: "Scale every text layer relative to the previous global font scale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("scale: %w", err)
			}
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				return s.SetFontScale(ctx, v)
			})
		},
	}
}

func newBackdropCmd(app *App) *cobra.Command {
	var (
		bd   session.BackdropStyle
		none bool
	)
	cmd := &cobra.Command{
		Use:     "backdrop <id>",
		Aliases: []string{"background"},
		Short:   "Give a text layer a backdrop, or remove it with --none",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}
				if none {
					return s.SetTextBackground(ctx, id, nil)
				}
				return s.SetTextBackground(ctx, id, &bd)
			})
		},
	}
	cmd.Flags().StringVar(&bd.Color, "color", "#000000", "backdrop color")
	cmd.Flags().Float64Var(&bd.Opacity, "opacity", 0.5, "backdrop opacity 0..1")
	cmd.Flags().Float64Var(&bd.RadiusPx, "radius", 8, "corner radius in pixels")
	cmd.Flags().Float64Var(&bd.PaddingPx, "padding", 12, "padding in pixels")
	cmd.Flags().BoolVar(&none, "none", false, "remove the backdrop")
	return cmd
}

func newShapeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{Use: "shape", Short: "Add and style shapes"}

	var fill string
	add := &cobra.Command{
		Use:   "add <rect|circle|triangle|star>",
		Short: "Insert a shape centred in the guide",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				id, err := s.AddShape(ctx, scene.ShapeType(strings.ToLower(args[0])), fill)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
				return err
			})
		},
	}
	add.Flags().StringVar(&fill, "fill", "", "fill color")

	var (
		styleFill string
		opacity   float64
	)
	style := &cobra.Command{
		Use:   "style <id>",
		Short: "Change a shape's fill or the opacity of a shape or image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var op *float64
			if cmd.Flags().Changed("opacity") {
				op = &opacity
			}
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}
				return s.SetShapeStyle(ctx, id, styleFill, op)
			})
		},
	}
	style.Flags().StringVar(&styleFill, "fill", "", "fill color")
	style.Flags().Float64Var(&opacity, "opacity", 1, "opacity 0..1")

	cmd.AddCommand(add, style)
	return cmd
}

func newImageCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{Use: "image", Short: "Insert asset images"}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <asset-id> <url>",
		Short: "Insert an image centred in the guide",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				id, err := s.AddImage(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
				return err
			})
		},
	})
	return cmd
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

func newMoveCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <left> <top>",
		Short: "Drag an entity to canvas pixel position left,top",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := parseFloats(args[1:])
			if err != nil {
				return err
			}
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}
				r, err := s.Move(ctx, id, pos[0], pos[1])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), fmtRect(r))
				return err
			})
		},
	}
}

func newResizeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "resize <id> <sx> <sy>",
		Short: "Scale an entity about its top-left corner",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFloats(args[1:])
			if err != nil {
				return err
			}
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}
				return s.Resize(ctx, id, f[0], f[1])
			})
		},
	}
}

func newDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}
				return s.Delete(ctx, id)
			})
		},
	}
}

func newDuplicateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "duplicate <id>",
		Short: "Duplicate an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}
				nid, err := s.Duplicate(ctx, id)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), nid)
				return err
			})
		},
	}
}

func newReorderCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:       "reorder <id> <forward|backward|front|back>",
		Short:     "Change an entity's stacking order",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"forward", "backward", "front", "back"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				id, err := resolveID(s, args[0])
				if err != nil {
					return err
				}
				moved, err := s.Reorder(ctx, id, session.Order(strings.ToLower(args[1])))
				if err != nil {
					return err
				}
				if !moved {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), "unchanged")
				}
				return err
			})
		},
	}
}

func newUndoCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Step back one history entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.withSession(cmd, func(ctx context.Context, s *session.Session) error {
				ok, err := s.Undo(ctx)
				if err != nil {
					return err
				}
				if !ok {
					_, err = fmt.Fprintln(cmd.OutOrStdout(), "nothing to undo")
				}
				return err
			})
		},
	}
}

func newExportCmd(app *App) *cobra.Command {
	var (
		opt      export.BatchOptions
		preset   string
		noGuides bool
	)
	cmd := &cobra.Command{
		Use:   "export [svg|pdf]...",
		Short: "Write layout proofs at master size",
		Long:  "Writes vector layout proofs of the composition at the master size for each ratio: 1:1 1080x1080, 4:5 1080x1350, 9:16 1080x1920.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opt.Formats = args
			opt.Preset = export.PresetName(preset)
			if cmd.Flags().Changed("no-guides") {
				g := !noGuides
				opt.IncludeGuides = &g
			}
			if opt.Name == "" {
				opt.Name = app.opts.project
			}
			return app.withSession(cmd, func(_ context.Context, s *session.Session) error {
				files, err := export.Batch(s.Record(), opt)
				for _, f := range files {
					fmt.Fprintln(cmd.OutOrStdout(), f)
				}
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&opt.Ratios, "ratios", nil, "master ratios to export (default: the composition's ratio)")
	cmd.Flags().StringVarP(&opt.OutDir, "out", "o", ".", "output directory")
	cmd.Flags().StringVar(&opt.Name, "name", "", "file name stem (default: project id)")
	cmd.Flags().StringVar(&preset, "preset", string(export.PresetReview), "review or clean")
	cmd.Flags().BoolVar(&noGuides, "no-guides", false, "omit the guide outline")
	return cmd
}
