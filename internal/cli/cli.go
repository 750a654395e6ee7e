/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


// Package cli wires the layout engine to a command line: each command opens the
// project's session, applies one operation, and closes it again so state and history are
// persisted between invocations.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"kvlayout/internal/assets"
	"kvlayout/internal/composition"
	"kvlayout/internal/config"
	"kvlayout/internal/crash"
	"kvlayout/internal/history"
	applog "kvlayout/internal/log"
	"kvlayout/internal/session"
	"kvlayout/internal/storage"
	"kvlayout/internal/version"
)

// globalOpts are the persistent flags shared by every command.
type globalOpts struct {
	configPath string
	project    string
	catalog    string
	assetsDir  string
	backend    string
	storeDir   string
	layoutFile string // server-provided record handed over as a file
	layoutsDSN string // server-provided records in Postgres
	ratio      string
	verbose    bool
}

// App holds the resolved configuration for one invocation.
type App struct {
	opts   globalOpts
	cfg    config.AppConfig
	secret string
	log    *slog.Logger
}

// Execute runs the CLI with args and returns the first command error.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	app := &App{}
	root := &cobra.Command{
		Use:           "kvlayout",
		Short:         "Lay out key-visual compositions against an aspect-ratio guide",
		Long:          "kvlayout edits a key-visual composition: background, text layers, images and shapes placed in guide-relative coordinates, with a small undo history persisted per project.",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd)
		},
	}
	f := root.PersistentFlags()
	f.StringVar(&app.opts.configPath, "config", "", "config file (default: per-user config dir, or $"+config.EnvConfigPath+")")
	f.StringVarP(&app.opts.project, "project", "p", storage.DefaultProject, "project id")
	f.StringVar(&app.opts.catalog, "catalog", "", "key-visual catalog JSON")
	f.StringVar(&app.opts.assetsDir, "assets", "", "directory relative asset URLs resolve against")
	f.StringVar(&app.opts.backend, "backend", "", "state backend: file, sqlite, redis or postgres")
	f.StringVar(&app.opts.storeDir, "store-dir", "", "state directory for the file and sqlite backends")
	f.StringVar(&app.opts.layoutFile, "layout", "", "server-provided layout record (JSON); wins over saved state")
	f.StringVar(&app.opts.layoutsDSN, "layouts-dsn", "", "Postgres DSN holding server-provided layouts")
	f.StringVar(&app.opts.ratio, "ratio", "", "guide ratio for new projects, e.g. 4:5")
	f.BoolVarP(&app.opts.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newVersionCmd(),
		newCatalogCmd(app),
		newShowCmd(app),
		newFormCmd(app),
		newHistoryCmd(app),
		newOpenCmd(app),
		newRatioCmd(app),
		newTextCmd(app),
		newCopySetCmd(app),
		newDefaultsCmd(app),
		newFontScaleCmd(app),
		newBackdropCmd(app),
		newShapeCmd(app),
		newImageCmd(app),
		newMoveCmd(app),
		newResizeCmd(app),
		newDeleteCmd(app),
		newDuplicateCmd(app),
		newReorderCmd(app),
		newUndoCmd(app),
		newExportCmd(app),
	)
	return root
}

// setup loads config, applies flag overrides and initializes logging.
func (a *App) setup(cmd *cobra.Command) error {
	var (
		cfg    config.AppConfig
		secret string
		err    error
	)
	if a.opts.configPath != "" {
		cfg, secret, err = config.LoadFrom(a.opts.configPath)
	} else {
		cfg, secret, err = config.Load()
	}
	if err != nil {
		return err
	}
	if a.opts.catalog != "" {
		cfg.Editor.Catalog = a.opts.catalog
	}
	if a.opts.assetsDir != "" {
		cfg.Editor.AssetsDir = a.opts.assetsDir
	}
	if a.opts.backend != "" {
		cfg.Storage.Backend = strings.ToLower(a.opts.backend)
	}
	if a.opts.storeDir != "" {
		cfg.Storage.Dir = a.opts.storeDir
	}
	if a.opts.ratio != "" {
		cfg.Editor.DefaultRatio = a.opts.ratio
	}
	level := cfg.Logging.Level
	if a.opts.verbose {
		level = "debug"
	}
	applog.Init(applog.Options{
		Level:     level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.Source,
		File:      cfg.Logging.File,
		Writer:    cmd.ErrOrStderr(),
	})
	a.cfg, a.secret = cfg, secret
	a.log = applog.WithComponent("cli")
	a.log.Debug("config resolved", slog.String("backend", cfg.Storage.Backend), slog.String("dir", cfg.Storage.Dir))
	return nil
}

func (a *App) catalog() (*assets.Catalog, error) {
	if a.cfg.Editor.Catalog == "" {
		return assets.NewCatalog(nil), nil
	}
	return assets.LoadCatalog(a.cfg.Editor.Catalog)
}

// assetRoot resolves relative asset URLs: the configured assets dir, else the
// catalog's directory.
func (a *App) assetRoot() string {
	if a.cfg.Editor.AssetsDir != "" {
		return a.cfg.Editor.AssetsDir
	}
	if a.cfg.Editor.Catalog != "" {
		return filepath.Dir(a.cfg.Editor.Catalog)
	}
	return ""
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	st := a.cfg.Storage
	return storage.Open(ctx, storage.Options{
		Backend:       st.Backend,
		Dir:           st.Dir,
		RedisAddr:     st.RedisAddr,
		RedisDB:       st.RedisDB,
		RedisPassword: a.secret,
		PostgresDSN:   withPassword(st.PostgresDSN, a.secret),
	})
}

// fileLayout serves one record file as the server-provided layout.
type fileLayout string

func (f fileLayout) Load(context.Context, string) (composition.Record, error) {
	return storage.ReadRecordFile(string(f))
}

// layouts returns the server layout source, if any, and a closer for it.
func (a *App) layouts(ctx context.Context) (session.LayoutSource, func() error, error) {
	switch {
	case a.opts.layoutFile != "":
		return fileLayout(a.opts.layoutFile), func() error { return nil }, nil
	case a.opts.layoutsDSN != "":
		pg, err := storage.OpenPostgres(ctx, withPassword(a.opts.layoutsDSN, a.secret))
		if err != nil {
			return nil, nil, fmt.Errorf("open server layouts: %w", err)
		}
		return pg, pg.Close, nil
	}
	return nil, func() error { return nil }, nil
}

// withSession opens the project, runs fn, and closes the session so state and history
// are persisted. A panic inside fn still autosaves.
func (a *App) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session.Session) error) (err error) {
	ctx := applog.WithProject(cmd.Context(), a.opts.project)
	cat, err := a.catalog()
	if err != nil {
		a.log.Warn("catalog unavailable", slog.Any("err", err))
		cat = assets.NewCatalog(nil)
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			a.log.Warn("close store", slog.Any("err", cerr))
		}
	}()
	layouts, closeLayouts, err := a.layouts(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closeLayouts() }()

	ed := a.cfg.Editor
	sess, err := session.New(session.Options{
		Project:          a.opts.project,
		Store:            store,
		Layouts:          layouts,
		Catalog:          cat,
		Source:           assets.NewSource(a.assetRoot()),
		Ratio:            ed.DefaultRatio,
		MaxBackgroundDim: float64(ed.MaxBackgroundDim),
		ViewportWidth:    float64(ed.ViewportWidth),
		ViewportHeight:   float64(ed.ViewportHeight),
		History:          history.Config{Capacity: ed.HistoryCapacity, Debounce: ed.SnapshotDebounce()},
	})
	if err != nil {
		return err
	}
	if err := sess.Open(ctx, ""); err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	defer crash.Recover(a.crashDir(), sess)
	return fn(ctx, sess)
}

func (a *App) crashDir() string {
	if a.cfg.Storage.Dir == "" {
		return ""
	}
	return filepath.Join(a.cfg.Storage.Dir, "crash")
}

// withPassword adds password to a Postgres DSN that does not carry one.
func withPassword(dsn, password string) string {
	if dsn == "" || password == "" {
		return dsn
	}
	if u, err := url.Parse(dsn); err == nil && (u.Scheme == "postgres" || u.Scheme == "postgresql") {
		if u.User == nil {
			return dsn
		}
		if _, set := u.User.Password(); !set {
			u.User = url.UserPassword(u.User.Username(), password)
		}
		return u.String()
	}
	if strings.Contains(dsn, "password=") {
		return dsn
	}
	return dsn + " password='" + strings.ReplaceAll(password, "'", `\'`) + "'"
}

// resolveID accepts a full entity id or a unique prefix of one.
func resolveID(s *session.Session, ref string) (string, error) {
	if _, ok := s.Entity(ref); ok {
		return ref, nil
	}
	var match string
	for _, e := range s.Layers() {
		if strings.HasPrefix(e.EntityID(), ref) {
			if match != "" {
				return "", fmt.Errorf("ambiguous id %q", ref)
			}
			match = e.EntityID()
		}
	}
	if match == "" || ref == "" {
		return "", fmt.Errorf("%w: %q", session.ErrUnknownEntity, ref)
	}
	return match, nil
}
