/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */


package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type EditorConfig struct {
	DefaultRatio       string `yaml:"default_ratio"`
	MaxBackgroundDim   int    `yaml:"max_background_dim"`
	HistoryCapacity    int    `yaml:"history_capacity"`
	SnapshotDebounceMs int    `yaml:"snapshot_debounce_ms"`
	AssetsDir          string `yaml:"assets_dir"`
	Catalog            string `yaml:"catalog"` // JSON list of key visuals
	ViewportWidth      int    `yaml:"viewport_width"`
	ViewportHeight     int    `yaml:"viewport_height"`
}

type StorageConfig struct {
	Backend     string `yaml:"backend"` // file | sqlite | redis | postgres
	Dir         string `yaml:"dir"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
	PostgresDSN string `yaml:"postgres_dsn"`
	// The backend password is not stored on disk; it lives in the OS keychain.
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Editor        EditorConfig  `yaml:"editor"`
	Storage       StorageConfig `yaml:"storage"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Editor: EditorConfig{
			DefaultRatio:       "1:1",
			MaxBackgroundDim:   900,
			HistoryCapacity:    3,
			SnapshotDebounceMs: 250,
			ViewportWidth:      1280,
			ViewportHeight:     800,
		},
		Storage: StorageConfig{Backend: "file", RedisAddr: "localhost:6379"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath = "KVL_CONFIG"

	EnvRatio            = "KVL_RATIO"
	EnvMaxBackgroundDim = "KVL_MAX_BACKGROUND_DIM"
	EnvHistoryCapacity  = "KVL_HISTORY_CAPACITY"
	EnvSnapshotDebounce = "KVL_SNAPSHOT_DEBOUNCE_MS"
	EnvAssetsDir        = "KVL_ASSETS_DIR"
	EnvCatalog          = "KVL_CATALOG"

	EnvStorageBackend = "KVL_STORAGE_BACKEND"
	EnvStorageDir     = "KVL_STORAGE_DIR"
	EnvRedisAddr      = "KVL_REDIS_ADDR"
	EnvRedisDB        = "KVL_REDIS_DB"
	EnvPostgresDSN    = "KVL_PG_DSN"
	// EnvStoragePassword wins over the keychain.
	EnvStoragePassword = "KVL_STORAGE_PASSWORD"

	EnvLogLevel  = "KVL_LOG_LEVEL"
	EnvLogFormat = "KVL_LOG_FORMAT"
	EnvLogSource = "KVL_LOG_SOURCE"
	EnvLogFile   = "KVL_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService  = "kvlayout"
	keyringPassword = "storage_password"
)

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigPath returns the per-user config file path. KVL_CONFIG overrides it.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	base, err := userDir(false)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.yaml"), nil
}

// DataDir is where the file and sqlite backends keep state by default.
func DataDir() (string, error) { return userDir(true) }

func userDir(data bool) (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "kvlayout")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "kvlayout")
	default:
		if data {
			base = filepath.Join(os.Getenv("HOME"), ".local", "share", "kvlayout")
		} else {
			base = filepath.Join(os.Getenv("HOME"), ".config", "kvlayout")
		}
	}
	if base == "" || base == "kvlayout" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// Load reads the user config file at ConfigPath. See LoadFrom.
func Load() (AppConfig, string, error) {
	path, err := ConfigPath()
	if err != nil {
		return Defaults(), "", err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config file at path (if present), applies defaults, and merges
// environment overrides. It also returns the storage password from the environment or
// the keychain; the password is never part of the struct.
func LoadFrom(path string) (AppConfig, string, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, "", fmt.Errorf("read %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	if cfg.Storage.Dir == "" {
		if d, err := DataDir(); err == nil {
			cfg.Storage.Dir = d
		}
	}
	if v := os.Getenv(EnvStoragePassword); v != "" {
		return cfg, v, nil
	}
	secret, _ := tokenStore.Get(keyringService, keyringPassword)
	return cfg, secret, nil
}

// Save writes the user config YAML to path and persists the password into the OS
// keyring (if non-empty).
func Save(path string, cfg AppConfig, password string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if password != "" {
		if err := tokenStore.Set(keyringService, keyringPassword, password); err != nil {
			return fmt.Errorf("store password: %w", err)
		}
	}
	return nil
}

// ForgetPassword removes the storage password from the keychain.
func ForgetPassword() error {
	err := tokenStore.Delete(keyringService, keyringPassword)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// editor
	e := src.Editor
	if s := strings.TrimSpace(e.DefaultRatio); s != "" {
		dst.Editor.DefaultRatio = s
	}
	if e.MaxBackgroundDim > 0 {
		dst.Editor.MaxBackgroundDim = e.MaxBackgroundDim
	}
	if e.HistoryCapacity > 0 {
		dst.Editor.HistoryCapacity = e.HistoryCapacity
	}
	if e.SnapshotDebounceMs > 0 {
		dst.Editor.SnapshotDebounceMs = e.SnapshotDebounceMs
	}
	if s := strings.TrimSpace(e.AssetsDir); s != "" {
		dst.Editor.AssetsDir = s
	}
	if s := strings.TrimSpace(e.Catalog); s != "" {
		dst.Editor.Catalog = s
	}
	if e.ViewportWidth > 0 {
		dst.Editor.ViewportWidth = e.ViewportWidth
	}
	if e.ViewportHeight > 0 {
		dst.Editor.ViewportHeight = e.ViewportHeight
	}
	// storage
	st := src.Storage
	if s := strings.TrimSpace(st.Backend); s != "" {
		dst.Storage.Backend = strings.ToLower(s)
	}
	if s := strings.TrimSpace(st.Dir); s != "" {
		dst.Storage.Dir = s
	}
	if s := strings.TrimSpace(st.RedisAddr); s != "" {
		dst.Storage.RedisAddr = s
	}
	dst.Storage.RedisDB = st.RedisDB
	if s := strings.TrimSpace(st.PostgresDSN); s != "" {
		dst.Storage.PostgresDSN = s
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func truthy(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func envInt(name string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = n
		}
	}
}

func envString(name string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	envString(EnvRatio, &cfg.Editor.DefaultRatio)
	envInt(EnvMaxBackgroundDim, &cfg.Editor.MaxBackgroundDim)
	envInt(EnvHistoryCapacity, &cfg.Editor.HistoryCapacity)
	envInt(EnvSnapshotDebounce, &cfg.Editor.SnapshotDebounceMs)
	envString(EnvAssetsDir, &cfg.Editor.AssetsDir)
	envString(EnvCatalog, &cfg.Editor.Catalog)

	if v := strings.TrimSpace(os.Getenv(EnvStorageBackend)); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	envString(EnvStorageDir, &cfg.Storage.Dir)
	envString(EnvRedisAddr, &cfg.Storage.RedisAddr)
	envInt(EnvRedisDB, &cfg.Storage.RedisDB)
	envString(EnvPostgresDSN, &cfg.Storage.PostgresDSN)

	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	envString(EnvLogFile, &cfg.Logging.File)
}

var envKeys = map[string]string{
	"editor.default_ratio":        EnvRatio,
	"editor.max_background_dim":   EnvMaxBackgroundDim,
	"editor.history_capacity":     EnvHistoryCapacity,
	"editor.snapshot_debounce_ms": EnvSnapshotDebounce,
	"editor.assets_dir":           EnvAssetsDir,
	"editor.catalog":              EnvCatalog,
	"storage.backend":             EnvStorageBackend,
	"storage.dir":                 EnvStorageDir,
	"storage.redis_addr":          EnvRedisAddr,
	"storage.redis_db":            EnvRedisDB,
	"storage.postgres_dsn":        EnvPostgresDSN,
	"logging.level":               EnvLogLevel,
	"logging.format":              EnvLogFormat,
	"logging.source":              EnvLogSource,
	"logging.file":                EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	name, ok := envKeys[key]
	if !ok || os.Getenv(name) == "" {
		return "", false
	}
	return name, true
}

// SnapshotDebounce is the history debounce as a duration.
func (e EditorConfig) SnapshotDebounce() time.Duration {
	if e.SnapshotDebounceMs <= 0 {
		return time.Duration(Defaults().Editor.SnapshotDebounceMs) * time.Millisecond
	}
	return time.Duration(e.SnapshotDebounceMs) * time.Millisecond
}
