/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package config loads the user configuration: a YAML file in the user scope,
// environment overrides prefixed LST_, and the upload token kept in the OS
// keychain rather than on disk.
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

	"gopkg.in/yaml.v3"
)

type EditorConfig struct {
	UndoDepth      int `yaml:"undo_depth"`
	MaxTemplates   int `yaml:"max_templates"`
	JPEGQuality    int `yaml:"jpeg_quality"`
	PreviewMaxSide int `yaml:"preview_max_side"`
}

type StorageConfig struct {
	Driver          string `yaml:"driver"` // "sqlite" | "pgx"
	DSN             string `yaml:"dsn"`
	PreviewsMaxByte int64  `yaml:"previews_max_bytes"`
}

type UploadConfig struct {
	Mode      string `yaml:"mode"` // "dir" | "http"
	BaseURL   string `yaml:"base_url"`
	Dir       string `yaml:"dir"`
	TimeoutMs int    `yaml:"timeout_ms"`
	// The bearer token lives in the OS keychain.
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
	Upload        UploadConfig  `yaml:"upload"`
	Logging       LoggingConfig `yaml:"logging"`
}

func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Editor:        EditorConfig{UndoDepth: 100, MaxTemplates: 20, JPEGQuality: 95, PreviewMaxSide: 1024},
		Storage:       StorageConfig{Driver: "sqlite", PreviewsMaxByte: 64 << 20},
		Upload:        UploadConfig{Mode: "dir", TimeoutMs: 30000},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
	}
}

const (
	EnvConfigFile     = "LST_CONFIG"
	EnvUndoDepth      = "LST_UNDO_DEPTH"
	EnvMaxTemplates   = "LST_MAX_TEMPLATES"
	EnvJPEGQuality    = "LST_JPEG_QUALITY"
	EnvPreviewMaxSide = "LST_PREVIEW_MAX_SIDE"
	EnvStorageDriver  = "LST_STORAGE_DRIVER"
	EnvStorageDSN     = "LST_STORAGE_DSN"
	EnvUploadMode     = "LST_UPLOAD_MODE"
	EnvUploadURL      = "LST_UPLOAD_URL"
	EnvUploadDir      = "LST_UPLOAD_DIR"
	EnvUploadTimeout  = "LST_UPLOAD_TIMEOUT_MS"
	EnvLogLevel       = "LST_LOG_LEVEL"
	EnvLogFormat      = "LST_LOG_FORMAT"
	EnvLogSource      = "LST_LOG_SOURCE"
	EnvLogFile        = "LST_LOG_FILE"
)

// ConfigPath returns the per-user config file path. LST_CONFIG wins when set.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	base, err := userDir(os.Getenv("XDG_CONFIG_HOME"), ".config")
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "config.yaml"), nil
}

// DataDir is where the default sqlite database and uploads live.
func DataDir() (string, error) {
	return userDir(os.Getenv("XDG_DATA_HOME"), filepath.Join(".local", "share"))
}

func userDir(xdg, homeRel string) (string, error) {
	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		return filepath.Join(base, "ListingStudio"), nil
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "ListingStudio"), nil
	}
	if xdg != "" {
		return filepath.Join(xdg, "listingstudio"), nil
	}
	home := os.Getenv("HOME")
	if home == "" {
		return "", errors.New("cannot resolve user directory: HOME is not set")
	}
	return filepath.Join(home, homeRel, "listingstudio"), nil
}

// Load reads the config file at ConfigPath (a missing file is not an error),
// merges it over the defaults and applies env overrides.
func Load() (AppConfig, error) {
	path, err := ConfigPath()
	if err != nil {
		cfg := Defaults()
		applyEnvOverrides(&cfg)
		return cfg, err
	}
	return LoadFile(path)
}

func LoadFile(path string) (AppConfig, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			applyEnvOverrides(&cfg)
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		applyEnvOverrides(&cfg)
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return cfg, cfg.Validate()
}

// Save writes cfg as YAML to ConfigPath.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(path, cfg)
}

func SaveFile(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (c AppConfig) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "sqlite", "pgx":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q: want sqlite or pgx", c.Storage.Driver))
	}
	switch c.Upload.Mode {
	case "dir":
	case "http":
		if strings.TrimSpace(c.Upload.BaseURL) == "" {
			errs = append(errs, errors.New("upload.base_url is required in http mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("upload.mode %q: want dir or http", c.Upload.Mode))
	}
	if q := c.Editor.JPEGQuality; q < 1 || q > 100 {
		errs = append(errs, fmt.Errorf("editor.jpeg_quality %d out of range 1..100", q))
	}
	if c.Editor.UndoDepth < 0 || c.Editor.MaxTemplates < 1 {
		errs = append(errs, errors.New("editor.undo_depth must be >= 0 and editor.max_templates >= 1"))
	}
	return errors.Join(errs...)
}

func (u UploadConfig) Timeout() time.Duration {
	if u.TimeoutMs <= 0 {
		return time.Duration(Defaults().Upload.TimeoutMs) * time.Millisecond
	}
	return time.Duration(u.TimeoutMs) * time.Millisecond
}

func mergeInto(dst, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// Non-positive numbers in the file mean "keep the default".
	if src.Editor.UndoDepth > 0 {
		dst.Editor.UndoDepth = src.Editor.UndoDepth
	}
	if src.Editor.MaxTemplates > 0 {
		dst.Editor.MaxTemplates = src.Editor.MaxTemplates
	}
	if src.Editor.JPEGQuality != 0 {
		dst.Editor.JPEGQuality = src.Editor.JPEGQuality
	}
	if src.Editor.PreviewMaxSide > 0 {
		dst.Editor.PreviewMaxSide = src.Editor.PreviewMaxSide
	}
	if v := norm(src.Storage.Driver); v != "" {
		dst.Storage.Driver = v
	}
	if v := strings.TrimSpace(src.Storage.DSN); v != "" {
		dst.Storage.DSN = v
	}
	if src.Storage.PreviewsMaxByte > 0 {
		dst.Storage.PreviewsMaxByte = src.Storage.PreviewsMaxByte
	}
	if v := norm(src.Upload.Mode); v != "" {
		dst.Upload.Mode = v
	}
	if v := strings.TrimSpace(src.Upload.BaseURL); v != "" {
		dst.Upload.BaseURL = v
	}
	if v := strings.TrimSpace(src.Upload.Dir); v != "" {
		dst.Upload.Dir = v
	}
	if src.Upload.TimeoutMs != 0 {
		dst.Upload.TimeoutMs = src.Upload.TimeoutMs
	}
	if v := norm(src.Logging.Level); v != "" {
		dst.Logging.Level = v
	}
	if v := norm(src.Logging.Format); v != "" {
		dst.Logging.Format = v
	}
	dst.Logging.Source = src.Logging.Source
	if v := strings.TrimSpace(src.Logging.File); v != "" {
		dst.Logging.File = v
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	envInt(EnvUndoDepth, &cfg.Editor.UndoDepth)
	envInt(EnvMaxTemplates, &cfg.Editor.MaxTemplates)
	envInt(EnvJPEGQuality, &cfg.Editor.JPEGQuality)
	envInt(EnvPreviewMaxSide, &cfg.Editor.PreviewMaxSide)
	if v := norm(os.Getenv(EnvStorageDriver)); v != "" {
		cfg.Storage.Driver = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageDSN)); v != "" {
		cfg.Storage.DSN = v
	}
	if v := norm(os.Getenv(EnvUploadMode)); v != "" {
		cfg.Upload.Mode = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvUploadURL)); v != "" {
		cfg.Upload.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvUploadDir)); v != "" {
		cfg.Upload.Dir = v
	}
	envInt(EnvUploadTimeout, &cfg.Upload.TimeoutMs)
	if v := norm(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = v
	}
	if v := norm(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = v
	}
	if v := norm(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = truthy(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor reports which env var, if any, overrides the dotted config key.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := envKeys[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

var envKeys = map[string]string{
	"editor.undo_depth":       EnvUndoDepth,
	"editor.max_templates":    EnvMaxTemplates,
	"editor.jpeg_quality":     EnvJPEGQuality,
	"editor.preview_max_side": EnvPreviewMaxSide,
	"storage.driver":          EnvStorageDriver,
	"storage.dsn":             EnvStorageDSN,
	"upload.mode":             EnvUploadMode,
	"upload.base_url":         EnvUploadURL,
	"upload.dir":              EnvUploadDir,
	"upload.timeout_ms":       EnvUploadTimeout,
	"logging.level":           EnvLogLevel,
	"logging.format":          EnvLogFormat,
	"logging.source":          EnvLogSource,
	"logging.file":            EnvLogFile,
}

func envInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func truthy(v string) bool {
	switch norm(v) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
