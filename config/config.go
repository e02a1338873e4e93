// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads hitsave settings from ~/.hitsave/hitsave.yaml
// with HITSAVE_* environment variable overrides. Env wins over file,
// file wins over defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds every user-tunable setting of the client.
type Config struct {
	// Dir is where the local store and other state live.
	// Env: HITSAVE_DIR. Default: ~/.hitsave
	Dir string `yaml:"dir"`

	// NoLocal disables the persistent local store; results are held in
	// process memory only. Env: HITSAVE_NO_LOCAL.
	NoLocal bool `yaml:"no_local"`

	// VersionSensitivity controls how external package upgrades
	// invalidate cached results: "none", "major", "minor" or "patch".
	// Env: HITSAVE_VERSION_SENSITIVITY. Default: minor.
	VersionSensitivity string `yaml:"version_sensitivity"`

	// WatchSources enables the source watcher that invalidates
	// dependency caches when watched Go files change.
	// Env: HITSAVE_WATCH_SOURCES.
	WatchSources bool `yaml:"watch_sources"`

	// DebugMode propagates internal errors instead of failing open.
	// Env: HITSAVE_DEBUG.
	DebugMode bool `yaml:"debug_mode"`

	// LogLevel is "debug", "info", "warn" or "error".
	// Env: HITSAVE_LOG_LEVEL. Default: info.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file or env is
// present.
func Default() Config {
	dir := ".hitsave"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".hitsave")
	}
	return Config{
		Dir:                dir,
		VersionSensitivity: "minor",
		LogLevel:           "info",
	}
}

// Load reads the config file under the hitsave directory, creating a
// default one on first run, then applies environment overrides.
func Load() (Config, error) {
	cfg := Default()
	path := filepath.Join(cfg.Dir, "hitsave.yaml")
	if v := os.Getenv("HITSAVE_DIR"); v != "" {
		path = filepath.Join(v, "hitsave.yaml")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path, cfg); err != nil {
			// First-run file creation is best effort; defaults still
			// apply.
			cfg.applyEnv()
			return cfg, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		cfg.applyEnv()
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

func writeDefault(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) applyEnv() {
	if v := os.Getenv("HITSAVE_DIR"); v != "" {
		c.Dir = v
	}
	if v := os.Getenv("HITSAVE_NO_LOCAL"); v != "" {
		c.NoLocal = parseBool(v, c.NoLocal)
	}
	if v := os.Getenv("HITSAVE_VERSION_SENSITIVITY"); v != "" {
		c.VersionSensitivity = v
	}
	if v := os.Getenv("HITSAVE_WATCH_SOURCES"); v != "" {
		c.WatchSources = parseBool(v, c.WatchSources)
	}
	if v := os.Getenv("HITSAVE_DEBUG"); v != "" {
		c.DebugMode = parseBool(v, c.DebugMode)
	}
	if v := os.Getenv("HITSAVE_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}
