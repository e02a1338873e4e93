// Copyright (C) 2025 HitSave (support@hitsave.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.VersionSensitivity != "minor" {
		t.Errorf("VersionSensitivity = %q", cfg.VersionSensitivity)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Dir == "" {
		t.Error("Dir is empty")
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HITSAVE_DIR", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Dir != dir {
		t.Errorf("Dir = %q, want %q", cfg.Dir, dir)
	}
	if _, err := os.Stat(filepath.Join(dir, "hitsave.yaml")); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HITSAVE_DIR", dir)
	file := "version_sensitivity: major\nlog_level: debug\nno_local: true\n"
	if err := os.WriteFile(filepath.Join(dir, "hitsave.yaml"), []byte(file), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VersionSensitivity != "major" {
		t.Errorf("VersionSensitivity = %q", cfg.VersionSensitivity)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if !cfg.NoLocal {
		t.Error("NoLocal not read from file")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HITSAVE_DIR", dir)
	file := "version_sensitivity: major\ndebug_mode: false\n"
	if err := os.WriteFile(filepath.Join(dir, "hitsave.yaml"), []byte(file), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HITSAVE_VERSION_SENSITIVITY", "patch")
	t.Setenv("HITSAVE_DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VersionSensitivity != "patch" {
		t.Errorf("VersionSensitivity = %q, env should win", cfg.VersionSensitivity)
	}
	if !cfg.DebugMode {
		t.Error("DebugMode env override ignored")
	}
}

func TestBadBoolEnvFallsBack(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HITSAVE_DIR", dir)
	t.Setenv("HITSAVE_NO_LOCAL", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.NoLocal {
		t.Error("unparsable bool should keep the previous value")
	}
}
