// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Codec != "zstd" {
		t.Errorf("expected codec=zstd, got %s", cfg.Codec)
	}
	if cfg.ArchiveIndex != AutoArchiveIndex {
		t.Errorf("expected archive_index=%d, got %d", AutoArchiveIndex, cfg.ArchiveIndex)
	}
	if !cfg.PatchAudio || !cfg.VerifyChecksums {
		t.Error("expected patch_audio and verify_checksums to default to true")
	}
	if cfg.Transcode.Enabled {
		t.Error("expected transcoding to be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_WithoutPathUsesDefault(t *testing.T) {
	t.Setenv(EnvVar, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Codec != "zstd" {
		t.Errorf("expected default codec, got %s", cfg.Codec)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vpk.yaml")
	content := `
codec: lz4
workers: 3
archive_index: 42
log_level: debug
transcode:
  enabled: true
  bitrate: 96k
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv(EnvVar, path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Codec != "lz4" {
		t.Errorf("expected codec=lz4, got %s", cfg.Codec)
	}
	if cfg.Workers != 3 {
		t.Errorf("expected workers=3, got %d", cfg.Workers)
	}
	if cfg.ArchiveIndex != 42 {
		t.Errorf("expected archive_index=42, got %d", cfg.ArchiveIndex)
	}
	if !cfg.Transcode.Enabled || cfg.Transcode.Bitrate != "96k" {
		t.Errorf("unexpected transcode config: %+v", cfg.Transcode)
	}
	// Unset keys keep their defaults.
	if cfg.Transcode.Format != "ogg" {
		t.Errorf("expected format=ogg, got %s", cfg.Transcode.Format)
	}
	if !cfg.VerifyChecksums {
		t.Error("expected verify_checksums to keep its default")
	}

	level, err := cfg.Level()
	if err != nil {
		t.Fatalf("Level() failed: %v", err)
	}
	if level != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", level)
	}
}

func TestLoad_ExplicitPathWins(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "env.yaml")
	flagPath := filepath.Join(dir, "flag.yaml")
	if err := os.WriteFile(envPath, []byte("codec: lz4\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(flagPath, []byte("codec: none\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvVar, envPath)

	cfg, err := Load(flagPath)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Codec != "none" {
		t.Errorf("expected codec=none, got %s", cfg.Codec)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"unknown codec", func(c *Config) { c.Codec = "lzma" }, "invalid codec"},
		{"no workers", func(c *Config) { c.Workers = 0 }, "workers must be at least 1"},
		{"reserved archive index", func(c *Config) { c.ArchiveIndex = 0x7FFF }, "archive_index"},
		{"negative archive index", func(c *Config) { c.ArchiveIndex = -2 }, "archive_index"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "invalid log_level"},
		{"transcode without ffmpeg", func(c *Config) {
			c.Transcode.Enabled = true
			c.Transcode.FFmpeg = ""
		}, "transcode.ffmpeg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err)
			}
		})
	}
}
