// Copyright (c) 2025 suprsokr
// SPDX-License-Identifier: MIT

// Package config loads the vpk command configuration.
//
// Configuration is read from the file named by the --config flag or the
// VPK_CONFIG environment variable, over the values returned by Default.
// Flags given on the command line override the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable holding the config file path.
const EnvVar = "VPK_CONFIG"

// maxArchiveIndex is the first index with a reserved meaning.
const maxArchiveIndex = 0x7FFF

// AutoArchiveIndex leaves the archive number to the library: 999 when
// packing, the first free number when patching.
const AutoArchiveIndex = -1

// Config is the vpk command configuration.
type Config struct {
	// Codec is the block codec: zstd, lz4 or none.
	Codec string `yaml:"codec"`

	// Workers is the extraction pool size.
	Workers int `yaml:"workers"`

	// ArchiveIndex is the archive newly packed parts are written to, or
	// AutoArchiveIndex.
	ArchiveIndex int `yaml:"archive_index"`

	// PatchAudio rebuilds wav headers on extraction.
	PatchAudio bool `yaml:"patch_audio"`

	// VerifyChecksums checks the CRC-32 of every non-audio file read.
	VerifyChecksums bool `yaml:"verify_checksums"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// Transcode configures audio transcoding on extraction.
	Transcode TranscodeConfig `yaml:"transcode"`
}

// TranscodeConfig configures the ffmpeg transcoder.
type TranscodeConfig struct {
	Enabled bool   `yaml:"enabled"`
	FFmpeg  string `yaml:"ffmpeg"`
	Format  string `yaml:"format"`
	Bitrate string `yaml:"bitrate"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Codec:           "zstd",
		Workers:         runtime.NumCPU(),
		ArchiveIndex:    AutoArchiveIndex,
		PatchAudio:      true,
		VerifyChecksums: true,
		LogLevel:        "info",
		Transcode: TranscodeConfig{
			FFmpeg:  "ffmpeg",
			Format:  "ogg",
			Bitrate: "160k",
		},
	}
}

// Load loads the file named by path, or by VPK_CONFIG when path is empty.
// With neither set it returns Default.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Codec {
	case "zstd", "lz4", "none":
	default:
		errs = append(errs, fmt.Errorf("invalid codec: %q", c.Codec))
	}

	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}

	if c.ArchiveIndex < AutoArchiveIndex || c.ArchiveIndex >= maxArchiveIndex {
		errs = append(errs, fmt.Errorf("archive_index must be %d or in [0, %d), got %d", AutoArchiveIndex, maxArchiveIndex, c.ArchiveIndex))
	}

	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	if c.Transcode.Enabled && c.Transcode.FFmpeg == "" {
		errs = append(errs, errors.New("transcode.ffmpeg is required when transcoding is enabled"))
	}

	return errors.Join(errs...)
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level: %q", c.LogLevel)
	}
	return l, nil
}
