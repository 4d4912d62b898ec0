// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package config loads and validates the filedropd server's YAML
// configuration file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig is the complete configuration for the filedropd server.
type ServerConfig struct {
	Server      ServerListen    `yaml:"server"`
	Storage     StorageInfo     `yaml:"storage"`
	Timeouts    TimeoutsInfo    `yaml:"timeouts"`
	Bandwidth   BandwidthInfo   `yaml:"bandwidth"`
	Compression CompressionInfo `yaml:"compression"`
	Mirror      MirrorInfo      `yaml:"mirror"`
	Sweep       SweepInfo       `yaml:"sweep"`
	Logging     LoggingInfo     `yaml:"logging"`
}

// ServerListen contains the server's listen address.
type ServerListen struct {
	Listen  string `yaml:"listen"`  // e.g. "0.0.0.0:9000"
	Backlog int    `yaml:"backlog"` // default 16; not passed to the listener, which uses the OS backlog
}

// StorageInfo configures the storage root and the disk-space floor below
// which UPLOAD is rejected.
type StorageInfo struct {
	Root            string `yaml:"root"`
	MinFreeSpace    string `yaml:"min_free_space"` // e.g. "512mb"; "" disables the check
	MinFreeSpaceRaw int64  `yaml:"-"`
}

// TimeoutsInfo configures the session state machine's deadlines.
type TimeoutsInfo struct {
	Handshake      time.Duration `yaml:"handshake"`      // default 60s
	Idle           time.Duration `yaml:"idle"`            // default 300s
	BulkInactivity time.Duration `yaml:"bulk_inactivity"` // default 60s
}

// BandwidthInfo configures an optional per-session transfer rate cap.
type BandwidthInfo struct {
	MaxBytesPerSec    string `yaml:"max_bytes_per_sec"` // e.g. "10mb"; "" or "0" disables
	MaxBytesPerSecRaw int64  `yaml:"-"`
}

// CompressionInfo selects the on-disk codec used for stored files. The
// choice is transparent to the wire protocol: DOWNLOAD always returns the
// original uploaded bytes.
type CompressionInfo struct {
	Mode string `yaml:"mode"` // "none" (default), "gzip", or "zstd"
}

// MirrorInfo configures an optional best-effort S3 mirror of stored files.
type MirrorInfo struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"` // optional key prefix, no leading/trailing slash
	Region  string `yaml:"region"`
}

// SweepInfo configures the periodic orphaned-temp-file sweep.
type SweepInfo struct {
	Schedule string        `yaml:"schedule"` // cron/@every expression; default "@every 10m"
	MaxAge   time.Duration `yaml:"max_age"`  // orphan age before removal; default 1h
}

// LoggingInfo configures the slog logger.
type LoggingInfo struct {
	Level  string `yaml:"level"`  // debug|info|warn|error, default info
	Format string `yaml:"format"` // json|text, default json
	File   string `yaml:"file"`   // optional extra log file, tee'd with stdout
}

// LoadServerConfig reads, parses, and validates the YAML config file at
// path.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading server config: %w", err)
	}

	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating server config: %w", err)
	}

	return &cfg, nil
}

func (c *ServerConfig) validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Server.Backlog <= 0 {
		c.Server.Backlog = 16
	}

	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root is required")
	}
	if c.Storage.MinFreeSpace != "" && c.Storage.MinFreeSpace != "0" {
		parsed, err := ParseByteSize(c.Storage.MinFreeSpace)
		if err != nil {
			return fmt.Errorf("storage.min_free_space: %w", err)
		}
		c.Storage.MinFreeSpaceRaw = parsed
	}

	if c.Timeouts.Handshake <= 0 {
		c.Timeouts.Handshake = 60 * time.Second
	}
	if c.Timeouts.Idle <= 0 {
		c.Timeouts.Idle = 300 * time.Second
	}
	if c.Timeouts.BulkInactivity <= 0 {
		c.Timeouts.BulkInactivity = 60 * time.Second
	}

	if c.Bandwidth.MaxBytesPerSec != "" && c.Bandwidth.MaxBytesPerSec != "0" {
		parsed, err := ParseByteSize(c.Bandwidth.MaxBytesPerSec)
		if err != nil {
			return fmt.Errorf("bandwidth.max_bytes_per_sec: %w", err)
		}
		c.Bandwidth.MaxBytesPerSecRaw = parsed
	}

	if c.Compression.Mode == "" {
		c.Compression.Mode = "none"
	}
	c.Compression.Mode = strings.ToLower(strings.TrimSpace(c.Compression.Mode))
	switch c.Compression.Mode {
	case "none", "gzip", "zstd":
	default:
		return fmt.Errorf("compression.mode must be none, gzip, or zstd, got %q", c.Compression.Mode)
	}

	if c.Mirror.Enabled {
		if c.Mirror.Bucket == "" {
			return fmt.Errorf("mirror.bucket is required when mirror is enabled")
		}
		c.Mirror.Prefix = strings.Trim(c.Mirror.Prefix, "/")
	}

	if c.Sweep.Schedule == "" {
		c.Sweep.Schedule = "@every 10m"
	}
	if c.Sweep.MaxAge <= 0 {
		c.Sweep.MaxAge = 1 * time.Hour
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}

// ParseByteSize parses a human size string ("512mb", "10kb", "1gb", or a
// bare byte count) into a byte count.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	type suffix struct {
		s string
		m int64
	}
	// Ordered longest-suffix-first so "mb" never matches as "b".
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return num, nil
}
