// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadServerConfig_MinimalDefaults(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: "0.0.0.0:9000"
storage:
  root: "/tmp/filedrop-data"
`)

	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}

	if cfg.Server.Backlog != 16 {
		t.Errorf("got backlog %d, want 16", cfg.Server.Backlog)
	}
	if cfg.Timeouts.Handshake != 60*time.Second {
		t.Errorf("got handshake timeout %v, want 60s", cfg.Timeouts.Handshake)
	}
	if cfg.Timeouts.Idle != 300*time.Second {
		t.Errorf("got idle timeout %v, want 300s", cfg.Timeouts.Idle)
	}
	if cfg.Compression.Mode != "none" {
		t.Errorf("got compression mode %q, want none", cfg.Compression.Mode)
	}
	if cfg.Sweep.Schedule != "@every 10m" {
		t.Errorf("got sweep schedule %q, want \"@every 10m\"", cfg.Sweep.Schedule)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("got logging %+v, want info/json defaults", cfg.Logging)
	}
}

func TestLoadServerConfig_MissingListen(t *testing.T) {
	path := writeTempConfig(t, `
storage:
  root: "/tmp/filedrop-data"
`)
	if _, err := LoadServerConfig(path); err == nil {
		t.Fatal("expected error for missing server.listen")
	}
}

func TestLoadServerConfig_MissingStorageRoot(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: "0.0.0.0:9000"
`)
	if _, err := LoadServerConfig(path); err == nil {
		t.Fatal("expected error for missing storage.root")
	}
}

func TestLoadServerConfig_BandwidthAndMinFreeSpaceParsed(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: "0.0.0.0:9000"
storage:
  root: "/tmp/filedrop-data"
  min_free_space: "512mb"
bandwidth:
  max_bytes_per_sec: "10mb"
`)
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Storage.MinFreeSpaceRaw != 512*1024*1024 {
		t.Errorf("got min free space %d, want %d", cfg.Storage.MinFreeSpaceRaw, 512*1024*1024)
	}
	if cfg.Bandwidth.MaxBytesPerSecRaw != 10*1024*1024 {
		t.Errorf("got bandwidth cap %d, want %d", cfg.Bandwidth.MaxBytesPerSecRaw, 10*1024*1024)
	}
}

func TestLoadServerConfig_InvalidCompressionMode(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: "0.0.0.0:9000"
storage:
  root: "/tmp/filedrop-data"
compression:
  mode: "lz4"
`)
	if _, err := LoadServerConfig(path); err == nil {
		t.Fatal("expected error for invalid compression.mode")
	}
}

func TestLoadServerConfig_MirrorRequiresBucket(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: "0.0.0.0:9000"
storage:
  root: "/tmp/filedrop-data"
mirror:
  enabled: true
`)
	if _, err := LoadServerConfig(path); err == nil {
		t.Fatal("expected error for mirror.enabled without mirror.bucket")
	}
}

func TestLoadServerConfig_MirrorTrimsPrefixSlashes(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: "0.0.0.0:9000"
storage:
  root: "/tmp/filedrop-data"
mirror:
  enabled: true
  bucket: "my-bucket"
  prefix: "/uploads/"
`)
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Mirror.Prefix != "uploads" {
		t.Errorf("got prefix %q, want \"uploads\"", cfg.Mirror.Prefix)
	}
}

func TestLoadServerConfig_MissingFile(t *testing.T) {
	if _, err := LoadServerConfig("/nonexistent/path/server.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"1kb", 1024, false},
		{"1mb", 1024 * 1024, false},
		{"1gb", 1024 * 1024 * 1024, false},
		{"10mb", 10 * 1024 * 1024, false},
		{"", 0, true},
		{"abc", 0, true},
		{"10xb", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseByteSize(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseByteSize(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseByteSize(%q): unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
