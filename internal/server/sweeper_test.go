// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package server

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSweeper_RemovesOldOrphanedTempFiles(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	oldPath := filepath.Join(dir, "alice_report.pdf.upload.tmp")
	if err := os.WriteFile(oldPath, []byte("partial"), 0o644); err != nil {
		t.Fatalf("writing orphan file: %v", err)
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldPath, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	keepPath := filepath.Join(dir, "alice_report.pdf")
	if err := os.WriteFile(keepPath, []byte("final"), 0o644); err != nil {
		t.Fatalf("writing final file: %v", err)
	}

	s, err := NewSweeper(dir, "@every 1h", time.Hour, logger)
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	s.sweep()

	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("expected orphaned temp file to be removed")
	}
	if _, err := os.Stat(keepPath); err != nil {
		t.Error("expected final file to survive sweep")
	}
}

func TestSweeper_OnCompleteFiresEveryCycle(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	s, err := NewSweeper(dir, "@every 1h", time.Hour, logger)
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}

	calls := 0
	s.OnComplete(func(removed int) {
		calls++
		if removed != 0 {
			t.Errorf("got removed=%d, want 0 for an empty directory", removed)
		}
	})

	s.sweep()
	s.sweep()

	if calls != 2 {
		t.Fatalf("got %d OnComplete calls, want 2", calls)
	}
}

func TestSweeper_KeepsRecentTempFiles(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	recentPath := filepath.Join(dir, "bob_video.mp4.upload.tmp")
	if err := os.WriteFile(recentPath, []byte("partial"), 0o644); err != nil {
		t.Fatalf("writing recent file: %v", err)
	}

	s, err := NewSweeper(dir, "@every 1h", time.Hour, logger)
	if err != nil {
		t.Fatalf("NewSweeper: %v", err)
	}
	s.sweep()

	if _, err := os.Stat(recentPath); err != nil {
		t.Error("expected recent temp file to survive sweep")
	}
}
