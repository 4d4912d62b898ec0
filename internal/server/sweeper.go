// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package server

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// uploadTmpSuffix marks a partially-received upload still in flight or
// abandoned by a dropped connection.
const uploadTmpSuffix = ".upload.tmp"

// Sweeper periodically deletes orphaned upload temp files older than
// MaxAge: the leftovers of a session that crashed mid-UPLOAD before the
// file store could rename the temp file into place.
type Sweeper struct {
	cron       *cron.Cron
	logger     *slog.Logger
	root       string
	maxAge     time.Duration
	onComplete func(removed int)
}

// NewSweeper builds a Sweeper that scans root on the given cron schedule
// (e.g. "@every 10m") and removes *.upload.tmp files older than maxAge.
func NewSweeper(root, schedule string, maxAge time.Duration, logger *slog.Logger) (*Sweeper, error) {
	s := &Sweeper{
		logger: logger.With("component", "sweeper"),
		root:   root,
		maxAge: maxAge,
	}

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if _, err := c.AddFunc(schedule, s.sweep); err != nil {
		return nil, fmt.Errorf("scheduling sweep job %q: %w", schedule, err)
	}
	s.cron = c
	return s, nil
}

// Start begins the periodic sweep.
func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts the sweep and waits for any run in progress.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// OnComplete registers a callback invoked after every sweep cycle,
// including ones that removed nothing. The Supervisor uses this to emit a
// DEBUG frame to connected sessions once a scan finishes.
func (s *Sweeper) OnComplete(fn func(removed int)) {
	s.onComplete = fn
}

func (s *Sweeper) sweep() {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Warn("sweep: reading storage root", "error", err)
		return
	}

	now := time.Now()
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), uploadTmpSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < s.maxAge {
			continue
		}
		path := filepath.Join(s.root, e.Name())
		if err := os.Remove(path); err != nil {
			s.logger.Warn("sweep: removing orphaned temp file", "path", path, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("sweep removed orphaned upload temp files", "count", removed)
	}
	if s.onComplete != nil {
		s.onComplete(removed)
	}
}
