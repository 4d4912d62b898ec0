// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
)

// diskPollInterval is how often the monitor resamples free disk space.
const diskPollInterval = 15 * time.Second

// SystemMonitor periodically samples free disk space on the storage root
// so UPLOAD can reject new data without touching the filesystem on every
// request.
type SystemMonitor struct {
	logger *slog.Logger
	path   string
	close  chan struct{}
	wg     sync.WaitGroup

	mu       sync.RWMutex
	freeByte uint64
}

// NewSystemMonitor creates a monitor that samples free space under path.
func NewSystemMonitor(logger *slog.Logger, path string) *SystemMonitor {
	return &SystemMonitor{
		logger: logger.With("component", "disk_monitor"),
		path:   path,
		close:  make(chan struct{}),
	}
}

// Start begins periodic sampling. It samples once synchronously before
// returning so FreeBytes is never zero-by-default on a healthy disk.
func (sm *SystemMonitor) Start() {
	sm.collect()
	sm.wg.Add(1)
	go sm.run()
}

// Stop halts sampling.
func (sm *SystemMonitor) Stop() {
	close(sm.close)
	sm.wg.Wait()
}

// FreeBytes returns the most recently sampled free space, in bytes.
func (sm *SystemMonitor) FreeBytes() uint64 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.freeByte
}

func (sm *SystemMonitor) run() {
	defer sm.wg.Done()
	ticker := time.NewTicker(diskPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sm.close:
			return
		case <-ticker.C:
			sm.collect()
		}
	}
}

func (sm *SystemMonitor) collect() {
	usage, err := disk.Usage(sm.path)
	if err != nil {
		sm.logger.Debug("failed to collect disk stats", "error", err)
		return
	}
	sm.mu.Lock()
	sm.freeByte = usage.Free
	sm.mu.Unlock()
}
