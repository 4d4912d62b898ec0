// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package operator exposes the narrow lifecycle surface an external
// collaborator (a GUI, a CLI, a test harness) drives the filedrop server
// through: point it at a storage root, start it on a port, stop it.
package operator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/nishisan-dev/filedrop/internal/config"
	"github.com/nishisan-dev/filedrop/internal/server"
)

// Operator is the external-facing lifecycle controller for one server
// instance. All three operations are safe to call from any goroutine;
// they serialize on a single mutex since a GUI may invoke them from a
// click handler while a background health check is reading state.
type Operator struct {
	mu      sync.Mutex
	cfg     *config.ServerConfig
	logger  *slog.Logger
	root    string
	running bool
	cancel  context.CancelFunc
	done    chan error
}

// New builds an Operator around baseCfg, which supplies every setting
// except the storage root and listen port (those come from SetRoot and
// Start). baseCfg is never mutated; each Start takes a shallow copy.
func New(baseCfg *config.ServerConfig, logger *slog.Logger) *Operator {
	return &Operator{cfg: baseCfg, logger: logger}
}

// SetRoot points the operator at a storage root. It is idempotent: calling
// it again with the same path is a no-op, and it may be called again with
// a different path only while the server is stopped. It loads (and so
// validates) the catalog shadow file at path immediately, so a malformed
// catalog or missing directory is reported before Start rather than during
// the first UPLOAD.
func (o *Operator) SetRoot(path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running && path != o.root {
		return fmt.Errorf("cannot change storage root while the server is running")
	}
	if path == o.root {
		return nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("storage root %q: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage root %q is not a directory", path)
	}

	if _, err := server.NewCatalog(path, o.logger); err != nil {
		return fmt.Errorf("loading catalog from %q: %w", path, err)
	}

	o.root = path
	return nil
}

// Start binds port and begins accepting connections in the background. It
// rejects the call if the server is already running or if SetRoot has not
// been called yet.
func (o *Operator) Start(port int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return fmt.Errorf("server is already running")
	}
	if o.root == "" {
		return fmt.Errorf("set_root must be called before start")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", port)
	}

	cfg := *o.cfg
	cfg.Storage.Root = o.root
	cfg.Server.Listen = fmt.Sprintf("0.0.0.0:%d", port)

	sv, err := server.NewSupervisor(&cfg, o.logger)
	if err != nil {
		return fmt.Errorf("building server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sv.Run(ctx) }()

	o.cancel = cancel
	o.done = done
	o.running = true
	return nil
}

// Stop begins the supervisor's graceful shutdown sequence and blocks until
// it completes. Calling Stop when the server is not running is a no-op.
func (o *Operator) Stop() error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	cancel, done := o.cancel, o.done
	o.mu.Unlock()

	cancel()
	err := <-done

	o.mu.Lock()
	o.running = false
	o.cancel = nil
	o.done = nil
	o.mu.Unlock()

	return err
}

// Running reports whether the server is currently accepting connections.
func (o *Operator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}
