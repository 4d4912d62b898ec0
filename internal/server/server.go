// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package server implements the filedrop server: the listener/supervisor
// that accepts connections and spawns one Session per connection, and the
// supporting components (catalog, file store, session registry, notifier,
// disk monitor, temp-file sweeper, optional S3 mirror) each session uses.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/nishisan-dev/filedrop/internal/config"
	"github.com/nishisan-dev/filedrop/internal/protocol"
)

// Supervisor owns the listening socket and every long-lived component a
// Session needs. It accepts connections forever until its context is
// canceled, at which point it runs the graceful shutdown sequence: close
// the listener, broadcast SERVER_SHUTDOWN to every registered session,
// close each session's stream, and clear the registry.
type Supervisor struct {
	cfg    *config.ServerConfig
	logger *slog.Logger

	catalog  *Catalog
	store    *FileStore
	registry *SessionRegistry
	notifier *Notifier
	monitor  *SystemMonitor
	sweeper  *Sweeper
	mirror   *Mirror
}

// NewSupervisor wires every component from cfg. It loads the catalog from
// cfg.Storage.Root (via set_root's idempotent contract, see Operator) but
// does not bind a listener or start background tasks — call Run for that.
func NewSupervisor(cfg *config.ServerConfig, logger *slog.Logger) (*Supervisor, error) {
	catalog, err := NewCatalog(cfg.Storage.Root, logger)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	var mirror *Mirror
	if cfg.Mirror.Enabled {
		m, err := NewMirror(context.Background(), cfg.Mirror.Bucket, cfg.Mirror.Prefix, cfg.Mirror.Region, logger)
		if err != nil {
			return nil, fmt.Errorf("configuring S3 mirror: %w", err)
		}
		mirror = m
	}

	store := NewFileStore(cfg.Storage.Root, cfg.Compression.Mode, mirror)
	registry := NewSessionRegistry()
	notifier := NewNotifier(registry, logger)

	var monitor *SystemMonitor
	if cfg.Storage.MinFreeSpaceRaw > 0 {
		monitor = NewSystemMonitor(logger, cfg.Storage.Root)
	}

	sweeper, err := NewSweeper(cfg.Storage.Root, cfg.Sweep.Schedule, cfg.Sweep.MaxAge, logger)
	if err != nil {
		return nil, fmt.Errorf("configuring temp file sweeper: %w", err)
	}
	sweeper.OnComplete(func(removed int) {
		for _, handle := range registry.Snapshot() {
			_ = handle.SendFrame(protocol.FormatDebug("storage scan complete"))
		}
	})

	return &Supervisor{
		cfg:      cfg,
		logger:   logger,
		catalog:  catalog,
		store:    store,
		registry: registry,
		notifier: notifier,
		monitor:  monitor,
		sweeper:  sweeper,
		mirror:   mirror,
	}, nil
}

// Run binds cfg.Server.Listen and accepts connections until ctx is
// canceled, then performs the graceful shutdown sequence and returns nil.
func (sv *Supervisor) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", sv.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", sv.cfg.Server.Listen, err)
	}
	return sv.RunWithListener(ctx, ln)
}

// RunWithListener is Run with an already-bound listener, so tests can pass
// one bound to an ephemeral port.
func (sv *Supervisor) RunWithListener(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	sv.logger.Info("server listening", "address", ln.Addr().String())

	if sv.monitor != nil {
		sv.monitor.Start()
		defer sv.monitor.Stop()
	}
	sv.sweeper.Start()
	defer sv.sweeper.Stop()

	go func() {
		<-ctx.Done()
		sv.logger.Info("shutting down server")
		ln.Close()
	}()

	consecutiveErrors := 0
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				sv.shutdownSessions()
				sv.logger.Info("server shutdown complete")
				return nil
			default:
				consecutiveErrors++
				sv.logger.Error("accepting connection", "error", err, "consecutive_errors", consecutiveErrors)
				if consecutiveErrors > 5 {
					delay := time.Duration(consecutiveErrors) * 100 * time.Millisecond
					if delay > 5*time.Second {
						delay = 5 * time.Second
					}
					time.Sleep(delay)
				}
				continue
			}
		}

		consecutiveErrors = 0
		sess := NewSession(ctx, conn, sv.cfg, sv.catalog, sv.store, sv.registry, sv.notifier, sv.monitor, sv.logger)
		go sess.Run()
	}
}

// shutdownSessions implements spec.md §4.7's shutdown sequence: broadcast
// SERVER_SHUTDOWN best-effort to every registered session, close each
// stream (the Session's own Run loop will then observe the read error and
// exit, removing itself from the registry), and clear what remains.
func (sv *Supervisor) shutdownSessions() {
	snapshot := sv.registry.Snapshot()
	for username, handle := range snapshot {
		if err := handle.SendFrame(protocol.RespServerShutdown); err != nil {
			sv.logger.Debug("shutdown notice delivery failed", "user", username, "error", err)
		}
		if closer, ok := handle.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
	}
	sv.registry.Clear()
}
