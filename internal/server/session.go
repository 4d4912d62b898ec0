// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/nishisan-dev/filedrop/internal/config"
	"github.com/nishisan-dev/filedrop/internal/protocol"
)

// Session is the per-connection state machine: Greeting -> Ready ->
// Streaming{Upload|Download} -> Ready ... -> Closed. Command processing is
// strictly sequential — a session reads one control frame, fully services
// it, and only then reads the next, so there is no intra-session
// concurrency to reason about.
type Session struct {
	ctx      context.Context
	conn     net.Conn
	cfg      *config.ServerConfig
	catalog  *Catalog
	store    *FileStore
	registry *SessionRegistry
	notifier *Notifier
	monitor  *SystemMonitor
	logger   *slog.Logger

	sendMu   sync.Mutex // guards writes from this handler and the Notifier
	username string
}

// NewSession builds a Session for a freshly accepted connection. Call Run
// to drive it to completion.
func NewSession(ctx context.Context, conn net.Conn, cfg *config.ServerConfig, catalog *Catalog, store *FileStore, registry *SessionRegistry, notifier *Notifier, monitor *SystemMonitor, logger *slog.Logger) *Session {
	return &Session{
		ctx:      ctx,
		conn:     conn,
		cfg:      cfg,
		catalog:  catalog,
		store:    store,
		registry: registry,
		notifier: notifier,
		monitor:  monitor,
		logger:   logger.With("remote", conn.RemoteAddr().String()),
	}
}

// Close closes the underlying connection, waking any blocked read in Run
// so the session exits. Used by the supervisor during shutdown after a
// best-effort SERVER_SHUTDOWN send.
func (s *Session) Close() error {
	return s.conn.Close()
}

// SendFrame implements SessionHandle: one complete control frame, guarded
// by the per-session send lock so a Notifier delivery can never interleave
// its bytes with this session's own reply mid-write.
func (s *Session) SendFrame(line string) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return protocol.WriteControlFrame(s.conn, line)
}

// Run drives the session from Greeting through Ready/Streaming until a
// terminal transition (peer close, timeout, fatal I/O error, DISCONNECT,
// or ctx cancellation) and always removes the session from the registry
// exactly once before returning.
func (s *Session) Run() {
	defer s.conn.Close()

	if !s.greet() {
		return
	}
	defer s.registry.Remove(s.username)
	s.logger = s.logger.With("user", s.username)
	s.logger.Info("session connected")

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("session closing: server shutting down")
			return
		default:
		}

		line, err := protocol.ReadControlFrame(s.conn, s.cfg.Timeouts.Idle)
		if err != nil {
			s.logger.Info("session closing", "reason", err)
			return
		}

		verb, rest := protocol.SplitVerb(line)
		switch verb {
		case protocol.VerbUpload:
			if !s.handleUpload(rest) {
				return
			}
		case protocol.VerbList:
			s.handleList()
		case protocol.VerbDelete:
			s.handleDelete(rest)
		case protocol.VerbDownload:
			s.handleDownload(rest)
		case protocol.VerbDisconnect:
			s.logger.Info("session disconnected by request")
			return
		default:
			if verb == "" {
				continue
			}
			_ = s.SendFrame(protocol.FormatUnknownCommand(verb))
		}
	}
}

// greet reads the proposed username, registers it, and replies. Returns
// false if the session must close without entering Ready.
func (s *Session) greet() bool {
	line, err := protocol.ReadControlFrame(s.conn, s.cfg.Timeouts.Handshake)
	if err != nil {
		s.logger.Info("handshake failed", "error", err)
		return false
	}

	username := strings.TrimSpace(line)
	if err := validateUsername(username); err != nil {
		s.logger.Warn("handshake rejected", "error", err)
		_ = s.SendFrame(protocol.FormatError(err.Error()))
		return false
	}

	if err := s.registry.InsertUnique(username, s); err != nil {
		_ = s.SendFrame(protocol.ErrUsernameTaken)
		return false
	}
	s.username = username

	if err := s.SendFrame(protocol.RespConnected); err != nil {
		s.registry.Remove(username)
		return false
	}
	return true
}

// handleUpload services "UPLOAD <filename> <size>". Returns false if the
// session must close (a transport error killed the connection mid-upload).
func (s *Session) handleUpload(rest string) bool {
	filename, size, err := protocol.ParseUpload(rest)
	if err != nil {
		_ = s.SendFrame(protocol.ErrInvalidUpload)
		return true
	}
	if err := validateFilename(filename); err != nil {
		_ = s.SendFrame(protocol.FormatError(err.Error()))
		return true
	}

	if s.monitor != nil && s.cfg.Storage.MinFreeSpaceRaw > 0 && s.monitor.FreeBytes() < uint64(s.cfg.Storage.MinFreeSpaceRaw) {
		s.logger.Warn("rejecting upload: storage below free space floor", "filename", filename)
		_ = s.SendFrame(protocol.ErrStorageFull)
		return true
	}

	path := s.store.PathOf(s.username, filename)
	preexisted := s.catalog.OwnerOfExactly(filename, s.username)

	readExact := func(dst io.Writer) (int64, error) {
		throttled := NewThrottledWriter(s.ctx, dst, s.cfg.Bandwidth.MaxBytesPerSecRaw)
		return protocol.ReceiveExact(s.conn, throttled, size, s.cfg.Timeouts.BulkInactivity)
	}

	if err := s.store.ReceiveInto(path, size, readExact); err != nil {
		s.logger.Error("upload failed", "filename", filename, "error", err)
		_ = s.SendFrame(protocol.ErrConnectionDuringUpload)
		return false
	}

	if err := s.catalog.Add(filename, s.username); err != nil {
		s.logger.Error("catalog persistence failed", "filename", filename, "error", err)
	}

	if s.mirror() != nil {
		if data, rerr := readStoredFileForMirror(s.store, path); rerr == nil {
			go s.mirror().Put(s.username, filename, data)
		}
	}

	if preexisted {
		_ = s.SendFrame(protocol.FormatUploadedOverwrite(filename))
	} else {
		_ = s.SendFrame(protocol.FormatUploadedNew(filename))
	}
	return true
}

func (s *Session) handleList() {
	entries := s.catalog.Snapshot()
	if len(entries) == 0 {
		_ = s.SendFrame(protocol.RespNoFiles)
		return
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = protocol.FormatListEntry(e.Filename, e.Owner)
	}
	_ = s.SendFrame(strings.Join(lines, "\n"))
}

func (s *Session) handleDelete(rest string) {
	filename, err := protocol.ParseDelete(rest)
	if err != nil {
		_ = s.SendFrame(protocol.ErrInvalidDelete)
		return
	}

	if s.catalog.OwnerOfExactly(filename, s.username) {
		path := s.store.PathOf(s.username, filename)
		if err := s.store.Remove(path); err != nil {
			s.logger.Warn("removing stored file", "filename", filename, "error", err)
		}
		if _, err := s.catalog.Remove(filename, s.username); err != nil {
			s.logger.Error("catalog persistence failed", "filename", filename, "error", err)
		}
		if s.mirror() != nil {
			go s.mirror().Delete(s.username, filename)
		}
		_ = s.SendFrame(protocol.FormatDeleted(filename))
		return
	}

	if s.catalog.HasAny(filename) {
		_ = s.SendFrame(protocol.ErrNotOwner)
		return
	}

	_ = s.SendFrame(protocol.FormatDeleteNotFound(filename))
}

func (s *Session) handleDownload(rest string) {
	filename, owner, err := protocol.ParseDownload(rest)
	if err != nil {
		_ = s.SendFrame(protocol.ErrInvalidDownload)
		return
	}
	if err := validateFilename(filename); err != nil {
		_ = s.SendFrame(protocol.FormatError(err.Error()))
		return
	}
	if err := validateUsername(owner); err != nil {
		_ = s.SendFrame(protocol.FormatError(err.Error()))
		return
	}

	path := s.store.PathOf(owner, filename)
	if err := validatePathInBaseDir(s.store.root, path); err != nil {
		_ = s.SendFrame(protocol.FormatError(err.Error()))
		return
	}
	if !s.store.Exists(path) {
		_ = s.SendFrame(protocol.ErrDownloadMissing)
		return
	}

	size, err := s.store.SizeOf(path)
	if err != nil {
		s.logger.Error("reading stored file size", "filename", filename, "error", err)
		_ = s.SendFrame(protocol.ErrDownloadMissing)
		return
	}

	if err := s.SendFrame(protocol.FormatFilesize(size)); err != nil {
		return
	}

	reply, err := protocol.ReadControlFrame(s.conn, s.cfg.Timeouts.BulkInactivity)
	if err != nil || strings.TrimSpace(reply) != protocol.RespReady {
		s.logger.Info("download aborted: peer did not send READY", "filename", filename, "error", err)
		return
	}

	go s.notifier.NotifyDownload(owner, filename, s.username)

	sendExact := func(src io.Reader, n int64) error {
		throttled := NewThrottledReader(s.ctx, src, s.cfg.Bandwidth.MaxBytesPerSecRaw)
		_, err := protocol.SendExact(s.conn, throttled, n, s.cfg.Timeouts.BulkInactivity)
		return err
	}

	// Held for the whole bulk write so a concurrent Notifier delivery (which
	// also takes sendMu via SendFrame) can never splice a NOTIFICATION frame
	// into the middle of this byte-counted payload.
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.store.SendFrom(path, sendExact); err != nil {
		s.logger.Error("download failed", "filename", filename, "error", err)
	}
}

func (s *Session) mirror() *Mirror {
	if s.store == nil {
		return nil
	}
	return s.store.mirror
}

// readStoredFileForMirror reads back the original bytes of a just-stored
// file so the optional S3 mirror can ship a plain copy, independent of
// whatever on-disk compression the file store applies.
func readStoredFileForMirror(store *FileStore, path string) ([]byte, error) {
	var buf bytes.Buffer
	err := store.SendFrom(path, func(src io.Reader, n int64) error {
		_, cerr := io.Copy(&buf, src)
		return cerr
	})
	if err != nil {
		return nil, fmt.Errorf("reading stored file for mirror: %w", err)
	}
	return buf.Bytes(), nil
}
