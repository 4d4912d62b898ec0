// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package server

import (
	"errors"
	"log/slog"
	"os"
	"testing"
)

type erroringHandle struct{}

func (erroringHandle) SendFrame(line string) error {
	return errors.New("broken pipe")
}

func TestNotifier_DeliversToConnectedOwner(t *testing.T) {
	reg := NewSessionRegistry()
	h := &fakeHandle{}
	reg.InsertUnique("alice", h)

	n := NewNotifier(reg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	n.NotifyDownload("alice", "report.pdf", "bob")

	if len(h.sent) != 1 {
		t.Fatalf("got %d sent frames, want 1", len(h.sent))
	}
	want := "NOTIFICATION: Your file 'report.pdf' was downloaded by 'bob'."
	if h.sent[0] != want {
		t.Errorf("got %q, want %q", h.sent[0], want)
	}
}

func TestNotifier_SwallowsMissingOwner(t *testing.T) {
	reg := NewSessionRegistry()
	n := NewNotifier(reg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	n.NotifyDownload("ghost", "report.pdf", "bob")
}

func TestNotifier_SwallowsSendError(t *testing.T) {
	reg := NewSessionRegistry()
	reg.InsertUnique("alice", erroringHandle{})
	n := NewNotifier(reg, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	n.NotifyDownload("alice", "report.pdf", "bob")
}
