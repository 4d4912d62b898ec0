// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package server

import (
	"log/slog"

	"github.com/nishisan-dev/filedrop/internal/protocol"
)

// Notifier delivers best-effort NOTIFICATION frames to a file's owner
// when someone else downloads it. Delivery failures (owner offline, write
// error, broken pipe) are swallowed: notification is advisory and must
// never abort the download that triggered it.
type Notifier struct {
	registry *SessionRegistry
	logger   *slog.Logger
}

// NewNotifier builds a Notifier backed by registry.
func NewNotifier(registry *SessionRegistry, logger *slog.Logger) *Notifier {
	return &Notifier{registry: registry, logger: logger.With("component", "notifier")}
}

// NotifyDownload looks up owner's session and attempts one write of a
// NOTIFICATION frame naming filename and requester; an owner downloading
// their own file is not notified. The SessionHandle's
// own send lock serializes this write against the owner's own replies.
func (n *Notifier) NotifyDownload(owner, filename, requester string) {
	if owner == requester {
		return
	}
	handle, ok := n.registry.Lookup(owner)
	if !ok {
		return
	}
	frame := protocol.FormatNotification(filename, requester)
	if err := handle.SendFrame(frame); err != nil {
		n.logger.Debug("notification delivery failed", "owner", owner, "filename", filename, "error", err)
	}
}
