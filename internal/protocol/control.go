// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package protocol

import (
	"fmt"
	"net"
	"time"
)

// MaxControlFrameBytes bounds a single control-frame recv, per spec.md §4.1.
const MaxControlFrameBytes = 1024

// ReadControlFrame reads one control frame from conn: a single recv of up
// to MaxControlFrameBytes, UTF-8 decoded and whitespace-trimmed. There is no
// line terminator on the wire — each command arrives as exactly one write
// from the peer, so this performs exactly one Read and treats whatever comes
// back (short or full) as the complete frame. deadline, if non-zero, bounds
// how long the read may block; a deadline it misses is a fatal session
// error to the caller.
func ReadControlFrame(conn net.Conn, deadline time.Duration) (string, error) {
	if deadline > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
			return "", fmt.Errorf("setting read deadline: %w", err)
		}
	}

	buf := make([]byte, MaxControlFrameBytes)
	n, err := conn.Read(buf)
	if n == 0 {
		if err == nil {
			return "", ErrEmptyFrame
		}
		return "", err
	}
	// A short read alongside an error (e.g. the peer closing right after
	// its send) still carries a complete, usable frame; the error only
	// matters for the *next* read.
	return trimFrame(buf[:n]), nil
}

func trimFrame(b []byte) string {
	start := 0
	end := len(b)
	for start < end && isFrameSpace(b[start]) {
		start++
	}
	for end > start && isFrameSpace(b[end-1]) {
		end--
	}
	return string(b[start:end])
}

func isFrameSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	default:
		return false
	}
}

// WriteControlFrame writes one control frame as a single Write call. A
// single net.Conn.Write over TCP issues one send; callers MUST NOT buffer
// two control frames (or a control frame and a following bulk payload)
// behind the same Write, per spec.md §9.
func WriteControlFrame(conn net.Conn, line string) error {
	_, err := conn.Write([]byte(line))
	if err != nil {
		return fmt.Errorf("writing control frame: %w", err)
	}
	return nil
}
