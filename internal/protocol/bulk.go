// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package protocol

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// MaxBulkChunk bounds a single read/write during bulk transfer, per
// spec.md §4.3.
const MaxBulkChunk = 4096

// ErrShortRead is returned by ReceiveExact when the peer closes the
// connection before delivering the declared number of bytes.
var ErrShortRead = errors.New("protocol: short read during bulk transfer")

// ReceiveExact reads exactly n raw bytes from conn into dst, in chunks no
// larger than MaxBulkChunk, refreshing conn's read deadline before each
// chunk. It returns ErrShortRead if conn yields EOF before n bytes arrive.
func ReceiveExact(conn net.Conn, dst io.Writer, n int64, inactivity time.Duration) (int64, error) {
	buf := make([]byte, MaxBulkChunk)
	var received int64
	for received < n {
		if inactivity > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(inactivity)); err != nil {
				return received, fmt.Errorf("setting bulk read deadline: %w", err)
			}
		}
		want := n - received
		if want > MaxBulkChunk {
			want = MaxBulkChunk
		}
		read, err := conn.Read(buf[:want])
		if read > 0 {
			if _, werr := dst.Write(buf[:read]); werr != nil {
				return received, fmt.Errorf("writing received chunk: %w", werr)
			}
			received += int64(read)
		}
		if err != nil {
			if err == io.EOF && received < n {
				return received, ErrShortRead
			}
			return received, err
		}
	}
	return received, nil
}

// SendExact writes n raw bytes read from src to conn, in chunks no larger
// than MaxBulkChunk, refreshing conn's write deadline before each chunk.
// If src reaches EOF before n bytes, it stops there and returns the
// shorter count with a nil error.
func SendExact(conn net.Conn, src io.Reader, n int64, inactivity time.Duration) (int64, error) {
	buf := make([]byte, MaxBulkChunk)
	var sent int64
	for sent < n {
		if inactivity > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(inactivity)); err != nil {
				return sent, fmt.Errorf("setting bulk write deadline: %w", err)
			}
		}
		want := n - sent
		if want > MaxBulkChunk {
			want = MaxBulkChunk
		}
		read, rerr := src.Read(buf[:want])
		if read > 0 {
			written, werr := conn.Write(buf[:read])
			sent += int64(written)
			if werr != nil {
				return sent, fmt.Errorf("writing bulk chunk: %w", werr)
			}
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return sent, fmt.Errorf("reading source for bulk send: %w", rerr)
		}
	}
	return sent, nil
}
