// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestReceiveExact_FullPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte("hello, world! this spans more than one chunk boundary marker")
	go func() {
		_, _ = client.Write(payload)
	}()

	var dst bytes.Buffer
	n, err := ReceiveExact(server, &dst, int64(len(payload)), time.Second)
	if err != nil {
		t.Fatalf("ReceiveExact: %v", err)
	}
	if n != int64(len(payload)) {
		t.Errorf("got n=%d, want %d", n, len(payload))
	}
	if dst.String() != string(payload) {
		t.Errorf("got %q, want %q", dst.String(), string(payload))
	}
}

func TestReceiveExact_ShortReadOnEarlyClose(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	go func() {
		_, _ = client.Write([]byte("only3"))
		client.Close()
	}()

	var dst bytes.Buffer
	_, err := ReceiveExact(server, &dst, 100, time.Second)
	if err != ErrShortRead {
		t.Errorf("got %v, want ErrShortRead", err)
	}
}

func TestSendExact_FullPayload(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte("the quick brown fox jumps over the lazy dog, repeated for length")
	src := bytes.NewReader(payload)

	done := make(chan struct{})
	go func() {
		n, err := SendExact(server, src, int64(len(payload)), time.Second)
		if err != nil {
			t.Errorf("SendExact: %v", err)
		}
		if n != int64(len(payload)) {
			t.Errorf("got n=%d, want %d", n, len(payload))
		}
		close(done)
	}()

	received := make([]byte, len(payload))
	if _, err := readFull(client, received); err != nil {
		t.Fatalf("reading from client side: %v", err)
	}
	<-done

	if !bytes.Equal(received, payload) {
		t.Errorf("got %q, want %q", received, payload)
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
