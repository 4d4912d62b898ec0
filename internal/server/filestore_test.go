// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package server

import (
	"bytes"
	"io"
	"os"
	"testing"
)

func readExactHelper(payload []byte) func(dst io.Writer) (int64, error) {
	return func(dst io.Writer) (int64, error) {
		n, err := dst.Write(payload)
		return int64(n), err
	}
}

func sendExactHelper(t *testing.T, want []byte) func(src io.Reader, n int64) error {
	t.Helper()
	return func(src io.Reader, n int64) error {
		got, err := io.ReadAll(src)
		if err != nil {
			return err
		}
		if n != int64(len(want)) {
			t.Errorf("got declared size %d, want %d", n, len(want))
		}
		if !bytes.Equal(got, want) {
			t.Errorf("got payload %q, want %q", got, want)
		}
		return nil
	}
}

func TestFileStore_PathOf(t *testing.T) {
	fs := NewFileStore("/data", "none", nil)
	got := fs.PathOf("alice", "report.pdf")
	want := "/data/alice_report.pdf"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFileStore_RoundTrip_NoCompression(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir, "none", nil)
	path := fs.PathOf("alice", "report.pdf")
	payload := []byte("hello filedrop")

	if err := fs.ReceiveInto(path, int64(len(payload)), readExactHelper(payload)); err != nil {
		t.Fatalf("ReceiveInto: %v", err)
	}

	size, err := fs.SizeOf(path)
	if err != nil {
		t.Fatalf("SizeOf: %v", err)
	}
	if size != int64(len(payload)) {
		t.Errorf("got size %d, want %d", size, len(payload))
	}

	if err := fs.SendFrom(path, sendExactHelper(t, payload)); err != nil {
		t.Fatalf("SendFrom: %v", err)
	}
}

func TestFileStore_RoundTrip_GzipCompression(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir, "gzip", nil)
	path := fs.PathOf("alice", "report.pdf")
	payload := bytes.Repeat([]byte("compress me please "), 200)

	if err := fs.ReceiveInto(path, int64(len(payload)), readExactHelper(payload)); err != nil {
		t.Fatalf("ReceiveInto: %v", err)
	}

	size, err := fs.SizeOf(path)
	if err != nil {
		t.Fatalf("SizeOf: %v", err)
	}
	if size != int64(len(payload)) {
		t.Errorf("got original size %d, want %d", size, len(payload))
	}

	if err := fs.SendFrom(path, sendExactHelper(t, payload)); err != nil {
		t.Fatalf("SendFrom: %v", err)
	}
}

func TestFileStore_RoundTrip_ZstdCompression(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir, "zstd", nil)
	path := fs.PathOf("bob", "video.mp4")
	payload := bytes.Repeat([]byte("zstd payload chunk "), 200)

	if err := fs.ReceiveInto(path, int64(len(payload)), readExactHelper(payload)); err != nil {
		t.Fatalf("ReceiveInto: %v", err)
	}
	if err := fs.SendFrom(path, sendExactHelper(t, payload)); err != nil {
		t.Fatalf("SendFrom: %v", err)
	}
}

func TestFileStore_ShortReadRemovesTempFile(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir, "none", nil)
	path := fs.PathOf("alice", "report.pdf")

	err := fs.ReceiveInto(path, 100, readExactHelper([]byte("too short")))
	if err == nil {
		t.Fatal("expected error for short read")
	}
	if fs.Exists(path) {
		t.Error("expected stored file not to exist after short read")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected temp file to be cleaned up, found %d entries", len(entries))
	}
}

func TestFileStore_Remove(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir, "none", nil)
	path := fs.PathOf("alice", "report.pdf")
	payload := []byte("data")

	if err := fs.ReceiveInto(path, int64(len(payload)), readExactHelper(payload)); err != nil {
		t.Fatalf("ReceiveInto: %v", err)
	}
	if !fs.Exists(path) {
		t.Fatal("expected file to exist before Remove")
	}
	if err := fs.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if fs.Exists(path) {
		t.Error("expected file not to exist after Remove")
	}
}

func TestFileStore_OverwriteAllowed(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir, "none", nil)
	path := fs.PathOf("alice", "report.pdf")

	if err := fs.ReceiveInto(path, 5, readExactHelper([]byte("first"))); err != nil {
		t.Fatalf("first ReceiveInto: %v", err)
	}
	if err := fs.ReceiveInto(path, 6, readExactHelper([]byte("second"))); err != nil {
		t.Fatalf("second ReceiveInto: %v", err)
	}

	if err := fs.SendFrom(path, sendExactHelper(t, []byte("second"))); err != nil {
		t.Fatalf("SendFrom: %v", err)
	}
}
