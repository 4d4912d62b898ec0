// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package server

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/nishisan-dev/filedrop/internal/protocol"
)

// sizeSidecarSuffix names the file that remembers the original,
// uncompressed byte count of a StoredFile when on-disk compression is
// enabled. DOWNLOAD must report and deliver the original bytes regardless
// of the codec used at rest.
const sizeSidecarSuffix = ".size"

// FileStore owns the on-disk layout of uploaded files:
// <root>/<owner>_<filename>, optionally gzip- or zstd-compressed, with an
// optional best-effort S3 mirror.
type FileStore struct {
	root            string
	compressionMode string // "none", "gzip", or "zstd"
	mirror          *Mirror
}

// NewFileStore builds a FileStore rooted at root.
func NewFileStore(root, compressionMode string, mirror *Mirror) *FileStore {
	return &FileStore{root: root, compressionMode: compressionMode, mirror: mirror}
}

// PathOf returns the on-disk path for (owner, filename).
func (fs *FileStore) PathOf(owner, filename string) string {
	return filepath.Join(fs.root, owner+"_"+filename)
}

func (fs *FileStore) sidecarPath(path string) string {
	return path + sizeSidecarSuffix
}

// ReceiveInto creates path (truncating any prior file) and calls readExact
// with the destination writer; readExact is expected to copy exactly size
// raw bytes from the peer connection into it (see protocol.ReceiveExact).
// Overwrite is allowed. Returns protocol.ErrShortRead if fewer than size
// bytes were written.
func (fs *FileStore) ReceiveInto(path string, size int64, readExact func(dst io.Writer) (int64, error)) error {
	tmpPath := path + uploadTmpSuffix
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating upload temp file: %w", err)
	}

	var dst io.Writer = f
	var closer io.Closer = f
	if fs.compressionMode != "none" {
		cw, cerr := fs.newCompressWriter(f)
		if cerr != nil {
			f.Close()
			os.Remove(tmpPath)
			return cerr
		}
		dst = cw
		closer = multiCloser{cw, f}
	}

	n, err := readExact(dst)
	closeErr := closer.Close()
	if err != nil {
		os.Remove(tmpPath)
		return err
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing compressed stream: %w", closeErr)
	}
	if n != size {
		os.Remove(tmpPath)
		return protocol.ErrShortRead
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming upload into place: %w", err)
	}

	if fs.compressionMode != "none" {
		if err := os.WriteFile(fs.sidecarPath(path), []byte(strconv.FormatInt(size, 10)), 0o644); err != nil {
			return fmt.Errorf("writing size sidecar: %w", err)
		}
	} else {
		os.Remove(fs.sidecarPath(path))
	}

	return nil
}

// SendFrom opens path and hands the decompressed original byte stream to
// sendExact, which writes it to the peer in protocol-sized chunks.
func (fs *FileStore) SendFrom(path string, sendExact func(src io.Reader, n int64) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening stored file: %w", err)
	}
	defer f.Close()

	size, err := fs.SizeOf(path)
	if err != nil {
		return err
	}

	var src io.Reader = f
	if fs.compressionMode != "none" {
		dr, derr := fs.newDecompressReader(f)
		if derr != nil {
			return derr
		}
		if closer, ok := dr.(io.Closer); ok {
			defer closer.Close()
		}
		src = dr
	}

	return sendExact(src, size)
}

// Remove deletes the StoredFile and its size sidecar, if any. A missing
// file is reported upward as a plain *PathError from os.Remove.
func (fs *FileStore) Remove(path string) error {
	if err := os.Remove(path); err != nil {
		return err
	}
	os.Remove(fs.sidecarPath(path))
	return nil
}

// SizeOf returns the file's original, uncompressed length.
func (fs *FileStore) SizeOf(path string) (int64, error) {
	if fs.compressionMode == "none" {
		info, err := os.Stat(path)
		if err != nil {
			return 0, fmt.Errorf("statting stored file: %w", err)
		}
		return info.Size(), nil
	}

	data, err := os.ReadFile(fs.sidecarPath(path))
	if err != nil {
		return 0, fmt.Errorf("reading size sidecar: %w", err)
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing size sidecar: %w", err)
	}
	return n, nil
}

// Exists reports whether a StoredFile is present at path.
func (fs *FileStore) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (fs *FileStore) newCompressWriter(w io.Writer) (io.WriteCloser, error) {
	switch fs.compressionMode {
	case "gzip":
		return pgzip.NewWriter(w), nil
	case "zstd":
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("unknown compression mode %q", fs.compressionMode)
	}
}

func (fs *FileStore) newDecompressReader(r io.Reader) (io.Reader, error) {
	switch fs.compressionMode {
	case "gzip":
		return pgzip.NewReader(r)
	case "zstd":
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zstdReaderCloser{dec}, nil
	default:
		return nil, fmt.Errorf("unknown compression mode %q", fs.compressionMode)
	}
}

// zstdReaderCloser adapts *zstd.Decoder's Close (which has no error
// return) to io.Closer.
type zstdReaderCloser struct {
	*zstd.Decoder
}

func (z zstdReaderCloser) Close() error {
	z.Decoder.Close()
	return nil
}

// multiCloser closes each closer in order, returning the first error.
type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
