// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package server

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// catalogFileName is the shadow file's name at the storage root.
const catalogFileName = "file_list.txt"

// CatalogEntry is one (filename, owner) pair.
type CatalogEntry struct {
	Filename string
	Owner    string
}

// Catalog is the in-memory set of CatalogEntry, mirrored to a text shadow
// file on every mutation. All operations are serialized by a single mutex;
// the mutate-then-persist sequence runs inside the critical section so the
// on-disk order always matches the in-memory order.
type Catalog struct {
	mu      sync.Mutex
	root    string
	order   []CatalogEntry // insertion order, for snapshot()/LIST
	byPair  map[CatalogEntry]bool
	logger  *slog.Logger
}

// NewCatalog loads the catalog shadow file under root, if present, and
// returns a ready-to-use Catalog. A missing shadow file is not an error: a
// fresh storage root starts with an empty catalog.
func NewCatalog(root string, logger *slog.Logger) (*Catalog, error) {
	c := &Catalog{
		root:   root,
		byPair: make(map[CatalogEntry]bool),
		logger: logger.With("component", "catalog"),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) shadowPath() string {
	return filepath.Join(c.root, catalogFileName)
}

func (c *Catalog) load() error {
	f, err := os.Open(c.shadowPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening catalog file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		idx := strings.IndexByte(line, ',')
		if idx < 0 || idx == 0 || idx == len(line)-1 {
			c.logger.Warn("skipping malformed catalog line", "line", line)
			continue
		}
		entry := CatalogEntry{Filename: line[:idx], Owner: line[idx+1:]}
		if !c.byPair[entry] {
			c.byPair[entry] = true
			c.order = append(c.order, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading catalog file: %w", err)
	}
	return nil
}

// persistLocked rewrites the shadow file in full. Caller must hold mu.
func (c *Catalog) persistLocked() error {
	tmp, err := os.CreateTemp(c.root, ".file_list-*.tmp")
	if err != nil {
		return fmt.Errorf("creating catalog temp file: %w", err)
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	for _, e := range c.order {
		if _, err := fmt.Fprintf(w, "%s,%s\n", e.Filename, e.Owner); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("writing catalog entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("flushing catalog temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing catalog temp file: %w", err)
	}
	if err := os.Rename(tmpPath, c.shadowPath()); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming catalog temp file: %w", err)
	}
	return nil
}

// Add inserts or replaces (filename, owner). Idempotent for the same pair.
func (c *Catalog) Add(filename, owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := CatalogEntry{Filename: filename, Owner: owner}
	if !c.byPair[entry] {
		c.byPair[entry] = true
		c.order = append(c.order, entry)
	}
	return c.persistLocked()
}

// Remove deletes (filename, owner) if present. Returns whether it was
// present.
func (c *Catalog) Remove(filename, owner string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := CatalogEntry{Filename: filename, Owner: owner}
	if !c.byPair[entry] {
		return false, nil
	}
	delete(c.byPair, entry)
	for i, e := range c.order {
		if e == entry {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	if err := c.persistLocked(); err != nil {
		return true, err
	}
	return true, nil
}

// HasAny reports whether any entry exists for filename, regardless of
// owner.
func (c *Catalog) HasAny(filename string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.order {
		if e.Filename == filename {
			return true
		}
	}
	return false
}

// OwnerOfExactly reports whether (filename, owner) exists.
func (c *Catalog) OwnerOfExactly(filename, owner string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.byPair[CatalogEntry{Filename: filename, Owner: owner}]
}

// Snapshot returns the catalog entries in insertion order, for LIST.
func (c *Catalog) Snapshot() []CatalogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CatalogEntry, len(c.order))
	copy(out, c.order)
	return out
}
