// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

package server

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// maxFilenameLength bounds a catalog filename; spec.md §3 requires ≥ 255.
const maxFilenameLength = 255

// maxUsernameLength bounds a connecting username.
const maxUsernameLength = 255

// validateFilename rejects anything that isn't a bare path component: no
// separators, no traversal, no control bytes. Unlike an agent/storage name,
// a filename is allowed to start with a dot (".bashrc" is a legal upload).
func validateFilename(name string) error {
	if name == "" {
		return fmt.Errorf("filename cannot be empty")
	}
	if len(name) > maxFilenameLength {
		return fmt.Errorf("filename exceeds max length %d", maxFilenameLength)
	}
	if strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("filename contains a path separator")
	}
	if name == "." || name == ".." {
		return fmt.Errorf("filename contains path traversal")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("filename contains path traversal")
	}
	if containsControlByte(name) {
		return fmt.Errorf("filename contains a control byte")
	}
	return nil
}

// validateUsername rejects anything unsafe to embed in "<owner>_<filename>"
// on disk and anything that isn't printable. spec.md §3 only requires
// non-empty printable text; separators are rejected defensively since the
// owner name is attacker-supplied and flows straight into a path.
func validateUsername(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if len(trimmed) > maxUsernameLength {
		return fmt.Errorf("username exceeds max length %d", maxUsernameLength)
	}
	if strings.ContainsAny(trimmed, "/\\") {
		return fmt.Errorf("username contains a path separator")
	}
	if containsControlByte(trimmed) {
		return fmt.Errorf("username contains a control byte")
	}
	return nil
}

func containsControlByte(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

// validatePathInBaseDir verifies the resolved path stays inside baseDir.
// Defense in depth: validateFilename/validateUsername already forbid the
// inputs that would let a path escape; handleDownload, whose owner and
// filename both come from the command line, also checks the derived path
// with this before touching the filesystem.
func validatePathInBaseDir(baseDir, resolvedPath string) error {
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("resolving base dir: %w", err)
	}
	absResolved, err := filepath.Abs(resolvedPath)
	if err != nil {
		return fmt.Errorf("resolving target path: %w", err)
	}

	rel, err := filepath.Rel(absBase, absResolved)
	if err != nil {
		return fmt.Errorf("path escapes base directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes base directory %q", resolvedPath, baseDir)
	}
	return nil
}
