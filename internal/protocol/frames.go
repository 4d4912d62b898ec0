// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE file.

// Package protocol implements the filedrop wire protocol: a line-oriented
// control channel interleaved with raw bulk transfers on the same TCP
// stream. See control.go for framing and bulk.go for the payload copy.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Verbs recognized in the first whitespace-delimited token of a control
// frame sent while a session is in the Ready state.
const (
	VerbUpload     = "UPLOAD"
	VerbList       = "LIST"
	VerbDelete     = "DELETE"
	VerbDownload   = "DOWNLOAD"
	VerbDisconnect = "DISCONNECT"
)

// RespConnected is the Greeting success reply.
const RespConnected = "CONNECTED"

// RespReady is the literal the client must answer a FILESIZE announcement
// with before the server starts streaming a download payload.
const RespReady = "READY"

// RespNoFiles is the LIST reply body when the catalog is empty.
const RespNoFiles = "No files available."

// ErrUsernameTaken is sent during Greeting when the proposed username
// collides with an already-registered session, then the connection closes.
const ErrUsernameTaken = "ERROR: Username already connected."

// ErrInvalidUpload is sent when an UPLOAD command fails to parse.
const ErrInvalidUpload = "ERROR: Invalid UPLOAD command format."

// ErrInvalidDelete is sent when a DELETE command fails to parse.
const ErrInvalidDelete = "ERROR: Invalid DELETE command format."

// ErrInvalidDownload is sent when a DOWNLOAD command fails to parse.
const ErrInvalidDownload = "ERROR: Invalid DOWNLOAD command format."

// ErrConnectionDuringUpload is sent (best-effort) when the peer disconnects
// mid-payload during an UPLOAD.
const ErrConnectionDuringUpload = "ERROR: Connection error during upload."

// ErrNotOwner is the fixed DELETE reply for a non-owner attempt.
const ErrNotOwner = "ERROR: You cannot delete a file you didn't upload."

// ErrDownloadMissing is the DOWNLOAD reply when the target file is absent.
const ErrDownloadMissing = "ERROR: File does not exist."

// ErrStorageFull is sent when an UPLOAD is rejected because free disk space
// on the storage root has dropped below the configured floor.
const ErrStorageFull = "ERROR: Server storage is full."

// RespServerShutdown is broadcast to every registered session on operator
// shutdown, best-effort, before each stream is closed.
const RespServerShutdown = "SERVER_SHUTDOWN: The server is closing."

// ErrParse is returned by the Parse* helpers on malformed command bodies.
var ErrParse = errors.New("protocol: malformed command")

// ErrEmptyFrame is returned by ReadControlFrame when the peer sends a
// zero-length frame without closing the connection.
var ErrEmptyFrame = errors.New("protocol: empty control frame")

// SplitVerb splits a trimmed control frame into its leading verb and the
// remainder of the line (also trimmed). An empty line yields ("", "").
func SplitVerb(line string) (verb, rest string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	parts := strings.SplitN(line, " ", 2)
	verb = parts[0]
	if len(parts) == 2 {
		rest = strings.TrimSpace(parts[1])
	}
	return verb, rest
}

// ParseUpload parses the body of "UPLOAD <filename> <size>".
func ParseUpload(rest string) (filename string, size int64, err error) {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return "", 0, fmt.Errorf("%w: expected 'UPLOAD filename size'", ErrParse)
	}
	filename = fields[0]
	size, err = strconv.ParseInt(fields[1], 10, 64)
	if err != nil || size < 0 {
		return "", 0, fmt.Errorf("%w: invalid size %q", ErrParse, fields[1])
	}
	return filename, size, nil
}

// ParseDelete parses the body of "DELETE <filename>".
func ParseDelete(rest string) (filename string, err error) {
	fields := strings.Fields(rest)
	if len(fields) < 1 {
		return "", fmt.Errorf("%w: expected 'DELETE filename'", ErrParse)
	}
	return fields[0], nil
}

// ParseDownload parses the body of "DOWNLOAD <filename> <owner>".
func ParseDownload(rest string) (filename, owner string, err error) {
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return "", "", fmt.Errorf("%w: expected 'DOWNLOAD filename owner'", ErrParse)
	}
	return fields[0], fields[1], nil
}

// FormatUploadedNew renders the UPLOAD success reply for a brand new entry.
func FormatUploadedNew(filename string) string {
	return fmt.Sprintf("UPLOAD_RESPONSE: File '%s' uploaded successfully.", filename)
}

// FormatUploadedOverwrite renders the UPLOAD success reply for an entry that
// already existed for this owner.
func FormatUploadedOverwrite(filename string) string {
	return fmt.Sprintf("UPLOAD_RESPONSE: File '%s' overwritten successfully.", filename)
}

// FormatListEntry renders one LIST line for a catalog entry.
func FormatListEntry(filename, owner string) string {
	return fmt.Sprintf("%s (Owner: %s)", filename, owner)
}

// FormatDeleted renders the DELETE success reply.
func FormatDeleted(filename string) string {
	return fmt.Sprintf("DELETE_RESPONSE: File '%s' deleted successfully.", filename)
}

// FormatDeleteNotFound renders the DELETE reply for a filename with no
// catalog entry at all (as opposed to one owned by someone else).
func FormatDeleteNotFound(filename string) string {
	return fmt.Sprintf("ERROR: File '%s' does not exist.", filename)
}

// FormatFilesize renders the DOWNLOAD size announcement.
func FormatFilesize(n int64) string {
	return fmt.Sprintf("FILESIZE %d", n)
}

// FormatNotification renders the best-effort owner notification sent after
// a DOWNLOAD of one of their files.
func FormatNotification(filename, requester string) string {
	return fmt.Sprintf("NOTIFICATION: Your file '%s' was downloaded by '%s'.", filename, requester)
}

// FormatUnknownCommand renders the reply for an unrecognized verb.
func FormatUnknownCommand(verb string) string {
	return fmt.Sprintf("ERROR: Unknown command '%s'.", verb)
}

// FormatError wraps an arbitrary reason in the "ERROR: " envelope used for
// ProtocolError/StorageError cases spec.md leaves free-form.
func FormatError(reason string) string {
	return "ERROR: " + reason
}

// FormatDebug wraps an informational line in the "DEBUG: " envelope clients
// are required to ignore.
func FormatDebug(line string) string {
	return "DEBUG: " + line
}
