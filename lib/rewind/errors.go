// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

package rewind

import "errors"

// Sentinel errors returned by index and view operations. The FUSE
// layer maps these to the platform's native errno values; library
// callers test them with errors.Is.
var (
	// ErrNotFound means the path has no record whose interval
	// contains the requested instant: it either never existed or
	// fell in an existence gap (deleted, later re-created).
	ErrNotFound = errors.New("no version at the requested instant")

	// ErrNotDirectory means a directory operation was invoked on a
	// path whose resolved record is a file or symlink.
	ErrNotDirectory = errors.New("not a directory")

	// ErrIsDirectory means a file operation was invoked on a path
	// whose resolved record is a directory.
	ErrIsDirectory = errors.New("is a directory")

	// ErrInvalidTimestamp means the leading segment of an external
	// path did not parse as a non-negative decimal epoch-seconds
	// value.
	ErrInvalidTimestamp = errors.New("invalid timestamp segment")

	// ErrMalformedPath means an external path violated the expected
	// shape (missing leading slash, trailing slash, empty or
	// dot-relative segments).
	ErrMalformedPath = errors.New("malformed path")

	// ErrIndexUnavailable means no index has ever been built: the
	// first archive scan has not completed (or keeps failing). Every
	// query fails with this until a scan succeeds; it clears
	// automatically on the first successful build.
	ErrIndexUnavailable = errors.New("version index not yet available")
)
