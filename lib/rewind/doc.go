// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

// Package rewind implements the temporal resolution engine behind the
// rewindable filesystem: given a live BTSync folder plus its
// append-only version archive, it answers "what did path P look like
// at instant T?" for both file content and directory shape, without
// ever materializing a historical copy.
//
// The package is organized in layers, each usable independently:
//
//   - Records: a VersionRecord binds a logical path to one physical
//     artifact (the live file or an archived copy) over a half-open
//     validity interval [from, until). A path's absence is a gap in
//     its history, not a sentinel record.
//
//   - Scanner: walks the live tree and the archive once and emits the
//     complete record set. Archived artifacts encode the supersede
//     instant in their filename suffix; entries that fail to parse
//     are skipped with a diagnostic, never fatal to the scan.
//
//   - Index: immutable once built. Per-path interval search (binary
//     search over sorted valid_from) resolves a (path, T) pair to the
//     record active at T; a derived parent-to-children table answers
//     directory listings filtered by each child's own interval.
//
//   - View: the snapshot adapter. Implements the four read-only
//     filesystem operations (attributes, list, open/read, readlink)
//     in terms of the index, plus the /<epoch-seconds>/<path> router
//     that turns an external path into a (T, relative path) pair.
//
//   - Refresher: rebuilds the index off to the side and publishes it
//     with a single atomic pointer swap. Readers never block each
//     other and never observe a partially-built index; a failed
//     rescan keeps the previous index published (staleness is
//     preferred over unavailability).
//
// The FUSE binding lives in the rewind/fuse subpackage. Nothing in
// this package depends on a transport; every operation is a pure
// function of (published index, request).
package rewind
