// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse exposes the rewind snapshot adapter as a mounted
// read-only filesystem.
//
// The mount's root is synthetic: any non-negative decimal
// epoch-seconds name is a valid child, resolving to the source tree
// as it was at that instant:
//
//	mountpoint/1451059200/photos/cat.jpg
//
// The root is therefore not enumerable; directory listing shows only
// the "now" convenience symlink, whose target is the current
// epoch-seconds snapshot.
//
// # Read Path
//
// Nodes carry only their (instant, relative path) pair and
// re-resolve through the snapshot adapter on every kernel call, so
// an index refresh is visible on the next operation without
// remounting. Opens bind a kernel file handle directly to the
// resolved physical source — the live file or the archived artifact
// — and reads are plain pread calls; no content is ever copied or
// materialized. Archived artifacts are immutable, so their pages are
// kept in the kernel page cache across opens; live files are not
// cached that way.
//
// # Write Path
//
// Not implemented. Open with any write intent and all mutation
// operations return EROFS.
package fuse
