// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

package rewind

import (
	"fmt"
	"io/fs"
	"math"
	"sort"
)

// Kind classifies what a version record points at.
type Kind uint8

// Record kinds.
const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// kindOf maps a directory-entry mode to a record kind.
func kindOf(mode fs.FileMode) Kind {
	switch {
	case mode.IsDir():
		return KindDirectory
	case mode&fs.ModeSymlink != 0:
		return KindSymlink
	default:
		return KindFile
	}
}

// Time sentinels for validity intervals, in Unix epoch seconds (the
// archive's native time unit).
const (
	// EpochStart is the beginning of time from the index's
	// perspective. A record whose true start is unknown is treated
	// as valid since EpochStart; nothing can reference an instant
	// before the repository existed.
	EpochStart int64 = 0

	// Forever marks the currently-active record of a still-existing
	// path: its interval has no upper bound.
	Forever int64 = math.MaxInt64
)

// VersionRecord binds a logical path to one physical artifact over a
// half-open validity interval [ValidFrom, ValidUntil). Exactly one
// record per history may have ValidUntil == Forever, and if present
// it is the live one.
type VersionRecord struct {
	// LogicalPath is the normalized slash-separated path relative to
	// the source root. Empty string is the root directory itself.
	LogicalPath string `json:"logical_path"`

	// PhysicalPath is the absolute host-filesystem location backing
	// this version: the live entry for live records, the archived
	// artifact otherwise.
	PhysicalPath string `json:"physical_path"`

	// Live reports whether this record points at the mutable live
	// tree. Live metadata is read fresh at query time; archived
	// metadata below is frozen at scan time.
	Live bool `json:"live"`

	// ValidFrom and ValidUntil bound the half-open interval
	// [ValidFrom, ValidUntil) during which this version was the
	// current content of LogicalPath.
	ValidFrom  int64 `json:"valid_from"`
	ValidUntil int64 `json:"valid_until"`

	Kind Kind `json:"kind"`

	// Metadata snapshot taken when the record was scanned. For
	// archived records these are authoritative; for live records
	// they are a hint refreshed on each attribute query.
	Size    int64  `json:"size"`
	ModTime int64  `json:"mtime"`
	Mode    uint32 `json:"mode"`
}

// Contains reports whether instant t falls inside the record's
// validity interval. Boundaries are half-open: a record superseded
// exactly at t is no longer current at t.
func (r *VersionRecord) Contains(t int64) bool {
	return r.ValidFrom <= t && t < r.ValidUntil
}

// History is an ordered sequence of non-overlapping version records
// for one logical path. Gaps between consecutive intervals represent
// spans during which the path did not exist.
type History struct {
	records []VersionRecord
}

// At returns the record whose interval contains t, or nil if t falls
// in a gap (or before the first / after the last record).
func (h *History) At(t int64) *VersionRecord {
	if h == nil || len(h.records) == 0 {
		return nil
	}
	// First record starting strictly after t; the candidate is the
	// one before it.
	i := sort.Search(len(h.records), func(i int) bool {
		return h.records[i].ValidFrom > t
	})
	if i == 0 {
		return nil
	}
	candidate := &h.records[i-1]
	if !candidate.Contains(t) {
		return nil
	}
	return candidate
}

// ExistedAt reports whether the path had any current version at t.
func (h *History) ExistedAt(t int64) bool {
	return h.At(t) != nil
}

// Latest returns the most recent record, or nil for an empty history.
func (h *History) Latest() *VersionRecord {
	if h == nil || len(h.records) == 0 {
		return nil
	}
	return &h.records[len(h.records)-1]
}

// Records returns the underlying record slice in interval order. The
// slice is shared; callers must not mutate it.
func (h *History) Records() []VersionRecord {
	if h == nil {
		return nil
	}
	return h.records
}

// checkInvariants verifies ordering and non-overlap. Used by index
// construction in debug paths and by tests.
func (h *History) checkInvariants() error {
	for i := range h.records {
		r := &h.records[i]
		if r.ValidFrom >= r.ValidUntil {
			return fmt.Errorf("%s: empty interval [%d, %d)", r.LogicalPath, r.ValidFrom, r.ValidUntil)
		}
		if i == 0 {
			continue
		}
		previous := &h.records[i-1]
		if previous.ValidFrom > r.ValidFrom {
			return fmt.Errorf("%s: records out of order at %d", r.LogicalPath, i)
		}
		if previous.ValidUntil > r.ValidFrom {
			return fmt.Errorf("%s: intervals overlap at %d", r.LogicalPath, i)
		}
		if previous.ValidUntil == Forever {
			return fmt.Errorf("%s: live record is not last", r.LogicalPath)
		}
	}
	return nil
}
