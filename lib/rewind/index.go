// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

package rewind

import (
	"path"
	"sort"
	"time"
)

// Index is the process-wide version index: one History per logical
// path, plus a derived parent-to-children table for directory shape
// queries. An Index is immutable once built; the refresher replaces
// the published instance wholesale, so concurrent readers never need
// a lock and never observe a partial build.
type Index struct {
	histories map[string]*History
	children  map[string][]string
	builtAt   time.Time
	corrupt   int
}

// DirEntry is one name in a directory listing at a particular
// instant, with the kind its record had at that instant.
type DirEntry struct {
	Name string
	Kind Kind
}

// NewIndex builds an index from a scan result. The records must be
// the scanner's output: chained per path, non-overlapping, sorted by
// path then interval.
func NewIndex(result *ScanResult, builtAt time.Time) *Index {
	index := &Index{
		histories: make(map[string]*History),
		children:  make(map[string][]string),
		builtAt:   builtAt,
		corrupt:   result.Corrupt,
	}

	for _, record := range result.Records {
		history := index.histories[record.LogicalPath]
		if history == nil {
			history = &History{}
			index.histories[record.LogicalPath] = history
		}
		history.records = append(history.records, record)
	}

	// Derive the immediate-children table once; existence at a
	// given instant is still decided per query by each child's own
	// interval.
	seen := make(map[string]map[string]bool)
	for logical := range index.histories {
		if logical == "" {
			continue
		}
		parent := path.Dir(logical)
		if parent == "." {
			parent = ""
		}
		if seen[parent] == nil {
			seen[parent] = make(map[string]bool)
		}
		seen[parent][path.Base(logical)] = true
	}
	for parent, names := range seen {
		sorted := make([]string, 0, len(names))
		for name := range names {
			sorted = append(sorted, name)
		}
		sort.Strings(sorted)
		index.children[parent] = sorted
	}

	return index
}

// Resolve returns the record current for the path at instant t.
// Boundaries are half-open: at the exact instant a version was
// superseded, the newer version is the current one.
func (ix *Index) Resolve(logical string, t int64) (*VersionRecord, error) {
	record := ix.histories[logical].At(t)
	if record == nil {
		return nil, ErrNotFound
	}
	return record, nil
}

// Existed reports whether the path had any current version at t.
func (ix *Index) Existed(logical string, t int64) bool {
	return ix.histories[logical].ExistedAt(t)
}

// Children lists the entries of a directory that existed at t. Fails
// with ErrNotFound if the directory itself did not exist at t, and
// with ErrNotDirectory if the record current at t is not a directory.
func (ix *Index) Children(logical string, t int64) ([]DirEntry, error) {
	record, err := ix.Resolve(logical, t)
	if err != nil {
		return nil, err
	}
	if record.Kind != KindDirectory {
		return nil, ErrNotDirectory
	}

	names := ix.children[logical]
	entries := make([]DirEntry, 0, len(names))
	for _, name := range names {
		child := ix.histories[path.Join(logical, name)].At(t)
		if child == nil {
			continue
		}
		entries = append(entries, DirEntry{Name: name, Kind: child.Kind})
	}
	return entries, nil
}

// History returns the full version history of a path, or nil if the
// path has never been seen. Exposed for diagnostics and tests.
func (ix *Index) History(logical string) *History {
	return ix.histories[logical]
}

// Records flattens the index back into the deterministic record
// order the scanner produced. Used by the snapshot cache.
func (ix *Index) Records() []VersionRecord {
	paths := make([]string, 0, len(ix.histories))
	for logical := range ix.histories {
		paths = append(paths, logical)
	}
	sort.Strings(paths)

	var records []VersionRecord
	for _, logical := range paths {
		records = append(records, ix.histories[logical].records...)
	}
	return records
}

// Paths returns the number of logical paths the index tracks.
func (ix *Index) Paths() int { return len(ix.histories) }

// BuiltAt returns the instant this index was published.
func (ix *Index) BuiltAt() time.Time { return ix.builtAt }

// CorruptEntries returns the number of archive entries the scan
// skipped as unparseable.
func (ix *Index) CorruptEntries() int { return ix.corrupt }
