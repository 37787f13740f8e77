// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

package rewind

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestIndexSnapshotRoundTrip(t *testing.T) {
	tree := newTestTree(t)
	tree.writeLive("notes.txt", "v2", 2005)
	tree.writeArchived("notes.txt", "v1", 1000, 600)
	tree.writeArchived("gone.txt", "x", 800, 500)
	tree.writeLive("docs/readme.md", "hi", 1500)

	original := NewIndex(tree.scan(), time.Unix(5000, 0))
	path := filepath.Join(t.TempDir(), "index.cbor.zst")

	if err := WriteIndexSnapshot(path, original); err != nil {
		t.Fatalf("writing snapshot: %v", err)
	}
	loaded, err := LoadIndexSnapshot(path)
	if err != nil {
		t.Fatalf("loading snapshot: %v", err)
	}

	if !reflect.DeepEqual(loaded.Records(), original.Records()) {
		t.Error("loaded records differ from the originals")
	}
	if loaded.CorruptEntries() != original.CorruptEntries() {
		t.Errorf("corrupt count = %d, want %d", loaded.CorruptEntries(), original.CorruptEntries())
	}
	if !loaded.BuiltAt().Equal(time.Unix(5000, 0)) {
		t.Errorf("built at = %v, want the original publication instant", loaded.BuiltAt())
	}

	if !loaded.Existed("gone.txt", 650) {
		t.Error("loaded index lost an archived-only path")
	}
}

// The encoding is deterministic: rewriting an unchanged index yields
// byte-identical snapshots.
func TestIndexSnapshotStableBytes(t *testing.T) {
	tree := newTestTree(t)
	tree.writeLive("b.txt", "2", 200)
	tree.writeLive("a.txt", "1", 100)
	tree.writeArchived("a.txt", "0", 90, 50)

	index := NewIndex(tree.scan(), time.Unix(5000, 0))
	dir := t.TempDir()

	paths := []string{filepath.Join(dir, "one"), filepath.Join(dir, "two")}
	var contents [][]byte
	for _, path := range paths {
		if err := WriteIndexSnapshot(path, index); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading %s: %v", path, err)
		}
		contents = append(contents, data)
	}
	if !bytes.Equal(contents[0], contents[1]) {
		t.Error("two snapshots of the same index differ byte-wise")
	}
}

func TestIndexSnapshotReplacesAtomically(t *testing.T) {
	tree := newTestTree(t)
	tree.writeLive("a.txt", "1", 100)
	path := filepath.Join(t.TempDir(), "cache", "index.cbor.zst")

	if err := WriteIndexSnapshot(path, NewIndex(tree.scan(), time.Unix(1, 0))); err != nil {
		t.Fatalf("first write: %v", err)
	}

	tree.writeLive("b.txt", "2", 200)
	if err := WriteIndexSnapshot(path, NewIndex(tree.scan(), time.Unix(2, 0))); err != nil {
		t.Fatalf("second write: %v", err)
	}

	loaded, err := LoadIndexSnapshot(path)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if !loaded.Existed("b.txt", 500) {
		t.Error("snapshot was not replaced by the second write")
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("listing cache dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("cache dir holds %d entries, want only the snapshot", len(entries))
	}
}
