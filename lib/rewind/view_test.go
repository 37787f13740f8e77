// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

package rewind

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/psranga/btsync-rewind/lib/clock"
)

func newTestView(t *testing.T, tree *testTree) *View {
	t.Helper()
	view, err := NewView(ViewOptions{Provider: StaticProvider(tree.index())})
	if err != nil {
		t.Fatalf("creating view: %v", err)
	}
	return view
}

func TestViewRootAttributes(t *testing.T) {
	tree := newTestTree(t)
	view := newTestView(t, tree)

	attributes, err := view.GetAttributes("/")
	if err != nil {
		t.Fatalf("root attributes: %v", err)
	}
	if attributes.Kind != KindDirectory {
		t.Errorf("root kind = %v, want directory", attributes.Kind)
	}
	if attributes.Mode&0o222 != 0 {
		t.Errorf("root mode %o has write bits set", attributes.Mode)
	}
}

func TestViewArchivedAttributesAreFrozen(t *testing.T) {
	tree := newTestTree(t)
	tree.writeLive("notes.txt", "live version", 2000)
	tree.writeArchived("notes.txt", "old", 1000, 600)
	view := newTestView(t, tree)

	attributes, err := view.GetAttributes("/900/notes.txt")
	if err != nil {
		t.Fatalf("attributes at 900: %v", err)
	}
	if attributes.Live {
		t.Error("archived version reported as live")
	}
	if attributes.Size != 3 || attributes.ModTime != 600 {
		t.Errorf("frozen metadata size=%d mtime=%d, want 3/600", attributes.Size, attributes.ModTime)
	}
	if attributes.Mode&0o222 != 0 {
		t.Errorf("mode %o has write bits set", attributes.Mode)
	}
}

func TestViewLiveAttributesAreFresh(t *testing.T) {
	tree := newTestTree(t)
	tree.writeLive("notes.txt", "short", 2000)
	view := newTestView(t, tree)

	// Grow the live file after the scan; attribute queries must see
	// the current size, not the scanned one.
	tree.writeLive("notes.txt", "much longer content", 2100)

	attributes, err := view.GetAttributes("/2200/notes.txt")
	if err != nil {
		t.Fatalf("attributes: %v", err)
	}
	if !attributes.Live {
		t.Error("live version not reported as live")
	}
	if attributes.Size != int64(len("much longer content")) {
		t.Errorf("size = %d, want post-scan size %d", attributes.Size, len("much longer content"))
	}
}

func TestViewVanishedLiveEntry(t *testing.T) {
	tree := newTestTree(t)
	tree.writeLive("fleeting.txt", "x", 1000)
	view := newTestView(t, tree)

	if err := os.Remove(filepath.Join(tree.live, "fleeting.txt")); err != nil {
		t.Fatalf("removing live file: %v", err)
	}

	if _, err := view.GetAttributes("/1500/fleeting.txt"); !errors.Is(err, ErrNotFound) {
		t.Errorf("vanished live entry: err = %v, want ErrNotFound", err)
	}
}

func TestViewRootListing(t *testing.T) {
	tree := newTestTree(t)
	view := newTestView(t, tree)

	entries, err := view.ListDirectory("/")
	if err != nil {
		t.Fatalf("listing root: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != NowEntry || entries[0].Kind != KindSymlink {
		t.Errorf("root listing = %v, want the single %q symlink", entries, NowEntry)
	}
}

func TestViewSnapshotListing(t *testing.T) {
	tree := newTestTree(t)
	tree.writeLive("a.txt", "x", 100)
	tree.writeArchived("b.txt", "y", 800, 300)
	view := newTestView(t, tree)

	entries, err := view.ListDirectory("/500")
	if err != nil {
		t.Fatalf("listing /500: %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "a.txt" || entries[1].Name != "b.txt" {
		t.Errorf("listing at 500 = %v, want [a.txt b.txt]", entries)
	}

	entries, err = view.ListDirectory("/900")
	if err != nil {
		t.Fatalf("listing /900: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "a.txt" {
		t.Errorf("listing at 900 = %v, want [a.txt]", entries)
	}
}

func TestViewOpenAndRead(t *testing.T) {
	tree := newTestTree(t)
	tree.writeLive("notes.txt", "current", 2000)
	tree.writeArchived("notes.txt", "previous", 1000, 600)
	view := newTestView(t, tree)

	handle, err := view.Open("/700/notes.txt")
	if err != nil {
		t.Fatalf("open at 700: %v", err)
	}
	defer handle.Close()

	buffer := make([]byte, 32)
	n, err := handle.ReadAt(buffer, 0)
	if err != nil && err != io.EOF {
		t.Fatalf("read: %v", err)
	}
	if got := string(buffer[:n]); got != "previous" {
		t.Errorf("read %q, want the archived bytes %q", got, "previous")
	}
	if handle.Record().Live {
		t.Error("handle at 700 bound to the live copy")
	}

	live, err := view.Open("/3000/notes.txt")
	if err != nil {
		t.Fatalf("open at 3000: %v", err)
	}
	defer live.Close()
	n, err = live.ReadAt(buffer, 0)
	if err != nil && err != io.EOF {
		t.Fatalf("read live: %v", err)
	}
	if got := string(buffer[:n]); got != "current" {
		t.Errorf("read %q, want the live bytes %q", got, "current")
	}
}

func TestViewOpenDirectory(t *testing.T) {
	tree := newTestTree(t)
	tree.writeLive("docs/readme.md", "x", 100)
	view := newTestView(t, tree)

	if _, err := view.Open("/500/docs"); !errors.Is(err, ErrIsDirectory) {
		t.Errorf("opening a directory: err = %v, want ErrIsDirectory", err)
	}
}

// A non-numeric first component is not a snapshot.
func TestViewNonNumericSnapshot(t *testing.T) {
	tree := newTestTree(t)
	tree.writeLive("file.txt", "x", 100)
	view := newTestView(t, tree)

	if _, err := view.GetAttributes("/abc/file.txt"); !errors.Is(err, ErrInvalidTimestamp) {
		t.Errorf("non-numeric snapshot: err = %v, want ErrInvalidTimestamp", err)
	}
}

func TestViewNowSymlink(t *testing.T) {
	tree := newTestTree(t)
	fake := clock.Fake(time.Unix(12345, 0))
	view, err := NewView(ViewOptions{
		Provider: StaticProvider(tree.index()),
		Clock:    fake,
	})
	if err != nil {
		t.Fatalf("creating view: %v", err)
	}

	target, err := view.ReadLink("/" + NowEntry)
	if err != nil {
		t.Fatalf("readlink now: %v", err)
	}
	if target != "12345" {
		t.Errorf("now target = %q, want %q", target, "12345")
	}

	fake.Advance(10 * time.Second)
	if target, _ := view.ReadLink("/" + NowEntry); target != "12355" {
		t.Errorf("now target after advance = %q, want %q", target, "12355")
	}
}

func TestViewSymlinkReadLink(t *testing.T) {
	tree := newTestTree(t)
	tree.writeLive("target.txt", "x", 100)
	linkPath := filepath.Join(tree.live, "link")
	if err := os.Symlink("target.txt", linkPath); err != nil {
		t.Fatalf("creating symlink: %v", err)
	}
	view := newTestView(t, tree)

	// The symlink's mtime is its creation time, so query in the
	// far future to land inside its validity interval.
	at := time.Now().Add(time.Hour).Unix()
	target, err := view.ReadLink(fmt.Sprintf("/%d/link", at))
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if target != "target.txt" {
		t.Errorf("target = %q, want %q", target, "target.txt")
	}

	if _, err := view.ReadLink(fmt.Sprintf("/%d/target.txt", at)); err == nil {
		t.Error("readlink on a regular file succeeded")
	}
}
