// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

package rewind

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"

	"github.com/psranga/btsync-rewind/lib/clock"
)

// NowEntry is the convenience name under the synthetic root: a
// symlink whose target is the current epoch-seconds snapshot.
const NowEntry = "now"

// IndexProvider hands out the currently published index. The
// refresher is the production implementation; StaticProvider pins a
// single index for tests and one-shot tools.
type IndexProvider interface {
	// Current returns the published index, or ErrIndexUnavailable
	// if no scan has ever succeeded. The returned index is immutable;
	// an operation that holds it across its whole duration is
	// undisturbed by a concurrent refresh.
	Current() (*Index, error)
}

type staticProvider struct{ index *Index }

func (p staticProvider) Current() (*Index, error) { return p.index, nil }

// StaticProvider returns an IndexProvider that always serves the
// given index.
func StaticProvider(index *Index) IndexProvider { return staticProvider{index: index} }

// ViewOptions configures a View.
type ViewOptions struct {
	// Provider supplies the index snapshot each operation runs
	// against. Required.
	Provider IndexProvider

	// Clock provides time for the "now" symlink target. If nil,
	// defaults to clock.Real().
	Clock clock.Clock

	// Logger receives diagnostic messages. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// View is the snapshot adapter: the four read-only filesystem
// operations (attributes, directory listing, open/read, readlink)
// expressed over external "/<epoch-seconds>/<path>" paths. Every
// operation takes one index snapshot up front and is a pure function
// of (snapshot, request).
type View struct {
	provider IndexProvider
	clock    clock.Clock
	logger   *slog.Logger
}

// NewView creates a snapshot adapter.
func NewView(options ViewOptions) (*View, error) {
	if options.Provider == nil {
		return nil, fmt.Errorf("index provider is required")
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &View{
		provider: options.Provider,
		clock:    options.Clock,
		logger:   options.Logger,
	}, nil
}

// Attributes is the metadata answer for one external path.
type Attributes struct {
	Kind    Kind
	Size    int64
	ModTime int64

	// Mode is the permission bits with all write bits cleared; the
	// whole tree is read-only.
	Mode uint32

	// Live reports whether the metadata was read fresh from the
	// live tree (true) or frozen at archive time (false).
	Live bool
}

// readOnlyMode strips write permission bits.
func readOnlyMode(mode uint32) uint32 { return mode &^ 0o222 }

// GetAttributes resolves an external path and returns its metadata
// at the routed instant. Live records are stat'ed fresh from the
// host filesystem at call time; archived records serve the metadata
// frozen when they were scanned.
func (v *View) GetAttributes(external string) (Attributes, error) {
	if external == "/" {
		// The synthetic root: always present, never resolved
		// through the index.
		return Attributes{Kind: KindDirectory, Mode: 0o555}, nil
	}

	record, err := v.resolve(external)
	if err != nil {
		return Attributes{}, err
	}
	return v.recordAttributes(record)
}

func (v *View) recordAttributes(record *VersionRecord) (Attributes, error) {
	attributes := Attributes{
		Kind:    record.Kind,
		Size:    record.Size,
		ModTime: record.ModTime,
		Mode:    readOnlyMode(record.Mode),
		Live:    record.Live,
	}
	if !record.Live {
		return attributes, nil
	}

	// The live tree moves underneath the index; what matters is the
	// state at call time, not at scan time.
	info, err := os.Lstat(record.PhysicalPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Attributes{}, fmt.Errorf("live entry %s: %w", record.LogicalPath, ErrNotFound)
		}
		return Attributes{}, fmt.Errorf("stat live entry %s: %w", record.PhysicalPath, err)
	}
	attributes.Size = info.Size()
	attributes.ModTime = info.ModTime().Unix()
	attributes.Mode = readOnlyMode(uint32(info.Mode().Perm()))
	return attributes, nil
}

// ListDirectory lists the children of an external directory path
// that existed at the routed instant. The synthetic root lists only
// its convenience entries; any non-negative timestamp is a valid
// child of the root whether listed or not.
func (v *View) ListDirectory(external string) ([]DirEntry, error) {
	if external == "/" {
		return []DirEntry{{Name: NowEntry, Kind: KindSymlink}}, nil
	}

	t, relative, err := SplitPath(external)
	if err != nil {
		return nil, err
	}
	index, err := v.provider.Current()
	if err != nil {
		return nil, err
	}
	return index.Children(relative, t)
}

// Open resolves an external path to a file version and returns a
// read handle bound to its physical source. No content is copied:
// the handle reads the live file or the archived artifact in place.
func (v *View) Open(external string) (*Handle, error) {
	record, err := v.resolve(external)
	if err != nil {
		return nil, err
	}
	if record.Kind == KindDirectory {
		return nil, fmt.Errorf("%s: %w", external, ErrIsDirectory)
	}

	file, err := os.Open(record.PhysicalPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", external, ErrNotFound)
		}
		return nil, fmt.Errorf("opening %s: %w", record.PhysicalPath, err)
	}
	return &Handle{file: file, record: *record}, nil
}

// ReadLink returns the target of a symlink at the routed instant.
// The root's "now" entry is synthetic: its target is the current
// epoch-seconds snapshot directory, evaluated at call time.
func (v *View) ReadLink(external string) (string, error) {
	if external == "/"+NowEntry {
		return strconv.FormatInt(v.clock.Now().Unix(), 10), nil
	}

	record, err := v.resolve(external)
	if err != nil {
		return "", err
	}
	if record.Kind != KindSymlink {
		return "", fmt.Errorf("%s is a %s, not a symlink", external, record.Kind)
	}
	target, err := os.Readlink(record.PhysicalPath)
	if err != nil {
		return "", fmt.Errorf("readlink %s: %w", record.PhysicalPath, err)
	}
	return target, nil
}

// resolve routes an external path and resolves it against the
// current index snapshot.
func (v *View) resolve(external string) (*VersionRecord, error) {
	t, relative, err := SplitPath(external)
	if err != nil {
		return nil, err
	}
	index, err := v.provider.Current()
	if err != nil {
		return nil, err
	}
	record, err := index.Resolve(relative, t)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", external, err)
	}
	return record, nil
}

// Handle is an open read handle bound to one physical source. The
// archived case is immutable and safe for arbitrary concurrent
// reads; the live case may observe concurrent writes to the
// underlying file, which is inherent to exposing a moving target
// read-only.
type Handle struct {
	file   *os.File
	record VersionRecord
}

// ReadAt reads a byte range from the underlying physical source.
// Semantics are those of io.ReaderAt (short reads at end of file
// return io.EOF alongside the bytes read).
func (h *Handle) ReadAt(buffer []byte, offset int64) (int, error) {
	return h.file.ReadAt(buffer, offset)
}

// Record returns the version record this handle was resolved to.
func (h *Handle) Record() *VersionRecord { return &h.record }

// Close releases the underlying file descriptor.
func (h *Handle) Close() error { return h.file.Close() }
