// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

package rewind

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/psranga/btsync-rewind/lib/clock"
)

// Default refresh tuning. The interval bounds how stale the index
// can get without any filesystem events; the staleness threshold
// triggers an early rebuild when a query arrives against an old
// snapshot.
const (
	DefaultRefreshInterval    = 5 * time.Minute
	DefaultStalenessThreshold = 30 * time.Second
)

// RefresherOptions configures a Refresher.
type RefresherOptions struct {
	// Scanner produces the record set on each refresh. Required.
	Scanner *Scanner

	// Interval between unconditional periodic rescans. Zero uses
	// DefaultRefreshInterval.
	Interval time.Duration

	// Staleness is the age past which a query nudges a background
	// refresh. Zero uses DefaultStalenessThreshold; negative
	// disables the on-access trigger.
	Staleness time.Duration

	// Watch enables an fsnotify watch on the live and archive trees
	// so that changes schedule a rescan promptly. Watch setup
	// failure is non-fatal: the periodic interval still bounds
	// staleness.
	Watch bool

	// CachePath, if non-empty, is where the refresher persists an
	// index snapshot after each successful scan and loads a warm
	// index from at startup (see LoadCache).
	CachePath string

	// Clock provides time for staleness decisions and tickers. If
	// nil, defaults to clock.Real().
	Clock clock.Clock

	// Logger receives refresh diagnostics. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// Refresher owns the published index. It rebuilds off to the side
// and swaps the new index in atomically: readers holding the old
// snapshot finish against it undisturbed, and the next Current call
// on any goroutine sees the new one. A failed rescan leaves the
// previous index published.
type Refresher struct {
	scanner   *Scanner
	interval  time.Duration
	staleness time.Duration
	watch     bool
	cachePath string
	clock     clock.Clock
	logger    *slog.Logger

	current atomic.Pointer[Index]

	// kick schedules an asynchronous refresh. Capacity 1: bursts of
	// triggers collapse into one pending rescan.
	kick chan struct{}

	// scanMu serializes actual scans (single-flight); publication
	// itself is the lone atomic store.
	scanMu sync.Mutex
}

// NewRefresher creates a refresher. No scan happens until Refresh or
// Run is called.
func NewRefresher(options RefresherOptions) (*Refresher, error) {
	if options.Scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	if options.Interval == 0 {
		options.Interval = DefaultRefreshInterval
	}
	if options.Staleness == 0 {
		options.Staleness = DefaultStalenessThreshold
	}
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Refresher{
		scanner:   options.Scanner,
		interval:  options.Interval,
		staleness: options.Staleness,
		watch:     options.Watch,
		cachePath: options.CachePath,
		clock:     options.Clock,
		logger:    options.Logger,
		kick:      make(chan struct{}, 1),
	}, nil
}

// Current returns the published index, or ErrIndexUnavailable if no
// scan has ever succeeded (and no cached snapshot was loaded). If
// the index is older than the staleness threshold, a background
// refresh is scheduled; the stale index is still returned —
// staleness is preferred over blocking the query.
func (r *Refresher) Current() (*Index, error) {
	index := r.current.Load()
	if index == nil {
		return nil, ErrIndexUnavailable
	}
	if r.staleness > 0 && r.clock.Now().Sub(index.BuiltAt()) > r.staleness {
		r.nudge()
	}
	return index, nil
}

// nudge schedules an asynchronous refresh if one is not already
// pending.
func (r *Refresher) nudge() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Refresh runs one full scan and, on success, publishes the new
// index and rewrites the snapshot cache. On failure the previously
// published index (if any) stays in place and the error is returned
// for the caller to log or surface.
func (r *Refresher) Refresh(ctx context.Context) error {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	started := r.clock.Now()
	result, err := r.scanner.Scan()
	if err != nil {
		return fmt.Errorf("archive scan: %w", err)
	}

	index := NewIndex(result, r.clock.Now())
	r.current.Store(index)
	r.logger.Info("version index published",
		"paths", index.Paths(),
		"records", len(result.Records),
		"corrupt_entries", result.Corrupt,
		"elapsed", r.clock.Now().Sub(started),
	)

	if r.cachePath != "" {
		if err := WriteIndexSnapshot(r.cachePath, index); err != nil {
			r.logger.Warn("writing index snapshot cache", "path", r.cachePath, "error", err)
		}
	}
	return nil
}

// LoadCache publishes a warm index from the snapshot cache so that
// queries can be served while the first real scan runs. It does
// nothing if no cache path is configured, the file is absent, or an
// index is already published; a corrupt cache is logged and ignored
// (the cache is advisory).
func (r *Refresher) LoadCache() {
	if r.cachePath == "" || r.current.Load() != nil {
		return
	}
	index, err := LoadIndexSnapshot(r.cachePath)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("ignoring unreadable index snapshot cache", "path", r.cachePath, "error", err)
		}
		return
	}
	if r.current.CompareAndSwap(nil, index) {
		r.logger.Info("warm index loaded from snapshot cache",
			"path", r.cachePath, "paths", index.Paths(), "built_at", index.BuiltAt())
	}
}

// Run performs an initial refresh and then keeps the index fresh
// until the context is cancelled: periodically on the configured
// interval, on staleness nudges from Current, and (when watching is
// enabled) on filesystem events under the live and archive trees.
// Refresh failures are logged, never fatal: the previous index keeps
// serving.
func (r *Refresher) Run(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Error("initial scan failed", "error", err)
	}

	var watcher *fsnotify.Watcher
	var events <-chan fsnotify.Event
	var watchErrors <-chan error
	if r.watch {
		var err error
		watcher, err = r.startWatcher()
		if err != nil {
			r.logger.Warn("filesystem watch unavailable, relying on periodic refresh", "error", err)
		} else {
			defer watcher.Close()
			events = watcher.Events
			watchErrors = watcher.Errors
		}
	}

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.refreshAndLog(ctx)
		case <-r.kick:
			r.refreshAndLog(ctx)
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			// Newly created directories must join the watch set or
			// changes inside them go unseen.
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
					if err := watcher.Add(event.Name); err != nil {
						r.logger.Warn("cannot watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			// Any mutation means the next lookup may be answered
			// wrong; a full rescan is the only consistency unit.
			r.logger.Debug("filesystem change, scheduling rescan", "path", event.Name, "op", event.Op.String())
			r.nudge()
		case err, ok := <-watchErrors:
			if !ok {
				watchErrors = nil
				continue
			}
			r.logger.Warn("filesystem watcher error", "error", err)
		}
	}
}

func (r *Refresher) refreshAndLog(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("refresh failed, keeping previous index", "error", err)
	}
}

// startWatcher registers every directory of both trees with
// fsnotify. fsnotify watches are not recursive, so the whole tree is
// walked once here; directories created afterwards are added from
// their create events in the Run loop.
func (r *Refresher) startWatcher() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, root := range []string{r.scanner.LiveRoot, r.scanner.ArchiveRoot} {
		if err := watchTree(watcher, root, r.logger); err != nil {
			watcher.Close()
			return nil, err
		}
	}
	return watcher, nil
}

// watchTree adds root and every directory beneath it to the watch
// set. Unwatchable directories are logged and skipped.
func watchTree(watcher *fsnotify.Watcher, root string, logger *slog.Logger) error {
	return filepath.WalkDir(root, func(entryPath string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if entryPath == root {
				return walkErr
			}
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if err := watcher.Add(entryPath); err != nil {
			logger.Warn("cannot watch directory", "path", entryPath, "error", err)
		}
		return nil
	})
}

var _ IndexProvider = (*Refresher)(nil)
