// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

package rewind

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// DefaultArchiveDir is the archive location BTSync maintains inside a
// synchronized folder, relative to the source root.
const DefaultArchiveDir = ".sync/Archive"

// syncMetaDir is the BTSync metadata directory at the top of the live
// tree. It is never part of the logical namespace.
const syncMetaDir = ".sync"

// Scanner walks the live tree and the archive and produces the
// complete set of version records. Scans are read-only and
// deterministic: two scans over an unchanged tree yield identical
// results.
type Scanner struct {
	// LiveRoot is the synchronized source directory.
	LiveRoot string

	// ArchiveRoot is the append-only archive of superseded versions.
	// Its directory structure mirrors the live tree; an archived
	// artifact for logical path "dir/name" lives at
	// "<ArchiveRoot>/dir/name.<epoch-seconds>", the suffix being the
	// instant the version was superseded. The artifact's own mtime
	// is the frozen content mtime.
	ArchiveRoot string

	// Logger receives per-entry diagnostics. If nil, a no-op logger
	// is used.
	Logger *slog.Logger
}

// ScanResult is the output of one full scan: chained, per-path
// non-overlapping records in deterministic order, plus the count of
// archive entries that could not be parsed.
type ScanResult struct {
	Records []VersionRecord

	// Corrupt counts archive entries skipped because their encoded
	// timestamp could not be parsed or their metadata could not be
	// read. Never fatal to the scan.
	Corrupt int
}

// Scan walks both trees and returns the chained record set. The live
// root and the archive root must both exist; anything less is a
// failed scan (the refresher keeps the previous index in that case).
func (s *Scanner) Scan() (*ScanResult, error) {
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if info, err := os.Stat(s.LiveRoot); err != nil {
		return nil, fmt.Errorf("live root: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("live root %s is not a directory", s.LiveRoot)
	}
	if info, err := os.Stat(s.ArchiveRoot); err != nil {
		return nil, fmt.Errorf("archive root: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("archive root %s is not a directory", s.ArchiveRoot)
	}

	collector := &recordCollector{byPath: make(map[string]*pathRecords)}

	if err := s.walkLive(collector, logger); err != nil {
		return nil, err
	}
	corrupt := s.walkArchive(collector, logger)

	result := &ScanResult{
		Records: collector.chain(logger),
		Corrupt: corrupt,
	}
	return result, nil
}

// walkLive emits one live record per entry of the source tree. The
// BTSync metadata directory and the archive subtree are excluded from
// the logical namespace.
func (s *Scanner) walkLive(collector *recordCollector, logger *slog.Logger) error {
	archiveAbs, err := filepath.Abs(s.ArchiveRoot)
	if err != nil {
		return fmt.Errorf("resolving archive root: %w", err)
	}

	return filepath.WalkDir(s.LiveRoot, func(entryPath string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if entryPath == s.LiveRoot {
				return walkErr
			}
			logger.Warn("skipping unreadable live entry", "path", entryPath, "error", walkErr)
			return nil
		}

		relative, err := filepath.Rel(s.LiveRoot, entryPath)
		if err != nil {
			return err
		}
		logical := filepath.ToSlash(relative)
		if logical == "." {
			logical = ""
		}

		if entry.IsDir() {
			if logical == syncMetaDir {
				return filepath.SkipDir
			}
			if abs, err := filepath.Abs(entryPath); err == nil && abs == archiveAbs {
				return filepath.SkipDir
			}
		}

		info, err := entry.Info()
		if err != nil {
			logger.Warn("skipping live entry without metadata", "path", entryPath, "error", err)
			return nil
		}

		record := VersionRecord{
			LogicalPath:  logical,
			PhysicalPath: entryPath,
			Live:         true,
			ValidUntil:   Forever,
			Kind:         kindOf(info.Mode()),
			Size:         info.Size(),
			ModTime:      info.ModTime().Unix(),
			Mode:         uint32(info.Mode().Perm()),
		}
		if record.Kind == KindDirectory {
			// Directories are their own interval-tracked entries,
			// but a directory's mtime moves whenever a child
			// changes, so it says nothing about when the directory
			// came to be. Treat it as having always existed.
			record.ValidFrom = EpochStart
		} else {
			record.ValidFrom = max(record.ModTime, EpochStart)
		}
		collector.add(record)
		return nil
	})
}

// walkArchive emits one frozen record per archived artifact. Returns
// the number of entries skipped as corrupt.
func (s *Scanner) walkArchive(collector *recordCollector, logger *slog.Logger) int {
	corrupt := 0

	err := filepath.WalkDir(s.ArchiveRoot, func(entryPath string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if entryPath == s.ArchiveRoot {
				return walkErr
			}
			logger.Warn("skipping unreadable archive entry", "path", entryPath, "error", walkErr)
			return nil
		}

		relative, err := filepath.Rel(s.ArchiveRoot, entryPath)
		if err != nil {
			return err
		}
		logical := filepath.ToSlash(relative)
		if logical == "." {
			return nil
		}

		if entry.IsDir() {
			// A directory present in the archive existed at some
			// point; it gets (or merges into) an always-existing
			// directory record. Archived children carry their own
			// intervals.
			info, err := entry.Info()
			if err != nil {
				logger.Warn("skipping archive directory without metadata", "path", entryPath, "error", err)
				return filepath.SkipDir
			}
			collector.add(VersionRecord{
				LogicalPath:  logical,
				PhysicalPath: entryPath,
				ValidFrom:    EpochStart,
				ValidUntil:   Forever,
				Kind:         KindDirectory,
				ModTime:      info.ModTime().Unix(),
				Mode:         uint32(info.Mode().Perm()),
			})
			return nil
		}

		name, superseded, ok := splitArchiveName(path.Base(logical))
		if !ok {
			corrupt++
			logger.Warn("archive entry has no parseable supersede timestamp",
				"path", entryPath)
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			corrupt++
			logger.Warn("skipping archive entry without metadata", "path", entryPath, "error", err)
			return nil
		}

		collector.add(VersionRecord{
			LogicalPath:  path.Join(path.Dir(logical), name),
			PhysicalPath: entryPath,
			ValidFrom:    max(info.ModTime().Unix(), EpochStart),
			ValidUntil:   superseded,
			Kind:         kindOf(info.Mode()),
			Size:         info.Size(),
			ModTime:      info.ModTime().Unix(),
			Mode:         uint32(info.Mode().Perm()),
		})
		return nil
	})
	if err != nil {
		// Both roots were stat-checked before walking; an error here
		// means the archive vanished mid-scan. The partial record
		// set is still internally consistent.
		logger.Error("archive walk aborted", "error", err)
	}

	return corrupt
}

// splitArchiveName splits "name.<epoch-seconds>" into the logical
// name and the supersede instant. Returns ok=false if the suffix is
// missing or not a non-negative decimal integer.
func splitArchiveName(base string) (name string, superseded int64, ok bool) {
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 || dot == len(base)-1 {
		return "", 0, false
	}
	suffix := base[dot+1:]
	seconds, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil || seconds < 0 {
		return "", 0, false
	}
	return base[:dot], seconds, true
}

// pathRecords accumulates the raw records of one logical path before
// chaining.
type pathRecords struct {
	archived []VersionRecord
	live     *VersionRecord
	dir      *VersionRecord
}

type recordCollector struct {
	byPath map[string]*pathRecords
}

func (c *recordCollector) add(record VersionRecord) {
	group := c.byPath[record.LogicalPath]
	if group == nil {
		group = &pathRecords{}
		c.byPath[record.LogicalPath] = group
	}
	switch {
	case record.Kind == KindDirectory:
		// Live and archived sightings of the same directory merge
		// into one record; prefer the live one.
		if group.dir == nil || record.Live {
			group.dir = &record
		}
	case record.Live:
		group.live = &record
	default:
		group.archived = append(group.archived, record)
	}
}

// chain orders each path's records, welds consecutive intervals
// together (a version's valid_from is the previous version's
// valid_until; the earliest keeps its own mtime), and flattens the
// result sorted by path then interval.
func (c *recordCollector) chain(logger *slog.Logger) []VersionRecord {
	paths := make([]string, 0, len(c.byPath))
	for logical := range c.byPath {
		paths = append(paths, logical)
	}
	sort.Strings(paths)

	var records []VersionRecord
	for _, logical := range paths {
		records = append(records, chainPath(c.byPath[logical], logger)...)
	}
	return records
}

func chainPath(group *pathRecords, logger *slog.Logger) []VersionRecord {
	chained := group.archived
	sort.SliceStable(chained, func(i, j int) bool {
		if chained[i].ValidUntil != chained[j].ValidUntil {
			return chained[i].ValidUntil < chained[j].ValidUntil
		}
		return chained[i].PhysicalPath < chained[j].PhysicalPath
	})

	// Two artifacts superseded in the same second cannot both occupy
	// the chain; keep the one with the later content mtime.
	deduped := chained[:0]
	for _, record := range chained {
		if n := len(deduped); n > 0 && deduped[n-1].ValidUntil == record.ValidUntil {
			if record.ModTime >= deduped[n-1].ModTime {
				logger.Debug("duplicate supersede instant, keeping newer artifact",
					"path", record.LogicalPath, "kept", record.PhysicalPath)
				deduped[n-1] = record
			}
			continue
		}
		deduped = append(deduped, record)
	}
	chained = deduped

	// The terminal record: the live file, or for a path that turned
	// into a directory, the directory itself (chained so the file
	// intervals and the directory interval do not overlap).
	switch {
	case group.live != nil:
		chained = append(chained, *group.live)
	case group.dir != nil && len(chained) > 0:
		terminal := *group.dir
		chained = append(chained, terminal)
	case group.dir != nil:
		return []VersionRecord{*group.dir}
	}

	for i := 1; i < len(chained); i++ {
		chained[i].ValidFrom = chained[i-1].ValidUntil
	}
	if len(chained) > 0 && chained[0].ValidFrom >= chained[0].ValidUntil {
		// Content mtime at or past the supersede instant (clock
		// skew, sub-second churn). Fall back to the beginning of
		// time rather than inventing an empty interval.
		chained[0].ValidFrom = EpochStart
	}

	// Drop anything still empty (a version superseded at the epoch).
	valid := chained[:0]
	for _, record := range chained {
		if record.ValidFrom >= record.ValidUntil {
			logger.Debug("dropping empty version interval",
				"path", record.LogicalPath, "artifact", record.PhysicalPath)
			continue
		}
		valid = append(valid, record)
	}
	return valid
}
