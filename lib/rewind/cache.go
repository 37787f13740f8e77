// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

package rewind

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/psranga/btsync-rewind/lib/codec"
)

// indexSnapshot is the on-disk form of a published index: the
// chained record set plus enough metadata to rebuild the Index
// exactly. Encoded as deterministic CBOR in a zstd stream; because
// the scan itself is deterministic, an unchanged tree produces a
// byte-identical snapshot.
type indexSnapshot struct {
	SavedAt int64           `json:"saved_at"`
	Corrupt int             `json:"corrupt"`
	Records []VersionRecord `json:"records"`
}

// WriteIndexSnapshot persists the index to path atomically (temp
// file plus rename), creating parent directories as needed.
func WriteIndexSnapshot(path string, index *Index) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	temp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating snapshot temp file: %w", err)
	}
	defer os.Remove(temp.Name())

	compressor, err := zstd.NewWriter(temp)
	if err != nil {
		temp.Close()
		return fmt.Errorf("initializing zstd writer: %w", err)
	}

	snapshot := indexSnapshot{
		SavedAt: index.BuiltAt().Unix(),
		Corrupt: index.CorruptEntries(),
		Records: index.Records(),
	}
	if err := codec.NewEncoder(compressor).Encode(snapshot); err != nil {
		compressor.Close()
		temp.Close()
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := compressor.Close(); err != nil {
		temp.Close()
		return fmt.Errorf("flushing zstd stream: %w", err)
	}
	if err := temp.Close(); err != nil {
		return fmt.Errorf("closing snapshot temp file: %w", err)
	}

	if err := os.Rename(temp.Name(), path); err != nil {
		return fmt.Errorf("publishing snapshot: %w", err)
	}
	return nil
}

// LoadIndexSnapshot reads a snapshot written by WriteIndexSnapshot
// and rebuilds the Index. The rebuilt index reports the original
// scan's publication instant as its BuiltAt, so a loaded warm index
// immediately counts as stale and schedules a real rescan.
func LoadIndexSnapshot(path string) (*Index, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decompressor, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("initializing zstd reader: %w", err)
	}
	defer decompressor.Close()

	var snapshot indexSnapshot
	if err := codec.NewDecoder(decompressor).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}

	result := &ScanResult{Records: snapshot.Records, Corrupt: snapshot.Corrupt}
	return NewIndex(result, time.Unix(snapshot.SavedAt, 0)), nil
}
