// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

package rewind

import (
	"fmt"
	"strconv"
	"strings"
)

// SplitPath parses an external path of the form
// "/<epoch-seconds>" or "/<epoch-seconds>/<relative/path>" into the
// requested instant and the normalized relative path ("" for the
// snapshot root itself).
//
// The timestamp segment must be a non-negative decimal integer in
// the archive's native unit (seconds); anything else fails with
// ErrInvalidTimestamp. The synthetic root "/" is not routable and
// fails with ErrMalformedPath, as do trailing slashes, empty
// segments, and "." or ".." segments.
func SplitPath(external string) (int64, string, error) {
	if !strings.HasPrefix(external, "/") || external == "/" {
		return 0, "", fmt.Errorf("%q: %w", external, ErrMalformedPath)
	}
	if strings.HasSuffix(external, "/") {
		return 0, "", fmt.Errorf("%q: %w", external, ErrMalformedPath)
	}

	trimmed := external[1:]
	segment, relative, _ := strings.Cut(trimmed, "/")

	t, err := ParseTimestamp(segment)
	if err != nil {
		return 0, "", err
	}

	if relative != "" {
		for _, part := range strings.Split(relative, "/") {
			switch part {
			case "", ".", "..":
				return 0, "", fmt.Errorf("%q: %w", external, ErrMalformedPath)
			}
		}
	}

	return t, relative, nil
}

// ParseTimestamp parses a single root segment as epoch seconds.
// Strictly decimal digits: no sign, no fraction. (The original
// mount's parser truncated fractional timestamps; here a malformed
// segment is a typed failure instead.)
func ParseTimestamp(segment string) (int64, error) {
	if segment == "" {
		return 0, fmt.Errorf("%q: %w", segment, ErrInvalidTimestamp)
	}
	for i := 0; i < len(segment); i++ {
		if segment[i] < '0' || segment[i] > '9' {
			return 0, fmt.Errorf("%q: %w", segment, ErrInvalidTimestamp)
		}
	}
	t, err := strconv.ParseInt(segment, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", segment, ErrInvalidTimestamp)
	}
	return t, nil
}
