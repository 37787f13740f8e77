// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

package rewind

import (
	"errors"
	"testing"
)

func TestSplitPath(t *testing.T) {
	tests := []struct {
		name     string
		external string
		wantT    int64
		wantRel  string
		wantErr  error
	}{
		{name: "snapshot root", external: "/2000", wantT: 2000, wantRel: ""},
		{name: "file at top", external: "/2000/file.txt", wantT: 2000, wantRel: "file.txt"},
		{name: "nested file", external: "/2000/dir/file.txt", wantT: 2000, wantRel: "dir/file.txt"},
		{name: "zero timestamp", external: "/0/file.txt", wantT: 0, wantRel: "file.txt"},

		{name: "empty", external: "", wantErr: ErrMalformedPath},
		{name: "bare root", external: "/", wantErr: ErrMalformedPath},
		{name: "relative", external: "foo", wantErr: ErrMalformedPath},
		{name: "trailing slash", external: "/200/dir/", wantErr: ErrMalformedPath},
		{name: "empty timestamp segment", external: "//file.txt", wantErr: ErrInvalidTimestamp},
		{name: "empty path segment", external: "/120//file.txt", wantErr: ErrMalformedPath},
		{name: "dot segment", external: "/120/./file.txt", wantErr: ErrMalformedPath},
		{name: "dotdot segment", external: "/120/../file.txt", wantErr: ErrMalformedPath},

		{name: "alphabetic timestamp", external: "/abc/file.txt", wantErr: ErrInvalidTimestamp},
		{name: "prefixed timestamp", external: "/a200/dir/file.txt", wantErr: ErrInvalidTimestamp},
		{name: "suffixed timestamp", external: "/200a/dir/file.txt", wantErr: ErrInvalidTimestamp},
		{name: "negative timestamp", external: "/-2000/dir/file.txt", wantErr: ErrInvalidTimestamp},
		{name: "fractional timestamp", external: "/2000.20/dir/file.txt", wantErr: ErrInvalidTimestamp},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			gotT, gotRel, err := SplitPath(test.external)
			if test.wantErr != nil {
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("SplitPath(%q) error = %v, want %v", test.external, err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SplitPath(%q): %v", test.external, err)
			}
			if gotT != test.wantT || gotRel != test.wantRel {
				t.Errorf("SplitPath(%q) = (%d, %q), want (%d, %q)",
					test.external, gotT, gotRel, test.wantT, test.wantRel)
			}
		})
	}
}

func TestParseTimestampOverflow(t *testing.T) {
	if _, err := ParseTimestamp("99999999999999999999999999"); !errors.Is(err, ErrInvalidTimestamp) {
		t.Errorf("overflowing timestamp: err = %v", err)
	}
}
