// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

package rewind

import "testing"

// historyOf builds a History directly from intervals; scanner tests
// cover the production construction path.
func historyOf(intervals ...[2]int64) *History {
	h := &History{}
	for _, interval := range intervals {
		h.records = append(h.records, VersionRecord{
			LogicalPath: "p",
			ValidFrom:   interval[0],
			ValidUntil:  interval[1],
		})
	}
	return h
}

func TestHistoryAt(t *testing.T) {
	h := historyOf([2]int64{100, 200}, [2]int64{200, 300}, [2]int64{500, Forever})

	tests := []struct {
		t        int64
		wantFrom int64
		wantNil  bool
	}{
		{t: 99, wantNil: true},
		{t: 100, wantFrom: 100},
		{t: 199, wantFrom: 100},
		// Half-open boundary: at the exact supersede instant the
		// newer version is current.
		{t: 200, wantFrom: 200},
		{t: 299, wantFrom: 200},
		{t: 300, wantNil: true}, // gap: deleted at 300
		{t: 499, wantNil: true},
		{t: 500, wantFrom: 500}, // re-created
		{t: 1 << 40, wantFrom: 500},
	}
	for _, test := range tests {
		got := h.At(test.t)
		if test.wantNil {
			if got != nil {
				t.Errorf("At(%d) = [%d,%d), want nil", test.t, got.ValidFrom, got.ValidUntil)
			}
			continue
		}
		if got == nil {
			t.Errorf("At(%d) = nil, want record from %d", test.t, test.wantFrom)
			continue
		}
		if got.ValidFrom != test.wantFrom {
			t.Errorf("At(%d) from = %d, want %d", test.t, got.ValidFrom, test.wantFrom)
		}
	}
}

func TestHistoryAtEmpty(t *testing.T) {
	var nilHistory *History
	if nilHistory.At(100) != nil {
		t.Error("nil history resolved a record")
	}
	if nilHistory.ExistedAt(100) {
		t.Error("nil history existed")
	}
	if (&History{}).At(100) != nil {
		t.Error("empty history resolved a record")
	}
}

func TestHistoryStabilityWithinInterval(t *testing.T) {
	h := historyOf([2]int64{100, 1000})
	first := h.At(150)
	second := h.At(999)
	if first == nil || second == nil || first != second {
		t.Error("two instants within one interval resolved to different records")
	}
}

func TestHistoryInvariants(t *testing.T) {
	good := historyOf([2]int64{100, 200}, [2]int64{250, Forever})
	if err := good.checkInvariants(); err != nil {
		t.Errorf("valid history rejected: %v", err)
	}

	overlapping := historyOf([2]int64{100, 300}, [2]int64{200, 400})
	if overlapping.checkInvariants() == nil {
		t.Error("overlapping intervals accepted")
	}

	empty := historyOf([2]int64{100, 100})
	if empty.checkInvariants() == nil {
		t.Error("empty interval accepted")
	}

	liveNotLast := historyOf([2]int64{100, Forever}, [2]int64{200, 300})
	if liveNotLast.checkInvariants() == nil {
		t.Error("live record in the middle accepted")
	}
}
