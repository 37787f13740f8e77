// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for
// testability.
//
// Production code accepts a Clock parameter instead of calling
// time.Now, time.After, time.NewTicker, or time.Sleep directly. In
// production, Real() provides the standard library behavior. In
// tests, Fake() provides a deterministic clock that advances only
// when Advance is called.
//
// The index refresher's periodic rescan ticker and the virtual
// root's "now" symlink both run on a Clock, which is what makes
// their tests deterministic: a goroutine that registers a ticker on
// a FakeClock can be synchronized with WaitForTimers before the test
// calls Advance, eliminating sleep-based races.
package clock
