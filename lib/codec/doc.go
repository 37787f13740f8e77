// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the project's standard CBOR encoding: Core
// Deterministic Encoding (RFC 8949 §4.2) on the write side, lenient
// standard decoding on the read side.
//
// The one on-disk consumer is the index snapshot cache. Determinism
// matters there because the archive scan itself is deterministic, so
// an unchanged tree round-trips to a byte-identical cache file —
// a property the tests rely on.
//
// Struct types use json tags; fxamacker/cbor falls back to json tags,
// so the same types work with both encoders.
package codec
