// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the rewind
// mount.
//
// Configuration is a single YAML file located by:
//   - the --config flag, or
//   - the BTSYNC_REWIND_CONFIG environment variable.
//
// There are no fallbacks or automatic discovery, and unknown fields
// are rejected. This keeps configuration deterministic and auditable
// with no hidden overrides. Every value can also be set by a flag;
// the file is optional when flags fully describe the mount.
package config
