// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable that locates the config file
// when the --config flag is not given.
const EnvVar = "BTSYNC_REWIND_CONFIG"

// CacheFileName is the index snapshot cache file created under the
// state directory.
const CacheFileName = "index.cbor.zst"

// Config is the full configuration of a rewind mount. All values can
// be overridden by command-line flags; the file exists so that a
// long-lived mount can be described in one auditable place.
type Config struct {
	// Source is the live BTSync folder to expose.
	Source string `yaml:"source"`

	// Archive is the version archive root. Empty means the standard
	// location inside the source folder (.sync/Archive).
	Archive string `yaml:"archive"`

	// Mountpoint is where the rewindable filesystem is mounted.
	Mountpoint string `yaml:"mountpoint"`

	// StateDir, if set, holds the index snapshot cache used for
	// warm starts. Empty disables the cache.
	StateDir string `yaml:"state_dir"`

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool `yaml:"allow_other"`

	Refresh RefreshConfig `yaml:"refresh"`
}

// RefreshConfig tunes how the version index tracks a growing
// archive.
type RefreshConfig struct {
	// Interval between unconditional full rescans. Zero means the
	// refresher's default.
	Interval Duration `yaml:"interval"`

	// Staleness is the index age past which a query schedules an
	// early rescan. Zero means the refresher's default; negative
	// disables the on-access trigger.
	Staleness Duration `yaml:"staleness"`

	// Watch enables inotify-triggered rescans. Defaults to true.
	Watch *bool `yaml:"watch"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Locate resolves the config file path: the flag value wins, then
// the environment variable. Empty means no config file, which is
// fine — flags alone can fully describe a mount. There is no
// automatic discovery beyond these two sources.
func Locate(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv(EnvVar)
}

// Load reads and parses the config file at path. Unknown fields are
// an error: a typo in a config file should fail loudly, not silently
// do nothing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyDefaults fills derived values after flags have been merged
// in.
func (c *Config) ApplyDefaults() {
	if c.Archive == "" && c.Source != "" {
		c.Archive = filepath.Join(c.Source, ".sync", "Archive")
	}
}

// Validate checks that the configuration describes a mountable
// setup.
func (c *Config) Validate() error {
	if c.Source == "" {
		return fmt.Errorf("source directory is required")
	}
	if c.Mountpoint == "" {
		return fmt.Errorf("mountpoint is required")
	}
	return nil
}

// WatchEnabled reports the effective value of Refresh.Watch.
func (c *Config) WatchEnabled() bool {
	if c.Refresh.Watch == nil {
		return true
	}
	return *c.Refresh.Watch
}

// CachePath returns the index snapshot cache location, or "" when
// the cache is disabled.
func (c *Config) CachePath() string {
	if c.StateDir == "" {
		return ""
	}
	return filepath.Join(c.StateDir, CacheFileName)
}
