// Copyright 2026 The BTSync Rewind Authors
// SPDX-License-Identifier: Apache-2.0

// btsync-rewind mounts a BTSync (Resilio Sync) folder as a
// rewindable read-only filesystem. Snapshots of the folder at any
// point in time appear under the mountpoint as
// /<epoch-seconds>/<path>, resolved on the fly from the live tree
// and the .sync/Archive version log — no historical copy is ever
// materialized.
//
//	btsync-rewind ~/btsync-data/photos /mnt/rewind
//	ls /mnt/rewind/$(date --date="2015-12-25 8:00 PST" +%s)
//	less /mnt/rewind/now/notes.txt
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/psranga/btsync-rewind/lib/clock"
	"github.com/psranga/btsync-rewind/lib/config"
	"github.com/psranga/btsync-rewind/lib/rewind"
	rewindfuse "github.com/psranga/btsync-rewind/lib/rewind/fuse"
	"github.com/psranga/btsync-rewind/lib/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath      string
		source          string
		archive         string
		mountpoint      string
		stateDir        string
		allowOther      bool
		refreshInterval time.Duration
		staleness       time.Duration
		watch           bool
	)

	flagSet := pflag.NewFlagSet("btsync-rewind", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "YAML config file (or set "+config.EnvVar+")")
	flagSet.StringVar(&source, "source", "", "live BTSync folder to expose")
	flagSet.StringVar(&archive, "archive", "", "version archive root (default <source>/.sync/Archive)")
	flagSet.StringVar(&mountpoint, "mountpoint", "", "where to mount the rewindable filesystem")
	flagSet.StringVar(&stateDir, "state-dir", "", "directory for the index snapshot cache (optional)")
	flagSet.BoolVar(&allowOther, "allow-other", false, "allow other users to access the mount")
	flagSet.DurationVar(&refreshInterval, "refresh-interval", 0, "period between full archive rescans (default 5m)")
	flagSet.DurationVar(&staleness, "staleness", 0, "index age that triggers an early rescan on access (default 30s)")
	flagSet.BoolVar(&watch, "watch", true, "rescan promptly on filesystem changes (inotify)")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing so it works without the
	// otherwise-required flags.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("btsync-rewind")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}

	cfg := &config.Config{}
	if located := config.Locate(configPath); located != "" {
		loaded, err := config.Load(located)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	// Flags override the config file. The two positional arguments
	// (source, mountpoint) are the original's invocation shape and
	// override both.
	if flagSet.Changed("source") {
		cfg.Source = source
	}
	if flagSet.Changed("archive") {
		cfg.Archive = archive
	}
	if flagSet.Changed("mountpoint") {
		cfg.Mountpoint = mountpoint
	}
	if flagSet.Changed("state-dir") {
		cfg.StateDir = stateDir
	}
	if flagSet.Changed("allow-other") {
		cfg.AllowOther = allowOther
	}
	if flagSet.Changed("refresh-interval") {
		cfg.Refresh.Interval = config.Duration(refreshInterval)
	}
	if flagSet.Changed("staleness") {
		cfg.Refresh.Staleness = config.Duration(staleness)
	}
	if flagSet.Changed("watch") {
		cfg.Refresh.Watch = &watch
	}
	if positional := flagSet.Args(); len(positional) > 0 {
		cfg.Source = positional[0]
		if len(positional) > 1 {
			cfg.Mountpoint = positional[1]
		}
		if len(positional) > 2 {
			return fmt.Errorf("unexpected argument %q", positional[2])
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		printHelp(flagSet)
		return err
	}

	logger := newLogger()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scanner := &rewind.Scanner{
		LiveRoot:    cfg.Source,
		ArchiveRoot: cfg.Archive,
		Logger:      logger,
	}

	refresher, err := rewind.NewRefresher(rewind.RefresherOptions{
		Scanner:   scanner,
		Interval:  cfg.Refresh.Interval.Std(),
		Staleness: cfg.Refresh.Staleness.Std(),
		Watch:     cfg.WatchEnabled(),
		CachePath: cfg.CachePath(),
		Clock:     clock.Real(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	// A cached snapshot, if present, serves queries while the first
	// real scan runs.
	refresher.LoadCache()
	go func() {
		if err := refresher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("refresher stopped", "error", err)
		}
	}()

	view, err := rewind.NewView(rewind.ViewOptions{
		Provider: refresher,
		Clock:    clock.Real(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	server, err := rewindfuse.Mount(rewindfuse.Options{
		Mountpoint: cfg.Mountpoint,
		View:       view,
		AllowOther: cfg.AllowOther,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		logger.Info("unmounting", "mountpoint", cfg.Mountpoint)
		if err := server.Unmount(); err != nil {
			logger.Error("unmount failed; try fusermount -u", "mountpoint", cfg.Mountpoint, "error", err)
		}
	}()

	server.Wait()
	return nil
}

// newLogger creates the standard logger: a JSON handler writing to
// stderr at Info level. Also installed as the slog default so
// third-party code using slog gets the same handler.
func newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Printf("%s", `btsync-rewind - mount a BTSync folder as a rewindable filesystem

Usage:
  btsync-rewind [flags] <source> <mountpoint>
  btsync-rewind --source DIR --mountpoint DIR [flags]

Snapshots appear under <mountpoint>/<epoch-seconds>/. The "date"
utility converts human-friendly dates to the epoch seconds the
mount expects:

  ls <mountpoint>/$(date --date="2015-07-01" +%s)

Flags:
`)
	fmt.Print(flagSet.FlagUsages())
}
