//go:build linux || darwin

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nyxproc/nyx/internal/config"
	"github.com/nyxproc/nyx/internal/forker"
	"github.com/nyxproc/nyx/internal/watch"
)

// dispatchReexec checks whether this process invocation is one of the
// forker's self re-exec stages (spec.md §4.1) and, if so, runs that
// stage and exits — never returning to the normal CLI path. It must run
// before anything else in main: flag parsing, logging setup, and
// config loading for the re-exec'd stages happen inside here instead,
// since those stages must not inherit the supervisor's own stdio/flag
// assumptions.
func dispatchReexec() {
	switch {
	case forker.IsForkerInvocation(os.Args):
		os.Exit(runForkerStage())
	case forker.IsIntermediateInvocation(os.Args):
		forker.RunIntermediate() // always calls os.Exit itself
	case forker.IsExecInvocation(os.Args):
		if err := forker.RunExecChild(); err != nil {
			fmt.Fprintf(os.Stderr, "nyx: exec child failed: %v\n", err)
			os.Exit(1)
		}
		// unreachable on success: RunExecChild replaces the process image
	}
}

// runForkerStage builds the forker's initial watch set and WatchLoader
// from the config path handed down via NYX_FORKER_CONFIG (set by the
// supervisor before it calls forker.Spawn, so Spawn's os.Environ() call
// inherits it across the re-exec) and runs RunForker until the request
// pipe is closed.
func runForkerStage() int {
	configPath := os.Getenv(forker.EnvConfigPath)
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "nyx: forker process invoked without "+forker.EnvConfigPath)
		return 1
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nyx: forker process: load config: %v\n", err)
		return 1
	}

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	initMode := os.Getenv(forker.EnvInitMode) == "1"
	quiet := os.Getenv(forker.EnvQuiet) == "1"

	loadWatches := func() (map[int32]watch.Watch, error) {
		c, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		return config.ToWatches(c), nil
	}

	if err := forker.RunForker(os.Stdin, config.ToWatches(cfg), loadWatches, initMode, quiet, cfg.RuntimeDir, log); err != nil {
		log.Error("nyx: forker process exited with error", "error", err)
		return 1
	}
	return 0
}
