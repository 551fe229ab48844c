//go:build linux || darwin

// Command nyx is a POSIX process supervisor: it reads a YAML watch
// configuration, re-execs itself as a forker sub-process before
// starting any other goroutine, and drives every supervised watch
// through its state machine from a single cooperative goroutine
// (spec.md §1, §4, §5).
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/nyxproc/nyx/internal/config"
	"github.com/nyxproc/nyx/internal/control"
	"github.com/nyxproc/nyx/internal/forker"
	"github.com/nyxproc/nyx/internal/logging"
	"github.com/nyxproc/nyx/internal/supervisor"
)

func main() {
	// Must run before any flag parsing, logging setup, or goroutine
	// creation: a re-exec'd forker/intermediate/exec invocation has an
	// entirely different argv shape and must not touch the normal CLI
	// path at all (spec.md §4.1).
	dispatchReexec()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "ctl":
			os.Exit(runCtlCommand(os.Args[2:]))
		case "validate":
			os.Exit(runValidate(os.Args[2:]))
		}
	}

	os.Exit(runSupervisorCommand(os.Args[1:]))
}

func runCtlCommand(args []string) int {
	fs := flag.NewFlagSet("nyx ctl", flag.ExitOnError)
	socketPath := fs.String("socket", "", "control socket path (default: <runtime_dir>/nyx.sock)")
	runtimeDir := fs.String("runtime-dir", config.DefaultRuntimeDir, "runtime directory, used to derive --socket when it is omitted")
	_ = fs.Parse(args)

	path := *socketPath
	if path == "" {
		path = defaultSocketPath(*runtimeDir)
	}
	return runCtl(path, fs.Args())
}

func runValidate(args []string) int {
	fs := flag.NewFlagSet("nyx validate", flag.ExitOnError)
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: nyx validate <config-path>")
		return 1
	}

	if _, err := config.LoadConfig(fs.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "nyx validate: %v\n", err)
		return 1
	}
	fmt.Println("ok")
	return 0
}

func runSupervisorCommand(args []string) int {
	fs := flag.NewFlagSet("nyx", flag.ExitOnError)
	quiet := fs.Bool("quiet", false, "suppress informational logging (warn and above only)")
	noColor := fs.Bool("no-color", false, "disable ANSI color in foreground log output (kept for CLI-surface parity; the text handler is already colorless)")
	noDaemon := fs.Bool("no-daemon", false, "log as plain text to the attached terminal instead of structured JSON")
	useSyslog := fs.Bool("syslog", false, "additionally send log records to the local syslog daemon")
	logFile := fs.String("log-file", "", "additionally append log records to this file")
	local := fs.Bool("local", false, "bind the control HTTP API to 127.0.0.1 regardless of the config file's control_addr")
	configFlag := fs.String("config", "", "path to the nyx YAML configuration file (overrides the positional argument)")
	_ = fs.Parse(args)
	_ = noColor

	configPath := *configFlag
	if configPath == "" && fs.NArg() > 0 {
		configPath = fs.Arg(0)
	}
	if configPath == "" {
		fmt.Fprintln(os.Stderr, "usage: nyx [flags] <config-path>")
		return 1
	}
	absConfigPath, err := filepath.Abs(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nyx: resolve config path: %v\n", err)
		return 1
	}

	preflightCfg, err := config.LoadConfig(absConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nyx: %v\n", err)
		return 1
	}

	logLevel := preflightCfg.LogLevel
	if *quiet {
		logLevel = "warn"
	}
	log, err := logging.New(logging.Options{
		Level:   logLevel,
		Daemon:  !*noDaemon,
		LogFile: *logFile,
		Syslog:  *useSyslog,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "nyx: %v\n", err)
		return 1
	}

	// Spawn inherits the current environment (forker.Spawn calls
	// os.Environ()), so the config path and init-mode flag must be set
	// here, before supervisor.New calls forker.Spawn, for the re-exec'd
	// forker process to find them (see dispatchReexec/runForkerStage).
	os.Setenv(forker.EnvConfigPath, absConfigPath)
	initMode := os.Getpid() == 1
	if initMode {
		os.Setenv(forker.EnvInitMode, "1")
	}
	if *quiet {
		os.Setenv(forker.EnvQuiet, "1")
	}

	sup, err := supervisor.New(supervisor.Options{
		ConfigPath: absConfigPath,
		InitMode:   initMode,
		Log:        log,
	})
	if err != nil {
		log.Error("nyx: failed to initialize supervisor", "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sup.Boot(ctx)

	socketPath := defaultSocketPath(sup.RuntimeDir())
	socketSrv := control.NewSocketServer(sup.Dispatcher(), log)
	go func() {
		if err := socketSrv.ListenAndServe(socketPath); err != nil {
			log.Error("nyx: control socket server exited", "error", err)
		}
	}()
	defer socketSrv.Close()

	controlAddr := sup.ControlAddr()
	if *local {
		if _, port, splitErr := net.SplitHostPort(controlAddr); splitErr == nil {
			controlAddr = "127.0.0.1:" + port
		}
	}
	httpSrv := &http.Server{
		Addr:         controlAddr,
		Handler:      control.NewRouter(sup.Dispatcher()),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("nyx: control HTTP API listening", "addr", controlAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("nyx: control HTTP API exited", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info("nyx: supervisor started", "config", absConfigPath, "runtime_dir", sup.RuntimeDir())

	runErr := sup.Run()
	if runErr != nil {
		log.Error("nyx: supervisor exited with error", "error", runErr)
	} else {
		log.Info("nyx: supervisor exited cleanly")
	}
	return supervisor.ExitCodeForError(runErr)
}
