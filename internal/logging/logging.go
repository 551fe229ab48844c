//go:build !windows

// Package logging builds the supervisor's *slog.Logger, grounded in the
// teacher binary's newLogger (level string -> slog.Level, JSON handler to
// an io.Writer), extended per Design Notes §9's Open Question
// resolution: the timestamped, structured (JSON) handler is used for
// daemon mode, and a plain text handler for foreground (--no-daemon)
// mode.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"log/syslog"
	"os"
)

// Level parses one of nyx's four accepted log level strings, defaulting
// to info for anything else (matching the teacher's newLogger).
func Level(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Options configures New.
type Options struct {
	Level string

	// Daemon selects the timestamped JSON handler; false selects a plain
	// text handler suited to an attached terminal (--no-daemon).
	Daemon bool

	// LogFile, if non-empty, additionally writes log records to this
	// path (append mode), for --log-file.
	LogFile string

	// Syslog, if true, additionally sends log records to the local
	// syslog daemon, for --syslog.
	Syslog bool
}

// New builds a *slog.Logger per Options. Multiple destinations (stderr
// plus an optional file and/or syslog) fan out via io.MultiWriter for
// the text/JSON handlers; syslog is wired in as its own slog.Handler
// since log/syslog does not implement io.Writer directly in a way that
// preserves level information, it is handled with a small adapter below.
func New(opts Options) (*slog.Logger, error) {
	level := Level(opts.Level)
	handlerOpts := &slog.HandlerOptions{Level: level}

	writers := []io.Writer{os.Stderr}
	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open log file %q: %w", opts.LogFile, err)
		}
		writers = append(writers, f)
	}
	dest := io.MultiWriter(writers...)

	var handler slog.Handler
	if opts.Daemon {
		handler = slog.NewJSONHandler(dest, handlerOpts)
	} else {
		handler = slog.NewTextHandler(dest, handlerOpts)
	}

	if opts.Syslog {
		sw, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, "nyx")
		if err != nil {
			return nil, fmt.Errorf("logging: connect to syslog: %w", err)
		}
		handler = &fanoutHandler{primary: handler, syslog: sw, level: level}
	}

	return slog.New(handler), nil
}
