//go:build !windows

package logging

import (
	"context"
	"log/syslog"

	"log/slog"
)

// fanoutHandler wraps a primary slog.Handler (the JSON or text handler
// writing to stderr/file) and additionally mirrors every record to a
// syslog writer at the matching severity, for --syslog.
type fanoutHandler struct {
	primary slog.Handler
	syslog  *syslog.Writer
	level   slog.Level
}

func (h *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level && h.primary.Enabled(ctx, level)
}

func (h *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.primary.Handle(ctx, r); err != nil {
		return err
	}

	msg := r.Message
	r.Attrs(func(a slog.Attr) bool {
		msg += " " + a.String()
		return true
	})

	switch {
	case r.Level >= slog.LevelError:
		return h.syslog.Err(msg)
	case r.Level >= slog.LevelWarn:
		return h.syslog.Warning(msg)
	case r.Level >= slog.LevelInfo:
		return h.syslog.Info(msg)
	default:
		return h.syslog.Debug(msg)
	}
}

func (h *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fanoutHandler{primary: h.primary.WithAttrs(attrs), syslog: h.syslog, level: h.level}
}

func (h *fanoutHandler) WithGroup(name string) slog.Handler {
	return &fanoutHandler{primary: h.primary.WithGroup(name), syslog: h.syslog, level: h.level}
}
