//go:build linux || darwin

package supervisor

import "log/slog"

// forkerSink adapts *forker.Forker (whose Send* methods return an
// error) to watch.RequestSink (which does not: a Machine has no way to
// propagate a send failure back to its caller, and a pipe write failure
// means the forker is probably dead, which is surfaced separately by
// Run's periodic forker-death check rather than per-request).
type forkerSink struct {
	f interface {
		SendStart(watchID int32) error
		SendStop(watchID int32, pid int32) error
		SendReload() error
	}
	log *slog.Logger
}

func (s *forkerSink) SpawnStart(watchID int32) {
	if err := s.f.SendStart(watchID); err != nil {
		s.log.Error("supervisor: failed to send start request to forker", "watch_id", watchID, "error", err)
	}
}

func (s *forkerSink) SpawnStop(watchID int32, pid int32) {
	if err := s.f.SendStop(watchID, pid); err != nil {
		s.log.Error("supervisor: failed to send stop request to forker", "watch_id", watchID, "pid", pid, "error", err)
	}
}
