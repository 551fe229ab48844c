//go:build linux || darwin

package supervisor

import (
	"time"

	"github.com/nyxproc/nyx/internal/watch"
)

// shutdownPollInterval bounds how often shutdown re-checks whether
// stopped watches have actually exited, independent of the configured
// poll interval (a very long poll_interval should not make shutdown
// itself sluggish).
const shutdownPollInterval = 200 * time.Millisecond

// shutdown implements spec.md §5's cancellation contract: "the poll
// loop drains the current tick's handlers, issues stop requests for
// every running watch, waits up to stop_timeout per watch, closes the
// forker pipe, and reaps the forker."
func (s *Supervisor) shutdown() {
	now := time.Now()

	s.pollLoop.Tick()

	var longestDeadline time.Time
	for _, m := range s.machines {
		switch m.State().Current {
		case watch.Running, watch.Starting, watch.Restarting:
			m.RequestStop(now)
		}
		if dl := m.State().Flags.StopDeadline; dl.After(longestDeadline) {
			longestDeadline = dl
		}
	}

	if !longestDeadline.IsZero() {
		s.waitForWatchesToStop(longestDeadline)
	}

	if err := s.forker.Close(); err != nil {
		s.log.Warn("supervisor: failed to close forker pipe", "error", err)
	}
	if _, err := s.forker.Wait(); err != nil {
		s.log.Warn("supervisor: failed to reap forker", "error", err)
	}

	for name := range s.machines {
		s.callbacks.DispatchDestroy(name)
	}

	if err := s.historyStore.Close(); err != nil {
		s.log.Warn("supervisor: failed to close history store", "error", err)
	}
	if s.auditLog != nil {
		if err := s.auditLog.Close(); err != nil {
			s.log.Warn("supervisor: failed to close audit log", "error", err)
		}
	}
}

// waitForWatchesToStop ticks the poll loop (which drives the
// SIGTERM/SIGKILL escalation for watches with no custom stop command,
// and observes exit for those with one) until every watch has left
// STOPPING or deadline passes.
func (s *Supervisor) waitForWatchesToStop(deadline time.Time) {
	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline.Add(shutdownPollInterval)) {
		<-ticker.C
		s.pollLoop.Tick()

		anyStopping := false
		for _, m := range s.machines {
			if m.State().Current == watch.Stopping {
				anyStopping = true
				break
			}
		}
		if !anyStopping {
			return
		}
	}
}
