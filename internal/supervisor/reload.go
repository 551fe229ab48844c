//go:build linux || darwin

package supervisor

import (
	"time"

	"github.com/nyxproc/nyx/internal/config"
	"github.com/nyxproc/nyx/internal/watch"
)

// reload implements spec.md §4.3's reload tie-break ("watches removed
// from the config are stopped; watches added are created in
// UNMONITORED; watches whose argv changed are stopped and restarted"),
// generalized per spec.md §8 scenario 4 (an env-only change still
// causes a restart) to: any field difference at all triggers a
// stop-then-restart, not just an argv difference — see DESIGN.md.
//
// A Machine has no built-in "stop now, start again once stopped"
// primitive (RequestStart is a no-op while STOPPING), so restart/removal
// intents are tracked here and drained once the machine actually
// reaches UNMONITORED (drainPending, called after every poll tick).
func (s *Supervisor) reload() {
	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		s.log.Warn("supervisor: reload failed, keeping previous configuration", "error", err)
		return
	}

	newByName := config.ByName(cfg)
	now := time.Now()

	for name, m := range s.machines {
		w, stillPresent := newByName[name]
		if !stillPresent {
			m.RequestStop(now)
			s.pendingRemoval[name] = true
			continue
		}
		delete(newByName, name)

		if watchEqual(m.Watch(), w) {
			continue
		}
		m.RequestStop(now)
		m.SetWatch(w)
		s.pendingRestart[name] = true
	}

	for name, w := range newByName {
		st := watch.NewState(name)
		mm := watch.NewMachine(w, st, s.sink, s.callbacks)
		s.machines[name] = mm
		s.pollLoop.Machines[name] = mm
		s.log.Info("supervisor: watch added by reload", "watch", name)
	}

	s.cfg = cfg

	if err := s.sink.f.SendReload(); err != nil {
		s.log.Error("supervisor: failed to notify forker of reload", "error", err)
	}

	s.drainPending()
}

// drainPending advances any watch whose reload-triggered stop or
// removal has now completed (state has reached UNMONITORED): a pending
// restart re-issues a start request with the already-updated watch
// record; a pending removal fires OnDestroy and drops the Machine from
// both the supervisor and the poll loop.
func (s *Supervisor) drainPending() {
	now := time.Now()

	for name := range s.pendingRestart {
		m, ok := s.machines[name]
		if !ok {
			delete(s.pendingRestart, name)
			continue
		}
		if m.State().Current == watch.Unmonitored {
			m.RequestStart(now)
			delete(s.pendingRestart, name)
		}
	}

	for name := range s.pendingRemoval {
		m, ok := s.machines[name]
		if !ok {
			delete(s.pendingRemoval, name)
			continue
		}
		if m.State().Current == watch.Unmonitored {
			m.RemoveForReload(now)
			delete(s.machines, name)
			delete(s.pollLoop.Machines, name)
			delete(s.pendingRemoval, name)
		}
	}
}
