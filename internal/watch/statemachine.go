package watch

import "time"

// RequestSink is how the state machine asks for a spawn or a stop to
// actually happen. It is the state machine's side of the request
// channel (spec.md §4.4): implementations translate these calls into
// forkmsg.Request records written to the forker pipe.
type RequestSink interface {
	SpawnStart(watchID int32)
	SpawnStop(watchID int32, pid int32)
}

// Machine drives one Watch's State through the six-state lifecycle of
// spec.md §4.3. It is not safe for concurrent use; the poll loop and
// control-request dispatch both run on the single supervisor goroutine
// per §5, so a Machine is only ever touched from there.
type Machine struct {
	watch     Watch
	state     *State
	sink      RequestSink
	callbacks *CallbackList
}

// NewMachine constructs a Machine for watch, backed by state (which the
// caller continues to own — Machine only mutates it), emitting spawn/stop
// requests via sink and firing transitions on callbacks.
func NewMachine(w Watch, s *State, sink RequestSink, callbacks *CallbackList) *Machine {
	return &Machine{watch: w, state: s, sink: sink, callbacks: callbacks}
}

// Watch returns the immutable watch record this machine drives.
func (m *Machine) Watch() Watch { return m.watch }

// State returns the mutable state this machine drives.
func (m *Machine) State() *State { return m.state }

// SetWatch replaces the watch record in place. Reload calls it for a
// changed watch right after RequestStop, and restarts the watch with the
// new record once it reaches UNMONITORED.
func (m *Machine) SetWatch(w Watch) { m.watch = w }

func (m *Machine) transition(to Phase, now time.Time) {
	m.state.Current = to
	m.state.LastTransition = now
	if m.callbacks != nil {
		m.callbacks.DispatchStateChange(m.watch.Name, to, m.state.Pid)
	}
}

// RequestStart handles an operator/boot start request.
//
// UNMONITORED -> STARTING: the normal case.
// RUNNING -> RUNNING: a no-op per the idempotence property in spec.md §8
// ("start(w); start(w) on a RUNNING watch is equivalent to a single
// start").
// FAILED -> STARTING: an operator-driven recovery path. Not explicitly
// named by spec.md §4.3 (which only reaches FAILED as a terminal state
// reachable via automatic restart exhaustion), but required by the
// request API's purpose of manual intervention.
// STARTING/STOPPING/RESTARTING -> unchanged: already in flight.
func (m *Machine) RequestStart(now time.Time) {
	switch m.state.Current {
	case Unmonitored, Failed:
		m.state.Flags.StartupDeadline = now.Add(startupWindow(m.watch))
		m.transition(Starting, now)
		m.sink.SpawnStart(m.watch.ID)
	case Running, Starting, Stopping, Restarting:
		// no-op: already running, already converging on running, or
		// already tearing down / about to restart.
	}
}

func startupWindow(w Watch) time.Duration {
	delay := time.Duration(w.StartupDelay) * time.Second
	const grace = 2 * time.Second
	return delay + grace
}

// RequestStop handles an operator stop request.
//
// RUNNING -> STOPPING: issues the stop request immediately, recording
// the stop_timeout deadline. If the watch configures a custom Stop argv,
// that is executed via the forker (sink.SpawnStop); otherwise the poll
// loop is responsible for sending the default SIGTERM/SIGKILL escalation
// itself once it observes the watch has entered STOPPING — see
// NeedsDirectStopSignal.
// STARTING -> STARTING (flagged): tie-break from spec.md §4.3 — "a stop
// request received while STARTING is honored (transition to STOPPING
// once a PID is known; queued otherwise)". Since a Machine only learns
// the PID via NotifySpawned, the flag is consulted there.
// STOPPING -> STOPPING: idempotent per spec.md §8.
// UNMONITORED/FAILED/RESTARTING -> UNMONITORED: nothing is running;
// stopping is a no-op, but a pending restart is cancelled.
func (m *Machine) RequestStop(now time.Time) {
	switch m.state.Current {
	case Running:
		m.state.Flags.StopDeadline = now.Add(stopWindow(m.watch))
		m.transition(Stopping, now)
		if len(m.watch.Stop) > 0 {
			m.sink.SpawnStop(m.watch.ID, int32(m.state.Pid))
		}
	case Starting:
		m.state.Flags.StopRequested = true
	case Stopping:
		// already stopping; idempotent.
	case Restarting, Unmonitored, Failed:
		m.state.Flags.StopRequested = false
		if m.state.Current != Unmonitored {
			m.transition(Unmonitored, now)
		}
	}
}

// NeedsDirectStopSignal reports whether this watch has no custom Stop
// argv configured, meaning the poll loop (not the forker) is responsible
// for sending SIGTERM directly to the tracked pid while STOPPING.
func (m *Machine) NeedsDirectStopSignal() bool {
	return len(m.watch.Stop) == 0
}

func stopWindow(w Watch) time.Duration {
	return time.Duration(w.StopTimeout) * time.Second
}

// NotifySpawned records that the forker successfully produced pid for
// this watch's start request. Called from STARTING (the normal case) —
// if a stop was queued while STARTING (tie-break above), the queued stop
// is now honored instead of advancing toward RUNNING.
func (m *Machine) NotifySpawned(pid int, now time.Time) {
	if m.state.Current != Starting {
		return
	}
	m.state.Pid = pid
	if m.state.Flags.StopRequested {
		m.state.Flags.StopRequested = false
		m.state.Flags.StopDeadline = now.Add(stopWindow(m.watch))
		m.transition(Stopping, now)
		if len(m.watch.Stop) > 0 {
			m.sink.SpawnStop(m.watch.ID, int32(pid))
		}
	}
}

// NotifySpawnFailed records that the forker could not produce a pid at
// all (fork/pipe/exec failure before even an ENOENT-style non-fatal
// exit). Treated the same as an immediate liveness-check failure: the
// watch is routed through RESTARTING so the restart budget is charged.
func (m *Machine) NotifySpawnFailed(now time.Time) {
	if m.state.Current != Starting {
		return
	}
	m.state.Pid = 0
	m.enterRestarting(now)
}

// Tick is the poll loop's per-tick observation for this watch: running
// reports whether check_process_running(pid) succeeded (ignored if pid
// is not yet known). now is the current wall clock used to evaluate
// startup/stop deadlines.
func (m *Machine) Tick(now time.Time, running bool) {
	switch m.state.Current {
	case Starting:
		m.tickStarting(now, running)
	case Running:
		m.tickRunning(now, running)
	case Stopping:
		m.tickStopping(now, running)
	case Restarting:
		// RESTARTING is left inside enterRestarting, which moves straight
		// on to STARTING or FAILED; a RESTARTING watch has no pid to
		// observe.
	}
}

func (m *Machine) tickStarting(now time.Time, running bool) {
	if running {
		m.state.Flags.StartupDeadline = time.Time{}
		m.transition(Running, now)
		return
	}
	if !m.state.Flags.StartupDeadline.IsZero() && now.After(m.state.Flags.StartupDeadline) {
		m.transition(Failed, now)
	}
}

func (m *Machine) tickRunning(now time.Time, running bool) {
	if running {
		return
	}
	m.enterRestarting(now)
}

func (m *Machine) tickStopping(now time.Time, running bool) {
	if !running {
		m.state.Pid = 0
		m.state.Flags.StopDeadline = time.Time{}
		m.state.Flags.TermSent = false
		m.transition(Unmonitored, now)
		return
	}
	if !m.state.Flags.StopDeadline.IsZero() && now.After(m.state.Flags.StopDeadline) {
		// Escalation (SIGTERM -> SIGKILL) is the poll loop's
		// responsibility (it owns the actual signal send, since the
		// state machine has no syscall access); ForceKilled reports the
		// outcome back here.
	}
}

// ForceKilled is called by the poll loop right after it sends SIGKILL at
// the stop_timeout boundary; the process's exit is not checked first.
func (m *Machine) ForceKilled(now time.Time) {
	if m.state.Current != Stopping {
		return
	}
	m.state.Pid = 0
	m.state.Flags.StopDeadline = time.Time{}
	m.state.Flags.TermSent = false
	m.transition(Unmonitored, now)
}

// StopDeadlineExpired reports whether a STOPPING watch has passed its
// stop_timeout deadline without the process exiting, so the poll loop
// knows to escalate to SIGKILL. A zero StopTimeout means "immediately":
// the deadline is set to the stop-request time itself, so the very next
// tick after the request is already expired.
func (m *Machine) StopDeadlineExpired(now time.Time) bool {
	return m.state.Current == Stopping &&
		!m.state.Flags.StopDeadline.IsZero() &&
		!now.Before(m.state.Flags.StopDeadline)
}

// enterRestarting charges one restart against the sliding window budget
// and either re-emits a start request (RESTARTING -> STARTING) or
// declares the watch FAILED, per spec.md §4.3 and the boundary behavior
// in §8 ("6 exits within 10s => FAILED; 4 exits within 10s followed by
// 11s of stability => counter reset").
func (m *Machine) enterRestarting(now time.Time) {
	m.state.Pid = 0
	window := time.Duration(m.watch.RestartWindow) * time.Second
	if window <= 0 {
		window = time.Duration(DefaultRestartWindow) * time.Second
	}
	limit := m.watch.RestartLimit
	if limit <= 0 {
		limit = DefaultRestartLimit
	}

	if m.state.WindowStart.IsZero() || now.Sub(m.state.WindowStart) > window {
		m.state.WindowStart = now
		m.state.RestartsInWindow = 0
	}
	m.state.RestartsInWindow++

	m.transition(Restarting, now)

	if m.state.RestartsInWindow > limit {
		m.transition(Failed, now)
		return
	}
	m.state.Flags.StartupDeadline = now.Add(startupWindow(m.watch))
	m.transition(Starting, now)
	m.sink.SpawnStart(m.watch.ID)
}

// Adopt handles the boot-time PID-file reconciliation outcome: a
// previously-recorded pid still belongs to a live, matching process, so
// the watch is adopted straight into RUNNING without a spawn request
// (spec.md §4.5).
func (m *Machine) Adopt(pid int, now time.Time) {
	if m.state.Current != Unmonitored {
		return
	}
	m.state.Pid = pid
	m.transition(Running, now)
}

// RemoveForReload implements the reload tie-break "watches removed from
// the config are stopped": if the watch is live, a stop is requested;
// either way the caller (the reload driver) is expected to delete this
// Machine's State once it reaches UNMONITORED, and fires OnDestroy now
// since the watch is leaving the supervision set regardless of how long
// teardown takes.
func (m *Machine) RemoveForReload(now time.Time) {
	m.RequestStop(now)
	if m.callbacks != nil {
		m.callbacks.DispatchDestroy(m.watch.Name)
	}
}
