// Package poll implements the supervisor's poll loop (spec.md §4.2): a
// single cooperative loop, iterating at a configured interval, that
// determines each watch's pid, checks its liveness, and advances the
// watch state machine.
package poll

import (
	"log/slog"
	"time"

	"github.com/nyxproc/nyx/internal/watch"
)

// MinInterval is the minimum poll interval spec.md §4.2 allows.
const MinInterval = time.Second

// CheckRunning reports whether pid is currently a live, non-zombie
// process. Implemented by internal/procinspect on POSIX; injected here
// so the loop is testable against a fake.
type CheckRunning func(pid int) bool

// KillSignal sends signal sig to pid. Implemented with syscall.Kill;
// injected for testability.
type KillSignal func(pid int, sig Signal) error

// Signal is a small POSIX-signal abstraction so this package does not
// need to import syscall directly (and so tests can run on any OS).
type Signal int

const (
	SIGTERM Signal = 15
	SIGKILL Signal = 9
)

// PidResolver determines a watch's pid when it is not yet known, by
// reading its pid file. Implemented by internal/pidfile.
type PidResolver func(watchName string) (int, error)

// Loop is the poll loop's runtime state: the set of state machines it
// drives, and the collaborators it uses to observe and act on the world.
type Loop struct {
	Interval time.Duration

	Machines map[string]*watch.Machine

	Check    CheckRunning
	Kill     KillSignal
	PidFile  PidResolver
	Now      func() time.Time
	Log      *slog.Logger

	wake     chan struct{}
	exitFlag chan struct{}
	exited   bool
}

// NewLoop constructs a Loop with a coalescing, capacity-1 wakeup channel
// — the Go-native eventfd-equivalent described in spec.md §4.2: a single
// pending wakeup coalesces exactly like a real eventfd write, and the
// write happens-before the next receive per the Go memory model, giving
// the same ordering guarantee ("any state change requested before the
// wakeup write is visible to the next tick").
func NewLoop(interval time.Duration, machines map[string]*watch.Machine, check CheckRunning, kill KillSignal, pidFile PidResolver, log *slog.Logger) *Loop {
	if interval < MinInterval {
		interval = MinInterval
	}
	return &Loop{
		Interval: interval,
		Machines: machines,
		Check:    check,
		Kill:     kill,
		PidFile:  pidFile,
		Now:      time.Now,
		Log:      log,
		wake:     make(chan struct{}, 1),
		exitFlag: make(chan struct{}),
	}
}

// Wake coalesces a pending wakeup: additional wakeups while one is
// already pending are no-ops, matching a real eventfd's counter
// semantics collapsed to a boolean "something changed."
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// RequestExit sets the shared need_exit flag and wakes the loop
// immediately, per spec.md §4.2's termination contract. Safe to call
// more than once.
func (l *Loop) RequestExit() {
	if l.exited {
		return
	}
	l.exited = true
	close(l.exitFlag)
	l.Wake()
}

// Run executes ticks until RequestExit is observed. It returns nil on a
// clean exit (spec.md §4.2: "Clean exit returns success").
func (l *Loop) Run() error {
	for {
		l.Tick()

		select {
		case <-l.exitFlag:
			return nil
		default:
		}

		if l.sleepInterruptible() {
			return nil
		}
	}
}

// sleepInterruptible waits for the poll interval, returning early (true)
// if exit was requested during the wait.
func (l *Loop) sleepInterruptible() bool {
	timer := time.NewTimer(l.Interval)
	defer timer.Stop()
	select {
	case <-l.exitFlag:
		return true
	case <-l.wake:
		select {
		case <-l.exitFlag:
			return true
		default:
		}
		return false
	case <-timer.C:
		return false
	}
}

// Tick runs one iteration of spec.md §4.2's per-tick contract, applied
// to every state in the current state list. Run calls this on its own
// timer; a supervisor driving signals, control commands, and polling
// from a single select loop (spec.md §5) may call Tick directly on its
// own ticker instead of using Run.
func (l *Loop) Tick() {
	now := l.Now()
	for name, m := range l.Machines {
		l.tickOne(name, m, now)
	}
}

func (l *Loop) tickOne(name string, m *watch.Machine, now time.Time) {
	s := m.State()

	if s.Pid == 0 && s.Current != watch.Unmonitored {
		if pid, err := l.PidFile(name); err == nil && pid > 0 {
			if s.Current == watch.Starting {
				// Lets the machine honour a stop queued while STARTING.
				m.NotifySpawned(pid, now)
			} else {
				s.Pid = pid
			}
		}
	}

	if s.Pid > 0 {
		running := l.Check(s.Pid)
		m.Tick(now, running)

		if m.State().Current == watch.Stopping {
			l.driveStopEscalation(m, now)
		}
	} else if s.Current == watch.Starting || s.Current == watch.Stopping {
		m.Tick(now, false)
	}
}

// driveStopEscalation sends the default SIGTERM/SIGKILL sequence for
// watches with no custom Stop command (spec.md §4.3: "otherwise the
// supervisor escalates: SIGTERM -> wait -> SIGKILL, then UNMONITORED").
// Watches with a custom Stop argv are left alone here: the forker's
// exec'd stop command is responsible for terminating them, and the
// stop_timeout deadline below still applies as a backstop.
func (l *Loop) driveStopEscalation(m *watch.Machine, now time.Time) {
	s := m.State()
	if s.Pid <= 0 {
		return
	}

	// SIGTERM is sent as soon as STOPPING is entered, before the deadline
	// check below, so a stop_timeout of 0 still delivers SIGTERM before
	// escalating to SIGKILL on this same tick (spec.md §8: "stop_timeout=0
	// => SIGKILL issued immediately after SIGTERM", not SIGKILL alone).
	if m.NeedsDirectStopSignal() && !s.Flags.TermSent {
		if err := l.Kill(s.Pid, SIGTERM); err != nil {
			l.Log.Warn("poll: SIGTERM failed", "watch", m.Watch().Name, "pid", s.Pid, "error", err)
		}
		s.Flags.TermSent = true
	}

	if m.StopDeadlineExpired(now) {
		if err := l.Kill(s.Pid, SIGKILL); err != nil {
			l.Log.Warn("poll: SIGKILL failed", "watch", m.Watch().Name, "pid", s.Pid, "error", err)
		}
		m.ForceKilled(now)
	}
}
