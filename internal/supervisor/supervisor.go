//go:build linux || darwin

// Package supervisor wires together the forker, the poll loop, the
// watch state machines, the control front ends, and the history
// recorder into the runnable nyx supervision core (spec.md §1, §5).
//
// spec.md §5 requires that the supervisor core be "single-threaded
// cooperative": the poll loop, signal handling, and control-socket
// dispatch all run on one goroutine. Supervisor.Run implements that as
// a single select loop over a ticker, the OS signal channel, and the
// control.Dispatcher's command channel; HTTP/socket I/O for the control
// front ends run on their own goroutines but only ever call into
// control.Requester, which funnels back onto this one goroutine.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"syscall"
	"time"

	"github.com/nyxproc/nyx/internal/audit"
	"github.com/nyxproc/nyx/internal/config"
	"github.com/nyxproc/nyx/internal/control"
	"github.com/nyxproc/nyx/internal/forker"
	"github.com/nyxproc/nyx/internal/history"
	"github.com/nyxproc/nyx/internal/pidfile"
	"github.com/nyxproc/nyx/internal/poll"
	"github.com/nyxproc/nyx/internal/procinspect"
	"github.com/nyxproc/nyx/internal/watch"
)

// Supervisor is the top-level orchestrator: one process, one forker
// child, N watch state machines.
type Supervisor struct {
	configPath string
	cfg        *config.Config

	forker *forker.Forker
	sink   *forkerSink

	machines   map[string]*watch.Machine
	callbacks  *watch.CallbackList
	pollLoop   *poll.Loop
	dispatcher *control.Dispatcher

	historyStore *history.Store
	recorder     *history.Recorder
	auditLog     *audit.Logger

	pendingRestart map[string]bool
	pendingRemoval map[string]bool

	log *slog.Logger

	initMode bool
}

// Options configures New.
type Options struct {
	ConfigPath string
	InitMode   bool
	Log        *slog.Logger
}

// New loads cfg from opts.ConfigPath, spawns the forker child (before
// any other goroutine is started, per spec.md §4.1), builds one
// watch.Machine per configured watch, and opens the history store. It
// does not start the poll loop or control front ends; call Boot then
// Run for that.
func New(opts Options) (*Supervisor, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("supervisor: load config: %w", err)
	}

	f, err := forker.Spawn(opts.InitMode)
	if err != nil {
		return nil, fmt.Errorf("supervisor: spawn forker: %w", err)
	}

	historyPath := filepath.Join(cfg.RuntimeDir, "history.db")
	store, err := history.Open(historyPath)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("supervisor: open history store: %w", err)
	}

	callbacks := &watch.CallbackList{}
	recorder := history.NewRecorder(store, log)
	callbacks.Register(recorder, nil)

	auditPath := filepath.Join(cfg.RuntimeDir, "audit.log")
	auditLog, err := audit.Open(auditPath)
	if err != nil {
		_ = store.Close()
		_ = f.Close()
		return nil, fmt.Errorf("supervisor: open audit log: %w", err)
	}

	sink := &forkerSink{f: f, log: log}

	byName := config.ByName(cfg)
	machines := make(map[string]*watch.Machine, len(byName))
	for name, w := range byName {
		st := watch.NewState(name)
		machines[name] = watch.NewMachine(w, st, sink, callbacks)
	}

	kill := func(pid int, sig poll.Signal) error {
		return syscall.Kill(pid, syscall.Signal(sig))
	}
	pidResolver := func(name string) (int, error) {
		return pidfile.Read(cfg.RuntimeDir, name)
	}

	loop := poll.NewLoop(
		time.Duration(cfg.PollInterval)*time.Second,
		machines,
		procinspect.CheckRunning,
		kill,
		pidResolver,
		log,
	)

	s := &Supervisor{
		configPath:     opts.ConfigPath,
		cfg:            cfg,
		forker:         f,
		sink:           sink,
		machines:       machines,
		callbacks:      callbacks,
		pollLoop:       loop,
		dispatcher:     control.NewDispatcher(),
		historyStore:   store,
		recorder:       recorder,
		auditLog:       auditLog,
		pendingRestart: make(map[string]bool),
		pendingRemoval: make(map[string]bool),
		log:            log,
		initMode:       opts.InitMode,
	}
	return s, nil
}

// Dispatcher exposes the control.Dispatcher so cmd/nyx can wire the
// socket and HTTP front ends to it before calling Run.
func (s *Supervisor) Dispatcher() *control.Dispatcher { return s.dispatcher }

// RuntimeDir returns the configured runtime directory, for cmd/nyx to
// derive the control socket path.
func (s *Supervisor) RuntimeDir() string { return s.cfg.RuntimeDir }

// ControlAddr returns the configured HTTP control API bind address.
func (s *Supervisor) ControlAddr() string { return s.cfg.ControlAddr }

// Boot performs spec.md §4.5's boot-time reconciliation: for every
// watch, if its PID file points to a live process whose /proc/<pid>/comm
// matches the watch's executable basename, the watch is adopted
// straight into RUNNING; otherwise (stale, corrupt, or absent PID file)
// it is started fresh. A config containing no prior PID files therefore
// auto-starts every watch at boot, matching spec.md §8 scenario 1
// ("boot -> after 1 tick, state is RUNNING") — this generalizes the
// literal transition-table wording ("for any watch whose PID file
// points to a non-running process") to also cover watches with no PID
// file at all, since a first-ever boot has none; see DESIGN.md.
func (s *Supervisor) Boot(ctx context.Context) {
	now := time.Now()
	for name, m := range s.machines {
		w := m.Watch()
		pid, err := pidfile.Read(s.cfg.RuntimeDir, name)
		if err != nil {
			s.log.Warn("supervisor: failed to read pid file at boot", "watch", name, "error", err)
		}

		if pid > 0 && procinspect.CheckRunning(pid) && procinspect.MatchesExecutable(pid, w.Start[0]) {
			m.Adopt(pid, now)
			s.log.Info("supervisor: adopted running watch at boot", "watch", name, "pid", pid)
			continue
		}

		if pid > 0 {
			_ = pidfile.Remove(s.cfg.RuntimeDir, name)
		}
		m.RequestStart(now)
	}
}

func watchEqual(a, b watch.Watch) bool {
	a.ID = 0
	b.ID = 0
	return reflect.DeepEqual(a, b)
}
