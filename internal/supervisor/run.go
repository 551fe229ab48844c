//go:build linux || darwin

package supervisor

import (
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Run is the supervisor's single cooperative goroutine: it selects
// over the poll ticker, OS signals, and control commands, matching
// spec.md §5's "poll loop, signal handlers... control-socket accept...
// all run on one thread." It returns nil on a clean shutdown
// (SIGTERM/SIGINT/SIGQUIT) and a non-nil error if the forker dies
// (spec.md §8 scenario 6: "supervisor logs forker died, exits code 2").
func (s *Supervisor) Run() error {
	// SIGPIPE ignored: a write to a forker pipe whose reader is gone
	// must surface as an error from the write call, not kill the
	// process (spec.md §5).
	signal.Ignore(syscall.SIGPIPE)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	forkerDead := make(chan struct{})
	go s.watchForkerDeath(forkerDead)

	interval := s.pollLoop.Interval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT:
				s.log.Info("supervisor: shutdown signal received", "signal", sig.String())
				s.shutdown()
				return nil
			case syscall.SIGHUP:
				s.log.Info("supervisor: reload signal received")
				s.reload()
			}

		case cmd := <-s.dispatcher.Commands():
			s.handleCommand(cmd)

		case <-ticker.C:
			s.pollLoop.Tick()
			s.drainPending()

		case <-forkerDead:
			s.log.Error("supervisor: forker died")
			return errForkerDied
		}
	}
}

// watchForkerDeath polls the forker, a direct child of the supervisor,
// once per poll interval with a non-blocking wait4 and closes dead once
// the forker has exited (and so been reaped here). SIGCHLD is not used;
// the poll interval bounds detection latency to "within one tick" per
// spec.md §8 scenario 6.
func (s *Supervisor) watchForkerDeath(dead chan<- struct{}) {
	pid := s.forker.Pid()
	ticker := time.NewTicker(s.pollLoop.Interval)
	defer ticker.Stop()
	for range ticker.C {
		var status syscall.WaitStatus
		if wpid, err := syscall.Wait4(pid, &status, syscall.WNOHANG, nil); wpid == pid || err != nil {
			close(dead)
			return
		}
	}
}

var errForkerDied = &forkerDiedError{}

type forkerDiedError struct{}

func (*forkerDiedError) Error() string { return "supervisor: forker process died" }

// ExitCodeForError maps Run's returned error to the process exit code
// table in spec.md §6: 0 for a clean shutdown, 2 for a dead forker.
func ExitCodeForError(err error) int {
	if err == nil {
		return 0
	}
	if _, ok := err.(*forkerDiedError); ok {
		return 2
	}
	return 1
}
