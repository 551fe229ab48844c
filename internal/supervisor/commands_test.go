//go:build linux || darwin

package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nyxproc/nyx/internal/control"
	"github.com/nyxproc/nyx/internal/watch"
)

// serveOne runs handleCommand for exactly one Command arriving on the
// dispatcher, standing in for the supervisor's single-goroutine command
// loop for the duration of one Requester call.
func serveOne(s *Supervisor) {
	cmd := <-s.dispatcher.Commands()
	s.handleCommand(cmd)
}

func TestHandleCommandStartUnknownWatch(t *testing.T) {
	s, _ := newTestSupervisor(t, baseYAML)
	ctx := context.Background()

	go serveOne(s)
	err := s.dispatcher.Start(ctx, "nope")
	if !errors.Is(err, control.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHandleCommandStart(t *testing.T) {
	s, fc := newTestSupervisor(t, baseYAML)
	ctx := context.Background()

	go serveOne(s)
	if err := s.dispatcher.Start(ctx, "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.machines["a"].State().Current != watch.Starting {
		t.Fatalf("expected a to be STARTING, got %v", s.machines["a"].State().Current)
	}
	if len(fc.starts) != 1 {
		t.Fatalf("expected one SendStart, got %v", fc.starts)
	}
}

func TestHandleCommandStop(t *testing.T) {
	s, _ := newTestSupervisor(t, baseYAML)
	s.machines["a"].Adopt(222, time.Now())
	ctx := context.Background()

	go serveOne(s)
	if err := s.dispatcher.Stop(ctx, "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.machines["a"].State().Current != watch.Stopping {
		t.Fatalf("expected a to be STOPPING, got %v", s.machines["a"].State().Current)
	}
}

func TestHandleCommandStatus(t *testing.T) {
	s, _ := newTestSupervisor(t, baseYAML)
	s.machines["a"].Adopt(333, time.Now())
	ctx := context.Background()

	go serveOne(s)
	status, err := s.dispatcher.Status(ctx, "a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Pid != 333 || status.Phase != "RUNNING" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestHandleCommandStatusUnknownWatch(t *testing.T) {
	s, _ := newTestSupervisor(t, baseYAML)
	ctx := context.Background()

	go serveOne(s)
	_, err := s.dispatcher.Status(ctx, "ghost")
	if !errors.Is(err, control.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHandleCommandList(t *testing.T) {
	s, _ := newTestSupervisor(t, baseYAML)
	ctx := context.Background()

	go serveOne(s)
	statuses, err := s.dispatcher.List(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 watches listed, got %d", len(statuses))
	}
}

func TestHandleCommandReloadInvokesReload(t *testing.T) {
	s, fc := newTestSupervisor(t, baseYAML)
	ctx := context.Background()

	newYAML := baseYAML + `
  - name: c
    start: ["/bin/sleep", "10"]
`
	writeConfigOverwrite(t, s.configPath, newYAML)

	go serveOne(s)
	if err := s.dispatcher.Reload(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := s.machines["c"]; !ok {
		t.Fatal("expected reload to have picked up the new watch")
	}
	if fc.reload != 1 {
		t.Fatalf("expected forker reload notification, got %d", fc.reload)
	}
}

func TestHandleCommandHistory(t *testing.T) {
	s, _ := newTestSupervisor(t, baseYAML)
	s.machines["a"].Adopt(444, time.Now())
	ctx := context.Background()

	go serveOne(s)
	entries, err := s.dispatcher.History(ctx, "a", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one history entry after an adoption transition")
	}
	if entries[0].NewState != watch.Running.String() {
		t.Fatalf("expected newest entry to record RUNNING, got %v", entries[0].NewState)
	}
}
