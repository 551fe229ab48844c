package history_test

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/nyxproc/nyx/internal/history"
	"github.com/nyxproc/nyx/internal/watch"
)

func TestRecorderOnStateChangeTracksPriorPhase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	r := history.NewRecorder(s, slog.Default())

	r.OnStateChange("web", watch.Starting, 0, nil)
	r.OnStateChange("web", watch.Running, 123, nil)

	entries, err := s.Recent(context.Background(), "web", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	// entries[0] is the most recent: Starting -> Running
	if entries[0].OldState != watch.Starting.String() || entries[0].NewState != watch.Running.String() {
		t.Fatalf("unexpected transition: %+v", entries[0])
	}
	// entries[1] is the first recorded transition, with Unmonitored as
	// its implicit prior state.
	if entries[1].OldState != watch.Unmonitored.String() || entries[1].NewState != watch.Starting.String() {
		t.Fatalf("unexpected first transition: %+v", entries[1])
	}
}

func TestRecorderOnDestroyRecordsRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	r := history.NewRecorder(s, slog.Default())
	r.OnStateChange("worker", watch.Running, 55, nil)
	r.OnDestroy("worker", nil)

	entries, err := s.Recent(context.Background(), "worker", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Reason != "removed" {
		t.Fatalf("entries[0].Reason = %q, want removed", entries[0].Reason)
	}
	if entries[0].NewState != watch.Unmonitored.String() {
		t.Fatalf("entries[0].NewState = %q, want %q", entries[0].NewState, watch.Unmonitored.String())
	}
}

func TestRecorderImplementsCallbacksInterface(t *testing.T) {
	var _ watch.Callbacks = (*history.Recorder)(nil)
}
