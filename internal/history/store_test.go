package history_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nyxproc/nyx/internal/history"
	"github.com/nyxproc/nyx/internal/watch"
)

func openTestStore(t *testing.T) *history.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := history.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesEmptyStore(t *testing.T) {
	s := openTestStore(t)
	if got := s.Count(); got != 0 {
		t.Fatalf("Count() = %d, want 0", got)
	}
}

func TestRecordIncrementsCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Record(ctx, "web", watch.Unmonitored, watch.Starting, 0, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(ctx, "web", watch.Starting, watch.Running, 4242, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if got := s.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}
}

func TestRecentReturnsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Record(ctx, "web", watch.Unmonitored, watch.Starting, 0, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(ctx, "web", watch.Starting, watch.Running, 100, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(ctx, "web", watch.Running, watch.Stopping, 100, "stop requested"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := s.Recent(ctx, "web", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].NewState != watch.Stopping.String() {
		t.Fatalf("entries[0].NewState = %q, want %q", entries[0].NewState, watch.Stopping.String())
	}
	if entries[0].Reason != "stop requested" {
		t.Fatalf("entries[0].Reason = %q, want %q", entries[0].Reason, "stop requested")
	}
	if entries[0].ID == "" {
		t.Fatal("expected a non-empty correlation ID")
	}
}

func TestRecentFiltersByWatchName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Record(ctx, "web", watch.Unmonitored, watch.Starting, 0, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(ctx, "worker", watch.Unmonitored, watch.Starting, 0, ""); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries, err := s.Recent(ctx, "worker", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Watch != "worker" {
		t.Fatalf("entries[0].Watch = %q, want worker", entries[0].Watch)
	}
}

func TestRecentRespectsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := s.Record(ctx, "web", watch.Running, watch.Running, 100, ""); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	entries, err := s.Recent(ctx, "web", 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
}

func TestRecentZeroLimitReturnsNil(t *testing.T) {
	s := openTestStore(t)
	entries, err := s.Recent(context.Background(), "web", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if entries != nil {
		t.Fatalf("expected nil entries, got %v", entries)
	}
}
