//go:build linux || darwin

package supervisor

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nyxproc/nyx/internal/audit"
	"github.com/nyxproc/nyx/internal/config"
	"github.com/nyxproc/nyx/internal/control"
	"github.com/nyxproc/nyx/internal/history"
	"github.com/nyxproc/nyx/internal/poll"
	"github.com/nyxproc/nyx/internal/watch"
)

// fakeForkerClient records forkerSink calls without touching a real
// forker process, so reload/command logic can be tested without
// spawning one (real fork/exec is exercised separately by
// internal/forker's own opt-in integration test).
type fakeForkerClient struct {
	mu     sync.Mutex
	starts []int32
	stops  []int32
	reload int
}

func (f *fakeForkerClient) SendStart(id int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, id)
	return nil
}

func (f *fakeForkerClient) SendStop(id int32, pid int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, id)
	return nil
}

func (f *fakeForkerClient) SendReload() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reload++
	return nil
}

func writeTestConfig(t *testing.T, yamlContent string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "nyx.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func newTestSupervisor(t *testing.T, yamlContent string) (*Supervisor, *fakeForkerClient) {
	t.Helper()

	path := writeTestConfig(t, yamlContent)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	cfg.RuntimeDir = t.TempDir()

	store, err := history.Open(filepath.Join(cfg.RuntimeDir, "history.db"))
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	auditLog, err := audit.Open(filepath.Join(cfg.RuntimeDir, "audit.log"))
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	t.Cleanup(func() { _ = auditLog.Close() })

	log := slog.Default()
	callbacks := &watch.CallbackList{}
	recorder := history.NewRecorder(store, log)
	callbacks.Register(recorder, nil)

	fc := &fakeForkerClient{}
	sink := &forkerSink{f: fc, log: log}

	byName := config.ByName(cfg)
	machines := make(map[string]*watch.Machine, len(byName))
	for name, w := range byName {
		st := watch.NewState(name)
		machines[name] = watch.NewMachine(w, st, sink, callbacks)
	}

	loop := poll.NewLoop(
		time.Second,
		machines,
		func(int) bool { return false },
		func(int, poll.Signal) error { return nil },
		func(string) (int, error) { return 0, nil },
		log,
	)

	s := &Supervisor{
		configPath:     path,
		cfg:            cfg,
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
	}
	s.forker = nil // reload/command tests never touch the real forker handle
	return s, fc
}
