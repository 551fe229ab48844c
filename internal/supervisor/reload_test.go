//go:build linux || darwin

package supervisor

import (
	"os"
	"testing"
	"time"

	"github.com/nyxproc/nyx/internal/watch"
)

const baseYAML = `
watches:
  - name: a
    start: ["/bin/sleep", "3600"]
  - name: b
    start: ["/bin/sleep", "60"]
`

func TestWatchEqualIgnoresID(t *testing.T) {
	a := watch.Watch{ID: 1, Name: "web", Start: []string{"/bin/true"}}
	b := watch.Watch{ID: 2, Name: "web", Start: []string{"/bin/true"}}
	if !watchEqual(a, b) {
		t.Fatal("expected watches differing only in ID to compare equal")
	}
}

func TestWatchEqualDetectsEnvDifference(t *testing.T) {
	a := watch.Watch{Name: "web", Start: []string{"/bin/true"}, Env: map[string]string{"X": "1"}}
	b := watch.Watch{Name: "web", Start: []string{"/bin/true"}, Env: map[string]string{"X": "2"}}
	if watchEqual(a, b) {
		t.Fatal("expected an env difference to be detected")
	}
}

func TestReloadRemovesDroppedWatch(t *testing.T) {
	s, fc := newTestSupervisor(t, baseYAML)

	// Start "b" so it is RUNNING when removed.
	s.machines["b"].Adopt(4242, time.Now())

	newYAML := `
watches:
  - name: a
    start: ["/bin/sleep", "3600"]
`
	writeConfigOverwrite(t, s.configPath, newYAML)

	s.reload()

	if _, ok := s.machines["b"]; ok {
		// b should remain tracked (pending removal) until it reaches
		// UNMONITORED; it has no custom stop command, so it is left to
		// the poll loop's direct-signal escalation, which hasn't run
		// yet in this test.
		if s.machines["b"].State().Current != watch.Stopping {
			t.Fatalf("expected b to be STOPPING pending removal, got %v", s.machines["b"].State().Current)
		}
	} else {
		t.Fatal("expected b to still be tracked pending its stop completing")
	}

	if !s.pendingRemoval["b"] {
		t.Fatal("expected b to be marked pending removal")
	}

	if fc.reload != 1 {
		t.Fatalf("expected forker to be notified of reload once, got %d", fc.reload)
	}
}

func TestReloadAddsNewWatch(t *testing.T) {
	s, _ := newTestSupervisor(t, baseYAML)

	newYAML := baseYAML + `
  - name: c
    start: ["/bin/sleep", "10"]
`
	writeConfigOverwrite(t, s.configPath, newYAML)
	s.reload()

	m, ok := s.machines["c"]
	if !ok {
		t.Fatal("expected watch c to be added by reload")
	}
	if m.State().Current != watch.Unmonitored {
		t.Fatalf("expected newly added watch to start UNMONITORED, got %v", m.State().Current)
	}
}

func TestReloadRestartsChangedWatch(t *testing.T) {
	s, _ := newTestSupervisor(t, baseYAML)
	s.machines["a"].Adopt(111, time.Now())

	newYAML := `
watches:
  - name: a
    start: ["/bin/sleep", "3600"]
    env:
      FOO: bar
  - name: b
    start: ["/bin/sleep", "60"]
`
	writeConfigOverwrite(t, s.configPath, newYAML)
	s.reload()

	if s.machines["a"].State().Current != watch.Stopping {
		t.Fatalf("expected a to be STOPPING after an env change, got %v", s.machines["a"].State().Current)
	}
	if !s.pendingRestart["a"] {
		t.Fatal("expected a to be marked pending restart")
	}
}

func TestReloadLeavesUnchangedWatchAlone(t *testing.T) {
	s, _ := newTestSupervisor(t, baseYAML)
	s.machines["a"].Adopt(111, time.Now())

	writeConfigOverwrite(t, s.configPath, baseYAML)
	s.reload()

	if s.machines["a"].State().Current != watch.Running {
		t.Fatalf("expected unchanged watch to remain RUNNING, got %v", s.machines["a"].State().Current)
	}
	if s.pendingRestart["a"] {
		t.Fatal("did not expect an unchanged watch to be marked pending restart")
	}
}

func TestReloadKeepsOldConfigOnParseFailure(t *testing.T) {
	s, _ := newTestSupervisor(t, baseYAML)
	writeConfigOverwrite(t, s.configPath, "not: valid: yaml: [")

	s.reload()

	if _, ok := s.machines["a"]; !ok {
		t.Fatal("expected watch a to still be tracked after a failed reload")
	}
}

func TestDrainPendingRestartsOnceUnmonitored(t *testing.T) {
	s, fc := newTestSupervisor(t, baseYAML)
	m := s.machines["a"]
	m.Adopt(111, time.Now())
	m.RequestStop(time.Now())
	s.pendingRestart["a"] = true

	// Process not gone yet: still STOPPING, drain should not fire.
	s.drainPending()
	if len(fc.starts) != 0 {
		t.Fatalf("expected no start sent while still stopping, got %v", fc.starts)
	}

	// Simulate the poll loop observing the process gone.
	m.Tick(time.Now(), false)
	if m.State().Current != watch.Unmonitored {
		t.Fatalf("expected UNMONITORED once process is gone, got %v", m.State().Current)
	}

	s.drainPending()
	if len(fc.starts) != 1 {
		t.Fatalf("expected exactly one start request after drain, got %v", fc.starts)
	}
	if s.pendingRestart["a"] {
		t.Fatal("expected pending restart flag to be cleared")
	}
}

func writeConfigOverwrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("overwrite config: %v", err)
	}
}
