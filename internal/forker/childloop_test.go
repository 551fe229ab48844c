//go:build linux || darwin

package forker

import (
	"fmt"
	"os"
	"testing"

	"github.com/nyxproc/nyx/internal/watch"
)

func TestReadHandoffPID(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	fmt.Fprintf(w, "%d\n", 4242)
	w.Close()

	pid, err := readHandoffPID(r)
	if err != nil {
		t.Fatalf("readHandoffPID: %v", err)
	}
	if pid != 4242 {
		t.Fatalf("got %d, want 4242", pid)
	}
}

func TestReadHandoffPIDEmptyPipe(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	w.Close()
	defer r.Close()

	if _, err := readHandoffPID(r); err == nil {
		t.Fatal("expected an error reading an empty handoff pipe")
	}
}

func TestSpawnStopRejectsWatchWithoutStopCommand(t *testing.T) {
	w := watch.Watch{ID: 1, Name: "noop", Start: []string{"/bin/true"}}
	if err := spawnStop(w, 1); err == nil {
		t.Fatal("expected an error for a watch with no configured stop command")
	}
}

func TestMustEncodeDoesNotPanicOnValidDescriptor(t *testing.T) {
	d := NewBuilder(1, "a").Argv([]string{"/bin/true"}).Build()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("mustEncode panicked: %v", r)
		}
	}()
	_ = mustEncode(d)
}
