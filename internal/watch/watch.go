// Package watch holds the declarative Watch record, the mutable runtime
// State associated with it, and the state machine that drives one from
// the other. It is the leaf-most domain package above procinspect/pidfile
// in the supervisor's dependency order.
package watch

import "fmt"

// Watch is an immutable (per reload generation) declarative record
// describing one supervised service. During reload the supervisor
// compares every field except ID (supervisor.watchEqual) to decide
// whether a watch changed.
type Watch struct {
	ID   int32
	Name string

	Start []string
	Stop  []string

	Dir string
	UID string
	GID string

	PidFile   string
	LogFile   string
	ErrorFile string

	Env map[string]string

	HTTPCheck       string
	HTTPCheckPort   int
	HTTPCheckMethod string
	PortCheck       int

	StopTimeout   int // seconds; 0 means SIGKILL immediately after SIGTERM
	MaxCPU        uint64
	MaxMemory     uint64
	StartupDelay  int // seconds
	RestartWindow int // seconds; sliding window for restart-storm budget
	RestartLimit  int // max restarts within RestartWindow before FAILED
}

// Validate checks the invariants spec.md §3 states for Watch: a non-empty
// name and a non-empty start argv whose first element is non-empty.
func (w Watch) Validate() error {
	if w.Name == "" {
		return fmt.Errorf("watch: name must not be empty")
	}
	if len(w.Start) == 0 || w.Start[0] == "" {
		return fmt.Errorf("watch %q: start argv must be non-empty with a non-empty start[0]", w.Name)
	}
	if w.RestartWindow < 0 || w.RestartLimit < 0 {
		return fmt.Errorf("watch %q: restart window and limit must be non-negative", w.Name)
	}
	return nil
}

// ArgvEqual reports whether w and other have identical Start and Stop
// argv slices. Reload does not use it; it compares whole records.
func (w Watch) ArgvEqual(other Watch) bool {
	return stringsEqual(w.Start, other.Start) && stringsEqual(w.Stop, other.Stop)
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DefaultRestartWindow and DefaultRestartLimit are the restart-storm
// budget defaults from Design Notes §9's Open Question resolution: a 10
// second sliding window, 5 restarts before a watch is declared FAILED.
const (
	DefaultRestartWindow = 10
	DefaultRestartLimit  = 5
)

// WithDefaults returns a copy of w with zero-valued optional fields
// filled in from the package defaults. Config loading (internal/config)
// does not call it; its applyDefaults fills the same fields itself.
func (w Watch) WithDefaults() Watch {
	if w.RestartWindow == 0 {
		w.RestartWindow = DefaultRestartWindow
	}
	if w.RestartLimit == 0 {
		w.RestartLimit = DefaultRestartLimit
	}
	return w
}
