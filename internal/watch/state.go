package watch

import "time"

// Phase is one of the six supervision states from spec.md §4.3.
type Phase int

const (
	Unmonitored Phase = iota
	Starting
	Running
	Stopping
	Restarting
	Failed
)

func (p Phase) String() string {
	switch p {
	case Unmonitored:
		return "UNMONITORED"
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	case Restarting:
		return "RESTARTING"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Flags records the boolean side-state a watch accumulates between ticks:
// a pending stop request queued while STARTING, and the deadline by which
// a STARTING watch must reach RUNNING or be declared FAILED.
type Flags struct {
	StopRequested   bool
	StartupDeadline time.Time
	StopDeadline    time.Time
	// TermSent records that the poll loop has already sent the default
	// SIGTERM for a STOPPING watch with no custom Stop command, so it is
	// not resent every tick while waiting for stop_timeout to elapse.
	TermSent bool
}

// State is the mutable runtime record associated 1:1 with a Watch by
// name. At most one State exists per watch name; pid > 0 implies
// Current is Running or Stopping.
type State struct {
	WatchName string

	Pid            int
	Current        Phase
	LastTransition time.Time

	// RestartsInWindow and WindowStart implement the sliding restart-storm
	// budget: RestartsInWindow counts restarts since WindowStart, the time
	// of the first restart in the current window. A restart more than
	// RestartWindow after WindowStart starts a new window and a new count.
	RestartsInWindow int
	WindowStart      time.Time

	Flags Flags
}

// NewState returns the initial State for a watch just added to the
// supervision set: UNMONITORED, no known PID.
func NewState(watchName string) *State {
	return &State{
		WatchName: watchName,
		Current:   Unmonitored,
	}
}
