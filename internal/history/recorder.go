package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nyxproc/nyx/internal/watch"
)

// Recorder implements watch.Callbacks and persists every state
// transition and destroy event to a Store, per SPEC_FULL.md §4.7. It
// is registered with a watch.CallbackList alongside any other plugin
// callbacks (logging, metrics) the supervisor wires up.
//
// watch.CallbackList's userdata is a fixed value supplied once at
// registration, not a per-call argument, so Recorder tracks the prior
// phase per watch name itself to populate Entry.OldState.
type Recorder struct {
	store *Store
	log   *slog.Logger

	mu   sync.Mutex
	last map[string]watch.Phase

	// timeout bounds each individual write so a slow or wedged disk
	// cannot stall the poll loop's callback dispatch (watch.CallbackList
	// recovers panics but calls each callback synchronously on the
	// supervisor goroutine, so a write that never returned would block
	// that goroutine).
	timeout time.Duration
}

// NewRecorder wraps store in a watch.Callbacks adapter. log receives a
// warning if a write to store fails; failures never propagate back
// into the state machine.
func NewRecorder(store *Store, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{store: store, log: log, last: make(map[string]watch.Phase), timeout: 2 * time.Second}
}

// OnStateChange records the transition, looking up the watch's
// previously recorded phase (watch.Unmonitored if this is the first
// transition seen for that name).
func (r *Recorder) OnStateChange(name string, newState watch.Phase, pid int, userdata any) {
	r.mu.Lock()
	old := r.last[name]
	r.last[name] = newState
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.Record(ctx, name, old, newState, pid, ""); err != nil {
		r.log.Warn("history: failed to record transition", "watch", name, "error", err)
	}
}

// OnDestroy records a watch's removal (reload dropping a watch, or
// final shutdown) as a terminal transition to watch.Unmonitored with a
// "removed" reason.
func (r *Recorder) OnDestroy(name string, userdata any) {
	r.mu.Lock()
	old := r.last[name]
	delete(r.last, name)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.store.Record(ctx, name, old, watch.Unmonitored, 0, "removed"); err != nil {
		r.log.Warn("history: failed to record destroy", "watch", name, "error", err)
	}
}
