// Package control is the default implementation of the external control
// collaborator spec.md treats abstractly ("calls into the supervision
// core via the request API of §4.3"), per SPEC_FULL.md §4.6. It exposes
// a Requester core funneled onto the supervisor's single goroutine via
// a Dispatcher, plus two front ends that only ever call into Requester:
// a newline-delimited-JSON Unix socket (socket.go) and a chi-routed
// HTTP API (http.go).
package control

import (
	"context"

	"github.com/nyxproc/nyx/internal/history"
)

// WatchStatus is the control API's view of one supervised watch.
type WatchStatus struct {
	Name string `json:"name"`
	Pid  int    `json:"pid"`
	// Phase is the watch.Phase.String() value ("RUNNING", "STOPPING", ...).
	Phase string `json:"phase"`
}

// Requester is the request API spec.md §4.3 describes collaborators
// calling into: start/stop one watch by name, reload the watch set from
// config, and query current/historical state. Both control front ends
// (socket.go, http.go) depend only on this interface, never on
// internal/watch or internal/forker directly.
type Requester interface {
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Reload(ctx context.Context) error
	Status(ctx context.Context, name string) (WatchStatus, error)
	List(ctx context.Context) ([]WatchStatus, error)
	History(ctx context.Context, name string, n int) ([]history.Entry, error)
}
