package control

import (
	"context"
	"errors"

	"github.com/nyxproc/nyx/internal/history"
)

// Op identifies the kind of request a Command carries.
type Op int

const (
	OpStart Op = iota
	OpStop
	OpReload
	OpStatus
	OpList
	OpHistory
)

// ErrNotFound is returned by a Command handler when Watch names a watch
// the supervisor does not currently know about.
var ErrNotFound = errors.New("control: watch not found")

// Command is one control-plane request, handed to the supervisor's
// single designated goroutine over Dispatcher.Commands(). This realizes
// spec.md §5's single request-channel requirement for anything that
// mutates Watch/State: HTTP and socket I/O run on their own goroutines,
// but every state-touching operation is funneled through here.
type Command struct {
	Op       Op
	Watch    string
	HistoryN int

	reply chan Result
}

// Reply unblocks the caller that issued this Command with result r. It
// must be called exactly once per Command received from Commands().
func (c Command) Reply(r Result) {
	c.reply <- r
}

// Result is a Command's outcome.
type Result struct {
	Status   WatchStatus
	Statuses []WatchStatus
	Entries  []history.Entry
	Err      error
}

// Dispatcher is the supervisor-side end of the control request channel:
// Requester methods enqueue a Command and block for its Result: the
// supervisor loop drains Commands() and calls Reply exactly once per
// Command.
type Dispatcher struct {
	commands chan Command
}

// NewDispatcher returns a ready-to-use Dispatcher. The channel is
// unbuffered by design: a caller blocks until the supervisor goroutine
// has actually picked up the request, giving control operations the
// same ordering guarantee as the poll loop's own wakeup event.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{commands: make(chan Command)}
}

// Commands returns the channel the supervisor loop should range/select
// over. Every Command received must eventually be Reply'd.
func (d *Dispatcher) Commands() <-chan Command {
	return d.commands
}

func (d *Dispatcher) do(ctx context.Context, op Op, watch string, n int) (Result, error) {
	reply := make(chan Result, 1)
	cmd := Command{Op: op, Watch: watch, HistoryN: n, reply: reply}

	select {
	case d.commands <- cmd:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case r := <-reply:
		return r, r.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Start implements Requester.
func (d *Dispatcher) Start(ctx context.Context, name string) error {
	_, err := d.do(ctx, OpStart, name, 0)
	return err
}

// Stop implements Requester.
func (d *Dispatcher) Stop(ctx context.Context, name string) error {
	_, err := d.do(ctx, OpStop, name, 0)
	return err
}

// Reload implements Requester.
func (d *Dispatcher) Reload(ctx context.Context) error {
	_, err := d.do(ctx, OpReload, "", 0)
	return err
}

// Status implements Requester.
func (d *Dispatcher) Status(ctx context.Context, name string) (WatchStatus, error) {
	r, err := d.do(ctx, OpStatus, name, 0)
	if err != nil {
		return WatchStatus{}, err
	}
	return r.Status, nil
}

// List implements Requester.
func (d *Dispatcher) List(ctx context.Context) ([]WatchStatus, error) {
	r, err := d.do(ctx, OpList, "", 0)
	if err != nil {
		return nil, err
	}
	return r.Statuses, nil
}

// History implements Requester.
func (d *Dispatcher) History(ctx context.Context, name string, n int) ([]history.Entry, error) {
	r, err := d.do(ctx, OpHistory, name, n)
	if err != nil {
		return nil, err
	}
	return r.Entries, nil
}

var _ Requester = (*Dispatcher)(nil)
