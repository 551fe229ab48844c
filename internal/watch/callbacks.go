package watch

import "log/slog"

// Callbacks is the plugin notification interface from Design Notes §9:
// "an interface with two operations (on_state_change, on_destroy) and a
// registration list owned by the plugin repository." Implementations
// must not block; CallbackList recovers and logs their panics rather
// than letting a misbehaving plugin take down the supervisor.
type Callbacks interface {
	// OnStateChange is invoked after every state transition, given the
	// watch name, its new state, its current pid (0 if unknown), and an
	// opaque userdata value supplied at registration.
	OnStateChange(name string, newState Phase, pid int, userdata any)

	// OnDestroy is invoked when a watch is removed from the supervision
	// set (reload, or final shutdown), passing the same userdata.
	OnDestroy(name string, userdata any)
}

// registration pairs a Callbacks implementation with the userdata value
// it should receive on every dispatch.
type registration struct {
	cb       Callbacks
	userdata any
}

// CallbackList is the plugin repository's registration list: callbacks
// fire in registration order, never concurrently, always on the caller's
// goroutine (the single supervisor goroutine per §5).
type CallbackList struct {
	regs []registration
}

// Register appends cb to the dispatch list with the given userdata.
func (l *CallbackList) Register(cb Callbacks, userdata any) {
	l.regs = append(l.regs, registration{cb: cb, userdata: userdata})
}

// DispatchStateChange calls OnStateChange on every registered callback in
// registration order. A panicking callback is recovered and logged to
// slog.Default(); the panic is never propagated to the caller.
func (l *CallbackList) DispatchStateChange(name string, newState Phase, pid int) {
	for _, r := range l.regs {
		dispatchSafely(func() { r.cb.OnStateChange(name, newState, pid, r.userdata) })
	}
}

// DispatchDestroy calls OnDestroy on every registered callback in
// registration order.
func (l *CallbackList) DispatchDestroy(name string) {
	for _, r := range l.regs {
		dispatchSafely(func() { r.cb.OnDestroy(name, r.userdata) })
	}
}

func dispatchSafely(f func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Default().Error("watch: plugin callback panicked", "panic", r)
		}
	}()
	f()
}
