package control_test

import (
	"context"
	"sync"

	"github.com/nyxproc/nyx/internal/control"
	"github.com/nyxproc/nyx/internal/history"
)

// fakeRequester is a minimal in-memory control.Requester for exercising
// the socket and HTTP front ends without a real supervisor loop.
type fakeRequester struct {
	mu      sync.Mutex
	started []string
	stopped []string
	reloads int
	watches []control.WatchStatus
	entries []history.Entry
	failOn  string
}

func (f *fakeRequester) Start(ctx context.Context, name string) error {
	if name == f.failOn {
		return control.ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, name)
	return nil
}

func (f *fakeRequester) Stop(ctx context.Context, name string) error {
	if name == f.failOn {
		return control.ErrNotFound
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, name)
	return nil
}

func (f *fakeRequester) Reload(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
	return nil
}

func (f *fakeRequester) Status(ctx context.Context, name string) (control.WatchStatus, error) {
	for _, w := range f.watches {
		if w.Name == name {
			return w, nil
		}
	}
	return control.WatchStatus{}, control.ErrNotFound
}

func (f *fakeRequester) List(ctx context.Context) ([]control.WatchStatus, error) {
	return f.watches, nil
}

func (f *fakeRequester) History(ctx context.Context, name string, n int) ([]history.Entry, error) {
	return f.entries, nil
}

var _ control.Requester = (*fakeRequester)(nil)
