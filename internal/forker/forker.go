//go:build linux || darwin

package forker

import (
	"fmt"
	"os"
	"syscall"

	"github.com/nyxproc/nyx/internal/forkmsg"
)

// Forker is the supervisor's handle on the re-exec'd forker
// sub-process: the write end of the request pipe, and the child's pid
// for death detection (spec.md §7: "Forker death: supervisor detects via
// SIGCHLD or by pipe write returning EPIPE").
type Forker struct {
	pid   int
	pipeW *os.File
}

// Spawn creates the forker child: the supervisor re-execs its own
// binary with ForkerMarker as argv[0], before starting any other
// goroutine (spec.md §4.1). initMode is passed through via the
// NYX_FORKER_INIT env var so the re-exec'd process knows whether it
// should reap orphans and single-fork.
func Spawn(initMode bool) (*Forker, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("forker: resolve self executable: %w", err)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("forker: create request pipe: %w", err)
	}
	defer r.Close()

	env := os.Environ()
	if initMode {
		env = append(env, EnvInitMode+"=1")
	}

	attr := &syscall.ProcAttr{
		Env:   env,
		Files: []uintptr{r.Fd(), os.Stdout.Fd(), os.Stderr.Fd()},
	}
	pid, err := syscall.ForkExec(exe, []string{ForkerMarker}, attr)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("forker: fork/exec forker process: %w", err)
	}

	return &Forker{pid: pid, pipeW: w}, nil
}

// Pid returns the forker sub-process's pid, for the supervisor's
// periodic forker-death check.
func (f *Forker) Pid() int { return f.pid }

// SendStart requests a spawn for the given watch id.
func (f *Forker) SendStart(watchID int32) error {
	return f.send(forkmsg.NewStart(watchID))
}

// SendStop requests the stop-command spawn for the given watch id,
// publishing pid to the child via NYX_PID.
func (f *Forker) SendStop(watchID int32, pid int32) error {
	return f.send(forkmsg.NewStop(watchID, pid))
}

// SendReload asks the forker to clear and re-read its watch set.
func (f *Forker) SendReload() error {
	return f.send(forkmsg.NewReload())
}

func (f *Forker) send(req forkmsg.Request) error {
	if err := forkmsg.WriteTo(f.pipeW, req); err != nil {
		return fmt.Errorf("forker: request write failed, forker may be dead: %w", err)
	}
	return nil
}

// Close closes the request pipe's write end. The forker observes EOF
// and terminates cleanly (spec.md §4.1: "On EOF of the pipe it
// terminates cleanly").
func (f *Forker) Close() error {
	return f.pipeW.Close()
}

// Wait reaps the forker process, blocking until it exits.
func (f *Forker) Wait() (syscall.WaitStatus, error) {
	var status syscall.WaitStatus
	_, err := syscall.Wait4(f.pid, &status, 0, nil)
	return status, err
}
