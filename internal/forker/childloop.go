//go:build linux || darwin

package forker

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nyxproc/nyx/internal/forkmsg"
	"github.com/nyxproc/nyx/internal/pidfile"
	"github.com/nyxproc/nyx/internal/watch"
)

// WatchLoader re-reads the configuration file into the forker's private
// watch set, keyed by watch ID — the forker's own copy per spec.md §3
// ("Ownership... the forker holds its own private copy of the watch set,
// synchronized only via the RELOAD message re-reading the config").
type WatchLoader func() (map[int32]watch.Watch, error)

// RunForker is the forker process's main loop (spec.md §4.1): it reads
// fixed-size ForkRequest records from stdin until EOF and performs the
// corresponding spawn or stop. It never initiates actions on its own,
// and its only reply channel to the supervisor is the filesystem: "It
// replies only by writing PID files and invoking execvp" (spec.md §4,
// public contract). runtimeDir locates <runtime_dir>/pids/<watch_name>
// via internal/pidfile. initMode selects single-fork spawning (the
// forker is PID 1 and reaps orphans itself) versus double-fork
// spawning. quiet disables proxy-mode stdio passthrough even under
// initMode: passthrough is on only when initMode is set and quiet is
// not.
func RunForker(stdin io.Reader, watches map[int32]watch.Watch, reload WatchLoader, initMode, quiet bool, runtimeDir string, log *slog.Logger) error {
	signal.Ignore(syscall.SIGINT)

	reapCh := make(chan os.Signal, 1)
	signal.Notify(reapCh, syscall.SIGCHLD)
	stopReaper := make(chan struct{})
	go backgroundReaper(reapCh, stopReaper)
	defer close(stopReaper)

	for {
		req, err := forkmsg.ReadFrom(stdin)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("forker: read request: %w", err)
		}

		if req.IsReload() {
			fresh, err := reload()
			if err != nil {
				log.Warn("forker: reload failed, keeping previous watch set", "error", err)
				continue
			}
			watches = fresh
			continue
		}

		w, ok := watches[req.ID]
		if !ok {
			log.Warn("forker: request for unknown watch id", "id", req.ID)
			continue
		}

		if req.Start {
			pid, err := spawnStart(w, initMode, quiet)
			if err != nil {
				log.Error("forker: spawn failed", "watch", w.Name, "error", err)
				continue
			}
			log.Info("forker: spawned", "watch", w.Name, "pid", pid)

			// Writing the PID file is the forker's only reply channel
			// to the supervisor (spec.md §4, public contract): a write
			// failure does not undo or retry the spawn, it is only
			// logged ("Double-fork when PID file cannot be written =>
			// process still tracked in memory, warning logged" —
			// spec.md §7, referring to the supervisor's own in-memory
			// Machine.State once it separately observes the process
			// via check_process_running).
			if err := pidfile.Write(runtimeDir, w.Name, pid); err != nil {
				log.Warn("forker: failed to write pid file", "watch", w.Name, "pid", pid, "error", err)
			}
		} else {
			if err := spawnStop(w, req.Pid); err != nil {
				log.Error("forker: stop spawn failed", "watch", w.Name, "error", err)
			}
		}
	}
}

// backgroundReaper drains SIGCHLD notifications with a non-blocking
// waitpid loop, preventing zombies from single-fork stop commands (which
// have no other parent to reap them) in every mode, and from all direct
// children when running as init. spec.md §4.1 specifies this handler
// only for init mode; here it runs in every mode.
func backgroundReaper(sig <-chan os.Signal, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-sig:
			for {
				var status syscall.WaitStatus
				pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
				if pid <= 0 || err != nil {
					break
				}
			}
		}
	}
}

// spawnStart implements the start spawn protocol: double-fork unless
// initMode, in which case a single fork suffices (spec.md §4.1 step 1).
// Proxy stdio passthrough is only offered when running as PID 1 without
// quiet (spec.md §6): initMode alone is not enough.
func spawnStart(w watch.Watch, initMode, quiet bool) (int, error) {
	d := NewBuilder(w.ID, w.Name).
		Argv(w.Start).
		Dir(w.Dir).
		Env(w.Env).
		Credentials(w.UID, w.GID).
		Stdio(w.LogFile, w.ErrorFile, initMode && !quiet).
		Build()

	if initMode {
		return forkExecSelf(ExecMarker, mustEncode(d))
	}
	return spawnStartDoubleFork(d)
}

// spawnStartDoubleFork implements spec.md §4.1 step 2: an anonymous
// pipe, one fork producing the intermediate, which forks the grandchild
// and writes its pid to the pipe before exiting; the forker reads the
// pid back and reaps the intermediate.
func spawnStartDoubleFork(d SpawnDescriptor) (int, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("forker: create handoff pipe: %w", err)
	}
	defer r.Close()

	exe, err := os.Executable()
	if err != nil {
		w.Close()
		return 0, fmt.Errorf("forker: resolve self executable: %w", err)
	}

	encoded, err := EncodeDescriptor(d)
	if err != nil {
		w.Close()
		return 0, err
	}

	env := append(os.Environ(),
		EnvSpawnDescriptor+"="+encoded,
		EnvPipeFD+"=3",
	)
	attr := &syscall.ProcAttr{
		Env:   env,
		Files: []uintptr{0, 1, 2, w.Fd()},
	}
	intermediatePid, err := syscall.ForkExec(exe, []string{IntermediateMarker}, attr)
	w.Close()
	if err != nil {
		return 0, fmt.Errorf("forker: fork intermediate: %w", err)
	}

	pid, readErr := readHandoffPID(r)

	var status syscall.WaitStatus
	syscall.Wait4(intermediatePid, &status, 0, nil)

	if readErr != nil {
		return 0, readErr
	}
	if pid <= 0 {
		return 0, fmt.Errorf("forker: intermediate reported spawn failure")
	}
	return pid, nil
}

func readHandoffPID(r *os.File) (int, error) {
	var pid int
	_, err := fmt.Fscanf(r, "%d", &pid)
	if err != nil {
		return 0, fmt.Errorf("forker: read handoff pid: %w", err)
	}
	return pid, nil
}

// spawnStop implements spec.md §4.1's stop protocol: a single fork whose
// child sets NYX_PID and execs the watch's custom stop argv. The pid is
// not tracked further.
func spawnStop(w watch.Watch, targetPid int32) error {
	if len(w.Stop) == 0 {
		return fmt.Errorf("forker: watch %q has no stop command configured", w.Name)
	}
	d := NewBuilder(w.ID, w.Name).
		Argv(w.Stop).
		Dir(w.Dir).
		Env(w.Env).
		Credentials(w.UID, w.GID).
		AsStop(targetPid).
		Build()
	_, err := forkExecSelf(ExecMarker, mustEncode(d))
	return err
}

func mustEncode(d SpawnDescriptor) string {
	s, err := EncodeDescriptor(d)
	if err != nil {
		// SpawnDescriptor only contains JSON-safe scalar/map/slice
		// fields; a marshal failure here would be a programming error.
		panic(err)
	}
	return s
}
