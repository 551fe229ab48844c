// Package procinspect inspects OS processes by reading /proc, giving the
// poll loop and PID-file reconciliation logic the two primitives the spec
// requires: liveness ("does this PID still exist, and is it not a zombie")
// and identity ("does this PID's executable match the one we expect").
//
// This is POSIX-only by design: nyx's process model (fork/exec, PID files,
// /proc) has no Windows equivalent, matching the explicit Windows-support
// non-goal.
package procinspect

import (
	"fmt"
	"strings"
)

// CheckRunning reports whether pid currently exists as a live process. A
// missing /proc/<pid> entry means the process is not running; this is not
// treated as an inspection error (per the error-handling design: "missing
// /proc/<pid> ⇒ process treated as not running").
func CheckRunning(pid int) bool {
	return checkRunning(pid)
}

// Comm returns the short command name (the content of /proc/<pid>/comm,
// trailing newline stripped) for pid. It returns an error if the process
// does not exist or /proc cannot be read.
func Comm(pid int) (string, error) {
	if !CheckRunning(pid) {
		return "", errNotRunning
	}
	return comm(pid)
}

// Exe returns the resolved executable path (the target of
// /proc/<pid>/exe) for pid.
func Exe(pid int) (string, error) {
	if !CheckRunning(pid) {
		return "", errNotRunning
	}
	return exe(pid)
}

// CPUTimeTicks returns the process's accumulated CPU time in clock ticks
// (user+system). The poll loop does not call it; max_cpu is not
// evaluated.
func CPUTimeTicks(pid int) (uint64, error) {
	if !CheckRunning(pid) {
		return 0, errNotRunning
	}
	return cpuTimeTicks(pid)
}

// ResidentMemoryBytes returns the process's resident set size in bytes.
// The poll loop does not call it; max_memory is not evaluated.
func ResidentMemoryBytes(pid int) (uint64, error) {
	if !CheckRunning(pid) {
		return 0, errNotRunning
	}
	return residentMemoryBytes(pid)
}

// MatchesExecutable reports whether the process at pid is still running
// and its comm name matches the base name of executable. This is the
// adoption check used by PID-file reconciliation at boot: "if the PID
// still belongs to a process whose /proc/<pid>/comm matches the executable
// basename, it is adopted."
func MatchesExecutable(pid int, executable string) bool {
	if !CheckRunning(pid) {
		return false
	}
	name, err := Comm(pid)
	if err != nil {
		return false
	}
	want := baseName(executable)
	// /proc/<pid>/comm truncates to 15 bytes (TASK_COMM_LEN-1); compare the
	// shorter of the two so a long executable name still matches.
	if len(want) > len(name) {
		want = want[:len(name)]
	}
	return name == want
}

func baseName(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return path
	}
	return path[i+1:]
}

// errNotRunning is returned internally when /proc/<pid> does not exist;
// callers observe it through CheckRunning's boolean result or as the
// error returned by Comm, Exe, CPUTimeTicks and ResidentMemoryBytes.
var errNotRunning = fmt.Errorf("procinspect: process not running")
