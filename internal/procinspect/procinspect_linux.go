//go:build linux

package procinspect

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// checkRunning implements CheckRunning by checking for /proc/<pid> and
// excluding zombies: a zombie's /proc/<pid> entry still exists but the
// process is no longer schedulable, so the poll loop should treat it as
// not-running (its parent has not yet reaped it).
func checkRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	f, err := os.Open(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	defer f.Close()

	state, ok := readStatState(f)
	if !ok {
		// /proc/<pid> exists but stat couldn't be parsed; still treat the
		// process as present rather than guessing.
		return true
	}
	return state != 'Z'
}

// readStatState extracts the process state character (the third
// whitespace-delimited field of /proc/<pid>/stat, immediately after the
// parenthesized command name which itself may contain spaces).
func readStatState(f *os.File) (byte, bool) {
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, false
	}
	line := scanner.Text()
	closeParen := strings.LastIndexByte(line, ')')
	if closeParen < 0 || closeParen+2 >= len(line) {
		return 0, false
	}
	rest := strings.TrimSpace(line[closeParen+1:])
	fields := strings.Fields(rest)
	if len(fields) < 1 || len(fields[0]) != 1 {
		return 0, false
	}
	return fields[0][0], true
}

func comm(pid int) (string, error) {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "", fmt.Errorf("procinspect: read comm for pid %d: %w", pid, err)
	}
	return strings.TrimRight(string(b), "\n"), nil
}

func exe(pid int) (string, error) {
	link, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return "", fmt.Errorf("procinspect: readlink exe for pid %d: %w", pid, err)
	}
	return link, nil
}

// cpuTimeTicks returns the process's accumulated CPU time in clock ticks
// (utime+stime, fields 14 and 15 of /proc/<pid>/stat), used by the poll
// loop to evaluate a watch's max_cpu constraint between two samples.
func cpuTimeTicks(pid int) (uint64, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return 0, fmt.Errorf("procinspect: open stat for pid %d: %w", pid, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, fmt.Errorf("procinspect: empty stat for pid %d", pid)
	}
	line := scanner.Text()
	closeParen := strings.LastIndexByte(line, ')')
	if closeParen < 0 {
		return 0, fmt.Errorf("procinspect: malformed stat for pid %d", pid)
	}
	fields := strings.Fields(line[closeParen+1:])
	// fields[0] is state (field 3 overall); utime is field 14, stime field
	// 15, i.e. fields[11] and fields[12] in this 0-indexed, post-comm slice.
	if len(fields) < 13 {
		return 0, fmt.Errorf("procinspect: short stat for pid %d", pid)
	}
	utime, err1 := strconv.ParseUint(fields[11], 10, 64)
	stime, err2 := strconv.ParseUint(fields[12], 10, 64)
	if err1 != nil || err2 != nil {
		return 0, fmt.Errorf("procinspect: parse utime/stime for pid %d", pid)
	}
	return utime + stime, nil
}

// residentMemoryBytes returns the process's resident set size in bytes,
// read from /proc/<pid>/statm (field 2, in pages) multiplied by the page
// size. Used to evaluate a watch's max_memory constraint.
func residentMemoryBytes(pid int) (uint64, error) {
	b, err := os.ReadFile(fmt.Sprintf("/proc/%d/statm", pid))
	if err != nil {
		return 0, fmt.Errorf("procinspect: read statm for pid %d: %w", pid, err)
	}
	fields := strings.Fields(string(b))
	if len(fields) < 2 {
		return 0, fmt.Errorf("procinspect: malformed statm for pid %d", pid)
	}
	pages, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("procinspect: parse statm for pid %d: %w", pid, err)
	}
	return pages * uint64(os.Getpagesize()), nil
}
