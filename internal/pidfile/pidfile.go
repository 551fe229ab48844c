// Package pidfile reads and writes the nyx PID files that record the last
// known PID for each watch, at <runtime_dir>/pids/<watch_name>. PID files
// are authoritative for cross-restart recovery: on boot, each watch's PID
// file is read and, if it still belongs to a process whose executable
// matches the watch, the watch is adopted into RUNNING without respawning.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Dir returns the directory under runtimeDir in which PID files live.
func Dir(runtimeDir string) string {
	return filepath.Join(runtimeDir, "pids")
}

// Path returns the PID file path for the named watch.
func Path(runtimeDir, watchName string) string {
	return filepath.Join(Dir(runtimeDir), watchName)
}

// Write atomically records pid for the named watch: it writes to a temp
// file in the same directory and renames it into place, so a reader never
// observes a partially written PID file. The pids directory is created if
// necessary.
func Write(runtimeDir, watchName string, pid int) error {
	dir := Dir(runtimeDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("pidfile: create %s: %w", dir, err)
	}

	final := Path(runtimeDir, watchName)
	tmp, err := os.CreateTemp(dir, "."+watchName+".tmp-*")
	if err != nil {
		return fmt.Errorf("pidfile: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := fmt.Fprintf(tmp, "%d\n", pid); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("pidfile: write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("pidfile: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("pidfile: rename %s to %s: %w", tmpName, final, err)
	}
	return nil
}

// Read returns the PID recorded for the named watch. A missing file
// returns (0, nil): no PID is known yet, which is not an error. A present
// but corrupt file (unreadable or non-numeric content) is deleted and also
// reported as (0, nil), matching the error-handling contract: "unreadable
// or non-numeric ⇒ delete and treat as unknown PID."
func Read(runtimeDir, watchName string) (int, error) {
	path := Path(runtimeDir, watchName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		_ = os.Remove(path)
		return 0, nil
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		_ = os.Remove(path)
		return 0, nil
	}
	return pid, nil
}

// Remove deletes the PID file for the named watch, if present. A missing
// file is not an error.
func Remove(runtimeDir, watchName string) error {
	path := Path(runtimeDir, watchName)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pidfile: remove %s: %w", path, err)
	}
	return nil
}
