//go:build linux || darwin

package forker

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
	"syscall"
)

// RunExecChild performs the async-signal-safe half of a spawn: session
// creation, privilege drop, stdio rewiring, descriptor sweep, and finally
// syscall.Exec of the real target argv. It is invoked only from the
// re-exec'd __nyx_exec__ process (see marker.go) and never returns on
// success — execve replaces the process image. On failure it returns an
// error for the caller to log and exit non-zero with, except for ENOENT
// which spec.md §4.1 treats as "missing binary, non-fatal": in that case
// it calls os.Exit(0) itself and does not return.
func RunExecChild() error {
	raw := os.Getenv(EnvSpawnDescriptor)
	if raw == "" {
		return fmt.Errorf("forker: exec child invoked without %s", EnvSpawnDescriptor)
	}
	d, err := DecodeDescriptor(raw)
	if err != nil {
		return err
	}
	return execDescriptor(d)
}

func execDescriptor(d SpawnDescriptor) error {
	if _, err := syscall.Setsid(); err != nil {
		// ESPerm/EPERM here just means we're already a session leader
		// (e.g. under a test harness); not fatal to the spawn.
		_ = err
	}

	syscall.Umask(0)

	uid, gid, extraGroups, userName, homeDir, err := resolveCredentials(d.UID, d.GID)
	if err != nil {
		return err
	}
	if gid != nil {
		if err := syscall.Setgroups(extraGroups); err != nil {
			return fmt.Errorf("forker: setgroups: %w", err)
		}
		if err := syscall.Setgid(*gid); err != nil {
			return fmt.Errorf("forker: setgid(%d): %w", *gid, err)
		}
	}
	if uid != nil {
		if err := syscall.Setuid(*uid); err != nil {
			return fmt.Errorf("forker: setuid(%d): %w", *uid, err)
		}
	}
	if uid != nil {
		os.Setenv("USER", userName)
		os.Setenv("HOME", homeDir)
	}

	if d.Dir != "" {
		if err := os.Chdir(d.Dir); err != nil {
			return fmt.Errorf("forker: chdir(%q): %w", d.Dir, err)
		}
	}

	if err := rewireStdio(d); err != nil {
		return err
	}

	for k, v := range d.Env {
		os.Setenv(k, v)
	}
	if d.Stop {
		os.Setenv("NYX_PID", strconv.Itoa(int(d.NyxPid)))
	}

	closeInheritedFDs()

	argv0, err := resolveExecutable(d.Argv[0])
	if err != nil {
		if os.IsNotExist(err) {
			os.Exit(0)
		}
		return fmt.Errorf("forker: resolve executable %q: %w", d.Argv[0], err)
	}

	env := os.Environ()
	execErr := syscall.Exec(argv0, d.Argv, env)
	if execErr == syscall.ENOENT {
		os.Exit(0)
	}
	return fmt.Errorf("forker: exec %q: %w", d.Argv[0], execErr)
}

// resolveCredentials looks up uidStr/gidStr against the user/group
// database, mirroring spec.md §3's "uid/gid (optional strings resolved
// against the user database)". A nil *int return means "do not change
// this credential".
func resolveCredentials(uidStr, gidStr string) (uid, gid *int, groups []int, userName, homeDir string, err error) {
	if uidStr == "" && gidStr == "" {
		return nil, nil, nil, "", "", nil
	}

	var u *user.User
	if uidStr != "" {
		u, err = user.Lookup(uidStr)
		if err != nil {
			return nil, nil, nil, "", "", fmt.Errorf("forker: lookup user %q: %w", uidStr, err)
		}
		n, convErr := strconv.Atoi(u.Uid)
		if convErr != nil {
			return nil, nil, nil, "", "", fmt.Errorf("forker: user %q has non-numeric uid %q", uidStr, u.Uid)
		}
		uid = &n
		userName = u.Username
		homeDir = u.HomeDir
	}

	gidSource := gidStr
	if gidSource == "" && u != nil {
		gidSource = u.Gid
	}
	if gidSource != "" {
		var g *user.Group
		g, err = user.LookupGroup(gidSource)
		if err != nil {
			if n, convErr := strconv.Atoi(gidSource); convErr == nil {
				gid = &n
			} else {
				return nil, nil, nil, "", "", fmt.Errorf("forker: lookup group %q: %w", gidSource, err)
			}
		} else {
			n, convErr := strconv.Atoi(g.Gid)
			if convErr != nil {
				return nil, nil, nil, "", "", fmt.Errorf("forker: group %q has non-numeric gid %q", gidSource, g.Gid)
			}
			gid = &n
		}
	}
	if gid != nil {
		groups = []int{*gid}
	}
	return uid, gid, groups, userName, homeDir, nil
}

// rewireStdio implements "stdin ← /dev/null; stdout/stderr → log_file /
// error_file if set, else passed through when proxy mode is on, else
// /dev/null".
func rewireStdio(d SpawnDescriptor) error {
	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("forker: open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	if err := dup2(int(devNull.Fd()), 0); err != nil {
		return fmt.Errorf("forker: dup2 stdin: %w", err)
	}

	if err := rewireOutputFD(d.LogFile, d.Proxy, devNull, 1); err != nil {
		return fmt.Errorf("forker: dup2 stdout: %w", err)
	}

	if err := rewireOutputFD(d.ErrorFile, d.Proxy, devNull, 2); err != nil {
		return fmt.Errorf("forker: dup2 stderr: %w", err)
	}
	return nil
}

// rewireOutputFD redirects fd (1 for stdout, 2 for stderr) to path if one
// is configured, otherwise to devNull unless proxy is set, in which case
// fd is left untouched: it still refers to whatever the forker itself
// inherited for that descriptor, so the child's output passes through to
// wherever nyx's own stdout/stderr go (spec.md §4.1's "PID-1 + quiet=false
// => pass stdio through untouched").
func rewireOutputFD(path string, proxy bool, devNull *os.File, fd int) error {
	if path != "" {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("forker: open %q: %w", path, err)
		}
		defer f.Close()
		return dup2(int(f.Fd()), fd)
	}
	if proxy {
		return nil
	}
	return dup2(int(devNull.Fd()), fd)
}

func dup2(oldfd, newfd int) error {
	return syscall.Dup2(oldfd, newfd)
}

// resolveExecutable mirrors execvp's PATH search: if argv0 contains a
// slash it is used as-is, otherwise it is searched for on $PATH.
func resolveExecutable(argv0 string) (string, error) {
	if containsSlash(argv0) {
		if _, err := os.Stat(argv0); err != nil {
			return "", err
		}
		return argv0, nil
	}
	path, err := lookPath(argv0)
	if err != nil {
		return "", err
	}
	return path, nil
}

func containsSlash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return true
		}
	}
	return false
}
