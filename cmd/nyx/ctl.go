//go:build linux || darwin

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ctlRequest/ctlResponse mirror the newline-delimited JSON wire protocol
// internal/control/socket.go speaks (SPEC_FULL.md §4.6). They are
// redefined here rather than imported because the server-side types are
// unexported: a client only needs to agree on the wire shape, not share
// the implementation.
type ctlRequest struct {
	Op    string `json:"op"`
	Watch string `json:"watch,omitempty"`
	N     int    `json:"n,omitempty"`
}

type ctlResponse struct {
	OK      bool              `json:"ok"`
	Error   string            `json:"error,omitempty"`
	Status  *ctlWatchStatus   `json:"status,omitempty"`
	Watches []ctlWatchStatus  `json:"watches,omitempty"`
	History []ctlHistoryEntry `json:"history,omitempty"`
}

type ctlWatchStatus struct {
	Name  string `json:"name"`
	Pid   int    `json:"pid"`
	Phase string `json:"phase"`
}

type ctlHistoryEntry struct {
	ID        string `json:"id"`
	Watch     string `json:"watch"`
	OldState  string `json:"old_state"`
	NewState  string `json:"new_state"`
	Pid       int    `json:"pid"`
	Timestamp string `json:"ts"`
	Reason    string `json:"reason,omitempty"`
}

// runCtl is the "ctl" subcommand: a thin client of the control socket,
// adapted from the teacher's transport.connectLoop reconnect posture —
// a short exponential backoff around the initial dial, since the
// supervisor's socket may not have been created yet immediately after
// it was started (e.g. scripted "nyx & nyx ctl status").
func runCtl(socketPath string, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: nyx ctl <start|stop|reload|status|list|history> [watch] [n]")
		return 1
	}

	req := ctlRequest{Op: args[0]}
	if len(args) > 1 {
		req.Watch = args[1]
	}
	if req.Op == "history" && len(args) > 2 {
		if n, err := strconv.Atoi(args[2]); err == nil {
			req.N = n
		}
	}

	conn, err := dialControlSocket(socketPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nyx ctl: %v\n", err)
		return 1
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	if err := enc.Encode(req); err != nil {
		fmt.Fprintf(os.Stderr, "nyx ctl: write request: %v\n", err)
		return 1
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		fmt.Fprintf(os.Stderr, "nyx ctl: no response from supervisor (%v)\n", scanner.Err())
		return 1
	}

	var resp ctlResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		fmt.Fprintf(os.Stderr, "nyx ctl: malformed response: %v\n", err)
		return 1
	}

	return printCtlResponse(resp)
}

func dialControlSocket(path string) (net.Conn, error) {
	var conn net.Conn
	op := func() error {
		c, err := net.DialTimeout("unix", path, time.Second)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 5 * time.Second
	b.InitialInterval = 100 * time.Millisecond

	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("dial control socket %q: %w", path, err)
	}
	return conn, nil
}

func printCtlResponse(resp ctlResponse) int {
	if !resp.OK {
		fmt.Fprintf(os.Stderr, "nyx ctl: %s\n", resp.Error)
		return 1
	}

	switch {
	case resp.Status != nil:
		fmt.Printf("%-16s %-10s pid=%d\n", resp.Status.Name, resp.Status.Phase, resp.Status.Pid)
	case resp.Watches != nil:
		for _, w := range resp.Watches {
			fmt.Printf("%-16s %-10s pid=%d\n", w.Name, w.Phase, w.Pid)
		}
	case resp.History != nil:
		for _, e := range resp.History {
			fmt.Printf("%s  %-16s %s -> %s  pid=%d  %s\n", e.Timestamp, e.Watch, e.OldState, e.NewState, e.Pid, e.Reason)
		}
	default:
		fmt.Println("ok")
	}
	return 0
}

// defaultSocketPath derives the control socket path from a runtime
// directory the same way internal/supervisor's cmd wiring does.
// spec.md §6 names the persisted path "<runtime_dir>/nyx.sock".
func defaultSocketPath(runtimeDir string) string {
	return filepath.Join(runtimeDir, "nyx.sock")
}
