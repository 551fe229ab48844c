package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/nyxproc/nyx/internal/history"
)

// socketRequest is one line of the newline-delimited JSON protocol
// described in SPEC_FULL.md §4.6: {"op":"start","watch":"web"}.
type socketRequest struct {
	Op    string `json:"op"`
	Watch string `json:"watch,omitempty"`
	N     int    `json:"n,omitempty"`
}

// socketResponse is the matching reply line, e.g. {"ok":true}.
type socketResponse struct {
	OK      bool          `json:"ok"`
	Error   string        `json:"error,omitempty"`
	Status  *WatchStatus  `json:"status,omitempty"`
	Watches []WatchStatus `json:"watches,omitempty"`
	History []historyJSON `json:"history,omitempty"`
}

type historyJSON struct {
	ID        string `json:"id"`
	Watch     string `json:"watch"`
	OldState  string `json:"old_state"`
	NewState  string `json:"new_state"`
	Pid       int    `json:"pid"`
	Timestamp string `json:"ts"`
	Reason    string `json:"reason,omitempty"`
}

// SocketServer is the Unix-domain-socket control front end from
// SPEC_FULL.md §4.6. It speaks only to a Requester: it never touches
// watch/forker state directly.
type SocketServer struct {
	req Requester
	log *slog.Logger

	mu sync.Mutex
	ln net.Listener
}

// NewSocketServer constructs a SocketServer. log defaults to
// slog.Default() if nil.
func NewSocketServer(req Requester, log *slog.Logger) *SocketServer {
	if log == nil {
		log = slog.Default()
	}
	return &SocketServer{req: req, log: log}
}

// ListenAndServe binds a Unix socket at path (removing any stale socket
// file left from an unclean shutdown, matching the pidfile package's
// delete-and-retry posture on corrupt/stale state) and serves
// connections until Close is called or Serve returns an error.
func (s *SocketServer) ListenAndServe(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("control: remove stale socket %q: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("control: listen on %q: %w", path, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("control: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

// Close stops accepting new connections.
func (s *SocketServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}

func (s *SocketServer) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var req socketRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			_ = enc.Encode(socketResponse{OK: false, Error: "malformed request: " + err.Error()})
			continue
		}

		resp := s.dispatch(req)
		if err := enc.Encode(resp); err != nil {
			s.log.Warn("control: failed to write socket response", "error", err)
			return
		}
	}
}

func (s *SocketServer) dispatch(req socketRequest) socketResponse {
	ctx := context.Background()

	switch req.Op {
	case "start":
		if err := s.req.Start(ctx, req.Watch); err != nil {
			return errResponse(err)
		}
		return socketResponse{OK: true}

	case "stop":
		if err := s.req.Stop(ctx, req.Watch); err != nil {
			return errResponse(err)
		}
		return socketResponse{OK: true}

	case "reload":
		if err := s.req.Reload(ctx); err != nil {
			return errResponse(err)
		}
		return socketResponse{OK: true}

	case "status":
		st, err := s.req.Status(ctx, req.Watch)
		if err != nil {
			return errResponse(err)
		}
		return socketResponse{OK: true, Status: &st}

	case "list":
		list, err := s.req.List(ctx)
		if err != nil {
			return errResponse(err)
		}
		return socketResponse{OK: true, Watches: list}

	case "history":
		n := req.N
		if n <= 0 {
			n = 20
		}
		entries, err := s.req.History(ctx, req.Watch, n)
		if err != nil {
			return errResponse(err)
		}
		return socketResponse{OK: true, History: toHistoryJSON(entries)}

	default:
		return socketResponse{OK: false, Error: fmt.Sprintf("unknown op %q", req.Op)}
	}
}

func errResponse(err error) socketResponse {
	return socketResponse{OK: false, Error: err.Error()}
}

func toHistoryJSON(entries []history.Entry) []historyJSON {
	out := make([]historyJSON, len(entries))
	for i, e := range entries {
		out[i] = historyJSON{
			ID:        e.ID,
			Watch:     e.Watch,
			OldState:  e.OldState,
			NewState:  e.NewState,
			Pid:       e.Pid,
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Reason:    e.Reason,
		}
	}
	return out
}
