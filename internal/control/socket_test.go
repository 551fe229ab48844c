package control_test

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/nyxproc/nyx/internal/control"
)

func startTestSocketServer(t *testing.T, req *fakeRequester) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nyx.sock")
	srv := control.NewSocketServer(req, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(path) }()
	t.Cleanup(func() { _ = srv.Close() })

	// Give the listener a moment to bind.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if conn, err := net.Dial("unix", path); err == nil {
			conn.Close()
			return path
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("socket server never became ready")
	return ""
}

func roundTrip(t *testing.T, path string, reqLine string) map[string]any {
	t.Helper()
	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(reqLine + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatalf("no response line: %v", scanner.Err())
	}

	var resp map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return resp
}

func TestSocketServerStart(t *testing.T) {
	req := &fakeRequester{}
	path := startTestSocketServer(t, req)

	resp := roundTrip(t, path, `{"op":"start","watch":"web"}`)
	if resp["ok"] != true {
		t.Fatalf("expected ok=true, got %+v", resp)
	}

	req.mu.Lock()
	defer req.mu.Unlock()
	if len(req.started) != 1 || req.started[0] != "web" {
		t.Fatalf("expected web to be started, got %+v", req.started)
	}
}

func TestSocketServerUnknownOp(t *testing.T) {
	req := &fakeRequester{}
	path := startTestSocketServer(t, req)

	resp := roundTrip(t, path, `{"op":"frobnicate"}`)
	if resp["ok"] != false {
		t.Fatalf("expected ok=false for unknown op, got %+v", resp)
	}
}

func TestSocketServerMalformedJSON(t *testing.T) {
	req := &fakeRequester{}
	path := startTestSocketServer(t, req)

	resp := roundTrip(t, path, `not json`)
	if resp["ok"] != false {
		t.Fatalf("expected ok=false for malformed request, got %+v", resp)
	}
}

func TestSocketServerList(t *testing.T) {
	req := &fakeRequester{watches: []control.WatchStatus{{Name: "web", Phase: "running", Pid: 42}}}
	path := startTestSocketServer(t, req)

	resp := roundTrip(t, path, `{"op":"list"}`)
	if resp["ok"] != true {
		t.Fatalf("expected ok=true, got %+v", resp)
	}
	watches, ok := resp["watches"].([]any)
	if !ok || len(watches) != 1 {
		t.Fatalf("expected one watch in response, got %+v", resp)
	}
}

func TestSocketServerNotFound(t *testing.T) {
	req := &fakeRequester{failOn: "ghost"}
	path := startTestSocketServer(t, req)

	resp := roundTrip(t, path, `{"op":"stop","watch":"ghost"}`)
	if resp["ok"] != false {
		t.Fatalf("expected ok=false for not-found watch, got %+v", resp)
	}
}
