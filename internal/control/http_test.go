package control_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nyxproc/nyx/internal/control"
	"github.com/nyxproc/nyx/internal/history"
)

func TestHTTPHealthz(t *testing.T) {
	req := &fakeRequester{}
	srv := httptest.NewServer(control.NewRouter(req))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestHTTPListWatches(t *testing.T) {
	req := &fakeRequester{watches: []control.WatchStatus{{Name: "web", Phase: "running", Pid: 1}}}
	srv := httptest.NewServer(control.NewRouter(req))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/watches")
	if err != nil {
		t.Fatalf("GET /api/v1/watches: %v", err)
	}
	defer resp.Body.Close()

	var watches []control.WatchStatus
	if err := json.NewDecoder(resp.Body).Decode(&watches); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(watches) != 1 || watches[0].Name != "web" {
		t.Fatalf("unexpected watches: %+v", watches)
	}
}

func TestHTTPStartWatch(t *testing.T) {
	req := &fakeRequester{}
	srv := httptest.NewServer(control.NewRouter(req))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/watches/web/start", "application/json", nil)
	if err != nil {
		t.Fatalf("POST start: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	req.mu.Lock()
	defer req.mu.Unlock()
	if len(req.started) != 1 || req.started[0] != "web" {
		t.Fatalf("expected web started, got %+v", req.started)
	}
}

func TestHTTPStopUnknownWatchReturnsNotFound(t *testing.T) {
	req := &fakeRequester{failOn: "ghost"}
	srv := httptest.NewServer(control.NewRouter(req))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/watches/ghost/stop", "application/json", nil)
	if err != nil {
		t.Fatalf("POST stop: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHTTPReload(t *testing.T) {
	req := &fakeRequester{}
	srv := httptest.NewServer(control.NewRouter(req))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/reload", "application/json", nil)
	if err != nil {
		t.Fatalf("POST reload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	req.mu.Lock()
	defer req.mu.Unlock()
	if req.reloads != 1 {
		t.Fatalf("expected 1 reload, got %d", req.reloads)
	}
}

func TestHTTPHistory(t *testing.T) {
	req := &fakeRequester{entries: []history.Entry{
		{ID: "abc", Watch: "web", OldState: "starting", NewState: "running", Pid: 42},
	}}
	srv := httptest.NewServer(control.NewRouter(req))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/history?watch=web&limit=10")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body := make([]byte, 4096)
	n, _ := resp.Body.Read(body)
	if !strings.Contains(string(body[:n]), `"watch":"web"`) {
		t.Fatalf("expected watch field in response, got: %s", body[:n])
	}
}

func TestHTTPHistoryRejectsBadLimit(t *testing.T) {
	req := &fakeRequester{}
	srv := httptest.NewServer(control.NewRouter(req))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/history?limit=notanumber")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
