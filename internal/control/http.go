package control

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter returns a chi.Router implementing SPEC_FULL.md §4.6's HTTP
// control API, adapted directly from the teacher's
// internal/server/rest.NewRouter route-table shape (health check with
// no auth, an /api/v1 route group below it) but bound to req instead of
// a storage.Store, and without the teacher's JWT layer (no multi-tenant
// auth boundary exists for a loopback-bound local supervisor API).
//
// Route layout:
//
//	GET  /healthz                      – liveness probe
//	GET  /api/v1/watches                – list all watches and their state
//	POST /api/v1/watches/{name}/start   – start one watch
//	POST /api/v1/watches/{name}/stop    – stop one watch
//	POST /api/v1/reload                 – reload the watch set from config
//	GET  /api/v1/history                – query the transition log
func NewRouter(req Requester) http.Handler {
	h := &httpHandlers{req: req}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/watches", h.handleListWatches)
		r.Post("/watches/{name}/start", h.handleStartWatch)
		r.Post("/watches/{name}/stop", h.handleStopWatch)
		r.Post("/reload", h.handleReload)
		r.Get("/history", h.handleHistory)
	})

	return r
}

type httpHandlers struct {
	req Requester
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeHTTPError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func (h *httpHandlers) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *httpHandlers) handleListWatches(w http.ResponseWriter, r *http.Request) {
	watches, err := h.req.List(r.Context())
	if err != nil {
		writeHTTPError(w, http.StatusInternalServerError, "failed to list watches")
		return
	}
	if watches == nil {
		watches = []WatchStatus{}
	}
	writeJSON(w, http.StatusOK, watches)
}

func (h *httpHandlers) handleStartWatch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.req.Start(r.Context(), name); err != nil {
		writeRequestErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started", "watch": name})
}

func (h *httpHandlers) handleStopWatch(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.req.Stop(r.Context(), name); err != nil {
		writeRequestErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped", "watch": name})
}

func (h *httpHandlers) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := h.req.Reload(r.Context()); err != nil {
		writeHTTPError(w, http.StatusInternalServerError, "reload failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// handleHistory responds to GET /api/v1/history?watch=<name>&limit=<n>.
// watch is optional (omit it to query across all watches); limit
// defaults to 100 and is capped at 1000, matching the teacher's
// handleGetAlerts pagination convention.
func (h *httpHandlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	watchName := q.Get("watch")

	limit := 100
	if ls := q.Get("limit"); ls != "" {
		n, err := strconv.Atoi(ls)
		if err != nil || n <= 0 {
			writeHTTPError(w, http.StatusBadRequest, "'limit' must be a positive integer")
			return
		}
		if n > 1000 {
			n = 1000
		}
		limit = n
	}

	entries, err := h.req.History(r.Context(), watchName, limit)
	if err != nil {
		writeHTTPError(w, http.StatusInternalServerError, "failed to query history")
		return
	}
	out := toHistoryJSON(entries)
	if out == nil {
		out = []historyJSON{}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeRequestErr(w http.ResponseWriter, err error) {
	if err == ErrNotFound {
		writeHTTPError(w, http.StatusNotFound, err.Error())
		return
	}
	writeHTTPError(w, http.StatusInternalServerError, err.Error())
}
