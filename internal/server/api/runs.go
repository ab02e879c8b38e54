package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/trafficcv/internal/store"
)

// RunsHandler handles HTTP requests for run resources.
type RunsHandler struct {
	store *store.Store
}

// NewRunsHandler creates a new RunsHandler with the given store.
func NewRunsHandler(s *store.Store) *RunsHandler {
	return &RunsHandler{store: s}
}

type runDetail struct {
	*store.Run
	Tracks []*store.TrackRecord `json:"tracks"`
}

// ServeHTTP routes /api/runs and /api/runs/{id}.
func (h *RunsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/api/runs"), "/")
	if id == "" {
		h.list(w)
		return
	}
	h.get(w, id)
}

func (h *RunsHandler) list(w http.ResponseWriter) {
	runs, err := h.store.Runs().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (h *RunsHandler) get(w http.ResponseWriter, id string) {
	run, err := h.store.Runs().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Run not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	tracks, err := h.store.Tracks().ListByRun(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tracks")
		return
	}
	if tracks == nil {
		tracks = []*store.TrackRecord{}
	}
	writeJSON(w, http.StatusOK, runDetail{Run: run, Tracks: tracks})
}
