// Package api provides HTTP API handlers for stored runs, measurements and
// speed reports.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ayusman/trafficcv/internal/store"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// parseFilter reads run, since, until and limit query parameters. Times are
// RFC 3339.
func parseFilter(r *http.Request) (store.MeasurementFilter, error) {
	q := r.URL.Query()
	f := store.MeasurementFilter{RunID: q.Get("run")}

	var err error
	if v := q.Get("since"); v != "" {
		if f.Since, err = time.Parse(time.RFC3339, v); err != nil {
			return f, err
		}
	}
	if v := q.Get("until"); v != "" {
		if f.Until, err = time.Parse(time.RFC3339, v); err != nil {
			return f, err
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			return f, err
		}
	}
	return f, nil
}
