package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ayusman/trafficcv/internal/report"
	"github.com/ayusman/trafficcv/internal/store"
)

// ReportHandler serves speed statistics and the histogram chart.
type ReportHandler struct {
	store *store.Store
	units string
}

// NewReportHandler creates a handler reporting speeds in unit.
func NewReportHandler(s *store.Store, unit string) *ReportHandler {
	return &ReportHandler{store: s, units: unit}
}

// ServeHTTP routes /api/report and /api/report/chart.
func (h *ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	unit, ok := resolveUnits(w, r, h.units)
	if !ok {
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter: "+err.Error())
		return
	}
	speeds, err := h.store.Measurements().Speeds(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load speeds")
		return
	}

	switch strings.TrimPrefix(r.URL.Path, "/api/report") {
	case "", "/":
		writeJSON(w, http.StatusOK, report.Summarize(speeds, unit))
	case "/chart":
		h.chart(w, r, speeds, unit)
	default:
		http.NotFound(w, r)
	}
}

func (h *ReportHandler) chart(w http.ResponseWriter, r *http.Request, speeds []float64, unit string) {
	width := report.DefaultBucketWidth
	if v := r.URL.Query().Get("width"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid bucket width")
			return
		}
		width = n
	}

	var buf bytes.Buffer
	if err := report.RenderHistogram(&buf, speeds, unit, width); err != nil {
		if errors.Is(err, report.ErrBucketWidth) || errors.Is(err, report.ErrTooManyBuckets) {
			writeError(w, http.StatusBadRequest, "Invalid bucket width: "+err.Error())
			return
		}
		log.Error().Err(err).Msg("render histogram")
		writeError(w, http.StatusInternalServerError, "Failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
