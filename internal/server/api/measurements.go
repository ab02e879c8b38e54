package api

import (
	"net/http"

	"github.com/ayusman/trafficcv/internal/store"
	"github.com/ayusman/trafficcv/internal/units"
)

// MeasurementsHandler serves stored speed measurements.
type MeasurementsHandler struct {
	store *store.Store
	units string
}

// NewMeasurementsHandler creates a handler reporting speeds in unit.
func NewMeasurementsHandler(s *store.Store, unit string) *MeasurementsHandler {
	return &MeasurementsHandler{store: s, units: unit}
}

type measurementResponse struct {
	*store.Measurement
	Speed float64 `json:"speed"`
	Units string  `json:"units"`
}

// ServeHTTP handles GET /api/measurements?run=&since=&until=&limit=&units=.
func (h *MeasurementsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	ms, err := h.store.Measurements().List(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list measurements")
		return
	}

	out := make([]measurementResponse, 0, len(ms))
	for _, m := range ms {
		out = append(out, measurementResponse{
			Measurement: m,
			Speed:       units.FromMPS(m.SpeedMPS, unit),
			Units:       unit,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"measurements": out})
}

// resolveUnits picks the units query parameter or fallback, writing a 400
// when the result is unknown.
func resolveUnits(w http.ResponseWriter, r *http.Request, fallback string) (string, bool) {
	unit := r.URL.Query().Get("units")
	if unit == "" {
		unit = fallback
	}
	unit, err := units.Normalize(unit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return unit, true
}
