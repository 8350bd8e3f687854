package handlers

import (
	"net/http"

	"github.com/gridpoint-systems/gridpoint/internal/logging"
	"github.com/gridpoint-systems/gridpoint/internal/middleware"
	"github.com/gridpoint-systems/gridpoint/internal/models"
	"github.com/gridpoint-systems/gridpoint/internal/schema"
)

const defaultMeasurementLimit = 100

// ListMeasurements handles GET /api/v1/measurements.
func (h *Handler) ListMeasurements(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		writeError(w, http.StatusUnauthorized, "missing organization")
		return
	}

	q := r.URL.Query()
	filter := models.MeasurementFilter{
		DeviceID: q.Get("device_id"),
		Metric:   q.Get("metric"),
		Limit:    parseInt(q.Get("limit"), defaultMeasurementLimit),
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = defaultMeasurementLimit
	}

	rows, err := h.store.ListMeasurements(r.Context(), orgID, filter)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to list measurements",
			logging.OrgID(orgID), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to list measurements")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"measurements": rows,
		"count":        len(rows),
	})
}

// Schema handles GET /api/v1/schema.
func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	catalog, err := schema.Load()
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to load schema catalog", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to load schema catalog")
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}
