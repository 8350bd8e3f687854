package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gridpoint-systems/gridpoint/internal/logging"
	"github.com/gridpoint-systems/gridpoint/internal/metrics"
	"github.com/gridpoint-systems/gridpoint/internal/middleware"
	"github.com/gridpoint-systems/gridpoint/internal/models"
	"github.com/gridpoint-systems/gridpoint/internal/queryexec"
)

// Query handles POST /api/v1/query. Validation failures come back with
// the policy violation spelled out; execution failures come back with a
// sanitized message so database internals never leak to the caller.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		writeError(w, http.StatusUnauthorized, "missing organization")
		return
	}

	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	scoped, err := h.scoper.ValidateAndScope(req.Query, req.Limit)
	if err != nil {
		metrics.QueriesTotal.WithLabelValues("rejected").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	result, err := h.runner.Run(r.Context(), scoped, orgID)
	metrics.QueryDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		h.log.WarnContext(r.Context(), "scoped query failed",
			logging.OrgID(orgID), logging.Err(err))
		switch {
		case errors.Is(err, queryexec.ErrNoTenantColumn):
			metrics.QueriesTotal.WithLabelValues("rejected").Inc()
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, queryexec.ErrQueryTimeout):
			metrics.QueriesTotal.WithLabelValues("timeout").Inc()
			writeError(w, http.StatusGatewayTimeout, err.Error())
		default:
			metrics.QueriesTotal.WithLabelValues("failed").Inc()
			writeError(w, http.StatusUnprocessableEntity, queryexec.ErrExecutionFailed.Error())
		}
		return
	}

	metrics.QueriesTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, result)
}
