package handlers

import (
	"errors"
	"net/http"

	"github.com/gridpoint-systems/gridpoint/internal/logging"
	"github.com/gridpoint-systems/gridpoint/internal/middleware"
	"github.com/gridpoint-systems/gridpoint/internal/repository"
)

const defaultJobListLimit = 50

// ListJobs handles GET /api/v1/ingest/jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		writeError(w, http.StatusUnauthorized, "missing organization")
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), defaultJobListLimit)
	if limit <= 0 || limit > 500 {
		limit = defaultJobListLimit
	}

	jobList, err := h.store.ListJobs(r.Context(), orgID, limit)
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to list ingestion jobs",
			logging.OrgID(orgID), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to list ingestion jobs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobList,
		"count": len(jobList),
	})
}

// GetJob handles GET /api/v1/ingest/jobs/{id}. A job belonging to
// another organization is indistinguishable from a missing one.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	orgID := middleware.GetOrgID(r.Context())
	if orgID == "" {
		writeError(w, http.StatusUnauthorized, "missing organization")
		return
	}

	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	job, err := h.store.GetJob(r.Context(), orgID, id)
	if errors.Is(err, repository.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "ingestion job not found")
		return
	}
	if err != nil {
		h.log.ErrorContext(r.Context(), "failed to fetch ingestion job",
			logging.OrgID(orgID), logging.JobID(id), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch ingestion job")
		return
	}

	writeJSON(w, http.StatusOK, job)
}
