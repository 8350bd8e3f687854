// Package handlers exposes the ingestion and query HTTP API.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gridpoint-systems/gridpoint/internal/ingest"
	"github.com/gridpoint-systems/gridpoint/internal/jobs"
	"github.com/gridpoint-systems/gridpoint/internal/logging"
	"github.com/gridpoint-systems/gridpoint/internal/models"
	"github.com/gridpoint-systems/gridpoint/internal/queryscope"
	"github.com/gridpoint-systems/gridpoint/internal/ratelimit"
	"github.com/gridpoint-systems/gridpoint/internal/repository"
)

// QueryRunner executes a scoped query. The pgx-backed implementation
// lives in queryexec; handler tests substitute their own.
type QueryRunner interface {
	Run(ctx context.Context, scoped *queryscope.ScopedQuery, orgID string) (*models.QueryResult, error)
}

// Options carries the tunables the handlers need.
type Options struct {
	// AsyncThresholdBytes routes uploads above this size to a job.
	AsyncThresholdBytes int64
	// MaxBodyBytes caps any single upload.
	MaxBodyBytes int64
}

// Handler bundles the HTTP endpoints.
type Handler struct {
	store    repository.Store
	executor *ingest.Executor
	jobs     *jobs.Manager
	scoper   *queryscope.Scoper
	runner   QueryRunner
	limiter  ratelimit.RateLimiter
	log      *logging.Logger
	opts     Options
}

// New creates a Handler.
func New(
	store repository.Store,
	executor *ingest.Executor,
	jobManager *jobs.Manager,
	scoper *queryscope.Scoper,
	runner QueryRunner,
	limiter ratelimit.RateLimiter,
	log *logging.Logger,
	opts Options,
) *Handler {
	if opts.AsyncThresholdBytes <= 0 {
		opts.AsyncThresholdBytes = 1 << 20
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 256 << 20
	}
	if limiter == nil {
		limiter = ratelimit.NoOpRateLimiter{}
	}
	return &Handler{
		store:    store,
		executor: executor,
		jobs:     jobManager,
		scoper:   scoper,
		runner:   runner,
		limiter:  limiter,
		log:      log,
		opts:     opts,
	}
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Ready handles GET /readyz.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
