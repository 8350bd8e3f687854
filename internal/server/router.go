// Package server assembles the HTTP routing for the gridpoint service.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridpoint-systems/gridpoint/internal/handlers"
	"github.com/gridpoint-systems/gridpoint/internal/middleware"
)

// NewRouter constructs a ServeMux with all API routes registered. Every
// /api/v1 route requires a valid bearer token; health and metrics
// endpoints are open.
func NewRouter(h *handlers.Handler, auth *middleware.AuthMiddleware) http.Handler {
	mux := http.NewServeMux()

	// Ingestion
	mux.HandleFunc("POST /api/v1/ingest", auth.RequireAuth(h.Ingest))
	mux.HandleFunc("GET /api/v1/ingest/jobs", auth.RequireAuth(h.ListJobs))
	mux.HandleFunc("GET /api/v1/ingest/jobs/{id}", auth.RequireAuth(h.GetJob))

	// Query gateway
	mux.HandleFunc("POST /api/v1/query", auth.RequireAuth(h.Query))
	mux.HandleFunc("GET /api/v1/schema", auth.RequireAuth(h.Schema))
	mux.HandleFunc("GET /api/v1/measurements", auth.RequireAuth(h.ListMeasurements))

	// Health endpoints
	mux.HandleFunc("/healthz", h.Health)
	mux.HandleFunc("/readyz", h.Ready)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
