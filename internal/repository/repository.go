// Package repository persists measurements and ingestion jobs.
package repository

import (
	"context"
	"errors"

	"github.com/gridpoint-systems/gridpoint/internal/models"
)

var (
	ErrJobNotFound = errors.New("ingestion job not found")
)

// MeasurementStore persists canonical measurement rows.
type MeasurementStore interface {
	// InsertBatch bulk-inserts rows with insert-or-ignore semantics on
	// the natural key and returns the number of rows actually created.
	// A batch either fully lands or returns an error; rows that collide
	// with existing natural keys are silently skipped and not counted.
	InsertBatch(ctx context.Context, rows []models.Measurement) (int, error)

	// ListMeasurements returns an organization's rows, newest first.
	ListMeasurements(ctx context.Context, orgID string, filter models.MeasurementFilter) ([]models.Measurement, error)
}

// JobStore persists ingestion job records. Progress and status writes
// are guarded by status predicates so a terminal job is frozen no
// matter how late a concurrent update arrives.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.IngestionJob) error

	// GetJob returns a job scoped to its owning organization.
	GetJob(ctx context.Context, orgID, id string) (*models.IngestionJob, error)

	// ListJobs returns an organization's jobs, newest first.
	ListJobs(ctx context.Context, orgID string, limit int) ([]*models.IngestionJob, error)

	// NextPendingJob returns the oldest pending job, or ErrJobNotFound.
	NextPendingJob(ctx context.Context) (*models.IngestionJob, error)

	// ClaimJob atomically transitions a job from pending to processing.
	// It reports false when another worker already claimed it.
	ClaimJob(ctx context.Context, id string) (bool, error)

	// UpdateJobProgress records batch progress for a processing job.
	// Writes against a job no longer in processing are dropped.
	UpdateJobProgress(ctx context.Context, id string, processed, total, failed int) error

	// CompleteJob transitions processing -> completed.
	CompleteJob(ctx context.Context, id string, processed, total, failed int) error

	// FailJob transitions processing -> failed with a human-readable cause.
	FailJob(ctx context.Context, id string, errMsg string) error
}

// Store is the full persistence surface used by the service.
type Store interface {
	MeasurementStore
	JobStore
	Close()
}

// ProgressPercent derives the progress percentage, 0 while the total is
// still unknown.
func ProgressPercent(processed, total int) int {
	if total <= 0 {
		return 0
	}
	pct := processed * 100 / total
	if pct > 100 {
		pct = 100
	}
	return pct
}
