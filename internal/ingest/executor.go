// Package ingest buffers normalized rows into batches and bulk-persists
// them for one organization.
package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gridpoint-systems/gridpoint/internal/metrics"
	"github.com/gridpoint-systems/gridpoint/internal/models"
	"github.com/gridpoint-systems/gridpoint/internal/normalizer"
	"github.com/gridpoint-systems/gridpoint/internal/repository"
)

// DefaultBatchSize bounds memory for arbitrarily large uploads while
// keeping each persistence call an atomic, retryable unit.
const DefaultBatchSize = 500

// Result summarizes one ingestion pass.
type Result struct {
	// Created counts rows actually inserted; natural-key duplicates are
	// excluded.
	Created int
	// Rejected counts rows skipped during normalization.
	Rejected int
	// Failed counts rows lost to batches whose insert failed. Prior
	// committed batches are unaffected.
	Failed int
	// Processed counts rows that went through a committed batch.
	Processed int
}

// ProgressFunc is invoked after every committed (or failed) batch, never
// per row, so progress writes stay cheap.
type ProgressFunc func(result Result)

// Executor persists canonical rows in batches. It is shared by the
// synchronous upload path and the job worker; only the caller differs.
type Executor struct {
	store     repository.MeasurementStore
	batchSize int
}

// NewExecutor creates an Executor. batchSize <= 0 selects the default.
func NewExecutor(store repository.MeasurementStore, batchSize int) *Executor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Executor{store: store, batchSize: batchSize}
}

// Ingest drains src into the store for orgID. Row-level defects were
// already counted by the normalizer; a batch-level insert failure is
// counted and skipped so the remaining batches still land. Only a
// container-level error from src aborts the pass, and even then the
// partial Result reflects what committed.
func (e *Executor) Ingest(ctx context.Context, orgID string, src normalizer.Source, progress ProgressFunc) (Result, error) {
	var result Result
	batch := make([]models.Measurement, 0, e.batchSize)

	flush := func() {
		if len(batch) == 0 {
			// Rejects may have accumulated since the last non-empty
			// flush; the partial Result must still reflect them.
			result.Rejected = src.Rejected()
			return
		}
		start := time.Now()
		created, err := e.store.InsertBatch(ctx, batch)
		metrics.BatchDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			result.Failed += len(batch)
			metrics.RowsTotal.WithLabelValues("failed").Add(float64(len(batch)))
		} else {
			result.Created += created
			result.Processed += len(batch)
			metrics.RowsTotal.WithLabelValues("created").Add(float64(created))
			metrics.RowsTotal.WithLabelValues("duplicate").Add(float64(len(batch) - created))
		}
		batch = batch[:0]

		result.Rejected = src.Rejected()
		if progress != nil {
			progress(result)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		row, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			flush()
			return result, fmt.Errorf("normalize payload: %w", err)
		}

		batch = append(batch, models.Measurement{
			OrgID:      orgID,
			DeviceID:   row.DeviceID,
			Metric:     row.Metric,
			RecordedAt: row.RecordedAt,
			Value:      row.Value,
			Tags:       row.Tags,
		})
		if len(batch) >= e.batchSize {
			flush()
		}
	}

	flush()
	result.Rejected = src.Rejected()
	metrics.RowsTotal.WithLabelValues("rejected").Add(float64(result.Rejected))
	return result, nil
}

// CountRows drains src counting valid and rejected rows without
// persisting anything. The job worker uses it as a first pass so
// total_rows is fixed before progress reporting starts.
func CountRows(ctx context.Context, src normalizer.Source) (valid int, rejected int, err error) {
	for {
		if err := ctx.Err(); err != nil {
			return valid, src.Rejected(), err
		}
		_, err := src.Next()
		if err == io.EOF {
			return valid, src.Rejected(), nil
		}
		if err != nil {
			return valid, src.Rejected(), fmt.Errorf("normalize payload: %w", err)
		}
		valid++
	}
}
