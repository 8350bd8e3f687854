// Package models defines the core data types shared across the service.
package models

import "time"

// Measurement is one normalized time-series observation. Rows are
// immutable once written; the natural key (organization, device, metric,
// recorded_at) is enforced with a unique constraint so re-ingesting the
// same file is a no-op for rows that already exist.
type Measurement struct {
	ID         string         `json:"id"`
	OrgID      string         `json:"organization_id"`
	DeviceID   string         `json:"device_id"`
	Metric     string         `json:"metric"`
	RecordedAt time.Time      `json:"recorded_at"`
	Value      *float64       `json:"value"`
	Tags       map[string]any `json:"tags,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IngestionJob tracks one asynchronous file ingestion. Only the worker
// that claimed the job mutates it; once a terminal status is set the
// record is frozen and polling keeps returning the same snapshot.
type IngestionJob struct {
	ID            string     `json:"id"`
	OrgID         string     `json:"organization_id"`
	FileName      string     `json:"file_name"`
	FilePath      string     `json:"-"`
	SourceType    string     `json:"source_type"`
	Status        JobStatus  `json:"status"`
	Progress      int        `json:"progress"`
	TotalRows     int        `json:"total_rows"`
	ProcessedRows int        `json:"processed_rows"`
	FailedRows    int        `json:"failed_rows"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// IngestResponse is returned by the synchronous ingest path. Rejected
// counts rows the normalizer skipped; Failed counts rows lost to batch
// inserts that did not commit.
type IngestResponse struct {
	Created  int `json:"created"`
	Rejected int `json:"rejected"`
	Failed   int `json:"failed"`
}

// QueryRequest is the body of a scoped query call. The organization is
// never part of the request; it comes from the authenticated session.
type QueryRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// QueryResult is the tabular result of a scoped query. Every row is
// aligned to Columns; NULLs stay nil so they serialize as JSON null.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Count   int      `json:"count"`
}

// MeasurementFilter narrows a recent-measurement listing.
type MeasurementFilter struct {
	DeviceID string
	Metric   string
	Limit    int
}
