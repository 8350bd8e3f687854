package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridpoint-systems/gridpoint/internal/models"
)

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Pool exposes the underlying connection pool for the query executor.
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// InsertBatch bulk-inserts rows in one statement with ON CONFLICT DO
// NOTHING on the natural key. The command tag's row count is the number
// of rows actually created, which excludes natural-key duplicates.
func (s *PostgresStore) InsertBatch(ctx context.Context, rows []models.Measurement) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO measurements (organization_id, device_id, metric, recorded_at, value, tags)
		VALUES `)

	args := make([]any, 0, len(rows)*6)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 6
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6)

		var tags any
		if row.Tags != nil {
			encoded, err := json.Marshal(row.Tags)
			if err != nil {
				return 0, fmt.Errorf("failed to encode tags: %w", err)
			}
			tags = encoded
		}
		args = append(args, row.OrgID, row.DeviceID, row.Metric, row.RecordedAt, row.Value, tags)
	}

	sb.WriteString(" ON CONFLICT ON CONSTRAINT measurements_natural_key DO NOTHING")

	tag, err := s.pool.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert measurements: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// ListMeasurements returns an organization's rows, newest first.
func (s *PostgresStore) ListMeasurements(ctx context.Context, orgID string, filter models.MeasurementFilter) ([]models.Measurement, error) {
	query := `
		SELECT id, organization_id, device_id, metric, recorded_at, value, tags, created_at
		FROM measurements
		WHERE organization_id = $1`
	args := []any{orgID}
	argPos := 2

	if filter.DeviceID != "" {
		query += fmt.Sprintf(" AND device_id = $%d", argPos)
		args = append(args, filter.DeviceID)
		argPos++
	}
	if filter.Metric != "" {
		query += fmt.Sprintf(" AND metric = $%d", argPos)
		args = append(args, filter.Metric)
		argPos++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" ORDER BY recorded_at DESC LIMIT $%d", argPos)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list measurements: %w", err)
	}
	defer rows.Close()

	measurements := []models.Measurement{}
	for rows.Next() {
		var m models.Measurement
		var tags []byte
		if err := rows.Scan(&m.ID, &m.OrgID, &m.DeviceID, &m.Metric, &m.RecordedAt, &m.Value, &tags, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &m.Tags); err != nil {
				return nil, fmt.Errorf("failed to decode tags: %w", err)
			}
		}
		measurements = append(measurements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return measurements, nil
}

const jobColumns = `id, organization_id, file_name, COALESCE(file_path, ''), source_type, status,
	progress, total_rows, processed_rows, failed_rows, COALESCE(error_message, ''),
	created_at, updated_at, started_at, finished_at`

// CreateJob inserts a new pending job record.
func (s *PostgresStore) CreateJob(ctx context.Context, job *models.IngestionJob) error {
	query := `
		INSERT INTO ingestion_jobs (id, organization_id, file_name, file_path, source_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`
	_, err := s.pool.Exec(ctx, query,
		job.ID, job.OrgID, job.FileName, job.FilePath, job.SourceType, job.Status, job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// GetJob returns a job scoped to its owning organization.
func (s *PostgresStore) GetJob(ctx context.Context, orgID, id string) (*models.IngestionJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM ingestion_jobs WHERE id = $1 AND organization_id = $2`, jobColumns)
	return s.scanJob(s.pool.QueryRow(ctx, query, id, orgID))
}

// ListJobs returns an organization's jobs, newest first.
func (s *PostgresStore) ListJobs(ctx context.Context, orgID string, limit int) ([]*models.IngestionJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM ingestion_jobs
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, jobColumns)

	rows, err := s.pool.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.IngestionJob{}
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return jobs, nil
}

// NextPendingJob returns the oldest pending job.
func (s *PostgresStore) NextPendingJob(ctx context.Context) (*models.IngestionJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM ingestion_jobs
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT 1`, jobColumns)
	return s.scanJob(s.pool.QueryRow(ctx, query))
}

// ClaimJob performs the atomic pending -> processing transition. The
// status predicate is what prevents two workers from processing the
// same job.
func (s *PostgresStore) ClaimJob(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE ingestion_jobs
		SET status = 'processing', started_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateJobProgress records batch progress. The processing predicate
// makes a late write against a terminal job a silent no-op.
func (s *PostgresStore) UpdateJobProgress(ctx context.Context, id string, processed, total, failed int) error {
	query := `
		UPDATE ingestion_jobs
		SET processed_rows = $2, total_rows = $3, failed_rows = $4, progress = $5, updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`
	_, err := s.pool.Exec(ctx, query, id, processed, total, failed, ProgressPercent(processed, total))
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

// CompleteJob transitions processing -> completed.
func (s *PostgresStore) CompleteJob(ctx context.Context, id string, processed, total, failed int) error {
	query := `
		UPDATE ingestion_jobs
		SET status = 'completed', processed_rows = $2, total_rows = $3, failed_rows = $4,
		    progress = 100, finished_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`
	_, err := s.pool.Exec(ctx, query, id, processed, total, failed)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// FailJob transitions processing -> failed, preserving whatever batches
// already committed.
func (s *PostgresStore) FailJob(ctx context.Context, id string, errMsg string) error {
	query := `
		UPDATE ingestion_jobs
		SET status = 'failed', error_message = $2, finished_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`
	_, err := s.pool.Exec(ctx, query, id, errMsg)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) scanJob(row pgx.Row) (*models.IngestionJob, error) {
	job := &models.IngestionJob{}
	err := row.Scan(
		&job.ID, &job.OrgID, &job.FileName, &job.FilePath, &job.SourceType, &job.Status,
		&job.Progress, &job.TotalRows, &job.ProcessedRows, &job.FailedRows, &job.ErrorMessage,
		&job.CreatedAt, &job.UpdatedAt, &job.StartedAt, &job.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return job, nil
}
