package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridpoint-systems/gridpoint/internal/models"
)

// InMemoryStore implements Store with process-local state. It mirrors
// the Postgres semantics closely enough for unit tests, including the
// natural-key dedup and the guarded job transitions.
type InMemoryStore struct {
	mu           sync.RWMutex
	measurements []models.Measurement
	naturalKeys  map[naturalKey]struct{}
	jobs         map[string]*models.IngestionJob
}

type naturalKey struct {
	orgID      string
	deviceID   string
	metric     string
	recordedAt int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		naturalKeys: make(map[naturalKey]struct{}),
		jobs:        make(map[string]*models.IngestionJob),
	}
}

func (s *InMemoryStore) Close() {}

func (s *InMemoryStore) InsertBatch(ctx context.Context, rows []models.Measurement) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := 0
	for _, row := range rows {
		key := naturalKey{row.OrgID, row.DeviceID, row.Metric, row.RecordedAt.UnixNano()}
		if _, exists := s.naturalKeys[key]; exists {
			continue
		}
		s.naturalKeys[key] = struct{}{}

		row.ID = uuid.New().String()
		row.CreatedAt = time.Now().UTC()
		s.measurements = append(s.measurements, row)
		created++
	}
	return created, nil
}

func (s *InMemoryStore) ListMeasurements(ctx context.Context, orgID string, filter models.MeasurementFilter) ([]models.Measurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []models.Measurement{}
	for _, m := range s.measurements {
		if m.OrgID != orgID {
			continue
		}
		if filter.DeviceID != "" && m.DeviceID != filter.DeviceID {
			continue
		}
		if filter.Metric != "" && m.Metric != filter.Metric {
			continue
		}
		matched = append(matched, m)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].RecordedAt.After(matched[j].RecordedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *InMemoryStore) CreateJob(ctx context.Context, job *models.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *InMemoryStore) GetJob(ctx context.Context, orgID, id string) (*models.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists || job.OrgID != orgID {
		return nil, ErrJobNotFound
	}
	clone := *job
	return &clone, nil
}

func (s *InMemoryStore) ListJobs(ctx context.Context, orgID string, limit int) ([]*models.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := []*models.IngestionJob{}
	for _, job := range s.jobs {
		if job.OrgID != orgID {
			continue
		}
		clone := *job
		jobs = append(jobs, &clone)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if limit <= 0 {
		limit = 50
	}
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *InMemoryStore) NextPendingJob(ctx context.Context) (*models.IngestionJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var oldest *models.IngestionJob
	for _, job := range s.jobs {
		if job.Status != models.JobStatusPending {
			continue
		}
		if oldest == nil || job.CreatedAt.Before(oldest.CreatedAt) {
			oldest = job
		}
	}
	if oldest == nil {
		return nil, ErrJobNotFound
	}
	clone := *oldest
	return &clone, nil
}

func (s *InMemoryStore) ClaimJob(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists || job.Status != models.JobStatusPending {
		return false, nil
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusProcessing
	job.StartedAt = &now
	job.UpdatedAt = now
	return true, nil
}

func (s *InMemoryStore) UpdateJobProgress(ctx context.Context, id string, processed, total, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists || job.Status != models.JobStatusProcessing {
		return nil
	}

	job.ProcessedRows = processed
	job.TotalRows = total
	job.FailedRows = failed
	job.Progress = ProgressPercent(processed, total)
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) CompleteJob(ctx context.Context, id string, processed, total, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists || job.Status != models.JobStatusProcessing {
		return nil
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusCompleted
	job.ProcessedRows = processed
	job.TotalRows = total
	job.FailedRows = failed
	job.Progress = 100
	job.FinishedAt = &now
	job.UpdatedAt = now
	return nil
}

func (s *InMemoryStore) FailJob(ctx context.Context, id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[id]
	if !exists || job.Status != models.JobStatusProcessing {
		return nil
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusFailed
	job.ErrorMessage = errMsg
	job.FinishedAt = &now
	job.UpdatedAt = now
	return nil
}
