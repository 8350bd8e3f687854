package jobs

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridpoint-systems/gridpoint/internal/ingest"
	"github.com/gridpoint-systems/gridpoint/internal/logging"
	"github.com/gridpoint-systems/gridpoint/internal/models"
	"github.com/gridpoint-systems/gridpoint/internal/normalizer"
	"github.com/gridpoint-systems/gridpoint/internal/repository"
)

const testOrg = "11111111-1111-1111-1111-111111111111"

func testManager(t *testing.T, store repository.Store) *Manager {
	t.Helper()
	log := logging.New(slog.LevelError, "text")
	executor := ingest.NewExecutor(store, 10)
	return NewManager(store, executor, log, Options{
		SpoolDir:     t.TempDir(),
		Workers:      1,
		PollInterval: 10 * time.Millisecond,
	})
}

const validPayload = `{"device_id": "station-1", "metric": "temperature", "rows": [
	{"recorded_at": "2026-03-01T10:00:00Z", "value": 21.5},
	{"recorded_at": "2026-03-01T11:00:00Z", "value": 22.0},
	{"recorded_at": "bogus", "value": 23.0}
]}`

func waitForStatus(t *testing.T, store repository.Store, orgID, id string, status models.JobStatus) *models.IngestionJob {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("job %s never reached status %s", id, status)
		case <-time.After(5 * time.Millisecond):
		}
		job, err := store.GetJob(context.Background(), orgID, id)
		require.NoError(t, err)
		if job.Status == status {
			return job
		}
	}
}

func TestEnqueueSpoolsAndCreatesPendingJob(t *testing.T) {
	store := repository.NewInMemoryStore()
	m := testManager(t, store)

	job, err := m.Enqueue(context.Background(), testOrg, "readings.json",
		normalizer.FormatJSON, strings.NewReader(validPayload))
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Equal(t, "readings.json", job.FileName)
	assert.NotEmpty(t, job.ID)

	data, err := os.ReadFile(job.FilePath)
	require.NoError(t, err)
	assert.Equal(t, validPayload, string(data))
}

func TestEnqueueNotifiesOnEnqueue(t *testing.T) {
	store := repository.NewInMemoryStore()
	log := logging.New(slog.LevelError, "text")

	var notified []string
	m := NewManager(store, ingest.NewExecutor(store, 10), log, Options{
		SpoolDir:  t.TempDir(),
		OnEnqueue: func(jobID string) { notified = append(notified, jobID) },
	})

	job, err := m.Enqueue(context.Background(), testOrg, "readings.json",
		normalizer.FormatJSON, strings.NewReader(validPayload))
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, notified)
}

func TestJobRunsToCompletion(t *testing.T) {
	store := repository.NewInMemoryStore()
	m := testManager(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	job, err := m.Enqueue(ctx, testOrg, "readings.json",
		normalizer.FormatJSON, strings.NewReader(validPayload))
	require.NoError(t, err)

	done := waitForStatus(t, store, testOrg, job.ID, models.JobStatusCompleted)

	assert.Equal(t, 2, done.TotalRows, "rejected rows are excluded from the total")
	assert.Equal(t, 2, done.ProcessedRows)
	assert.Equal(t, 0, done.FailedRows)
	assert.Equal(t, 100, done.Progress)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.FinishedAt)

	_, err = os.Stat(job.FilePath)
	assert.True(t, os.IsNotExist(err), "spool file is removed after completion")

	rows, err := store.ListMeasurements(ctx, testOrg, models.MeasurementFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestJobFailsOnBrokenContainer(t *testing.T) {
	store := repository.NewInMemoryStore()
	m := testManager(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	job, err := m.Enqueue(ctx, testOrg, "broken.json",
		normalizer.FormatJSON, strings.NewReader(`[{"device_id": "d1"`))
	require.NoError(t, err)

	done := waitForStatus(t, store, testOrg, job.ID, models.JobStatusFailed)
	assert.NotEmpty(t, done.ErrorMessage)

	_, err = os.Stat(job.FilePath)
	assert.True(t, os.IsNotExist(err), "spool file is removed after failure")
}

func TestConcurrentClaimIsExactlyOnce(t *testing.T) {
	store := repository.NewInMemoryStore()

	job := &models.IngestionJob{
		ID:        "job-1",
		OrgID:     testOrg,
		Status:    models.JobStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, store.CreateJob(context.Background(), job))

	const claimers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, claimers)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.ClaimJob(context.Background(), "job-1")
			assert.NoError(t, err)
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for claimed := range wins {
		if claimed {
			won++
		}
	}
	assert.Equal(t, 1, won, "exactly one claimer wins")
}

// cancelAwareStore rejects writes once the context is canceled, the
// way a database-backed store does, and blocks the first insert until
// released so a shutdown can be raced against an in-flight job.
type cancelAwareStore struct {
	*repository.InMemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *cancelAwareStore) InsertBatch(ctx context.Context, rows []models.Measurement) (int, error) {
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.InMemoryStore.InsertBatch(ctx, rows)
}

func (s *cancelAwareStore) UpdateJobProgress(ctx context.Context, id string, processed, total, failed int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.InMemoryStore.UpdateJobProgress(ctx, id, processed, total, failed)
}

func (s *cancelAwareStore) CompleteJob(ctx context.Context, id string, processed, total, failed int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.InMemoryStore.CompleteJob(ctx, id, processed, total, failed)
}

func (s *cancelAwareStore) FailJob(ctx context.Context, id string, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.InMemoryStore.FailJob(ctx, id, errMsg)
}

func TestStopWaitsForInFlightJob(t *testing.T) {
	store := &cancelAwareStore{
		InMemoryStore: repository.NewInMemoryStore(),
		entered:       make(chan struct{}),
		release:       make(chan struct{}),
	}
	m := testManager(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))

	job, err := m.Enqueue(ctx, testOrg, "readings.json",
		normalizer.FormatJSON, strings.NewReader(validPayload))
	require.NoError(t, err)

	select {
	case <-store.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("no worker picked up the job")
	}

	// Shutdown arrives while the insert is in flight.
	cancel()

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	close(store.release)

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not wait for the in-flight job")
	}

	done, err := store.GetJob(context.Background(), testOrg, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, done.Status, "a claimed job still reaches a terminal state")
	assert.Equal(t, 2, done.ProcessedRows)
	assert.NotNil(t, done.FinishedAt)
}

func TestProcessedRowsStaysBelowTotalOnDuplicates(t *testing.T) {
	store := repository.NewInMemoryStore()
	m := testManager(t, store)

	// Same natural key repeated: total counts every valid row, but only
	// one is created, and processed_rows must not overshoot.
	payload := `{"device_id": "station-1", "metric": "temperature", "rows": [
		{"recorded_at": "2026-03-01T10:00:00Z", "value": 1},
		{"recorded_at": "2026-03-01T10:00:00Z", "value": 2},
		{"recorded_at": "2026-03-01T10:00:00Z", "value": 3}
	]}`

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))
	defer m.Stop()

	job, err := m.Enqueue(ctx, testOrg, "dup.json",
		normalizer.FormatJSON, strings.NewReader(payload))
	require.NoError(t, err)

	done := waitForStatus(t, store, testOrg, job.ID, models.JobStatusCompleted)
	assert.Equal(t, 3, done.TotalRows)
	assert.Equal(t, 1, done.ProcessedRows)
	assert.LessOrEqual(t, done.ProcessedRows, done.TotalRows)
}
