// Package jobs runs large uploads as trackable background ingestion jobs.
package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gridpoint-systems/gridpoint/internal/ingest"
	"github.com/gridpoint-systems/gridpoint/internal/logging"
	"github.com/gridpoint-systems/gridpoint/internal/models"
	"github.com/gridpoint-systems/gridpoint/internal/normalizer"
	"github.com/gridpoint-systems/gridpoint/internal/repository"
)

// Options configures the job manager.
type Options struct {
	// SpoolDir is where uploaded files wait for a worker.
	SpoolDir string
	// Workers is the size of the worker pool. Each worker processes at
	// most one job at a time.
	Workers int
	// PollInterval is how often an idle worker re-checks for pending
	// jobs; the wake channel usually gets there first.
	PollInterval time.Duration
	// OnEnqueue, when set, is called after a job is queued so workers in
	// other processes can be nudged over the message bus.
	OnEnqueue func(jobID string)
}

// Manager persists ingestion jobs and drives the worker pool that
// executes them. Job state lives in the store, not in process memory,
// so pending jobs survive restarts and multiple processes can run
// workers against the same queue.
type Manager struct {
	store    repository.Store
	executor *ingest.Executor
	log      *logging.Logger
	opts     Options

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wake     chan struct{}
	wg       sync.WaitGroup
}

// NewManager creates a Manager.
func NewManager(store repository.Store, executor *ingest.Executor, log *logging.Logger, opts Options) *Manager {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	return &Manager{
		store:    store,
		executor: executor,
		log:      log,
		opts:     opts,
		wake:     make(chan struct{}, 1),
	}
}

// Enqueue spools the payload to disk, records a pending job and nudges
// the workers. The returned snapshot is what the caller polls against.
func (m *Manager) Enqueue(ctx context.Context, orgID, fileName string, format normalizer.Format, payload io.Reader) (*models.IngestionJob, error) {
	if err := os.MkdirAll(m.opts.SpoolDir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}

	spool, err := os.CreateTemp(m.opts.SpoolDir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}
	if _, err := io.Copy(spool, payload); err != nil {
		spool.Close()
		os.Remove(spool.Name())
		return nil, fmt.Errorf("spool upload: %w", err)
	}
	if err := spool.Close(); err != nil {
		os.Remove(spool.Name())
		return nil, fmt.Errorf("spool upload: %w", err)
	}

	job := &models.IngestionJob{
		ID:         uuid.New().String(),
		OrgID:      orgID,
		FileName:   fileName,
		FilePath:   spool.Name(),
		SourceType: string(format),
		Status:     models.JobStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	job.UpdatedAt = job.CreatedAt

	if err := m.store.CreateJob(ctx, job); err != nil {
		os.Remove(spool.Name())
		return nil, err
	}

	m.log.InfoContext(ctx, "ingestion job queued",
		logging.JobID(job.ID), logging.OrgID(orgID), logging.File(fileName))
	m.Wake()
	if m.opts.OnEnqueue != nil {
		m.opts.OnEnqueue(job.ID)
	}

	return job, nil
}

// Wake nudges an idle worker without blocking.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Start launches the worker pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("job manager already running")
	}
	m.running = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	m.log.Info("job workers starting", "workers", m.opts.Workers, "poll_interval", m.opts.PollInterval.String())

	for i := 0; i < m.opts.Workers; i++ {
		m.wg.Add(1)
		go m.runWorker(ctx)
	}
	return nil
}

// Stop shuts the worker pool down and waits for in-flight jobs. There
// is no cancellation of a claimed job: it runs to completion or failure.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return fmt.Errorf("job manager not running")
	}
	m.running = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
	m.log.Info("job workers stopped")
	return nil
}

func (m *Manager) runWorker(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	m.drain(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case <-m.wake:
			m.drain(ctx)
		case <-ticker.C:
			m.drain(ctx)
		}
	}
}

// drain claims and processes pending jobs until the queue is empty. A
// lost claim race just moves on to the next candidate.
func (m *Manager) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		default:
		}

		job, err := m.store.NextPendingJob(ctx)
		if err == repository.ErrJobNotFound {
			return
		}
		if err != nil {
			m.log.Error("failed to poll pending jobs", logging.Err(err))
			return
		}

		claimed, err := m.store.ClaimJob(ctx, job.ID)
		if err != nil {
			m.log.Error("failed to claim job", logging.JobID(job.ID), logging.Err(err))
			return
		}
		if !claimed {
			continue
		}

		// The polling context only gates claiming. A claimed job runs
		// detached so a shutdown signal cannot abort it mid-batch or
		// void its terminal-state write; Stop waits for it instead.
		m.process(context.WithoutCancel(ctx), job)
	}
}
