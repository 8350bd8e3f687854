package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridpoint-systems/gridpoint/internal/models"
	"github.com/gridpoint-systems/gridpoint/internal/normalizer"
	"github.com/gridpoint-systems/gridpoint/internal/repository"
)

const orgA = "11111111-1111-1111-1111-111111111111"

func jsonRows(n int) string {
	var sb strings.Builder
	sb.WriteString(`{"device_id": "station-1", "metric": "temperature", "rows": [`)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(`{"recorded_at": "2026-03-01T10:` + pad(i) + `:00Z", "value": 20}`)
	}
	sb.WriteString(`]}`)
	return sb.String()
}

func pad(i int) string {
	if i < 10 {
		return "0" + string(rune('0'+i))
	}
	return string(rune('0'+i/10)) + string(rune('0'+i%10))
}

func newSource(t *testing.T, payload string) normalizer.Source {
	t.Helper()
	src, err := normalizer.New(normalizer.FormatJSON, strings.NewReader(payload))
	require.NoError(t, err)
	return src
}

func TestIngestCreatesRows(t *testing.T) {
	store := repository.NewInMemoryStore()
	e := NewExecutor(store, 10)

	result, err := e.Ingest(context.Background(), orgA, newSource(t, jsonRows(25)), nil)
	require.NoError(t, err)

	assert.Equal(t, 25, result.Created)
	assert.Equal(t, 25, result.Processed)
	assert.Equal(t, 0, result.Rejected)
	assert.Equal(t, 0, result.Failed)
}

func TestIngestSecondPassIsAllDuplicates(t *testing.T) {
	store := repository.NewInMemoryStore()
	e := NewExecutor(store, 10)
	payload := jsonRows(8)

	first, err := e.Ingest(context.Background(), orgA, newSource(t, payload), nil)
	require.NoError(t, err)
	require.Equal(t, 8, first.Created)

	second, err := e.Ingest(context.Background(), orgA, newSource(t, payload), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created, "re-upload creates nothing")
	assert.Equal(t, 8, second.Processed)
}

func TestIngestDifferentOrgsDoNotCollide(t *testing.T) {
	store := repository.NewInMemoryStore()
	e := NewExecutor(store, 10)
	payload := jsonRows(5)

	first, err := e.Ingest(context.Background(), orgA, newSource(t, payload), nil)
	require.NoError(t, err)
	require.Equal(t, 5, first.Created)

	orgB := "22222222-2222-2222-2222-222222222222"
	second, err := e.Ingest(context.Background(), orgB, newSource(t, payload), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, second.Created, "same natural keys under another org are distinct rows")
}

func TestIngestProgressPerBatch(t *testing.T) {
	store := repository.NewInMemoryStore()
	e := NewExecutor(store, 10)

	var calls []Result
	progress := func(r Result) { calls = append(calls, r) }

	result, err := e.Ingest(context.Background(), orgA, newSource(t, jsonRows(25)), progress)
	require.NoError(t, err)
	require.Equal(t, 25, result.Created)

	require.Len(t, calls, 3, "two full batches plus the final partial flush")
	assert.Equal(t, 10, calls[0].Created)
	assert.Equal(t, 20, calls[1].Created)
	assert.Equal(t, 25, calls[2].Created)
}

// failingStore fails every InsertBatch call after the first.
type failingStore struct {
	*repository.InMemoryStore
	calls int
}

func (s *failingStore) InsertBatch(ctx context.Context, rows []models.Measurement) (int, error) {
	s.calls++
	if s.calls > 1 {
		return 0, errors.New("connection reset")
	}
	return s.InMemoryStore.InsertBatch(ctx, rows)
}

func TestIngestBatchFailureDoesNotAbort(t *testing.T) {
	store := &failingStore{InMemoryStore: repository.NewInMemoryStore()}
	e := NewExecutor(store, 10)

	result, err := e.Ingest(context.Background(), orgA, newSource(t, jsonRows(25)), nil)
	require.NoError(t, err, "a failed batch is counted, not fatal")

	assert.Equal(t, 10, result.Created, "first batch committed")
	assert.Equal(t, 15, result.Failed, "later batches counted as failed")
	assert.Equal(t, 10, result.Processed)
}

func TestIngestContainerErrorReturnsPartialResult(t *testing.T) {
	store := repository.NewInMemoryStore()
	e := NewExecutor(store, 2)

	payload := `[
		{"device_id": "d1", "metric": "t", "timestamp": "2026-03-01T10:00:00Z", "value": 1},
		{"device_id": "d1", "metric": "t", "timestamp": "2026-03-01T11:00:00Z", "value": 2},
		{"device_id": "d1", "metric": "t", "timestamp": "2026-03-01T12:00:00Z"`

	src, err := normalizer.New(normalizer.FormatJSON, strings.NewReader(payload))
	require.NoError(t, err)

	result, err := e.Ingest(context.Background(), orgA, src, nil)
	require.Error(t, err)
	assert.Equal(t, 2, result.Created, "committed batches survive the failure")
}

func TestIngestContainerErrorCountsTrailingRejects(t *testing.T) {
	store := repository.NewInMemoryStore()
	e := NewExecutor(store, 1)

	// The valid row flushes immediately; the reject and the truncated
	// container both arrive after the last non-empty flush.
	payload := `[
		{"device_id": "d1", "metric": "t", "timestamp": "2026-03-01T10:00:00Z", "value": 1},
		{"metric": "no-device", "timestamp": "2026-03-01T11:00:00Z", "value": 2}`

	src, err := normalizer.New(normalizer.FormatJSON, strings.NewReader(payload))
	require.NoError(t, err)

	result, err := e.Ingest(context.Background(), orgA, src, nil)
	require.Error(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 1, result.Rejected, "rejects after the last flush survive into the partial result")
}

func TestIngestCanceledContext(t *testing.T) {
	store := repository.NewInMemoryStore()
	e := NewExecutor(store, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Ingest(ctx, orgA, newSource(t, jsonRows(5)), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCountRows(t *testing.T) {
	payload := `[
		{"device_id": "d1", "metric": "t", "timestamp": "2026-03-01T10:00:00Z", "value": 1},
		{"metric": "t", "timestamp": "2026-03-01T11:00:00Z", "value": 2},
		{"device_id": "d1", "metric": "t", "timestamp": "2026-03-01T12:00:00Z", "value": 3}
	]`
	src, err := normalizer.New(normalizer.FormatJSON, strings.NewReader(payload))
	require.NoError(t, err)

	valid, rejected, err := CountRows(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, valid)
	assert.Equal(t, 1, rejected)
}
