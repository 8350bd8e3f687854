// Package seeder generates synthetic measurement data for development
// and load testing.
package seeder

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/gridpoint-systems/gridpoint/internal/models"
	"github.com/gridpoint-systems/gridpoint/internal/repository"
)

// Options controls what the seeder generates.
type Options struct {
	OrgID      string
	Devices    int
	Metrics    []string
	Count      int
	TimeSpread time.Duration
	BatchSize  int
	Seed       int64
}

// DefaultMetrics are the metric names used when none are configured.
var DefaultMetrics = []string{"temperature", "humidity", "pm25", "pm10", "pressure", "co2"}

// metricRange bounds generated values so dashboards built on seeded
// data look plausible.
var metricRange = map[string][2]float64{
	"temperature": {-10, 40},
	"humidity":    {10, 100},
	"pm25":        {0, 250},
	"pm10":        {0, 400},
	"pressure":    {950, 1050},
	"co2":         {350, 2000},
}

// Seeder writes generated measurements straight into the store.
type Seeder struct {
	store repository.MeasurementStore
	opts  Options
	rng   *rand.Rand
	faker *gofakeit.Faker
}

// New creates a Seeder. Zero-value options fall back to defaults.
func New(store repository.MeasurementStore, opts Options) *Seeder {
	if opts.Devices <= 0 {
		opts.Devices = 10
	}
	if len(opts.Metrics) == 0 {
		opts.Metrics = DefaultMetrics
	}
	if opts.Count <= 0 {
		opts.Count = 1000
	}
	if opts.TimeSpread <= 0 {
		opts.TimeSpread = 7 * 24 * time.Hour
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	return &Seeder{
		store: store,
		opts:  opts,
		rng:   rand.New(rand.NewSource(opts.Seed)),
		faker: gofakeit.New(opts.Seed),
	}
}

// Run generates and persists the configured number of measurements.
// It returns the number of rows created, which can be lower than Count
// when generated rows collide on the natural key.
func (s *Seeder) Run(ctx context.Context) (int, error) {
	devices := s.deviceFleet()
	now := time.Now().UTC()

	created := 0
	batch := make([]models.Measurement, 0, s.opts.BatchSize)

	for i := 0; i < s.opts.Count; i++ {
		metric := s.opts.Metrics[s.rng.Intn(len(s.opts.Metrics))]
		offset := time.Duration(s.rng.Int63n(int64(s.opts.TimeSpread)))
		value := s.valueFor(metric)

		batch = append(batch, models.Measurement{
			OrgID:      s.opts.OrgID,
			DeviceID:   devices[s.rng.Intn(len(devices))],
			Metric:     metric,
			RecordedAt: now.Add(-offset).Truncate(time.Second),
			Value:      &value,
			Tags: map[string]any{
				"seeded": true,
				"city":   s.faker.City(),
			},
		})

		if len(batch) >= s.opts.BatchSize {
			n, err := s.store.InsertBatch(ctx, batch)
			if err != nil {
				return created, fmt.Errorf("seed batch: %w", err)
			}
			created += n
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		n, err := s.store.InsertBatch(ctx, batch)
		if err != nil {
			return created, fmt.Errorf("seed batch: %w", err)
		}
		created += n
	}

	return created, nil
}

// deviceFleet builds stable device identifiers like "station-ab12cd".
func (s *Seeder) deviceFleet() []string {
	devices := make([]string, s.opts.Devices)
	for i := range devices {
		devices[i] = fmt.Sprintf("station-%s", s.faker.LetterN(6))
	}
	return devices
}

func (s *Seeder) valueFor(metric string) float64 {
	bounds, ok := metricRange[metric]
	if !ok {
		bounds = [2]float64{0, 100}
	}
	return bounds[0] + s.rng.Float64()*(bounds[1]-bounds[0])
}
