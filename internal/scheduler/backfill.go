package scheduler

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/weather-pipeline/internal/weather"
)

// Bounds of the synthetic deviation applied to a baseline reading.
const (
	maxTempDelta     = 5.0
	maxHumidityDelta = 10
	maxWindDelta     = 3.0
)

// ErrNoBaseline is returned when the backfill baseline fetch yields no observations.
var ErrNoBaseline = errors.New("backfill: no baseline observations")

// backfillTimestamps returns hours consecutive hourly instants ending at now truncated to the hour.
func backfillTimestamps(now time.Time, hours int) []time.Time {
	anchor := now.UTC().Truncate(time.Hour)
	ts := make([]time.Time, hours)
	for i := range hours {
		ts[i] = anchor.Add(-time.Duration(hours-1-i) * time.Hour)
	}
	return ts
}

// Synthesize derives a synthetic observation for t from a baseline reading.
// The result depends only on the baseline and (city, t), so reruns produce identical rows.
// Backfilled rows are filler, not measured history.
func Synthesize(b weather.Observation, t time.Time) weather.Observation {
	t = t.UTC()
	key := weather.CityKey(b.City)

	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	r := rand.New(rand.NewPCG(h.Sum64(), uint64(t.Unix())))

	dT := r.Float64()*2*maxTempDelta - maxTempDelta
	dH := r.IntN(2*maxHumidityDelta+1) - maxHumidityDelta
	dW := r.Float64()*2*maxWindDelta - maxWindDelta

	return weather.Observation{
		ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte("backfill:"+key+":"+t.Format(time.RFC3339))).String(),
		City:        b.City,
		Timestamp:   t,
		Temperature: b.Temperature + dT,
		Humidity:    b.Humidity + dH,
		WindSpeed:   b.WindSpeed + dW,
		Condition:   b.Condition,
	}.Normalize()
}

// backfill synthesizes the look-back window from one live reading per city and
// writes it in batches of at most BatchSize rows.
func (s *Scheduler) backfill(ctx context.Context) error {
	baseline, err := s.source.FetchMany(ctx, s.cities)
	if err != nil {
		return fmt.Errorf("backfill: baseline fetch: %w", err)
	}
	recordFetchFailures(ctx, JobBackfill, len(s.cities)-len(baseline))
	if len(baseline) == 0 {
		return ErrNoBaseline
	}

	timestamps := backfillTimestamps(s.now(), int(s.cfg.BackfillWindow/time.Hour))
	total := len(timestamps) * len(baseline)
	written := 0
	slog.Info("scheduler: backfill started", "cities", len(baseline), "hours", len(timestamps), "total", total)

	batch := make([]weather.Observation, 0, min(s.cfg.BatchSize, total))
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.repo.Write(ctx, batch)
		if err != nil {
			slog.Error("scheduler: backfill batch write failed", "written", written, "total", total, "err", err)
			return fmt.Errorf("backfill: write after %d/%d rows: %w", written, total, err)
		}
		written += n
		recordWritten(ctx, JobBackfill, n)
		slog.Debug("scheduler: backfill progress", "written", written, "total", total)
		batch = make([]weather.Observation, 0, min(s.cfg.BatchSize, total-written))
		return nil
	}

	for _, b := range baseline {
		for _, t := range timestamps {
			batch = append(batch, Synthesize(b, t))
			if len(batch) >= s.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	slog.Info("scheduler: backfill completed", "written", written, "total", total)
	return nil
}

// collect fetches every city once and writes all successes as a single batch.
func (s *Scheduler) collect(ctx context.Context) error {
	observations, err := s.source.FetchMany(ctx, s.cities)
	if err != nil {
		return fmt.Errorf("periodic: fetch: %w", err)
	}
	recordFetchFailures(ctx, JobPeriodic, len(s.cities)-len(observations))
	if len(observations) == 0 {
		slog.Warn("scheduler: periodic run fetched no observations", "cities", len(s.cities))
		return nil
	}

	n, err := s.repo.Write(ctx, observations)
	if err != nil {
		return fmt.Errorf("periodic: write: %w", err)
	}
	recordWritten(ctx, JobPeriodic, n)
	slog.Info("scheduler: periodic run stored observations", "written", n, "cities", len(s.cities))
	return nil
}
