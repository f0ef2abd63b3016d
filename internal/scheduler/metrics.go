package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce    sync.Once
	writtenCounter otelmetric.Int64Counter
	failureCounter otelmetric.Int64Counter
	jobRunCounter  otelmetric.Int64Counter
	metricsInitErr error
)

func initMetrics() {
	meter := otel.Meter("weather-pipeline/scheduler")
	var err error
	writtenCounter, err = meter.Int64Counter("ingest_observations_written_total")
	if err != nil {
		metricsInitErr = err
		return
	}
	failureCounter, err = meter.Int64Counter("ingest_city_fetch_failures_total")
	if err != nil {
		metricsInitErr = err
		return
	}
	jobRunCounter, err = meter.Int64Counter("ingest_job_runs_total")
	if err != nil {
		metricsInitErr = err
	}
}

func metricsReady() bool {
	metricsOnce.Do(initMetrics)
	if metricsInitErr != nil {
		slog.Warn("scheduler: metrics disabled", "err", metricsInitErr)
		return false
	}
	return true
}

func recordWritten(ctx context.Context, kind JobKind, n int) {
	if n <= 0 || !metricsReady() {
		return
	}
	writtenCounter.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("job", string(kind))))
}

func recordFetchFailures(ctx context.Context, kind JobKind, n int) {
	if n <= 0 || !metricsReady() {
		return
	}
	failureCounter.Add(ctx, int64(n), otelmetric.WithAttributes(attribute.String("job", string(kind))))
}

func recordRun(ctx context.Context, kind JobKind, state JobState) {
	if !metricsReady() {
		return
	}
	jobRunCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("job", string(kind)),
		attribute.String("outcome", string(state)),
	))
}
