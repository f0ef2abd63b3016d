package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-pipeline/internal/store"
	"github.com/i474232898/weather-pipeline/internal/weather"
)

var fixedNow = time.Date(2025, 3, 1, 12, 34, 56, 0, time.UTC)

type fakeSource struct {
	obs   []weather.Observation
	err   error
	block chan struct{}
	calls int
	mu    sync.Mutex
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context, city string) (weather.Observation, error) {
	return weather.Observation{}, errors.New("not used")
}

func (f *fakeSource) FetchMany(ctx context.Context, cities []string) ([]weather.Observation, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.obs, f.err
}

// recordingRepo wraps a MemoryStore, remembering batch sizes and optionally failing.
type recordingRepo struct {
	*store.MemoryStore
	mu        sync.Mutex
	batches   []int
	failAfter int
	schemaErr error
}

func newRecordingRepo() *recordingRepo {
	return &recordingRepo{MemoryStore: store.NewMemoryStore(), failAfter: -1}
}

func (r *recordingRepo) InitializeSchema(ctx context.Context) error {
	if r.schemaErr != nil {
		return r.schemaErr
	}
	return r.MemoryStore.InitializeSchema(ctx)
}

func (r *recordingRepo) Write(ctx context.Context, obs []weather.Observation) (int, error) {
	r.mu.Lock()
	if r.failAfter >= 0 && len(r.batches) >= r.failAfter {
		r.mu.Unlock()
		return 0, &weather.StorageError{Op: weather.StorageWrite, Err: errors.New("disk full")}
	}
	r.batches = append(r.batches, len(obs))
	r.mu.Unlock()
	return r.MemoryStore.Write(ctx, obs)
}

func baselines(cities ...string) []weather.Observation {
	out := make([]weather.Observation, 0, len(cities))
	for _, c := range cities {
		out = append(out, weather.NewObservation(c, fixedNow, 18.5, 95, 1.2, "overcast clouds"))
	}
	return out
}

func newTestScheduler(src weather.BatchSource, repo weather.Repository, cities []string, cfg Config) *Scheduler {
	s := New(src, repo, cities, cfg)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestSynthesizeIsDeterministicAndBounded(t *testing.T) {
	b := weather.NewObservation("London", fixedNow, 10, 95, 0.5, "light rain")

	for h := 0; h < 200; h++ {
		ts := fixedNow.Truncate(time.Hour).Add(-time.Duration(h) * time.Hour)
		first := Synthesize(b, ts)
		second := Synthesize(b, ts)
		assert.Equal(t, first, second)

		require.NoError(t, first.Validate())
		assert.InDelta(t, b.Temperature, first.Temperature, 5.0)
		assert.LessOrEqual(t, abs(first.Humidity-b.Humidity), 10)
		assert.GreaterOrEqual(t, first.Humidity, 0)
		assert.LessOrEqual(t, first.Humidity, 100)
		assert.GreaterOrEqual(t, first.WindSpeed, 0.0)
		assert.LessOrEqual(t, first.WindSpeed, b.WindSpeed+3.0)
		assert.Equal(t, b.Condition, first.Condition)
		assert.Equal(t, ts, first.Timestamp)
	}

	assert.Equal(t, Synthesize(b, fixedNow).ID, Synthesize(weather.NewObservation("LONDON", fixedNow, 10, 95, 0.5, "x"), fixedNow).ID)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func TestBackfillWritesWindowForEveryCity(t *testing.T) {
	cities := []string{"London", "Paris", "Tokyo"}
	repo := newRecordingRepo()
	s := newTestScheduler(&fakeSource{obs: baselines(cities...)}, repo, cities, Config{
		BackfillWindow: 72 * time.Hour,
		BatchSize:      50,
	})

	require.NoError(t, s.RunBackfill(context.Background()))
	assert.Equal(t, 72*len(cities), repo.Len())

	for _, size := range repo.batches {
		assert.LessOrEqual(t, size, 50)
	}

	for _, city := range cities {
		rows, err := repo.ReadRange(context.Background(), city, time.Time{})
		require.NoError(t, err)
		require.Len(t, rows, 72)
		assert.Equal(t, fixedNow.Truncate(time.Hour), rows[0].Timestamp)
		for i := 1; i < len(rows); i++ {
			assert.Equal(t, time.Hour, rows[i-1].Timestamp.Sub(rows[i].Timestamp))
			assert.GreaterOrEqual(t, rows[i].Humidity, 0)
			assert.LessOrEqual(t, rows[i].Humidity, 100)
			assert.GreaterOrEqual(t, rows[i].WindSpeed, 0.0)
		}
	}
}

func TestBackfillRerunIsIdentical(t *testing.T) {
	cities := []string{"Berlin"}
	first := newRecordingRepo()
	second := newRecordingRepo()
	cfg := Config{BackfillWindow: 24 * time.Hour}

	require.NoError(t, newTestScheduler(&fakeSource{obs: baselines(cities...)}, first, cities, cfg).RunBackfill(context.Background()))
	require.NoError(t, newTestScheduler(&fakeSource{obs: baselines(cities...)}, second, cities, cfg).RunBackfill(context.Background()))

	a, err := first.ReadRange(context.Background(), "Berlin", time.Time{})
	require.NoError(t, err)
	b, err := second.ReadRange(context.Background(), "Berlin", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBackfillAbortsWithoutBaseline(t *testing.T) {
	cases := []struct {
		name string
		src  *fakeSource
	}{
		{"empty baseline", &fakeSource{}},
		{"baseline error", &fakeSource{err: errors.New("outage")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newRecordingRepo()
			s := newTestScheduler(tc.src, repo, []string{"London"}, Config{})
			require.Error(t, s.RunBackfill(context.Background()))
			assert.Zero(t, repo.Len())
			assert.Empty(t, repo.batches)
		})
	}
}

func TestBackfillStopsOnBatchFailure(t *testing.T) {
	cities := []string{"London", "Paris"}
	repo := newRecordingRepo()
	repo.failAfter = 1
	s := newTestScheduler(&fakeSource{obs: baselines(cities...)}, repo, cities, Config{
		BackfillWindow: 10 * time.Hour,
		BatchSize:      4,
	})

	err := s.RunBackfill(context.Background())
	var se *weather.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 4, repo.Len())
	assert.Equal(t, []int{4}, repo.batches)
}

func TestPeriodicWritesSuccessesAsOneBatch(t *testing.T) {
	repo := newRecordingRepo()
	s := newTestScheduler(&fakeSource{obs: baselines("London", "Rome")}, repo, []string{"London", "Atlantis", "Rome"}, Config{})

	require.NoError(t, s.RunPeriodic(context.Background()))
	assert.Equal(t, []int{2}, repo.batches)
}

func TestPeriodicWithNoSuccessesWritesNothing(t *testing.T) {
	repo := newRecordingRepo()
	s := newTestScheduler(&fakeSource{}, repo, []string{"Atlantis"}, Config{})

	require.NoError(t, s.RunPeriodic(context.Background()))
	assert.Empty(t, repo.batches)
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	src := &fakeSource{obs: baselines("London"), block: make(chan struct{})}
	s := newTestScheduler(src, newRecordingRepo(), []string{"London"}, Config{})

	errc := make(chan error, 1)
	go func() { errc <- s.RunPeriodic(context.Background()) }()

	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls == 1
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.RunPeriodic(context.Background()), ErrJobRunning)

	close(src.block)
	require.NoError(t, <-errc)
	assert.NoError(t, s.RunPeriodic(context.Background()))
}

func TestStartIsIdempotent(t *testing.T) {
	s := newTestScheduler(&fakeSource{}, newRecordingRepo(), []string{"London"}, Config{
		BackfillDelay:    time.Hour,
		FirstUpdateDelay: time.Hour,
	})
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx))
	assert.Len(t, s.cron.Jobs(), 2)

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, JobBackfill, jobs[0].Kind)
	assert.Equal(t, StateScheduled, jobs[0].State)
	assert.Equal(t, JobPeriodic, jobs[1].Kind)
	assert.False(t, jobs[1].NextRun.IsZero())

	require.NoError(t, s.Shutdown(ctx))
	assert.ErrorIs(t, s.Start(ctx), ErrStopped)
}

func TestStartFailsOnSchemaError(t *testing.T) {
	repo := newRecordingRepo()
	repo.schemaErr = errors.New("permission denied")
	s := newTestScheduler(&fakeSource{}, repo, []string{"London"}, Config{})

	err := s.Start(context.Background())
	var se *weather.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, weather.StorageSchemaInit, se.Op)
	assert.Empty(t, s.cron.Jobs())
	assert.Empty(t, s.Jobs())
}

func TestShutdownWaitsForRunningJob(t *testing.T) {
	src := &fakeSource{obs: baselines("London"), block: make(chan struct{})}
	repo := newRecordingRepo()
	s := newTestScheduler(src, repo, []string{"London"}, Config{ShutdownTimeout: time.Second})

	errc := make(chan error, 1)
	go func() { errc <- s.RunPeriodic(context.Background()) }()
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls == 1
	}, time.Second, 5*time.Millisecond)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(src.block)
	}()

	require.NoError(t, s.Shutdown(context.Background()))
	require.NoError(t, <-errc)
	assert.Equal(t, 1, repo.Len())
	assert.ErrorIs(t, s.RunPeriodic(context.Background()), ErrStopped)
}

func TestShutdownTimesOut(t *testing.T) {
	src := &fakeSource{obs: baselines("London"), block: make(chan struct{})}
	s := newTestScheduler(src, newRecordingRepo(), []string{"London"}, Config{ShutdownTimeout: 20 * time.Millisecond})

	errc := make(chan error, 1)
	go func() { errc <- s.RunPeriodic(context.Background()) }()
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls == 1
	}, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, s.Shutdown(context.Background()), ErrShutdownTimeout)
	assert.ErrorIs(t, <-errc, context.Canceled)
}

func waitForFetch(t *testing.T, src *fakeSource) {
	t.Helper()
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return src.calls == 1
	}, time.Second, 5*time.Millisecond)
}

func TestShutdownWaitsForScheduledJob(t *testing.T) {
	src := &fakeSource{obs: baselines("London"), block: make(chan struct{})}
	repo := newRecordingRepo()
	s := New(src, repo, []string{"London"}, Config{
		BackfillDelay:    10 * time.Millisecond,
		FirstUpdateDelay: time.Hour,
		ShutdownTimeout:  time.Second,
	})
	require.NoError(t, s.Start(context.Background()))
	waitForFetch(t, src)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(src.block)
	}()

	require.NoError(t, s.Shutdown(context.Background()))
	assert.Equal(t, 72, repo.Len())
}

func TestShutdownBoundsScheduledJob(t *testing.T) {
	src := &fakeSource{obs: baselines("London"), block: make(chan struct{})}
	repo := newRecordingRepo()
	s := New(src, repo, []string{"London"}, Config{
		BackfillDelay:    10 * time.Millisecond,
		FirstUpdateDelay: time.Hour,
		ShutdownTimeout:  50 * time.Millisecond,
	})
	require.NoError(t, s.Start(context.Background()))
	waitForFetch(t, src)

	start := time.Now()
	err := s.Shutdown(context.Background())
	assert.ErrorIs(t, err, ErrShutdownTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, repo.Len())
}
