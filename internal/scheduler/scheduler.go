package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/weather-pipeline/internal/weather"
)

// JobKind identifies one of the scheduler's jobs. It doubles as the job id.
type JobKind string

const (
	JobBackfill JobKind = "backfill"
	JobPeriodic JobKind = "periodic"
)

// JobState is the state of a job's most recent run.
type JobState string

const (
	StateScheduled JobState = "scheduled"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
)

// Job is a read-only snapshot of a scheduled job.
type Job struct {
	ID        string    `json:"id"`
	Kind      JobKind   `json:"kind"`
	State     JobState  `json:"state"`
	NextRun   time.Time `json:"next_run_time"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
	Runs      int       `json:"runs"`
}

var (
	// ErrJobRunning is returned when a trigger finds the same job still running.
	ErrJobRunning = errors.New("scheduler: job already running")
	// ErrStopped is returned when the scheduler has been shut down.
	ErrStopped = errors.New("scheduler: stopped")
	// ErrShutdownTimeout is returned when in-flight runs outlive the shutdown bound.
	ErrShutdownTimeout = errors.New("scheduler: shutdown timed out waiting for running jobs")
)

// Config holds scheduling parameters.
type Config struct {
	BackfillWindow   time.Duration
	BackfillDelay    time.Duration
	BatchSize        int
	UpdateInterval   time.Duration
	FirstUpdateDelay time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultConfig returns the default schedule: 72h backfill 10s after start,
// hourly collection starting 30s after start.
func DefaultConfig() Config {
	return Config{
		BackfillWindow:   72 * time.Hour,
		BackfillDelay:    10 * time.Second,
		BatchSize:        1000,
		UpdateInterval:   time.Hour,
		FirstUpdateDelay: 30 * time.Second,
		ShutdownTimeout:  30 * time.Second,
	}
}

type jobEntry struct {
	job  Job
	cron *gocron.Job
}

// Scheduler owns the ingestion schedule: a one-shot backfill and a recurring
// collection job, both writing through the repository.
type Scheduler struct {
	cron   *gocron.Scheduler
	source weather.BatchSource
	repo   weather.Repository
	cities []string
	cfg    Config
	now    func() time.Time

	// runCtx is cancelled only when Shutdown gives up waiting.
	runCtx    context.Context
	cancelRun context.CancelFunc

	mu       sync.Mutex
	started  bool
	stopped  bool
	running  map[JobKind]bool
	jobs     map[JobKind]*jobEntry
	inflight sync.WaitGroup
}

// New creates a new Scheduler. Zero-valued config fields take their defaults.
func New(source weather.BatchSource, repo weather.Repository, cities []string, cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.BackfillWindow <= 0 {
		cfg.BackfillWindow = def.BackfillWindow
	}
	if cfg.BackfillDelay <= 0 {
		cfg.BackfillDelay = def.BackfillDelay
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = def.UpdateInterval
	}
	if cfg.FirstUpdateDelay <= 0 {
		cfg.FirstUpdateDelay = def.FirstUpdateDelay
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()

	runCtx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:      s,
		source:    source,
		repo:      repo,
		cities:    cities,
		cfg:       cfg,
		now:       time.Now,
		runCtx:    runCtx,
		cancelRun: cancel,
		running:   make(map[JobKind]bool),
		jobs:      make(map[JobKind]*jobEntry),
	}
}

// Start initializes the storage schema, then registers the backfill and
// periodic jobs and starts the job clock. Calling Start again is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	if err := s.repo.InitializeSchema(ctx); err != nil {
		var se *weather.StorageError
		if !errors.As(err, &se) {
			err = &weather.StorageError{Op: weather.StorageSchemaInit, Err: err}
		}
		return err
	}

	if len(s.cities) == 0 {
		slog.Warn("scheduler: no cities configured; nothing to schedule")
		s.started = true
		return nil
	}

	backfill, err := s.cron.Every(s.cfg.BackfillDelay).
		WaitForSchedule().
		LimitRunsTo(1).
		Tag(string(JobBackfill)).
		Do(s.trigger, JobBackfill)
	if err != nil {
		return fmt.Errorf("scheduler: register backfill: %w", err)
	}

	periodic, err := s.cron.Every(s.cfg.UpdateInterval).
		StartAt(s.now().Add(s.cfg.FirstUpdateDelay)).
		SingletonMode().
		Tag(string(JobPeriodic)).
		Do(s.trigger, JobPeriodic)
	if err != nil {
		s.cron.RemoveByReference(backfill)
		return fmt.Errorf("scheduler: register periodic: %w", err)
	}

	s.jobs[JobBackfill] = &jobEntry{job: newJob(JobBackfill), cron: backfill}
	s.jobs[JobPeriodic] = &jobEntry{job: newJob(JobPeriodic), cron: periodic}

	s.cron.StartAsync()
	s.started = true
	slog.Info("scheduler: started",
		"cities", len(s.cities),
		"backfill_delay", s.cfg.BackfillDelay,
		"update_interval", s.cfg.UpdateInterval,
	)
	return nil
}

func newJob(kind JobKind) Job {
	return Job{ID: string(kind), Kind: kind, State: StateScheduled}
}

// trigger is the gocron entry point for both jobs.
func (s *Scheduler) trigger(kind JobKind) {
	var err error
	switch kind {
	case JobBackfill:
		err = s.run(s.runCtx, kind, s.backfill)
	case JobPeriodic:
		err = s.run(s.runCtx, kind, s.collect)
	}
	if err != nil && !errors.Is(err, ErrJobRunning) && !errors.Is(err, ErrStopped) {
		slog.Error("scheduler: job failed", "job", kind, "err", err)
	}
}

// RunBackfill runs the backfill job now, subject to the overlap guard.
func (s *Scheduler) RunBackfill(ctx context.Context) error {
	return s.runManual(ctx, JobBackfill, s.backfill)
}

// RunPeriodic runs one collection now, subject to the overlap guard.
func (s *Scheduler) RunPeriodic(ctx context.Context) error {
	return s.runManual(ctx, JobPeriodic, s.collect)
}

func (s *Scheduler) runManual(ctx context.Context, kind JobKind, fn func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.runCtx, cancel)
	defer stop()
	return s.run(ctx, kind, fn)
}

// run executes fn unless a run of the same job is in flight.
func (s *Scheduler) run(ctx context.Context, kind JobKind, fn func(context.Context) error) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.running[kind] {
		s.mu.Unlock()
		slog.Warn("scheduler: skipping run; previous run still in progress", "job", kind)
		return ErrJobRunning
	}
	s.running[kind] = true
	s.inflight.Add(1)
	if e, ok := s.jobs[kind]; ok {
		e.job.State = StateRunning
	}
	s.mu.Unlock()
	defer s.inflight.Done()

	started := s.now()
	slog.Info("scheduler: running job", "job", kind)
	err := fn(ctx)

	state := StateSucceeded
	if err != nil {
		state = StateFailed
	}

	s.mu.Lock()
	s.running[kind] = false
	if e, ok := s.jobs[kind]; ok {
		e.job.State = state
		e.job.LastRun = started.UTC()
		e.job.Runs++
		e.job.LastError = ""
		if err != nil {
			e.job.LastError = err.Error()
		}
	}
	s.mu.Unlock()

	recordRun(ctx, kind, state)
	slog.Info("scheduler: completed job", "job", kind, "state", state, "elapsed", time.Since(started))
	return err
}

// Jobs returns a snapshot of the job table, backfill first.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, kind := range []JobKind{JobBackfill, JobPeriodic} {
		e, ok := s.jobs[kind]
		if !ok {
			continue
		}
		j := e.job
		if !s.stopped && !(kind == JobBackfill && e.cron.RunCount() > 0) {
			j.NextRun = e.cron.NextRun().UTC()
		}
		jobs = append(jobs, j)
	}
	return jobs
}

// Shutdown stops future scheduling and waits for in-flight runs, bounded by
// ShutdownTimeout and ctx. Runs still going when the bound expires are cancelled.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	// cron.Stop blocks until the jobs it started return, so it runs under the bound too.
	done := make(chan struct{})
	go func() {
		s.cron.Stop()
		s.inflight.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.cfg.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
		s.cancelRun()
		slog.Info("scheduler: stopped")
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	s.cancelRun()
	slog.Error("scheduler: in-flight jobs did not finish before shutdown bound", "timeout", s.cfg.ShutdownTimeout)
	return ErrShutdownTimeout
}
