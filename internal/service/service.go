package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/weather-pipeline/internal/agent"
	"github.com/i474232898/weather-pipeline/internal/scheduler"
	"github.com/i474232898/weather-pipeline/internal/weather"
)

const (
	MinHistoryDays = 1
	MaxHistoryDays = 60
)

var (
	// ErrInvalidDays is returned when a history window is outside [1, 60] days.
	ErrInvalidDays = fmt.Errorf("days must be between %d and %d", MinHistoryDays, MaxHistoryDays)
	// ErrInvalidCity is returned for a blank city name.
	ErrInvalidCity = errors.New("city is required")
)

// Agent answers natural-language weather queries.
type Agent interface {
	Process(ctx context.Context, message string, history []agent.Message) agent.Response
	Health() agent.Health
}

// Scheduler owns background ingestion.
type Scheduler interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
	Jobs() []scheduler.Job
}

// Service is the single process-wide entry point built at startup and shared
// by the HTTP handlers. It holds the repository, agent and scheduler.
type Service struct {
	repo      weather.Repository
	cities    weather.Cities
	agent     Agent
	scheduler Scheduler
	now       func() time.Time
}

// New creates a new Service.
func New(repo weather.Repository, cities weather.Cities, a Agent, sched Scheduler) *Service {
	return &Service{
		repo:      repo,
		cities:    cities,
		agent:     a,
		scheduler: sched,
		now:       time.Now,
	}
}

// GetLatest returns the most recent stored observation for a city.
func (s *Service) GetLatest(ctx context.Context, city string) (weather.Observation, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return weather.Observation{}, ErrInvalidCity
	}
	return s.repo.ReadLatest(ctx, city)
}

// GetHistory returns a city's observations from the last days days, newest first.
func (s *Service) GetHistory(ctx context.Context, city string, days int) ([]weather.Observation, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, ErrInvalidCity
	}
	if days < MinHistoryDays || days > MaxHistoryDays {
		return nil, ErrInvalidDays
	}
	since := s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
	return s.repo.ReadRange(ctx, city, since)
}

// ListCities returns the tracked cities in registry order.
func (s *Service) ListCities() []string {
	return s.cities.Names()
}

// ResolveCity returns the registry spelling of a tracked city, or city unchanged.
func (s *Service) ResolveCity(city string) string {
	if name, ok := s.cities.Lookup(city); ok {
		return name
	}
	return strings.TrimSpace(city)
}

// QueryAgent forwards a message and optional prior turns to the agent.
func (s *Service) QueryAgent(ctx context.Context, message string, history []agent.Message) agent.Response {
	return s.agent.Process(ctx, message, history)
}

// AgentHealth reports the agent's model and tools.
func (s *Service) AgentHealth() agent.Health {
	return s.agent.Health()
}

// Jobs returns the scheduler's job table.
func (s *Service) Jobs() []scheduler.Job {
	if s.scheduler == nil {
		return []scheduler.Job{}
	}
	return s.scheduler.Jobs()
}

// Start starts background ingestion.
func (s *Service) Start(ctx context.Context) error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Start(ctx)
}

// Shutdown stops background ingestion, waiting for in-flight runs within its bound.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown(ctx)
}
