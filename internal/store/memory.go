package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/i474232898/weather-pipeline/internal/weather"
)

// history holds a city's observations ordered by timestamp ascending;
// rows with equal timestamps keep insertion order.
type history struct {
	observations []weather.Observation
}

// MemoryStore is a concurrency-safe in-memory implementation of weather.Repository.
// It backs tests and runs without a configured warehouse.
type MemoryStore struct {
	mu sync.RWMutex

	// key: case-folded city, value: history
	data map[string]*history

	initialized bool
}

var _ weather.Repository = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*history),
	}
}

// InitializeSchema is a no-op beyond recording that it ran.
func (s *MemoryStore) InitializeSchema(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	return nil
}

// Write validates the whole batch before appending any row.
func (s *MemoryStore) Write(ctx context.Context, observations []weather.Observation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}
	for _, o := range observations {
		if err := o.Validate(); err != nil {
			return 0, &weather.StorageError{Op: weather.StorageWrite, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, &weather.StorageError{Op: weather.StorageWrite, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range observations {
		key := weather.CityKey(o.City)
		h, ok := s.data[key]
		if !ok {
			h = &history{}
			s.data[key] = h
		}
		// Insert after every row with timestamp <= o.Timestamp.
		i, _ := slices.BinarySearchFunc(h.observations, o.Timestamp, func(e weather.Observation, t time.Time) int {
			if e.Timestamp.After(t) {
				return 1
			}
			return -1
		})
		h.observations = slices.Insert(h.observations, i, o)
	}
	return len(observations), nil
}

// ReadLatest returns the most recent observation for a city.
func (s *MemoryStore) ReadLatest(ctx context.Context, city string) (weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.data[weather.CityKey(city)]
	if !ok || len(h.observations) == 0 {
		return weather.Observation{}, weather.ErrNotFound
	}
	return h.observations[len(h.observations)-1], nil
}

// ReadRange returns observations at or after since, newest first.
func (s *MemoryStore) ReadRange(ctx context.Context, city string, since time.Time) ([]weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.data[weather.CityKey(city)]
	if !ok {
		return []weather.Observation{}, nil
	}

	result := make([]weather.Observation, 0)
	for i := len(h.observations) - 1; i >= 0; i-- {
		o := h.observations[i]
		if o.Timestamp.Before(since) {
			break
		}
		result = append(result, o)
	}
	return result, nil
}

// Len returns the total number of stored observations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, h := range s.data {
		n += len(h.observations)
	}
	return n
}
