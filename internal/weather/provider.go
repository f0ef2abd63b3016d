package weather

import (
	"context"
	"time"
)

// Source fetches one city's current conditions from an external provider.
type Source interface {
	Name() string
	Fetch(ctx context.Context, city string) (Observation, error)
}

// BatchSource fetches many cities best-effort, keeping only successes.
type BatchSource interface {
	Source
	FetchMany(ctx context.Context, cities []string) ([]Observation, error)
}

// Repository is the contract the time-series stores must satisfy.
type Repository interface {
	// InitializeSchema creates the backing dataset/table if absent. Safe to call repeatedly.
	InitializeSchema(ctx context.Context) error

	// Write appends observations atomically: either all rows become visible or none do.
	Write(ctx context.Context, observations []Observation) (int, error)

	// ReadLatest returns the newest observation for city, or ErrNotFound.
	ReadLatest(ctx context.Context, city string) (Observation, error)

	// ReadRange returns observations with Timestamp >= since, newest first.
	ReadRange(ctx context.Context, city string, since time.Time) ([]Observation, error)
}
