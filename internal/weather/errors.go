package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no data is available for a given city.
	ErrNotFound = errors.New("no weather data for city")

	errNotUTC = errors.New("observation timestamp must be UTC")
)

// SourceErrorKind classifies provider failures.
type SourceErrorKind string

const (
	SourceNotFound    SourceErrorKind = "not_found"
	SourceRateLimited SourceErrorKind = "rate_limited"
	SourceNetwork     SourceErrorKind = "network"
	SourceMalformed   SourceErrorKind = "malformed"
)

// SourceError is returned by a Source when one city cannot be fetched.
type SourceError struct {
	Kind SourceErrorKind
	City string
	Err  error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("source %s for %q", e.Kind, e.City)
	}
	return fmt.Sprintf("source %s for %q: %v", e.Kind, e.City, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// SourceErrorKindOf returns the kind of a SourceError in err's chain, or "" if there is none.
func SourceErrorKindOf(err error) SourceErrorKind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// StorageOp names the repository operation that failed.
type StorageOp string

const (
	StorageSchemaInit StorageOp = "schema_init"
	StorageWrite      StorageOp = "write"
	StorageRead       StorageOp = "read"
)

// StorageError wraps a repository failure with the operation that caused it.
type StorageError struct {
	Op  StorageOp
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
