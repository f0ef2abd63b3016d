package agent

import (
	"errors"
	"fmt"
)

var (
	errEmptyCompletion   = errors.New("model returned no choices")
	errEmptyAnswer       = errors.New("model returned an empty answer")
	errUnrecognizedLabel = errors.New("unrecognized classification label")
)

// ClassificationError reports a failed weather/off-topic judgment.
// The agent treats the query as weather-related when it occurs.
type ClassificationError struct {
	Err error
}

func (e *ClassificationError) Error() string {
	return fmt.Sprintf("classification: %v", e.Err)
}

func (e *ClassificationError) Unwrap() error {
	return e.Err
}

// SynthesisError reports a failed final-answer completion.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}
