package extraction

import (
	"errors"
	"fmt"
)

// ErrMissingAPIKey is returned when the adapter is asked to perform a live
// extraction without a configured API key. Config failures are never retried.
var ErrMissingAPIKey = errors.New("extraction API key is not configured")

// FailureKind classifies a failed extraction attempt.
type FailureKind string

const (
	// FailureTransport covers network errors, non-2xx responses and empty
	// response bodies from the extraction provider.
	FailureTransport FailureKind = "transport"

	// FailureShape covers responses that arrived but could not be parsed
	// into the harmonized schema: undecodable JSON or missing required
	// top-level keys.
	FailureShape FailureKind = "shape"

	// FailureConfig covers missing credentials or unusable input. Not retried.
	FailureConfig FailureKind = "config"
)

// AttemptError records why a single extraction attempt failed. All transport
// and shape failures are retried identically up to the attempt cap; the
// Retryable flag exists so a future refinement can differentiate them without
// changing the observable behavior of the documented kinds.
type AttemptError struct {
	Kind      FailureKind
	Retryable bool
	Err       error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

func transportError(err error) *AttemptError {
	return &AttemptError{Kind: FailureTransport, Retryable: true, Err: err}
}

func shapeError(err error) *AttemptError {
	return &AttemptError{Kind: FailureShape, Retryable: true, Err: err}
}

func configError(err error) *AttemptError {
	return &AttemptError{Kind: FailureConfig, Retryable: false, Err: err}
}
