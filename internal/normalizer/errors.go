package normalizer

import (
	"errors"
	"fmt"
)

// ErrEmptyInput is returned for blank info text; no call is made.
var ErrEmptyInput = errors.New("normalizer: empty input")

// Reason classifies a normalization failure.
type Reason string

const (
	// ReasonExhausted means every attempt failed at the transport or envelope level.
	ReasonExhausted Reason = "exhausted"
	// ReasonInvalidJSON means the reply content was not a JSON object. Not retried.
	ReasonInvalidJSON Reason = "invalid_json"
	// ReasonCanceled means the caller's context ended between attempts.
	ReasonCanceled Reason = "canceled"
)

// Error reports a record that could not be normalized.
type Error struct {
	Reason   Reason
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("normalize: %s after %d attempt(s): %v", e.Reason, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
