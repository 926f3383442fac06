// Package errdefs defines the error kinds shared across the localization
// pipeline: validation failures, unknown source/cycle keys, and DOA solver
// failures. None of these are ever retried; they propagate to the caller.
package errdefs

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed, empty, or inconsistent input data.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError reports an unknown source/cycle key.
type NotFoundError struct {
	Key string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Key)
}

// NotFound builds a NotFoundError for the given key.
func NotFound(key string) error {
	return &NotFoundError{Key: key}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// EstimationError reports a failure inside the DOA solver for one
// microphone subset. The subset's contribution is lost; whether that fails
// the whole cycle is the scheduler's policy decision.
type EstimationError struct {
	Algorithm string
	Err       error
}

func (e *EstimationError) Error() string {
	return fmt.Sprintf("doa estimation (%s): %v", e.Algorithm, e.Err)
}

func (e *EstimationError) Unwrap() error {
	return e.Err
}

// Estimation wraps a solver failure with the algorithm name.
func Estimation(algorithm string, err error) error {
	return &EstimationError{Algorithm: algorithm, Err: err}
}

// IsEstimation reports whether err is (or wraps) an EstimationError.
func IsEstimation(err error) bool {
	var ee *EstimationError
	return errors.As(err, &ee)
}
