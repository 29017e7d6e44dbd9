package models

import (
	"errors"
	"fmt"
)

// The render pipeline's error taxonomy. Validation and conflict errors are
// rejected synchronously at the API; render errors terminate a job without
// retry; transient errors are retried with backoff until the budget runs out.

// ValidationError marks malformed timelines or settings. Never retried and
// never creates a job.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrActiveJobExists signals the one-active-job-per-project invariant.
// The API returns the existing job's id instead of creating a duplicate.
var ErrActiveJobExists = errors.New("project already has an active render job")

// ErrJobCompleted is returned when cancelling a job that already finished.
var ErrJobCompleted = errors.New("job already completed")

// ErrJobCancelled aborts a render mid-flight without publishing output.
var ErrJobCancelled = errors.New("job cancelled")

// RenderError marks deterministic render failures (corrupt asset, encoder
// failure). Immediately terminal; the message is captured into job.error.
type RenderError struct {
	Stage string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render failed at %s: %v", e.Stage, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// transientError wraps infrastructure hiccups worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err (anywhere in its chain) was marked
// retryable. Deterministic failures are never retried.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
