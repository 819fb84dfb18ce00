package analysis

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by stores when no record exists for an id or token.
var ErrNotFound = errors.New("analysis not found")

// ErrDuplicateJob is returned by queues when a job id is already in flight.
var ErrDuplicateJob = errors.New("job already enqueued")

// ErrInvalidTransition is returned by stores when a patch would move a job
// backwards in its lifecycle or re-open a terminal job.
var ErrInvalidTransition = errors.New("invalid status transition")

// FetchError wraps upstream fetch failures so the worker can distinguish the
// retryable path from scorer-internal fallbacks.
type FetchError struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *FetchError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("fetch %s: timed out: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
