package domain

import "errors"

// Error kinds surfaced to callers. Call sites wrap these with context;
// classify with errors.Is.
var (
	// ErrInvalidDate rejects a request before any cache or scoring work.
	ErrInvalidDate = errors.New("invalid date")

	// ErrComputation reports a failure to build a prediction set, such as an
	// unavailable location source. Results are never cached for it.
	ErrComputation = errors.New("prediction computation failed")

	// ErrNotFound reports that no data exists for the request and there is
	// nothing to fall back to.
	ErrNotFound = errors.New("no prediction data available")
)
