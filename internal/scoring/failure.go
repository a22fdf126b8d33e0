package scoring

import (
	"context"
	"errors"
)

// FailureKind classifies why the external scorer could not be used.
type FailureKind string

const (
	FailureTimeout   FailureKind = "timeout"
	FailureCanceled  FailureKind = "canceled"
	FailureExit      FailureKind = "exit"
	FailureStart     FailureKind = "start"
	FailureMalformed FailureKind = "malformed"
	FailureShape     FailureKind = "shape"
)

// ClassifyFailure maps a runner or interpretation error to a FailureKind.
// Errors it does not recognise are reported as FailureExit.
func ClassifyFailure(err error) FailureKind {
	var exitErr *ExitError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	case errors.Is(err, ErrStart):
		return FailureStart
	case errors.Is(err, ErrShape):
		return FailureShape
	case errors.Is(err, ErrMalformed):
		return FailureMalformed
	case errors.As(err, &exitErr):
		return FailureExit
	default:
		return FailureExit
	}
}
