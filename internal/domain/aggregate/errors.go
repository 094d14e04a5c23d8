package aggregate

import (
	"errors"
	"strings"
)

// ErrTooManyFailures is returned when member fetch failures cross the abort threshold.
var ErrTooManyFailures = errors.New("too many member fetch failures")

// AbortError lists the members to exclude on a retry: the ones that failed
// this run plus the ones already excluded.
type AbortError struct {
	Failed []string
}

func (e *AbortError) Error() string {
	return ErrTooManyFailures.Error() + ": " + strings.Join(e.Failed, ", ")
}

func (e *AbortError) Unwrap() error { return ErrTooManyFailures }
