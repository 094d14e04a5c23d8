package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/tunechart/internal/adapters/repository"
	service "github.com/okian/tunechart/internal/app"
	"github.com/okian/tunechart/internal/domain/aggregate"
	"github.com/okian/tunechart/internal/domain/entrystats"
	"github.com/okian/tunechart/internal/domain/records"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest = errors.New("bad request")
)

// Error tags a failure with the handler operation that produced it.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	case e.Kind == nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of kind raised by op.
func NewKind(op string, kind error) error { return &Error{Op: op, Kind: kind} }

// WrapKind classifies err as kind.
func WrapKind(op string, kind, err error) error { return &Error{Op: op, Kind: kind, Err: err} }

// Wrap attaches op to err.
func Wrap(op string, err error) error { return &Error{Op: op, Err: err} }

// classify maps a handler error to its status and response code.
func classify(err error) (int, string) {
	var abort *aggregate.AbortError
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrInvalidRange):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, entrystats.ErrNotCharted):
		return http.StatusNotFound, "not_found"
	case errors.As(err, &abort):
		return http.StatusConflict, "too_many_failures"
	case errors.Is(err, service.ErrRegenerationInProgress), errors.Is(err, records.ErrInProgress):
		return http.StatusConflict, "in_progress"
	case errors.Is(err, service.ErrNoMembers):
		return http.StatusUnprocessableEntity, "no_members"
	}
	return http.StatusInternalServerError, "internal_error"
}
