package lastfm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel error kinds. ErrAccountNotFound and ErrInvalidRequest are final;
// the others are retried.
var (
	ErrAccountNotFound = errors.New("lastfm account not found")
	ErrInvalidRequest  = errors.New("lastfm invalid request")
	ErrRateLimited     = errors.New("lastfm rate limited")
	ErrUnavailable     = errors.New("lastfm unavailable")
	ErrBadResponse     = errors.New("lastfm bad response")
)

// Last.fm API error codes the client distinguishes.
const (
	codeInvalidParameters  = 6
	codeOperationFailed    = 8
	codeInvalidAPIKey      = 10
	codeServiceOffline     = 11
	codeTemporaryError     = 16
	codeRateLimitExceeded  = 29
	codeSuspendedAPIKey    = 26
	codeInvalidMethod      = 3
	codeAuthFailed         = 4
	codeInvalidSessionKey  = 9
	codeSignatureInvalid   = 13
	codeLoginRequired      = 17
	codeNotFoundForRequest = 7
)

// APIError is a failed call with its HTTP status and, when present, the
// Last.fm error code and message.
type APIError struct {
	Method     string
	StatusCode int
	Code       int
	Message    string
	RetryAfter time.Duration
	kind       error
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: status %d, error %d: %s", e.Method, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Method, e.StatusCode)
}

func (e *APIError) Unwrap() error { return e.kind }

// classify maps an HTTP status and API error code to an error kind.
func classify(status, code int) error {
	switch code {
	case codeRateLimitExceeded:
		return ErrRateLimited
	case codeInvalidParameters, codeNotFoundForRequest:
		return ErrAccountNotFound
	case codeOperationFailed, codeServiceOffline, codeTemporaryError:
		return ErrUnavailable
	case codeInvalidMethod, codeAuthFailed, codeInvalidSessionKey, codeInvalidAPIKey,
		codeSignatureInvalid, codeLoginRequired, codeSuspendedAPIKey:
		return ErrInvalidRequest
	}
	switch {
	case status == 429:
		return ErrRateLimited
	case status == 404:
		return ErrAccountNotFound
	case status >= 400 && status < 500:
		return ErrInvalidRequest
	case status >= 500:
		return ErrUnavailable
	}
	return ErrBadResponse
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrInvalidRequest):
		return false
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) || errors.Is(err, ErrBadResponse)
}
