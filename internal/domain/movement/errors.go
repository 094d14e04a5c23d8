package movement

import "errors"

// ErrEmptyGroup is returned when a snapshot has no group id.
var ErrEmptyGroup = errors.New("snapshot has no group")
