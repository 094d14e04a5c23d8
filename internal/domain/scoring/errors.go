package scoring

import "errors"

// Sentinel kinds for scoring errors.
var (
	ErrUnknownMode = errors.New("unknown scoring mode")
)
