package records

import "errors"

// ErrInProgress is returned while another calculation holds the lease.
var ErrInProgress = errors.New("records calculation in progress")
