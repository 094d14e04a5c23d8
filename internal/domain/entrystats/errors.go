package entrystats

import "errors"

// ErrNotCharted is returned for an entry with no chart history in the group.
var ErrNotCharted = errors.New("entry has never charted")
