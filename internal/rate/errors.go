package rate

import "errors"

// ErrStoreUnavailable wraps storage failures seen while reading or updating
// counters.
var ErrStoreUnavailable = errors.New("rate: store unavailable")
