package history

import "errors"

// ErrInvalidRetention is returned for a negative retention window.
var ErrInvalidRetention = errors.New("history: retention must not be negative")
