package engine

import "errors"

// ErrKeyNotFound is returned by Remove when the requested key is not
// present (never set, or already removed). Get reports a missing key as
// absent instead of returning this error.
var ErrKeyNotFound = errors.New("key not found")

// ErrCorrupt is returned when a log record fails to decode outside of a
// recovery scan (where a decode failure is instead treated as end-of-log).
var ErrCorrupt = errors.New("corrupt record")
