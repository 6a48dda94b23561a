package queue

import "errors"

// ErrNotConfigured is returned when the store is opened without a data
// directory. This is a fatal configuration error; callers must not retry
// around it.
var ErrNotConfigured = errors.New("queue storage not configured")

// ErrNotFound is returned when no partition holds the requested item.
var ErrNotFound = errors.New("queue item not found")
