package domain

import "errors"

// ErrNotFound is returned when a blob or cache entry does not exist.
var ErrNotFound = errors.New("not found")
