// Package repository defines error types that are reused across multiple
// repositories.  These sentinel values allow higher layers such as
// services and handlers to distinguish between failure scenarios with
// errors.Is instead of string matching.
package repository

import "errors"

// ErrConflict is returned by a conditional update whose predicate did
// not hold against the current row.  It is an expected, frequent
// outcome of optimistic concurrency and is never logged as an anomaly;
// callers translate it into their own domain error or swallow it.
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned when the requested document does not exist.
var ErrNotFound = errors.New("not found")
