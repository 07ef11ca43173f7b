package store

import "errors"

// ErrConflict signals a commit the checkpoint store refused: a cursor
// regression or a uniqueness violation that indicates a logic error rather
// than a retryable condition.
var ErrConflict = errors.New("store: commit conflict")
