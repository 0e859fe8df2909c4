package storage

import "github.com/pkg/errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when a conditional update lost to a concurrent
// writer (e.g. a checkpoint resolved twice, or a claim race).
var ErrConflict = errors.New("conditional update conflict")
