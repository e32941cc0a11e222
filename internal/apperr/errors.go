// Package apperr holds the sentinel errors shared across the pipeline.
package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrNothingToDo    = errors.New("nothing to do")
	ErrCancelled      = errors.New("cancelled")
	ErrInvalidVersion = errors.New("invalid version tag")
	ErrLocked         = errors.New("repository is locked by another run")
)
