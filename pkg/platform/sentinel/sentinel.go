// Package sentinel holds dependency-level errors. Stores return these
// (optionally wrapped) so services can translate them into domain errors
// exactly once.
package sentinel

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidState  = errors.New("invalid state")
	ErrUnavailable   = errors.New("unavailable")
)
