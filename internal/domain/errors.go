package domain

import "errors"

var (
	// ErrNotFound is returned when a referenced brand, product, license key,
	// license or activation does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrCrossTenant is returned when the acting brand does not own the
	// product or license it referenced.
	ErrCrossTenant = errors.New("resource belongs to another brand")
	// ErrInvalidTransition signals a license status change the state machine
	// does not allow, e.g. reinstating a license that is not suspended.
	ErrInvalidTransition = errors.New("invalid license status transition")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRateLimited       = errors.New("rate limited")
)
