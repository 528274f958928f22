package models

import "errors"

var (
	// ErrTrackNotFound is returned when no track has been stored yet.
	ErrTrackNotFound = errors.New("track not found")
	// ErrPersistenceConflict is returned when an upsert still violates a unique constraint.
	ErrPersistenceConflict = errors.New("persistence conflict")
)
