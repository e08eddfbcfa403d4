package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// ErrIngestionRejected marks a file that failed the accepted type/size policy.
	ErrIngestionRejected = errors.New("ingestion rejected")
	// ErrNotRemovable is returned when discarding an item that is no longer idle.
	ErrNotRemovable = errors.New("item is not removable")
	// ErrUnauthenticated is returned when no owner identity is available.
	ErrUnauthenticated = errors.New("unauthenticated")
)
