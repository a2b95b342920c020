package repository

import "errors"

// Sentinel kinds for series store errors.
var (
	ErrNotFound      = errors.New("series not found")
	ErrInvalidLimit  = errors.New("invalid series limit")
	ErrInvalidRecord = errors.New("invalid record")
)
