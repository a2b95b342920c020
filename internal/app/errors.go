package service

import "errors"

// Sentinel kinds returned by the service.
var (
	ErrNotStarted   = errors.New("service not started")
	ErrInvalidInput = errors.New("invalid input")
	ErrBackpressure = errors.New("backpressure")
	ErrUnknownJob   = errors.New("unknown job kind")
)
