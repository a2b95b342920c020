package influx

import "errors"

// Sentinel kinds for sink errors.
var (
	ErrEncode    = errors.New("line protocol encoding failed")
	ErrWrite     = errors.New("influx write failed")
	ErrClosed    = errors.New("writer closed")
	ErrNoBackend = errors.New("no influx url configured")
)
