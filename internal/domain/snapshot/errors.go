package snapshot

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSnapshot marks a document the builder cannot use.
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	ErrMissingUser     = fmt.Errorf("%w: user is required", ErrInvalidSnapshot)
)
