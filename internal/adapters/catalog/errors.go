package catalog

import "errors"

var (
	ErrInvalidCatalog = errors.New("invalid item catalog")
	// ErrPriceUnavailable means the price source has no quote for an item.
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrPriceSource      = errors.New("price source request failed")
)
