package catalog

import (
	"context"
	"errors"

	"github.com/okian/xpmeter/internal/domain/measurement"
	"github.com/okian/xpmeter/pkg/logger"
)

// Valuer combines the catalog with an optional live price source.
type Valuer struct {
	catalog *Catalog
	prices  PriceSource
	logger  logger.Logger
}

var _ measurement.ItemLookup = (*Valuer)(nil)

// ValuerOption configures a Valuer.
type ValuerOption func(*Valuer)

// WithPriceSource quotes market prices from src instead of the catalog.
func WithPriceSource(src PriceSource) ValuerOption {
	return func(v *Valuer) {
		v.prices = src
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) ValuerOption {
	return func(v *Valuer) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewValuer creates a Valuer over c.
func NewValuer(c *Catalog, opts ...ValuerOption) *Valuer {
	v := &Valuer{catalog: c}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = logger.Get().Named("catalog")
	}
	return v
}

func (v *Valuer) Canonicalize(id int) int { return v.catalog.Canonicalize(id) }

func (v *Valuer) Definition(ctx context.Context, id int) (measurement.ItemDefinition, error) {
	e, err := v.catalog.Lookup(ctx, id)
	if err != nil {
		return measurement.ItemDefinition{}, err
	}
	return measurement.ItemDefinition{ID: e.ID, Name: e.Name, StorePrice: e.StorePrice}, nil
}

// MarketPrice prefers the live source and falls back to the catalog price
// when the source has no quote.
func (v *Valuer) MarketPrice(ctx context.Context, id int) (int64, error) {
	e, err := v.catalog.Lookup(ctx, id)
	if err != nil {
		return 0, err
	}
	if v.prices == nil {
		return e.Price, nil
	}
	p, err := v.prices.Price(ctx, id)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, ErrPriceUnavailable):
		v.logger.Debug(ctx, "no live quote, using catalog price", logger.Int("item", id))
		return e.Price, nil
	default:
		return 0, err
	}
}
