package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/okian/xpmeter/pkg/metrics"
)

const (
	defaultPriceTimeout   = 5 * time.Second
	defaultPriceCacheSize = 4096
	defaultPriceCacheTTL  = 10 * time.Minute
)

// PriceSource quotes market prices by canonical item id.
type PriceSource interface {
	Price(ctx context.Context, id int) (int64, error)
}

type priceResponse struct {
	ID    int   `json:"id"`
	Price int64 `json:"price"`
}

// HTTPPriceSource fetches quotes from GET {baseURL}/{id}.
type HTTPPriceSource struct {
	client *resty.Client
}

// NewHTTPPriceSource creates a price source for baseURL.
func NewHTTPPriceSource(baseURL string, timeout time.Duration) *HTTPPriceSource {
	if timeout <= 0 {
		timeout = defaultPriceTimeout
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &HTTPPriceSource{client: client}
}

// Price returns the quote for id. Unknown ids yield ErrPriceUnavailable.
func (s *HTTPPriceSource) Price(ctx context.Context, id int) (int64, error) {
	var out priceResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("id", strconv.Itoa(id)).
		SetResult(&out).
		Get("/{id}")
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPriceSource, err)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return 0, fmt.Errorf("%w: %d", ErrPriceUnavailable, id)
	case resp.IsError():
		return 0, fmt.Errorf("%w: item %d: status %d", ErrPriceSource, id, resp.StatusCode())
	case out.Price < 0:
		return 0, fmt.Errorf("%w: item %d: negative price", ErrPriceSource, id)
	}
	return out.Price, nil
}

// CachedPrices memoizes another source for a fixed TTL.
type CachedPrices struct {
	next  PriceSource
	cache *expirable.LRU[int, int64]
}

// NewCachedPrices wraps next. Non-positive size or ttl select the defaults.
func NewCachedPrices(next PriceSource, size int, ttl time.Duration) *CachedPrices {
	if size <= 0 {
		size = defaultPriceCacheSize
	}
	if ttl <= 0 {
		ttl = defaultPriceCacheTTL
	}
	return &CachedPrices{
		next:  next,
		cache: expirable.NewLRU[int, int64](size, nil, ttl),
	}
}

// Price returns a cached quote or asks the wrapped source. Failures are not
// cached.
func (c *CachedPrices) Price(ctx context.Context, id int) (int64, error) {
	if p, ok := c.cache.Get(id); ok {
		metrics.RecordPriceCacheHit()
		return p, nil
	}
	metrics.RecordPriceCacheMiss()
	p, err := c.next.Price(ctx, id)
	if err != nil {
		return 0, err
	}
	c.cache.Add(id, p)
	return p, nil
}

// Len returns the number of cached quotes.
func (c *CachedPrices) Len() int { return c.cache.Len() }
