package replay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/okian/xpmeter/internal/domain/snapshot"
	"github.com/okian/xpmeter/internal/domain/types"
)

// ErrUnexpectedStatus is returned for responses outside the documented set.
var ErrUnexpectedStatus = errors.New("unexpected status")

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client talks to the service HTTP API.
type Client struct {
	http *resty.Client
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json"),
	}
}

// Health checks that the service answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: healthz returned %d", ErrUnexpectedStatus, resp.StatusCode())
	}
	return nil
}

// PostSnapshot submits one snapshot.
func (c *Client) PostSnapshot(ctx context.Context, snap *snapshot.Snapshot) (AckResponse, error) {
	var (
		ack    AckResponse
		apiErr apiError
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(snap).
		SetResult(&ack).
		SetError(&apiErr).
		Post("/snapshots")
	if err != nil {
		return AckResponse{}, err
	}
	switch resp.StatusCode() {
	case http.StatusAccepted, http.StatusOK:
		return ack, nil
	default:
		return AckResponse{}, fmt.Errorf("%w: %d %s: %s", ErrUnexpectedStatus, resp.StatusCode(), apiErr.Code, apiErr.Message)
	}
}

// UserSeries returns the latest records of one user.
func (c *Client) UserSeries(ctx context.Context, user string) ([]types.SeriesEntry, error) {
	var out []types.SeriesEntry
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get("/users/" + url.PathEscape(user))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: users/%s returned %d", ErrUnexpectedStatus, user, resp.StatusCode())
	}
	return out, nil
}

// QueueLength reads the pending job count from /stats.
func (c *Client) QueueLength(ctx context.Context) (int, error) {
	var stats map[string]any
	resp, err := c.http.R().SetContext(ctx).SetResult(&stats).Get("/stats")
	if err != nil {
		return 0, err
	}
	if resp.StatusCode() != http.StatusOK {
		return 0, fmt.Errorf("%w: stats returned %d", ErrUnexpectedStatus, resp.StatusCode())
	}
	switch v := stats["queueLength"].(type) {
	case float64:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	default:
		return 0, nil
	}
}
