package influx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-resty/resty/v2"

	"github.com/okian/xpmeter/internal/domain/measurement"
	"github.com/okian/xpmeter/pkg/logger"
	"github.com/okian/xpmeter/pkg/metrics"
)

const (
	defaultBatchSize     = 500
	defaultFlushInterval = time.Second
	defaultTimeout       = 5 * time.Second
	defaultMaxRetries    = 3
	defaultRetryInterval = 200 * time.Millisecond
	maxRetryInterval     = 5 * time.Second
)

// Stats describes the writer's progress.
type Stats struct {
	PendingLines  int    `json:"pending_lines"`
	WrittenLines  uint64 `json:"written_lines"`
	FailedBatches uint64 `json:"failed_batches"`
}

// Writer buffers encoded lines and posts them in batches. Records are stamped
// with the writer clock when Write is called.
type Writer struct {
	client *resty.Client

	org, bucket, token           string
	database, username, password string

	batchSize     int
	flushInterval time.Duration
	timeout       time.Duration
	maxRetries    int
	retryInterval time.Duration
	now           func() time.Time
	logger        logger.Logger

	mu      sync.Mutex
	buf     bytes.Buffer
	pending int
	closed  bool
	started bool
	stats   Stats

	// sendMu keeps batches in order.
	sendMu sync.Mutex

	stop chan struct{}
	done chan struct{}
}

// NewWriter creates a writer for the backend at baseURL. Call Start to run
// the periodic flusher.
func NewWriter(baseURL string, opts ...Option) (*Writer, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrNoBackend
	}
	w := &Writer{
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		timeout:       defaultTimeout,
		maxRetries:    defaultMaxRetries,
		retryInterval: defaultRetryInterval,
		now:           time.Now,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named("influx")
	}

	w.client = resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(w.timeout).
		SetHeader("Content-Type", "text/plain; charset=utf-8")
	if w.bucket != "" {
		w.client.SetHeader("Authorization", "Token "+w.token)
	} else if w.username != "" {
		w.client.SetBasicAuth(w.username, w.password)
	}
	return w, nil
}

// Start runs the periodic flusher until ctx is done or Close is called.
func (w *Writer) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started || w.closed {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.flushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				if err := w.Flush(ctx); err != nil {
					w.logger.Error(ctx, "periodic flush failed", logger.Error(err))
				}
			}
		}
	}()
}

// Write encodes recs and buffers them, flushing when the batch is full.
// Records that cannot be encoded are dropped and reported in the returned
// error; the rest are still buffered.
func (w *Writer) Write(ctx context.Context, recs ...measurement.Record) error {
	if len(recs) == 0 {
		return nil
	}
	lines, encErr := Encode(recs, w.now())
	if encErr != nil {
		metrics.RecordSinkError("encode")
	}
	if len(lines) == 0 {
		return encErr
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.buf.Write(lines)
	w.pending += bytes.Count(lines, []byte{'\n'})
	full := w.pending >= w.batchSize
	metrics.UpdateSinkPendingLines(w.pending)
	w.mu.Unlock()

	if full {
		return errors.Join(encErr, w.Flush(ctx))
	}
	return encErr
}

// Flush sends every buffered line. A batch that still fails after the
// retries is dropped and reported.
func (w *Writer) Flush(ctx context.Context) error {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	w.mu.Lock()
	if w.pending == 0 {
		w.mu.Unlock()
		return nil
	}
	body := bytes.Clone(w.buf.Bytes())
	lines := w.pending
	w.buf.Reset()
	w.pending = 0
	metrics.UpdateSinkPendingLines(0)
	w.mu.Unlock()

	start := time.Now()
	err := w.send(ctx, body)
	metrics.RecordSinkLatency(float64(time.Since(start).Milliseconds()))

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.stats.FailedBatches++
		metrics.RecordSinkError("write")
		w.logger.Error(ctx, "dropping batch", logger.Int("lines", lines), logger.Error(err))
		return err
	}
	w.stats.WrittenLines += uint64(lines)
	metrics.RecordSinkWrite()
	return nil
}

func (w *Writer) send(ctx context.Context, body []byte) error {
	path, params := "/write", map[string]string{"db": w.database, "precision": "ns"}
	if w.bucket != "" {
		path, params = "/api/v2/write", map[string]string{"org": w.org, "bucket": w.bucket, "precision": "ns"}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.retryInterval
	b.MaxInterval = maxRetryInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if attempt > 1 {
			metrics.RecordSinkRetry()
		}
		resp, err := w.client.R().
			SetContext(ctx).
			SetQueryParams(params).
			SetBody(body).
			Post(path)
		if err != nil {
			return struct{}{}, fmt.Errorf("%w: %w", ErrWrite, err)
		}
		if !resp.IsError() {
			return struct{}{}, nil
		}

		err = fmt.Errorf("%w: status %d: %s", ErrWrite, resp.StatusCode(), strings.TrimSpace(resp.String()))
		if retryable(resp.StatusCode()) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(w.maxRetries+1)),
	)
	return err
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// Stats returns a snapshot of the writer counters.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.PendingLines = w.pending
	return s
}

// Close stops the flusher and sends what is left.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()

	close(w.stop)
	if started {
		<-w.done
	}
	return w.Flush(ctx)
}
