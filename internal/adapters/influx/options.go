package influx

import (
	"time"

	"github.com/okian/xpmeter/pkg/logger"
)

// Option applies a configuration option to the Writer.
type Option func(*Writer)

// WithV2 targets the /api/v2/write endpoint with token auth.
func WithV2(org, bucket, token string) Option {
	return func(w *Writer) {
		w.org, w.bucket, w.token = org, bucket, token
	}
}

// WithV1 targets the /write endpoint, with basic auth when username is set.
func WithV1(database, username, password string) Option {
	return func(w *Writer) {
		w.database, w.username, w.password = database, username, password
	}
}

// WithBatchSize sets how many pending lines trigger a flush.
func WithBatchSize(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithFlushInterval sets the periodic flush interval.
func WithFlushInterval(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.flushInterval = d
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// WithMaxRetries sets how many times a failed batch is retried.
func WithMaxRetries(n int) Option {
	return func(w *Writer) {
		if n >= 0 {
			w.maxRetries = n
		}
	}
}

// WithRetryInterval sets the first backoff delay.
func WithRetryInterval(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.retryInterval = d
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}
