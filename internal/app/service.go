// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/xpmeter/internal/adapters/catalog"
	"github.com/okian/xpmeter/internal/adapters/influx"
	jobqueue "github.com/okian/xpmeter/internal/adapters/mq/queue"
	workerpool "github.com/okian/xpmeter/internal/adapters/mq/worker"
	"github.com/okian/xpmeter/internal/adapters/repository"
	"github.com/okian/xpmeter/internal/domain/dedupe"
	"github.com/okian/xpmeter/internal/domain/killcount"
	"github.com/okian/xpmeter/internal/domain/measurement"
	"github.com/okian/xpmeter/internal/domain/model"
	"github.com/okian/xpmeter/internal/domain/snapshot"
	"github.com/okian/xpmeter/internal/domain/types"
	"github.com/okian/xpmeter/pkg/logger"
	"github.com/okian/xpmeter/pkg/metrics"
)

// Sink receives the records that changed.
type Sink interface {
	Write(ctx context.Context, recs ...measurement.Record) error
	Close(ctx context.Context) error
}

// Service implements the API dependencies for the measurement pipeline.
type Service struct {
	mu sync.RWMutex

	// Core components
	series     repository.Store
	deduper    dedupe.Deduper
	jobQueue   jobqueue.Queue
	workerPool *workerpool.Pool
	items      measurement.ItemLookup
	sink       Sink

	// Configuration
	workerCount int
	queueSize   int
	dedupeSize  int
	shardCount  int
	now         func() time.Time

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the job queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the snapshot id cache. Zero or less keeps
// every id.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		s.dedupeSize = size
	}
}

// WithShardCount sets the number of series store shards.
func WithShardCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.shardCount = n
		}
	}
}

// WithItemLookup sets where item definitions and prices come from.
func WithItemLookup(items measurement.ItemLookup) Option {
	return func(s *Service) {
		if items != nil {
			s.items = items
		}
	}
}

// WithSink sets where changed records are written.
func WithSink(sink Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithClock overrides the time source used for received-at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration. Without
// WithItemLookup the built-in catalog is used; without WithSink records are
// kept in memory.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount: runtime.NumCPU() * 2,
		queueSize:   10_000,
		dedupeSize:  dedupe.DefaultMaxSize,
		shardCount:  16,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.items == nil {
		c, err := catalog.Default()
		if err != nil {
			return fmt.Errorf("load built-in catalog: %w", err)
		}
		s.items = catalog.NewValuer(c)
	}
	if s.sink == nil {
		s.sink = influx.NewMemorySink(s.now)
		s.logger.Info(ctx, "no backend configured, keeping records in memory")
	}
	if starter, ok := s.sink.(interface{ Start(context.Context) }); ok {
		starter.Start(ctx)
	}

	s.logger.Info(ctx, "starting measurement service...")

	s.series = repository.NewMemoryStore(ctx,
		repository.WithShardCount(s.shardCount),
		repository.WithClock(s.now),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.jobQueue = jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.queueSize))

	s.workerPool = workerpool.NewPool(s.workerCount, s.jobQueue, recordBuilder{items: s.items}, s.series, s.sink)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "measurement service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)

	return nil
}

// Stop drains queued jobs, flushes the sink and releases the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping measurement service...")

	var errs []error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.sink.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close sink: %w", err))
	}
	if closer, ok := s.series.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	s.started = false
	s.logger.Info(ctx, "measurement service stopped")
	return errors.Join(errs...)
}

// SeenAndRecord atomically checks if a snapshot id was seen and records it
// if not. Returns true if it was already seen.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordSnapshotDuplicate()
	}
	return seen
}

// Unrecord removes a snapshot id from the seen list, allowing it to be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	s.deduper.Unrecord(ctx, id)
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// SubmitSnapshot validates snap, assigns an id when it has none and queues it.
// It reports duplicate when the id was already accepted.
func (s *Service) SubmitSnapshot(ctx context.Context, snap *snapshot.Snapshot) (duplicate bool, err error) {
	if !s.isStarted() {
		return false, ErrNotStarted
	}
	if err := snap.Validate(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	id := snap.EnsureID()
	metrics.RecordSnapshotReceived()

	if s.SeenAndRecord(ctx, id) {
		s.logger.Debug(ctx, "duplicate snapshot, skipping", logger.String("snapshot", id))
		return true, nil
	}
	if err := s.enqueue(ctx, model.NewSnapshotJob(snap, s.now())); err != nil {
		s.Unrecord(ctx, id)
		return false, err
	}
	return false, nil
}

// SubmitKillCount queues a single kill-count reading.
func (s *Service) SubmitKillCount(ctx context.Context, user, boss string, count int64) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	switch {
	case strings.TrimSpace(user) == "":
		return fmt.Errorf("%w: missing user", ErrInvalidInput)
	case strings.TrimSpace(boss) == "":
		return fmt.Errorf("%w: missing boss", ErrInvalidInput)
	case !measurement.ValidLabel(user):
		return fmt.Errorf("%w: user %q is not a valid tag value", ErrInvalidInput, user)
	case !measurement.ValidLabel(boss):
		return fmt.Errorf("%w: boss %q is not a valid tag value", ErrInvalidInput, boss)
	case count < 0:
		return fmt.Errorf("%w: negative count %d", ErrInvalidInput, count)
	}
	metrics.RecordKillCountReceived()
	return s.enqueue(ctx, model.NewKillCountJob(uuid.NewString(), user, boss, count, s.now()))
}

// HandleChat queues the kill count carried by a chat message. Messages
// without one are ignored and reported as not accepted.
func (s *Service) HandleChat(ctx context.Context, user, message string) (bool, error) {
	reading, err := killcount.Parse(message)
	if errors.Is(err, killcount.ErrNoKillCount) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if err := s.SubmitKillCount(ctx, user, reading.Boss, reading.Count); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) enqueue(ctx context.Context, job model.Job) error { //nolint:gocritic // hugeParam: jobs travel by value
	err := s.jobQueue.Enqueue(ctx, job)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jobqueue.ErrFull), errors.Is(err, jobqueue.ErrClosed):
		s.logger.Warn(ctx, "job rejected",
			logger.String("job", job.ID),
			logger.String("kind", job.Kind.String()),
			logger.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrBackpressure, err)
	default:
		return err
	}
}

// Series returns the latest record of every series matching measurement,
// sorted by series key.
func (s *Service) Series(ctx context.Context, measurementName string, limit int) ([]types.SeriesEntry, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	entries, err := s.series.List(ctx, repository.Filter{Measurement: measurementName}, limit)
	if err != nil {
		return nil, err
	}
	return toAPI(entries), nil
}

// UserSeries returns the latest records of one user.
func (s *Service) UserSeries(ctx context.Context, user string) ([]types.SeriesEntry, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	entries, err := s.series.ByUser(ctx, user)
	if err != nil {
		return nil, err
	}
	return toAPI(entries), nil
}

func toAPI(entries []repository.Entry) []types.SeriesEntry {
	out := make([]types.SeriesEntry, len(entries))
	for i, e := range entries {
		out[i] = types.NewSeriesEntry(e.Record, e.UpdatedAt)
	}
	return out
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.jobQueue.Len(ctx)
		tracked := s.series.Count(ctx)

		stats["queueLength"] = queueLen
		stats["seriesTracked"] = tracked
		stats["seenSnapshots"] = s.deduper.Size()
		if w, ok := s.sink.(interface{ Stats() influx.Stats }); ok {
			stats["sink"] = w.Stats()
		}

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateSeriesTracked(tracked)
		metrics.UpdateWorkerCount(s.workerCount)
	}

	return stats
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
