// Package worker drains the job queue, builds records and hands changed ones
// to the sink.
package worker

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"iter"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/xpmeter/internal/domain/measurement"
	"github.com/okian/xpmeter/internal/domain/model"
	"github.com/okian/xpmeter/pkg/logger"
	"github.com/okian/xpmeter/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 2
	poolShutdownTimeout     = 30 * time.Second
	inboxSize               = 8
)

// Job is what workers read off the queue.
type Job = model.Job

// Builder turns a job into records. A failing group yields an error and the
// sequence continues.
type Builder interface {
	Build(ctx context.Context, job Job) iter.Seq2[measurement.Record, error]
}

// Store keeps the latest record per series and reports whether it changed.
type Store interface {
	Upsert(ctx context.Context, rec measurement.Record) (bool, error)
}

// Sink receives changed records for shipping to the time-series backend.
type Sink interface {
	Write(ctx context.Context, recs ...measurement.Record) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs until stopped.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	builder Builder
	store   Store
	sink    Sink
	name    string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker.
func NewInMemoryWorker(queue Queue, builder Builder, store Store, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		builder:  builder,
		store:    store,
		sink:     sink,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run processes jobs until ctx is done, Shutdown is called, or the queue
// is closed and drained.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.Process(ctx, job); err != nil {
				w.logger.Error(ctx, "job finished with errors",
					logger.String("job", job.ID),
					logger.String("kind", job.Kind.String()),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown stops the worker after the job in hand.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Process builds one job, stores every valid record and forwards the changed
// ones to the sink in a single write. Every build, store and sink failure is
// returned joined.
func (w *InMemoryWorker) Process(ctx context.Context, job Job) error { //nolint:gocritic // hugeParam: jobs travel by value
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	var (
		changed []measurement.Record
		errs    []error
	)
	buildStart := time.Now()
	for rec, err := range w.builder.Build(ctx, job) {
		if err != nil {
			kind := measurement.ErrorKind(err)
			metrics.RecordBuildError(kind)
			metrics.RecordErrorByComponent("worker", kind)
			w.logger.Warn(ctx, "record group skipped",
				logger.String("job", job.ID),
				logger.String("kind", kind),
				logger.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		metrics.RecordRecordBuilt(rec.Series.Measurement)

		// unencodable records never reach the store, so a later identical
		// reading is not mistaken for one already shipped
		if err := rec.Validate(); err != nil {
			metrics.RecordBuildError(measurement.ErrorKind(err))
			w.logger.Warn(ctx, "record dropped", logger.String("job", job.ID), logger.Error(err))
			errs = append(errs, err)
			continue
		}

		upsertStart := time.Now()
		ok, err := w.store.Upsert(ctx, rec)
		metrics.RecordStoreUpsertLatency(float64(time.Since(upsertStart).Microseconds()) / 1000)
		if err != nil {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "store_error")
			errs = append(errs, fmt.Errorf("store %s: %w", rec.Key(), err))
			continue
		}
		if !ok {
			metrics.RecordRecordUnchanged()
			continue
		}
		changed = append(changed, rec)
	}
	metrics.RecordBuildLatency(float64(time.Since(buildStart).Milliseconds()))

	if len(changed) > 0 {
		if err := w.sink.Write(ctx, changed...); err != nil {
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "sink_error")
			errs = append(errs, fmt.Errorf("sink: %w", err))
		}
	}
	metrics.RecordJobProcessed()

	w.logger.Debug(ctx, "job processed",
		logger.String("job", job.ID),
		logger.String("user", job.User()),
		logger.Int("changed", len(changed)),
	)
	return errors.Join(errs...)
}

// Pool manages multiple workers over one queue. Jobs are routed to a worker
// by a hash of their user, so one user's jobs are processed in the order
// they were queued while different users proceed in parallel.
type Pool struct {
	workers []*InMemoryWorker
	inboxes []inbox
	queue   Queue
	logger  logger.Logger
}

// inbox is one worker's private queue.
type inbox chan Job

func (in inbox) Dequeue(context.Context) <-chan Job { return in }

// NewPool creates workerCount workers. A non-positive count scales with the
// number of CPUs.
func NewPool(workerCount int, queue Queue, builder Builder, store Store, sink Sink) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		inboxes: make([]inbox, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.inboxes[i] = make(inbox, inboxSize)
		p.workers[i] = NewInMemoryWorker(p.inboxes[i], builder, store, sink,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every worker and the dispatcher feeding them.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.dispatch(ctx)
}

// route picks the worker owning user.
func (p *Pool) route(user string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(user))
	return int(h.Sum32() % uint32(len(p.inboxes)))
}

// dispatch moves jobs from the shared queue to their user's worker until the
// queue is closed and drained, then closes every inbox.
func (p *Pool) dispatch(ctx context.Context) {
	defer func() {
		for _, in := range p.inboxes {
			close(in)
		}
	}()

	jobs := p.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			select {
			case p.inboxes[p.route(job.User())] <- job:
			case <-ctx.Done():
				metrics.RecordWorkerError()
				metrics.RecordErrorByComponent("worker", "dropped")
				p.logger.Warn(ctx, "job dropped on cancellation",
					logger.String("job", job.ID),
					logger.String("user", job.User()),
				)
				return
			}
		}
	}
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not drain: %w", timedOut, shutdownCtx.Err())
	}
	return nil
}
