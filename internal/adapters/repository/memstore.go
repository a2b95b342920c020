package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/okian/xpmeter/internal/domain/measurement"
	"github.com/okian/xpmeter/pkg/metrics"
)

const (
	defaultShardCount            = 16
	defaultMetricsUpdateInterval = 5 * time.Second
)

type shard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// MemoryStore is a Store sharded by series key hash.
type MemoryStore struct {
	shards                []*shard
	shardCount            int
	metricsUpdateInterval time.Duration
	now                   func() time.Time

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs a store and starts its metrics updater, which
// runs until ctx is done or Close is called.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		shardCount:            defaultShardCount,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		now:                   time.Now,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.shards = make([]*shard, s.shardCount)
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*Entry)}
	}

	s.startMetricsUpdater(ctx)
	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(_ context.Context, rec measurement.Record) (bool, error) {
	if rec.Series.Measurement == "" || len(rec.Fields) == 0 {
		return false, fmt.Errorf("%w: %q", ErrInvalidRecord, rec.Key())
	}
	key := rec.Key()
	sh := s.shardFor(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	prev, ok := sh.entries[key]
	if ok && prev.Record.Fields.Equal(rec.Fields) {
		return false, nil
	}
	e := &Entry{Record: rec, UpdatedAt: s.now(), Updates: 1}
	if ok {
		e.Updates = prev.Updates + 1
	}
	sh.entries[key] = e
	return true, nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (Entry, error) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	e, ok := sh.entries[key]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return *e, nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, filter Filter, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}
	out := s.collect(filter)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ByUser implements Store.
func (s *MemoryStore) ByUser(_ context.Context, user string) ([]Entry, error) {
	out := s.collect(Filter{User: user})
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, user)
	}
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.entries)
		sh.mu.RUnlock()
	}
	return n
}

// Close stops the background metrics updater.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) collect(filter Filter) []Entry {
	var out []Entry
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, e := range sh.entries {
			if filter.match(e.Record) {
				out = append(out, *e)
			}
		}
		sh.mu.RUnlock()
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return strings.Compare(a.Record.Key(), b.Record.Key())
	})
	return out
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateSeriesTracked(s.Count(ctx))
			}
		}
	}()
}
