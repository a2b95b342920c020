package influx

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/xpmeter/internal/domain/measurement"
	"github.com/okian/xpmeter/pkg/metrics"
)

// Point is a record together with the time it was emitted.
type Point struct {
	Record measurement.Record
	Time   time.Time
}

// MemorySink keeps every written point in memory. It is used when no backend
// is configured and in tests.
type MemorySink struct {
	mu     sync.RWMutex
	points []Point
	now    func() time.Time
}

// NewMemorySink returns an empty sink. A nil clock means time.Now.
func NewMemorySink(now func() time.Time) *MemorySink {
	if now == nil {
		now = time.Now
	}
	return &MemorySink{now: now}
}

// Write stamps recs with the sink clock and stores them. Like the Writer it
// refuses records the line protocol cannot carry and keeps the rest.
func (m *MemorySink) Write(ctx context.Context, recs ...measurement.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ts := m.now()
	var (
		errs []error
		kept int
	)
	m.mu.Lock()
	for _, r := range recs {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%w: %w", ErrEncode, err))
			continue
		}
		m.points = append(m.points, Point{Record: r, Time: ts})
		kept++
	}
	m.mu.Unlock()
	if kept > 0 {
		metrics.RecordSinkWrite()
	}
	if len(errs) > 0 {
		metrics.RecordSinkError("encode")
	}
	return errors.Join(errs...)
}

// Points returns a copy of everything written so far.
func (m *MemorySink) Points() []Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.points)
}

// Lines renders the stored points as line protocol.
func (m *MemorySink) Lines() ([]byte, error) {
	var out []byte
	for _, p := range m.Points() {
		b, err := Encode([]measurement.Record{p.Record}, p.Time)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}

// Len returns the number of stored points.
func (m *MemorySink) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

func (m *MemorySink) Close(context.Context) error { return nil }
