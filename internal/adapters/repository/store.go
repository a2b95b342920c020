// Package repository keeps the latest record of every series in memory.
package repository

import (
	"context"
	"time"

	"github.com/okian/xpmeter/internal/domain/measurement"
)

// Entry is the latest stored record of one series.
type Entry struct {
	Record    measurement.Record
	UpdatedAt time.Time
	// Updates counts how many times the fields changed, including the first write.
	Updates int64
}

// Filter narrows List results. Empty members match everything.
type Filter struct {
	Measurement string
	User        string
}

func (f Filter) match(rec measurement.Record) bool {
	if f.Measurement != "" && rec.Series.Measurement != f.Measurement {
		return false
	}
	if f.User != "" {
		if u, _ := rec.Series.Tags.Get("user"); u != f.User {
			return false
		}
	}
	return true
}

// Store provides read/write access to the latest series state.
type Store interface {
	// Upsert stores rec as the latest value of its series. It returns false
	// when the stored fields are already identical.
	Upsert(ctx context.Context, rec measurement.Record) (bool, error)

	// Get returns the entry for a series key or ErrNotFound.
	Get(ctx context.Context, key string) (Entry, error)

	// List returns up to limit entries matching filter, sorted by series key.
	List(ctx context.Context, filter Filter, limit int) ([]Entry, error)

	// ByUser returns every entry tagged with user, sorted by series key.
	// Returns ErrNotFound when the user has no series.
	ByUser(ctx context.Context, user string) ([]Entry, error)

	// Count returns the number of series tracked.
	Count(ctx context.Context) int
}
