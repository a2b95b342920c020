// Package types contains common types used across the application
package types

import (
	"time"

	"github.com/okian/xpmeter/internal/domain/measurement"
)

// SeriesEntry is the API view of the latest record of one series.
type SeriesEntry struct {
	Key         string            `json:"key"`
	Measurement string            `json:"measurement"`
	Tags        map[string]string `json:"tags"`
	Fields      map[string]any    `json:"fields"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewSeriesEntry converts a stored record.
func NewSeriesEntry(rec measurement.Record, updatedAt time.Time) SeriesEntry {
	tags := make(map[string]string, len(rec.Series.Tags))
	for _, t := range rec.Series.Tags {
		tags[t.Key] = t.Value
	}
	return SeriesEntry{
		Key:         rec.Key(),
		Measurement: rec.Series.Measurement,
		Tags:        tags,
		Fields:      rec.Fields.Map(),
		UpdatedAt:   updatedAt,
	}
}
