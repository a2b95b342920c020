// Package influx ships records to an InfluxDB compatible backend using the
// line protocol.
package influx

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/influxdata/line-protocol/v2/lineprotocol"

	"github.com/okian/xpmeter/internal/domain/measurement"
)

// Encode renders recs as line protocol stamped with ts at nanosecond
// precision. Tags are written in key order as the protocol requires. A record
// that cannot be encoded is left out and reported; the other lines are still
// returned.
func Encode(recs []measurement.Record, ts time.Time) ([]byte, error) {
	var (
		out  []byte
		errs []error
	)
	for _, rec := range recs {
		line, err := encodeLine(rec, ts)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, line...)
	}
	return out, errors.Join(errs...)
}

func encodeLine(rec measurement.Record, ts time.Time) ([]byte, error) {
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	tags := slices.Clone(rec.Series.Tags)
	slices.SortStableFunc(tags, func(a, b measurement.Tag) int {
		return strings.Compare(a.Key, b.Key)
	})

	var enc lineprotocol.Encoder
	enc.SetPrecision(lineprotocol.Nanosecond)
	enc.StartLine(rec.Series.Measurement)
	for _, t := range tags {
		enc.AddTag(t.Key, t.Value)
	}
	for _, f := range rec.Fields {
		v, ok := lineprotocol.NewValue(f.Value.Interface())
		if !ok {
			return nil, fmt.Errorf("%w: %s field %q has unsupported value %v", ErrEncode, rec.Key(), f.Key, f.Value)
		}
		enc.AddField(f.Key, v)
	}
	enc.EndLine(ts)

	if err := enc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEncode, rec.Key(), err)
	}
	return enc.Bytes(), nil
}
