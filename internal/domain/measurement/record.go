// Package measurement builds tagged time-series records from game state.
//
// A Record is a Series (measurement name plus ordered tags) and an ordered,
// non-empty field set. Records carry no timestamp; the sink stamps them when
// they are emitted.
package measurement

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Measurement names.
const (
	SeriesSkill     = "rs_skill"
	SeriesInventory = "rs_inventory"
	SeriesSelf      = "rs_self"
	SeriesSelfLoc   = "rs_self_loc"
	SeriesKillCount = "rs_killcount"
)

// Kind tells which member of a Value is set.
type Kind uint8

const (
	KindInt Kind = iota
	KindFloat
	KindString
)

// Value is a field value: a 64-bit integer, a float, or a string.
type Value struct {
	kind Kind
	i    int64
	f    float64
	s    string
}

// Int returns an integer value.
func Int(v int64) Value { return Value{kind: KindInt, i: v} }

// Float returns a float value.
func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

// String returns a string value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Kind reports the value's kind.
func (v Value) Kind() Kind { return v.kind }

// IntValue returns the integer payload; zero for other kinds.
func (v Value) IntValue() int64 { return v.i }

// FloatValue returns the float payload; integers are converted.
func (v Value) FloatValue() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}

// StringValue returns the string payload; empty for numeric kinds.
func (v Value) StringValue() string { return v.s }

// Interface returns the payload as int64, float64 or string.
func (v Value) Interface() any {
	switch v.kind {
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	default:
		return v.i
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	default:
		return strconv.FormatInt(v.i, 10) + "i"
	}
}

// Tag is one series tag.
type Tag struct {
	Key   string
	Value string
}

// TagSet is an ordered list of tags. Setting an existing key replaces its
// value in place.
type TagSet []Tag

// With returns a copy of t with key set to value.
func (t TagSet) With(key, value string) TagSet {
	out := make(TagSet, len(t), len(t)+1)
	copy(out, t)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = value
			return out
		}
	}
	return append(out, Tag{Key: key, Value: value})
}

// Get returns the value for key.
func (t TagSet) Get(key string) (string, bool) {
	for _, tag := range t {
		if tag.Key == key {
			return tag.Value, true
		}
	}
	return "", false
}

// Field is one named value.
type Field struct {
	Key   string
	Value Value
}

// FieldSet is an ordered list of fields.
type FieldSet []Field

// Get returns the value for key.
func (f FieldSet) Get(key string) (Value, bool) {
	for _, field := range f {
		if field.Key == key {
			return field.Value, true
		}
	}
	return Value{}, false
}

// Map returns the fields keyed by name with payloads as int64, float64 or string.
func (f FieldSet) Map() map[string]any {
	out := make(map[string]any, len(f))
	for _, field := range f {
		out[field.Key] = field.Value.Interface()
	}
	return out
}

// Equal reports whether both sets hold the same keys and values in the same order.
func (f FieldSet) Equal(other FieldSet) bool {
	if len(f) != len(other) {
		return false
	}
	for i := range f {
		if f[i] != other[i] {
			return false
		}
	}
	return true
}

// fieldsBuilder accumulates fields, replacing values for repeated keys.
type fieldsBuilder struct {
	fields FieldSet
	index  map[string]int
}

func (b *fieldsBuilder) set(key string, v Value) *fieldsBuilder {
	if b.index == nil {
		b.index = make(map[string]int)
	}
	if i, ok := b.index[key]; ok {
		b.fields[i].Value = v
		return b
	}
	b.index[key] = len(b.fields)
	b.fields = append(b.fields, Field{Key: key, Value: v})
	return b
}

func (b *fieldsBuilder) int(key string, v int64) *fieldsBuilder { return b.set(key, Int(v)) }

func (b *fieldsBuilder) add(key string, delta int64) *fieldsBuilder {
	if i, ok := b.index[key]; ok {
		b.fields[i].Value = Int(b.fields[i].Value.IntValue() + delta)
		return b
	}
	return b.int(key, delta)
}

// Series identifies a stream of records.
type Series struct {
	Measurement string
	Tags        TagSet
}

// Key returns the stable identity of the series: the measurement followed by
// its tags in order, e.g. "rs_skill,user=zezima,skill=ATTACK".
func (s Series) Key() string {
	var b strings.Builder
	b.WriteString(s.Measurement)
	for _, t := range s.Tags {
		b.WriteByte(',')
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	return b.String()
}

// Record is one observation of a series.
type Record struct {
	Series Series
	Fields FieldSet
}

// Key returns the series key.
func (r Record) Key() string { return r.Series.Key() }

func (r Record) String() string {
	parts := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		parts[i] = f.Key + "=" + f.Value.String()
	}
	return fmt.Sprintf("%s %s", r.Key(), strings.Join(parts, ","))
}

// ValidLabel reports whether s can be used as a measurement name, tag key,
// tag value or field key: non-empty UTF-8 without ASCII control characters
// and without a trailing backslash.
func ValidLabel(s string) bool {
	if s == "" || !utf8.ValidString(s) || s[len(s)-1] == '\\' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return false
		}
	}
	return true
}

// Validate checks that r can be written as one line-protocol point.
func (r Record) Validate() error {
	if !ValidLabel(r.Series.Measurement) {
		return fmt.Errorf("%w: measurement %q", ErrInvalidRecord, r.Series.Measurement)
	}
	for _, t := range r.Series.Tags {
		if !ValidLabel(t.Key) || !ValidLabel(t.Value) {
			return fmt.Errorf("%w: tag %s=%q", ErrInvalidRecord, t.Key, t.Value)
		}
	}
	if len(r.Fields) == 0 {
		return fmt.Errorf("%w: %s has no fields", ErrInvalidRecord, r.Key())
	}
	for _, f := range r.Fields {
		if !ValidLabel(f.Key) {
			return fmt.Errorf("%w: field key %q", ErrInvalidRecord, f.Key)
		}
		switch f.Value.Kind() {
		case KindString:
			if !utf8.ValidString(f.Value.StringValue()) {
				return fmt.Errorf("%w: field %s is not UTF-8", ErrInvalidRecord, f.Key)
			}
		case KindFloat:
			if v := f.Value.FloatValue(); math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: field %s is %v", ErrInvalidRecord, f.Key, v)
			}
		}
	}
	return nil
}
