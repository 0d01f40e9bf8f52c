package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Timestamp is the remote store's native timestamp representation.
type Timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

// TimestampFromMillis converts epoch milliseconds to a Timestamp.
func TimestampFromMillis(ms int64) Timestamp {
	return Timestamp{Seconds: ms / 1000, Nanos: int32(ms%1000) * int32(time.Millisecond)}
}

// Millis returns the timestamp as epoch milliseconds.
func (t Timestamp) Millis() int64 {
	return t.Seconds*1000 + int64(t.Nanos)/int64(time.Millisecond)
}

// first returns the first present, non-nil field among keys.
func (d Document) first(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := d[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns the first string field among keys, trimmed.
func (d Document) String(keys ...string) string {
	v, ok := d.first(keys...)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	}
	return ""
}

// Millis returns the first timestamp-like field among keys as epoch
// milliseconds. ok is false if no field could be coerced.
func (d Document) Millis(keys ...string) (int64, bool) {
	v, ok := d.first(keys...)
	if !ok {
		return 0, false
	}
	return toMillis(v)
}

// Decimal returns the first numeric field among keys.
func (d Document) Decimal(keys ...string) (decimal.Decimal, bool) {
	for _, k := range keys {
		v, ok := d[k]
		if !ok || v == nil {
			continue
		}
		if n, ok := toDecimal(v); ok {
			return n, true
		}
	}
	return decimal.Zero, false
}

func toMillis(v any) (int64, bool) {
	switch t := v.(type) {
	case Timestamp:
		return t.Millis(), true
	case *Timestamp:
		if t == nil {
			return 0, false
		}
		return t.Millis(), true
	case time.Time:
		return t.UnixMilli(), true
	case map[string]any:
		return mapMillis(t)
	case Document:
		return mapMillis(t)
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return int64(f), true
		}
		return 0, false
	}
	return toInt64(v)
}

// mapMillis decodes {seconds,nanos} and {_seconds,_nanoseconds} objects.
func mapMillis(m map[string]any) (int64, bool) {
	secs, ok := m["seconds"]
	if !ok {
		secs, ok = m["_seconds"]
	}
	if !ok {
		return 0, false
	}
	s, ok := toInt64(secs)
	if !ok {
		return 0, false
	}
	nanos, ok := m["nanos"]
	if !ok {
		nanos = m["_nanoseconds"]
	}
	n, _ := toInt64(nanos)
	return Timestamp{Seconds: s, Nanos: int32(n)}.Millis(), true
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	}
	if i, ok := toInt64(v); ok {
		return decimal.NewFromInt(i), true
	}
	return decimal.Zero, false
}
