// Package lattice answers two questions about a raw value: can it be
// represented as a semantic type, and what is it once converted. Functions
// here are pure and never panic.
package lattice

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"ingest/internal/schema"
)

// CoercionError is returned by Coerce when a value cannot be represented as
// the requested type.
type CoercionError struct {
	Value any
	Type  schema.Type
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("lattice: cannot coerce %#v to %s", e.Value, e.Type)
}

// IsMissing reports whether v is null-like: nil, an empty or blank string,
// the tokens nan/none/null in any case, or a NaN float.
func IsMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return missingText(x)
	case []byte:
		return missingText(string(x))
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	default:
		return false
	}
}

func missingText(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	switch strings.ToLower(s) {
	case "nan", "none", "null":
		return true
	}
	return false
}

// CanRepresent reports whether v can be converted to t.
func CanRepresent(v any, t schema.Type) bool {
	switch t {
	case schema.Int:
		_, ok := toInt(v)
		return ok
	case schema.Float:
		_, ok := toFloat(v)
		return ok
	case schema.Datetime:
		_, ok := toTime(v)
		return ok
	case schema.String:
		return true
	default:
		return false
	}
}

// Coerce converts v to t: int64 for Int, float64 for Float, time.Time in UTC for Datetime and canonical text for
// String.
func Coerce(v any, t schema.Type) (any, error) {
	switch t {
	case schema.Int:
		n, ok := toInt(v)
		if !ok {
			return nil, &CoercionError{Value: v, Type: t}
		}
		return n, nil
	case schema.Float:
		f, ok := toFloat(v)
		if !ok {
			return nil, &CoercionError{Value: v, Type: t}
		}
		return f, nil
	case schema.Datetime:
		ts, ok := toTime(v)
		if !ok {
			return nil, &CoercionError{Value: v, Type: t}
		}
		return ts, nil
	case schema.String:
		return Text(v), nil
	default:
		return nil, &CoercionError{Value: v, Type: t}
	}
}

// Text renders v as canonical text. Nil renders as "".
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case []byte:
		return strings.TrimSpace(string(x))
	case time.Time:
		return FormatDatetime(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// toFloat parses v as a finite float64. Booleans are not numbers.
func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		f = float64(x)
	case float64:
		f = x
	case json.Number:
		p, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	case []byte:
		return toFloat(string(x))
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// toInt converts v to int64 when it is integral and inside the int64 range.
// Text goes through the float value, so "1e3" is 1000.
func toInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint:
		return int64(x), uint64(x) <= math.MaxInt64
	case uint64:
		return int64(x), x <= math.MaxInt64
	}
	f, ok := toFloat(v)
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
	if !ok || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// toTime accepts time.Time values and text matching a datetime layout.
// Numbers are never dates.
func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), true
	case *time.Time:
		if x == nil {
			return time.Time{}, false
		}
		return x.UTC(), true
	case string:
		return ParseDatetime(x)
	case []byte:
		return ParseDatetime(string(x))
	default:
		return time.Time{}, false
	}
}

// TypedNumber reports whether v arrived as an already-typed number rather
// than text. Such values never count as datetime votes.
func TypedNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	default:
		return false
	}
}
