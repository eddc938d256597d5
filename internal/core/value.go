package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Value is a sealed interface over the scalar types a store row can hold.
// Only Null, Integer, Float, and Text implement it. Every consumer that
// switches on Value must handle all four; there is no escape hatch type.
type Value interface {
	sqlValue()
}

// Null represents SQL NULL.
type Null struct{}

func (Null) sqlValue() {}

// Integer represents a 64-bit integer value.
type Integer int64

func (Integer) sqlValue() {}

// Float represents a 64-bit floating point value.
type Float float64

func (Float) sqlValue() {}

// Text represents a textual value. Blob columns are folded into Text.
type Text string

func (Text) sqlValue() {}

// FromDriver converts a value produced by database/sql row scanning into a
// Value. The SQLite driver yields nil, int64, float64, string or []byte;
// bool and time.Time are accepted for callers that bind Go-side values.
func FromDriver(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case int64:
		return Integer(val), nil
	case int:
		return Integer(val), nil
	case float64:
		return Float(val), nil
	case string:
		return Text(val), nil
	case []byte:
		return Text(val), nil
	case bool:
		if val {
			return Integer(1), nil
		}
		return Integer(0), nil
	case time.Time:
		// The layout matches what the driver itself parses, so a value
		// written back into a timestamp column stays readable as a time.
		return Text(val.Format("2006-01-02 15:04:05.999999999-07:00")), nil
	default:
		return nil, fmt.Errorf("unsupported store value type %T", v)
	}
}

// Arg returns the driver-ready form of v for parameter binding.
func Arg(v Value) any {
	switch val := v.(type) {
	case Null:
		return nil
	case Integer:
		return int64(val)
	case Float:
		return float64(val)
	case Text:
		return string(val)
	default:
		return nil
	}
}

// MarshalValue encodes a Value as its natural JSON form: null, a number,
// or a string.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Null:
		return []byte("null"), nil
	case Integer:
		return json.Marshal(int64(val))
	case Float:
		return json.Marshal(float64(val))
	case Text:
		return json.Marshal(string(val))
	default:
		return nil, fmt.Errorf("unknown value type %T", v)
	}
}

// UnmarshalValue decodes a single JSON scalar into a Value. Numbers without
// a fraction or exponent become Integer, all others Float.
func UnmarshalValue(data []byte) (Value, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("empty JSON value")
	}
	switch trimmed[0] {
	case 'n':
		return Null{}, nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return Text(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		if b {
			return Integer(1), nil
		}
		return Integer(0), nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, fmt.Errorf("unsupported JSON value: %s", trimmed)
		}
		return numberValue(n)
	}
}

func numberValue(n json.Number) (Value, error) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		i, err := n.Int64()
		if err == nil {
			return Integer(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("number out of range: %s", s)
	}
	return Float(f), nil
}
