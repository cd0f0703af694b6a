package schema

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// AttributeType is the native value type of an attribute.
type AttributeType int

const (
	// Transformable attributes accept any native value.
	Transformable AttributeType = iota
	String
	Integer
	Float
	Boolean
	Date
	Binary
)

var attributeTypeNames = map[AttributeType]string{
	Transformable: "transformable",
	String:        "string",
	Integer:       "integer",
	Float:         "float",
	Boolean:       "boolean",
	Date:          "date",
	Binary:        "binary",
}

func (t AttributeType) String() string {
	if name, ok := attributeTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("AttributeType(%d)", int(t))
}

// ParseAttributeType parses the lowercase type names used in model files.
func ParseAttributeType(s string) (AttributeType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	switch name {
	case "", "transformable", "any":
		return Transformable, nil
	case "int", "int64":
		return Integer, nil
	case "double", "float64":
		return Float, nil
	case "bool":
		return Boolean, nil
	case "time", "datetime":
		return Date, nil
	case "bytes", "data":
		return Binary, nil
	}
	for t, n := range attributeTypeNames {
		if n == name {
			return t, nil
		}
	}
	return Transformable, fmt.Errorf("%w: unknown attribute type %q", ErrInvalidModel, s)
}

// Coerce converts v into the canonical Go representation of t: string,
// int64, float64, bool, time.Time or []byte. It reports false when v cannot
// represent a value of type t. A nil v is returned unchanged.
func (t AttributeType) Coerce(v any) (any, bool) {
	if v == nil {
		return nil, true
	}
	switch t {
	case Transformable:
		return v, true
	case String:
		s, ok := v.(string)
		return s, ok
	case Integer:
		return toInt64(v)
	case Float:
		return toFloat64(v)
	case Boolean:
		b, ok := v.(bool)
		return b, ok
	case Date:
		return toTime(v)
	case Binary:
		switch b := v.(type) {
		case []byte:
			return b, true
		case string:
			out, err := base64.StdEncoding.DecodeString(b)
			if err != nil {
				return nil, false
			}
			return out, true
		}
	}
	return nil, false
}

func toInt64(v any) (any, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return nil, false
		}
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return nil, false
		}
		return int64(n), true
	case float32:
		return toInt64(float64(n))
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return nil, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return nil, false
		}
		return toInt64(f)
	}
	return nil, false
}

func toFloat64(v any) (any, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	}
	if i, ok := toInt64(v); ok {
		return float64(i.(int64)), true
	}
	return nil, false
}

func toTime(v any) (any, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, true
	case string:
		ts, err := time.Parse(time.RFC3339Nano, d)
		if err != nil {
			return nil, false
		}
		return ts, true
	}
	if f, ok := toFloat64(v); ok {
		sec, frac := math.Modf(f.(float64))
		return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
	}
	return nil, false
}
