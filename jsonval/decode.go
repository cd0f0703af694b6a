package jsonval

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

// ErrUnsupported is returned by FromAny for host values with no JSON form.
var ErrUnsupported = errors.New("jsonval: unsupported value")

// Parse decodes a single JSON document. Number literals keep their text.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, errors.New("decode json: unexpected data after top-level value")
	}
	return FromAny(raw)
}

// MustParse is like Parse but panics on malformed input. Intended for literals.
func MustParse(s string) Value {
	v, err := Parse([]byte(s))
	if err != nil {
		panic(err)
	}
	return v
}

// FromAny converts an already-parsed host value into a Value. Besides the
// encoding/json shapes it accepts every Go integer and float kind, time.Time
// (RFC 3339 text), []byte (base64 text) and Value, Object and Array.
func FromAny(v any) (Value, error) {
	switch t := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case Object:
		return t.Value(), nil
	case Array:
		return t.Value(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		if _, err := strconv.ParseFloat(string(t), 64); err != nil {
			return Value{}, fmt.Errorf("%w: number %q", ErrUnsupported, t)
		}
		return Number(t), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return Value{}, fmt.Errorf("%w: %v", ErrUnsupported, t)
		}
		return Float(t), nil
	case float32:
		return FromAny(float64(t))
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Number(json.Number(strconv.FormatUint(uint64(t), 10))), nil
	case uint8:
		return Int(int64(t)), nil
	case uint16:
		return Int(int64(t)), nil
	case uint32:
		return Int(int64(t)), nil
	case uint64:
		return Number(json.Number(strconv.FormatUint(t, 10))), nil
	case time.Time:
		return String(t.Format(time.RFC3339Nano)), nil
	case []byte:
		return String(base64.StdEncoding.EncodeToString(t)), nil
	case fmt.Stringer:
		return String(t.String()), nil
	case map[string]any:
		obj := make(Object, len(t))
		for k, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("key %q: %w", k, err)
			}
			obj[k] = ev
		}
		return obj.Value(), nil
	case map[string]Value:
		return Object(t).Value(), nil
	case []any:
		arr := make(Array, len(t))
		for i, e := range t {
			ev, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			arr[i] = ev
		}
		return arr.Value(), nil
	case []Value:
		return Array(t).Value(), nil
	case []string:
		arr := make(Array, len(t))
		for i, e := range t {
			arr[i] = String(e)
		}
		return arr.Value(), nil
	}
	return Value{}, fmt.Errorf("%w: %T", ErrUnsupported, v)
}
