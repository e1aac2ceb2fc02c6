// Package value holds the JSON values stored in ledger metadata.
//
// Values form a closed set: String, Int, Bool, Array and Object. Floats and
// null are rejected so that every value has exactly one canonical encoding
// (see MarshalCanonical) and hashes identically on every node.
package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over the permitted metadata values.
type Value interface {
	value()
}

// String is a JSON string.
type String string

// Int is a JSON integer. Always int64, never float64.
type Int int64

// Bool is a JSON boolean.
type Bool bool

// Array is a JSON array.
type Array []Value

// Object is a JSON object. Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (String) value() {}
func (Int) value()    {}
func (Bool) value()   {}
func (Array) value()  {}
func (Object) value() {}

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's native string order compares UTF-8 bytes, which differs for
// characters outside the BMP.
func (o Object) SortedKeys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}

// Equal reports whether a and b are structurally equal.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case String:
		bv, ok := b.(String)
		return ok && av == bv
	case Int:
		bv, ok := b.(Int)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv, ok := b.(Object)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	default:
		return a == nil && b == nil
	}
}

// Marshal encodes v as compact JSON with sorted object keys.
func Marshal(v Value) ([]byte, error) {
	return MarshalCanonical(v)
}

// Unmarshal decodes JSON into a Value, rejecting null and floats.
func Unmarshal(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return FromAny(raw)
}

// FromAny converts decoded JSON, YAML or CUE data into a Value.
// Accepted inputs: string, bool, the Go integer kinds, json.Number holding
// an integer, []any, map[string]any, and Values themselves.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is not a metadata value")
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case uint64:
		if val > uint64(1<<63-1) {
			return nil, fmt.Errorf("integer %d out of int64 range", val)
		}
		return Int(val), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are not metadata values: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("integer %s out of int64 range", s)
		}
		return Int(n), nil
	case float64, float32:
		return nil, fmt.Errorf("floats are not metadata values: %v", val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			e, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = e
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			e, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = e
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported metadata value type %T", v)
	}
}

// ToAny converts v back into plain Go data (string, int64, bool, []any,
// map[string]any) for YAML and text rendering.
func ToAny(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	case Array:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = ToAny(e)
		}
		return out
	case Object:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = ToAny(e)
		}
		return out
	default:
		return nil
	}
}
