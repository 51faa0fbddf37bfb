package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"unicode/utf16"
)

// Value is a sealed interface for column values.
// Only Null, String, Int and Bool implement it.
// NO Float - floats are forbidden (they break canonical hashing).
type Value interface {
	value() // Sealed
}

// Null is an explicit SQL NULL.
type Null struct{}

func (Null) value() {}

// String is a text column value.
type String string

func (String) value() {}

// Int is an integer column value. Always int64.
type Int int64

func (Int) value() {}

// Bool is a boolean column value.
type Bool bool

func (Bool) value() {}

// Row maps column names to values. Used for stored rows, SET assignments
// and WHERE filters.
// Use SortedKeys() for deterministic iteration.
type Row map[string]Value

// SortedKeys returns keys in RFC 8785 order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 byte order, which differs for
// supplementary-plane characters.
func (r Row) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUTF16)
	return keys
}

func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// ParseValue interprets a command-line literal.
//
//	"null"  → Null
//	"true"  → Bool(true)
//	"42"    → Int(42)
//	"'42'"  → String("42") (single quotes force text)
//	other   → String
func ParseValue(s string) Value {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return String(s[1 : len(s)-1])
	}
	switch s {
	case "null":
		return Null{}
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(n)
	}
	return String(s)
}

// FromAny converts a decoded YAML/JSON scalar into a Value.
// Ints of any width are accepted; floats are rejected unless integral.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
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
	case uint64:
		return Int(int64(val)), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("floats are forbidden: %s", val)
		}
		return Int(n), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("floats are forbidden: %v", val)
		}
		return Int(int64(val)), nil
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// RowFromMap converts a decoded map into a Row.
func RowFromMap(m map[string]any) (Row, error) {
	row := make(Row, len(m))
	for k, v := range m {
		val, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", k, err)
		}
		row[k] = val
	}
	return row, nil
}

// Native returns the plain Go value (nil, string, int64, bool).
// Used for SQL parameters and display.
func Native(v Value) any {
	switch val := v.(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Bool:
		return bool(val)
	default:
		return nil
	}
}

// MarshalJSON writes the row with sorted keys. Not canonical: use
// MarshalCanonical for hashing.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(Native(r[k]))
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, rejecting floats and nested values.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	row, err := RowFromMap(raw)
	if err != nil {
		return err
	}
	*r = row
	return nil
}
