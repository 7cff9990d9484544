package model

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

// Kind identifies which variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	default:
		return "invalid"
	}
}

// Value is a dynamically typed field value: string, number, bool, null,
// array or nested map. The zero Value is null.
type Value struct {
	kind     Kind
	str      string
	num      float64
	integer  int64
	integral bool
	boolean  bool
	items    []Value
	fields   Fields
}

// Null returns the null value.
func Null() Value { return Value{} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns an integral number value.
func Int(n int64) Value {
	return Value{kind: KindNumber, num: float64(n), integer: n, integral: true}
}

// Float returns a floating point number value.
func Float(f float64) Value { return Value{kind: KindNumber, num: f} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, boolean: b} }

// Array returns an array value holding items.
func Array(items ...Value) Value { return Value{kind: KindArray, items: items} }

// Map returns a nested map value.
func Map(fields Fields) Value { return Value{kind: KindMap, fields: fields} }

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsString() (string, bool) {
	return v.str, v.kind == KindString
}

// AsInt returns the integer form of an integral number.
func (v Value) AsInt() (int64, bool) {
	return v.integer, v.kind == KindNumber && v.integral
}

func (v Value) AsFloat() (float64, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) AsBool() (bool, bool) {
	return v.boolean, v.kind == KindBool
}

func (v Value) AsArray() ([]Value, bool) {
	return v.items, v.kind == KindArray
}

func (v Value) AsMap() (Fields, bool) {
	return v.fields, v.kind == KindMap
}

// Equal reports deep equality. Integral and float numbers with the same
// numeric value are equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == o.str
	case KindNumber:
		if v.integral && o.integral {
			return v.integer == o.integer
		}
		return v.num == o.num
	case KindBool:
		return v.boolean == o.boolean
	case KindArray:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		return v.fields.Equal(o.fields)
	}
	return false
}

// Text renders v the way it would appear in a key=value console line.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return v.str
	case KindNumber:
		if v.integral {
			return strconv.FormatInt(v.integer, 10)
		}
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.boolean)
	default:
		b, err := v.MarshalJSON()
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		if v.integral {
			return []byte(strconv.FormatInt(v.integer, 10)), nil
		}
		if math.IsNaN(v.num) || math.IsInf(v.num, 0) {
			return nil, fmt.Errorf("model: cannot encode %v as JSON", v.num)
		}
		return []byte(strconv.FormatFloat(v.num, 'g', -1, 64)), nil
	case KindBool:
		return []byte(strconv.FormatBool(v.boolean)), nil
	case KindArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := item.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case KindMap:
		return v.fields.MarshalJSON()
	}
	return nil, fmt.Errorf("model: invalid value kind %d", v.kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSONValue(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// NumberFromLiteral converts a JSON number literal, keeping integers integral.
func NumberFromLiteral(lit string) (Value, error) {
	if n, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return Int(n), nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return Value{}, fmt.Errorf("model: invalid number %q: %w", lit, err)
	}
	return Float(f), nil
}

// ErrTrailingData is returned when a JSON document has content after its first value.
var ErrTrailingData = errors.New("model: trailing data after JSON value")
