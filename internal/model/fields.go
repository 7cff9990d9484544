package model

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
)

// Fields is an insertion-ordered mapping from key to Value.
// The zero value is an empty, ready to use mapping.
type Fields struct {
	keys []string
	vals map[string]Value
}

// NewFields builds Fields from alternating key/value pairs in order.
func NewFields(pairs ...any) Fields {
	var f Fields
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}
		val, ok := pairs[i+1].(Value)
		if !ok {
			continue
		}
		f.Set(key, val)
	}
	return f
}

// Len returns the number of keys.
func (f Fields) Len() int { return len(f.keys) }

// Keys returns the keys in insertion order.
func (f Fields) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Get returns the value stored under key.
func (f Fields) Get(key string) (Value, bool) {
	v, ok := f.vals[key]
	return v, ok
}

// Set stores val under key. An existing key keeps its position.
func (f *Fields) Set(key string, val Value) {
	if f.vals == nil {
		f.vals = make(map[string]Value)
	}
	if _, exists := f.vals[key]; !exists {
		f.keys = append(f.keys, key)
	}
	f.vals[key] = val
}

// SetIfAbsent stores val only when key is not present yet.
// It reports whether the value was stored.
func (f *Fields) SetIfAbsent(key string, val Value) bool {
	if _, exists := f.vals[key]; exists {
		return false
	}
	f.Set(key, val)
	return true
}

// Range calls fn for each pair in order until fn returns false.
func (f Fields) Range(fn func(key string, val Value) bool) {
	for _, k := range f.keys {
		if !fn(k, f.vals[k]) {
			return
		}
	}
}

// Equal compares keys, order and values.
func (f Fields) Equal(o Fields) bool {
	if len(f.keys) != len(o.keys) {
		return false
	}
	for i, k := range f.keys {
		if o.keys[i] != k {
			return false
		}
		if !f.vals[k].Equal(o.vals[k]) {
			return false
		}
	}
	return true
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := f.vals[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (f *Fields) UnmarshalJSON(data []byte) error {
	v, err := ParseJSONValue(data)
	if err != nil {
		return err
	}
	m, ok := v.AsMap()
	if !ok {
		return fmt.Errorf("model: fields must be a JSON object, got %s", v.Kind())
	}
	*f = m
	return nil
}

// ParseJSONValue decodes one JSON document into a Value, keeping object key order.
func ParseJSONValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, ErrTrailingData
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return NumberFromLiteral(t.String())
	case json.Delim:
		switch t {
		case '{':
			var fields Fields
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("model: object key is %T", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				// Duplicate keys keep the first position and the last value,
				// as when decoding into a Go map.
				fields.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Map(fields), nil
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Array(items...), nil
		}
	}
	return Value{}, fmt.Errorf("model: unexpected JSON token %v", tok)
}
