package mediakit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
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
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a schema-flexible prop value: a primitive, an array of values or
// an object of values. The zero Value is null.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	arr  []Value
	obj  map[string]Value
}

func Null() Value                { return Value{} }
func String(s string) Value      { return Value{kind: KindString, str: s} }
func Number(f float64) Value     { return Value{kind: KindNumber, num: f} }
func Int(i int) Value            { return Value{kind: KindNumber, num: float64(i)} }
func Bool(b bool) Value          { return Value{kind: KindBool, b: b} }
func Array(items ...Value) Value { return Value{kind: KindArray, arr: cloneValues(items)} }

// Object builds an object value; the map is copied.
func Object(fields map[string]Value) Value {
	return Value{kind: KindObject, obj: cloneFields(fields)}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsString returns the string payload when v holds a string.
func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

// AsNumber returns the numeric payload when v holds a number.
func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == KindNumber }

// AsBool returns the boolean payload when v holds a bool.
func (v Value) AsBool() (bool, bool) { return v.b, v.kind == KindBool }

// Items returns a copy of the array payload, or nil.
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return cloneValues(v.arr)
}

// Fields returns a copy of the object payload, or nil.
func (v Value) Fields() map[string]Value {
	if v.kind != KindObject {
		return nil
	}
	return cloneFields(v.obj)
}

// Text renders the value the way it appears in a text node or form control.
func (v Value) Text() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// Clone returns a deep copy.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		return Value{kind: KindArray, arr: cloneValues(v.arr)}
	case KindObject:
		return Value{kind: KindObject, obj: cloneFields(v.obj)}
	default:
		return v
	}
}

// Equal reports deep equality.
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
		return v.num == o.num
	case KindBool:
		return v.b == o.b
	case KindArray:
		if len(v.arr) != len(o.arr) {
			return false
		}
		for i := range v.arr {
			if !v.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case KindObject:
		if len(v.obj) != len(o.obj) {
			return false
		}
		for k, a := range v.obj {
			b, ok := o.obj[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindArray:
		if v.arr == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.arr)
	case KindObject:
		var buf bytes.Buffer
		buf.WriteByte('{')
		keys := make([]string, 0, len(v.obj))
		for k := range v.obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			val, err := v.obj[k].MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("mediakit: unknown value kind %d", v.kind)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromAny converts decoded JSON (or plain Go primitives) into a Value.
func FromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t.Clone(), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("mediakit: bad number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Number(float64(t)), nil
	case int64:
		return Number(float64(t)), nil
	case []any:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			parsed, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, parsed)
		}
		return Value{kind: KindArray, arr: items}, nil
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			parsed, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			fields[k] = parsed
		}
		return Value{kind: KindObject, obj: fields}, nil
	default:
		return Value{}, fmt.Errorf("mediakit: unsupported value type %T", raw)
	}
}

func cloneValues(items []Value) []Value {
	if items == nil {
		return nil
	}
	out := make([]Value, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}

func cloneFields(fields map[string]Value) map[string]Value {
	if fields == nil {
		return nil
	}
	out := make(map[string]Value, len(fields))
	for k, item := range fields {
		out[k] = item.Clone()
	}
	return out
}
