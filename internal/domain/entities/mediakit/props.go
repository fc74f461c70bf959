package mediakit

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Field is one key/value pair used to build Props in order.
type Field struct {
	Key   string
	Value Value
}

// F is shorthand for a Field literal.
func F(key string, value Value) Field { return Field{Key: key, Value: value} }

// Props is the ordered field bag of a component. Insertion order is kept for
// serialization; equality ignores it. The zero Props is empty and usable.
type Props struct {
	m *orderedmap.OrderedMap[string, Value]
}

// NewProps builds Props from fields; later duplicates overwrite earlier ones
// in place.
func NewProps(fields ...Field) Props {
	p := Props{m: orderedmap.New[string, Value]()}
	for _, f := range fields {
		p.m.Set(f.Key, f.Value)
	}
	return p
}

// PropsFromMap converts a plain map. Keys are taken in the order given by keys
// when provided, otherwise in map iteration order.
func PropsFromMap(fields map[string]Value, keys ...string) Props {
	p := NewProps()
	for _, k := range keys {
		if v, ok := fields[k]; ok {
			p.m.Set(k, v.Clone())
		}
	}
	for k, v := range fields {
		if _, ok := p.m.Get(k); !ok {
			p.m.Set(k, v.Clone())
		}
	}
	return p
}

func (p Props) Len() int {
	if p.m == nil {
		return 0
	}
	return p.m.Len()
}

func (p Props) Get(key string) (Value, bool) {
	if p.m == nil {
		return Value{}, false
	}
	return p.m.Get(key)
}

// Set inserts or replaces key, keeping the original position of an existing key.
func (p *Props) Set(key string, value Value) {
	if p.m == nil {
		p.m = orderedmap.New[string, Value]()
	}
	p.m.Set(key, value)
}

func (p *Props) Delete(key string) bool {
	if p.m == nil {
		return false
	}
	_, present := p.m.Delete(key)
	return present
}

// Keys returns field names in insertion order.
func (p Props) Keys() []string {
	if p.m == nil {
		return nil
	}
	keys := make([]string, 0, p.m.Len())
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Fields returns the pairs in insertion order.
func (p Props) Fields() []Field {
	if p.m == nil {
		return nil
	}
	out := make([]Field, 0, p.m.Len())
	for pair := p.m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, Field{Key: pair.Key, Value: pair.Value})
	}
	return out
}

// Map returns an unordered deep copy.
func (p Props) Map() map[string]Value {
	out := make(map[string]Value, p.Len())
	for _, f := range p.Fields() {
		out[f.Key] = f.Value.Clone()
	}
	return out
}

func (p Props) Clone() Props {
	c := NewProps()
	for _, f := range p.Fields() {
		c.m.Set(f.Key, f.Value.Clone())
	}
	return c
}

// Merge shallow-merges partial into p: each top-level key of partial replaces
// the existing value wholesale.
func (p *Props) Merge(partial Props) {
	for _, f := range partial.Fields() {
		p.Set(f.Key, f.Value.Clone())
	}
}

func (p Props) Equal(o Props) bool {
	if p.Len() != o.Len() {
		return false
	}
	for _, f := range p.Fields() {
		other, ok := o.Get(f.Key)
		if !ok || !f.Value.Equal(other) {
			return false
		}
	}
	return true
}

// MarshalJSON writes fields in insertion order.
func (p Props) MarshalJSON() ([]byte, error) {
	if p.m == nil || p.m.Len() == 0 {
		return []byte("{}"), nil
	}
	return p.m.MarshalJSON()
}

func (p *Props) UnmarshalJSON(data []byte) error {
	m := orderedmap.New[string, Value]()
	if string(data) != "null" {
		if err := m.UnmarshalJSON(data); err != nil {
			return err
		}
	}
	p.m = m
	return nil
}

// String renders props as compact JSON, mainly for logs.
func (p Props) String() string {
	data, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(data)
}
