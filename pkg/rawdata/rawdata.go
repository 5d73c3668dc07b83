// Package rawdata holds the tree-shaped representation of input records before mapping.
//
// A Value is one of: nil (null), Scalar, *Object or List. Objects keep their field
// order and field names are unique within one object.
package rawdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Value is a raw field value. A nil Value represents null.
type Value interface {
	isValue()
}

// Scalar is a raw textual value.
type Scalar string

// List is an ordered list of raw objects.
type List []*Object

func (Scalar) isValue()  {}
func (List) isValue()    {}
func (*Object) isValue() {}

// Object is an ordered collection of named raw values.
type Object struct {
	names  []string
	values map[string]Value
}

// NewObject creates an empty object.
func NewObject() *Object {
	return &Object{values: make(map[string]Value)}
}

// Set adds or replaces a field. Replacing keeps the original position.
func (o *Object) Set(name string, value Value) *Object {
	if o.values == nil {
		o.values = make(map[string]Value)
	}
	if _, exists := o.values[name]; !exists {
		o.names = append(o.names, name)
	}
	o.values[name] = value
	return o
}

// Get returns the value of a field, or nil when the field is absent or null.
func (o *Object) Get(name string) Value {
	if o == nil {
		return nil
	}
	return o.values[name]
}

// Has reports whether the field is present, even if its value is null.
func (o *Object) Has(name string) bool {
	if o == nil {
		return false
	}
	_, ok := o.values[name]
	return ok
}

// Names returns field names in insertion order.
func (o *Object) Names() []string {
	if o == nil {
		return nil
	}
	out := make([]string, len(o.names))
	copy(out, o.names)
	return out
}

// Len returns the number of fields.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.names)
}

// String renders the object for diagnostics.
func (o *Object) String() string {
	var b strings.Builder
	writeValue(&b, o)
	return b.String()
}

// MarshalJSON encodes the object preserving field order.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range o.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := marshalValue(o.values[name])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case Scalar:
		return json.Marshal(string(val))
	case *Object:
		if val == nil {
			return []byte("null"), nil
		}
		return val.MarshalJSON()
	case List:
		return json.Marshal([]*Object(val))
	default:
		return nil, fmt.Errorf("unsupported raw value %T", v)
	}
}

func writeValue(b *strings.Builder, v Value) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case Scalar:
		b.WriteString(string(val))
	case *Object:
		if val == nil {
			b.WriteString("null")
			return
		}
		b.WriteByte('{')
		for i, name := range val.names {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(name)
			b.WriteString(": ")
			writeValue(b, val.values[name])
		}
		b.WriteByte('}')
	case List:
		b.WriteByte('[')
		for i, obj := range val {
			if i > 0 {
				b.WriteString(", ")
			}
			writeValue(b, obj)
		}
		b.WriteByte(']')
	}
}

// Item is one input record. Index is stable and used in error reports.
type Item struct {
	Object
	Index int
}

// NewItem creates an empty item with the given index.
func NewItem(index int) *Item {
	return &Item{Object: Object{values: make(map[string]Value)}, Index: index}
}

// Fields returns the item as a raw object.
func (i *Item) Fields() *Object {
	if i == nil {
		return nil
	}
	return &i.Object
}

// String renders the item for diagnostics.
func (i *Item) String() string {
	return fmt.Sprintf("#%d %s", i.Index, i.Object.String())
}

// MarshalJSON encodes the item as {"index": n, "values": {...}}.
func (i *Item) MarshalJSON() ([]byte, error) {
	values, err := i.Object.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Index  int             `json:"index"`
		Values json.RawMessage `json:"values"`
	}{Index: i.Index, Values: values})
}

// Data is the full output of a format extractor.
type Data struct {
	FieldNames []string
	Items      []*Item
}

// AddFieldName records a field name once, keeping first-seen order.
func (d *Data) AddFieldName(name string) {
	for _, n := range d.FieldNames {
		if n == name {
			return
		}
	}
	d.FieldNames = append(d.FieldNames, name)
}

// AsScalar returns the scalar text of v and whether v is a scalar.
func AsScalar(v Value) (string, bool) {
	s, ok := v.(Scalar)
	return string(s), ok
}
