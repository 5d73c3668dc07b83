// Package entity provides the dynamic target objects built by the import engine.
package entity

import (
	"fmt"
	"strings"
)

// Entity is a dynamically typed domain object. Property values are scalars
// (string, int32, int64, float64, bool, decimal.Decimal, time.Time),
// *Entity for to-one references and []*Entity for to-many references.
type Entity struct {
	typ    string
	id     string
	names  []string
	values map[string]interface{}
	isNew  bool
	loaded bool
}

// New creates a new, not yet persisted entity.
func New(entityType, id string) *Entity {
	return &Entity{
		typ:    entityType,
		id:     id,
		values: make(map[string]interface{}),
		isNew:  true,
		loaded: true,
	}
}

// Existing creates an entity that represents a persisted record.
func Existing(entityType, id string) *Entity {
	e := New(entityType, id)
	e.isNew = false
	return e
}

// Ref creates an unloaded stub of a persisted entity: only type and ID are known.
func Ref(entityType, id string) *Entity {
	e := Existing(entityType, id)
	e.loaded = false
	return e
}

// Type returns the entity type name.
func (e *Entity) Type() string { return e.typ }

// ID returns the entity identifier.
func (e *Entity) ID() string { return e.id }

// IsNew reports whether the entity has not been persisted yet.
func (e *Entity) IsNew() bool { return e.isNew }

// IsLoaded reports whether property values are available.
func (e *Entity) IsLoaded() bool { return e.loaded }

// MarkPersisted flags the entity as stored.
func (e *Entity) MarkPersisted() {
	e.isNew = false
	e.loaded = true
}

// Get returns a property value, or nil when unset.
func (e *Entity) Get(name string) interface{} {
	return e.values[name]
}

// Has reports whether the property has been set, even to nil.
func (e *Entity) Has(name string) bool {
	_, ok := e.values[name]
	return ok
}

// Set assigns a property value.
func (e *Entity) Set(name string, value interface{}) {
	if _, exists := e.values[name]; !exists {
		e.names = append(e.names, name)
	}
	e.values[name] = value
}

// Properties returns set property names in assignment order.
func (e *Entity) Properties() []string {
	out := make([]string, len(e.names))
	copy(out, e.names)
	return out
}

// Reference returns a to-one reference value.
func (e *Entity) Reference(name string) *Entity {
	ref, _ := e.values[name].(*Entity)
	return ref
}

// Collection returns a to-many reference value.
func (e *Entity) Collection(name string) []*Entity {
	list, _ := e.values[name].([]*Entity)
	return list
}

// String renders the entity for log and error messages.
func (e *Entity) String() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%s]{", e.typ, e.id)
	for i, name := range e.names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
		b.WriteString("=")
		switch v := e.values[name].(type) {
		case *Entity:
			if v == nil {
				b.WriteString("<nil>")
			} else {
				fmt.Fprintf(&b, "%s[%s]", v.typ, v.id)
			}
		case []*Entity:
			fmt.Fprintf(&b, "%d items", len(v))
		default:
			fmt.Fprintf(&b, "%v", v)
		}
	}
	b.WriteString("}")
	return b.String()
}

// Contains reports whether list holds e by identity.
func Contains(list []*Entity, e *Entity) bool {
	for _, item := range list {
		if item == e {
			return true
		}
	}
	return false
}

// Clone returns a shallow copy of e: referenced entities are shared, but
// collections are copied so appending to one does not affect the other.
func (e *Entity) Clone() *Entity {
	out := &Entity{
		typ:    e.typ,
		id:     e.id,
		names:  append([]string(nil), e.names...),
		values: make(map[string]interface{}, len(e.values)),
		isNew:  e.isNew,
		loaded: e.loaded,
	}
	for name, v := range e.values {
		if list, ok := v.([]*Entity); ok && list != nil {
			v = append([]*Entity(nil), list...)
		}
		out.values[name] = v
	}
	return out
}
