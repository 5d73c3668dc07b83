// Package mapping defines the declarative tree that describes how entity
// properties are populated from raw data.
//
// PropertyMapping is a closed sum type: *Simple, *Custom, *SingleFieldReference
// and *MultiFieldReference are its only implementations.
package mapping

import (
	"fmt"
	"strings"

	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

// PropertyMapping describes how one target property is derived.
type PropertyMapping interface {
	// Property returns the target property name
	Property() string
	// Field returns the raw data field name, empty when the node reads its parent source
	Field() string

	isPropertyMapping()
}

// ReferencePolicy governs what happens when no existing entity matches a reference.
type ReferencePolicy string

const (
	// PolicyCreate creates a new referenced entity when no match is found
	PolicyCreate ReferencePolicy = "CREATE"
	// PolicyIgnore leaves the property unset when no match is found
	PolicyIgnore ReferencePolicy = "IGNORE"
)

// ParseReferencePolicy parses a policy name. LOOKUP_OR_IGNORE, IGNORE_IF_MISSING
// and LOOKUP_OR_ABORT are accepted as IGNORE: aborting is a unique key policy.
func ParseReferencePolicy(s string) (ReferencePolicy, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CREATE":
		return PolicyCreate, nil
	case "IGNORE", "LOOKUP_OR_IGNORE", "IGNORE_IF_MISSING", "LOOKUP_OR_ABORT":
		return PolicyIgnore, nil
	default:
		return "", fmt.Errorf("unknown reference policy: %q", s)
	}
}

// CustomContext is passed to custom value functions.
type CustomContext struct {
	// RawValue is the value of the mapped field, nil when no field is mapped
	RawValue rawdata.Value
	// Source is the raw object the mapping is evaluated against
	Source *rawdata.Object
	// Mapping is the custom node being evaluated
	Mapping *Custom
}

// CustomFunc computes a property value from raw data.
type CustomFunc func(ctx CustomContext) (interface{}, error)

// Simple copies a raw field into a property, coercing it to the property type.
type Simple struct {
	TargetProperty string
	SourceField    string
	// Default replaces a value that is missing or cannot be coerced
	Default interface{}
}

// Custom computes a property with a user supplied function.
type Custom struct {
	TargetProperty string
	SourceField    string
	Func           CustomFunc
}

// SingleFieldReference resolves a reference from one raw field matched against
// one property of the referenced entity.
type SingleFieldReference struct {
	TargetProperty string
	SourceField    string
	LookupProperty string
	Policy         ReferencePolicy
}

// MultiFieldReference resolves a reference from a raw sub-object using nested
// mappings. LookupProperties name the nested properties that identify an existing entity.
type MultiFieldReference struct {
	TargetProperty   string
	SourceField      string
	LookupProperties []string
	Policy           ReferencePolicy
	Mappings         []PropertyMapping
}

func (m *Simple) Property() string               { return m.TargetProperty }
func (m *Custom) Property() string               { return m.TargetProperty }
func (m *SingleFieldReference) Property() string { return m.TargetProperty }
func (m *MultiFieldReference) Property() string  { return m.TargetProperty }

func (m *Simple) Field() string               { return m.SourceField }
func (m *Custom) Field() string               { return m.SourceField }
func (m *SingleFieldReference) Field() string { return m.SourceField }
func (m *MultiFieldReference) Field() string  { return m.SourceField }

func (*Simple) isPropertyMapping()               {}
func (*Custom) isPropertyMapping()               {}
func (*SingleFieldReference) isPropertyMapping() {}
func (*MultiFieldReference) isPropertyMapping()  {}

// IsReference reports whether m produces entities instead of scalars.
func IsReference(m PropertyMapping) bool {
	switch m.(type) {
	case *SingleFieldReference, *MultiFieldReference:
		return true
	}
	return false
}

// IsLookupProperty reports whether name is one of the node's lookup properties.
func (m *MultiFieldReference) IsLookupProperty(name string) bool {
	for _, p := range m.LookupProperties {
		if p == name {
			return true
		}
	}
	return false
}

// Find returns the mapping for a target property.
func Find(mappings []PropertyMapping, property string) PropertyMapping {
	for _, m := range mappings {
		if m.Property() == property {
			return m
		}
	}
	return nil
}
