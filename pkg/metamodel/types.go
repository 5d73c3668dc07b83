// Package metamodel describes the entity types an import can produce: their
// properties, property types, reference cardinalities and validation rules.
package metamodel

import "github.com/wehubfusion/Daedalus/pkg/entity"

// Type represents the data type of an entity property
type Type string

// Supported property types
const (
	TypeString    Type = "STRING"
	TypeInteger   Type = "INTEGER"
	TypeLong      Type = "LONG"
	TypeDouble    Type = "DOUBLE"
	TypeDecimal   Type = "DECIMAL"
	TypeBoolean   Type = "BOOLEAN"
	TypeDate      Type = "DATE"
	TypeLocalDate Type = "LOCAL_DATE"
	TypeEnum      Type = "ENUM"
	TypeReference Type = "REFERENCE"
)

// Cardinality of a reference property
type Cardinality string

const (
	One  Cardinality = "ONE"
	Many Cardinality = "MANY"
)

// IsValidType checks if a property type is valid
func IsValidType(t Type) bool {
	validTypes := map[Type]bool{
		TypeString: true, TypeInteger: true, TypeLong: true,
		TypeDouble: true, TypeDecimal: true, TypeBoolean: true,
		TypeDate: true, TypeLocalDate: true, TypeEnum: true,
		TypeReference: true,
	}
	return validTypes[t]
}

// IsNumeric reports whether t holds numbers
func IsNumeric(t Type) bool {
	switch t {
	case TypeInteger, TypeLong, TypeDouble, TypeDecimal:
		return true
	}
	return false
}

// ValidationRules contains validation rules for a property
type ValidationRules struct {
	// String validations
	MinLength *int   `yaml:"minLength,omitempty" json:"minLength,omitempty"`
	MaxLength *int   `yaml:"maxLength,omitempty" json:"maxLength,omitempty"`
	Pattern   string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Format    string `yaml:"format,omitempty" json:"format,omitempty"`

	// Number validations
	Minimum *float64 `yaml:"minimum,omitempty" json:"minimum,omitempty"`
	Maximum *float64 `yaml:"maximum,omitempty" json:"maximum,omitempty"`

	// Collection validations
	MinItems *int `yaml:"minItems,omitempty" json:"minItems,omitempty"`
	MaxItems *int `yaml:"maxItems,omitempty" json:"maxItems,omitempty"`
}

// Property describes one entity property
type Property struct {
	Name        string           `yaml:"name" json:"name"`
	Type        Type             `yaml:"type" json:"type"`
	Required    bool             `yaml:"required,omitempty" json:"required,omitempty"`
	Description string           `yaml:"description,omitempty" json:"description,omitempty"`
	Target      string           `yaml:"target,omitempty" json:"target,omitempty"`           // referenced entity type
	Cardinality Cardinality      `yaml:"cardinality,omitempty" json:"cardinality,omitempty"` // REFERENCE only
	Embedded    bool             `yaml:"embedded,omitempty" json:"embedded,omitempty"`
	Inverse     string           `yaml:"inverse,omitempty" json:"inverse,omitempty"`
	Enum        []string         `yaml:"enum,omitempty" json:"enum,omitempty"`
	Validation  *ValidationRules `yaml:"validation,omitempty" json:"validation,omitempty"`
}

// IsReference reports whether the property holds entities
func (p *Property) IsReference() bool {
	return p.Type == TypeReference
}

// IsMany reports whether the property is a to-many reference
func (p *Property) IsMany() bool {
	return p.IsReference() && p.Cardinality == Many
}

// EntityType describes one entity type
type EntityType struct {
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Properties  []*Property `yaml:"properties" json:"properties"`

	byName map[string]*Property
}

// Property returns the named property
func (t *EntityType) Property(name string) (*Property, bool) {
	p, ok := t.byName[name]
	return p, ok
}

// ValidationError represents a single validation error
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult holds the result of validation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Metamodel exposes entity property metadata to the import engine.
type Metamodel interface {
	HasEntity(entityType string) bool
	Property(entityType, name string) (*Property, error)
	PropertyType(entityType, name string) (Type, error)
	Cardinality(entityType, name string) (Cardinality, error)
	IsEmbedded(entityType, name string) bool
	InverseProperty(entityType, name string) string
}

// Factory creates new entity instances.
type Factory interface {
	New(entityType string) (*entity.Entity, error)
}
