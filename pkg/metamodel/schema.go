package metamodel

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/wehubfusion/Daedalus/pkg/entity"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
)

// Schema is a parsed set of entity types. It implements Metamodel and Factory.
type Schema struct {
	Entities []*EntityType `yaml:"entities" json:"entities"`

	byName map[string]*EntityType
}

// NewSchema indexes the given entity types. Use Parser to get structural validation.
func NewSchema(types ...*EntityType) *Schema {
	s := &Schema{Entities: types}
	s.index()
	return s
}

func (s *Schema) index() {
	s.byName = make(map[string]*EntityType, len(s.Entities))
	for _, et := range s.Entities {
		et.byName = make(map[string]*Property, len(et.Properties))
		for _, p := range et.Properties {
			if p.IsReference() && p.Cardinality == "" {
				p.Cardinality = One
			}
			et.byName[p.Name] = p
		}
		s.byName[et.Name] = et
	}
}

// Entity returns the named entity type
func (s *Schema) Entity(name string) (*EntityType, bool) {
	et, ok := s.byName[name]
	return et, ok
}

// HasEntity reports whether the entity type is declared
func (s *Schema) HasEntity(entityType string) bool {
	_, ok := s.byName[entityType]
	return ok
}

// Property returns the property metadata
func (s *Schema) Property(entityType, name string) (*Property, error) {
	et, ok := s.byName[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", daedaluserrors.ErrUnknownEntityType, entityType)
	}
	p, ok := et.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", daedaluserrors.ErrUnknownProperty, entityType, name)
	}
	return p, nil
}

// PropertyType returns the type of a property
func (s *Schema) PropertyType(entityType, name string) (Type, error) {
	p, err := s.Property(entityType, name)
	if err != nil {
		return "", err
	}
	return p.Type, nil
}

// Cardinality returns ONE for scalars and to-one references, MANY for to-many references
func (s *Schema) Cardinality(entityType, name string) (Cardinality, error) {
	p, err := s.Property(entityType, name)
	if err != nil {
		return "", err
	}
	if p.IsMany() {
		return Many, nil
	}
	return One, nil
}

// IsEmbedded reports whether the property holds an embedded value object
func (s *Schema) IsEmbedded(entityType, name string) bool {
	p, err := s.Property(entityType, name)
	return err == nil && p.Embedded
}

// InverseProperty returns the back-reference property name on the target type, if any
func (s *Schema) InverseProperty(entityType, name string) string {
	p, err := s.Property(entityType, name)
	if err != nil {
		return ""
	}
	return p.Inverse
}

// New creates a new entity with a random UUID
func (s *Schema) New(entityType string) (*entity.Entity, error) {
	if !s.HasEntity(entityType) {
		return nil, fmt.Errorf("%w: %s", daedaluserrors.ErrUnknownEntityType, entityType)
	}
	return entity.New(entityType, uuid.NewString()), nil
}
