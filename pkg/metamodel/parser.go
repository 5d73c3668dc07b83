package metamodel

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Parser handles parsing of entity schema definitions (YAML or JSON)
type Parser struct{}

// NewParser creates a new schema parser
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile reads and parses a schema file
func (p *Parser) ParseFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return p.Parse(data)
}

// Parse parses a schema from YAML or JSON bytes
func (p *Parser) Parse(schemaBytes []byte) (*Schema, error) {
	if len(schemaBytes) == 0 {
		return nil, fmt.Errorf("schema bytes cannot be empty")
	}

	var schema Schema
	if err := yaml.Unmarshal(schemaBytes, &schema); err != nil {
		return nil, ParseError(err)
	}

	schema.index()

	if err := p.validateSchema(&schema); err != nil {
		return nil, InvalidSchemaError(err)
	}

	return &schema, nil
}

// validateSchema ensures the schema structure is valid
func (p *Parser) validateSchema(schema *Schema) error {
	if len(schema.Entities) == 0 {
		return fmt.Errorf("schema declares no entities")
	}

	seen := make(map[string]bool, len(schema.Entities))
	for _, et := range schema.Entities {
		if et.Name == "" {
			return fmt.Errorf("entity name is required")
		}
		if seen[et.Name] {
			return fmt.Errorf("entity '%s' is declared twice", et.Name)
		}
		seen[et.Name] = true

		props := make(map[string]bool, len(et.Properties))
		for _, prop := range et.Properties {
			if props[prop.Name] {
				return fmt.Errorf("property '%s.%s' is declared twice", et.Name, prop.Name)
			}
			props[prop.Name] = true
			if err := p.validateProperty(schema, et, prop); err != nil {
				return err
			}
		}
	}

	return nil
}

// validateProperty validates a property definition
func (p *Parser) validateProperty(schema *Schema, owner *EntityType, prop *Property) error {
	name := owner.Name + "." + prop.Name
	if prop.Name == "" {
		return fmt.Errorf("entity '%s' has a property without a name", owner.Name)
	}

	if prop.Type == "" {
		return fmt.Errorf("property '%s' must have a type", name)
	}

	if !IsValidType(prop.Type) {
		return fmt.Errorf("property '%s' has invalid type: %s", name, prop.Type)
	}

	if prop.Type == TypeEnum && len(prop.Enum) == 0 {
		return fmt.Errorf("property '%s' is an enum without literals", name)
	}

	if prop.IsReference() {
		if err := p.validateReference(schema, owner, prop, name); err != nil {
			return err
		}
	} else if prop.Target != "" || prop.Embedded || prop.Inverse != "" || prop.Cardinality == Many {
		return fmt.Errorf("property '%s': target/cardinality/embedded/inverse only apply to references", name)
	}

	if prop.Validation != nil {
		if err := p.validateValidationRules(prop.Validation, prop, name); err != nil {
			return err
		}
	}

	return nil
}

func (p *Parser) validateReference(schema *Schema, owner *EntityType, prop *Property, name string) error {
	if prop.Target == "" {
		return fmt.Errorf("reference '%s' must declare a target entity", name)
	}
	target, ok := schema.Entity(prop.Target)
	if !ok {
		return fmt.Errorf("reference '%s' targets unknown entity '%s'", name, prop.Target)
	}
	if prop.Cardinality != One && prop.Cardinality != Many {
		return fmt.Errorf("reference '%s' has invalid cardinality: %s", name, prop.Cardinality)
	}
	if prop.Embedded && prop.Cardinality == Many {
		return fmt.Errorf("embedded reference '%s' cannot be to-many", name)
	}
	if prop.Inverse != "" {
		inverse, ok := target.Property(prop.Inverse)
		if !ok {
			return fmt.Errorf("reference '%s' declares unknown inverse '%s.%s'", name, target.Name, prop.Inverse)
		}
		if !inverse.IsReference() || inverse.Target != owner.Name || inverse.IsMany() {
			return fmt.Errorf("inverse '%s.%s' must be a to-one reference to '%s'", target.Name, prop.Inverse, owner.Name)
		}
	}
	return nil
}

// validateValidationRules ensures validation rules are appropriate for the property type
func (p *Parser) validateValidationRules(rules *ValidationRules, prop *Property, name string) error {
	if prop.Type != TypeString {
		if rules.MinLength != nil || rules.MaxLength != nil || rules.Pattern != "" || rules.Format != "" {
			return fmt.Errorf("property '%s': string validation rules used on non-string type %s", name, prop.Type)
		}
	}

	if !IsNumeric(prop.Type) {
		if rules.Minimum != nil || rules.Maximum != nil {
			return fmt.Errorf("property '%s': number validation rules used on non-number type %s", name, prop.Type)
		}
	}

	if !prop.IsMany() {
		if rules.MinItems != nil || rules.MaxItems != nil {
			return fmt.Errorf("property '%s': item count rules used on a non-collection property", name)
		}
	}

	if rules.MinLength != nil && rules.MaxLength != nil && *rules.MinLength > *rules.MaxLength {
		return fmt.Errorf("property '%s': minLength is greater than maxLength", name)
	}
	if rules.Minimum != nil && rules.Maximum != nil && *rules.Minimum > *rules.Maximum {
		return fmt.Errorf("property '%s': minimum is greater than maximum", name)
	}

	return nil
}
