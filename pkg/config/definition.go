package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wehubfusion/Daedalus/pkg/coerce"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/mapping"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
	"github.com/wehubfusion/Daedalus/pkg/scripting"
)

// Definition is the file form of a Configuration.
type Definition struct {
	Code         string              `yaml:"code" json:"code"`
	Name         string              `yaml:"name,omitempty" json:"name,omitempty"`
	EntityType   string              `yaml:"entityType" json:"entityType"`
	Strategy     string              `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	InputFormat  string              `yaml:"inputFormat,omitempty" json:"inputFormat,omitempty"`
	Charset      string              `yaml:"charset,omitempty" json:"charset,omitempty"`
	DateFormat   string              `yaml:"dateFormat,omitempty" json:"dateFormat,omitempty"`
	BooleanTrue  string              `yaml:"booleanTrue,omitempty" json:"booleanTrue,omitempty"`
	BooleanFalse string              `yaml:"booleanFalse,omitempty" json:"booleanFalse,omitempty"`
	Mappings     []MappingDefinition `yaml:"mappings" json:"mappings"`
	UniqueKeys   []UniqueKey         `yaml:"uniqueKeys,omitempty" json:"uniqueKeys,omitempty"`
	Predicate    string              `yaml:"predicate,omitempty" json:"predicate,omitempty"`
}

// MappingDefinition is one node of a mapping tree. Its kind follows from
// the keys present: mappings or lookup make a multi-field reference,
// lookupProperty a single-field reference, script or function a custom
// mapping and anything else a simple mapping.
type MappingDefinition struct {
	Property       string              `yaml:"property" json:"property"`
	Field          string              `yaml:"field,omitempty" json:"field,omitempty"`
	Default        interface{}         `yaml:"default,omitempty" json:"default,omitempty"`
	Script         string              `yaml:"script,omitempty" json:"script,omitempty"`
	Function       string              `yaml:"function,omitempty" json:"function,omitempty"`
	LookupProperty string              `yaml:"lookupProperty,omitempty" json:"lookupProperty,omitempty"`
	Lookup         []string            `yaml:"lookup,omitempty" json:"lookup,omitempty"`
	Policy         string              `yaml:"policy,omitempty" json:"policy,omitempty"`
	Mappings       []MappingDefinition `yaml:"mappings,omitempty" json:"mappings,omitempty"`
}

// ParseDefinition parses a YAML (or JSON) definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, daedaluserrors.InvalidConfiguration("failed to parse definition: %v", err)
	}
	if def.Code == "" {
		return nil, daedaluserrors.InvalidConfiguration("definition code is required")
	}
	return &def, nil
}

// LoadDefinition reads and parses a definition file.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition %s: %w", path, err)
	}
	return ParseDefinition(data)
}

// Functions maps names usable in `function:` mapping keys to Go functions.
type Functions map[string]mapping.CustomFunc

// Binder turns definitions into validated configurations.
type Binder struct {
	Meta      metamodel.Metamodel
	Functions Functions
	// Engine compiles `script:` mappings and predicates; required only when they are used
	Engine *scripting.Engine
}

// Bind builds and validates the configuration described by def.
func (b *Binder) Bind(def *Definition) (*Configuration, error) {
	strategy, err := ParseTransactionStrategy(def.Strategy)
	if err != nil {
		return nil, daedaluserrors.InvalidConfiguration("definition %q: %v", def.Code, err)
	}

	builder := NewBuilder(def.EntityType, def.Code).
		WithName(def.Name).
		WithStrategy(strategy).
		WithInputFormat(def.InputFormat).
		WithDateFormat(def.DateFormat).
		WithBooleanFormats(def.BooleanTrue, def.BooleanFalse)
	if def.Charset != "" {
		builder.WithCharset(def.Charset)
	}
	for _, key := range def.UniqueKeys {
		policy, err := ParseDuplicatePolicy(string(key.Policy))
		if err != nil {
			return nil, daedaluserrors.InvalidConfiguration("definition %q: %v", def.Code, err)
		}
		builder.AddUniqueKey(policy, key.Properties...)
	}

	coercer := coerce.NewCoercer(builder.cfg.Format(), nil)

	if !b.Meta.HasEntity(def.EntityType) {
		return nil, daedaluserrors.InvalidConfiguration("definition %q: unknown entity type %q", def.Code, def.EntityType)
	}
	for _, md := range def.Mappings {
		m, err := b.bindMapping(def.EntityType, md, coercer)
		if err != nil {
			return nil, daedaluserrors.InvalidConfiguration("definition %q: %v", def.Code, err)
		}
		builder.AddMapping(m)
	}

	if def.Predicate != "" {
		if b.Engine == nil {
			return nil, daedaluserrors.InvalidConfiguration("definition %q: predicate script requires a scripting engine", def.Code)
		}
		predicate, err := b.Engine.Predicate(def.Predicate, b.converter(coercer))
		if err != nil {
			return nil, daedaluserrors.InvalidConfiguration("definition %q: predicate: %v", def.Code, err)
		}
		builder.WithPredicate(predicate)
	}

	cfg := builder.Build()
	if err := cfg.Validate(b.Meta); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (b *Binder) bindMapping(entityType string, md MappingDefinition, coercer *coerce.Coercer) (mapping.PropertyMapping, error) {
	prop, err := b.Meta.Property(entityType, md.Property)
	if err != nil {
		return nil, err
	}

	switch {
	case len(md.Mappings) > 0 || len(md.Lookup) > 0:
		policy, err := parsePolicy(md.Policy)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", entityType, md.Property, err)
		}
		node := &mapping.MultiFieldReference{
			TargetProperty:   md.Property,
			SourceField:      md.Field,
			LookupProperties: md.Lookup,
			Policy:           policy,
		}
		for _, child := range md.Mappings {
			m, err := b.bindMapping(prop.Target, child, coercer)
			if err != nil {
				return nil, err
			}
			node.Mappings = append(node.Mappings, m)
		}
		return node, nil

	case md.LookupProperty != "":
		policy, err := parsePolicy(md.Policy)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", entityType, md.Property, err)
		}
		return &mapping.SingleFieldReference{
			TargetProperty: md.Property,
			SourceField:    md.Field,
			LookupProperty: md.LookupProperty,
			Policy:         policy,
		}, nil

	case md.Script != "":
		if b.Engine == nil {
			return nil, fmt.Errorf("%s.%s: script mapping requires a scripting engine", entityType, md.Property)
		}
		fn, err := b.Engine.CustomFunc(md.Script)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", entityType, md.Property, err)
		}
		return &mapping.Custom{TargetProperty: md.Property, SourceField: md.Field, Func: fn}, nil

	case md.Function != "":
		fn, ok := b.Functions[md.Function]
		if !ok {
			return nil, fmt.Errorf("%s.%s: unknown function %q", entityType, md.Property, md.Function)
		}
		return &mapping.Custom{TargetProperty: md.Property, SourceField: md.Field, Func: fn}, nil
	}

	node := &mapping.Simple{TargetProperty: md.Property, SourceField: md.Field}
	if md.Default != nil {
		def, err := coercer.Convert(md.Default, prop)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: default: %w", entityType, md.Property, err)
		}
		node.Default = def
	}
	return node, nil
}

// parsePolicy requires every reference mapping to name its policy.
func parsePolicy(s string) (mapping.ReferencePolicy, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("reference mapping requires a policy (CREATE or IGNORE)")
	}
	return mapping.ParseReferencePolicy(s)
}

func (b *Binder) converter(coercer *coerce.Coercer) scripting.Converter {
	return func(entityType, property string, value interface{}) (interface{}, error) {
		prop, err := b.Meta.Property(entityType, property)
		if err != nil {
			return nil, err
		}
		if prop.IsReference() {
			return nil, fmt.Errorf("reference property %q cannot be assigned from a script", property)
		}
		return coercer.Convert(value, prop)
	}
}

// Catalog holds definitions by code.
type Catalog struct {
	definitions map[string]*Definition
}

// NewCatalog creates a catalog from definitions. Duplicate codes are rejected.
func NewCatalog(defs ...*Definition) (*Catalog, error) {
	c := &Catalog{definitions: make(map[string]*Definition, len(defs))}
	for _, def := range defs {
		if _, exists := c.definitions[def.Code]; exists {
			return nil, daedaluserrors.InvalidConfiguration("duplicate definition code %q", def.Code)
		}
		c.definitions[def.Code] = def
	}
	return c, nil
}

// LoadCatalog loads every .yaml, .yml and .json file in dir.
func LoadCatalog(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory %s: %w", dir, err)
	}

	var defs []*Definition
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}
		def, err := LoadDefinition(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		defs = append(defs, def)
	}
	return NewCatalog(defs...)
}

// Get returns the definition registered under code.
func (c *Catalog) Get(code string) (*Definition, bool) {
	def, ok := c.definitions[code]
	return def, ok
}

// Codes returns the registered codes in sorted order.
func (c *Catalog) Codes() []string {
	codes := make([]string, 0, len(c.definitions))
	for code := range c.definitions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
