package mapping

import (
	"fmt"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
)

// Validate checks a mapping tree for entityType against the metamodel.
// It must pass before any import runs.
func Validate(entityType string, mappings []PropertyMapping, meta metamodel.Metamodel) error {
	if !meta.HasEntity(entityType) {
		return daedaluserrors.InvalidConfiguration("unknown entity type %q", entityType)
	}
	if len(mappings) == 0 {
		return daedaluserrors.InvalidConfiguration("no property mappings for entity %q", entityType)
	}
	return validateLevel(entityType, mappings, meta, entityType)
}

func validateLevel(entityType string, mappings []PropertyMapping, meta metamodel.Metamodel, path string) error {
	seen := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		if m == nil {
			return daedaluserrors.InvalidConfiguration("%s: nil property mapping", path)
		}
		name := m.Property()
		nodePath := path + "." + name
		if name == "" {
			return daedaluserrors.InvalidConfiguration("%s: mapping without target property", path)
		}
		if seen[name] {
			return daedaluserrors.InvalidConfiguration("%s: property is mapped twice", nodePath)
		}
		seen[name] = true

		prop, err := meta.Property(entityType, name)
		if err != nil {
			return daedaluserrors.InvalidConfiguration("%s: %v", nodePath, err)
		}

		if err := validateNode(m, prop, meta, nodePath); err != nil {
			return err
		}
	}
	return nil
}

func validateNode(m PropertyMapping, prop *metamodel.Property, meta metamodel.Metamodel, path string) error {
	switch node := m.(type) {
	case *Simple:
		if prop.IsReference() {
			return daedaluserrors.InvalidConfiguration("%s: simple mapping cannot target a reference property", path)
		}
		if node.SourceField == "" {
			return daedaluserrors.InvalidConfiguration("%s: source field is required", path)
		}

	case *Custom:
		if prop.IsReference() {
			return daedaluserrors.InvalidConfiguration("%s: custom mapping cannot target a reference property", path)
		}
		if node.Func == nil {
			return daedaluserrors.InvalidConfiguration("%s: custom mapping has no function", path)
		}

	case *SingleFieldReference:
		if !prop.IsReference() {
			return daedaluserrors.InvalidConfiguration("%s: reference mapping targets a non-reference property", path)
		}
		if prop.IsMany() {
			return daedaluserrors.InvalidConfiguration("%s: to-many references require a multi-field mapping", path)
		}
		if err := validatePolicy(node.Policy, prop, path); err != nil {
			return err
		}
		if node.SourceField == "" || node.LookupProperty == "" {
			return daedaluserrors.InvalidConfiguration("%s: source field and lookup property are required", path)
		}
		lookup, err := meta.Property(prop.Target, node.LookupProperty)
		if err != nil {
			return daedaluserrors.InvalidConfiguration("%s: %v", path, err)
		}
		if lookup.IsReference() {
			return daedaluserrors.InvalidConfiguration("%s: lookup property %q must be a simple property", path, node.LookupProperty)
		}

	case *MultiFieldReference:
		if !prop.IsReference() {
			return daedaluserrors.InvalidConfiguration("%s: reference mapping targets a non-reference property", path)
		}
		if err := validatePolicy(node.Policy, prop, path); err != nil {
			return err
		}
		if node.Policy != PolicyCreate && len(node.LookupProperties) == 0 {
			return daedaluserrors.InvalidConfiguration("%s: lookup properties are not set", path)
		}
		if len(node.Mappings) == 0 {
			return daedaluserrors.InvalidConfiguration("%s: reference mapping has no nested mappings", path)
		}
		for _, lookup := range node.LookupProperties {
			child := Find(node.Mappings, lookup)
			if child == nil || IsReference(child) {
				return daedaluserrors.InvalidConfiguration("%s: lookup property %q is not mapped by a simple or custom mapping", path, lookup)
			}
		}
		return validateLevel(prop.Target, node.Mappings, meta, path)

	default:
		return daedaluserrors.InvalidConfiguration("%s: unsupported mapping %T", path, m)
	}
	return nil
}

func validatePolicy(policy ReferencePolicy, prop *metamodel.Property, path string) error {
	switch policy {
	case PolicyCreate, PolicyIgnore:
	case "":
		return daedaluserrors.InvalidConfiguration("%s: reference import policy is not set", path)
	default:
		return daedaluserrors.InvalidConfiguration("%s: unknown reference import policy %q", path, policy)
	}
	if prop.Embedded && policy != PolicyCreate {
		return daedaluserrors.InvalidConfiguration("%s: embedded references only support %s", path, PolicyCreate)
	}
	return nil
}

// String renders a mapping node for diagnostics.
func String(m PropertyMapping) string {
	switch node := m.(type) {
	case *Simple:
		return fmt.Sprintf("simple(%s <- %s)", node.TargetProperty, node.SourceField)
	case *Custom:
		return fmt.Sprintf("custom(%s <- %s)", node.TargetProperty, node.SourceField)
	case *SingleFieldReference:
		return fmt.Sprintf("reference(%s.%s <- %s, %s)", node.TargetProperty, node.LookupProperty, node.SourceField, node.Policy)
	case *MultiFieldReference:
		return fmt.Sprintf("reference(%s <- %s, %s, %d mappings)", node.TargetProperty, node.SourceField, node.Policy, len(node.Mappings))
	}
	return fmt.Sprintf("%T", m)
}
