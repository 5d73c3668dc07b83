package populate

import (
	"fmt"

	"github.com/wehubfusion/Daedalus/pkg/entity"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/logging"
	"github.com/wehubfusion/Daedalus/pkg/mapping"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
	"github.com/wehubfusion/Daedalus/pkg/persistence"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

func (p *Populator) resolveSingleField(r *run, owner *entity.Entity, prop *metamodel.Property, m *mapping.SingleFieldReference, source *rawdata.Object) error {
	lookupProp, err := p.meta.Property(prop.Target, m.LookupProperty)
	if err != nil {
		return fmt.Errorf("%w: %v", daedaluserrors.ErrDataBinding, err)
	}
	value := p.coercer.Coerce(rawValue(source, m.SourceField), lookupProp)
	if value == nil {
		return nil
	}
	keys := map[string]interface{}{m.LookupProperty: value}

	if found := r.pool.Find(m, keys); found != nil {
		owner.Set(prop.Name, found)
		return nil
	}
	if !prop.Embedded {
		found, err := p.lookup(r, prop.Target, keys)
		if err != nil {
			return err
		}
		if found != nil {
			owner.Set(prop.Name, found)
			return nil
		}
	}
	if m.Policy != mapping.PolicyCreate {
		p.logIgnored(owner, prop, source)
		return nil
	}

	created, err := p.create(prop.Target)
	if err != nil {
		return err
	}
	created.Set(m.LookupProperty, value)
	p.recordCreated(r, owner, m, created)
	owner.Set(prop.Name, created)
	return nil
}

func (p *Populator) resolveMultiField(r *run, owner *entity.Entity, prop *metamodel.Property, m *mapping.MultiFieldReference, source *rawdata.Object) error {
	sub := p.subSource(source, m)
	reuse := func(keys map[string]interface{}) *entity.Entity {
		return r.pool.Find(m, keys)
	}
	ref, err := p.resolveOne(r, owner, prop, m, sub, reuse)
	if err != nil || ref == nil {
		return err
	}
	owner.Set(prop.Name, ref)
	return nil
}

func (p *Populator) resolveCollection(r *run, owner *entity.Entity, prop *metamodel.Property, m *mapping.MultiFieldReference, source *rawdata.Object) error {
	var elements []*rawdata.Object
	switch v := rawValue(source, m.SourceField).(type) {
	case rawdata.List:
		elements = v
	case *rawdata.Object:
		elements = []*rawdata.Object{v}
	default:
		// the collection element is spread over the fields of the row itself
		elements = []*rawdata.Object{source}
	}

	current := owner.Collection(prop.Name)
	collection := make([]*entity.Entity, len(current))
	copy(collection, current)

	// elements collapse onto siblings already in the collection
	reuse := func(keys map[string]interface{}) *entity.Entity {
		if len(keys) == 0 {
			return nil
		}
		return persistence.FindAmong(collection, keys)
	}

	var resolved []*entity.Entity
	for _, element := range elements {
		if element == nil {
			continue
		}
		child, err := p.resolveOne(r, owner, prop, m, element, reuse)
		if err != nil {
			return err
		}
		if child == nil {
			continue
		}
		resolved = append(resolved, child)
		if !entity.Contains(collection, child) {
			collection = append(collection, child)
		}
	}

	if prop.Inverse != "" {
		for _, child := range resolved {
			child.Set(prop.Inverse, owner)
		}
	}
	if collection != nil || owner.Has(prop.Name) {
		owner.Set(prop.Name, collection)
	}
	return nil
}

// resolveOne finds or creates the entity one raw sub-object describes.
// reuse returns an already created sibling matching the reuse keys.
func (p *Populator) resolveOne(r *run, owner *entity.Entity, prop *metamodel.Property, m *mapping.MultiFieldReference, sub *rawdata.Object, reuse func(keys map[string]interface{}) *entity.Entity) (*entity.Entity, error) {
	simple, err := p.SimpleValues(prop.Target, m.Mappings, sub)
	if err != nil {
		return nil, err
	}
	if len(simple) > 0 && allNil(simple) {
		return nil, nil
	}

	lookupKeys := make(map[string]interface{}, len(m.LookupProperties))
	for _, name := range m.LookupProperties {
		lookupKeys[name] = simple[name]
	}
	reuseKeys := lookupKeys
	if len(m.LookupProperties) == 0 {
		reuseKeys = simple
	}

	if !prop.Embedded {
		if reused := reuse(reuseKeys); reused != nil {
			if err := p.populateEntity(r, reused, m.Mappings, sub); err != nil {
				return nil, err
			}
			return reused, nil
		}

		if len(lookupKeys) > 0 && !anyNil(lookupKeys) {
			found, err := p.lookup(r, prop.Target, lookupKeys)
			if err != nil {
				return nil, err
			}
			if found != nil {
				return found, nil
			}
		}
	}

	if m.Policy != mapping.PolicyCreate {
		p.logIgnored(owner, prop, sub)
		return nil, nil
	}

	created, err := p.create(prop.Target)
	if err != nil {
		return nil, err
	}
	if err := p.populateEntity(r, created, m.Mappings, sub); err != nil {
		return nil, err
	}
	p.recordCreated(r, owner, m, created)
	return created, nil
}

// subSource returns the raw object a multi-field reference reads from: the
// nested object under its source field, or the owner's source otherwise.
func (p *Populator) subSource(source *rawdata.Object, m *mapping.MultiFieldReference) *rawdata.Object {
	switch v := rawValue(source, m.SourceField).(type) {
	case *rawdata.Object:
		return v
	case rawdata.List:
		if len(v) > 0 && v[0] != nil {
			if len(v) > 1 {
				p.logger.Warn("to-one reference received a list, using its first element",
					logging.Field{Key: "property", Value: m.TargetProperty},
					logging.Field{Key: "elements", Value: len(v)})
			}
			return v[0]
		}
	}
	return source
}

func (p *Populator) lookup(r *run, entityType string, keys map[string]interface{}) (*entity.Entity, error) {
	if p.finder == nil {
		return nil, nil
	}
	found, err := p.finder.FindByKeys(r.ctx, entityType, keys)
	if err != nil {
		return nil, fmt.Errorf("look up %s: %w", entityType, err)
	}
	return found, nil
}

func (p *Populator) create(entityType string) (*entity.Entity, error) {
	created, err := p.factory.New(entityType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", daedaluserrors.ErrDataBinding, err)
	}
	return created, nil
}

func (p *Populator) recordCreated(r *run, owner *entity.Entity, m mapping.PropertyMapping, created *entity.Entity) {
	r.pool.Add(m, created)
	r.created = append(r.created, CreatedReference{Owner: owner, Mapping: m, Entity: created})
}

func (p *Populator) logIgnored(owner *entity.Entity, prop *metamodel.Property, source *rawdata.Object) {
	rendered := "{}"
	if source != nil {
		rendered = source.String()
	}
	p.logger.Info("existing value not found, new one is not created by policy",
		logging.Field{Key: "entity_type", Value: owner.Type()},
		logging.Field{Key: "property", Value: prop.Name},
		logging.Field{Key: "source", Value: rendered})
}

func allNil(values map[string]interface{}) bool {
	for _, v := range values {
		if v != nil {
			return false
		}
	}
	return true
}

func anyNil(values map[string]interface{}) bool {
	for _, v := range values {
		if v == nil {
			return true
		}
	}
	return false
}
