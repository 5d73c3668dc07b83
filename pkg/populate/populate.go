// Package populate fills entities from raw data items by walking a mapping
// tree. Scalar mappings are coerced; reference mappings are resolved against
// already created siblings, then the store, and created when policy allows.
package populate

import (
	"context"
	"fmt"

	"github.com/wehubfusion/Daedalus/pkg/coerce"
	"github.com/wehubfusion/Daedalus/pkg/entity"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/logging"
	"github.com/wehubfusion/Daedalus/pkg/mapping"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
	"github.com/wehubfusion/Daedalus/pkg/persistence"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

// CreatedReference is a sub-object instantiated while populating an entity.
type CreatedReference struct {
	Owner   *entity.Entity
	Mapping mapping.PropertyMapping
	Entity  *entity.Entity
}

// Populator applies mapping trees to entities.
type Populator struct {
	meta    metamodel.Metamodel
	factory metamodel.Factory
	finder  persistence.Finder
	coercer *coerce.Coercer
	logger  logging.Logger
}

// New creates a populator. finder may be nil, in which case references are
// never looked up in storage.
func New(meta metamodel.Metamodel, factory metamodel.Factory, finder persistence.Finder, coercer *coerce.Coercer, logger logging.Logger) *Populator {
	logger = logging.OrNoOp(logger)
	if coercer == nil {
		coercer = coerce.NewCoercer(coerce.Format{}, logger)
	}
	return &Populator{
		meta:    meta,
		factory: factory,
		finder:  finder,
		coercer: coercer,
		logger:  logger,
	}
}

// run carries the state of one Populate call through the recursion.
type run struct {
	ctx     context.Context
	pool    *Pool
	created []CreatedReference
}

// Populate applies mappings to e using the values of source. pool is
// consulted for to-one references and receives every reference created;
// a nil pool disables sibling reuse across calls.
func (p *Populator) Populate(ctx context.Context, e *entity.Entity, mappings []mapping.PropertyMapping, source *rawdata.Object, pool *Pool) ([]CreatedReference, error) {
	if pool == nil {
		pool = NewPool()
	}
	r := &run{ctx: ctx, pool: pool}
	if err := p.populateEntity(r, e, mappings, source); err != nil {
		return r.created, err
	}
	return r.created, nil
}

func (p *Populator) populateEntity(r *run, e *entity.Entity, mappings []mapping.PropertyMapping, source *rawdata.Object) error {
	for _, m := range mappings {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		prop, err := p.meta.Property(e.Type(), m.Property())
		if err != nil {
			return fmt.Errorf("%w: %v", daedaluserrors.ErrDataBinding, err)
		}

		switch typed := m.(type) {
		case *mapping.Simple, *mapping.Custom:
			value, err := p.scalarValue(typed, prop, source)
			if err != nil {
				return err
			}
			e.Set(prop.Name, value)
		case *mapping.SingleFieldReference:
			if err := p.resolveSingleField(r, e, prop, typed, source); err != nil {
				return err
			}
		case *mapping.MultiFieldReference:
			if prop.IsMany() {
				err = p.resolveCollection(r, e, prop, typed, source)
			} else {
				err = p.resolveMultiField(r, e, prop, typed, source)
			}
			if err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: unsupported mapping %T", daedaluserrors.ErrDataBinding, m)
		}
	}
	return nil
}

// SimpleValues computes the values the simple and custom mappings would
// assign to an entity of entityType. Reference mappings are ignored.
func (p *Populator) SimpleValues(entityType string, mappings []mapping.PropertyMapping, source *rawdata.Object) (map[string]interface{}, error) {
	values := make(map[string]interface{})
	for _, m := range mappings {
		if mapping.IsReference(m) {
			continue
		}
		prop, err := p.meta.Property(entityType, m.Property())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", daedaluserrors.ErrDataBinding, err)
		}
		value, err := p.scalarValue(m, prop, source)
		if err != nil {
			return nil, err
		}
		values[prop.Name] = value
	}
	return values, nil
}

func (p *Populator) scalarValue(m mapping.PropertyMapping, prop *metamodel.Property, source *rawdata.Object) (interface{}, error) {
	switch typed := m.(type) {
	case *mapping.Simple:
		value := p.coercer.Coerce(rawValue(source, typed.SourceField), prop)
		if value == nil && typed.Default != nil {
			converted, err := p.coercer.Convert(typed.Default, prop)
			if err != nil {
				p.logger.Warn("default value does not fit the property, ignoring",
					logging.Field{Key: "property", Value: prop.Name},
					logging.Field{Key: "error", Value: err.Error()})
				return nil, nil
			}
			return converted, nil
		}
		return value, nil
	case *mapping.Custom:
		result, err := callCustom(typed, mapping.CustomContext{
			RawValue: rawValue(source, typed.SourceField),
			Source:   source,
			Mapping:  typed,
		})
		if err != nil {
			return nil, daedaluserrors.Scripting(fmt.Sprintf("custom value for property %q", prop.Name), err)
		}
		value, err := p.coercer.Convert(result, prop)
		if err != nil {
			return nil, err
		}
		return value, nil
	}
	return nil, fmt.Errorf("%w: %s is not a scalar mapping", daedaluserrors.ErrDataBinding, mapping.String(m))
}

func callCustom(m *mapping.Custom, ctx mapping.CustomContext) (result interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return m.Func(ctx)
}

func rawValue(source *rawdata.Object, field string) rawdata.Value {
	if source == nil || field == "" {
		return nil
	}
	return source.Get(field)
}
