package scripting

import (
	"context"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/shopspring/decimal"

	"github.com/wehubfusion/Daedalus/pkg/entity"
	"github.com/wehubfusion/Daedalus/pkg/mapping"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

// Converter adapts a value assigned by a script to the type of an entity property
type Converter func(entityType, property string, value interface{}) (interface{}, error)

// CustomFunc compiles body into a custom value function. The body sees
// `value` and `source` and returns the property value.
func (e *Engine) CustomFunc(body string) (mapping.CustomFunc, error) {
	script, err := e.Compile(body, "value", "source")
	if err != nil {
		return nil, err
	}
	return func(c mapping.CustomContext) (interface{}, error) {
		return e.Call(context.Background(), script, func(vm *goja.Runtime) []goja.Value {
			return []goja.Value{
				vm.ToValue(Plain(c.RawValue)),
				vm.ToValue(Plain(c.Source)),
			}
		})
	}, nil
}

// Predicate compiles body into a pre-commit predicate. The body sees
// `entity` (writes go through convert into the candidate), `item` (raw
// fields) and `index`.
func (e *Engine) Predicate(body string, convert Converter) (func(ctx context.Context, target *entity.Entity, item *rawdata.Item) (bool, error), error) {
	script, err := e.Compile(body, "entity", "item", "index")
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, target *entity.Entity, item *rawdata.Item) (bool, error) {
		var (
			fields interface{}
			index  int
		)
		if item != nil {
			fields = Plain(item.Fields())
			index = item.Index
		}
		return e.Test(ctx, script, func(vm *goja.Runtime) []goja.Value {
			return []goja.Value{
				entityValue(vm, target, convert),
				vm.ToValue(fields),
				vm.ToValue(index),
			}
		})
	}, nil
}

// Plain converts a raw value to maps, slices and strings
func Plain(v rawdata.Value) interface{} {
	switch value := v.(type) {
	case rawdata.Scalar:
		return string(value)
	case *rawdata.Object:
		if value == nil {
			return nil
		}
		out := make(map[string]interface{}, value.Len())
		for _, name := range value.Names() {
			out[name] = Plain(value.Get(name))
		}
		return out
	case rawdata.List:
		out := make([]interface{}, len(value))
		for i, obj := range value {
			out[i] = Plain(obj)
		}
		return out
	}
	return nil
}

func entityValue(vm *goja.Runtime, e *entity.Entity, convert Converter) goja.Value {
	if e == nil {
		return goja.Null()
	}
	return vm.NewDynamicObject(&entityProxy{vm: vm, entity: e, convert: convert})
}

// entityProxy exposes an entity's properties to scripts
type entityProxy struct {
	vm      *goja.Runtime
	entity  *entity.Entity
	convert Converter
}

func (p *entityProxy) Get(key string) goja.Value {
	switch key {
	case "_type":
		return p.vm.ToValue(p.entity.Type())
	case "_id":
		return p.vm.ToValue(p.entity.ID())
	}
	if !p.entity.Has(key) {
		return goja.Undefined()
	}
	return p.toJS(p.entity.Get(key))
}

func (p *entityProxy) toJS(v interface{}) goja.Value {
	switch value := v.(type) {
	case nil:
		return goja.Null()
	case *entity.Entity:
		return entityValue(p.vm, value, p.convert)
	case []*entity.Entity:
		items := make([]interface{}, len(value))
		for i, e := range value {
			items[i] = entityValue(p.vm, e, p.convert)
		}
		return p.vm.NewArray(items...)
	case time.Time:
		return p.vm.ToValue(value.Format(time.RFC3339Nano))
	case decimal.Decimal:
		f, _ := value.Float64()
		return p.vm.ToValue(f)
	}
	return p.vm.ToValue(v)
}

func (p *entityProxy) Set(key string, val goja.Value) bool {
	if key == "_type" || key == "_id" {
		return false
	}
	value := export(val)
	if p.convert != nil {
		converted, err := p.convert(p.entity.Type(), key, value)
		if err != nil {
			panic(p.vm.NewTypeError(fmt.Sprintf("cannot assign %s.%s: %v", p.entity.Type(), key, err)))
		}
		value = converted
	}
	p.entity.Set(key, value)
	return true
}

func (p *entityProxy) Has(key string) bool {
	return key == "_type" || key == "_id" || p.entity.Has(key)
}

func (p *entityProxy) Delete(key string) bool {
	if !p.entity.Has(key) {
		return true
	}
	p.entity.Set(key, nil)
	return true
}

func (p *entityProxy) Keys() []string {
	return p.entity.Properties()
}
