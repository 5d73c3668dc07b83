package persistence

import (
	"fmt"

	"github.com/wehubfusion/Daedalus/pkg/entity"
	"github.com/wehubfusion/Daedalus/pkg/mapping"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
)

// Kind tells a writer how a planned property is stored.
type Kind string

const (
	// KindLocal properties are stored as values; references by ID only
	KindLocal Kind = "LOCAL"

	// KindManyToOne references are written first when new
	KindManyToOne Kind = "MANY_TO_ONE"

	// KindOneToMany collections have their new elements written after the owner
	KindOneToMany Kind = "ONE_TO_MANY"

	// KindEmbedded references are stored inline in the owner
	KindEmbedded Kind = "EMBEDDED"
)

// PlanProperty is one property of an import plan.
type PlanProperty struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
	// Plan describes the referenced entity, nil for local properties and
	// for references that are only linked, never written.
	Plan *Plan `json:"plan,omitempty"`
}

// Plan mirrors the reference shape of a mapping tree.
type Plan struct {
	EntityType string         `json:"entityType"`
	Properties []PlanProperty `json:"properties"`
}

// Property returns the planned property with the given name.
func (p *Plan) Property(name string) (PlanProperty, bool) {
	if p == nil {
		return PlanProperty{}, false
	}
	for _, prop := range p.Properties {
		if prop.Name == name {
			return prop, true
		}
	}
	return PlanProperty{}, false
}

// NewPlan builds the import plan of entityType from its mappings.
func NewPlan(meta metamodel.Metamodel, entityType string, mappings []mapping.PropertyMapping) (*Plan, error) {
	plan := &Plan{EntityType: entityType}
	for _, m := range mappings {
		prop, err := meta.Property(entityType, m.Property())
		if err != nil {
			return nil, fmt.Errorf("import plan for %s: %w", entityType, err)
		}
		if !prop.IsReference() {
			plan.Properties = append(plan.Properties, PlanProperty{Name: prop.Name, Kind: KindLocal})
			continue
		}

		planned := PlanProperty{Name: prop.Name, Kind: referenceKind(prop)}
		switch ref := m.(type) {
		case *mapping.MultiFieldReference:
			nested, err := NewPlan(meta, prop.Target, ref.Mappings)
			if err != nil {
				return nil, err
			}
			planned.Plan = nested
		case *mapping.SingleFieldReference:
			planned.Plan = &Plan{
				EntityType: prop.Target,
				Properties: []PlanProperty{{Name: ref.LookupProperty, Kind: KindLocal}},
			}
		}
		if planned.Kind == KindOneToMany && planned.Plan != nil && prop.Inverse != "" {
			if _, ok := planned.Plan.Property(prop.Inverse); !ok {
				planned.Plan.Properties = append(planned.Plan.Properties, PlanProperty{Name: prop.Inverse, Kind: KindManyToOne})
			}
		}
		plan.Properties = append(plan.Properties, planned)
	}
	return plan, nil
}

func referenceKind(prop *metamodel.Property) Kind {
	switch {
	case prop.Embedded:
		return KindEmbedded
	case prop.IsMany():
		return KindOneToMany
	default:
		return KindManyToOne
	}
}

// Graph is the write set of one ImportGraph call.
type Graph struct {
	Root *entity.Entity

	// Entities are the non-embedded entities to store: new to-one references
	// first, then the root, then new collection elements.
	Entities []*entity.Entity

	// Embedded holds entities stored inline in their owner.
	Embedded map[*entity.Entity]bool
}

// Contains reports whether e is written as part of the graph.
func (g *Graph) Contains(e *entity.Entity) bool {
	if g.Embedded[e] {
		return true
	}
	return entity.Contains(g.Entities, e)
}

// Collect walks root along the plan and returns the graph to write. It fails
// when a written entity references a new entity the plan does not reach.
func Collect(root *entity.Entity, plan *Plan) (*Graph, error) {
	if root == nil {
		return nil, fmt.Errorf("nothing to import")
	}
	if plan != nil && plan.EntityType != root.Type() {
		return nil, fmt.Errorf("import plan is for %s, got %s", plan.EntityType, root.Type())
	}

	c := &collector{
		graph:   &Graph{Root: root, Embedded: map[*entity.Entity]bool{}},
		visited: map[*entity.Entity]bool{},
	}
	c.visit(root, plan, true)
	if err := c.checkReferences(); err != nil {
		return nil, err
	}
	return c.graph, nil
}

type collector struct {
	graph   *Graph
	visited map[*entity.Entity]bool
}

func (c *collector) visit(e *entity.Entity, plan *Plan, isRoot bool) {
	if c.visited[e] {
		return
	}
	c.visited[e] = true

	var after []func()
	if plan != nil {
		for _, prop := range plan.Properties {
			if prop.Kind == KindLocal || prop.Plan == nil {
				continue
			}
			switch prop.Kind {
			case KindEmbedded:
				if ref := e.Reference(prop.Name); ref != nil {
					c.graph.Embedded[ref] = true
					c.visitEmbedded(ref, prop.Plan)
				}
			case KindManyToOne:
				if ref := e.Reference(prop.Name); ref != nil && ref.IsNew() {
					c.visit(ref, prop.Plan, false)
				}
			case KindOneToMany:
				children := e.Collection(prop.Name)
				nested := prop.Plan
				after = append(after, func() {
					for _, child := range children {
						if child != nil && child.IsNew() {
							c.visit(child, nested, false)
						}
					}
				})
			}
		}
	}

	if isRoot || e.IsNew() {
		c.graph.Entities = append(c.graph.Entities, e)
	}
	for _, fn := range after {
		fn()
	}
}

// visitEmbedded follows an inline value object into the new entities it references.
func (c *collector) visitEmbedded(e *entity.Entity, plan *Plan) {
	if c.visited[e] {
		return
	}
	c.visited[e] = true
	for _, prop := range plan.Properties {
		if prop.Plan == nil {
			continue
		}
		switch prop.Kind {
		case KindEmbedded:
			if ref := e.Reference(prop.Name); ref != nil {
				c.graph.Embedded[ref] = true
				c.visitEmbedded(ref, prop.Plan)
			}
		case KindManyToOne:
			if ref := e.Reference(prop.Name); ref != nil && ref.IsNew() {
				c.visit(ref, prop.Plan, false)
			}
		case KindOneToMany:
			for _, child := range e.Collection(prop.Name) {
				if child != nil && child.IsNew() {
					c.visit(child, prop.Plan, false)
				}
			}
		}
	}
}

func (c *collector) checkReferences() error {
	check := func(owner *entity.Entity) error {
		for _, name := range owner.Properties() {
			switch v := owner.Get(name).(type) {
			case *entity.Entity:
				if v != nil && v.IsNew() && !c.graph.Contains(v) {
					return fmt.Errorf("%s.%s references unsaved entity %s[%s]", owner.Type(), name, v.Type(), v.ID())
				}
			case []*entity.Entity:
				for _, item := range v {
					if item != nil && item.IsNew() && !c.graph.Contains(item) {
						return fmt.Errorf("%s.%s references unsaved entity %s[%s]", owner.Type(), name, item.Type(), item.ID())
					}
				}
			}
		}
		return nil
	}

	for _, e := range c.graph.Entities {
		if err := check(e); err != nil {
			return err
		}
	}
	for e := range c.graph.Embedded {
		if err := check(e); err != nil {
			return err
		}
	}
	return nil
}
