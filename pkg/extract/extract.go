// Package extract turns raw data items into entities. Consecutive rows that
// describe the same aggregate are merged into one entity.
package extract

import (
	"context"
	"fmt"

	"github.com/wehubfusion/Daedalus/pkg/entity"
	"github.com/wehubfusion/Daedalus/pkg/logging"
	"github.com/wehubfusion/Daedalus/pkg/mapping"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
	"github.com/wehubfusion/Daedalus/pkg/populate"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

// Result pairs an extracted entity with the raw items it was built from.
// Pool holds the references created while extracting it; results of one
// ExtractAll call share it.
type Result struct {
	Entity  *entity.Entity
	Items   []*rawdata.Item
	Created []populate.CreatedReference
	Pool    *populate.Pool
}

// Item returns the latest item merged into the entity.
func (r *Result) Item() *rawdata.Item {
	if len(r.Items) == 0 {
		return nil
	}
	return r.Items[len(r.Items)-1]
}

// Extractor builds entities of one type from raw items.
type Extractor struct {
	meta       metamodel.Metamodel
	factory    metamodel.Factory
	populator  *populate.Populator
	entityType string
	mappings   []mapping.PropertyMapping
	logger     logging.Logger
}

// New creates an extractor for entityType.
func New(meta metamodel.Metamodel, factory metamodel.Factory, populator *populate.Populator, entityType string, mappings []mapping.PropertyMapping, logger logging.Logger) *Extractor {
	return &Extractor{
		meta:       meta,
		factory:    factory,
		populator:  populator,
		entityType: entityType,
		mappings:   mappings,
		logger:     logging.OrNoOp(logger),
	}
}

// Merges reports whether rows are merged into aggregates. That is the case
// when a top-level mapping fills a to-many reference.
func (x *Extractor) Merges() bool {
	for _, m := range x.mappings {
		if _, ok := m.(*mapping.MultiFieldReference); !ok {
			continue
		}
		if card, err := x.meta.Cardinality(x.entityType, m.Property()); err == nil && card == metamodel.Many {
			return true
		}
	}
	return false
}

// ExtractAll extracts every item in order. An item whose simple property
// values equal those of an earlier result is merged into that result; the
// references created so far are shared by all items.
func (x *Extractor) ExtractAll(ctx context.Context, items []*rawdata.Item) ([]*Result, error) {
	var results []*Result
	pool := populate.NewPool()
	merges := x.Merges()

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var target *Result
		if merges {
			found, err := x.findResult(results, item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", item.Index, err)
			}
			target = found
		}
		if target == nil {
			e, err := x.factory.New(x.entityType)
			if err != nil {
				return nil, err
			}
			target = &Result{Entity: e, Pool: pool}
			results = append(results, target)
		} else {
			x.logger.Debug("merging item into extracted entity",
				logging.Field{Key: "item_index", Value: item.Index},
				logging.Field{Key: "entity_id", Value: target.Entity.ID()})
		}

		created, err := x.populator.Populate(ctx, target.Entity, x.mappings, item.Fields(), pool)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", item.Index, err)
		}
		target.Items = append(target.Items, item)
		target.Created = appendCreated(target.Created, created)
	}
	x.logger.Debug("extraction finished",
		logging.Field{Key: "items", Value: len(items)},
		logging.Field{Key: "entities", Value: len(results)},
		logging.Field{Key: "created_references", Value: pool.Len()})
	return results, nil
}

// ExtractOne extracts a single item without merging.
func (x *Extractor) ExtractOne(ctx context.Context, item *rawdata.Item) (*Result, error) {
	e, err := x.factory.New(x.entityType)
	if err != nil {
		return nil, err
	}
	pool := populate.NewPool()
	created, err := x.populator.Populate(ctx, e, x.mappings, item.Fields(), pool)
	if err != nil {
		return nil, err
	}
	return &Result{Entity: e, Items: []*rawdata.Item{item}, Created: created, Pool: pool}, nil
}

// Repopulate applies the items of result to another entity, typically an
// existing one that replaces the candidate. References already in the pool
// of result are reused.
func (x *Extractor) Repopulate(ctx context.Context, target *entity.Entity, result *Result) error {
	pool := result.Pool
	if pool == nil {
		pool = populate.NewPool()
	}
	for _, item := range result.Items {
		if _, err := x.populator.Populate(ctx, target, x.mappings, item.Fields(), pool); err != nil {
			return fmt.Errorf("item %d: %w", item.Index, err)
		}
	}
	return nil
}

func (x *Extractor) findResult(results []*Result, item *rawdata.Item) (*Result, error) {
	if len(results) == 0 {
		return nil, nil
	}
	values, err := x.populator.SimpleValues(x.entityType, x.mappings, item.Fields())
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if sameValues(r.Entity, values) {
			return r, nil
		}
	}
	return nil, nil
}

func sameValues(e *entity.Entity, values map[string]interface{}) bool {
	for name, value := range values {
		if !entity.ValuesEqual(e.Get(name), value) {
			return false
		}
	}
	return true
}

func appendCreated(list []populate.CreatedReference, created []populate.CreatedReference) []populate.CreatedReference {
	for _, c := range created {
		seen := false
		for _, existing := range list {
			if existing.Entity == c.Entity {
				seen = true
				break
			}
		}
		if !seen {
			list = append(list, c)
		}
	}
	return list
}
