// Package persistence defines the store ports the import engine reads from and
// writes to, the import plan that shapes a graph write, and a caching decorator.
package persistence

import (
	"context"

	"github.com/wehubfusion/Daedalus/pkg/entity"
)

// Finder looks up persisted entities by property values.
type Finder interface {
	// FindByKeys returns the first persisted entity of entityType whose
	// properties equal every key value, or nil when there is none.
	FindByKeys(ctx context.Context, entityType string, keys map[string]interface{}) (*entity.Entity, error)
}

// Writer persists entity graphs inside a transaction.
type Writer interface {
	// ImportGraph stores root and every new entity reachable from it through
	// the plan. It returns the written entities in write order.
	ImportGraph(ctx context.Context, root *entity.Entity, plan *Plan) ([]*entity.Entity, error)
}

// Store is the persistence collaborator of an import run.
type Store interface {
	Finder

	// InTransaction runs fn inside one transaction. The transaction commits
	// when fn returns nil and rolls back otherwise. Entities written by a
	// committed transaction are marked persisted.
	InTransaction(ctx context.Context, fn func(ctx context.Context, w Writer) error) error
}

// FindAmong returns the first candidate whose properties equal every key value.
func FindAmong(candidates []*entity.Entity, keys map[string]interface{}) *entity.Entity {
	for _, candidate := range candidates {
		if candidate != nil && Matches(candidate, keys) {
			return candidate
		}
	}
	return nil
}

// Matches reports whether e holds every key value.
func Matches(e *entity.Entity, keys map[string]interface{}) bool {
	for name, value := range keys {
		if !entity.ValuesEqual(e.Get(name), value) {
			return false
		}
	}
	return true
}
