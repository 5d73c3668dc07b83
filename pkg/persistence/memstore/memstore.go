// Package memstore is an in-memory persistence.Store. Writes are staged per
// transaction and become visible on commit.
package memstore

import (
	"context"
	"sync"

	"github.com/wehubfusion/Daedalus/pkg/entity"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/logging"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
	"github.com/wehubfusion/Daedalus/pkg/persistence"
)

// Store keeps committed entities per type in insertion order.
type Store struct {
	mu        sync.RWMutex
	byType    map[string][]*entity.Entity
	validator *metamodel.Validator
	logger    logging.Logger
}

// New creates an empty store. A nil validator disables validation on write.
func New(validator *metamodel.Validator, logger logging.Logger) *Store {
	return &Store{
		byType:    make(map[string][]*entity.Entity),
		validator: validator,
		logger:    logging.OrNoOp(logger),
	}
}

// Seed stores entities as already persisted.
func (s *Store) Seed(entities ...*entity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entities {
		e.MarkPersisted()
		s.put(e)
	}
}

// FindByKeys implements persistence.Finder. The returned entity is a copy.
func (s *Store) FindByKeys(ctx context.Context, entityType string, keys map[string]interface{}) (*entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := persistence.FindAmong(s.byType[entityType], keys)
	if found == nil {
		return nil, nil
	}
	return found.Clone(), nil
}

// Get returns a copy of the stored entity with the given ID.
func (s *Store) Get(entityType, id string) (*entity.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.byType[entityType] {
		if e.ID() == id {
			return e.Clone(), true
		}
	}
	return nil, false
}

// All returns copies of the stored entities of a type.
func (s *Store) All(entityType string) []*entity.Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entity.Entity, 0, len(s.byType[entityType]))
	for _, e := range s.byType[entityType] {
		out = append(out, e.Clone())
	}
	return out
}

// Count returns the number of stored entities of a type.
func (s *Store) Count(entityType string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byType[entityType])
}

// InTransaction implements persistence.Store.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context, w persistence.Writer) error) error {
	tx := &transaction{store: s}
	if err := fn(ctx, tx); err != nil {
		s.logger.Debug("transaction rolled back",
			logging.Field{Key: "staged", Value: len(tx.graphs)},
			logging.Field{Key: "error", Value: err.Error()})
		return err
	}
	if err := ctx.Err(); err != nil {
		return daedaluserrors.Persistence("commit", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, graph := range tx.graphs {
		for e := range graph.Embedded {
			e.MarkPersisted()
		}
		for _, e := range graph.Entities {
			e.MarkPersisted()
			s.put(e)
		}
	}
	return nil
}

// put replaces the stored entity with the same ID or appends e. Callers hold mu.
func (s *Store) put(e *entity.Entity) {
	stored := e.Clone()
	list := s.byType[e.Type()]
	for i, existing := range list {
		if existing.ID() == e.ID() {
			list[i] = stored
			return
		}
	}
	s.byType[e.Type()] = append(list, stored)
}

type transaction struct {
	store  *Store
	graphs []*persistence.Graph
}

func (tx *transaction) ImportGraph(ctx context.Context, root *entity.Entity, plan *persistence.Plan) ([]*entity.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, daedaluserrors.Persistence("import graph", err)
	}
	graph, err := persistence.Collect(root, plan)
	if err != nil {
		return nil, daedaluserrors.Persistence("import graph", err)
	}
	if tx.store.validator != nil {
		if err := tx.store.validator.Check(root); err != nil {
			return nil, err
		}
	}
	tx.graphs = append(tx.graphs, graph)

	written := make([]*entity.Entity, len(graph.Entities))
	copy(written, graph.Entities)
	return written, nil
}
