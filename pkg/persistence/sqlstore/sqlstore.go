// Package sqlstore is a persistence.Store over database/sql. Every entity is one
// row of a JSON document table; SQLite and PostgreSQL are supported.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/wehubfusion/Daedalus/pkg/entity"
	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/logging"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
	"github.com/wehubfusion/Daedalus/pkg/persistence"
)

// Store implements persistence.Store on a SQL database.
type Store struct {
	db        *sql.DB
	dialect   Dialect
	meta      metamodel.Metamodel
	validator *metamodel.Validator
	codec     *codec
	logger    logging.Logger
}

// New wraps an open database. A nil validator disables validation on write.
func New(db *sql.DB, dialect Dialect, meta metamodel.Metamodel, validator *metamodel.Validator, logger logging.Logger) *Store {
	logger = logging.OrNoOp(logger)
	return &Store{
		db:        db,
		dialect:   dialect,
		meta:      meta,
		validator: validator,
		codec:     &codec{meta: meta, logger: logger},
		logger:    logger,
	}
}

// Open connects to the database named by dsn and creates the entity table.
func Open(ctx context.Context, dsn string, meta metamodel.Metamodel, validator *metamodel.Validator, logger logging.Logger) (*Store, error) {
	dialect, source, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(string(dialect), source)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", dialect, err)
	}
	if dialect == SQLite && source == ":memory:" {
		// every pooled connection would see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s store: %w", dialect, err)
	}

	s := New(db, dialect, meta, validator, logger)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the entity table when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return daedaluserrors.Persistence("create entity table", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FindByKeys implements persistence.Finder.
func (s *Store) FindByKeys(ctx context.Context, entityType string, keys map[string]interface{}) (*entity.Entity, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	query, args, err := s.lookupQuery(entityType, keys)
	if err != nil {
		return nil, err
	}

	var id string
	var data []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&id, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, daedaluserrors.Persistence(fmt.Sprintf("look up %s", entityType), err)
	}
	found, err := s.codec.decode(entityType, id, data)
	if err != nil {
		return nil, daedaluserrors.Persistence(fmt.Sprintf("look up %s", entityType), err)
	}
	return found, nil
}

func (s *Store) lookupQuery(entityType string, keys map[string]interface{}) (string, []interface{}, error) {
	names := make([]string, 0, len(keys))
	for name := range keys {
		prop, err := s.meta.Property(entityType, name)
		if err != nil {
			return "", nil, err
		}
		if prop.Embedded || prop.IsMany() {
			return "", nil, fmt.Errorf("cannot look up %s by %s", entityType, name)
		}
		if strings.ContainsAny(name, `"'`) {
			return "", nil, fmt.Errorf("property name %q cannot be used in a lookup", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	args := []interface{}{entityType}
	nulls := make(map[string]bool)
	for _, name := range names {
		args = append(args, s.dialect.path(name))
		value := keys[name]
		if ref, ok := value.(*entity.Entity); value == nil || (ok && ref == nil) {
			nulls[name] = true
			continue
		}
		text, err := persistence.Canonical(value)
		if err != nil {
			return "", nil, fmt.Errorf("key %s.%s: %w", entityType, name, err)
		}
		args = append(args, text)
	}
	return s.dialect.lookup(names, nulls), args, nil
}

// InTransaction implements persistence.Store.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context, w persistence.Writer) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return daedaluserrors.Persistence("begin transaction", err)
	}
	tx := &transaction{store: s, tx: sqlTx}

	if err := fn(ctx, tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.logger.Error("rollback failed", logging.Field{Key: "error", Value: rbErr.Error()})
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return daedaluserrors.Persistence("commit", err)
	}

	for _, graph := range tx.graphs {
		for e := range graph.Embedded {
			e.MarkPersisted()
		}
		for _, e := range graph.Entities {
			e.MarkPersisted()
		}
	}
	return nil
}

type transaction struct {
	store  *Store
	tx     *sql.Tx
	graphs []*persistence.Graph
}

func (t *transaction) ImportGraph(ctx context.Context, root *entity.Entity, plan *persistence.Plan) ([]*entity.Entity, error) {
	graph, err := persistence.Collect(root, plan)
	if err != nil {
		return nil, daedaluserrors.Persistence("import graph", err)
	}
	if t.store.validator != nil {
		if err := t.store.validator.Check(root); err != nil {
			return nil, err
		}
	}

	upsert := t.store.dialect.upsert()
	for _, e := range graph.Entities {
		data, err := t.store.codec.encode(e)
		if err != nil {
			return nil, daedaluserrors.Persistence(fmt.Sprintf("encode %s[%s]", e.Type(), e.ID()), err)
		}
		if _, err := t.tx.ExecContext(ctx, upsert, e.ID(), e.Type(), string(data)); err != nil {
			return nil, daedaluserrors.Persistence(fmt.Sprintf("write %s[%s]", e.Type(), e.ID()), err)
		}
	}
	t.graphs = append(t.graphs, graph)

	written := make([]*entity.Entity, len(graph.Entities))
	copy(written, graph.Entities)
	return written, nil
}
