package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/config"
	"github.com/wehubfusion/Daedalus/pkg/logging"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
	"github.com/wehubfusion/Daedalus/pkg/persistence"
	"github.com/wehubfusion/Daedalus/pkg/persistence/memstore"
	"github.com/wehubfusion/Daedalus/pkg/persistence/sqlstore"
	"github.com/wehubfusion/Daedalus/pkg/scripting"
)

// openStore opens the store named by dsn. The returned function releases it.
func openStore(ctx context.Context, dsn string, cacheSize int, schema *metamodel.Schema, logger *zap.Logger) (persistence.Store, func() error, error) {
	log := logging.NewZapLogger(logger)
	validator := metamodel.NewValidator(schema)

	var (
		store   persistence.Store
		release = func() error { return nil }
	)
	if strings.EqualFold(strings.TrimSpace(dsn), "memory") || dsn == "" {
		store = memstore.New(validator, log)
	} else {
		sqlStore, err := sqlstore.Open(ctx, dsn, schema, validator, log)
		if err != nil {
			return nil, nil, err
		}
		store = sqlStore
		release = sqlStore.Close
	}

	if cacheSize > 0 {
		cached, err := persistence.NewCachingStore(store, cacheSize, log)
		if err != nil {
			_ = release()
			return nil, nil, err
		}
		store = cached
	}
	return store, release, nil
}

func loadSchema(path string) (*metamodel.Schema, error) {
	if path == "" {
		return nil, fmt.Errorf("a schema file is required (--schema or the schema setting)")
	}
	schema, err := metamodel.NewParser().ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return schema, nil
}

// loadDefinitions reads a single definition file or every definition of a
// directory.
func loadDefinitions(path string) ([]*config.Definition, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		def, err := config.LoadDefinition(path)
		if err != nil {
			return nil, err
		}
		return []*config.Definition{def}, nil
	}

	catalog, err := config.LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	defs := make([]*config.Definition, 0, len(catalog.Codes()))
	for _, code := range catalog.Codes() {
		def, _ := catalog.Get(code)
		defs = append(defs, def)
	}
	return defs, nil
}

func (a *app) scriptingEngine() (*scripting.Engine, error) {
	return scripting.NewEngine(a.settings.ScriptingOptions(), logging.NewZapLogger(a.logger))
}
