package persistence

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/wehubfusion/Daedalus/pkg/entity"
	"github.com/wehubfusion/Daedalus/pkg/logging"
)

// DefaultCacheSize is the number of lookups a CachingStore keeps
const DefaultCacheSize = 1024

// CachingStore remembers FindByKeys hits so repeated reference lookups in one
// run reach the backing store once. Misses are not cached. Every caller gets
// its own copy of a cached entity, and the cache is purged after every
// transaction, committed or not.
type CachingStore struct {
	store  Store
	cache  *lru.Cache[string, *entity.Entity]
	logger logging.Logger
}

// NewCachingStore wraps store with an LRU cache of the given size.
func NewCachingStore(store Store, size int, logger logging.Logger) (*CachingStore, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *entity.Entity](size)
	if err != nil {
		return nil, err
	}
	return &CachingStore{
		store:  store,
		cache:  cache,
		logger: logging.OrNoOp(logger),
	}, nil
}

// FindByKeys implements Finder.
func (c *CachingStore) FindByKeys(ctx context.Context, entityType string, keys map[string]interface{}) (*entity.Entity, error) {
	key, err := KeyString(entityType, keys)
	if err != nil {
		return c.store.FindByKeys(ctx, entityType, keys)
	}
	if cached, ok := c.cache.Get(key); ok {
		c.logger.Debug("lookup served from cache",
			logging.Field{Key: "entity_type", Value: entityType},
			logging.Field{Key: "id", Value: cached.ID()})
		return cached.Clone(), nil
	}

	found, err := c.store.FindByKeys(ctx, entityType, keys)
	if err != nil || found == nil {
		return found, err
	}
	c.cache.Add(key, found.Clone())
	return found, nil
}

// InTransaction implements Store.
func (c *CachingStore) InTransaction(ctx context.Context, fn func(ctx context.Context, w Writer) error) error {
	defer c.cache.Purge()
	return c.store.InTransaction(ctx, fn)
}

// Len returns the number of cached lookups.
func (c *CachingStore) Len() int {
	return c.cache.Len()
}
