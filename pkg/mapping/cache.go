package mapping

import (
	"context"
	"strings"
	"sync"
)

// CachedStore memoizes lookups of a Store. Writes through a CachedStore
// drop the cache; callers writing to the underlying store directly must call
// Clear themselves.
type CachedStore struct {
	Store

	mu    sync.RWMutex
	cache map[string]*ObjectMapping
	hits  int
}

// NewCachedStore wraps a store with an identity cache.
func NewCachedStore(s Store) *CachedStore {
	return &CachedStore{Store: s, cache: map[string]*ObjectMapping{}}
}

func cacheKey(parts ...string) string {
	return strings.Join(parts, "\x00")
}

func (c *CachedStore) lookup(key string, load func() (*ObjectMapping, error)) (*ObjectMapping, error) {
	c.mu.RLock()
	m, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		cp := *m
		return &cp, nil
	}

	m, err := load()
	if err != nil {
		return nil, err
	}
	cp := *m
	c.mu.Lock()
	c.cache[key] = &cp
	c.mu.Unlock()
	return m, nil
}

// InternalObject implements Store.
func (c *CachedStore) InternalObject(ctx context.Context, integration, integrationObjectName, integrationObjectID, internalObjectName string) (*ObjectMapping, error) {
	key := cacheKey("int", integration, integrationObjectName, integrationObjectID, internalObjectName)
	return c.lookup(key, func() (*ObjectMapping, error) {
		return c.Store.InternalObject(ctx, integration, integrationObjectName, integrationObjectID, internalObjectName)
	})
}

// IntegrationObject implements Store.
func (c *CachedStore) IntegrationObject(ctx context.Context, integration, internalObjectName, internalObjectID, integrationObjectName string) (*ObjectMapping, error) {
	key := cacheKey("ext", integration, internalObjectName, internalObjectID, integrationObjectName)
	return c.lookup(key, func() (*ObjectMapping, error) {
		return c.Store.IntegrationObject(ctx, integration, internalObjectName, internalObjectID, integrationObjectName)
	})
}

// FindByIntegrationObject implements Store.
func (c *CachedStore) FindByIntegrationObject(ctx context.Context, integration, integrationObjectName, integrationObjectID string) (*ObjectMapping, error) {
	key := cacheKey("any", integration, integrationObjectName, integrationObjectID)
	return c.lookup(key, func() (*ObjectMapping, error) {
		return c.Store.FindByIntegrationObject(ctx, integration, integrationObjectName, integrationObjectID)
	})
}

// Save implements Store.
func (c *CachedStore) Save(ctx context.Context, m *ObjectMapping) error {
	defer c.Clear()
	return c.Store.Save(ctx, m)
}

// UpdateIntegrationObject implements Store.
func (c *CachedStore) UpdateIntegrationObject(ctx context.Context, integration, oldObjectName, oldObjectID, newObjectName, newObjectID string) (int, error) {
	defer c.Clear()
	return c.Store.UpdateIntegrationObject(ctx, integration, oldObjectName, oldObjectID, newObjectName, newObjectID)
}

// MarkAsDeleted implements Store.
func (c *CachedStore) MarkAsDeleted(ctx context.Context, integration string, side Side, objectName, objectID string) (int, error) {
	defer c.Clear()
	return c.Store.MarkAsDeleted(ctx, integration, side, objectName, objectID)
}

// Clear drops the identity cache and clears the wrapped store.
func (c *CachedStore) Clear() {
	c.mu.Lock()
	c.cache = map[string]*ObjectMapping{}
	c.mu.Unlock()
	c.Store.Clear()
}

// Len returns the number of cached lookups.
func (c *CachedStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Hits returns the number of lookups served from the cache.
func (c *CachedStore) Hits() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits
}
