// Package keycache mirrors one settings row in memory so the hot read path
// never touches the database. The database row stays the durable source of
// truth: writes go to storage first and only then update the mirror.
package keycache

import (
	"context"
	"sync"

	"muppetd/internal/storage"
)

// SettingKey is the fixed settings row backing the cache.
const SettingKey = "exa_api_key"

type Cache struct {
	store *storage.Store

	// mu guards only the in-memory value. It is never held across a
	// database round trip, so a slow disk cannot block cache reads.
	mu  sync.Mutex
	key *string
}

func New(store *storage.Store) *Cache {
	return &Cache{store: store}
}

// Load refreshes the mirror from the settings table. Called once at startup
// before the cache is reachable.
func (c *Cache) Load(ctx context.Context) error {
	value, found, err := c.store.GetSetting(ctx, SettingKey)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if found {
		v := value
		c.key = &v
	} else {
		c.key = nil
	}
	return nil
}

// Get returns the cached key without touching storage.
func (c *Cache) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key == nil {
		return "", false
	}
	return *c.key, true
}

func (c *Cache) Has() bool {
	_, ok := c.Get()
	return ok
}

// Set persists the key, then updates the mirror. Write-then-cache ordering
// means the mirror never reflects a value that failed to persist.
func (c *Cache) Set(ctx context.Context, value string) error {
	if err := c.store.SetSetting(ctx, SettingKey, value); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	v := value
	c.key = &v
	return nil
}

func (c *Cache) Delete(ctx context.Context) error {
	if err := c.store.DeleteSetting(ctx, SettingKey); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.key = nil
	return nil
}
