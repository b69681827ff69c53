package cache

import (
	"context"
	"sync"

	"github.com/ShoshinNikita/gameicons/gameicons"
)

type InMemoryCache struct {
	mu    sync.Mutex
	icons map[gameicons.TitleID]gameicons.Icon
}

var _ gameicons.IconCache = (*InMemoryCache)(nil)

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		icons: make(map[gameicons.TitleID]gameicons.Icon),
	}
}

func (c *InMemoryCache) Load(_ context.Context, id gameicons.TitleID) (gameicons.Icon, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	icon, ok := c.icons[id]
	if !ok {
		return gameicons.Icon{}, gameicons.ErrCacheMiss
	}
	return icon, nil
}

func (c *InMemoryCache) Save(_ context.Context, id gameicons.TitleID, icon gameicons.Icon) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.icons[id] = icon
	return nil
}

func (c *InMemoryCache) Remove(_ context.Context, id gameicons.TitleID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.icons, id)
	return nil
}

func (*InMemoryCache) Shutdown(context.Context) error {
	return nil
}
