package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/example/transfer-analytics/internal/models"
)

// Cache is an in-memory cache.Cache that ignores TTLs.
type Cache struct {
	mu       sync.Mutex
	stats    map[string]models.TransferStats
	metadata map[string]models.TokenMetadata
	Err      error

	StatsHits, StatsSets int
}

func NewCache() *Cache {
	return &Cache{stats: map[string]models.TransferStats{}, metadata: map[string]models.TokenMetadata{}}
}

func statsKey(chain string, w models.Window) string {
	return fmt.Sprintf("%s:%d:%d", chain, w.Start, w.End)
}

func (c *Cache) GetStats(ctx context.Context, chain string, w models.Window) (*models.TransferStats, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, false, c.Err
	}
	s, ok := c.stats[statsKey(chain, w)]
	if !ok {
		return nil, false, nil
	}
	c.StatsHits++
	return &s, true, nil
}

func (c *Cache) SetStats(ctx context.Context, chain string, w models.Window, stats *models.TransferStats, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.StatsSets++
	c.stats[statsKey(chain, w)] = *stats
	return nil
}

func (c *Cache) GetTokenMetadata(ctx context.Context, chain string) (models.TokenMetadata, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return models.TokenMetadata{}, false, c.Err
	}
	md, ok := c.metadata[chain]
	return md, ok, nil
}

func (c *Cache) SetTokenMetadata(ctx context.Context, chain string, md models.TokenMetadata, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.metadata[chain] = md
	return nil
}
