package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Region names one invalidation unit. Cart and reservation state never
// goes through here; those reads always hit postgres.
type Region string

const (
	RegionCatalogAll      Region = "catalog.all"
	RegionCatalogAdmin    Region = "catalog.admin"
	RegionCatalogFeatured Region = "catalog.featured"
	RegionDashboard       Region = "dashboard"
	RegionOrdersByUser    Region = "orders.byUser"
	RegionAdminUsers      Region = "admin.users"
)

const DefaultTTL = 24 * time.Hour

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb, ttl: DefaultTTL}
}

func NewWithTTL(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

func key(region Region, suffix string) string {
	if suffix == "" {
		return "cache:" + string(region)
	}
	return "cache:" + string(region) + ":" + suffix
}

// Get unmarshals the cached value into dest and reports whether the
// region had an entry. A redis error is returned as a miss so a broken
// cache degrades to slow reads, not failures.
func (c *Cache) Get(ctx context.Context, region Region, suffix string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, key(region, suffix)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", region, err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", region, err)
	}

	return true, nil
}

func (c *Cache) Put(ctx context.Context, region Region, suffix string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", region, err)
	}

	if err := c.rdb.Set(ctx, key(region, suffix), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache put %s: %w", region, err)
	}

	return nil
}

// Invalidate drops every entry of the named regions, including
// per-suffix entries such as orders.byUser:<id>.
func (c *Cache) Invalidate(ctx context.Context, regions ...Region) error {
	for _, region := range regions {
		if err := c.rdb.Del(ctx, key(region, "")).Err(); err != nil {
			return fmt.Errorf("cache invalidate %s: %w", region, err)
		}

		iter := c.rdb.Scan(ctx, 0, key(region, "")+":*", 100).Iterator()
		for iter.Next(ctx) {
			if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
				return fmt.Errorf("cache invalidate %s: %w", region, err)
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("cache scan %s: %w", region, err)
		}
	}

	return nil
}
