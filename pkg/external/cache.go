package external

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pgx-knowledge-graph/internal/domain"
)

// EvidenceCache caches normalised upstream evidence by stable key. When a
// Redis URL is configured it acts as the shared tier; otherwise an
// in-process map serves alone. Entries are added, never mutated, within a
// run.
type EvidenceCache struct {
	redis      *redis.Client
	defaultTTL time.Duration

	mu    sync.RWMutex
	local map[string]localEntry
}

type localEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewEvidenceCache creates the evidence cache. A failing Redis connection is
// an error; an empty URL selects the in-process tier only.
func NewEvidenceCache(config domain.CacheConfig) (*EvidenceCache, error) {
	cache := &EvidenceCache{
		defaultTTL: config.DefaultTTL,
		local:      make(map[string]localEntry),
	}
	if cache.defaultTTL == 0 {
		cache.defaultTTL = 24 * time.Hour
	}
	if config.RedisURL == "" {
		return cache, nil
	}

	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	if config.PoolTimeout > 0 {
		opts.PoolTimeout = config.PoolTimeout
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	cache.redis = client
	return cache, nil
}

// Get loads a cached value into target; the second return is the hit flag.
func (c *EvidenceCache) Get(ctx context.Context, key string, target interface{}) (bool, error) {
	if c.redis != nil {
		val, err := c.redis.Get(ctx, key).Result()
		if err == redis.Nil {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("cache get %s: %w", key, err)
		}
		if err := json.Unmarshal([]byte(val), target); err != nil {
			c.redis.Del(ctx, key)
			return false, nil
		}
		return true, nil
	}

	c.mu.RLock()
	entry, ok := c.local[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expiresAt) {
		return false, nil
	}
	if err := json.Unmarshal(entry.data, target); err != nil {
		return false, nil
	}
	return true, nil
}

// Set stores a value under key; ttl zero means the default TTL.
func (c *EvidenceCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	if c.redis != nil {
		return c.redis.Set(ctx, key, data, ttl).Err()
	}
	c.mu.Lock()
	c.local[key] = localEntry{data: data, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Keys for the cached evidence families.
func ClinVarCacheKey(rsid string) string      { return "clinvar:" + rsid }
func PharmGKBCacheKey(scope string) string    { return "pharmgkb:" + domain.NormalizeKey(scope) }
func PublicationCacheKey(pmid string) string  { return "pubmed:" + pmid }
func SnomedCacheKey(term string) string       { return "snomed:" + domain.NormalizeKey(term) }

// Ping verifies the Redis tier when configured.
func (c *EvidenceCache) Ping(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (c *EvidenceCache) Close() error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}
