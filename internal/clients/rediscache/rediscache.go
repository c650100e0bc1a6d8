package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/shpitdev/cable-intel/internal/logger"
	"github.com/shpitdev/cable-intel/internal/utils"
)

// QueryCache is a short-TTL cache for ranked cable lists. A nil *Cache is a
// valid no-op, so the query path does not care whether Redis is configured.
type QueryCache interface {
	Get(ctx context.Context, key string, out interface{}) bool
	Set(ctx context.Context, key string, val interface{}, ttl time.Duration)
	InvalidateAll(ctx context.Context)
	Close() error
}

type cache struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

// New connects to REDIS_ADDR. An empty address disables caching (returns
// nil, nil), matching how optional infrastructure is wired elsewhere.
func New(log *logger.Logger) (QueryCache, error) {
	addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", log))
	if addr == "" {
		log.Info("REDIS_ADDR not set; query cache disabled")
		return nil, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &cache{
		log:    log.With("client", "QueryCache"),
		rdb:    rdb,
		prefix: "cableintel:topcables:",
	}, nil
}

func (c *cache) Get(ctx context.Context, key string, out interface{}) bool {
	if c == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false
	}
	return true
}

func (c *cache) Set(ctx context.Context, key string, val interface{}, ttl time.Duration) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		c.log.Warn("Query cache set failed", "key", key, "error", err)
	}
}

// InvalidateAll drops every cached ranking; called when an ingest workflow
// finishes so stale lists never outlive new evidence by more than one TTL.
func (c *cache) InvalidateAll(ctx context.Context) {
	if c == nil {
		return
	}
	iter := c.rdb.Scan(ctx, 0, c.prefix+"*", 256).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("Query cache scan failed", "error", err)
		return
	}
	if len(keys) > 0 {
		if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
			c.log.Warn("Query cache invalidate failed", "error", err)
		}
	}
}

func (c *cache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
