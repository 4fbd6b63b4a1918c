package redis

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/envutil"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
)

// Cache is a read-through cache over the primary store. Entries always carry
// a TTL, so a cold or flushed Redis only costs latency, never correctness.
// The zero-value (nil) cache is a no-op; callers never branch on availability.
type Cache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewCacheFromEnv returns (nil, nil) when REDIS_ADDR is unset, mirroring how
// the Neo4j client degrades. A nil *Cache is safe to call.
func NewCacheFromEnv(log *logger.Logger) (*Cache, error) {
	addr := strings.TrimSpace(envutil.String("REDIS_ADDR", ""))
	if addr == "" {
		return nil, nil
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    envutil.String("REDIS_PASSWORD", ""),
		DB:          envutil.Int("REDIS_DB", 0),
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return &Cache{
		log: log.With("service", "RedisCache"),
		rdb: rdb,
		ttl: envutil.Duration("REDIS_CACHE_TTL", 5*time.Minute),
	}, nil
}

func entityKey(id uuid.UUID) string   { return "kg:entity:" + id.String() }
func relationKey(id uuid.UUID) string { return "kg:relation:" + id.String() }

func (c *Cache) GetEntity(ctx context.Context, id uuid.UUID) *types.Entity {
	if c == nil || c.rdb == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, entityKey(id)).Bytes()
	if err != nil {
		return nil
	}
	var e types.Entity
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.Warn("bad cached entity payload", "id", id, "error", err)
		return nil
	}
	return &e
}

func (c *Cache) SetEntity(ctx context.Context, e *types.Entity) {
	if c == nil || c.rdb == nil || e == nil || e.ID == uuid.Nil {
		return
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, entityKey(e.ID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("entity cache set failed", "id", e.ID, "error", err)
	}
}

func (c *Cache) GetRelation(ctx context.Context, id uuid.UUID) *types.Relation {
	if c == nil || c.rdb == nil {
		return nil
	}
	raw, err := c.rdb.Get(ctx, relationKey(id)).Bytes()
	if err != nil {
		return nil
	}
	var rel types.Relation
	if err := json.Unmarshal(raw, &rel); err != nil {
		c.log.Warn("bad cached relation payload", "id", id, "error", err)
		return nil
	}
	return &rel
}

func (c *Cache) SetRelation(ctx context.Context, rel *types.Relation) {
	if c == nil || c.rdb == nil || rel == nil || rel.ID == uuid.Nil {
		return
	}
	raw, err := json.Marshal(rel)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, relationKey(rel.ID), raw, c.ttl).Err(); err != nil {
		c.log.Warn("relation cache set failed", "id", rel.ID, "error", err)
	}
}

// Invalidate drops cached rows after a correction so stale reads cannot
// outlive the TTL window.
func (c *Cache) InvalidateEntity(ctx context.Context, id uuid.UUID) {
	if c == nil || c.rdb == nil || id == uuid.Nil {
		return
	}
	_ = c.rdb.Del(ctx, entityKey(id)).Err()
}

func (c *Cache) InvalidateRelation(ctx context.Context, id uuid.UUID) {
	if c == nil || c.rdb == nil || id == uuid.Nil {
		return
	}
	_ = c.rdb.Del(ctx, relationKey(id)).Err()
}

func (c *Cache) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
