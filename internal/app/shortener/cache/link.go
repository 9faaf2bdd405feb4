package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"snip.local/internal/platform/metrics"
)

// 负缓存哨兵值：明确记住“这个短码不存在”，挡穿透。
// 不要用 "" 当哨兵（可读性差，也容易把“未命中”和“命中空值”混淆）。
const notFoundSentinel = "__nil__"

const keyPrefix = "url:"

// LinkCache 是短码 -> 长链接的两级旁路缓存：L1 本地（ristretto）+ L2 Redis。
// 映射写入后不可变，所以不存在陈旧性问题，TTL 只是为了控制内存占用。
type LinkCache struct {
	client   *redis.Client
	local    *LocalCache // L1 本地缓存，可为 nil
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewLinkCache 构造缓存；ttl <= 0 时取 24h（跳转热点的合理驻留时长）。
func NewLinkCache(client *redis.Client, local *LocalCache, ttl time.Duration) *LinkCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LinkCache{
		client:   client,
		local:    local,
		ttl:      ttl,
		emptyTTL: 30 * time.Second,
	}
}

// Get 依次查 L1、L2；negative 为 true 表示命中负缓存。
// 两层都未命中返回 ("", false, nil)。
func (c *LinkCache) Get(ctx context.Context, code string) (string, bool, error) {
	// L1: 本地缓存
	if c.local != nil {
		if v, ok := c.local.Get(code); ok {
			if v == notFoundSentinel {
				metrics.CacheOperations.WithLabelValues("l1", "hit_negative").Inc()
				return "", true, nil
			}
			metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
			return v, false, nil
		}
	}

	// L2: Redis
	res, err := c.client.Get(ctx, keyPrefix+code).Result()
	if err == redis.Nil {
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if res == notFoundSentinel {
		metrics.CacheOperations.WithLabelValues("l2", "hit_negative").Inc()
		// 回填本地负缓存
		if c.local != nil {
			c.local.SetNotFound(code)
		}
		return "", true, nil
	}

	metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()
	if c.local != nil {
		c.local.Set(code, res)
	}
	return res, false, nil
}

func (c *LinkCache) Set(ctx context.Context, code, url string) error {
	if c.local != nil {
		c.local.Set(code, url)
	}
	return c.client.Set(ctx, keyPrefix+code, url, c.ttl).Err()
}

// SetNotFound 写入负缓存，TTL 刻意很短：短码随后被创建时不至于长时间不可用。
func (c *LinkCache) SetNotFound(ctx context.Context, code string) error {
	if c.local != nil {
		c.local.SetNotFound(code)
	}
	return c.client.Set(ctx, keyPrefix+code, notFoundSentinel, c.emptyTTL).Err()
}

func (c *LinkCache) Delete(ctx context.Context, code string) error {
	if c.local != nil {
		c.local.Del(code)
	}
	return c.client.Del(ctx, keyPrefix+code).Err()
}

// Close 关闭本地缓存（Redis 连接由调用方负责）。
func (c *LinkCache) Close() {
	if c.local != nil {
		c.local.Close()
		slog.Info("local cache closed")
	}
}
