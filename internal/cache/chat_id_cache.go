// Package cache keeps chat user ids resolved from email so repeated
// broadcasts do not repeat provider lookups.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "broadcast:chatid:"

type RedisChatIDCache struct {
	rdb redis.Cmdable
	ttl time.Duration
	log *logrus.Logger
}

// NewRedisChatIDCache returns nil when url is empty so callers can run without Redis.
func NewRedisChatIDCache(url string, ttl time.Duration, log *logrus.Logger) (*RedisChatIDCache, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewWithClient(redis.NewClient(opts), ttl, log), nil
}

func NewWithClient(rdb redis.Cmdable, ttl time.Duration, log *logrus.Logger) *RedisChatIDCache {
	return &RedisChatIDCache{rdb: rdb, ttl: ttl, log: log}
}

// Get treats any Redis failure as a miss.
func (c *RedisChatIDCache) Get(ctx context.Context, email string) (string, bool) {
	id, err := c.rdb.Get(ctx, keyPrefix+email).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).Warn("🧠 [CACHE] Chat id lookup failed")
		}
		return "", false
	}
	return id, id != ""
}

func (c *RedisChatIDCache) Set(ctx context.Context, email, chatID string) {
	if err := c.rdb.Set(ctx, keyPrefix+email, chatID, c.ttl).Err(); err != nil {
		c.log.WithError(err).Warn("🧠 [CACHE] Chat id store failed")
	}
}

func (c *RedisChatIDCache) Close() error {
	if closer, ok := c.rdb.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
