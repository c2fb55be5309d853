package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRedis implements only the commands the cache issues.
type stubRedis struct {
	redis.Cmdable
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
}

func (s *stubRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if s.getErr != nil {
		return redis.NewStringResult("", s.getErr)
	}
	v, ok := s.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (s *stubRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	s.data[key] = value.(string)
	s.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func TestRedisChatIDCache(t *testing.T) {
	rdb := &stubRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
	c := NewWithClient(rdb, time.Hour, logrus.New())
	ctx := context.Background()

	_, ok := c.Get(ctx, "ann@example.com")
	assert.False(t, ok)

	c.Set(ctx, "ann@example.com", "U0999ZZZZZ")
	id, ok := c.Get(ctx, "ann@example.com")
	require.True(t, ok)
	assert.Equal(t, "U0999ZZZZZ", id)
	assert.Equal(t, time.Hour, rdb.ttls[keyPrefix+"ann@example.com"])
}

func TestRedisChatIDCacheErrorIsMiss(t *testing.T) {
	rdb := &stubRedis{getErr: errors.New("connection refused")}
	c := NewWithClient(rdb, time.Hour, logrus.New())

	_, ok := c.Get(context.Background(), "ann@example.com")
	assert.False(t, ok)
}

func TestNewRedisChatIDCacheDisabled(t *testing.T) {
	c, err := NewRedisChatIDCache("", time.Hour, logrus.New())
	require.NoError(t, err)
	assert.Nil(t, c)
}
