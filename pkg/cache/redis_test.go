package cache

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_Local(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:6379", DialTimeout: 500 * time.Millisecond})
	defer func() { _ = client.Close() }()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}

	c := NewRedisCache(client, "megaservice:test:")
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	defer func() { _ = c.Del(context.Background(), "k") }()

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	// 键带前缀
	assert.Equal(t, "v", client.Get(ctx, "megaservice:test:k").Val())

	require.NoError(t, c.Del(ctx, "k"))
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
