package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/moldesc/internal/config"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

func newMiniClient(t *testing.T) (*miniredis.Miniredis, *Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(config.RedisConfig{Addr: mr.Addr()}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNewClient_Success(t *testing.T) {
	_, client := newMiniClient(t)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestNewClient_ConnectionFailed(t *testing.T) {
	client, err := NewClient(config.RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond}, logging.NewNopLogger())
	assert.Nil(t, client)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeServiceUnavailable))
}

func TestClient_Operations(t *testing.T) {
	mr, client := newMiniClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "foo", "bar", 0).Err())
	val, err := client.Get(ctx, "foo").Result()
	require.NoError(t, err)
	assert.Equal(t, "bar", val)

	ok, err := client.SetNX(ctx, "foo", "baz", 0).Result()
	require.NoError(t, err)
	assert.False(t, ok)

	vals, err := client.MGet(ctx, "foo", "nope").Result()
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"bar", nil}, vals)

	n, err := client.Del(ctx, "foo").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.False(t, mr.Exists("foo"))
}

func TestClient_ClosedRejectsCommands(t *testing.T) {
	_, client := newMiniClient(t)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	ctx := context.Background()
	assert.Equal(t, ErrClientClosed, client.Ping(ctx))
	assert.Equal(t, ErrClientClosed, client.Get(ctx, "k").Err())
	assert.Equal(t, ErrClientClosed, client.Set(ctx, "k", "v", 0).Err())
	assert.Equal(t, ErrClientClosed, client.Del(ctx, "k").Err())
	_, _, err := client.Scan(ctx, 0, "*", 10).Result()
	assert.Equal(t, ErrClientClosed, err)
}

func TestCache_ClaimOnce(t *testing.T) {
	mr, client := newMiniClient(t)
	cache := NewRedisCache(client, nil)
	ctx := context.Background()

	ok, err := cache.Claim(ctx, "req:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.Claim(ctx, "req:1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, mr.Exists("moldesc:req:1"))
	mr.FastForward(2 * time.Minute)

	ok, err = cache.Claim(ctx, "req:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_DeleteByPrefix(t *testing.T) {
	mr, client := newMiniClient(t)
	cache := NewRedisCache(client, nil)
	ctx := context.Background()

	for _, k := range []string{"row:a", "row:b", "run:c"} {
		require.NoError(t, cache.Set(ctx, k, k, time.Minute))
	}
	n, err := cache.DeleteByPrefix(ctx, "row:")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, mr.Exists("moldesc:run:c"))
	assert.False(t, mr.Exists("moldesc:row:a"))
}
