package repo

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLockExclusive(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()

	first := NewRedisLock(client, "lock:reclaim:42", time.Minute)
	second := NewRedisLock(client, "lock:reclaim:42", time.Minute)

	require.NoError(t, first.Lock(ctx))
	assert.ErrorIs(t, second.Lock(ctx), ErrLockBusy)

	require.NoError(t, first.Unlock(ctx))
	require.NoError(t, second.Lock(ctx))
	require.NoError(t, second.Unlock(ctx))
}

func TestRedisLockUnlockLeavesForeignToken(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()

	lock := NewRedisLock(client, "lock:reclaim:7", time.Second)
	require.NoError(t, lock.Lock(ctx))

	// lock expired and someone else took it
	mr.FastForward(2 * time.Second)
	other := NewRedisLock(client, "lock:reclaim:7", time.Minute)
	require.NoError(t, other.Lock(ctx))

	require.NoError(t, lock.Unlock(ctx))
	assert.True(t, mr.Exists("lock:reclaim:7"))
}

func TestRedisLockUnlockWithoutLock(t *testing.T) {
	_, client := newTestRedis(t)

	assert.NoError(t, NewRedisLock(client, "k", time.Second).Unlock(context.Background()))
}
