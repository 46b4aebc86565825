package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryThrottle(t *testing.T) {
	ctx := context.Background()

	t.Run("CooldownPerKey", func(t *testing.T) {
		th := NewMemoryThrottle(50 * time.Millisecond)

		ok, err := th.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, _ = th.Allow(ctx, "user-1")
		assert.False(t, ok)

		ok, _ = th.Allow(ctx, "user-2")
		assert.True(t, ok)

		time.Sleep(80 * time.Millisecond)
		ok, _ = th.Allow(ctx, "user-1")
		assert.True(t, ok)
	})

	t.Run("ZeroWindowDisables", func(t *testing.T) {
		th := NewMemoryThrottle(0)
		for i := 0; i < 3; i++ {
			ok, err := th.Allow(ctx, "user-1")
			require.NoError(t, err)
			assert.True(t, ok)
		}
	})
}

func TestRedisThrottle(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	th := NewRedisThrottle(client, time.Minute, "")

	ok, err := th.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("pwreset:user-1"))

	ok, err = th.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(time.Minute + time.Second)
	ok, err = th.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, ok)

	t.Run("FailsOpen", func(t *testing.T) {
		broken := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		defer broken.Close()
		th := NewRedisThrottle(broken, time.Minute, "other")
		mr.SetError("server is down")
		defer mr.SetError("")

		ok, err := th.Allow(ctx, "user-1")
		assert.Error(t, err)
		assert.True(t, ok)
	})
}
