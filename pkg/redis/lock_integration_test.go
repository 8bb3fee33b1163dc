//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/testutil/containers"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	container := containers.NewRedisContainer(t)
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	client, err := redis.NewClientWithOptions(context.Background(), container.Options, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLocker(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()

	t.Run("lock keys blocks a second holder until unlocked", func(t *testing.T) {
		first := redis.NewLocker(client, "test:", time.Minute, 100*time.Millisecond)
		second := redis.NewLocker(client, "test:", time.Minute, 100*time.Millisecond)

		unlock, err := first.LockKeys(ctx, []string{"phone:1", "email:a", "email:a"})
		require.NoError(t, err)

		_, err = second.LockKeys(ctx, []string{"email:a"})
		require.Error(t, err)
		assert.Equal(t, 503, httperror.GetStatusCode(err))

		// The failed attempt must not leave phone:1 behind.
		_, err = second.LockKeys(ctx, []string{"phone:2"})
		require.NoError(t, err)

		unlock(ctx)

		unlockAgain, err := second.LockKeys(ctx, []string{"email:a", "phone:1"})
		require.NoError(t, err)
		unlockAgain(ctx)
	})

	t.Run("release only deletes the owner's lock", func(t *testing.T) {
		locker := redis.NewLocker(client, "owner:", time.Minute, time.Second)

		lock, err := locker.Acquire(ctx, "k", time.Minute)
		require.NoError(t, err)

		_, err = locker.Acquire(ctx, "k", time.Minute)
		assert.ErrorIs(t, err, redis.ErrLockNotAcquired)

		require.NoError(t, lock.Extend(ctx, 2*time.Minute))
		require.NoError(t, lock.Release(ctx))
		assert.ErrorIs(t, lock.Release(ctx), redis.ErrLockNotHeld)
	})

	t.Run("expired locks can be taken over", func(t *testing.T) {
		locker := redis.NewLocker(client, "ttl:", 50*time.Millisecond, time.Second)

		_, err := locker.Acquire(ctx, "k", 50*time.Millisecond)
		require.NoError(t, err)

		lock, err := locker.TryAcquire(ctx, "k", time.Minute, time.Second)
		require.NoError(t, err)
		require.NoError(t, lock.Release(ctx))
	})
}
