package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottle_LockoutAfterThreshold(t *testing.T) {
	ctx := context.Background()
	throttle := NewThrottle(NewMemoryAttemptStore(15*time.Minute), 5, 15*time.Minute)

	for i := 0; i < 4; i++ {
		require.NoError(t, throttle.RecordFailure(ctx, "alice"))
		assert.NoError(t, throttle.CheckAllowed(ctx, "alice"))
	}

	require.NoError(t, throttle.RecordFailure(ctx, "alice"))

	err := throttle.CheckAllowed(ctx, "alice")
	require.Error(t, err)
	var locked ErrAccountLocked
	require.ErrorAs(t, err, &locked)
	assert.Greater(t, locked.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, locked.RetryAfter, 15*time.Minute)
}

func TestThrottle_SuccessClearsCounter(t *testing.T) {
	ctx := context.Background()
	throttle := NewThrottle(NewMemoryAttemptStore(15*time.Minute), 5, 15*time.Minute)

	for i := 0; i < 3; i++ {
		require.NoError(t, throttle.RecordFailure(ctx, "alice"))
	}
	require.NoError(t, throttle.RecordSuccess(ctx, "alice"))

	_, ok, err := throttle.store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestThrottle_WindowSlidesFromLastFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAttemptStore(time.Minute)
	throttle := NewThrottle(store, 5, time.Minute)

	// Four failures long ago, fifth one just now: still locked because the
	// window is measured from the most recent failure.
	old := time.Now().UTC().Add(-50 * time.Second)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Record(ctx, "alice", old))
	}
	require.NoError(t, store.Record(ctx, "alice", time.Now().UTC()))

	var locked ErrAccountLocked
	require.ErrorAs(t, throttle.CheckAllowed(ctx, "alice"), &locked)
}

func TestThrottle_StaleLockoutExpires(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAttemptStore(time.Minute)
	throttle := NewThrottle(store, 5, time.Minute)

	expired := time.Now().UTC().Add(-2 * time.Minute)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(ctx, "alice", expired))
	}

	assert.NoError(t, throttle.CheckAllowed(ctx, "alice"))

	_, ok, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "stale counter should be discarded")
}

func TestThrottle_UnknownUsernameAllowed(t *testing.T) {
	throttle := NewThrottle(NewMemoryAttemptStore(time.Minute), 5, time.Minute)
	assert.NoError(t, throttle.CheckAllowed(context.Background(), "nobody"))
}

func TestMemoryAttemptStore_ConcurrentFailuresCountExactly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAttemptStore(time.Minute)

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_ = store.Record(ctx, "alice", time.Now().UTC())
		}()
	}
	wg.Wait()

	attempt, ok, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, workers, attempt.Count)
}

func TestRedisAttemptStore(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisAttemptStore(client, time.Minute)

	_, ok, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.Record(ctx, "alice", at))
	require.NoError(t, store.Record(ctx, "alice", at))

	attempt, ok, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, attempt.Count)
	assert.WithinDuration(t, at, attempt.LastFailure, time.Millisecond)

	require.NoError(t, store.Clear(ctx, "alice"))
	_, ok, err = store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisAttemptStore_KeyExpires(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := NewRedisAttemptStore(client, time.Minute)

	require.NoError(t, store.Record(ctx, "alice", time.Now().UTC()))

	server.FastForward(2 * time.Minute)

	_, ok, err := store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}
