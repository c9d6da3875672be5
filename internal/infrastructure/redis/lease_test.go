package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wschoenell/chimera-manager/internal/infrastructure/redis"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestLease_AcquireRelease(t *testing.T) {
	mr, client := newClient(t)
	lease := redis.NewLease(client, "test:", "oper", time.Minute)
	ctx := context.Background()

	held, release, ok, err := lease.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NoError(t, held.Err())
	assert.True(t, mr.Exists("test:pass:oper"), "lease key should be set")
	assert.Equal(t, time.Minute, mr.TTL("test:pass:oper"))

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("test:pass:oper"), "lease key should be removed after release")
	assert.Error(t, held.Err(), "held context ends with the release")
	assert.NoError(t, release(ctx), "second release is a no-op")
}

func TestLease_Contention(t *testing.T) {
	_, client := newClient(t)
	first := redis.NewLease(client, "test:", "oper", time.Minute)
	second := redis.NewLease(client, "test:", "oper", time.Minute)
	ctx := context.Background()

	_, release, ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, _, ok, err = second.Acquire(ctx)
	assert.NoError(t, err)
	assert.False(t, ok, "second supervisor must skip the pass")

	require.NoError(t, release(ctx))

	_, release2, ok, err := second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, release2(ctx))
}

func TestLease_SitesAreIndependent(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()

	_, _, ok1, err := redis.NewLease(client, "test:", "north", time.Minute).Acquire(ctx)
	require.NoError(t, err)
	_, _, ok2, err := redis.NewLease(client, "test:", "south", time.Minute).Acquire(ctx)
	require.NoError(t, err)

	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestLease_ExpiredReleaseDoesNotStealNewHolder(t *testing.T) {
	mr, client := newClient(t)
	lease := redis.NewLease(client, "test:", "oper", time.Second)
	ctx := context.Background()

	_, stale, ok, err := lease.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	_, fresh, ok, err := lease.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok, "expired lease should be free")

	assert.ErrorIs(t, stale(ctx), redis.ErrLeaseLost)
	assert.True(t, mr.Exists("test:pass:oper"), "new holder keeps the lease")
	assert.NoError(t, fresh(ctx))
}

func TestLease_RenewedWhileHeld(t *testing.T) {
	mr, client := newClient(t)
	lease := redis.NewLease(client, "test:", "oper", 300*time.Millisecond)
	ctx := context.Background()

	held, release, ok, err := lease.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	defer release(ctx) //nolint:errcheck // test cleanup

	// Age the key close to expiry; the renewal must push the TTL back up.
	mr.FastForward(250 * time.Millisecond)
	assert.Eventually(t, func() bool {
		return mr.TTL("test:pass:oper") > 200*time.Millisecond
	}, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, held.Err())
}

func TestLease_TakeoverCancelsHeld(t *testing.T) {
	mr, client := newClient(t)
	lease := redis.NewLease(client, "test:", "oper", 300*time.Millisecond)
	ctx := context.Background()

	held, release, ok, err := lease.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, mr.Set("test:pass:oper", "someone-else"))

	select {
	case <-held.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("held context survived losing the lease")
	}
	assert.ErrorIs(t, context.Cause(held), redis.ErrLeaseLost)
	assert.ErrorIs(t, release(ctx), redis.ErrLeaseLost)

	got, err := mr.Get("test:pass:oper")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got, "release must not delete the new holder's key")
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	lease, err := redis.Connect(ctx, redis.Config{Addr: mr.Addr(), Prefix: "chimera:"}, "oper")
	require.NoError(t, err)
	defer lease.Close()

	assert.Equal(t, "chimera:pass:oper", lease.Key())
	assert.NoError(t, lease.HealthCheck(ctx))
}

func TestConnect_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := redis.Connect(ctx, redis.Config{Addr: "127.0.0.1:1"}, "oper")
	assert.Error(t, err)
}
