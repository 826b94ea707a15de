package usage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *RedisLimiter) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisLimiter(client)
}

func TestRedisLimiter_ReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	mr, l := setupRedis(t)
	key := Key{RuleID: "r1", CustomerID: "alice"}
	limits := Limits{MaxTotal: Int64(5), MaxPerCustomer: Int64(3)}

	got, err := l.Reserve(ctx, key, limits, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)

	assert.Equal(t, "3", mr.HGet("promo:usage:{r1}", "total"))
	assert.Equal(t, "3", mr.HGet("promo:usage:{r1}", "c:alice"))

	got, err = l.Reserve(ctx, Key{RuleID: "r1", CustomerID: "bob"}, limits, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	require.NoError(t, l.Release(ctx, key, 3))
	assert.Equal(t, "2", mr.HGet("promo:usage:{r1}", "total"))
	assert.Equal(t, "", mr.HGet("promo:usage:{r1}", "c:alice"), "zeroed customer field is removed")
}

func TestRedisLimiter_Unbounded(t *testing.T) {
	ctx := context.Background()
	_, l := setupRedis(t)

	got, err := l.Reserve(ctx, Key{RuleID: "r1"}, Limits{}, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestRedisLimiter_RemainingFor(t *testing.T) {
	ctx := context.Background()
	_, l := setupRedis(t)
	key := Key{RuleID: "r1", CustomerID: "alice"}
	limits := Limits{MaxTotal: Int64(10), MaxPerCustomer: Int64(4)}

	rem, err := l.RemainingFor(ctx, key, limits)
	require.NoError(t, err)
	assert.Equal(t, int64(10), *rem.Total)
	assert.Equal(t, int64(4), *rem.PerCustomer)

	_, err = l.Reserve(ctx, key, limits, 3)
	require.NoError(t, err)

	rem, err = l.RemainingFor(ctx, key, limits)
	require.NoError(t, err)
	assert.Equal(t, int64(7), *rem.Total)
	assert.Equal(t, int64(1), *rem.PerCustomer)
}

func TestRedisLimiter_ConcurrentReserveNeverExceedsCap(t *testing.T) {
	ctx := context.Background()
	_, l := setupRedis(t)
	limits := Limits{MaxTotal: Int64(10)}

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := l.Reserve(ctx, Key{RuleID: "hot"}, limits, 1)
			assert.NoError(t, err)
			granted.Add(got)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), granted.Load())
}

func TestRedisLimiter_ErrorWhenUnavailable(t *testing.T) {
	mr, l := setupRedis(t)
	mr.Close()

	_, err := l.Reserve(context.Background(), Key{RuleID: "r1"}, Limits{}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserve usage for rule r1")
}
