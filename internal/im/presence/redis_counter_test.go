package presence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveTotalSkipsDeadNodes(t *testing.T) {
	counts := map[string]string{"a": "2", "b": "1", "c": "5", "d": "0"}
	alive := map[string]bool{"a": true, "b": true, "d": true}

	n, dead := liveTotal(counts, alive)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []string{"c"}, dead)

	n, dead = liveTotal(counts, nil)
	assert.Zero(t, n)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, dead)
}

// 需要真实 redis：MURMUR_TEST_REDIS=127.0.0.1:6379
func TestRedisCounterIgnoresCrashedNode(t *testing.T) {
	addr := os.Getenv("MURMUR_TEST_REDIS")
	if addr == "" {
		t.Skip("MURMUR_TEST_REDIS not set")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	userID := uint64(time.Now().UnixNano())
	a := NewRedisCounter(rdb, "node-a")
	b := NewRedisCounter(rdb, "node-b")
	t.Cleanup(func() {
		rdb.Del(ctx, connsKey(userID), lastSeenKey(userID), nodeKey("node-a"), nodeKey("node-b"))
	})

	n, err := a.Incr(ctx, userID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = b.Incr(ctx, userID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// node-a 没有正常关闭，心跳过期
	require.NoError(t, rdb.Del(ctx, nodeKey("node-a")).Err())

	p, err := b.Get(ctx, userID)
	require.NoError(t, err)
	assert.True(t, p.Online)

	n, err = b.Decr(ctx, userID, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	p, err = a.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, p.Online)
	assert.Zero(t, rdb.HLen(ctx, connsKey(userID)).Val())
}
