package presence

import (
	"Murmur/internal/pkg/consts"
	"context"
	"errors"
	log "log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// NodeTTL 节点心跳的过期时间，节点宕机后最迟这么久其连接不再计入在线
const NodeTTL = 30 * time.Second

// RedisCounter 集群共享的连接计数。每个用户一个 hash，按节点分别计数，
// 只有心跳键仍存在的节点才计入，崩溃节点留下的计数随心跳过期失效
type RedisCounter struct {
	rdb    redis.Cmdable
	nodeID string
	ttl    time.Duration
}

func NewRedisCounter(rdb redis.Cmdable, nodeID string) *RedisCounter {
	return &RedisCounter{rdb: rdb, nodeID: nodeID, ttl: NodeTTL}
}

func connsKey(userID uint64) string {
	return consts.PresenceConnsKey + strconv.FormatUint(userID, 10)
}

func lastSeenKey(userID uint64) string {
	return consts.PresenceLastSeenKey + strconv.FormatUint(userID, 10)
}

func nodeKey(nodeID string) string {
	return consts.PresenceNodeKey + nodeID
}

// Run 定期刷新本节点心跳，退出时删除心跳键
func (c *RedisCounter) Run(ctx context.Context) error {
	if err := c.beat(ctx); err != nil {
		return err
	}
	ticker := time.NewTicker(c.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := c.rdb.Del(context.WithoutCancel(ctx), nodeKey(c.nodeID)).Err(); err != nil {
				log.Warn("remove presence heartbeat failed", "nodeID", c.nodeID, "err", err)
			}
			return nil
		case <-ticker.C:
			if err := c.beat(ctx); err != nil && ctx.Err() == nil {
				log.Warn("presence heartbeat failed", "nodeID", c.nodeID, "err", err)
			}
		}
	}
}

func (c *RedisCounter) beat(ctx context.Context) error {
	return c.rdb.Set(ctx, nodeKey(c.nodeID), 1, c.ttl).Err()
}

func (c *RedisCounter) Incr(ctx context.Context, userID uint64, at time.Time) (int64, error) {
	return c.add(ctx, userID, 1, at)
}

func (c *RedisCounter) Decr(ctx context.Context, userID uint64, at time.Time) (int64, error) {
	return c.add(ctx, userID, -1, at)
}

func (c *RedisCounter) add(ctx context.Context, userID uint64, delta int64, at time.Time) (int64, error) {
	var n *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		n = pipe.HIncrBy(ctx, connsKey(userID), c.nodeID, delta)
		pipe.Set(ctx, lastSeenKey(userID), at.UnixMilli(), 0)
		pipe.Set(ctx, nodeKey(c.nodeID), 1, c.ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n.Val() <= 0 {
		if err := c.rdb.HDel(ctx, connsKey(userID), c.nodeID).Err(); err != nil {
			return 0, err
		}
	}
	return c.total(ctx, userID)
}

// total 汇总存活节点上的连接数，顺带清理已失效节点的计数
func (c *RedisCounter) total(ctx context.Context, userID uint64) (int64, error) {
	counts, err := c.rdb.HGetAll(ctx, connsKey(userID)).Result()
	if err != nil {
		return 0, err
	}
	if len(counts) == 0 {
		return 0, nil
	}

	nodes := make([]string, 0, len(counts))
	checks := make([]*redis.IntCmd, 0, len(counts))
	_, err = c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for node := range counts {
			nodes = append(nodes, node)
			checks = append(checks, pipe.Exists(ctx, nodeKey(node)))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	alive := make(map[string]bool, len(nodes))
	for i, node := range nodes {
		alive[node] = checks[i].Val() > 0
	}

	n, dead := liveTotal(counts, alive)
	if len(dead) > 0 {
		if err := c.rdb.HDel(ctx, connsKey(userID), dead...).Err(); err != nil {
			log.WarnContext(ctx, "prune dead presence nodes failed", "userID", userID, "err", err)
		}
	}
	return n, nil
}

// liveTotal 只累加存活节点的计数，返回需要清理的节点
func liveTotal(counts map[string]string, alive map[string]bool) (int64, []string) {
	var (
		total int64
		dead  []string
	)
	for node, raw := range counts {
		if !alive[node] {
			dead = append(dead, node)
			continue
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			total += n
		}
	}
	return total, dead
}

func (c *RedisCounter) Get(ctx context.Context, userID uint64) (Presence, error) {
	n, err := c.total(ctx, userID)
	if err != nil {
		return Presence{}, err
	}

	p := Presence{UserID: userID, Online: n > 0}
	s, err := c.rdb.Get(ctx, lastSeenKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Presence{}, err
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		p.LastSeen = time.UnixMilli(ms)
	}
	return p, nil
}
