// Package presence 在线状态目录：身份在线当且仅当至少存在一个打开的连接
package presence

import (
	"context"
	log "log/slog"
	"sync"
	"time"
)

// Presence 在线状态投影
type Presence struct {
	UserID   uint64    `json:"userId"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
}

// Counter 连接计数的后端。单机使用内存计数，集群模式下使用 Redis 共享计数
type Counter interface {
	Incr(ctx context.Context, userID uint64, at time.Time) (int64, error)
	Decr(ctx context.Context, userID uint64, at time.Time) (int64, error)
	Get(ctx context.Context, userID uint64) (Presence, error)
}

// Directory 在线状态目录
type Directory struct {
	counter Counter
	now     func() time.Time
}

func NewDirectory(counter Counter) *Directory {
	if counter == nil {
		counter = NewMemoryCounter()
	}
	return &Directory{counter: counter, now: time.Now}
}

// Connect 记录一个新连接，返回是否从离线变为在线
func (d *Directory) Connect(ctx context.Context, userID uint64) bool {
	n, err := d.counter.Incr(ctx, userID, d.now())
	if err != nil {
		log.ErrorContext(ctx, "presence incr failed", "userID", userID, "err", err)
		return false
	}
	return n == 1
}

// Disconnect 记录连接关闭，返回是否从在线变为离线以及最后在线时间
func (d *Directory) Disconnect(ctx context.Context, userID uint64) (bool, time.Time) {
	at := d.now()
	n, err := d.counter.Decr(ctx, userID, at)
	if err != nil {
		log.ErrorContext(ctx, "presence decr failed", "userID", userID, "err", err)
		return false, at
	}
	return n == 0, at
}

// Get 查询在线状态
func (d *Directory) Get(ctx context.Context, userID uint64) (Presence, error) {
	return d.counter.Get(ctx, userID)
}

// MemoryCounter 进程内计数
type MemoryCounter struct {
	mu       sync.Mutex
	counts   map[uint64]int64
	lastSeen map[uint64]time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		counts:   make(map[uint64]int64),
		lastSeen: make(map[uint64]time.Time),
	}
}

func (c *MemoryCounter) Incr(_ context.Context, userID uint64, at time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[userID]++
	c.lastSeen[userID] = at
	return c.counts[userID], nil
}

func (c *MemoryCounter) Decr(_ context.Context, userID uint64, at time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.counts[userID] - 1
	if n <= 0 {
		n = 0
		delete(c.counts, userID)
	} else {
		c.counts[userID] = n
	}
	c.lastSeen[userID] = at
	return n, nil
}

func (c *MemoryCounter) Get(_ context.Context, userID uint64) (Presence, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Presence{
		UserID:   userID,
		Online:   c.counts[userID] > 0,
		LastSeen: c.lastSeen[userID],
	}, nil
}
