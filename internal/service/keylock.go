package service

import (
	"context"
	"sync"
)

// ConversationLocker 会话级互斥，成功时返回释放函数
type ConversationLocker interface {
	Acquire(ctx context.Context, conversationID uint64) (func(), error)
}

// keyLock 按会话 ID 串行化变更，不同会话互不阻塞
type keyLock struct {
	mu    sync.Mutex
	locks map[uint64]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[uint64]*lockEntry)}
}

// Lock 返回解锁函数，条目在最后一个持有者释放后回收
func (k *keyLock) Lock(key uint64) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Acquire 进程内加锁不会失败
func (k *keyLock) Acquire(_ context.Context, key uint64) (func(), error) {
	return k.Lock(key), nil
}

func (k *keyLock) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
