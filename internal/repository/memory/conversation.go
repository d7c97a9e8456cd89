// Package memory 进程内存储，用于单机部署与测试
package memory

import (
	"Murmur/internal/im/membership"
	"Murmur/internal/repository"
	"context"
	"sort"
	"sync"
)

type ConversationRepo struct {
	mu     sync.RWMutex
	nextID uint64
	convs  map[uint64]membership.Conversation
	direct map[string]uint64
}

func NewConversationRepo() *ConversationRepo {
	return &ConversationRepo{
		convs:  make(map[uint64]membership.Conversation),
		direct: make(map[string]uint64),
	}
}

// Create 分配 ID 并保存，单聊按成员对去重
func (s *ConversationRepo) Create(_ context.Context, c membership.Conversation) (membership.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key string
	if c.Kind == membership.KindDirect && len(c.Members) == 2 {
		key = repository.PeerKey(c.Members[0].UserID, c.Members[1].UserID)
		if _, ok := s.direct[key]; ok {
			return membership.Conversation{}, repository.ErrDirectExists
		}
	}

	s.nextID++
	c = c.Clone()
	c.ID = s.nextID
	s.convs[c.ID] = c
	if key != "" {
		s.direct[key] = c.ID
	}
	return c.Clone(), nil
}

func (s *ConversationRepo) Load(_ context.Context, id uint64) (membership.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return membership.Conversation{}, repository.ErrConversationNotFound
	}
	return c.Clone(), nil
}

func (s *ConversationRepo) FindDirect(_ context.Context, a, b uint64) (membership.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.direct[repository.PeerKey(a, b)]
	if !ok {
		return membership.Conversation{}, repository.ErrConversationNotFound
	}
	return s.convs[id].Clone(), nil
}

// ListForUser 用户参与的会话，置顶优先，其余按最后活跃时间倒序
func (s *ConversationRepo) ListForUser(_ context.Context, userID uint64) ([]membership.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]membership.Conversation, 0)
	for _, c := range s.convs {
		if c.IsMember(userID) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := pinned(out[i], userID), pinned(out[j], userID)
		if pi != pj {
			return pi
		}
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func pinned(c membership.Conversation, userID uint64) bool {
	m, _ := c.Member(userID)
	return m.IsPinned
}

// Apply 所有写操作要么全部生效要么全部不生效
func (s *ConversationRepo) Apply(_ context.Context, writes []membership.Write) error {
	if len(writes) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[uint64]membership.Conversation)
	for _, w := range writes {
		c, ok := staged[w.ConversationID]
		if !ok {
			if c, ok = s.convs[w.ConversationID]; !ok {
				return repository.ErrConversationNotFound
			}
		}
		next, err := membership.Replay(c, w)
		if err != nil {
			return err
		}
		staged[w.ConversationID] = next
	}
	for id, c := range staged {
		s.convs[id] = c
	}
	return nil
}
