package memory

import (
	"Murmur/internal/im/ledger"
	"Murmur/internal/repository"
	"context"
	"sort"
	"sync"
	"time"
)

type MessageRepo struct {
	mu     sync.RWMutex
	msgs   map[string]ledger.Message
	byConv map[uint64][]string
}

func NewMessageRepo() *MessageRepo {
	return &MessageRepo{
		msgs:   make(map[string]ledger.Message),
		byConv: make(map[uint64][]string),
	}
}

func (s *MessageRepo) Load(_ context.Context, id string) (ledger.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.msgs[id]
	if !ok {
		return ledger.Message{}, repository.ErrMessageNotFound
	}
	return m.Clone(), nil
}

func (s *MessageRepo) Apply(_ context.Context, writes []ledger.Write) error {
	if len(writes) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]ledger.Message)
	discarded := make(map[string]struct{})
	var inserted []ledger.Message
	for _, w := range writes {
		m, ok := staged[w.MessageID]
		if !ok {
			if _, gone := discarded[w.MessageID]; !gone {
				m, ok = s.msgs[w.MessageID]
			}
		}
		if w.Op == ledger.OpInsert {
			if ok {
				return repository.ErrMessageExists
			}
		} else if !ok {
			return repository.ErrMessageNotFound
		}
		if w.Op == ledger.OpDiscard {
			delete(staged, w.MessageID)
			discarded[w.MessageID] = struct{}{}
			continue
		}
		m = ledger.Replay(m, w)
		staged[w.MessageID] = m
		delete(discarded, w.MessageID)
		if w.Op == ledger.OpInsert {
			inserted = append(inserted, m)
		}
	}
	for id := range discarded {
		s.remove(id)
	}
	for id, m := range staged {
		s.msgs[id] = m
	}
	for _, m := range inserted {
		if _, ok := staged[m.ID]; ok {
			s.byConv[m.ConversationID] = append(s.byConv[m.ConversationID], m.ID)
		}
	}
	return nil
}

// remove 从主表和会话索引中删除消息，调用方持有写锁
func (s *MessageRepo) remove(id string) {
	m, ok := s.msgs[id]
	if !ok {
		return
	}
	delete(s.msgs, id)
	ids := s.byConv[m.ConversationID]
	for i, v := range ids {
		if v == id {
			s.byConv[m.ConversationID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}

// History 按 ID 倒序分页，before 为空时从最新一条开始
func (s *MessageRepo) History(_ context.Context, conversationID uint64, before string, limit int) ([]ledger.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byConv[conversationID]
	out := make([]ledger.Message, 0, limit)
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		if before != "" && ids[i] >= before {
			continue
		}
		out = append(out, s.msgs[ids[i]].Clone())
	}
	return out, nil
}

// ListUndelivered 他人发送给 userID 且尚未投递的消息，按 ID 正序
func (s *MessageRepo) ListUndelivered(_ context.Context, conversationIDs []uint64, userID uint64, limit int) ([]ledger.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ledger.Message
	for _, convID := range conversationIDs {
		for _, id := range s.byConv[convID] {
			m := s.msgs[id]
			if m.SenderID != userID && !m.DeliveredToUser(userID) {
				out = append(out, m.Clone())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MessageRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]ledger.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ledger.Message
	for _, m := range s.msgs {
		if m.Expired(now) && !m.IsDeleted {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
