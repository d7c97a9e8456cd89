// Package membership 会话成员关系的纯状态转换。
// 所有操作接收当前会话状态，返回新状态与需要由存储层落盘的写操作列表，本身不做任何 IO。
package membership

import (
	"time"
)

type Kind string

const (
	KindDirect  Kind = "direct"
	KindGroup   Kind = "group"
	KindChannel Kind = "channel"
)

func (k Kind) Valid() bool {
	switch k {
	case KindDirect, KindGroup, KindChannel:
		return true
	}
	return false
}

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleMember:
		return true
	}
	return false
}

// Member 会话成员及其已读状态
type Member struct {
	UserID            uint64    `json:"userId"`
	Role              Role      `json:"role"`
	LastReadMessageID string    `json:"lastReadMessageId,omitempty"` // 空串表示从未读过
	UnreadCount       uint64    `json:"unreadCount"`
	IsMuted           bool      `json:"isMuted"`
	IsPinned          bool      `json:"isPinned"`
	JoinedAt          time.Time `json:"joinedAt"`
}

// Conversation 会话快照
type Conversation struct {
	ID            uint64    `json:"id"`
	Kind          Kind      `json:"kind"`
	Name          string    `json:"name,omitempty"`
	CreatedBy     uint64    `json:"createdBy"`
	Members       []Member  `json:"members"`
	LastMessageID string    `json:"lastMessageId,omitempty"`
	LastActivity  time.Time `json:"lastActivity"`
}

// Clone 深拷贝，转换函数从不修改入参
func (c Conversation) Clone() Conversation {
	out := c
	out.Members = make([]Member, len(c.Members))
	copy(out.Members, c.Members)
	return out
}

func (c Conversation) index(userID uint64) int {
	for i := range c.Members {
		if c.Members[i].UserID == userID {
			return i
		}
	}
	return -1
}

// Member 查找成员
func (c Conversation) Member(userID uint64) (Member, bool) {
	i := c.index(userID)
	if i < 0 {
		return Member{}, false
	}
	return c.Members[i], true
}

func (c Conversation) IsMember(userID uint64) bool {
	return c.index(userID) >= 0
}

// MemberIDs 全部成员 ID，按成员顺序
func (c Conversation) MemberIDs() []uint64 {
	ids := make([]uint64, 0, len(c.Members))
	for _, m := range c.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

// Peer 单聊中的对方
func (c Conversation) Peer(userID uint64) (uint64, bool) {
	if c.Kind != KindDirect {
		return 0, false
	}
	for _, m := range c.Members {
		if m.UserID != userID {
			return m.UserID, true
		}
	}
	return 0, false
}

// UnreadCount 会话内某成员的未读计数快照
type UnreadCount struct {
	UserID      uint64 `json:"userId"`
	UnreadCount uint64 `json:"unreadCount"`
}

// UnreadSnapshot 全量未读数快照，供 message_read 广播使用
func (c Conversation) UnreadSnapshot() []UnreadCount {
	out := make([]UnreadCount, 0, len(c.Members))
	for _, m := range c.Members {
		out = append(out, UnreadCount{UserID: m.UserID, UnreadCount: m.UnreadCount})
	}
	return out
}
