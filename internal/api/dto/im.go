package dto

import (
	"Murmur/internal/im/membership"
	"time"
)

// CreateConversationReq 创建会话，单聊 memberIds 只填对方
type CreateConversationReq struct {
	Kind      membership.Kind `json:"kind" binding:"required,oneof=direct group channel"`
	Name      string          `json:"name" binding:"max=128"`
	MemberIDs []uint64        `json:"memberIds" binding:"required,min=1,max=500"`
}

// AddMemberReq 添加成员，role 为空时为 member
type AddMemberReq struct {
	UserID uint64          `json:"userId" binding:"required"`
	Role   membership.Role `json:"role" binding:"omitempty,oneof=admin moderator member"`
}

// UpdateRoleReq 修改角色
type UpdateRoleReq struct {
	Role membership.Role `json:"role" binding:"required,oneof=admin moderator member"`
}

// RenameConversationReq 修改群名
type RenameConversationReq struct {
	Name string `json:"name" binding:"required,max=128"`
}

type EmojiReq struct {
	Emoji string `json:"emoji" binding:"required,max=32"`
}

// UpdateSettingsReq 免打扰/置顶，不传表示不修改
type UpdateSettingsReq struct {
	IsMuted  *bool `json:"isMuted"`
	IsPinned *bool `json:"isPinned"`
}

// ConversationDTO 会话列表项，未读数与设置为当前用户视角
type ConversationDTO struct {
	ID            uint64              `json:"id"`
	Kind          membership.Kind     `json:"kind"`
	Name          string              `json:"name,omitempty"`
	CreatedBy     uint64              `json:"createdBy"`
	PeerID        uint64              `json:"peerId,omitempty"`
	Members       []membership.Member `json:"members"`
	LastMessageID string              `json:"lastMessageId,omitempty"`
	LastActivity  time.Time           `json:"lastActivity"`
	UnreadCount   uint64              `json:"unreadCount"`
	IsMuted       bool                `json:"isMuted"`
	IsPinned      bool                `json:"isPinned"`
	Role          membership.Role     `json:"role"`
}

// HistoryDTO 历史消息分页，按时间倒序
type HistoryDTO struct {
	Messages   []*MessageDTO `json:"messages"`
	HasMore    bool          `json:"hasMore"`
	NextBefore string        `json:"nextBefore,omitempty"`
}

// UnreadItemDTO 重连后的未读同步项
type UnreadItemDTO struct {
	ConversationID    uint64 `json:"conversationId"`
	UnreadCount       uint64 `json:"unreadCount"`
	LastReadMessageID string `json:"lastReadMessageId,omitempty"`
	LastMessageID     string `json:"lastMessageId,omitempty"`
}

type SyncUnreadDTO struct {
	Conversations []UnreadItemDTO `json:"conversations"`
	TotalUnread   uint64          `json:"totalUnread"`
}

// PushNotification 交给推送服务的离线通知
type PushNotification struct {
	UserID         uint64    `json:"userId"`
	ConversationID uint64    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	SenderID       uint64    `json:"senderId"`
	Type           string    `json:"type"`
	Preview        string    `json:"preview"`
	CreatedAt      time.Time `json:"createdAt"`
}

// MemberChange 成员表变更（CDC），用于让在线连接加入或离开房间
type MemberChange struct {
	ConversationID uint64 `json:"conversationId"`
	UserID         uint64 `json:"userId"`
	Joined         bool   `json:"joined"`
}
