package dto

import (
	"Murmur/internal/im/ledger"
	"Murmur/internal/im/membership"
	"time"
)

// 客户端 -> 服务端
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventMessageSend       = "message_send"
	EventMessageEdit       = "message_edit"
	EventMessageDelete     = "message_delete"
	EventMessageReact      = "message_react"
	EventTyping            = "typing"
)

// 服务端 -> 客户端，message_read 与 typing 双向同名
const (
	EventMessageNew      = "message_new"
	EventMessageEdited   = "message_edited"
	EventMessageDeleted  = "message_deleted"
	EventMessageReaction = "message_reaction"
	EventMessageRead     = "message_read"
	EventUserOnline      = "user_online"
	EventUserOffline     = "user_offline"
	EventErrorGeneric    = "error_generic"
)

const (
	ReactionAdd    = "add"
	ReactionRemove = "remove"
)

// ConversationReq join_conversation / leave_conversation
type ConversationReq struct {
	ConversationID uint64 `json:"conversationId" validate:"required"`
}

// SendMessageReq message_send
type SendMessageReq struct {
	ConversationID uint64         `json:"conversationId" validate:"required"`
	Type           ledger.Type    `json:"type" validate:"required,oneof=text image video audio file system"`
	Content        ledger.Content `json:"content"`
	ClientID       string         `json:"clientId,omitempty" validate:"omitempty,max=64"`
	ReplyTo        string         `json:"replyTo,omitempty" validate:"omitempty,max=64"`
	ExpiresIn      int64          `json:"expiresIn,omitempty" validate:"omitempty,min=1,max=604800"` // 秒，阅后即焚
}

// EditMessageReq message_edit
type EditMessageReq struct {
	MessageID string         `json:"messageId" validate:"required,max=64"`
	Content   ledger.Content `json:"content"`
}

// MessageIDReq message_delete
type MessageIDReq struct {
	MessageID string `json:"messageId" validate:"required,max=64"`
}

// ReadReq message_read
type ReadReq struct {
	ConversationID uint64 `json:"conversationId" validate:"required"`
	MessageID      string `json:"messageId" validate:"required,max=64"`
}

// ReactReq message_react，已回应过则取消
type ReactReq struct {
	MessageID string `json:"messageId" validate:"required,max=64"`
	Emoji     string `json:"emoji" validate:"required,max=32"`
}

// TypingReq typing
type TypingReq struct {
	ConversationID uint64 `json:"conversationId" validate:"required"`
	IsTyping       bool   `json:"isTyping"`
}

// ReactionDTO 表情回应，HasReacted 为当前用户视角
type ReactionDTO struct {
	Emoji      string   `json:"emoji"`
	Users      []uint64 `json:"users"`
	Count      int      `json:"count"`
	HasReacted bool     `json:"hasReacted"`
}

// MessageDTO message_new 与历史消息
type MessageDTO struct {
	ID             string           `json:"id"`
	ConversationID uint64           `json:"conversationId"`
	SenderID       uint64           `json:"senderId"`
	Type           ledger.Type      `json:"type"`
	Content        ledger.Content   `json:"content"`
	ReplyTo        string           `json:"replyTo,omitempty"`
	Reactions      []ReactionDTO    `json:"reactions"`
	DeliveredTo    []ledger.Receipt `json:"deliveredTo"`
	ReadBy         []ledger.Receipt `json:"readBy"`
	EditedAt       *time.Time       `json:"editedAt,omitempty"`
	DeletedAt      *time.Time       `json:"deletedAt,omitempty"`
	IsDeleted      bool             `json:"isDeleted"`
	ExpiresAt      *time.Time       `json:"expiresAt,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	Status         ledger.Status    `json:"status"`
	ClientID       string           `json:"clientId,omitempty"`
}

type MessageEditedDTO struct {
	MessageID      string         `json:"messageId"`
	ConversationID uint64         `json:"conversationId"`
	Content        ledger.Content `json:"content"`
	EditedAt       time.Time      `json:"editedAt"`
}

type MessageDeletedDTO struct {
	MessageID      string `json:"messageId"`
	ConversationID uint64 `json:"conversationId"`
}

type MessageReactionDTO struct {
	MessageID      string            `json:"messageId"`
	ConversationID uint64            `json:"conversationId"`
	Reactions      []ledger.Reaction `json:"reactions"`
	UserID         uint64            `json:"userId"`
	Emoji          string            `json:"emoji"`
	Action         string            `json:"action"`
}

// MessageReadDTO 携带全量未读数快照，错过事件的客户端可据此校准
type MessageReadDTO struct {
	UserID         uint64                   `json:"userId"`
	MessageID      string                   `json:"messageId"`
	ReadAt         time.Time                `json:"readAt"`
	ConversationID uint64                   `json:"conversationId"`
	UnreadCounts   []membership.UnreadCount `json:"unreadCounts"`
}

type TypingDTO struct {
	ConversationID uint64 `json:"conversationId"`
	UserID         uint64 `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

type UserOnlineDTO struct {
	UserID uint64 `json:"userId"`
}

type UserOfflineDTO struct {
	UserID   uint64    `json:"userId"`
	LastSeen time.Time `json:"lastSeen"`
}

// ErrorDTO error_generic，只发给出错事件的发起连接
type ErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Event   string `json:"event,omitempty"`
}
