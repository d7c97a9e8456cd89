package model

import "time"

// Conversation 会话主表
type Conversation struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Kind          string    `gorm:"type:varchar(16);not null;default:'group'" json:"kind"`
	Name          string    `gorm:"type:varchar(128)" json:"name"`
	CreatedBy     uint64    `gorm:"not null;default:0" json:"createdBy"`
	PeerKey       *string   `gorm:"uniqueIndex;type:varchar(64)" json:"peerKey"` // 单聊 uid1_uid2，群聊为 NULL
	LastMessageID string    `gorm:"type:varchar(64)" json:"lastMessageId"`
	LastActivity  time.Time `gorm:"index" json:"lastActivity"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	Members []ConversationMember `gorm:"foreignKey:ConversationID;references:ID" json:"members"`
}

func (Conversation) TableName() string { return "conversations" }

// ConversationMember 会话成员表
type ConversationMember struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID    uint64    `gorm:"uniqueIndex:idx_conv_user" json:"conversationId"`
	UserID            uint64    `gorm:"uniqueIndex:idx_conv_user;index" json:"userId"`
	Role              string    `gorm:"type:varchar(16);not null;default:'member'" json:"role"`
	LastReadMessageID string    `gorm:"type:varchar(64)" json:"lastReadMessageId"`
	UnreadCount       uint64    `gorm:"not null;default:0" json:"unreadCount"`
	IsMuted           bool      `gorm:"not null;default:false" json:"isMuted"`
	IsPinned          bool      `gorm:"not null;default:false" json:"isPinned"`
	JoinedAt          time.Time `json:"joinedAt"`
}

func (ConversationMember) TableName() string { return "conversation_members" }
