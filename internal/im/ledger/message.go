// Package ledger 消息账本的纯状态转换与投递/已读状态推导
package ledger

import (
	"time"
)

type Type string

const (
	TypeText   Type = "text"
	TypeImage  Type = "image"
	TypeVideo  Type = "video"
	TypeAudio  Type = "audio"
	TypeFile   Type = "file"
	TypeSystem Type = "system"
)

func (t Type) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeVideo, TypeAudio, TypeFile, TypeSystem:
		return true
	}
	return false
}

func (t Type) IsMedia() bool {
	switch t {
	case TypeImage, TypeVideo, TypeAudio, TypeFile:
		return true
	}
	return false
}

// Media 媒体附件
type Media struct {
	URL          string  `json:"url" bson:"url"`
	ThumbnailURL string  `json:"thumbnailUrl,omitempty" bson:"thumbnail_url,omitempty"`
	Filename     string  `json:"filename,omitempty" bson:"filename,omitempty"`
	Size         int64   `json:"size,omitempty" bson:"size,omitempty"`
	MimeType     string  `json:"mimeType,omitempty" bson:"mime_type,omitempty"`
	Duration     float64 `json:"duration,omitempty" bson:"duration,omitempty"`
	Width        int     `json:"width,omitempty" bson:"width,omitempty"`
	Height       int     `json:"height,omitempty" bson:"height,omitempty"`
}

// System 系统消息
type System struct {
	Action string         `json:"action" bson:"action"`
	Data   map[string]any `json:"data,omitempty" bson:"data,omitempty"`
}

// Content 与消息类型对应的内容
type Content struct {
	Text   string  `json:"text,omitempty" bson:"text,omitempty"`
	Media  *Media  `json:"media,omitempty" bson:"media,omitempty"`
	System *System `json:"system,omitempty" bson:"system,omitempty"`
}

// Reaction 表情回应，Count 恒等于 len(Users)
type Reaction struct {
	Emoji string   `json:"emoji" bson:"emoji"`
	Users []uint64 `json:"users" bson:"users"`
	Count int      `json:"count" bson:"count"`
}

// Receipt 投递/已读回执
type Receipt struct {
	UserID uint64    `json:"userId" bson:"user_id"`
	At     time.Time `json:"at" bson:"at"`
}

// Message 账本中的一条消息
type Message struct {
	ID             string     `json:"id" bson:"_id"`
	ConversationID uint64     `json:"conversationId" bson:"conversation_id"`
	SenderID       uint64     `json:"senderId" bson:"sender_id"`
	Type           Type       `json:"type" bson:"type"`
	Content        Content    `json:"content" bson:"content"`
	ReplyTo        string     `json:"replyTo,omitempty" bson:"reply_to,omitempty"`
	Reactions      []Reaction `json:"reactions" bson:"reactions"`
	DeliveredTo    []Receipt  `json:"deliveredTo" bson:"delivered_to"`
	ReadBy         []Receipt  `json:"readBy" bson:"read_by"`
	EditedAt       *time.Time `json:"editedAt,omitempty" bson:"edited_at,omitempty"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty" bson:"deleted_at,omitempty"`
	IsDeleted      bool       `json:"isDeleted" bson:"is_deleted"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty" bson:"expires_at,omitempty"`
	CreatedAt      time.Time  `json:"createdAt" bson:"created_at"`
}

// Clone 深拷贝
func (m Message) Clone() Message {
	out := m
	out.Content = m.Content.clone()
	out.Reactions = make([]Reaction, len(m.Reactions))
	for i, r := range m.Reactions {
		users := make([]uint64, len(r.Users))
		copy(users, r.Users)
		out.Reactions[i] = Reaction{Emoji: r.Emoji, Users: users, Count: r.Count}
	}
	out.DeliveredTo = cloneReceipts(m.DeliveredTo)
	out.ReadBy = cloneReceipts(m.ReadBy)
	return out
}

func cloneReceipts(rs []Receipt) []Receipt {
	out := make([]Receipt, len(rs))
	copy(out, rs)
	return out
}

func (c Content) clone() Content {
	out := Content{Text: c.Text}
	if c.Media != nil {
		media := *c.Media
		out.Media = &media
	}
	if c.System != nil {
		sys := System{Action: c.System.Action}
		if c.System.Data != nil {
			sys.Data = make(map[string]any, len(c.System.Data))
			for k, v := range c.System.Data {
				sys.Data[k] = v
			}
		}
		out.System = &sys
	}
	return out
}

func hasReceipt(rs []Receipt, userID uint64) bool {
	for _, r := range rs {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

func (m Message) DeliveredToUser(userID uint64) bool {
	return hasReceipt(m.DeliveredTo, userID)
}

func (m Message) ReadByUser(userID uint64) bool {
	return hasReceipt(m.ReadBy, userID)
}

// Reaction 查找指定表情
func (m Message) Reaction(emoji string) (Reaction, bool) {
	for _, r := range m.Reactions {
		if r.Emoji == emoji {
			return r, true
		}
	}
	return Reaction{}, false
}

// HasReacted 用户是否已用该表情回应
func (m Message) HasReacted(emoji string, userID uint64) bool {
	r, ok := m.Reaction(emoji)
	if !ok {
		return false
	}
	for _, u := range r.Users {
		if u == userID {
			return true
		}
	}
	return false
}

// Expired 是否已过期（阅后即焚）
func (m Message) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !now.Before(*m.ExpiresAt)
}
