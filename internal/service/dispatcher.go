package service

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/im/hub"
	"Murmur/internal/im/ledger"
	"Murmur/internal/im/membership"
	"time"
)

// Dispatcher 把账本/成员变更转换成房间广播，每次变更恰好一次广播
type Dispatcher struct {
	router hub.Router
}

func NewDispatcher(router hub.Router) *Dispatcher {
	return &Dispatcher{router: router}
}

// MessageNew 发送者回显状态为 sent 并带回 clientId，其他成员看到各自的投递状态
func (d *Dispatcher) MessageNew(conv membership.Conversation, m ledger.Message, clientID string) *dto.MessageDTO {
	views := make(map[uint64]any, len(conv.Members))
	var echo *dto.MessageDTO
	for _, member := range conv.Members {
		view := toMessageDTO(m, member.UserID)
		view.ClientID = clientID
		if member.UserID == m.SenderID {
			view.Status = ledger.StatusSent
			echo = view
		}
		views[member.UserID] = view
	}

	shared := toMessageDTO(m, 0)
	shared.Status = ledger.StatusSent
	shared.ClientID = clientID
	if echo == nil {
		echo = shared
	}

	d.router.Broadcast(m.ConversationID, hub.Event{Name: dto.EventMessageNew, Data: shared, Views: views}, hub.Exclude{})
	return echo
}

func (d *Dispatcher) MessageEdited(m ledger.Message) {
	var editedAt time.Time
	if m.EditedAt != nil {
		editedAt = *m.EditedAt
	}
	d.router.Broadcast(m.ConversationID, hub.Event{
		Name: dto.EventMessageEdited,
		Data: &dto.MessageEditedDTO{
			MessageID:      m.ID,
			ConversationID: m.ConversationID,
			Content:        m.Content,
			EditedAt:       editedAt,
		},
	}, hub.Exclude{})
}

func (d *Dispatcher) MessageDeleted(m ledger.Message) {
	d.router.Broadcast(m.ConversationID, hub.Event{
		Name: dto.EventMessageDeleted,
		Data: &dto.MessageDeletedDTO{MessageID: m.ID, ConversationID: m.ConversationID},
	}, hub.Exclude{})
}

func (d *Dispatcher) MessageReaction(m ledger.Message, userID uint64, emoji, action string) {
	d.router.Broadcast(m.ConversationID, hub.Event{
		Name: dto.EventMessageReaction,
		Data: &dto.MessageReactionDTO{
			MessageID:      m.ID,
			ConversationID: m.ConversationID,
			Reactions:      m.Reactions,
			UserID:         userID,
			Emoji:          emoji,
			Action:         action,
		},
	}, hub.Exclude{})
}

// MessageRead 携带全量未读数快照
func (d *Dispatcher) MessageRead(conv membership.Conversation, userID uint64, messageID string, readAt time.Time) {
	d.router.Broadcast(conv.ID, hub.Event{
		Name: dto.EventMessageRead,
		Data: &dto.MessageReadDTO{
			UserID:         userID,
			MessageID:      messageID,
			ReadAt:         readAt,
			ConversationID: conv.ID,
			UnreadCounts:   conv.UnreadSnapshot(),
		},
	}, hub.Exclude{})
}

// Typing 不落盘，排除发起连接
func (d *Dispatcher) Typing(conversationID, userID uint64, isTyping bool, connID string) {
	d.router.Broadcast(conversationID, hub.Event{
		Name: dto.EventTyping,
		Data: &dto.TypingDTO{ConversationID: conversationID, UserID: userID, IsTyping: isTyping},
	}, hub.ExceptConn(connID))
}

// UserOnline 发往该身份所属的全部会话，排除其自身的连接
func (d *Dispatcher) UserOnline(userID uint64, rooms []uint64) {
	ev := hub.Event{Name: dto.EventUserOnline, Data: &dto.UserOnlineDTO{UserID: userID}}
	for _, room := range rooms {
		d.router.Broadcast(room, ev, hub.ExceptUser(userID))
	}
}

func (d *Dispatcher) UserOffline(userID uint64, lastSeen time.Time, rooms []uint64) {
	ev := hub.Event{Name: dto.EventUserOffline, Data: &dto.UserOfflineDTO{UserID: userID, LastSeen: lastSeen}}
	for _, room := range rooms {
		d.router.Broadcast(room, ev, hub.ExceptUser(userID))
	}
}
