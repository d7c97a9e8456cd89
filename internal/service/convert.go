package service

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/im/ledger"
	"Murmur/internal/im/membership"

	"github.com/jinzhu/copier"
)

// toMessageDTO viewer 为 0 时不计算个人视角字段
func toMessageDTO(m ledger.Message, viewer uint64) *dto.MessageDTO {
	out := &dto.MessageDTO{}
	_ = copier.CopyWithOption(out, &m, copier.Option{DeepCopy: true})

	out.Reactions = make([]dto.ReactionDTO, 0, len(m.Reactions))
	for _, r := range m.Reactions {
		users := make([]uint64, len(r.Users))
		copy(users, r.Users)
		out.Reactions = append(out.Reactions, dto.ReactionDTO{
			Emoji:      r.Emoji,
			Users:      users,
			Count:      r.Count,
			HasReacted: viewer != 0 && m.HasReacted(r.Emoji, viewer),
		})
	}
	if out.DeliveredTo == nil {
		out.DeliveredTo = []ledger.Receipt{}
	}
	if out.ReadBy == nil {
		out.ReadBy = []ledger.Receipt{}
	}
	if viewer != 0 {
		out.Status = m.ViewStatus(viewer)
	} else {
		out.Status = ledger.StatusSent
	}
	return out
}

func toConversationDTO(c membership.Conversation, viewer uint64) *dto.ConversationDTO {
	out := &dto.ConversationDTO{
		ID:            c.ID,
		Kind:          c.Kind,
		Name:          c.Name,
		CreatedBy:     c.CreatedBy,
		Members:       c.Clone().Members,
		LastMessageID: c.LastMessageID,
		LastActivity:  c.LastActivity,
	}
	if peer, ok := c.Peer(viewer); ok {
		out.PeerID = peer
	}
	if m, ok := c.Member(viewer); ok {
		out.UnreadCount = m.UnreadCount
		out.IsMuted = m.IsMuted
		out.IsPinned = m.IsPinned
		out.Role = m.Role
	}
	return out
}
