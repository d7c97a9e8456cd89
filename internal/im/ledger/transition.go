package ledger

import (
	"Murmur/internal/pkg/apperr"
	"strings"
	"time"
	"unicode/utf8"
)

const MaxTextLength = 4000

var (
	ErrInvalidType    = apperr.ErrValidation.WithMessage("invalid message type")
	ErrEmptyEmoji     = apperr.ErrValidation.WithMessage("emoji is required")
	ErrNotSender      = apperr.ErrForbidden.WithMessage("only the sender can modify this message")
	ErrMessageDeleted = apperr.ErrForbidden.WithMessage("message has been deleted")
	ErrTextTooLong    = apperr.ErrContentInvalid.WithMessage("content.text cannot exceed %d characters", MaxTextLength)
)

// ValidateContent 按消息类型校验内容，缺失字段时返回指明字段的 ContentInvalid
func ValidateContent(t Type, c Content) error {
	switch {
	case t == TypeText:
		if strings.TrimSpace(c.Text) == "" {
			return apperr.ContentMissing("text")
		}
		if utf8.RuneCountInString(c.Text) > MaxTextLength {
			return ErrTextTooLong
		}
	case t.IsMedia():
		if c.Media == nil || strings.TrimSpace(c.Media.URL) == "" {
			return apperr.ContentMissing("media.url")
		}
	case t == TypeSystem:
		if c.System == nil || strings.TrimSpace(c.System.Action) == "" {
			return apperr.ContentMissing("system.action")
		}
	default:
		return ErrInvalidType
	}
	return nil
}

// normalize 只保留与类型匹配的内容分支
func normalize(t Type, c Content) Content {
	c = c.clone()
	switch {
	case t == TypeText:
		return Content{Text: c.Text}
	case t.IsMedia():
		return Content{Text: c.Text, Media: c.Media}
	case t == TypeSystem:
		return Content{System: c.System}
	}
	return c
}

// New 追加一条新消息，回执与回应集合为空，发送者视角状态为 sent
func New(id string, conversationID, senderID uint64, t Type, content Content, replyTo string, now time.Time, expiresAt *time.Time) (Message, []Write, error) {
	if err := ValidateContent(t, content); err != nil {
		return Message{}, nil, err
	}

	m := Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           t,
		Content:        normalize(t, content),
		ReplyTo:        replyTo,
		Reactions:      []Reaction{},
		DeliveredTo:    []Receipt{},
		ReadBy:         []Receipt{},
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
	}
	stored := m.Clone()
	return m, []Write{{Op: OpInsert, MessageID: id, Message: &stored}}, nil
}

// MarkDelivered 幂等地把 userID 加入 delivered-to
func MarkDelivered(m Message, userID uint64, now time.Time) (Message, []Write) {
	if m.DeliveredToUser(userID) {
		return m, nil
	}
	out := m.Clone()
	r := Receipt{UserID: userID, At: now}
	out.DeliveredTo = append(out.DeliveredTo, r)
	return out, []Write{{Op: OpAddDelivered, MessageID: m.ID, Receipt: r}}
}

// MarkRead 幂等地把 userID 加入 read-by
func MarkRead(m Message, userID uint64, now time.Time) (Message, []Write) {
	if m.ReadByUser(userID) {
		return m, nil
	}
	out := m.Clone()
	r := Receipt{UserID: userID, At: now}
	out.ReadBy = append(out.ReadBy, r)
	return out, []Write{{Op: OpAddRead, MessageID: m.ID, Receipt: r}}
}

// AddReaction 幂等地把 userID 加入 emoji 的用户集合，不存在则新建
func AddReaction(m Message, emoji string, userID uint64) (Message, []Write, error) {
	if strings.TrimSpace(emoji) == "" {
		return m, nil, ErrEmptyEmoji
	}
	if m.HasReacted(emoji, userID) {
		return m, nil, nil
	}

	out := m.Clone()
	found := false
	for i := range out.Reactions {
		if out.Reactions[i].Emoji == emoji {
			out.Reactions[i].Users = append(out.Reactions[i].Users, userID)
			out.Reactions[i].Count = len(out.Reactions[i].Users)
			found = true
			break
		}
	}
	if !found {
		out.Reactions = append(out.Reactions, Reaction{Emoji: emoji, Users: []uint64{userID}, Count: 1})
	}
	return out, []Write{setReactions(out)}, nil
}

// RemoveReaction 把 userID 移出 emoji 的用户集合，集合为空时删除该回应
func RemoveReaction(m Message, emoji string, userID uint64) (Message, []Write, error) {
	if strings.TrimSpace(emoji) == "" {
		return m, nil, ErrEmptyEmoji
	}
	if !m.HasReacted(emoji, userID) {
		return m, nil, nil
	}

	out := m.Clone()
	reactions := out.Reactions[:0]
	for _, r := range out.Reactions {
		if r.Emoji == emoji {
			users := r.Users[:0]
			for _, u := range r.Users {
				if u != userID {
					users = append(users, u)
				}
			}
			r.Users = users
			r.Count = len(users)
			if r.Count == 0 {
				continue
			}
		}
		reactions = append(reactions, r)
	}
	out.Reactions = reactions
	return out, []Write{setReactions(out)}, nil
}

func setReactions(m Message) Write {
	snapshot := m.Clone().Reactions
	return Write{Op: OpSetReactions, MessageID: m.ID, Reactions: snapshot}
}

// Edit 修改内容，仅发送者可操作，已删除的消息拒绝修改
func Edit(m Message, requester uint64, content Content, now time.Time) (Message, []Write, error) {
	if m.SenderID != requester {
		return m, nil, ErrNotSender
	}
	if m.IsDeleted {
		return m, nil, ErrMessageDeleted
	}
	if err := ValidateContent(m.Type, content); err != nil {
		return m, nil, err
	}

	out := m.Clone()
	out.Content = normalize(m.Type, content)
	editedAt := now
	out.EditedAt = &editedAt
	return out, []Write{{Op: OpEdit, MessageID: m.ID, Content: out.Content.clone(), At: now}}, nil
}

// SoftDelete 软删除：保留 ID、发送者和时间戳以便回复/回应寻址，清空内容
func SoftDelete(m Message, requester uint64, now time.Time) (Message, []Write, error) {
	if m.SenderID != requester {
		return m, nil, ErrNotSender
	}
	out, writes := tombstone(m, now)
	return out, writes, nil
}

// Expire 过期消息由系统软删除，不校验操作者
func Expire(m Message, now time.Time) (Message, []Write) {
	if !m.Expired(now) {
		return m, nil
	}
	return tombstone(m, now)
}

func tombstone(m Message, now time.Time) (Message, []Write) {
	if m.IsDeleted {
		return m, nil
	}
	out := m.Clone()
	out.IsDeleted = true
	deletedAt := now
	out.DeletedAt = &deletedAt
	out.Content = Content{}
	return out, []Write{{Op: OpSoftDelete, MessageID: m.ID, At: now}}
}

// Discard 撤回一条从未广播过的消息，仅用于发送流程的补偿
func Discard(m Message) []Write {
	return []Write{{Op: OpDiscard, MessageID: m.ID}}
}
