package ledger

import "time"

type Op int

const (
	OpInsert Op = iota + 1
	OpAddDelivered
	OpAddRead
	OpSetReactions
	OpEdit
	OpSoftDelete
	OpDiscard
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "insert"
	case OpAddDelivered:
		return "add_delivered"
	case OpAddRead:
		return "add_read"
	case OpSetReactions:
		return "set_reactions"
	case OpEdit:
		return "edit"
	case OpSoftDelete:
		return "soft_delete"
	case OpDiscard:
		return "discard"
	}
	return "unknown"
}

// Write 单条持久化写操作
// 回执类写操作是集合追加语义，存储层必须保证幂等（如 $addToSet）
type Write struct {
	Op        Op
	MessageID string
	Message   *Message   // OpInsert
	Receipt   Receipt    // OpAddDelivered / OpAddRead
	Reactions []Reaction // OpSetReactions，整表覆盖
	Content   Content    // OpEdit
	At        time.Time  // OpEdit / OpSoftDelete
}

// Replay 在快照上重放一条写操作
func Replay(m Message, w Write) Message {
	switch w.Op {
	case OpInsert:
		if w.Message != nil {
			return w.Message.Clone()
		}
		return m
	case OpAddDelivered:
		if m.DeliveredToUser(w.Receipt.UserID) {
			return m
		}
		out := m.Clone()
		out.DeliveredTo = append(out.DeliveredTo, w.Receipt)
		return out
	case OpAddRead:
		if m.ReadByUser(w.Receipt.UserID) {
			return m
		}
		out := m.Clone()
		out.ReadBy = append(out.ReadBy, w.Receipt)
		return out
	case OpSetReactions:
		out := m.Clone()
		out.Reactions = Message{Reactions: w.Reactions}.Clone().Reactions
		return out
	case OpEdit:
		out := m.Clone()
		out.Content = w.Content.clone()
		at := w.At
		out.EditedAt = &at
		return out
	case OpSoftDelete:
		out := m.Clone()
		out.IsDeleted = true
		at := w.At
		out.DeletedAt = &at
		out.Content = Content{}
		return out
	case OpDiscard:
		return Message{}
	}
	return m
}
