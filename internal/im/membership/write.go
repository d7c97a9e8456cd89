package membership

import "time"

type Op int

const (
	OpInsertMember Op = iota + 1
	OpDeleteMember
	OpUpdateRole
	OpIncrUnread
	OpMarkRead
	OpTouch
	OpUpdateSettings
	OpRename
)

func (o Op) String() string {
	switch o {
	case OpInsertMember:
		return "insert_member"
	case OpDeleteMember:
		return "delete_member"
	case OpUpdateRole:
		return "update_role"
	case OpIncrUnread:
		return "incr_unread"
	case OpMarkRead:
		return "mark_read"
	case OpTouch:
		return "touch"
	case OpUpdateSettings:
		return "update_settings"
	case OpRename:
		return "rename"
	}
	return "unknown"
}

// Write 单条持久化写操作，由存储层在同一事务内按顺序执行
type Write struct {
	Op             Op
	ConversationID uint64
	UserID         uint64 // InsertMember/DeleteMember/UpdateRole/MarkRead/UpdateSettings 的目标；IncrUnread 时为排除者
	Member         Member
	Role           Role
	MessageID      string
	At             time.Time
	Muted          *bool
	Pinned         *bool
	Name           string // Rename
}

// Replay 在快照上重放一条写操作，内存存储用它落盘，结果应与产生该写操作的转换一致
func Replay(c Conversation, w Write) (Conversation, error) {
	out := c.Clone()
	switch w.Op {
	case OpInsertMember:
		if out.IsMember(w.Member.UserID) {
			return c, ErrAlreadyMember
		}
		out.Members = append(out.Members, w.Member)
		out.LastActivity = w.At
	case OpDeleteMember:
		i := out.index(w.UserID)
		if i < 0 {
			return c, ErrTargetNotFound
		}
		out.Members = append(out.Members[:i], out.Members[i+1:]...)
	case OpUpdateRole:
		i := out.index(w.UserID)
		if i < 0 {
			return c, ErrTargetNotFound
		}
		out.Members[i].Role = w.Role
	case OpIncrUnread:
		for i := range out.Members {
			if out.Members[i].UserID != w.UserID {
				out.Members[i].UnreadCount++
			}
		}
	case OpMarkRead:
		i := out.index(w.UserID)
		if i < 0 {
			return c, ErrNotMember
		}
		out.Members[i].LastReadMessageID = w.MessageID
		out.Members[i].UnreadCount = 0
	case OpTouch:
		out.LastMessageID = w.MessageID
		out.LastActivity = w.At
	case OpUpdateSettings:
		i := out.index(w.UserID)
		if i < 0 {
			return c, ErrNotMember
		}
		if w.Muted != nil {
			out.Members[i].IsMuted = *w.Muted
		}
		if w.Pinned != nil {
			out.Members[i].IsPinned = *w.Pinned
		}
	case OpRename:
		out.Name = w.Name
	}
	return out, nil
}
