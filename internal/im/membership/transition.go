package membership

import (
	"Murmur/internal/pkg/apperr"
	"time"
)

var (
	ErrNotMember      = apperr.ErrForbidden.WithMessage("not a member of this conversation")
	ErrAlreadyMember  = apperr.ErrConflict.WithMessage("user is already a member of this conversation")
	ErrDirectFull     = apperr.ErrConflict.WithMessage("direct conversations must have exactly 2 members")
	ErrDirectRemove   = apperr.ErrForbidden.WithMessage("members cannot be removed from a direct conversation")
	ErrLastMember     = apperr.ErrForbidden.WithMessage("the last member cannot leave the conversation")
	ErrRoleRequired   = apperr.ErrForbidden.WithMessage("insufficient role")
	ErrTargetNotFound = apperr.ErrNotFound.WithMessage("user is not a member of this conversation")
	ErrInvalidRole    = apperr.ErrValidation.WithMessage("invalid role")
	ErrInvalidKind    = apperr.ErrValidation.WithMessage("invalid conversation kind")
	ErrInvalidMembers = apperr.ErrValidation.WithMessage("invalid member list")
	ErrDirectRename   = apperr.ErrForbidden.WithMessage("direct conversations cannot be renamed")
)

// New 创建会话快照。创建者为 admin；单聊必须恰好两名不同成员
// 返回的会话 ID 为 0，由存储层分配
func New(kind Kind, name string, creator uint64, others []uint64, now time.Time) (Conversation, error) {
	if !kind.Valid() {
		return Conversation{}, ErrInvalidKind
	}
	if creator == 0 {
		return Conversation{}, ErrInvalidMembers
	}

	seen := map[uint64]struct{}{creator: {}}
	members := []Member{{UserID: creator, Role: RoleAdmin, JoinedAt: now}}
	for _, id := range others {
		if id == 0 {
			return Conversation{}, ErrInvalidMembers
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, Member{UserID: id, Role: RoleMember, JoinedAt: now})
	}

	if kind == KindDirect && len(members) != 2 {
		return Conversation{}, ErrDirectFull
	}

	return Conversation{
		Kind:         kind,
		Name:         name,
		CreatedBy:    creator,
		Members:      members,
		LastActivity: now,
	}, nil
}

// AddMember 添加成员，重复添加返回 Conflict，单聊人数上限为 2
func AddMember(c Conversation, userID uint64, role Role, now time.Time) (Conversation, []Write, error) {
	if !role.Valid() {
		return c, nil, ErrInvalidRole
	}
	if c.IsMember(userID) {
		return c, nil, ErrAlreadyMember
	}
	if c.Kind == KindDirect && len(c.Members) >= 2 {
		return c, nil, ErrDirectFull
	}

	m := Member{UserID: userID, Role: role, JoinedAt: now}
	out := c.Clone()
	out.Members = append(out.Members, m)
	out.LastActivity = now

	return out, []Write{{Op: OpInsertMember, ConversationID: c.ID, UserID: userID, Member: m, At: now}}, nil
}

// RemoveMember 移除成员
// 自己退出总是允许；移除他人需要 admin 或 moderator；单聊拒绝任何移除
func RemoveMember(c Conversation, target, requester uint64) (Conversation, []Write, error) {
	if c.Kind == KindDirect {
		return c, nil, ErrDirectRemove
	}
	req, ok := c.Member(requester)
	if !ok {
		return c, nil, ErrNotMember
	}
	if target != requester && req.Role != RoleAdmin && req.Role != RoleModerator {
		return c, nil, ErrRoleRequired
	}
	i := c.index(target)
	if i < 0 {
		return c, nil, ErrTargetNotFound
	}
	if len(c.Members) == 1 {
		return c, nil, ErrLastMember
	}

	out := c.Clone()
	out.Members = append(out.Members[:i], out.Members[i+1:]...)

	return out, []Write{{Op: OpDeleteMember, ConversationID: c.ID, UserID: target}}, nil
}

// UpdateRole 修改成员角色，仅 admin 可操作
func UpdateRole(c Conversation, target uint64, role Role, requester uint64) (Conversation, []Write, error) {
	if !role.Valid() {
		return c, nil, ErrInvalidRole
	}
	req, ok := c.Member(requester)
	if !ok {
		return c, nil, ErrNotMember
	}
	if req.Role != RoleAdmin {
		return c, nil, ErrRoleRequired
	}
	i := c.index(target)
	if i < 0 {
		return c, nil, ErrTargetNotFound
	}
	if c.Members[i].Role == role {
		return c, nil, nil
	}

	out := c.Clone()
	out.Members[i].Role = role

	return out, []Write{{Op: OpUpdateRole, ConversationID: c.ID, UserID: target, Role: role}}, nil
}

// IncrementUnread 除 exclude 外所有成员未读数 +1
func IncrementUnread(c Conversation, exclude uint64) (Conversation, []Write) {
	out := c.Clone()
	for i := range out.Members {
		if out.Members[i].UserID != exclude {
			out.Members[i].UnreadCount++
		}
	}
	return out, []Write{{Op: OpIncrUnread, ConversationID: c.ID, UserID: exclude}}
}

// MarkRead 将成员的已读指针移到 messageID 并把未读数无条件清零。
// 已读回执与新消息并发到达时可能少计未读，这里保持与客户端一致的即时清零语义。
func MarkRead(c Conversation, userID uint64, messageID string) (Conversation, []Write, error) {
	i := c.index(userID)
	if i < 0 {
		return c, nil, ErrNotMember
	}
	if c.Members[i].LastReadMessageID == messageID && c.Members[i].UnreadCount == 0 {
		return c, nil, nil
	}

	out := c.Clone()
	out.Members[i].LastReadMessageID = messageID
	out.Members[i].UnreadCount = 0

	return out, []Write{{Op: OpMarkRead, ConversationID: c.ID, UserID: userID, MessageID: messageID}}, nil
}

// Touch 更新最后一条消息指针与活跃时间
func Touch(c Conversation, messageID string, now time.Time) (Conversation, []Write) {
	out := c.Clone()
	out.LastMessageID = messageID
	out.LastActivity = now
	return out, []Write{{Op: OpTouch, ConversationID: c.ID, MessageID: messageID, At: now}}
}

// UpdateSettings 修改成员的免打扰/置顶标记，nil 表示不修改
func UpdateSettings(c Conversation, userID uint64, muted, pinned *bool) (Conversation, []Write, error) {
	i := c.index(userID)
	if i < 0 {
		return c, nil, ErrNotMember
	}
	if muted == nil && pinned == nil {
		return c, nil, nil
	}

	out := c.Clone()
	if muted != nil {
		out.Members[i].IsMuted = *muted
	}
	if pinned != nil {
		out.Members[i].IsPinned = *pinned
	}
	return out, []Write{{Op: OpUpdateSettings, ConversationID: c.ID, UserID: userID, Muted: muted, Pinned: pinned}}, nil
}

// Rename 修改群组/频道名称，需要 admin 或 moderator
func Rename(c Conversation, name string, requester uint64) (Conversation, []Write, error) {
	req, ok := c.Member(requester)
	if !ok {
		return c, nil, ErrNotMember
	}
	if c.Kind == KindDirect {
		return c, nil, ErrDirectRename
	}
	if req.Role != RoleAdmin && req.Role != RoleModerator {
		return c, nil, ErrRoleRequired
	}
	if c.Name == name {
		return c, nil, nil
	}

	out := c.Clone()
	out.Name = name
	return out, []Write{{Op: OpRename, ConversationID: c.ID, Name: name}}, nil
}
