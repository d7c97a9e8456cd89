package service

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/im/hub"
	"Murmur/internal/im/ledger"
	"Murmur/internal/im/membership"
	"Murmur/internal/im/presence"
	"Murmur/internal/pkg/apperr"
	"Murmur/internal/pkg/consts"
	"Murmur/internal/repository"
	"context"
	"fmt"
	log "log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	pendingDeliveryLimit = 500
	previewLength        = 60
)

// IMService 即时通讯核心服务
// 同一会话及其消息上的变更按会话 ID 串行执行，广播在变更落盘后进行且不阻塞
type IMService interface {
	Connect(ctx context.Context, c *hub.Client) error
	Disconnect(ctx context.Context, c *hub.Client)
	JoinConversation(ctx context.Context, c *hub.Client, conversationID uint64) error
	LeaveConversation(ctx context.Context, c *hub.Client, conversationID uint64)
	SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error)
	EditMessage(ctx context.Context, userID uint64, req *dto.EditMessageReq) error
	DeleteMessage(ctx context.Context, userID uint64, messageID string) error
	MarkRead(ctx context.Context, userID, conversationID uint64, messageID string) error
	React(ctx context.Context, userID uint64, req *dto.ReactReq) error
	AddReaction(ctx context.Context, userID uint64, messageID, emoji string) error
	RemoveReaction(ctx context.Context, userID uint64, messageID, emoji string) error
	Typing(ctx context.Context, c *hub.Client, req *dto.TypingReq) error

	CreateConversation(ctx context.Context, userID uint64, req *dto.CreateConversationReq) (*dto.ConversationDTO, error)
	GetConversation(ctx context.Context, userID, conversationID uint64) (*dto.ConversationDTO, error)
	ListConversations(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error)
	History(ctx context.Context, userID, conversationID uint64, before string, limit int) (*dto.HistoryDTO, error)
	SyncUnread(ctx context.Context, userID uint64) (*dto.SyncUnreadDTO, error)
	AddMember(ctx context.Context, requester, conversationID uint64, req *dto.AddMemberReq) error
	RemoveMember(ctx context.Context, requester, conversationID, target uint64) error
	UpdateRole(ctx context.Context, requester, conversationID, target uint64, role membership.Role) error
	UpdateSettings(ctx context.Context, userID, conversationID uint64, req *dto.UpdateSettingsReq) error
	RenameConversation(ctx context.Context, requester, conversationID uint64, name string) error
	Presence(ctx context.Context, userID uint64) (presence.Presence, error)

	SyncMembership(ctx context.Context, change *dto.MemberChange)
	ExpireMessages(ctx context.Context) (int, error)
	Close()
}

type imServiceImpl struct {
	convRepo   repository.ConversationRepo
	msgRepo    MessageStore
	registry   *hub.Registry
	router     hub.Router
	dispatcher *Dispatcher
	presence   *presence.Directory
	pusher     Pusher
	locks      *keyLock
	convLock   ConversationLocker
	now        func() time.Time
	newID      func() string
}

// NewIMService router 为空时只在本节点广播，pusher 为空时不做离线推送，
// distLock 为空时会话锁只在本进程内生效，多节点共享存储时必须提供
func NewIMService(
	convRepo repository.ConversationRepo,
	msgRepo MessageStore,
	registry *hub.Registry,
	router hub.Router,
	directory *presence.Directory,
	pusher Pusher,
	distLock DistLocker,
) IMService {
	s := newIMService(convRepo, msgRepo, registry, router, directory, pusher)
	if distLock != nil {
		s.convLock = newClusterLock(s.locks, distLock)
	}
	return s
}

func newIMService(
	convRepo repository.ConversationRepo,
	msgRepo MessageStore,
	registry *hub.Registry,
	router hub.Router,
	directory *presence.Directory,
	pusher Pusher,
) *imServiceImpl {
	if router == nil {
		router = registry
	}
	if pusher == nil {
		pusher = noopPusher{}
	}
	if directory == nil {
		directory = presence.NewDirectory(nil)
	}
	locks := newKeyLock()
	return &imServiceImpl{
		convRepo:   convRepo,
		msgRepo:    msgRepo,
		registry:   registry,
		router:     router,
		dispatcher: NewDispatcher(router),
		presence:   directory,
		pusher:     pusher,
		locks:      locks,
		convLock:   locks,
		now:        time.Now,
		newID:      newMessageID,
	}
}

// newMessageID UUIDv7 按时间有序，可直接作为分页游标
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Connect 注册连接、加入全部会话房间、刷新在线状态并补投递离线期间的消息
func (s *imServiceImpl) Connect(ctx context.Context, c *hub.Client) error {
	if _, err := s.registry.Bind(c); err != nil {
		return err
	}
	userID := c.UserID()

	convs, err := s.convRepo.ListForUser(ctx, userID)
	if err != nil {
		s.registry.Unbind(c.ID())
		return fmt.Errorf("list conversations for %d: %w", userID, err)
	}
	rooms := conversationIDs(convs)
	for _, room := range rooms {
		if err := s.router.Join(c.ID(), room); err != nil {
			log.WarnContext(ctx, "join room failed", "connID", c.ID(), "conversationID", room, "err", err)
		}
	}

	if s.presence.Connect(ctx, userID) {
		s.dispatcher.UserOnline(userID, rooms)
	}

	s.deliverPending(ctx, userID, rooms)
	log.InfoContext(ctx, "connection bound", "connID", c.ID(), "userID", userID, "rooms", len(rooms))
	return nil
}

func (s *imServiceImpl) deliverPending(ctx context.Context, userID uint64, rooms []uint64) {
	if len(rooms) == 0 {
		return
	}
	pending, err := s.msgRepo.ListUndelivered(ctx, rooms, userID, pendingDeliveryLimit)
	if err != nil {
		log.WarnContext(ctx, "list undelivered messages failed", "userID", userID, "err", err)
		return
	}

	now := s.now()
	for _, m := range pending {
		err := s.withMessage(ctx, m.ID, func(_ membership.Conversation, m ledger.Message) error {
			_, writes := ledger.MarkDelivered(m, userID, now)
			return s.msgRepo.Apply(ctx, writes)
		})
		if err != nil {
			log.WarnContext(ctx, "mark delivered failed", "messageID", m.ID, "userID", userID, "err", err)
		}
	}
}

// Disconnect 清理房间与在线状态，不等待任何远端确认
func (s *imServiceImpl) Disconnect(ctx context.Context, c *hub.Client) {
	rooms, _, ok := s.registry.Unbind(c.ID())
	if !ok {
		return
	}
	userID := c.UserID()

	offline, lastSeen := s.presence.Disconnect(ctx, userID)
	if !offline {
		return
	}

	if convs, err := s.convRepo.ListForUser(ctx, userID); err == nil {
		rooms = conversationIDs(convs)
	} else {
		log.WarnContext(ctx, "list conversations on disconnect failed", "userID", userID, "err", err)
	}
	s.dispatcher.UserOffline(userID, lastSeen, rooms)
	log.InfoContext(ctx, "user offline", "userID", userID)
}

// JoinConversation 实时校验成员关系后加入房间
func (s *imServiceImpl) JoinConversation(ctx context.Context, c *hub.Client, conversationID uint64) error {
	if _, err := s.loadMember(ctx, conversationID, c.UserID()); err != nil {
		return err
	}
	return s.router.Join(c.ID(), conversationID)
}

func (s *imServiceImpl) LeaveConversation(_ context.Context, c *hub.Client, conversationID uint64) {
	s.router.Leave(c.ID(), conversationID)
}

// SendMessage 追加消息 -> 在线成员标记已投递 -> 其他成员未读数 +1 -> 广播 -> 离线推送
func (s *imServiceImpl) SendMessage(ctx context.Context, senderID uint64, req *dto.SendMessageReq) (*dto.MessageDTO, error) {
	unlock, err := s.convLock.Acquire(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	conv, err := s.loadMember(ctx, req.ConversationID, senderID)
	if err != nil {
		return nil, err
	}
	if req.ReplyTo != "" {
		target, err := s.msgRepo.Load(ctx, req.ReplyTo)
		if err != nil {
			if apperr.Is(err, apperr.ErrNotFound) {
				return nil, ErrReplyNotFound
			}
			return nil, err
		}
		if target.ConversationID != conv.ID {
			return nil, ErrReplyNotFound
		}
	}

	now := s.now()
	var expiresAt *time.Time
	if req.ExpiresIn > 0 {
		t := now.Add(time.Duration(req.ExpiresIn) * time.Second)
		expiresAt = &t
	}

	msg, writes, err := ledger.New(s.newID(), conv.ID, senderID, req.Type, req.Content, req.ReplyTo, now, expiresAt)
	if err != nil {
		return nil, err
	}

	var offline []membership.Member
	for _, m := range conv.Members {
		if m.UserID == senderID {
			continue
		}
		if !s.online(ctx, m.UserID) {
			offline = append(offline, m)
			continue
		}
		var delivered []ledger.Write
		msg, delivered = ledger.MarkDelivered(msg, m.UserID, now)
		writes = append(writes, delivered...)
	}
	if err := s.msgRepo.Apply(ctx, writes); err != nil {
		return nil, err
	}

	conv, unreadWrites := membership.IncrementUnread(conv, senderID)
	conv, touchWrites := membership.Touch(conv, msg.ID, now)
	if err := s.convRepo.Apply(ctx, append(unreadWrites, touchWrites...)); err != nil {
		log.ErrorContext(ctx, "apply unread counters failed", "conversationID", conv.ID, "messageID", msg.ID, "err", err)
		// 消息尚未广播，撤回账本写入，客户端重试不会产生重复消息
		if dErr := s.msgRepo.Apply(ctx, ledger.Discard(msg)); dErr != nil {
			log.ErrorContext(ctx, "discard unpublished message failed", "messageID", msg.ID, "err", dErr)
		}
		return nil, err
	}

	echo := s.dispatcher.MessageNew(conv, msg, req.ClientID)
	s.pushOffline(ctx, msg, offline)
	return echo, nil
}

func (s *imServiceImpl) pushOffline(ctx context.Context, m ledger.Message, offline []membership.Member) {
	for _, member := range offline {
		if member.IsMuted {
			continue
		}
		s.pusher.Push(ctx, &dto.PushNotification{
			UserID:         member.UserID,
			ConversationID: m.ConversationID,
			MessageID:      m.ID,
			SenderID:       m.SenderID,
			Type:           string(m.Type),
			Preview:        preview(m),
			CreatedAt:      m.CreatedAt,
		})
	}
}

func preview(m ledger.Message) string {
	switch {
	case m.Type == ledger.TypeText:
		if utf8.RuneCountInString(m.Content.Text) <= previewLength {
			return m.Content.Text
		}
		return string([]rune(m.Content.Text)[:previewLength]) + "..."
	case m.Type == ledger.TypeSystem && m.Content.System != nil:
		return m.Content.System.Action
	}
	return "[" + string(m.Type) + "]"
}

func (s *imServiceImpl) EditMessage(ctx context.Context, userID uint64, req *dto.EditMessageReq) error {
	return s.withMessage(ctx, req.MessageID, func(conv membership.Conversation, m ledger.Message) error {
		if !conv.IsMember(userID) {
			return membership.ErrNotMember
		}
		out, writes, err := ledger.Edit(m, userID, req.Content, s.now())
		if err != nil {
			return err
		}
		if err := s.msgRepo.Apply(ctx, writes); err != nil {
			return err
		}
		s.dispatcher.MessageEdited(out)
		return nil
	})
}

// DeleteMessage 软删除，重复删除不再广播
func (s *imServiceImpl) DeleteMessage(ctx context.Context, userID uint64, messageID string) error {
	return s.withMessage(ctx, messageID, func(conv membership.Conversation, m ledger.Message) error {
		if !conv.IsMember(userID) {
			return membership.ErrNotMember
		}
		out, writes, err := ledger.SoftDelete(m, userID, s.now())
		if err != nil {
			return err
		}
		if len(writes) == 0 {
			return nil
		}
		if err := s.msgRepo.Apply(ctx, writes); err != nil {
			return err
		}
		s.dispatcher.MessageDeleted(out)
		return nil
	})
}

// MarkRead 读者加入 read-by，已读指针前移且未读数清零，广播全量未读数快照
func (s *imServiceImpl) MarkRead(ctx context.Context, userID, conversationID uint64, messageID string) error {
	unlock, err := s.convLock.Acquire(ctx, conversationID)
	if err != nil {
		return err
	}
	defer unlock()

	conv, err := s.loadMember(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	m, err := s.msgRepo.Load(ctx, messageID)
	if err != nil {
		return err
	}
	if m.ConversationID != conversationID {
		return ErrMessageMismatch
	}

	now := s.now()
	if m.SenderID != userID {
		if _, writes := ledger.MarkRead(m, userID, now); len(writes) > 0 {
			if err := s.msgRepo.Apply(ctx, writes); err != nil {
				return err
			}
		}
	}

	conv, writes, err := membership.MarkRead(conv, userID, messageID)
	if err != nil {
		return err
	}
	if err := s.convRepo.Apply(ctx, writes); err != nil {
		return err
	}

	s.dispatcher.MessageRead(conv, userID, messageID, now)
	return nil
}

// React 已回应则取消，否则添加
func (s *imServiceImpl) React(ctx context.Context, userID uint64, req *dto.ReactReq) error {
	return s.react(ctx, userID, req.MessageID, req.Emoji, "")
}

// AddReaction 幂等添加，已回应时不广播
func (s *imServiceImpl) AddReaction(ctx context.Context, userID uint64, messageID, emoji string) error {
	return s.react(ctx, userID, messageID, emoji, dto.ReactionAdd)
}

// RemoveReaction 幂等取消，未回应时不广播
func (s *imServiceImpl) RemoveReaction(ctx context.Context, userID uint64, messageID, emoji string) error {
	return s.react(ctx, userID, messageID, emoji, dto.ReactionRemove)
}

// react action 为空时按当前状态切换
func (s *imServiceImpl) react(ctx context.Context, userID uint64, messageID, emoji, action string) error {
	return s.withMessage(ctx, messageID, func(conv membership.Conversation, m ledger.Message) error {
		if !conv.IsMember(userID) {
			return membership.ErrNotMember
		}

		if action == "" {
			action = dto.ReactionAdd
			if m.HasReacted(emoji, userID) {
				action = dto.ReactionRemove
			}
		}
		apply := ledger.AddReaction
		if action == dto.ReactionRemove {
			apply = ledger.RemoveReaction
		}
		out, writes, err := apply(m, emoji, userID)
		if err != nil {
			return err
		}
		if len(writes) == 0 {
			return nil
		}
		if err := s.msgRepo.Apply(ctx, writes); err != nil {
			return err
		}
		s.dispatcher.MessageReaction(out, userID, emoji, action)
		return nil
	})
}

// Typing 仅转发给同房间的其他连接
func (s *imServiceImpl) Typing(_ context.Context, c *hub.Client, req *dto.TypingReq) error {
	if !s.registry.InRoom(c.ID(), req.ConversationID) {
		return ErrNotJoined
	}
	s.dispatcher.Typing(req.ConversationID, c.UserID(), req.IsTyping, c.ID())
	return nil
}

// CreateConversation 创建会话并让成员的在线连接加入房间，单聊重复创建返回 Conflict
func (s *imServiceImpl) CreateConversation(ctx context.Context, userID uint64, req *dto.CreateConversationReq) (*dto.ConversationDTO, error) {
	conv, err := membership.New(req.Kind, req.Name, userID, req.MemberIDs, s.now())
	if err != nil {
		return nil, err
	}

	if conv.Kind == membership.KindDirect {
		peer, _ := conv.Peer(userID)
		_, err := s.convRepo.FindDirect(ctx, userID, peer)
		if err == nil {
			return nil, repository.ErrDirectExists
		}
		if !apperr.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}

	conv, err = s.convRepo.Create(ctx, conv)
	if err != nil {
		return nil, err
	}
	for _, id := range conv.MemberIDs() {
		s.router.JoinUser(id, conv.ID)
	}
	log.InfoContext(ctx, "conversation created", "conversationID", conv.ID, "kind", conv.Kind, "members", len(conv.Members))
	return toConversationDTO(conv, userID), nil
}

func (s *imServiceImpl) GetConversation(ctx context.Context, userID, conversationID uint64) (*dto.ConversationDTO, error) {
	conv, err := s.loadMember(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	return toConversationDTO(conv, userID), nil
}

func (s *imServiceImpl) ListConversations(ctx context.Context, userID uint64) ([]*dto.ConversationDTO, error) {
	convs, err := s.convRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.ConversationDTO, 0, len(convs))
	for _, c := range convs {
		out = append(out, toConversationDTO(c, userID))
	}
	return out, nil
}

// History 历史消息，状态与 hasReacted 按请求者视角计算
func (s *imServiceImpl) History(ctx context.Context, userID, conversationID uint64, before string, limit int) (*dto.HistoryDTO, error) {
	if _, err := s.loadMember(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = consts.DefaultHistoryLimit
	}
	if limit > consts.MaxHistoryLimit {
		limit = consts.MaxHistoryLimit
	}

	msgs, err := s.msgRepo.History(ctx, conversationID, before, limit+1)
	if err != nil {
		return nil, err
	}
	out := &dto.HistoryDTO{Messages: make([]*dto.MessageDTO, 0, len(msgs))}
	if len(msgs) > limit {
		out.HasMore = true
		msgs = msgs[:limit]
	}
	for _, m := range msgs {
		out.Messages = append(out.Messages, toMessageDTO(m, userID))
	}
	if out.HasMore && len(msgs) > 0 {
		out.NextBefore = msgs[len(msgs)-1].ID
	}
	return out, nil
}

// SyncUnread 重连后校准各会话未读数
func (s *imServiceImpl) SyncUnread(ctx context.Context, userID uint64) (*dto.SyncUnreadDTO, error) {
	convs, err := s.convRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := &dto.SyncUnreadDTO{Conversations: make([]dto.UnreadItemDTO, 0, len(convs))}
	for _, c := range convs {
		m, _ := c.Member(userID)
		out.Conversations = append(out.Conversations, dto.UnreadItemDTO{
			ConversationID:    c.ID,
			UnreadCount:       m.UnreadCount,
			LastReadMessageID: m.LastReadMessageID,
			LastMessageID:     c.LastMessageID,
		})
		out.TotalUnread += m.UnreadCount
	}
	return out, nil
}

// AddMember 需要 admin 或 moderator
func (s *imServiceImpl) AddMember(ctx context.Context, requester, conversationID uint64, req *dto.AddMemberReq) error {
	unlock, err := s.convLock.Acquire(ctx, conversationID)
	if err != nil {
		return err
	}
	defer unlock()

	conv, err := s.loadMember(ctx, conversationID, requester)
	if err != nil {
		return err
	}
	if m, _ := conv.Member(requester); m.Role != membership.RoleAdmin && m.Role != membership.RoleModerator {
		return membership.ErrRoleRequired
	}

	role := req.Role
	if role == "" {
		role = membership.RoleMember
	}
	_, writes, err := membership.AddMember(conv, req.UserID, role, s.now())
	if err != nil {
		return err
	}
	if err := s.convRepo.Apply(ctx, writes); err != nil {
		return err
	}
	s.router.JoinUser(req.UserID, conversationID)
	return nil
}

// RemoveMember 被移除者的在线连接同时离开房间
func (s *imServiceImpl) RemoveMember(ctx context.Context, requester, conversationID, target uint64) error {
	unlock, err := s.convLock.Acquire(ctx, conversationID)
	if err != nil {
		return err
	}
	defer unlock()

	conv, err := s.convRepo.Load(ctx, conversationID)
	if err != nil {
		return err
	}
	_, writes, err := membership.RemoveMember(conv, target, requester)
	if err != nil {
		return err
	}
	if err := s.convRepo.Apply(ctx, writes); err != nil {
		return err
	}
	s.router.LeaveUser(target, conversationID)
	return nil
}

func (s *imServiceImpl) UpdateRole(ctx context.Context, requester, conversationID, target uint64, role membership.Role) error {
	unlock, err := s.convLock.Acquire(ctx, conversationID)
	if err != nil {
		return err
	}
	defer unlock()

	conv, err := s.convRepo.Load(ctx, conversationID)
	if err != nil {
		return err
	}
	_, writes, err := membership.UpdateRole(conv, target, role, requester)
	if err != nil {
		return err
	}
	return s.convRepo.Apply(ctx, writes)
}

func (s *imServiceImpl) UpdateSettings(ctx context.Context, userID, conversationID uint64, req *dto.UpdateSettingsReq) error {
	unlock, err := s.convLock.Acquire(ctx, conversationID)
	if err != nil {
		return err
	}
	defer unlock()

	conv, err := s.convRepo.Load(ctx, conversationID)
	if err != nil {
		return err
	}
	_, writes, err := membership.UpdateSettings(conv, userID, req.IsMuted, req.IsPinned)
	if err != nil {
		return err
	}
	return s.convRepo.Apply(ctx, writes)
}

// RenameConversation 修改群组/频道名称
func (s *imServiceImpl) RenameConversation(ctx context.Context, requester, conversationID uint64, name string) error {
	unlock, err := s.convLock.Acquire(ctx, conversationID)
	if err != nil {
		return err
	}
	defer unlock()

	conv, err := s.convRepo.Load(ctx, conversationID)
	if err != nil {
		return err
	}
	_, writes, err := membership.Rename(conv, name, requester)
	if err != nil {
		return err
	}
	return s.convRepo.Apply(ctx, writes)
}

func (s *imServiceImpl) Presence(ctx context.Context, userID uint64) (presence.Presence, error) {
	return s.presence.Get(ctx, userID)
}

// SyncMembership 外部直接修改成员表后，让该身份的在线连接加入或离开房间
func (s *imServiceImpl) SyncMembership(ctx context.Context, change *dto.MemberChange) {
	if change.Joined {
		s.router.JoinUser(change.UserID, change.ConversationID)
	} else {
		s.router.LeaveUser(change.UserID, change.ConversationID)
	}
	log.DebugContext(ctx, "membership synced", "conversationID", change.ConversationID, "userID", change.UserID, "joined", change.Joined)
}

// ExpireMessages 软删除已到期的消息并广播 message_deleted，返回处理条数
func (s *imServiceImpl) ExpireMessages(ctx context.Context) (int, error) {
	expired, err := s.msgRepo.ListExpired(ctx, s.now(), consts.ExpirySweepBatch)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, m := range expired {
		err := s.withMessage(ctx, m.ID, func(_ membership.Conversation, m ledger.Message) error {
			out, writes := ledger.Expire(m, s.now())
			if len(writes) == 0 {
				return nil
			}
			if err := s.msgRepo.Apply(ctx, writes); err != nil {
				return err
			}
			s.dispatcher.MessageDeleted(out)
			n++
			return nil
		})
		if err != nil {
			log.WarnContext(ctx, "expire message failed", "messageID", m.ID, "err", err)
		}
	}
	return n, nil
}

// Close 先按正常断开处理每个连接（在线计数减一、广播下线），再关闭连接并清空注册表。
// 之后 readPump 里的 Disconnect 因连接已解绑而直接返回
func (s *imServiceImpl) Close() {
	ctx := context.Background()
	for _, c := range s.registry.Clients() {
		s.Disconnect(ctx, c)
	}
	s.registry.Close()
}

// withMessage 先读消息拿到会话 ID，加锁后重新读取，保证 fn 看到的是最新状态
func (s *imServiceImpl) withMessage(ctx context.Context, messageID string, fn func(membership.Conversation, ledger.Message) error) error {
	m, err := s.msgRepo.Load(ctx, messageID)
	if err != nil {
		return err
	}

	unlock, err := s.convLock.Acquire(ctx, m.ConversationID)
	if err != nil {
		return err
	}
	defer unlock()

	if m, err = s.msgRepo.Load(ctx, messageID); err != nil {
		return err
	}
	conv, err := s.convRepo.Load(ctx, m.ConversationID)
	if err != nil {
		return err
	}
	return fn(conv, m)
}

// loadMember 加载会话并实时校验成员关系
func (s *imServiceImpl) loadMember(ctx context.Context, conversationID, userID uint64) (membership.Conversation, error) {
	conv, err := s.convRepo.Load(ctx, conversationID)
	if err != nil {
		return membership.Conversation{}, err
	}
	if !conv.IsMember(userID) {
		return membership.Conversation{}, membership.ErrNotMember
	}
	return conv, nil
}

func (s *imServiceImpl) online(ctx context.Context, userID uint64) bool {
	p, err := s.presence.Get(ctx, userID)
	if err != nil {
		log.WarnContext(ctx, "presence lookup failed", "userID", userID, "err", err)
		return false
	}
	return p.Online
}

func conversationIDs(convs []membership.Conversation) []uint64 {
	ids := make([]uint64, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	return ids
}
