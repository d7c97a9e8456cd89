package service

import (
	"Murmur/internal/api/dto"
	"Murmur/internal/im/hub"
	"Murmur/internal/im/ledger"
	"Murmur/internal/im/membership"
	"Murmur/internal/im/presence"
	"Murmur/internal/pkg/apperr"
	"Murmur/internal/repository/memory"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingPusher struct {
	mu   sync.Mutex
	sent []*dto.PushNotification
}

func (p *recordingPusher) Push(_ context.Context, n *dto.PushNotification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
}

func (p *recordingPusher) all() []*dto.PushNotification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*dto.PushNotification(nil), p.sent...)
}

type fixture struct {
	svc      *imServiceImpl
	convs    *memory.ConversationRepo
	msgs     *memory.MessageRepo
	registry *hub.Registry
	pusher   *recordingPusher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		convs:    memory.NewConversationRepo(),
		msgs:     memory.NewMessageRepo(),
		registry: hub.NewRegistry(),
		pusher:   &recordingPusher{},
	}
	f.svc = newIMService(f.convs, f.msgs, f.registry, nil, presence.NewDirectory(nil), f.pusher)

	var seq atomic.Int64
	f.svc.newID = func() string { return fmt.Sprintf("m%06d", seq.Add(1)) }
	f.svc.now = func() time.Time { return t0 }
	t.Cleanup(f.svc.Close)
	return f
}

func (f *fixture) connect(t *testing.T, userID uint64) *hub.Client {
	t.Helper()
	c := hub.NewClient(userID, 64)
	require.NoError(t, f.svc.Connect(context.Background(), c))
	return c
}

func (f *fixture) conversation(t *testing.T, kind membership.Kind, creator uint64, others ...uint64) uint64 {
	t.Helper()
	conv, err := f.svc.CreateConversation(context.Background(), creator, &dto.CreateConversationReq{Kind: kind, Name: "c", MemberIDs: others})
	require.NoError(t, err)
	return conv.ID
}

func (f *fixture) send(t *testing.T, sender, convID uint64, body string) *dto.MessageDTO {
	t.Helper()
	m, err := f.svc.SendMessage(context.Background(), sender, &dto.SendMessageReq{
		ConversationID: convID,
		Type:           ledger.TypeText,
		Content:        ledger.Content{Text: body},
	})
	require.NoError(t, err)
	return m
}

type frame struct {
	Event string
	Data  json.RawMessage
}

func drain(c *hub.Client) []frame {
	var out []frame
	for {
		select {
		case b := <-c.Outbound():
			var env hub.Envelope
			_ = json.Unmarshal(b, &env)
			out = append(out, frame{Event: env.Event, Data: env.Data})
		default:
			return out
		}
	}
}

func only(t *testing.T, frames []frame, event string) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	for _, f := range frames {
		if f.Event == event {
			out = append(out, f.Data)
		}
	}
	return out
}

func TestSendToOfflinePeerThenConnectAndRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.connect(t, 1)
	convID := f.conversation(t, membership.KindDirect, 1, 2)

	echo, err := f.svc.SendMessage(ctx, 1, &dto.SendMessageReq{
		ConversationID: convID,
		Type:           ledger.TypeText,
		Content:        ledger.Content{Text: "hello"},
		ClientID:       "tmp-1",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusSent, echo.Status)
	assert.Empty(t, echo.DeliveredTo)
	assert.Equal(t, "tmp-1", echo.ClientID)

	pushed := f.pusher.all()
	require.Len(t, pushed, 1)
	assert.EqualValues(t, 2, pushed[0].UserID)
	assert.Equal(t, "hello", pushed[0].Preview)

	news := only(t, drain(a), dto.EventMessageNew)
	require.Len(t, news, 1)

	b := f.connect(t, 2)
	stored, err := f.msgs.Load(ctx, echo.ID)
	require.NoError(t, err)
	assert.True(t, stored.DeliveredToUser(2))
	assert.Equal(t, ledger.StatusDelivered, stored.SenderStatus())
	assert.Len(t, only(t, drain(a), dto.EventUserOnline), 1)

	unread, err := f.svc.SyncUnread(ctx, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread.TotalUnread)

	require.NoError(t, f.svc.MarkRead(ctx, 2, convID, echo.ID))

	reads := only(t, drain(a), dto.EventMessageRead)
	require.Len(t, reads, 1)
	var read dto.MessageReadDTO
	require.NoError(t, json.Unmarshal(reads[0], &read))
	assert.EqualValues(t, 2, read.UserID)
	assert.Equal(t, []membership.UnreadCount{{UserID: 1, UnreadCount: 0}, {UserID: 2, UnreadCount: 0}}, read.UnreadCounts)
	assert.Len(t, only(t, drain(b), dto.EventMessageRead), 1)

	stored, _ = f.msgs.Load(ctx, echo.ID)
	assert.Equal(t, ledger.StatusRead, stored.SenderStatus())
}

func TestSendToOnlinePeerMarksDelivered(t *testing.T) {
	f := newFixture(t)
	f.connect(t, 1)
	b := f.connect(t, 2)
	convID := f.conversation(t, membership.KindDirect, 1, 2)

	echo := f.send(t, 1, convID, "hi")
	assert.Equal(t, ledger.StatusSent, echo.Status)
	require.Len(t, echo.DeliveredTo, 1)
	assert.Empty(t, f.pusher.all())

	news := only(t, drain(b), dto.EventMessageNew)
	require.Len(t, news, 1)
	var view dto.MessageDTO
	require.NoError(t, json.Unmarshal(news[0], &view))
	assert.Equal(t, ledger.StatusDelivered, view.Status)
}

func TestMutedMemberIsNotPushed(t *testing.T) {
	f := newFixture(t)
	convID := f.conversation(t, membership.KindGroup, 1, 2, 3)
	muted := true
	require.NoError(t, f.svc.UpdateSettings(context.Background(), 3, convID, &dto.UpdateSettingsReq{IsMuted: &muted}))

	f.send(t, 1, convID, "ping")

	pushed := f.pusher.all()
	require.Len(t, pushed, 1)
	assert.EqualValues(t, 2, pushed[0].UserID)
}

func TestReactThenUnreactRestoresReactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.connect(t, 1)
	convID := f.conversation(t, membership.KindDirect, 1, 2)
	msg := f.send(t, 1, convID, "hi")
	drain(a)

	require.NoError(t, f.svc.React(ctx, 2, &dto.ReactReq{MessageID: msg.ID, Emoji: "👍"}))
	stored, _ := f.msgs.Load(ctx, msg.ID)
	r, ok := stored.Reaction("👍")
	require.True(t, ok)
	assert.Equal(t, []uint64{2}, r.Users)

	require.NoError(t, f.svc.React(ctx, 2, &dto.ReactReq{MessageID: msg.ID, Emoji: "👍"}))
	stored, _ = f.msgs.Load(ctx, msg.ID)
	assert.Empty(t, stored.Reactions)

	events := only(t, drain(a), dto.EventMessageReaction)
	require.Len(t, events, 2)
	var first, second dto.MessageReactionDTO
	require.NoError(t, json.Unmarshal(events[0], &first))
	require.NoError(t, json.Unmarshal(events[1], &second))
	assert.Equal(t, dto.ReactionAdd, first.Action)
	assert.Equal(t, dto.ReactionRemove, second.Action)
	assert.Empty(t, second.Reactions)
}

func TestNonMemberCannotJoinOrSend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.connect(t, 1)
	outsider := f.connect(t, 9)
	convID := f.conversation(t, membership.KindGroup, 1, 2)
	drain(a)

	err := f.svc.JoinConversation(ctx, outsider, convID)
	assert.True(t, apperr.Is(err, apperr.ErrForbidden))
	assert.False(t, f.registry.InRoom(outsider.ID(), convID))

	_, err = f.svc.SendMessage(ctx, 9, &dto.SendMessageReq{ConversationID: convID, Type: ledger.TypeText, Content: ledger.Content{Text: "x"}})
	assert.True(t, apperr.Is(err, apperr.ErrForbidden))
	assert.Empty(t, drain(a))

	_, err = f.svc.History(ctx, 9, convID, "", 10)
	assert.True(t, apperr.Is(err, apperr.ErrForbidden))
}

func TestReplyToSoftDeletedMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.connect(t, 1)
	convID := f.conversation(t, membership.KindDirect, 1, 2)
	original := f.send(t, 1, convID, "oops")

	require.NoError(t, f.svc.DeleteMessage(ctx, 1, original.ID))
	require.NoError(t, f.svc.DeleteMessage(ctx, 1, original.ID))
	assert.Len(t, only(t, drain(a), dto.EventMessageDeleted), 1)

	reply, err := f.svc.SendMessage(ctx, 2, &dto.SendMessageReq{
		ConversationID: convID,
		Type:           ledger.TypeText,
		Content:        ledger.Content{Text: "what?"},
		ReplyTo:        original.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, original.ID, reply.ReplyTo)

	err = f.svc.EditMessage(ctx, 1, &dto.EditMessageReq{MessageID: original.ID, Content: ledger.Content{Text: "back"}})
	assert.True(t, apperr.Is(err, apperr.ErrForbidden))

	_, err = f.svc.SendMessage(ctx, 2, &dto.SendMessageReq{
		ConversationID: convID,
		Type:           ledger.TypeText,
		Content:        ledger.Content{Text: "?"},
		ReplyTo:        "missing",
	})
	assert.ErrorIs(t, err, ErrReplyNotFound)
}

func TestUnreadGrowsByMessagesSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.conversation(t, membership.KindGroup, 1, 2, 3)

	const n = 5
	for i := 0; i < n; i++ {
		f.send(t, 1, convID, fmt.Sprintf("#%d", i))
	}

	for uid, want := range map[uint64]uint64{1: 0, 2: n, 3: n} {
		unread, err := f.svc.SyncUnread(ctx, uid)
		require.NoError(t, err)
		assert.Equal(t, want, unread.TotalUnread, "user %d", uid)
	}
}

func TestConcurrentSendsKeepUnreadExact(t *testing.T) {
	f := newFixture(t)
	convID := f.conversation(t, membership.KindGroup, 1, 2, 3)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(sender uint64) {
			defer wg.Done()
			_, err := f.svc.SendMessage(context.Background(), sender, &dto.SendMessageReq{
				ConversationID: convID, Type: ledger.TypeText, Content: ledger.Content{Text: "x"},
			})
			assert.NoError(t, err)
		}(uint64(1 + i%2))
	}
	wg.Wait()

	conv, err := f.convs.Load(context.Background(), convID)
	require.NoError(t, err)
	m, _ := conv.Member(3)
	assert.EqualValues(t, n, m.UnreadCount)
	assert.Zero(t, f.svc.locks.size())
}

func TestMarkReadRequiresMessageInConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c1 := f.conversation(t, membership.KindGroup, 1, 2)
	c2 := f.conversation(t, membership.KindGroup, 1, 2)
	msg := f.send(t, 1, c1, "hi")

	assert.ErrorIs(t, f.svc.MarkRead(ctx, 2, c2, msg.ID), ErrMessageMismatch)
	assert.True(t, apperr.Is(f.svc.MarkRead(ctx, 2, c1, "missing"), apperr.ErrNotFound))

	// 发送者标记自己的消息只移动已读指针
	require.NoError(t, f.svc.MarkRead(ctx, 1, c1, msg.ID))
	stored, _ := f.msgs.Load(ctx, msg.ID)
	assert.Empty(t, stored.ReadBy)
}

func TestTypingNeedsJoinedRoomAndSkipsOrigin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.conversation(t, membership.KindDirect, 1, 2)
	a1 := f.connect(t, 1)
	a2 := f.connect(t, 1)
	b := f.connect(t, 2)
	drain(a1)
	drain(a2)
	drain(b)

	require.NoError(t, f.svc.Typing(ctx, a1, &dto.TypingReq{ConversationID: convID, IsTyping: true}))
	assert.Empty(t, drain(a1))
	assert.Len(t, only(t, drain(a2), dto.EventTyping), 1)
	assert.Len(t, only(t, drain(b), dto.EventTyping), 1)

	f.svc.LeaveConversation(ctx, a1, convID)
	assert.ErrorIs(t, f.svc.Typing(ctx, a1, &dto.TypingReq{ConversationID: convID}), ErrNotJoined)

	require.NoError(t, f.svc.JoinConversation(ctx, a1, convID))
	assert.True(t, f.registry.InRoom(a1.ID(), convID))
}

func TestPresenceFlipsOnFirstAndLastConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.conversation(t, membership.KindDirect, 1, 2)
	b := f.connect(t, 2)

	a1 := f.connect(t, 1)
	a2 := f.connect(t, 1)
	assert.Len(t, only(t, drain(b), dto.EventUserOnline), 1)

	f.svc.Disconnect(ctx, a1)
	assert.Empty(t, only(t, drain(b), dto.EventUserOffline))
	p, err := f.svc.Presence(ctx, 1)
	require.NoError(t, err)
	assert.True(t, p.Online)

	f.svc.Disconnect(ctx, a2)
	f.svc.Disconnect(ctx, a2)
	offline := only(t, drain(b), dto.EventUserOffline)
	require.Len(t, offline, 1)
	p, _ = f.svc.Presence(ctx, 1)
	assert.False(t, p.Online)
	assert.False(t, p.LastSeen.IsZero())
}

func TestHistoryPagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.conversation(t, membership.KindDirect, 1, 2)
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, f.send(t, 1, convID, fmt.Sprintf("#%d", i)).ID)
	}

	page, err := f.svc.History(ctx, 2, convID, "", 2)
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, ids[4], page.Messages[0].ID)
	assert.Equal(t, ids[3], page.NextBefore)

	page, err = f.svc.History(ctx, 2, convID, page.NextBefore, 10)
	require.NoError(t, err)
	assert.Len(t, page.Messages, 3)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.NextBefore)
}

func TestDirectConversationIsUnique(t *testing.T) {
	f := newFixture(t)
	f.conversation(t, membership.KindDirect, 1, 2)

	_, err := f.svc.CreateConversation(context.Background(), 2, &dto.CreateConversationReq{Kind: membership.KindDirect, MemberIDs: []uint64{1}})
	assert.True(t, apperr.Is(err, apperr.ErrConflict))
}

func TestMemberManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.conversation(t, membership.KindGroup, 1, 2)
	d := f.connect(t, 4)

	err := f.svc.AddMember(ctx, 2, convID, &dto.AddMemberReq{UserID: 4})
	assert.True(t, apperr.Is(err, apperr.ErrForbidden))

	require.NoError(t, f.svc.AddMember(ctx, 1, convID, &dto.AddMemberReq{UserID: 4}))
	assert.True(t, f.registry.InRoom(d.ID(), convID), "online connections follow membership")
	assert.True(t, apperr.Is(f.svc.AddMember(ctx, 1, convID, &dto.AddMemberReq{UserID: 4}), apperr.ErrConflict))

	require.NoError(t, f.svc.UpdateRole(ctx, 1, convID, 2, membership.RoleModerator))
	require.NoError(t, f.svc.RemoveMember(ctx, 2, convID, 4))
	assert.False(t, f.registry.InRoom(d.ID(), convID))

	_, err = f.svc.GetConversation(ctx, 4, convID)
	assert.True(t, apperr.Is(err, apperr.ErrForbidden))
}

func TestSyncMembershipMovesOnlineConnections(t *testing.T) {
	f := newFixture(t)
	c := f.connect(t, 5)

	f.svc.SyncMembership(context.Background(), &dto.MemberChange{ConversationID: 77, UserID: 5, Joined: true})
	assert.True(t, f.registry.InRoom(c.ID(), 77))

	f.svc.SyncMembership(context.Background(), &dto.MemberChange{ConversationID: 77, UserID: 5})
	assert.False(t, f.registry.InRoom(c.ID(), 77))
}

func TestExpireMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.connect(t, 1)
	convID := f.conversation(t, membership.KindDirect, 1, 2)

	msg, err := f.svc.SendMessage(ctx, 1, &dto.SendMessageReq{
		ConversationID: convID,
		Type:           ledger.TypeText,
		Content:        ledger.Content{Text: "burn"},
		ExpiresIn:      30,
	})
	require.NoError(t, err)
	drain(a)

	n, err := f.svc.ExpireMessages(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.svc.now = func() time.Time { return t0.Add(time.Minute) }
	n, err = f.svc.ExpireMessages(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, only(t, drain(a), dto.EventMessageDeleted), 1)

	stored, _ := f.msgs.Load(ctx, msg.ID)
	assert.True(t, stored.IsDeleted)
	assert.Empty(t, stored.Content.Text)
}

// failingConvs 成员关系写入失败的存储
type failingConvs struct {
	*memory.ConversationRepo
	fail atomic.Bool
}

func (s *failingConvs) Apply(ctx context.Context, writes []membership.Write) error {
	if s.fail.Load() {
		return errors.New("conversation store unavailable")
	}
	return s.ConversationRepo.Apply(ctx, writes)
}

func TestSendRollsBackMessageWhenUnreadUpdateFails(t *testing.T) {
	ctx := context.Background()
	convs := &failingConvs{ConversationRepo: memory.NewConversationRepo()}
	msgs := memory.NewMessageRepo()
	registry := hub.NewRegistry()
	svc := newIMService(convs, msgs, registry, nil, presence.NewDirectory(nil), nil)
	var seq atomic.Int64
	svc.newID = func() string { return fmt.Sprintf("m%06d", seq.Add(1)) }
	svc.now = func() time.Time { return t0 }
	t.Cleanup(svc.Close)

	conv, err := svc.CreateConversation(ctx, 1, &dto.CreateConversationReq{Kind: membership.KindGroup, Name: "g", MemberIDs: []uint64{2}})
	require.NoError(t, err)
	peer := hub.NewClient(2, 64)
	require.NoError(t, svc.Connect(ctx, peer))
	drain(peer)

	convs.fail.Store(true)
	req := &dto.SendMessageReq{ConversationID: conv.ID, Type: ledger.TypeText, Content: ledger.Content{Text: "hi"}, ClientID: "c-1"}
	_, err = svc.SendMessage(ctx, 1, req)
	require.Error(t, err)

	_, err = msgs.Load(ctx, "m000001")
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))
	history, err := svc.History(ctx, 1, conv.ID, "", 50)
	require.NoError(t, err)
	assert.Empty(t, history.Messages)
	assert.Empty(t, only(t, drain(peer), dto.EventMessageNew))

	convs.fail.Store(false)
	_, err = svc.SendMessage(ctx, 1, req)
	require.NoError(t, err)

	history, err = svc.History(ctx, 1, conv.ID, "", 50)
	require.NoError(t, err)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "hi", history.Messages[0].Content.Text)
	unread, err := svc.SyncUnread(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), unread.TotalUnread)
	assert.Len(t, only(t, drain(peer), dto.EventMessageNew), 1)
}

func TestAddAndRemoveReactionAreIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.connect(t, 1)
	convID := f.conversation(t, membership.KindGroup, 1, 2)
	msg := f.send(t, 1, convID, "hi")
	drain(a)

	require.NoError(t, f.svc.AddReaction(ctx, 2, msg.ID, "🎉"))
	require.NoError(t, f.svc.AddReaction(ctx, 2, msg.ID, "🎉"))
	stored, _ := f.msgs.Load(ctx, msg.ID)
	r, ok := stored.Reaction("🎉")
	require.True(t, ok)
	assert.Equal(t, 1, r.Count)

	require.NoError(t, f.svc.RemoveReaction(ctx, 2, msg.ID, "🎉"))
	require.NoError(t, f.svc.RemoveReaction(ctx, 2, msg.ID, "🎉"))
	stored, _ = f.msgs.Load(ctx, msg.ID)
	assert.Empty(t, stored.Reactions)

	assert.Len(t, only(t, drain(a), dto.EventMessageReaction), 2)
}

func TestRenameConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	convID := f.conversation(t, membership.KindGroup, 1, 2)

	err := f.svc.RenameConversation(ctx, 2, convID, "mine")
	assert.True(t, apperr.Is(err, apperr.ErrForbidden))

	require.NoError(t, f.svc.RenameConversation(ctx, 1, convID, "team"))
	conv, err := f.svc.GetConversation(ctx, 2, convID)
	require.NoError(t, err)
	assert.Equal(t, "team", conv.Name)

	directID := f.conversation(t, membership.KindDirect, 1, 3)
	err = f.svc.RenameConversation(ctx, 1, directID, "x")
	assert.True(t, apperr.Is(err, apperr.ErrForbidden))
}
