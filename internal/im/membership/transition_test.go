package membership

import (
	"Murmur/internal/pkg/apperr"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func direct(t *testing.T) Conversation {
	t.Helper()
	c, err := New(KindDirect, "", 1, []uint64{2}, now)
	require.NoError(t, err)
	c.ID = 10
	return c
}

func group(t *testing.T) Conversation {
	t.Helper()
	c, err := New(KindGroup, "team", 1, []uint64{2, 3}, now)
	require.NoError(t, err)
	c.ID = 20
	return c
}

func TestNew(t *testing.T) {
	t.Run("direct requires exactly two members", func(t *testing.T) {
		_, err := New(KindDirect, "", 1, nil, now)
		assert.True(t, apperr.Is(err, apperr.ErrConflict))

		_, err = New(KindDirect, "", 1, []uint64{2, 3}, now)
		assert.True(t, apperr.Is(err, apperr.ErrConflict))

		_, err = New(KindDirect, "", 1, []uint64{1}, now)
		assert.Error(t, err)
	})

	t.Run("creator becomes admin", func(t *testing.T) {
		c := group(t)
		m, ok := c.Member(1)
		require.True(t, ok)
		assert.Equal(t, RoleAdmin, m.Role)
		assert.Len(t, c.Members, 3)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		_, err := New("broadcast", "", 1, []uint64{2}, now)
		assert.True(t, apperr.Is(err, apperr.ErrValidation))
	})
}

func TestAddMember(t *testing.T) {
	c := group(t)

	out, writes, err := AddMember(c, 4, RoleMember, now)
	require.NoError(t, err)
	assert.True(t, out.IsMember(4))
	assert.False(t, c.IsMember(4), "input must not be mutated")
	require.Len(t, writes, 1)
	assert.Equal(t, OpInsertMember, writes[0].Op)

	_, _, err = AddMember(out, 4, RoleMember, now)
	assert.True(t, apperr.Is(err, apperr.ErrConflict))
}

func TestDirectConversationStaysAtTwo(t *testing.T) {
	c := direct(t)

	_, _, err := AddMember(c, 3, RoleMember, now)
	assert.True(t, apperr.Is(err, apperr.ErrConflict))

	_, _, err = RemoveMember(c, 1, 1)
	assert.True(t, apperr.Is(err, apperr.ErrForbidden))

	_, _, err = RemoveMember(c, 2, 1)
	assert.True(t, apperr.Is(err, apperr.ErrForbidden))
	assert.Len(t, c.Members, 2)
}

func TestRemoveMember(t *testing.T) {
	c := group(t)

	t.Run("self removal always allowed", func(t *testing.T) {
		out, writes, err := RemoveMember(c, 3, 3)
		require.NoError(t, err)
		assert.False(t, out.IsMember(3))
		assert.Equal(t, []Write{{Op: OpDeleteMember, ConversationID: 20, UserID: 3}}, writes)
	})

	t.Run("plain member cannot remove others", func(t *testing.T) {
		_, _, err := RemoveMember(c, 2, 3)
		assert.True(t, apperr.Is(err, apperr.ErrForbidden))
	})

	t.Run("moderator can remove others", func(t *testing.T) {
		promoted, _, err := UpdateRole(c, 2, RoleModerator, 1)
		require.NoError(t, err)
		out, _, err := RemoveMember(promoted, 3, 2)
		require.NoError(t, err)
		assert.False(t, out.IsMember(3))
	})

	t.Run("unknown target", func(t *testing.T) {
		_, _, err := RemoveMember(c, 99, 1)
		assert.True(t, apperr.Is(err, apperr.ErrNotFound))
	})

	t.Run("non member requester", func(t *testing.T) {
		_, _, err := RemoveMember(c, 2, 99)
		assert.True(t, apperr.Is(err, apperr.ErrForbidden))
	})
}

func TestUpdateRole(t *testing.T) {
	c := group(t)

	_, _, err := UpdateRole(c, 3, RoleModerator, 2)
	assert.True(t, apperr.Is(err, apperr.ErrForbidden))

	_, _, err = UpdateRole(c, 42, RoleModerator, 1)
	assert.True(t, apperr.Is(err, apperr.ErrNotFound))

	_, _, err = UpdateRole(c, 3, "owner", 1)
	assert.True(t, apperr.Is(err, apperr.ErrValidation))

	out, writes, err := UpdateRole(c, 3, RoleModerator, 1)
	require.NoError(t, err)
	m, _ := out.Member(3)
	assert.Equal(t, RoleModerator, m.Role)
	assert.Len(t, writes, 1)
}

func TestIncrementUnreadCountsEachSend(t *testing.T) {
	c := group(t)

	const n = 7
	var writes []Write
	for i := 0; i < n; i++ {
		var w []Write
		c, w = IncrementUnread(c, 1)
		writes = append(writes, w...)
	}

	for _, m := range c.Members {
		if m.UserID == 1 {
			assert.Zero(t, m.UnreadCount)
			continue
		}
		assert.EqualValues(t, n, m.UnreadCount)
	}
	assert.Len(t, writes, n)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	c := group(t)
	c, _ = IncrementUnread(c, 1)
	c, _ = IncrementUnread(c, 1)

	first, writes, err := MarkRead(c, 2, "m2")
	require.NoError(t, err)
	require.Len(t, writes, 1)

	second, writes, err := MarkRead(first, 2, "m2")
	require.NoError(t, err)
	assert.Empty(t, writes)
	assert.Equal(t, first, second)

	m, _ := second.Member(2)
	assert.Equal(t, "m2", m.LastReadMessageID)
	assert.Zero(t, m.UnreadCount)
}

// 已读回执携带较旧的 messageID 时依旧清零未读数，与客户端展示保持一致。
func TestMarkReadResetsUnconditionally(t *testing.T) {
	c := group(t)
	for i := 0; i < 3; i++ {
		c, _ = IncrementUnread(c, 1)
	}

	out, _, err := MarkRead(c, 2, "m1")
	require.NoError(t, err)
	m, _ := out.Member(2)
	assert.Zero(t, m.UnreadCount, "messages after m1 are no longer counted")
}

func TestMarkReadRequiresMembership(t *testing.T) {
	_, _, err := MarkRead(group(t), 99, "m1")
	assert.True(t, apperr.Is(err, apperr.ErrForbidden))
}

func TestUpdateSettings(t *testing.T) {
	muted := true
	out, writes, err := UpdateSettings(group(t), 2, &muted, nil)
	require.NoError(t, err)
	m, _ := out.Member(2)
	assert.True(t, m.IsMuted)
	assert.False(t, m.IsPinned)
	assert.Len(t, writes, 1)
}

func TestUnreadSnapshot(t *testing.T) {
	c := direct(t)
	c, _ = IncrementUnread(c, 1)

	assert.Equal(t, []UnreadCount{{UserID: 1, UnreadCount: 0}, {UserID: 2, UnreadCount: 1}}, c.UnreadSnapshot())

	peer, ok := c.Peer(1)
	assert.True(t, ok)
	assert.EqualValues(t, 2, peer)
}

func TestReplayReproducesTransitions(t *testing.T) {
	c := group(t)
	stored := c.Clone()
	apply := func(ws []Write) {
		for _, w := range ws {
			var err error
			stored, err = Replay(stored, w)
			require.NoError(t, err)
		}
	}

	c, writes, err := AddMember(c, 4, RoleMember, now)
	require.NoError(t, err)
	apply(writes)

	c, writes = IncrementUnread(c, 1)
	apply(writes)
	c, writes = Touch(c, "m1", now)
	apply(writes)
	c, writes, err = MarkRead(c, 2, "m1")
	require.NoError(t, err)
	apply(writes)
	c, writes, err = UpdateRole(c, 3, RoleModerator, 1)
	require.NoError(t, err)
	apply(writes)
	muted := true
	c, writes, err = UpdateSettings(c, 4, &muted, nil)
	require.NoError(t, err)
	apply(writes)
	c, writes, err = RemoveMember(c, 4, 4)
	require.NoError(t, err)
	apply(writes)

	assert.Equal(t, c, stored)

	_, err = Replay(stored, Write{Op: OpInsertMember, ConversationID: c.ID, Member: Member{UserID: 1}})
	assert.ErrorIs(t, err, ErrAlreadyMember)
}

func TestRename(t *testing.T) {
	c := group(t)

	_, _, err := Rename(c, "ops", 2)
	assert.True(t, apperr.Is(err, apperr.ErrForbidden))

	_, _, err = Rename(direct(t), "x", 1)
	assert.ErrorIs(t, err, ErrDirectRename)

	_, _, err = Rename(c, "ops", 99)
	assert.ErrorIs(t, err, ErrNotMember)

	out, writes, err := Rename(c, "ops", 1)
	require.NoError(t, err)
	assert.Equal(t, "ops", out.Name)
	assert.Equal(t, "team", c.Name)
	require.Len(t, writes, 1)

	stored, err := Replay(c, writes[0])
	require.NoError(t, err)
	assert.Equal(t, out, stored)

	_, writes, err = Rename(out, "ops", 1)
	require.NoError(t, err)
	assert.Empty(t, writes)
}
