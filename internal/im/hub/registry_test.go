package hub

import (
	"Murmur/internal/pkg/apperr"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bind(t *testing.T, r *Registry, userID uint64, buffer int) *Client {
	t.Helper()
	c := NewClient(userID, buffer)
	_, err := r.Bind(c)
	require.NoError(t, err)
	return c
}

func drain(c *Client) []Envelope {
	var out []Envelope
	for {
		select {
		case b := <-c.Outbound():
			var env Envelope
			_ = json.Unmarshal(b, &env)
			out = append(out, env)
		default:
			return out
		}
	}
}

func TestBindRequiresIdentity(t *testing.T) {
	r := NewRegistry()
	_, err := r.Bind(NewClient(0, 1))
	assert.True(t, apperr.Is(err, apperr.ErrAuth))
}

func TestBindReportsFirstConnection(t *testing.T) {
	r := NewRegistry()
	first, err := r.Bind(NewClient(1, 1))
	require.NoError(t, err)
	assert.True(t, first)

	first, err = r.Bind(NewClient(1, 1))
	require.NoError(t, err)
	assert.False(t, first)
	assert.Len(t, r.ConnectionsOf(1), 2)
}

func TestJoinUnknownConnection(t *testing.T) {
	r := NewRegistry()
	assert.ErrorIs(t, r.Join("nope", 1), ErrNoConn)
}

func TestLeaveIsIdempotent(t *testing.T) {
	r := NewRegistry()
	c := bind(t, r, 1, 4)
	require.NoError(t, r.Join(c.ID(), 10))

	r.Leave(c.ID(), 10)
	r.Leave(c.ID(), 10)
	r.Leave("unknown", 10)
	assert.False(t, r.InRoom(c.ID(), 10))
	assert.Empty(t, r.RoomsOf(c.ID()))
}

func TestBroadcastReachesRoomOnly(t *testing.T) {
	r := NewRegistry()
	a := bind(t, r, 1, 4)
	b := bind(t, r, 2, 4)
	outsider := bind(t, r, 3, 4)
	require.NoError(t, r.Join(a.ID(), 10))
	require.NoError(t, r.Join(b.ID(), 10))

	r.Broadcast(10, Event{Name: "typing", Data: map[string]any{"userId": 1}}, ExceptConn(a.ID()))

	assert.Empty(t, drain(a))
	assert.Empty(t, drain(outsider))
	got := drain(b)
	require.Len(t, got, 1)
	assert.Equal(t, "typing", got[0].Event)
	assert.JSONEq(t, `{"userId":1}`, string(got[0].Data))
}

func TestBroadcastExceptUserSkipsAllDevices(t *testing.T) {
	r := NewRegistry()
	phone := bind(t, r, 1, 4)
	laptop := bind(t, r, 1, 4)
	peer := bind(t, r, 2, 4)
	for _, c := range []*Client{phone, laptop, peer} {
		require.NoError(t, r.Join(c.ID(), 10))
	}

	r.Broadcast(10, Event{Name: "user_online", Data: map[string]any{"userId": 1}}, ExceptUser(1))

	assert.Empty(t, drain(phone))
	assert.Empty(t, drain(laptop))
	assert.Len(t, drain(peer), 1)
}

func TestBroadcastPerRecipientViews(t *testing.T) {
	r := NewRegistry()
	a := bind(t, r, 1, 4)
	b := bind(t, r, 2, 4)
	require.NoError(t, r.Join(a.ID(), 10))
	require.NoError(t, r.Join(b.ID(), 10))

	r.Broadcast(10, Event{
		Name:  "message_new",
		Data:  map[string]any{"status": "delivered"},
		Views: map[uint64]any{1: map[string]any{"status": "sent"}},
	}, Exclude{})

	assert.JSONEq(t, `{"status":"sent"}`, string(drain(a)[0].Data))
	assert.JSONEq(t, `{"status":"delivered"}`, string(drain(b)[0].Data))
}

func TestSlowClientDropsWithoutStallingOthers(t *testing.T) {
	r := NewRegistry()
	slow := bind(t, r, 1, 1)
	fast := bind(t, r, 2, 8)
	require.NoError(t, r.Join(slow.ID(), 10))
	require.NoError(t, r.Join(fast.ID(), 10))

	sent := 0
	for i := 0; i < 5; i++ {
		sent += r.broadcast(10, Event{Name: "typing", Data: i}, Exclude{})
	}

	assert.Equal(t, 6, sent)
	assert.Len(t, drain(slow), 1)
	assert.Len(t, drain(fast), 5)
}

func TestUnbindLeavesRoomsAndReportsLast(t *testing.T) {
	r := NewRegistry()
	a1 := bind(t, r, 1, 4)
	a2 := bind(t, r, 1, 4)
	require.NoError(t, r.Join(a1.ID(), 10))
	require.NoError(t, r.Join(a1.ID(), 11))

	rooms, last, ok := r.Unbind(a1.ID())
	require.True(t, ok)
	assert.ElementsMatch(t, []uint64{10, 11}, rooms)
	assert.False(t, last)
	assert.False(t, r.InRoom(a1.ID(), 10))

	select {
	case <-a1.Done():
	default:
		t.Fatal("unbound client should be closed")
	}

	_, last, _ = r.Unbind(a2.ID())
	assert.True(t, last)
	assert.False(t, r.Online(1))

	rooms, last, ok = r.Unbind(a2.ID())
	assert.False(t, ok)
	assert.Nil(t, rooms)
	assert.False(t, last)
}

func TestJoinUserCoversEveryDevice(t *testing.T) {
	r := NewRegistry()
	a1 := bind(t, r, 1, 4)
	a2 := bind(t, r, 1, 4)

	r.JoinUser(1, 10)
	assert.True(t, r.InRoom(a1.ID(), 10))
	assert.True(t, r.InRoom(a2.ID(), 10))

	r.LeaveUser(1, 10)
	assert.False(t, r.InRoom(a1.ID(), 10))
	assert.False(t, r.InRoom(a2.ID(), 10))
}

func TestCloseClearsRegistry(t *testing.T) {
	r := NewRegistry()
	c := bind(t, r, 1, 4)
	require.NoError(t, r.Join(c.ID(), 10))

	r.Close()
	assert.Zero(t, r.Count())
	assert.False(t, c.TrySend([]byte("x")))

	_, err := r.Bind(NewClient(2, 1))
	assert.ErrorIs(t, err, ErrClosed)
}
