package hub

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, local *Registry) *ClusterRouter {
	t.Helper()
	router := NewClusterRouter(local, nil, "node-a", 64)
	t.Cleanup(router.Close)
	return router
}

func relayPayload(t *testing.T, node string, msg relayMessage) []byte {
	t.Helper()
	msg.Node = node
	b, err := json.Marshal(msg)
	require.NoError(t, err)
	return b
}

func TestClusterDeliverBroadcastFromOtherNode(t *testing.T) {
	local := NewRegistry()
	router := newTestRouter(t, local)
	a := bind(t, local, 1, 4)
	b := bind(t, local, 2, 4)
	require.NoError(t, local.Join(a.ID(), 10))
	require.NoError(t, local.Join(b.ID(), 10))

	msg, err := router.encodeEvent(10, Event{
		Name:  "message_new",
		Data:  map[string]any{"status": "delivered"},
		Views: map[uint64]any{1: map[string]any{"status": "sent"}},
	}, ExceptUser(3))
	require.NoError(t, err)

	router.Deliver(relayPayload(t, "node-b", msg))

	assert.JSONEq(t, `{"status":"sent"}`, string(drain(a)[0].Data))
	assert.JSONEq(t, `{"status":"delivered"}`, string(drain(b)[0].Data))
}

func TestClusterDeliverIgnoresOwnNode(t *testing.T) {
	local := NewRegistry()
	router := newTestRouter(t, local)
	a := bind(t, local, 1, 4)
	require.NoError(t, local.Join(a.ID(), 10))

	msg, err := router.encodeEvent(10, Event{Name: "typing", Data: 1}, Exclude{})
	require.NoError(t, err)
	router.Deliver(relayPayload(t, "node-a", msg))

	assert.Empty(t, drain(a))
}

func TestClusterDeliverMembershipChanges(t *testing.T) {
	local := NewRegistry()
	router := newTestRouter(t, local)
	a := bind(t, local, 1, 4)

	router.Deliver(relayPayload(t, "node-b", relayMessage{Kind: relayJoinUser, Room: 10, UserID: 1}))
	assert.True(t, local.InRoom(a.ID(), 10))

	router.Deliver(relayPayload(t, "node-b", relayMessage{Kind: relayLeaveUser, Room: 10, UserID: 1}))
	assert.False(t, local.InRoom(a.ID(), 10))
}

func TestClusterDeliverIgnoresGarbage(t *testing.T) {
	router := newTestRouter(t, NewRegistry())
	assert.NotPanics(t, func() { router.Deliver([]byte("{not json")) })
}

type recordingPublisher struct {
	mu       sync.Mutex
	payloads []relayMessage
}

func (p *recordingPublisher) Publish(ctx context.Context, _ string, message interface{}) *redis.IntCmd {
	var msg relayMessage
	_ = json.Unmarshal(message.([]byte), &msg)
	// 模拟网络抖动
	time.Sleep(time.Duration(msg.Room%3) * 100 * time.Microsecond)
	p.mu.Lock()
	p.payloads = append(p.payloads, msg)
	p.mu.Unlock()
	return redis.NewIntCmd(ctx)
}

func TestClusterRelayKeepsPublishOrder(t *testing.T) {
	pub := &recordingPublisher{}
	router := NewClusterRouter(NewRegistry(), nil, "node-a", 1024)
	router.pub = pub

	var want []relayMessage
	for i := uint64(1); i <= 100; i++ {
		if i%10 == 0 {
			router.JoinUser(7, i)
			want = append(want, relayMessage{Kind: relayJoinUser, Room: i, UserID: 7})
			continue
		}
		router.Broadcast(i, Event{Name: "message_new", Data: map[string]uint64{"seq": i}}, Exclude{})
		want = append(want, relayMessage{Kind: relayBroadcast, Room: i, Event: "message_new"})
	}
	router.Close()

	require.Len(t, pub.payloads, len(want))
	for i, got := range pub.payloads {
		assert.Equal(t, "node-a", got.Node)
		assert.Equal(t, want[i].Kind, got.Kind, "position %d", i)
		assert.Equal(t, want[i].Room, got.Room, "position %d", i)
		if got.Kind == relayBroadcast {
			assert.JSONEq(t, fmt.Sprintf(`{"seq":%d}`, got.Room), string(got.Data))
		}
	}
}
