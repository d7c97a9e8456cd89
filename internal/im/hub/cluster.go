package hub

import (
	"Murmur/internal/pkg/consts"
	"Murmur/internal/pkg/workerpool"
	"context"
	"errors"
	log "log/slog"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	relayBroadcast = "broadcast"
	relayJoinUser  = "join_user"
	relayLeaveUser = "leave_user"
)

// relayMessage 节点间转发的消息，事件数据在发布前已编码
type relayMessage struct {
	Node   string                     `json:"node"`
	Kind   string                     `json:"kind"`
	Room   uint64                     `json:"room"`
	UserID uint64                     `json:"userId,omitempty"`
	Event  string                     `json:"event,omitempty"`
	Data   json.RawMessage            `json:"data,omitempty"`
	Views  map[uint64]json.RawMessage `json:"views,omitempty"`
	Except Exclude                    `json:"except"`
}

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// ClusterRouter 先投递本节点，再通过 Redis Pub/Sub 转发给其他节点。
// 转发只有一个 worker，其他节点收到的顺序与本节点广播顺序一致
type ClusterRouter struct {
	local  *Registry
	rdb    *redis.Client
	pub    publisher
	nodeID string
	pool   *workerpool.Pool
}

func NewClusterRouter(local *Registry, rdb *redis.Client, nodeID string, queueSize int) *ClusterRouter {
	s := &ClusterRouter{
		local:  local,
		rdb:    rdb,
		nodeID: nodeID,
		pool:   workerpool.New("cluster-relay", 1, queueSize),
	}
	if rdb != nil {
		s.pub = rdb
	}
	return s
}

// Close 发完队列中剩余的转发后返回
func (s *ClusterRouter) Close() {
	s.pool.Shutdown()
}

func (s *ClusterRouter) Join(connID string, room uint64) error {
	return s.local.Join(connID, room)
}

func (s *ClusterRouter) Leave(connID string, room uint64) {
	s.local.Leave(connID, room)
}

func (s *ClusterRouter) Broadcast(room uint64, ev Event, ex Exclude) {
	s.local.Broadcast(room, ev, ex)

	msg, err := s.encodeEvent(room, ev, ex)
	if err != nil {
		log.Error("encode relay event failed", "event", ev.Name, "room", room, "err", err)
		return
	}
	s.publish(msg)
}

func (s *ClusterRouter) JoinUser(userID, room uint64) {
	s.local.JoinUser(userID, room)
	s.publish(relayMessage{Kind: relayJoinUser, Room: room, UserID: userID})
}

func (s *ClusterRouter) LeaveUser(userID, room uint64) {
	s.local.LeaveUser(userID, room)
	s.publish(relayMessage{Kind: relayLeaveUser, Room: room, UserID: userID})
}

func (s *ClusterRouter) encodeEvent(room uint64, ev Event, ex Exclude) (relayMessage, error) {
	msg := relayMessage{Kind: relayBroadcast, Room: room, Event: ev.Name, Except: ex}
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return msg, err
	}
	msg.Data = data
	if len(ev.Views) > 0 {
		msg.Views = make(map[uint64]json.RawMessage, len(ev.Views))
		for uid, view := range ev.Views {
			b, err := json.Marshal(view)
			if err != nil {
				return msg, err
			}
			msg.Views[uid] = b
		}
	}
	return msg, nil
}

// publish 发布放到任务池中执行，不阻塞发起变更的请求
func (s *ClusterRouter) publish(msg relayMessage) {
	msg.Node = s.nodeID
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error("marshal relay message failed", "kind", msg.Kind, "err", err)
		return
	}
	ok := s.pool.TrySubmit(func(ctx context.Context) {
		if err := s.pub.Publish(ctx, consts.ClusterChannel, payload).Err(); err != nil {
			log.ErrorContext(ctx, "publish relay message failed", "kind", msg.Kind, "room", msg.Room, "err", err)
		}
	})
	if !ok {
		log.Warn("relay message dropped, other nodes will miss it", "kind", msg.Kind, "room", msg.Room, "event", msg.Event)
	}
}

// Run 订阅其他节点转发的消息直到 ctx 结束
func (s *ClusterRouter) Run(ctx context.Context) error {
	sub := s.rdb.Subscribe(ctx, consts.ClusterChannel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	log.Info("Cluster relay subscribed", "node", s.nodeID, "channel", consts.ClusterChannel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			s.Deliver([]byte(m.Payload))
		}
	}
}

// Deliver 处理一条来自其他节点的消息，自己发布的消息忽略
func (s *ClusterRouter) Deliver(payload []byte) {
	var msg relayMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Warn("invalid relay message", "err", err)
		return
	}
	if msg.Node == s.nodeID {
		return
	}

	switch msg.Kind {
	case relayBroadcast:
		ev := Event{Name: msg.Event, Data: msg.Data}
		if len(msg.Views) > 0 {
			ev.Views = make(map[uint64]any, len(msg.Views))
			for uid, view := range msg.Views {
				ev.Views[uid] = view
			}
		}
		s.local.Broadcast(msg.Room, ev, msg.Except)
	case relayJoinUser:
		s.local.JoinUser(msg.UserID, msg.Room)
	case relayLeaveUser:
		s.local.LeaveUser(msg.UserID, msg.Room)
	}
}
