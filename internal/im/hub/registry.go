// Package hub 连接注册表与房间路由
package hub

import (
	"Murmur/internal/pkg/apperr"
	log "log/slog"
	"sync"
)

var (
	ErrUnbound = apperr.ErrAuth.WithMessage("connection has no identity")
	ErrNoConn  = apperr.ErrNotFound.WithMessage("connection not found")
	ErrClosed  = apperr.ErrServer.WithMessage("registry closed")
)

// Router 与具体传输无关的房间抽象
type Router interface {
	Join(connID string, room uint64) error
	Leave(connID string, room uint64)
	Broadcast(room uint64, ev Event, ex Exclude)
	// JoinUser 让某身份当前所有连接加入房间
	JoinUser(userID, room uint64)
	// LeaveUser 让某身份当前所有连接离开房间
	LeaveUser(userID, room uint64)
}

// Registry 进程内的连接注册表，零值不可用，需通过 NewRegistry 创建
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	users   map[uint64]map[string]*Client
	rooms   map[uint64]map[string]*Client
	joined  map[string]map[uint64]struct{}
	closed  bool
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		users:   make(map[uint64]map[string]*Client),
		rooms:   make(map[uint64]map[string]*Client),
		joined:  make(map[string]map[uint64]struct{}),
	}
}

// Bind 注册一个连接，返回是否是该身份的第一个连接
func (r *Registry) Bind(c *Client) (bool, error) {
	if c == nil || c.userID == 0 {
		return false, ErrUnbound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, ErrClosed
	}

	r.clients[c.id] = c
	if _, ok := r.joined[c.id]; !ok {
		r.joined[c.id] = make(map[uint64]struct{})
	}
	conns, ok := r.users[c.userID]
	if !ok {
		conns = make(map[string]*Client)
		r.users[c.userID] = conns
	}
	conns[c.id] = c
	return len(conns) == 1, nil
}

// Unbind 注销连接并离开所有房间，返回离开的房间、是否是该身份最后一个连接，
// 以及该连接此前是否已注册
func (r *Registry) Unbind(connID string) ([]uint64, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[connID]
	if !ok {
		return nil, false, false
	}
	delete(r.clients, connID)

	rooms := make([]uint64, 0, len(r.joined[connID]))
	for room := range r.joined[connID] {
		r.leaveLocked(connID, room)
		rooms = append(rooms, room)
	}
	delete(r.joined, connID)

	last := false
	if conns, ok := r.users[c.userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.users, c.userID)
			last = true
		}
	}
	c.Close()
	return rooms, last, true
}

func (r *Registry) Join(connID string, room uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[connID]
	if !ok {
		return ErrNoConn
	}
	r.joinLocked(c, room)
	return nil
}

func (r *Registry) joinLocked(c *Client, room uint64) {
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		r.rooms[room] = members
	}
	members[c.id] = c
	r.joined[c.id][room] = struct{}{}
}

// Leave 离开房间，重复调用无副作用
func (r *Registry) Leave(connID string, room uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, room)
}

func (r *Registry) leaveLocked(connID string, room uint64) {
	if members, ok := r.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
	if rooms, ok := r.joined[connID]; ok {
		delete(rooms, room)
	}
}

func (r *Registry) JoinUser(userID, room uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.users[userID] {
		r.joinLocked(c, room)
	}
}

func (r *Registry) LeaveUser(userID, room uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.users[userID] {
		r.leaveLocked(id, room)
	}
}

func (r *Registry) InRoom(connID string, room uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.joined[connID][room]
	return ok
}

func (r *Registry) RoomsOf(connID string) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]uint64, 0, len(r.joined[connID]))
	for room := range r.joined[connID] {
		rooms = append(rooms, room)
	}
	return rooms
}

func (r *Registry) ConnectionsOf(userID uint64) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Client, 0, len(r.users[userID]))
	for _, c := range r.users[userID] {
		conns = append(conns, c)
	}
	return conns
}

// Online 本节点上该身份是否还有连接
func (r *Registry) Online(userID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}

// Clients 当前已绑定连接的快照
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast 投递给房间内的所有连接，慢连接只丢弃自己的那一份
func (r *Registry) Broadcast(room uint64, ev Event, ex Exclude) {
	r.broadcast(room, ev, ex)
}

// broadcast 返回成功入队的数量
func (r *Registry) broadcast(room uint64, ev Event, ex Exclude) int {
	r.mu.RLock()
	targets := make([]*Client, 0, len(r.rooms[room]))
	for _, c := range r.rooms[room] {
		if !ex.skip(c) {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	enc := newEncoder(ev)
	sent := 0
	for _, c := range targets {
		data, err := enc.payloadFor(c.userID)
		if err != nil {
			log.Error("encode event failed", "event", ev.Name, "room", room, "err", err)
			return sent
		}
		if c.TrySend(data) {
			sent++
		} else {
			log.Warn("outbound queue full, event dropped", "event", ev.Name, "connID", c.id, "userID", c.userID)
		}
	}
	return sent
}

// Close 关闭所有连接并清空注册表
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		c.Close()
	}
	r.clients = make(map[string]*Client)
	r.users = make(map[uint64]map[string]*Client)
	r.rooms = make(map[uint64]map[string]*Client)
	r.joined = make(map[string]map[uint64]struct{})
	r.closed = true
}
