package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Client 一个已鉴权的长连接。出站队列有界，满了直接丢弃该客户端的这一份投递
type Client struct {
	id         string
	userID     uint64
	send       chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	createTime time.Time
}

func NewClient(userID uint64, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		id:         uuid.NewString(),
		userID:     userID,
		send:       make(chan []byte, buffer),
		done:       make(chan struct{}),
		createTime: time.Now(),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) UserID() uint64 {
	return c.userID
}

func (c *Client) CreateTime() time.Time {
	return c.createTime
}

// Outbound 写协程消费的出站队列
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Done 连接关闭后可读
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// TrySend 非阻塞投递，连接已关闭或队列已满时返回 false
func (c *Client) TrySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close 标记连接关闭，可重复调用
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
