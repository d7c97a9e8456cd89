package hub

import (
	"github.com/goccy/go-json"
)

// Event 一次广播。Views 为按接收者定制的数据，没有定制的接收者收到 Data
type Event struct {
	Name  string
	Data  any
	Views map[uint64]any
}

// Exclude 广播时排除的接收者，ConnID 排除单个连接，UserID 排除该身份的全部连接
type Exclude struct {
	ConnID string `json:"connId,omitempty"`
	UserID uint64 `json:"userId,omitempty"`
}

func ExceptConn(connID string) Exclude {
	return Exclude{ConnID: connID}
}

func ExceptUser(userID uint64) Exclude {
	return Exclude{UserID: userID}
}

func (e Exclude) skip(c *Client) bool {
	if e.ConnID != "" && c.id == e.ConnID {
		return true
	}
	return e.UserID != 0 && c.userID == e.UserID
}

// Envelope 线上的消息格式
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode 编码一条发往客户端的消息
func Encode(name string, data any) ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{Event: name, Data: data})
}

// encoder 一次广播内复用编码结果，共享数据只编码一次
type encoder struct {
	ev     Event
	shared []byte
	views  map[uint64][]byte
}

func newEncoder(ev Event) *encoder {
	return &encoder{ev: ev, views: make(map[uint64][]byte)}
}

func (e *encoder) payloadFor(userID uint64) ([]byte, error) {
	if view, ok := e.ev.Views[userID]; ok {
		if b, ok := e.views[userID]; ok {
			return b, nil
		}
		b, err := Encode(e.ev.Name, view)
		if err != nil {
			return nil, err
		}
		e.views[userID] = b
		return b, nil
	}
	if e.shared == nil {
		b, err := Encode(e.ev.Name, e.ev.Data)
		if err != nil {
			return nil, err
		}
		e.shared = b
	}
	return e.shared, nil
}
