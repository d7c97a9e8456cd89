package ledger

// Status 单个接收者视角下的消息状态，只由回执集合推导，不单独存储
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
)

func (s Status) rank() int {
	switch s {
	case StatusRead:
		return 2
	case StatusDelivered:
		return 1
	}
	return 0
}

// After 状态是否比 other 更靠后
func (s Status) After(other Status) bool {
	return s.rank() > other.rank()
}

// StatusFor 接收者视角：read > delivered > sent
func (m Message) StatusFor(userID uint64) Status {
	if m.ReadByUser(userID) {
		return StatusRead
	}
	if m.DeliveredToUser(userID) {
		return StatusDelivered
	}
	return StatusSent
}

// SenderStatus 发送者视角：任一其他成员已读即 read，任一已投递即 delivered
func (m Message) SenderStatus() Status {
	for _, r := range m.ReadBy {
		if r.UserID != m.SenderID {
			return StatusRead
		}
	}
	for _, r := range m.DeliveredTo {
		if r.UserID != m.SenderID {
			return StatusDelivered
		}
	}
	return StatusSent
}

// ViewStatus 按观察者身份选择视角
func (m Message) ViewStatus(viewer uint64) Status {
	if viewer == m.SenderID {
		return m.SenderStatus()
	}
	return m.StatusFor(viewer)
}
