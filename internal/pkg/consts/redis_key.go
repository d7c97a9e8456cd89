package consts

const (
	PresenceConnsKey    = "im:presence:conns:" // hash: nodeID -> 连接数
	PresenceNodeKey     = "im:presence:node:"  // 节点心跳，过期即视为宕机
	PresenceLastSeenKey = "im:presence:last_seen:"
	ClusterChannel      = "im:cluster:broadcast"
	TokenRevokedKey     = "auth:revoked:"
)

const (
	MessageExpiryLock   = "lock:im:message:expiry"
	ConversationLockKey = "lock:im:conversation:"
)
