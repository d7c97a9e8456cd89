package consts

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
	ExpirySweepBatch    = 200
)

const (
	ConversationListLimit = 200
)

// gin.Context 中的键
const (
	UserIDKey = "user_id"
	RolesKey  = "roles"
)
