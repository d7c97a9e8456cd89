package repository

import (
	"Murmur/internal/pkg/apperr"
	"strconv"
)

var (
	ErrConversationNotFound = apperr.ErrNotFound.WithMessage("conversation not found")
	ErrMessageNotFound      = apperr.ErrNotFound.WithMessage("message not found")
	ErrDirectExists         = apperr.ErrConflict.WithMessage("direct conversation already exists")
	ErrMessageExists        = apperr.ErrConflict.WithMessage("message already exists")
)

// PeerKey 单聊的唯一标识，小 ID 在前
func PeerKey(a, b uint64) string {
	if a > b {
		a, b = b, a
	}
	return strconv.FormatUint(a, 10) + "_" + strconv.FormatUint(b, 10)
}
