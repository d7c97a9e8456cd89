package service

import "Murmur/internal/pkg/apperr"

var (
	ErrMessageMismatch = apperr.ErrNotFound.WithMessage("message not found in this conversation")
	ErrReplyNotFound   = apperr.ErrNotFound.WithMessage("reply target not found in this conversation")
	ErrNotJoined       = apperr.ErrForbidden.WithMessage("join the conversation first")
)
