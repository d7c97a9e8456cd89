package kafka

import (
	"Murmur/internal/api/dto"
	"context"
	"errors"
	"fmt"
	log "log/slog"

	"github.com/IBM/sarama"
)

const memberTable = "conversation_members"

// MembershipSyncer 接收成员表的变更
type MembershipSyncer interface {
	SyncMembership(ctx context.Context, change *dto.MemberChange)
}

// MemberHandler 消费 conversation_members 表的 binlog，让在线连接跟随成员关系加入或离开房间
type MemberHandler struct {
	syncer MembershipSyncer
}

func NewMemberHandler(syncer MembershipSyncer) *MemberHandler {
	return &MemberHandler{syncer: syncer}
}

func (s *MemberHandler) Setup(sarama.ConsumerGroupSession) error {
	log.Info("member consumer setup")
	return nil
}

func (s *MemberHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Info("member consumer cleanup")
	return nil
}

func (s *MemberHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	return pullMessageBatch(session, claim, s.logic)
}

func (s *MemberHandler) logic(ctx context.Context, msg *sarama.ConsumerMessage) error {
	canalMsg, err := ToCanalMessage(msg, memberTable)
	if err != nil {
		if errors.Is(err, ErrTableMismatch) || errors.Is(err, ErrEmptyData) {
			return nil
		}
		return fmt.Errorf("%w: %v", errSkip, err)
	}

	var joined bool
	switch canalMsg.Type {
	case INSERT:
		joined = true
	case DELETE:
		joined = false
	default:
		return nil
	}

	for _, row := range canalMsg.Data {
		convID, err := rowUint64(row, "conversation_id")
		if err != nil {
			return fmt.Errorf("%w: %v", errSkip, err)
		}
		userID, err := rowUint64(row, "user_id")
		if err != nil {
			return fmt.Errorf("%w: %v", errSkip, err)
		}
		s.syncer.SyncMembership(ctx, &dto.MemberChange{ConversationID: convID, UserID: userID, Joined: joined})
	}
	return nil
}
