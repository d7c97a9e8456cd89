package repository

import (
	"Murmur/internal/im/membership"
	"Murmur/internal/model"
	"Murmur/internal/pkg/consts"
	"context"
	"errors"
	"fmt"

	"github.com/jinzhu/copier"
	"gorm.io/gorm"
)

type ConversationRepo interface {
	Create(ctx context.Context, c membership.Conversation) (membership.Conversation, error)
	Load(ctx context.Context, id uint64) (membership.Conversation, error)
	FindDirect(ctx context.Context, a, b uint64) (membership.Conversation, error)
	ListForUser(ctx context.Context, userID uint64) ([]membership.Conversation, error)
	Apply(ctx context.Context, writes []membership.Write) error
}

type conversationRepoImpl struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepoImpl{db: db}
}

// AutoMigrate 建表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Conversation{}, &model.ConversationMember{})
}

// Create 在一个事务内创建会话及初始成员，单聊依赖 peer_key 唯一索引去重
func (s *conversationRepoImpl) Create(ctx context.Context, c membership.Conversation) (membership.Conversation, error) {
	row := toConversationRow(c)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&row).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return membership.Conversation{}, ErrDirectExists
		}
		return membership.Conversation{}, err
	}
	return toConversation(row)
}

// Load 根据会话 ID 获取会话及全部成员
func (s *conversationRepoImpl) Load(ctx context.Context, id uint64) (membership.Conversation, error) {
	var row model.Conversation
	err := s.db.WithContext(ctx).Preload("Members").First(&row, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return membership.Conversation{}, ErrConversationNotFound
		}
		return membership.Conversation{}, err
	}
	return toConversation(row)
}

// FindDirect 根据成员对查找单聊
func (s *conversationRepoImpl) FindDirect(ctx context.Context, a, b uint64) (membership.Conversation, error) {
	var row model.Conversation
	err := s.db.WithContext(ctx).Preload("Members").
		Where("peer_key = ?", PeerKey(a, b)).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return membership.Conversation{}, ErrConversationNotFound
		}
		return membership.Conversation{}, err
	}
	return toConversation(row)
}

// ListForUser 联表查询用户参与的会话，置顶优先，其余按最后活跃时间倒序
func (s *conversationRepoImpl) ListForUser(ctx context.Context, userID uint64) ([]membership.Conversation, error) {
	var rows []model.Conversation
	err := s.db.WithContext(ctx).
		Joins("JOIN conversation_members m ON m.conversation_id = conversations.id AND m.user_id = ?", userID).
		Preload("Members").
		Order("m.is_pinned DESC, conversations.last_activity DESC").
		Limit(consts.ConversationListLimit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]membership.Conversation, 0, len(rows))
	for _, row := range rows {
		c, err := toConversation(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Apply 在同一事务内按顺序执行写操作
func (s *conversationRepoImpl) Apply(ctx context.Context, writes []membership.Write) error {
	if len(writes) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, w := range writes {
			if err := applyWrite(tx, w); err != nil {
				return fmt.Errorf("%s conversation %d: %w", w.Op, w.ConversationID, err)
			}
		}
		return nil
	})
}

func applyWrite(tx *gorm.DB, w membership.Write) error {
	member := func() *gorm.DB {
		return tx.Model(&model.ConversationMember{}).Where("conversation_id = ? AND user_id = ?", w.ConversationID, w.UserID)
	}

	switch w.Op {
	case membership.OpInsertMember:
		row := toMemberRow(w.ConversationID, w.Member)
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return membership.ErrAlreadyMember
			}
			return err
		}
		return tx.Model(&model.Conversation{}).Where("id = ?", w.ConversationID).
			Update("last_activity", w.At).Error

	case membership.OpDeleteMember:
		res := tx.Where("conversation_id = ? AND user_id = ?", w.ConversationID, w.UserID).
			Delete(&model.ConversationMember{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return membership.ErrTargetNotFound
		}
		return nil

	case membership.OpUpdateRole:
		return member().Update("role", string(w.Role)).Error

	case membership.OpIncrUnread:
		// 原子自增，不读回
		return tx.Model(&model.ConversationMember{}).
			Where("conversation_id = ? AND user_id <> ?", w.ConversationID, w.UserID).
			Update("unread_count", gorm.Expr("unread_count + 1")).Error

	case membership.OpMarkRead:
		return member().Updates(map[string]interface{}{
			"last_read_message_id": w.MessageID,
			"unread_count":         0,
		}).Error

	case membership.OpTouch:
		return tx.Model(&model.Conversation{}).Where("id = ?", w.ConversationID).
			Updates(map[string]interface{}{
				"last_message_id": w.MessageID,
				"last_activity":   w.At,
			}).Error

	case membership.OpUpdateSettings:
		updates := map[string]interface{}{}
		if w.Muted != nil {
			updates["is_muted"] = *w.Muted
		}
		if w.Pinned != nil {
			updates["is_pinned"] = *w.Pinned
		}
		if len(updates) == 0 {
			return nil
		}
		return member().Updates(updates).Error

	case membership.OpRename:
		return tx.Model(&model.Conversation{}).Where("id = ?", w.ConversationID).
			Update("name", w.Name).Error
	}
	return fmt.Errorf("unknown membership write %d", w.Op)
}

func toConversationRow(c membership.Conversation) model.Conversation {
	row := model.Conversation{
		ID:            c.ID,
		Kind:          string(c.Kind),
		Name:          c.Name,
		CreatedBy:     c.CreatedBy,
		LastMessageID: c.LastMessageID,
		LastActivity:  c.LastActivity,
		Members:       make([]model.ConversationMember, 0, len(c.Members)),
	}
	if c.Kind == membership.KindDirect && len(c.Members) == 2 {
		key := PeerKey(c.Members[0].UserID, c.Members[1].UserID)
		row.PeerKey = &key
	}
	for _, m := range c.Members {
		row.Members = append(row.Members, toMemberRow(c.ID, m))
	}
	return row
}

func toMemberRow(conversationID uint64, m membership.Member) model.ConversationMember {
	row := model.ConversationMember{ConversationID: conversationID}
	_ = copier.Copy(&row, &m)
	row.Role = string(m.Role)
	return row
}

func toConversation(row model.Conversation) (membership.Conversation, error) {
	c := membership.Conversation{
		ID:            row.ID,
		Kind:          membership.Kind(row.Kind),
		Name:          row.Name,
		CreatedBy:     row.CreatedBy,
		LastMessageID: row.LastMessageID,
		LastActivity:  row.LastActivity,
		Members:       make([]membership.Member, 0, len(row.Members)),
	}
	for _, r := range row.Members {
		var m membership.Member
		if err := copier.Copy(&m, &r); err != nil {
			return membership.Conversation{}, err
		}
		m.Role = membership.Role(r.Role)
		c.Members = append(c.Members, m)
	}
	return c, nil
}
