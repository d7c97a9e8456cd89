package mongo

import (
	"Murmur/internal/im/ledger"
	"Murmur/internal/repository"
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MessageRepo interface {
	Load(ctx context.Context, id string) (ledger.Message, error)
	Apply(ctx context.Context, writes []ledger.Write) error
	History(ctx context.Context, conversationID uint64, before string, limit int) ([]ledger.Message, error)
	ListUndelivered(ctx context.Context, conversationIDs []uint64, userID uint64, limit int) ([]ledger.Message, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]ledger.Message, error)
}

type messageRepoImpl struct {
	col *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) MessageRepo {
	return &messageRepoImpl{
		col: db.Collection("messages"),
	}
}

// EnsureMessageIndexes 创建分页与过期扫描用到的索引
func EnsureMessageIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("messages").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetSparse(true)},
	})
	return err
}

// Load 精确查询
func (s *messageRepoImpl) Load(ctx context.Context, id string) (ledger.Message, error) {
	var msg ledger.Message
	err := s.col.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ledger.Message{}, repository.ErrMessageNotFound
		}
		return ledger.Message{}, err
	}
	return msg, nil
}

// Apply 一次变更的写操作都落在同一条消息上，按顺序批量执行
func (s *messageRepoImpl) Apply(ctx context.Context, writes []ledger.Write) error {
	if len(writes) == 0 {
		return nil
	}

	models := make([]mongo.WriteModel, 0, len(writes))
	for _, w := range writes {
		m, err := toWriteModel(w)
		if err != nil {
			return err
		}
		models = append(models, m)
	}

	_, err := s.col.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrMessageExists
		}
		return err
	}
	return nil
}

func toWriteModel(w ledger.Write) (mongo.WriteModel, error) {
	byID := bson.M{"_id": w.MessageID}

	switch w.Op {
	case ledger.OpInsert:
		if w.Message == nil {
			return nil, fmt.Errorf("insert %s without message", w.MessageID)
		}
		return mongo.NewInsertOneModel().SetDocument(w.Message), nil

	case ledger.OpAddDelivered, ledger.OpAddRead:
		field := "delivered_to"
		if w.Op == ledger.OpAddRead {
			field = "read_by"
		}
		// 按 user_id 去重的集合追加
		return mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": w.MessageID, field + ".user_id": bson.M{"$ne": w.Receipt.UserID}}).
			SetUpdate(bson.M{"$push": bson.M{field: w.Receipt}}), nil

	case ledger.OpSetReactions:
		reactions := w.Reactions
		if reactions == nil {
			reactions = []ledger.Reaction{}
		}
		return mongo.NewUpdateOneModel().
			SetFilter(byID).
			SetUpdate(bson.M{"$set": bson.M{"reactions": reactions}}), nil

	case ledger.OpEdit:
		return mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": w.MessageID, "is_deleted": false}).
			SetUpdate(bson.M{"$set": bson.M{"content": w.Content, "edited_at": w.At}}), nil

	case ledger.OpSoftDelete:
		return mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": w.MessageID, "is_deleted": false}).
			SetUpdate(bson.M{"$set": bson.M{
				"is_deleted": true,
				"deleted_at": w.At,
				"content":    ledger.Content{},
			}}), nil

	case ledger.OpDiscard:
		return mongo.NewDeleteOneModel().SetFilter(byID), nil
	}
	return nil, fmt.Errorf("unknown ledger write %d", w.Op)
}

// History 历史消息分页，before 为当前页面最旧一条消息的 ID，第一页传空
func (s *messageRepoImpl) History(ctx context.Context, conversationID uint64, before string, limit int) ([]ledger.Message, error) {
	filter := bson.M{"conversation_id": conversationID}
	if before != "" {
		filter["_id"] = bson.M{"$lt": before}
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	return s.find(ctx, filter, findOptions)
}

// ListUndelivered 他人发送且尚未投递给 userID 的消息
func (s *messageRepoImpl) ListUndelivered(ctx context.Context, conversationIDs []uint64, userID uint64, limit int) ([]ledger.Message, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}
	filter := bson.M{
		"conversation_id":      bson.M{"$in": conversationIDs},
		"sender_id":            bson.M{"$ne": userID},
		"delivered_to.user_id": bson.M{"$ne": userID},
	}
	findOptions := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	return s.find(ctx, filter, findOptions)
}

// ListExpired 已到期但尚未删除的消息
func (s *messageRepoImpl) ListExpired(ctx context.Context, now time.Time, limit int) ([]ledger.Message, error) {
	filter := bson.M{
		"expires_at": bson.M{"$lte": now},
		"is_deleted": false,
	}
	findOptions := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	return s.find(ctx, filter, findOptions)
}

func (s *messageRepoImpl) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]ledger.Message, error) {
	cursor, err := s.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cursor.Close(ctx)
	}()

	messages := make([]ledger.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
