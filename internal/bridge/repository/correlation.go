package repository

import (
	"context"
	"fmt"
	"time"

	"tg_zulip_bridge/internal/bridge/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCorrelationRepository 关联记录数据访问层（MongoDB 实现）
type MongoCorrelationRepository struct {
	collection *mongo.Collection
}

// NewMongoCorrelationRepository 创建关联记录 Repository
func NewMongoCorrelationRepository(db *mongo.Database) CorrelationRepository {
	return &MongoCorrelationRepository{
		collection: db.Collection("correlations"),
	}
}

// Put 写入关联记录
// 依赖 (chat_id, message_id) 唯一索引保证每条源消息至多一条记录，
// 重复写入返回 ErrDuplicateKey
func (r *MongoCorrelationRepository) Put(ctx context.Context, record *models.CorrelationRecord) error {
	record.CreatedAt = time.Now()

	_, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: chat_id=%d, message_id=%d", ErrDuplicateKey, record.ChatID, record.MessageID)
		}
		return fmt.Errorf("failed to create correlation record: %w", err)
	}

	return nil
}

// Get 根据源消息主键查询关联记录
func (r *MongoCorrelationRepository) Get(ctx context.Context, key models.SourceMessageKey) (*models.CorrelationRecord, error) {
	filter := bson.M{
		"chat_id":    key.ChatID,
		"message_id": key.MessageID,
	}

	var record models.CorrelationRecord
	err := r.collection.FindOne(ctx, filter).Decode(&record)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("%w: chat_id=%d, message_id=%d", ErrNotFound, key.ChatID, key.MessageID)
		}
		return nil, fmt.Errorf("failed to get correlation record: %w", err)
	}

	return &record, nil
}

// EnsureIndexes 确保索引存在
func (r *MongoCorrelationRepository) EnsureIndexes(ctx context.Context, retentionDays int) error {
	indexes := []mongo.IndexModel{
		// 复合唯一索引（每条源消息至多一条关联记录）
		{
			Keys: bson.D{
				{Key: "chat_id", Value: 1},
				{Key: "message_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	// TTL 索引（可选的保留策略，0 表示永久保留）
	if retentionDays > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(retentionDays * 24 * 3600)),
		})
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes for correlations: %w", err)
	}

	return nil
}
