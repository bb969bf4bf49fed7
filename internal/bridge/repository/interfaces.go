package repository

import (
	"context"
	"errors"

	"tg_zulip_bridge/internal/bridge/models"
)

// ErrDuplicateKey 同一源消息已存在关联记录
// 正常流程不应出现，出现说明同一入站事件被重放，调用方按幂等成功处理
var ErrDuplicateKey = errors.New("correlation record already exists")

// ErrNotFound 源消息没有关联记录
var ErrNotFound = errors.New("correlation record not found")

// CorrelationRepository 关联记录数据访问接口
type CorrelationRepository interface {
	// Put 写入关联记录，键已存在时返回 ErrDuplicateKey
	Put(ctx context.Context, record *models.CorrelationRecord) error

	// Get 根据源消息主键查询关联记录，不存在时返回 ErrNotFound
	Get(ctx context.Context, key models.SourceMessageKey) (*models.CorrelationRecord, error)

	// EnsureIndexes 确保索引存在
	// retentionDays > 0 时追加 TTL 索引，到期记录自动删除
	EnsureIndexes(ctx context.Context, retentionDays int) error
}
