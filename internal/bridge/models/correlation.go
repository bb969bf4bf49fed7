package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CorrelationRecord 源消息与 Zulip 消息的关联记录
// 在 Zulip 确认创建后写入一次，此后不再修改（编辑只改 Zulip 端内容）
type CorrelationRecord struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	ChatID         int64              `bson:"chat_id"`          // 源群组 ID
	MessageID      int64              `bson:"message_id"`       // 源消息 ID
	ZulipMessageID int64              `bson:"zulip_message_id"` // Zulip 返回的消息 ID
	SourceSentAt   time.Time          `bson:"source_sent_at"`   // 源消息发送时间（编辑窗口基准）
	Sender         Sender             `bson:"sender"`           // 发送者引用（编辑时重新渲染引用块用）
	CreatedAt      time.Time          `bson:"created_at"`       // 记录创建时间
}

// Key 返回记录对应的源消息主键
func (r *CorrelationRecord) Key() SourceMessageKey {
	return SourceMessageKey{ChatID: r.ChatID, MessageID: r.MessageID}
}
