package models

import (
	"time"
)

// 消息内容类型常量（封闭集合，Formatter 穷举处理）
const (
	MessageTypeText      = "text"
	MessageTypePhoto     = "photo"
	MessageTypeDocument  = "document"
	MessageTypeVideo     = "video"
	MessageTypeVideoNote = "video_note"
	MessageTypeAudio     = "audio"
	MessageTypeVoice     = "voice"
)

// SourceMessageKey 源消息的复合主键（群组 ID + 消息 ID）
// 由 Telegram 分配，在桥接器生命周期内唯一标识一条入站消息
type SourceMessageKey struct {
	ChatID    int64 `bson:"chat_id"`
	MessageID int64 `bson:"message_id"`
}

// Sender 发送者引用
// Username 为空时表示该用户没有公开 handle，解析时退化为数字 ID 或姓名
type Sender struct {
	ID        int64  `bson:"id"`
	Username  string `bson:"username,omitempty"`
	FirstName string `bson:"first_name,omitempty"`
	LastName  string `bson:"last_name,omitempty"`
}

// DisplayName 返回发送者的纯文本显示名（无法解析为 Zulip 提及时的降级形式）
func (s Sender) DisplayName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	if s.FirstName == "" {
		return s.LastName
	}
	return s.FirstName + " " + s.LastName
}

// MentionEntity 消息正文中的一处 @提及
// Offset/Length 按 Telegram 实体边界以 UTF-16 码元计量，不是字节或 rune 数
type MentionEntity struct {
	Offset int   // UTF-16 偏移
	Length int   // UTF-16 长度
	UserID int64 // text_mention 实体携带的用户 ID（普通 mention 为 0）
}

// ReplyContext 回复上下文（由源平台解析，核心原样传递）
type ReplyContext struct {
	Key     SourceMessageKey
	Sender  Sender
	SentAt  time.Time
	Snippet string // 被回复消息的正文（或媒体说明文字）
}

// InboundMessage 入站消息（新消息或编辑事件的统一表示）
type InboundMessage struct {
	Key    SourceMessageKey
	Sender Sender
	SentAt time.Time

	// 编辑事件信息
	IsEdit   bool
	EditedAt time.Time // 仅编辑事件有效

	// 消息内容
	MessageType string // 消息类型常量之一
	Text        string // 文本内容或媒体说明文字
	Entities    []MentionEntity

	// 附件信息（媒体消息经 Telegram getFile 解析出的临时下载链接）
	AttachmentURL string

	// 回复信息（非回复消息为 nil）
	Reply *ReplyContext
}

// HasAttachment 是否携带附件
func (m *InboundMessage) HasAttachment() bool {
	return m.MessageType != MessageTypeText && m.AttachmentURL != ""
}
