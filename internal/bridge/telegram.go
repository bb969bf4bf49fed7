package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tg_zulip_bridge/internal/bridge/models"
	"tg_zulip_bridge/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// errUnsupportedContent 消息既无文本也无可转发的媒体
var errUnsupportedContent = errors.New("unsupported message content")

// toInbound 将 Telegram 消息转换为入站消息
func (b *Bot) toInbound(ctx context.Context, msg *botModels.Message, isEdit bool) (*models.InboundMessage, error) {
	messageType, fileID := classifyContent(msg)
	if messageType == "" {
		return nil, errUnsupportedContent
	}

	inbound := &models.InboundMessage{
		Key:         models.SourceMessageKey{ChatID: msg.Chat.ID, MessageID: int64(msg.ID)},
		Sender:      senderOf(msg),
		SentAt:      time.Unix(int64(msg.Date), 0),
		IsEdit:      isEdit,
		MessageType: messageType,
	}
	if isEdit {
		inbound.EditedAt = time.Unix(int64(msg.EditDate), 0)
	}

	if msg.Text != "" {
		inbound.Text = msg.Text
		inbound.Entities = mentionEntities(msg.Entities)
	} else {
		inbound.Text = msg.Caption
		inbound.Entities = mentionEntities(msg.CaptionEntities)
	}

	// 解析附件的临时下载链接
	if fileID != "" {
		url, err := b.attachmentURL(ctx, fileID)
		if err != nil {
			// 链接解析失败降级为纯文本转发，不算致命
			logger.L().Warnf("Failed to resolve attachment url for message %d in chat %d: %v",
				msg.ID, msg.Chat.ID, err)
		} else {
			inbound.AttachmentURL = url
		}
	}

	inbound.Reply = replyContextOf(msg.ReplyToMessage)

	return inbound, nil
}

// classifyContent 判定消息类型并取出媒体文件 ID
// 支持的媒体：照片、文件、视频、视频留言、音频、语音；其余类型不转发
func classifyContent(msg *botModels.Message) (string, string) {
	switch {
	case msg.Text != "":
		return models.MessageTypeText, ""
	case len(msg.Photo) > 0:
		// 取分辨率最高的一档
		return models.MessageTypePhoto, msg.Photo[len(msg.Photo)-1].FileID
	case msg.Document != nil:
		return models.MessageTypeDocument, msg.Document.FileID
	case msg.Video != nil:
		return models.MessageTypeVideo, msg.Video.FileID
	case msg.VideoNote != nil:
		return models.MessageTypeVideoNote, msg.VideoNote.FileID
	case msg.Audio != nil:
		return models.MessageTypeAudio, msg.Audio.FileID
	case msg.Voice != nil:
		return models.MessageTypeVoice, msg.Voice.FileID
	default:
		return "", ""
	}
}

// senderOf 提取发送者引用（频道消息可能没有 From）
func senderOf(msg *botModels.Message) models.Sender {
	if msg.From == nil {
		return models.Sender{}
	}
	return models.Sender{
		ID:        msg.From.ID,
		Username:  msg.From.Username,
		FirstName: msg.From.FirstName,
		LastName:  msg.From.LastName,
	}
}

// mentionEntities 筛选并转换提及实体
// 只保留两种：@username 形式的 mention 和不带 handle 的 text_mention
func mentionEntities(entities []botModels.MessageEntity) []models.MentionEntity {
	var out []models.MentionEntity
	for _, e := range entities {
		switch e.Type {
		case botModels.MessageEntityTypeMention:
			out = append(out, models.MentionEntity{Offset: e.Offset, Length: e.Length})
		case botModels.MessageEntityTypeTextMention:
			if e.User == nil {
				continue
			}
			out = append(out, models.MentionEntity{Offset: e.Offset, Length: e.Length, UserID: e.User.ID})
		}
	}
	return out
}

// replyContextOf 提取回复上下文（非回复消息返回 nil）
func replyContextOf(parent *botModels.Message) *models.ReplyContext {
	if parent == nil {
		return nil
	}

	snippet := parent.Text
	if snippet == "" {
		snippet = parent.Caption
	}

	return &models.ReplyContext{
		Key:     models.SourceMessageKey{ChatID: parent.Chat.ID, MessageID: int64(parent.ID)},
		Sender:  senderOf(parent),
		SentAt:  time.Unix(int64(parent.Date), 0),
		Snippet: snippet,
	}
}

// attachmentURL 通过 getFile 换取附件的临时下载链接
func (b *Bot) attachmentURL(ctx context.Context, fileID string) (string, error) {
	file, err := b.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("failed to get file: %w", err)
	}
	return b.bot.FileDownloadLink(file), nil
}
