package format

import (
	"sort"
	"strings"
	"time"
	"unicode/utf16"

	"tg_zulip_bridge/internal/bridge/identity"
	"tg_zulip_bridge/internal/bridge/models"
	"tg_zulip_bridge/internal/logger"
)

// 时间与日期格式（Zulip 端显示用）
const (
	timeLayout     = "15:04"
	dateLayout     = "02 January 2006"
	dateTimeLayout = "02 January 2006, 15:04"
)

// Formatter 将入站消息渲染为 Zulip Markdown
// 渲染是纯函数式的：同样的输入总是产生同样的输出，编辑重发才能保持结构一致
type Formatter struct {
	resolver *identity.Resolver
	location *time.Location
}

// New 创建 Formatter
// location 为桥接器配置的显示时区（引用块时间戳、日期 Topic 都用它）
func New(resolver *identity.Resolver, location *time.Location) *Formatter {
	if location == nil {
		location = time.UTC
	}
	return &Formatter{
		resolver: resolver,
		location: location,
	}
}

// Render 渲染一条入站消息
func (f *Formatter) Render(msg *models.InboundMessage) string {
	return f.render(msg, f.resolver.Resolve(msg.Sender), msg.SentAt)
}

// RenderEdit 渲染编辑后的消息
// 发送者显示与发送时间取自关联记录，保证引用块结构与首次发送完全一致，
// 只有正文部分随编辑变化
func (f *Formatter) RenderEdit(msg *models.InboundMessage, originalSenderDisplay string, originalSentAt time.Time) string {
	return f.render(msg, originalSenderDisplay, originalSentAt)
}

// Topic 返回消息应投递到的 Zulip Topic
// 配置了固定 Topic 时直接使用，否则用消息日期作为 Topic
func (f *Formatter) Topic(configured string, sentAt time.Time) string {
	if configured != "" {
		return configured
	}
	return sentAt.In(f.location).Format(dateLayout)
}

func (f *Formatter) render(msg *models.InboundMessage, senderDisplay string, sentAt time.Time) string {
	body := f.substituteMentions(msg.Text, msg.Entities)

	var b strings.Builder

	// 引用块（回复消息的第一部分）
	if msg.Reply != nil {
		if f.replyUsable(msg.Reply) {
			f.writeQuoteBlock(&b, msg.Reply, sentAt)
			b.WriteString("\n")
		} else {
			// 回复上下文不完整，降级为普通消息渲染
			logger.L().Infof("Malformed reply context on message %d in chat %d, rendering as plain",
				msg.Key.MessageID, msg.Key.ChatID)
		}
	}

	// 发送者标签 + 正文
	b.WriteString("*")
	b.WriteString(senderDisplay)
	b.WriteString(":*\n")
	b.WriteString(body)

	// 附件链接
	if msg.HasAttachment() {
		if body != "" {
			b.WriteString("\n")
		}
		b.WriteString(attachmentLink(msg.MessageType, msg.AttachmentURL))
	}

	return b.String()
}

// replyUsable 回复上下文是否完整到可以渲染引用块
func (f *Formatter) replyUsable(reply *models.ReplyContext) bool {
	return reply.Key.MessageID != 0 && !reply.SentAt.IsZero()
}

// writeQuoteBlock 写入被回复消息的引用块
// 头行为 `> *发送者 (HH:MM):*`；被回复消息与当前消息不在同一天时，
// 头行时间额外带上日期以消除歧义；正文每一行都加引用前缀
func (f *Formatter) writeQuoteBlock(b *strings.Builder, reply *models.ReplyContext, sentAt time.Time) {
	parentLocal := reply.SentAt.In(f.location)
	replyLocal := sentAt.In(f.location)

	stamp := parentLocal.Format(timeLayout)
	if !sameDate(parentLocal, replyLocal) {
		stamp = parentLocal.Format(dateTimeLayout)
	}

	b.WriteString("> *")
	b.WriteString(f.resolver.Resolve(reply.Sender))
	b.WriteString(" (")
	b.WriteString(stamp)
	b.WriteString("):*\n")

	for _, line := range strings.Split(reply.Snippet, "\n") {
		b.WriteString("> ")
		b.WriteString(line)
		b.WriteString("\n")
	}
}

// substituteMentions 按源平台提供的实体偏移替换正文中的 @提及
// 偏移以 UTF-16 码元计量，必须先编码再切片，直接按字节或 rune 扫描
// 会在正文含代理对字符（emoji 等）时错位
func (f *Formatter) substituteMentions(text string, entities []models.MentionEntity) string {
	if text == "" || len(entities) == 0 {
		return text
	}

	units := utf16.Encode([]rune(text))

	sorted := append([]models.MentionEntity(nil), entities...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Offset < sorted[j].Offset
	})

	var b strings.Builder
	cur := 0
	for _, e := range sorted {
		// 越界或重叠的实体按来源数据异常跳过
		if e.Offset < cur || e.Length <= 0 || e.Offset+e.Length > len(units) {
			continue
		}
		b.WriteString(string(utf16.Decode(units[cur:e.Offset])))
		segment := string(utf16.Decode(units[e.Offset : e.Offset+e.Length]))
		b.WriteString(f.substituteEntity(segment, e))
		cur = e.Offset + e.Length
	}
	b.WriteString(string(utf16.Decode(units[cur:])))

	return b.String()
}

// substituteEntity 替换单个提及实体
// 映射表查不到时保留原文（降级，不产生 Zulip 提及）
func (f *Formatter) substituteEntity(segment string, e models.MentionEntity) string {
	if e.UserID != 0 {
		// text_mention：没有公开 handle 的用户，按数字 ID 查映射
		if name, ok := f.resolver.LookupID(e.UserID); ok {
			return identity.MentionForm(name)
		}
		return segment
	}

	handle := strings.TrimPrefix(segment, "@")
	if name, ok := f.resolver.LookupHandle(handle); ok {
		return identity.MentionForm(name)
	}
	return segment
}

// attachmentLink 按消息类型生成附件的 Markdown 链接
// 照片用内联图片语法（Zulip 会就地预览），其它类型用命名链接
func attachmentLink(messageType, url string) string {
	switch messageType {
	case models.MessageTypePhoto:
		return "[image](" + url + ")"
	default:
		return "[Link to file](" + url + ")"
	}
}

// sameDate 两个时间（已换算到同一时区）是否在同一个日历日
func sameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
