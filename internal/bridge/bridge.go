package bridge

import (
	"context"
	"fmt"
	"strings"

	"tg_zulip_bridge/internal/bridge/dispatch"
	"tg_zulip_bridge/internal/logger"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// BotConfig Telegram 侧配置
type BotConfig struct {
	Token     string // Bot Token
	ChatID    int64  // 限定转发的群组 ID（0 表示全部）
	QueueSize int    // 每个群组事件队列容量
	Debug     bool   // 是否开启调试模式
}

// Bot Telegram 入站端
// 消费 Telegram 更新流，按群组顺序分派给桥接编排器
type Bot struct {
	bot        *bot.Bot
	service    *Service
	dispatcher *dispatch.Dispatcher
	chatID     int64
}

// NewBot 创建 Telegram 入站端
func NewBot(cfg BotConfig, service *Service) (*Bot, error) {
	// 验证配置
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token cannot be empty")
	}

	bridgeBot := &Bot{
		service:    service,
		dispatcher: dispatch.NewDispatcher(cfg.QueueSize),
		chatID:     cfg.ChatID,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(bridgeBot.handleUpdate),
	}
	if cfg.Debug {
		opts = append(opts, bot.WithDebug())
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	bridgeBot.bot = b

	// 注册 handlers
	bridgeBot.registerHandlers()

	logger.L().Info("Telegram bridge bot initialized successfully")
	return bridgeBot, nil
}

// registerHandlers 注册命令处理器；其余更新都进默认处理器转发
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, b.handleStart)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypeExact, b.handleHelp)
}

// Start 启动 Bot（阻塞式，应在 goroutine 中运行或由 main 持有）
func (b *Bot) Start(ctx context.Context) {
	logger.L().Info("Starting Telegram bridge bot...")
	b.bot.Start(ctx)
	logger.L().Info("Telegram bridge bot stopped")
}

// Stop 停止 Bot 并排空分派队列
// 排队中的转发任务（包括已创建待写关联的）会先执行完
func (b *Bot) Stop() {
	b.dispatcher.Shutdown()
}

// handleUpdate 默认更新处理器：新消息与编辑事件都从这里进入桥接管线
func (b *Bot) handleUpdate(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	msg, isEdit := effectiveMessage(update)
	if msg == nil {
		return
	}

	// 群组过滤
	if b.chatID != 0 && msg.Chat.ID != b.chatID {
		logger.L().Debugf("Message from chat %d, bridging only %d, skipping", msg.Chat.ID, b.chatID)
		return
	}

	// 命令不转发
	if strings.HasPrefix(msg.Text, "/") {
		return
	}

	chatID := msg.Chat.ID
	b.dispatcher.Submit(chatID, func() {
		// 附件链接解析涉及网络调用，放在群组 worker 内执行，
		// 不阻塞更新接收循环
		inbound, err := b.toInbound(ctx, msg, isEdit)
		if err != nil {
			b.replyUnsupported(ctx, msg, isEdit)
			return
		}
		b.service.HandleInbound(ctx, inbound)
	})
}

// effectiveMessage 从更新中取出消息并判断是否编辑事件
func effectiveMessage(update *botModels.Update) (*botModels.Message, bool) {
	if update.Message != nil {
		return update.Message, false
	}
	if update.EditedMessage != nil {
		return update.EditedMessage, true
	}
	return nil, false
}

// replyUnsupported 对不支持的内容类型礼貌回复（编辑事件不回复）
func (b *Bot) replyUnsupported(ctx context.Context, msg *botModels.Message, isEdit bool) {
	sender := senderOf(msg)
	logger.L().Warnf("User %d sent a message with unsupported content in chat %d", sender.ID, msg.Chat.ID)

	if isEdit {
		return
	}

	text := fmt.Sprintf("Sorry %s, I cannot forward a message with this content to Zulip 😞", sender.FirstName)
	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:              msg.Chat.ID,
		Text:                text,
		DisableNotification: true,
		ReplyParameters: &botModels.ReplyParameters{
			MessageID: msg.ID,
		},
	})
	if err != nil {
		logger.L().Errorf("Failed to send unsupported-content reply to chat %d: %v", msg.Chat.ID, err)
	}
}

// handleStart 处理 /start 命令
func (b *Bot) handleStart(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	text := fmt.Sprintf("Hi %s! I forward messages from this chat to Zulip.", update.Message.From.FirstName)
	_, err := botInstance.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   text,
	})
	if err != nil {
		logger.L().Errorf("Failed to send /start reply to chat %d: %v", update.Message.Chat.ID, err)
	}
}

// handleHelp 处理 /help 命令
func (b *Bot) handleHelp(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}

	text := "I mirror this chat into a Zulip stream: text, replies, @-mentions, " +
		"attachments (as links) and edits made within 60 minutes."
	_, err := botInstance.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   text,
	})
	if err != nil {
		logger.L().Errorf("Failed to send /help reply to chat %d: %v", update.Message.Chat.ID, err)
	}
}
