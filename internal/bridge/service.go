package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tg_zulip_bridge/internal/bridge/format"
	"tg_zulip_bridge/internal/bridge/models"
	"tg_zulip_bridge/internal/bridge/policy"
	"tg_zulip_bridge/internal/bridge/repository"
	"tg_zulip_bridge/internal/logger"
	"tg_zulip_bridge/internal/zulip"
)

const (
	maxSendAttempts   = 3                // 出站调用最大尝试次数
	defaultRetryDelay = 2 * time.Second  // 重试间隔
	callTimeout       = 30 * time.Second // 单次出站调用超时
)

// ZulipClient Zulip 出站操作接口
type ZulipClient interface {
	SendMessage(ctx context.Context, stream, topic, content string) (int64, error)
	UpdateMessage(ctx context.Context, messageID int64, content string) error
}

// SenderResolver 发送者显示形式解析接口
type SenderResolver interface {
	Resolve(sender models.Sender) string
}

// Service 桥接编排器
// 按事件驱动渲染、关联存取和出站调用；所有错误都不会中断后续事件的消费
type Service struct {
	zulipClient     ZulipClient
	correlationRepo repository.CorrelationRepository
	formatter       *format.Formatter
	editPolicy      *policy.Policy
	resolver        SenderResolver
	stream          string
	topic           string
	limiter         *RateLimiter
	retryDelay      time.Duration
}

// NewService 创建桥接编排器
func NewService(
	zulipClient ZulipClient,
	correlationRepo repository.CorrelationRepository,
	formatter *format.Formatter,
	editPolicy *policy.Policy,
	resolver SenderResolver,
	stream string,
	topic string,
	limiter *RateLimiter,
) *Service {
	return &Service{
		zulipClient:     zulipClient,
		correlationRepo: correlationRepo,
		formatter:       formatter,
		editPolicy:      editPolicy,
		resolver:        resolver,
		stream:          stream,
		topic:           topic,
		limiter:         limiter,
		retryDelay:      defaultRetryDelay,
	}
}

// HandleInbound 处理一条入站事件（新消息或编辑）
func (s *Service) HandleInbound(ctx context.Context, msg *models.InboundMessage) {
	if msg.IsEdit {
		s.handleEdit(ctx, msg)
		return
	}
	s.handleNew(ctx, msg)
}

// handleNew 新消息：渲染 -> 创建 Zulip 消息 -> 写入关联记录
// Zulip 确认创建之前绝不写关联（无投机写入）
func (s *Service) handleNew(ctx context.Context, msg *models.InboundMessage) {
	content := s.formatter.Render(msg)
	topic := s.formatter.Topic(s.topic, msg.SentAt)

	zulipMessageID, err := s.sendWithRetry(ctx, topic, content)
	if err != nil {
		logger.L().Errorf("Failed to forward message %d in chat %d after %d attempts, message lost: %v",
			msg.Key.MessageID, msg.Key.ChatID, maxSendAttempts, err)
		return
	}

	record := &models.CorrelationRecord{
		ChatID:         msg.Key.ChatID,
		MessageID:      msg.Key.MessageID,
		ZulipMessageID: zulipMessageID,
		SourceSentAt:   msg.SentAt,
		Sender:         msg.Sender,
	}

	// 即使 ctx 已被取消也要尝试写关联，否则 Zulip 端会留下孤儿消息
	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), callTimeout)
	defer cancel()

	if err := s.correlationRepo.Put(putCtx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			// 同一入站事件被重放，Zulip 端已投递过，按幂等成功处理
			logger.L().Infof("Duplicate correlation for message %d in chat %d, treating as success",
				msg.Key.MessageID, msg.Key.ChatID)
			return
		}
		// 已知的数据丢失模式：创建成功但关联写入失败，后续编辑将无法定位
		logger.L().Errorf("Zulip message %d created but correlation write failed for message %d in chat %d: %v",
			zulipMessageID, msg.Key.MessageID, msg.Key.ChatID, err)
		return
	}

	logger.L().Debugf("Forwarded message %d in chat %d as zulip message %d",
		msg.Key.MessageID, msg.Key.ChatID, zulipMessageID)
}

// handleEdit 编辑事件：查关联 -> 评估窗口 -> 重渲染 -> 编辑 Zulip 消息
// 编辑永远作用于关联记录中的 Zulip 消息 ID，绝不创建新消息
func (s *Service) handleEdit(ctx context.Context, msg *models.InboundMessage) {
	record, err := s.correlationRepo.Get(ctx, msg.Key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// 原消息从未被转发（早于桥接器启动，或当时转发失败），直接丢弃
			logger.L().Infof("Edit for unknown message %d in chat %d, dropping",
				msg.Key.MessageID, msg.Key.ChatID)
			return
		}
		logger.L().Errorf("Failed to look up correlation for message %d in chat %d: %v",
			msg.Key.MessageID, msg.Key.ChatID, err)
		return
	}

	if err := s.editPolicy.Evaluate(record.SourceSentAt, msg.EditedAt); err != nil {
		logger.L().Infof("User %s tried to edit a message older than the edit window, dropping: %v",
			record.Sender.DisplayName(), err)
		return
	}

	content := s.formatter.RenderEdit(msg, s.resolver.Resolve(record.Sender), record.SourceSentAt)

	if err := s.editWithRetry(ctx, record.ZulipMessageID, content); err != nil {
		logger.L().Errorf("Failed to apply edit of message %d in chat %d to zulip message %d: %v",
			msg.Key.MessageID, msg.Key.ChatID, record.ZulipMessageID, err)
		return
	}

	logger.L().Debugf("Applied edit of message %d in chat %d to zulip message %d",
		msg.Key.MessageID, msg.Key.ChatID, record.ZulipMessageID)
}

// sendWithRetry 创建 Zulip 消息（带重试）
func (s *Service) sendWithRetry(ctx context.Context, topic, content string) (int64, error) {
	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if err := s.waitTurn(ctx); err != nil {
			return 0, err
		}

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		id, err := s.zulipClient.SendMessage(callCtx, s.stream, topic, content)
		cancel()

		if err == nil {
			return id, nil
		}
		lastErr = err

		if !zulip.IsRetryable(err) {
			return 0, err
		}
		if attempt < maxSendAttempts {
			logger.L().Warnf("Send attempt %d failed: %v, retrying in %s", attempt, err, s.retryDelay)
			if err := s.sleep(ctx); err != nil {
				return 0, err
			}
		}
	}
	return 0, fmt.Errorf("failed after %d attempts: %w", maxSendAttempts, lastErr)
}

// editWithRetry 编辑 Zulip 消息（带重试）
func (s *Service) editWithRetry(ctx context.Context, zulipMessageID int64, content string) error {
	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		if err := s.waitTurn(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		err := s.zulipClient.UpdateMessage(callCtx, zulipMessageID, content)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if !zulip.IsRetryable(err) {
			return err
		}
		if attempt < maxSendAttempts {
			logger.L().Warnf("Edit attempt %d failed: %v, retrying in %s", attempt, err, s.retryDelay)
			if err := s.sleep(ctx); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", maxSendAttempts, lastErr)
}

func (s *Service) waitTurn(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait error: %w", err)
	}
	return nil
}

func (s *Service) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.retryDelay):
		return nil
	}
}
