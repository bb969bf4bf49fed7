package app

import (
	"context"
	"fmt"
	"time"

	"tg_zulip_bridge/internal/bridge"
	"tg_zulip_bridge/internal/bridge/format"
	"tg_zulip_bridge/internal/bridge/identity"
	"tg_zulip_bridge/internal/bridge/policy"
	"tg_zulip_bridge/internal/bridge/repository"
	"tg_zulip_bridge/internal/config"
	"tg_zulip_bridge/internal/logger"
	"tg_zulip_bridge/internal/mongo"
	"tg_zulip_bridge/internal/zulip"
)

// Zulip 官方限流约为 200 请求/分钟，出站保持在其下
const zulipRatePerSecond = 3

// App 应用服务容器
// 负责管理所有服务的生命周期（初始化、运行、关闭）
type App struct {
	MongoDB *mongo.Client
	Zulip   *zulip.Client
	Bridge  *bridge.Bot

	limiter *bridge.RateLimiter
}

// New 初始化应用及其所有服务
// 按顺序初始化各个服务，任何服务初始化失败都会返回错误
func New(cfg *config.Config) (*App, error) {
	app := &App{}

	// 初始化 MongoDB
	mongoClient, err := mongo.InitFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init MongoDB failed: %w", err)
	}
	app.MongoDB = mongoClient
	logger.L().Info("MongoDB initialized successfully")

	// 初始化关联记录仓储与索引
	correlationRepo := repository.NewMongoCorrelationRepository(mongoClient.Database())
	indexCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := correlationRepo.EnsureIndexes(indexCtx, cfg.MessageRetentionDays); err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("ensure correlation indexes failed: %w", err)
	}
	logger.L().Debug("Correlation indexes ensured")

	// 初始化 Zulip 客户端
	zulipClient, err := zulip.NewClient(cfg.Zulip)
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("init Zulip client failed: %w", err)
	}
	app.Zulip = zulipClient
	logger.L().Info("Zulip client initialized successfully")

	// 加载用户映射表（缺失不致命，所有解析降级为纯文本姓名）
	resolver, err := identity.LoadFile(cfg.UsersMappingFile)
	if err != nil {
		logger.L().Warnf("Users mapping unavailable, mentions degrade to plain names: %v", err)
	} else {
		logger.L().Infof("Users mapping loaded: %d entries", resolver.Size())
	}

	// 加载时区
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("load timezone %q failed: %w", cfg.Timezone, err)
	}

	// 组装桥接管线
	formatter := format.New(resolver, location)
	app.limiter = bridge.NewRateLimiter(zulipRatePerSecond)
	service := bridge.NewService(
		zulipClient,
		correlationRepo,
		formatter,
		policy.New(),
		resolver,
		cfg.Zulip.Stream,
		cfg.Zulip.Topic,
		app.limiter,
	)

	bridgeBot, err := bridge.NewBot(bridge.BotConfig{
		Token:     cfg.TelegramToken,
		ChatID:    cfg.BridgeChatID,
		QueueSize: 256,
	}, service)
	if err != nil {
		app.Close(context.Background())
		return nil, fmt.Errorf("init bridge bot failed: %w", err)
	}
	app.Bridge = bridgeBot

	return app, nil
}

// Close 优雅关闭所有服务
// 应该在应用退出时调用，确保资源正确释放
func (a *App) Close(ctx context.Context) error {
	if a.Bridge != nil {
		a.Bridge.Stop()
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.MongoDB != nil {
		if err := a.MongoDB.Close(ctx); err != nil {
			return fmt.Errorf("close MongoDB failed: %w", err)
		}
	}
	return nil
}
