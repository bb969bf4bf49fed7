package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg_zulip_bridge/internal/app"
	"tg_zulip_bridge/internal/config"
	"tg_zulip_bridge/internal/logger"
)

func main() {
	// 初始化logger
	logger.Init()

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatalf("配置加载失败: %v", err)
	}

	// 初始化应用
	application, err := app.New(cfg)
	if err != nil {
		logger.L().Fatalf("应用初始化失败: %v", err)
	}

	// SIGINT/SIGTERM 触发优雅退出
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// 启动 Bot（阻塞直到收到退出信号）
	application.Bridge.Start(ctx)

	// 排空队列并释放资源
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := application.Close(shutdownCtx); err != nil {
		logger.L().Errorf("应用关闭失败: %v", err)
	}

	logger.L().Info("Bridge stopped")
}
