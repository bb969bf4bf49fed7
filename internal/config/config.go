package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config 应用程序配置
type Config struct {
	TelegramToken        string // Telegram Bot API Token
	MongoURI             string // MongoDB连接URI
	MongoDBName          string // MongoDB数据库名称
	BridgeChatID         int64  // 源群组 ID（0 表示转发所有群组的消息）
	Timezone             string // 时间显示所用时区，例如 "Europe/Zurich"
	UsersMappingFile     string // Telegram -> Zulip 用户映射文件路径
	MessageRetentionDays int    // 关联记录保留天数（0 表示永久保留）
	Zulip                ZulipConfig
}

// ZulipConfig Zulip 相关配置
type ZulipConfig struct {
	Site   string // Zulip 服务器地址，例如 "https://chat.example.com"
	Email  string // Bot 邮箱
	APIKey string // Bot API Key
	Stream string // 目标 Stream 名称
	Topic  string // 目标 Topic（为空时使用消息日期作为 Topic）
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	mongoDBName := os.Getenv("MONGO_DB_NAME")
	if mongoDBName == "" {
		mongoDBName = "tg_zulip_bridge"
	}

	cfg := &Config{
		TelegramToken:    os.Getenv("TELEGRAM_TOKEN"),
		MongoURI:         os.Getenv("MONGO_URI"),
		MongoDBName:      mongoDBName,
		Timezone:         "Europe/Zurich",
		UsersMappingFile: "zulip_users.json",
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is required")
	}
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGO_URI is required")
	}

	if tz := strings.TrimSpace(os.Getenv("BRIDGE_TIMEZONE")); tz != "" {
		cfg.Timezone = tz
	}
	if path := strings.TrimSpace(os.Getenv("USERS_MAPPING_FILE")); path != "" {
		cfg.UsersMappingFile = path
	}

	// 解析BRIDGE_CHAT_ID（可选，限定只转发某一个群组）
	chatIDStr := strings.TrimSpace(os.Getenv("BRIDGE_CHAT_ID"))
	if chatIDStr != "" {
		chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse BRIDGE_CHAT_ID: %w", err)
		}
		cfg.BridgeChatID = chatID
	}

	// 解析MESSAGE_RETENTION_DAYS（默认0，永久保留关联记录）
	retentionDaysStr := strings.TrimSpace(os.Getenv("MESSAGE_RETENTION_DAYS"))
	if retentionDaysStr != "" {
		days, err := strconv.Atoi(retentionDaysStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse MESSAGE_RETENTION_DAYS: %w", err)
		}
		if days < 0 {
			return nil, fmt.Errorf("MESSAGE_RETENTION_DAYS must be >= 0, got %d", days)
		}
		cfg.MessageRetentionDays = days
	}

	// 加载 Zulip 配置
	zulipCfg, err := loadZulipConfig()
	if err != nil {
		return nil, err
	}
	cfg.Zulip = zulipCfg

	return cfg, nil
}

func loadZulipConfig() (ZulipConfig, error) {
	var cfg ZulipConfig

	cfg.Site = strings.TrimSpace(os.Getenv("ZULIP_SITE"))
	cfg.Email = strings.TrimSpace(os.Getenv("ZULIP_EMAIL"))
	cfg.APIKey = strings.TrimSpace(os.Getenv("ZULIP_API_KEY"))
	cfg.Stream = strings.TrimSpace(os.Getenv("ZULIP_STREAM"))
	cfg.Topic = strings.TrimSpace(os.Getenv("ZULIP_TOPIC"))

	if cfg.Site == "" || cfg.Email == "" || cfg.APIKey == "" {
		return ZulipConfig{}, fmt.Errorf("ZULIP_SITE, ZULIP_EMAIL and ZULIP_API_KEY are required")
	}
	if cfg.Stream == "" {
		return ZulipConfig{}, fmt.Errorf("ZULIP_STREAM is required")
	}

	cfg.Site = strings.TrimRight(cfg.Site, "/")

	return cfg, nil
}
