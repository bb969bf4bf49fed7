package mongo

import (
	"context"
	"fmt"
	"time"

	"tg_zulip_bridge/internal/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const connectTimeout = 10 * time.Second

// Client 持有 MongoDB 连接与桥接器使用的数据库句柄
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect 建立 MongoDB 连接并验证可达性
// 连接失败视为启动失败，桥接器没有数据库就无法保证编辑语义
func Connect(ctx context.Context, uri, dbName string) (*Client, error) {
	if uri == "" {
		return nil, fmt.Errorf("MongoDB URI cannot be empty")
	}
	if dbName == "" {
		return nil, fmt.Errorf("database name cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client: client,
		db:     client.Database(dbName),
	}, nil
}

// InitFromConfig 从应用配置建立连接
func InitFromConfig(cfg *config.Config) (*Client, error) {
	return Connect(context.Background(), cfg.MongoURI, cfg.MongoDBName)
}

// Database 返回桥接器的数据库句柄
func (c *Client) Database() *mongo.Database {
	if c == nil {
		return nil
	}
	return c.db
}

// Ping 验证连接仍然可用
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("MongoDB client is not initialized")
	}
	return c.client.Ping(ctx, readpref.Primary())
}

// Close 断开 MongoDB 连接
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Disconnect(ctx)
}
