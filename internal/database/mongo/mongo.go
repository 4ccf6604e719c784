package mongo

import (
	"context"
	"fmt"
	"time"

	"graphetl/internal/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Connect 建立到一个 MongoDB 源数据库的连接并返回客户端实例。
// 每个配置的 MongoDB 源持有自己的客户端。
func Connect(ctx context.Context, cfg *config.MongoConfig) (*mongo.Client, error) {
	// 应用连接URI。
	clientOptions := options.Client().ApplyURI(cfg.Address)
	// 如果配置了用户名和密码，则设置认证信息。
	if cfg.Username != "" && cfg.Password != "" {
		clientOptions.SetAuth(options.Credential{
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}

	// 创建一个带有超时功能的上下文。
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel() // 确保在函数退出时取消上下文。

	// 连接到 MongoDB。
	c, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("无法连接到 MongoDB '%s': %w", cfg.Address, err)
	}

	// 检查连接是否成功（Ping 数据库）。
	if err = c.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("无法 Ping MongoDB: %w", err)
	}

	return c, nil
}

// Close 安全地断开一个 MongoDB 客户端连接。
func Close(ctx context.Context, client *mongo.Client) error {
	if client != nil {
		return client.Disconnect(ctx)
	}
	return nil
}

// HealthCheck 检查 MongoDB 连接的健康状况。
func HealthCheck(ctx context.Context, client *mongo.Client) error {
	if client == nil {
		return fmt.Errorf("MongoDB 客户端未初始化")
	}
	return client.Ping(ctx, nil)
}
