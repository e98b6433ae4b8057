package mq

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"secureop-core/pkg/logger"

	"go.uber.org/zap"
)

// RedisProducer 实现 Producer 接口
type RedisProducer struct {
	client *redis.Client
}

// NewRedisProducer 创建 Redis 生产者
func NewRedisProducer(client *redis.Client) *RedisProducer {
	return &RedisProducer{
		client: client,
	}
}

// Publish 发送消息到 Redis Stream
func (p *RedisProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	// 使用 Redis Streams 的 XADD 命令
	// Stream Name = topic (e.g. "secureop_events_transaction")
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{
			"key":     key,
			"payload": payload,
		},
	}).Err()

	if err != nil {
		logger.Error("Redis stream publish failed", zap.Error(err))
		return fmt.Errorf("redis xadd error: %w", err)
	}

	return nil
}

// Close 关闭连接 (客户端由外部管理，这里为空实现)
func (p *RedisProducer) Close() error {
	return nil
}
