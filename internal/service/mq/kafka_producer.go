package mq

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"secureop-core/pkg/logger"

	"go.uber.org/zap"
)

// KafkaProducer 实现 Producer 接口
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer 创建 Kafka 生产者
// brokers: Kafka 节点地址列表 (e.g. ["localhost:9092"])
// topic: 默认主题
func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	// 关键配置:
	// 1. Balancer: 按 Key 哈希，保证同一交易的事件有序
	// 2. RequiredAcks: 等待所有 ISR 副本确认
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true, // 开发环境允许自动创建 Topic
		RequiredAcks:           kafka.RequireAll,
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
	}

	return &KafkaProducer{
		writer: writer,
	}
}

// Publish 发送消息到 Kafka
func (p *KafkaProducer) Publish(ctx context.Context, topic string, key string, payload []byte) error {
	msg := kafka.Message{
		// Writer 已指定 Topic，消息上不再重复指定
		Value: payload,
		Key:   []byte(key), // 使用传入的 Key 保证分区有序
	}

	// 底层异步批量，Writer 层面阻塞等待 Ack
	err := p.writer.WriteMessages(ctx, msg)
	if err != nil {
		logger.Error("Kafka publish failed", zap.Error(err))
		return fmt.Errorf("kafka write error: %w", err)
	}

	return nil
}

// Close 关闭连接
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
