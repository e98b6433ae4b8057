package mq

import "context"

// Message 通用消息
type Message struct {
	ID      string
	Topic   string
	Key     string
	Payload []byte
}

// Producer 消息生产者抽象，Kafka / Redis Streams 二选一
type Producer interface {
	// Publish 发送消息
	Publish(ctx context.Context, topic string, key string, payload []byte) error
	// Close 关闭连接
	Close() error
}
