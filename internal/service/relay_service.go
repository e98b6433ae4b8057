package service

import (
	"context"
	"time"

	"gorm.io/gorm"

	"secureop-core/internal/model"
	"secureop-core/internal/service/mq"
	"secureop-core/pkg/crypto_util"
	"secureop-core/pkg/logger"

	"go.uber.org/zap"
)

// RelayService 负责将本地消息表的消息搬运到 MQ
// 只有发送成功才标记 SENT => at-least-once，消费端需做好幂等
type RelayService struct {
	db       *gorm.DB
	producer mq.Producer
	interval time.Duration
}

func NewRelayService(db *gorm.DB, producer mq.Producer) *RelayService {
	return &RelayService{
		db:       db,
		producer: producer,
		interval: 500 * time.Millisecond, // 500ms 轮询一次
	}
}

func (s *RelayService) Start(ctx context.Context) {
	logger.Info("relay service started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("relay service stopped")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *RelayService) processPendingMessages(ctx context.Context) {
	// 每次取 50 条，避免内存爆炸
	var messages []model.OutboxMessage
	if err := s.db.Where("status = ?", "PENDING").Order("id").Limit(50).Find(&messages).Error; err != nil {
		logger.Error("relay: query outbox failed", zap.Error(err))
		return
	}

	if len(messages) == 0 {
		return
	}

	for _, msg := range messages {
		// 分区键保证同一记录的事件有序；写入方没给 Key 时用载荷哈希兜底
		key := msg.Key
		if key == "" {
			key = crypto_util.CalculateBlake3(msg.Payload)
		}

		if err := s.producer.Publish(ctx, msg.Topic, key, msg.Payload); err != nil {
			logger.Error("relay: publish failed", zap.Uint64("msg_id", msg.ID), zap.Error(err))
			// 不标记 SENT，下一轮重试
			continue
		}

		if err := s.db.Model(&msg).Update("status", "SENT").Error; err != nil {
			logger.Error("relay: mark sent failed", zap.Uint64("msg_id", msg.ID), zap.Error(err))
		}
	}
}
