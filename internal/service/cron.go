package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"secureop-core/internal/model"
	"secureop-core/pkg/logger"
	"secureop-core/pkg/monitor"
	"secureop-core/pkg/utils/lock"

	"go.uber.org/zap"
)

// CronService 周期性维护任务: 刷新业务仪表盘指标
// 多实例部署时用 Redis 分布式锁保证同一时刻只有一个节点执行
type CronService struct {
	cron  *cron.Cron
	db    *gorm.DB
	redis *redis.Client
}

func NewCronService(db *gorm.DB, rdb *redis.Client) *CronService {
	return &CronService{
		cron:  cron.New(),
		db:    db,
		redis: rdb,
	}
}

func (s *CronService) Start() {
	_, _ = s.cron.AddFunc("@every 1m", s.RefreshGauges)

	s.cron.Start()
	logger.Info("cron service started")
}

func (s *CronService) Stop() {
	s.cron.Stop()
	logger.Info("cron service stopped")
}

// RefreshGauges 从数据库重建 PENDING 计数和 Outbox 积压量
// 服务重启后计数型 Gauge 会归零，周期性纠偏保证长期准确
func (s *CronService) RefreshGauges() {
	ctx := context.Background()
	lockKey := "cron:lock:refresh_gauges"

	locker := lock.NewRedisLock(s.redis)
	locked, err := locker.Acquire(ctx, lockKey, 10*time.Second)
	if err != nil || !locked {
		logger.Debug("RefreshGauges: lock held by another instance, skipping")
		return
	}
	defer locker.Release(ctx, lockKey)

	type pendingRow struct {
		OperationType string
		Count         int64
	}
	var rows []pendingRow
	if err := s.db.WithContext(ctx).Model(&model.Transaction{}).
		Select("operation_type, count(*) as count").
		Where("status = ?", model.StatusPending).
		Group("operation_type").Scan(&rows).Error; err != nil {
		logger.Error("RefreshGauges: pending count failed", zap.Error(err))
		return
	}
	monitor.Business.PendingTransactions.Reset()
	for _, r := range rows {
		monitor.Business.PendingTransactions.WithLabelValues(r.OperationType).Set(float64(r.Count))
	}

	var backlog int64
	if err := s.db.WithContext(ctx).Model(&model.OutboxMessage{}).
		Where("status = ?", "PENDING").Count(&backlog).Error; err != nil {
		logger.Error("RefreshGauges: outbox count failed", zap.Error(err))
		return
	}
	monitor.Business.OutboxBacklog.Set(float64(backlog))
}
