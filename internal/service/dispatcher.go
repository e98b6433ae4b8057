package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"secureop-core/internal/model"
	"secureop-core/pkg/config"
	"secureop-core/pkg/crypto_util"
	"secureop-core/pkg/errno"
	"secureop-core/pkg/logger"
	"secureop-core/pkg/monitor"
	"secureop-core/pkg/signing"

	"go.uber.org/zap"
)

// HandlerFunc 审批通过后执行的业务回调
// dbtx 是审批所在的数据库事务；回调返回 error 时交易记录落 FAILED 终态，
// 但审批这次迁移本身仍然提交 (执行失败也是一个确定的结果)
type HandlerFunc func(ctx context.Context, dbtx *gorm.DB, rec *model.Transaction) ([]byte, error)

// Dispatcher 按函数选择器分发 STANDARD 执行载荷
// NONE 无载荷直接完成；RAW 原样记录不在引擎内解释
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]HandlerFunc)}
}

// Register 注册选择器回调，重复注册会失败
func (d *Dispatcher) Register(selector string, fn HandlerFunc) error {
	if _, err := signing.ParseSelector(selector); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[selector]; ok {
		return errno.ErrSelectorExists.WithMessage("handler for %s already registered", selector)
	}
	d.handlers[selector] = fn
	return nil
}

// Dispatch 执行记录的载荷，返回执行结果字节
func (d *Dispatcher) Dispatch(ctx context.Context, dbtx *gorm.DB, rec *model.Transaction) ([]byte, error) {
	start := time.Now()
	defer func() {
		monitor.Business.DispatchDuration.WithLabelValues(string(rec.ExecutionType)).
			Observe(time.Since(start).Seconds())
	}()

	switch rec.ExecutionType {
	case model.ExecNone:
		// 纯转账，无业务载荷
		return nil, nil
	case model.ExecRaw:
		// 不透明字节交由外部系统执行，引擎只记录载荷哈希作为结果
		sum := crypto_util.Keccak256Bytes(rec.ExecutionOptions)
		return sum, nil
	case model.ExecStandard:
		d.mu.RLock()
		fn, ok := d.handlers[rec.Selector]
		d.mu.RUnlock()
		if !ok {
			return nil, errno.ErrSelectorUnknown.WithMessage("no handler for selector %s", rec.Selector)
		}
		return fn(ctx, dbtx, rec)
	default:
		return nil, errno.ErrExecutionType.WithMessage("unknown execution type %q", rec.ExecutionType)
	}
}

// ---------- 内置处理器 ----------

// 引擎自管理函数，启动时经 RegisterBuiltins 注册
var (
	SelectorSetTimeLockPeriod = crypto_util.SelectorFromSignature("setTimeLockPeriod(uint256)")
	SelectorSetEventForwarder = crypto_util.SelectorFromSignature("setEventForwarder(address)")
)

type setTimeLockPayload struct {
	TimeLockPeriod int64 `json:"time_lock_period"` // 秒
}

type setForwarderPayload struct {
	Address string `json:"address"`
}

// RegisterBuiltins 注册引擎自身配置变更处理器
// 这两个函数也必须走完整的 请求 -> 时间锁 -> 审批 流程才能生效
func (d *Dispatcher) RegisterBuiltins() error {
	if err := d.Register(SelectorSetTimeLockPeriod, handleSetTimeLockPeriod); err != nil {
		return err
	}
	return d.Register(SelectorSetEventForwarder, handleSetEventForwarder)
}

func handleSetTimeLockPeriod(ctx context.Context, dbtx *gorm.DB, rec *model.Transaction) ([]byte, error) {
	var payload setTimeLockPayload
	if err := json.Unmarshal(rec.ExecutionOptions, &payload); err != nil {
		return nil, errno.ErrDefinitionShape.WithMessage("bad setTimeLockPeriod payload: %v", err)
	}

	min, max := config.Global.Engine.MinTimeLock, config.Global.Engine.MaxTimeLock
	if payload.TimeLockPeriod < min || payload.TimeLockPeriod > max {
		return nil, errno.ErrTimeLockOutOfBounds.WithMessage(
			"time lock %ds outside [%d, %d]", payload.TimeLockPeriod, min, max)
	}

	settings, err := lockSettings(dbtx)
	if err != nil {
		return nil, err
	}
	old := settings.TimeLockPeriod
	if err := dbtx.Model(settings).Update("time_lock_period", payload.TimeLockPeriod).Error; err != nil {
		return nil, err
	}

	logger.Info("time lock period updated",
		zap.Int64("old", old), zap.Int64("new", payload.TimeLockPeriod), zap.Uint64("tx_id", rec.ID))
	return []byte(fmt.Sprintf("%d", payload.TimeLockPeriod)), nil
}

func handleSetEventForwarder(ctx context.Context, dbtx *gorm.DB, rec *model.Transaction) ([]byte, error) {
	var payload setForwarderPayload
	if err := json.Unmarshal(rec.ExecutionOptions, &payload); err != nil {
		return nil, errno.ErrDefinitionShape.WithMessage("bad setEventForwarder payload: %v", err)
	}
	addr, err := signing.ParseAddress(payload.Address)
	if err != nil {
		return nil, err
	}

	settings, err := lockSettings(dbtx)
	if err != nil {
		return nil, err
	}
	if settings.EventForwarder == addr.Hex() {
		return nil, errno.ErrUnchangedAddress
	}
	if err := dbtx.Model(settings).Update("event_forwarder", addr.Hex()).Error; err != nil {
		return nil, err
	}

	logger.Info("event forwarder updated",
		zap.String("address", addr.Hex()), zap.Uint64("tx_id", rec.ID))
	return addr.Bytes(), nil
}

// lockSettings 行锁读取单行配置
func lockSettings(dbtx *gorm.DB) (*model.EngineSettings, error) {
	var settings model.EngineSettings
	if err := dbtx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}
