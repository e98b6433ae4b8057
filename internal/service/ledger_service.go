package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"secureop-core/internal/event"
	"secureop-core/internal/model"
	"secureop-core/pkg/errno"
	"secureop-core/pkg/logger"
	"secureop-core/pkg/monitor"
	"secureop-core/pkg/signing"

	"go.uber.org/zap"
)

// WildcardSelector 无载荷交易 (NONE/RAW) 的审批/撤销权限挂在这个零选择器上
const WildcardSelector = "0x00000000"

// LedgerService 交易台账，持有 PENDING -> {COMPLETED|CANCELLED|FAILED} 状态机
// 所有迁移都在单个数据库事务内完成，行锁串行化同一条记录上的并发迁移
type LedgerService struct {
	db         *gorm.DB
	catalog    *CatalogService
	dispatcher *Dispatcher
}

func NewLedgerService(db *gorm.DB, catalog *CatalogService, dispatcher *Dispatcher) *LedgerService {
	return &LedgerService{db: db, catalog: catalog, dispatcher: dispatcher}
}

// PaymentInput 可选的支付附件
type PaymentInput struct {
	Recipient   string          `json:"recipient"`
	Native      decimal.Decimal `json:"native"`
	Token       string          `json:"token"`
	TokenAmount decimal.Decimal `json:"token_amount"`
}

// TxRequestInput 新交易请求
type TxRequestInput struct {
	Requester        string
	Target           string
	Value            decimal.Decimal
	GasLimit         uint64
	OperationType    string
	ExecutionType    model.ExecutionType
	Selector         string
	ExecutionOptions []byte
	Payment          *PaymentInput
}

// TxRequest 创建 PENDING 交易记录
//
// 校验顺序:
//  1. 地址合法且非零
//  2. 执行类型合法；STANDARD 必须携带已注册选择器，操作类型取 schema 声明
//  3. 操作类型已在目录注册
//  4. 单槽位操作类型下不允许并存第二条 PENDING
//
// releaseTime = now + 当前时间锁周期；规范摘要在创建时提交，之后不变
func (s *LedgerService) TxRequest(ctx context.Context, in TxRequestInput) (*model.Transaction, error) {
	rec, opType, err := s.prepareRequest(ctx, in)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var settings model.EngineSettings
		if err := tx.First(&settings).Error; err != nil {
			return err
		}
		return s.admitAndCreate(tx, rec, opType, &settings, "txRequest")
	})
	if err != nil {
		return nil, err
	}

	monitor.Business.TxRequestedTotal.WithLabelValues(rec.OperationType).Inc()
	monitor.Business.PendingTransactions.WithLabelValues(rec.OperationType).Inc()
	logger.Info("transaction requested",
		zap.Uint64("tx_id", rec.ID), zap.String("operation_type", rec.OperationType),
		zap.String("requester", rec.Requester))
	return rec, nil
}

// TxDelayedApproval 时间锁到期后的审批迁移
//
// 校验: 记录存在且 PENDING -> 操作类型匹配 -> 已过 releaseTime -> 调用方有权限。
// 执行载荷分发放在保存点里跑: 分发失败只回滚分发本身的写入，
// 记录落 FAILED 终态并提交 (执行失败也是一个确定结果，不把记录留在 PENDING)
func (s *LedgerService) TxDelayedApproval(ctx context.Context, txID uint64, caller string, expectedOperationType string) (*model.Transaction, error) {
	callerAddr, err := signing.ParseAddress(caller)
	if err != nil {
		return nil, err
	}

	var rec *model.Transaction
	var via string

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rec, err = lockPendingTx(tx, txID, expectedOperationType)
		if err != nil {
			return err
		}

		if time.Now().Before(rec.ReleaseTime) {
			return errno.ErrReleaseTimeNotMet.WithMessage(
				"tx %d locked until %s", txID, rec.ReleaseTime.UTC().Format(time.RFC3339))
		}

		if err := checkTransitionPermission(tx, callerAddr.Hex(), rec, model.ActionDelayedApproval); err != nil {
			return err
		}

		via = "delayed"
		return s.settle(ctx, tx, rec, "txDelayedApproval")
	})
	if err != nil {
		return nil, err
	}

	s.recordSettlement(rec, via)
	return rec, nil
}

// TxCancellation 撤销 PENDING 记录，不受时间锁约束
func (s *LedgerService) TxCancellation(ctx context.Context, txID uint64, caller string, expectedOperationType string) (*model.Transaction, error) {
	callerAddr, err := signing.ParseAddress(caller)
	if err != nil {
		return nil, err
	}

	var rec *model.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rec, err = lockPendingTx(tx, txID, expectedOperationType)
		if err != nil {
			return err
		}
		if err := checkTransitionPermission(tx, callerAddr.Hex(), rec, model.ActionCancel); err != nil {
			return err
		}
		return s.cancel(tx, rec, "txCancellation")
	})
	if err != nil {
		return nil, err
	}

	monitor.Business.TxCancelledTotal.WithLabelValues(rec.OperationType).Inc()
	monitor.Business.PendingTransactions.WithLabelValues(rec.OperationType).Dec()
	logger.Info("transaction cancelled", zap.Uint64("tx_id", rec.ID), zap.String("caller", caller))
	return rec, nil
}

// UpdatePaymentForTransaction 改写 PENDING 记录的支付附件
// 支付在 COMPLETED 迁移前都可以调整，终态后不可变
func (s *LedgerService) UpdatePaymentForTransaction(ctx context.Context, txID uint64, caller string, payment PaymentInput) (*model.Transaction, error) {
	callerAddr, err := signing.ParseAddress(caller)
	if err != nil {
		return nil, err
	}
	if err := validatePayment(&payment); err != nil {
		return nil, err
	}

	var rec *model.Transaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rec, err = lockPendingTx(tx, txID, "")
		if err != nil {
			return err
		}
		if err := checkTransitionPermission(tx, callerAddr.Hex(), rec, model.ActionUpdatePayment); err != nil {
			return err
		}

		updates := map[string]interface{}{
			"pay_recipient":    payment.Recipient,
			"pay_native":       payment.Native,
			"pay_token":        payment.Token,
			"pay_token_amount": payment.TokenAmount,
		}
		if err := tx.Model(rec).Updates(updates).Error; err != nil {
			return err
		}
		rec.PayRecipient = payment.Recipient
		rec.PayNative = payment.Native
		rec.PayToken = payment.Token
		rec.PayTokenAmount = payment.TokenAmount

		return model.CreateOutboxMessage(tx, event.TopicTransaction, rec.Message, event.TransactionEvent{
			TxID: rec.ID, Trigger: "updatePaymentForTransaction", Status: string(rec.Status),
			Requester: rec.Requester, Target: rec.Target, OperationType: rec.OperationType,
		})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// RequestStandard 便捷入口: 函数选择器 + 编码参数
func (s *LedgerService) RequestStandard(ctx context.Context, requester, target string, value decimal.Decimal, gasLimit uint64, selector string, options []byte, payment *PaymentInput) (*model.Transaction, error) {
	return s.TxRequest(ctx, TxRequestInput{
		Requester: requester, Target: target, Value: value, GasLimit: gasLimit,
		ExecutionType: model.ExecStandard, Selector: selector, ExecutionOptions: options,
		Payment: payment,
	})
}

// RequestRaw 便捷入口: 不透明载荷，操作类型由调用方声明
func (s *LedgerService) RequestRaw(ctx context.Context, requester, target string, value decimal.Decimal, gasLimit uint64, operationType string, raw []byte, payment *PaymentInput) (*model.Transaction, error) {
	return s.TxRequest(ctx, TxRequestInput{
		Requester: requester, Target: target, Value: value, GasLimit: gasLimit,
		OperationType: operationType, ExecutionType: model.ExecRaw, ExecutionOptions: raw,
		Payment: payment,
	})
}

// RequestSimple 便捷入口: 纯转账，无执行载荷
func (s *LedgerService) RequestSimple(ctx context.Context, requester, target string, value decimal.Decimal, gasLimit uint64, operationType string, payment *PaymentInput) (*model.Transaction, error) {
	return s.TxRequest(ctx, TxRequestInput{
		Requester: requester, Target: target, Value: value, GasLimit: gasLimit,
		OperationType: operationType, ExecutionType: model.ExecNone,
		Payment: payment,
	})
}

// GetTransaction 按 txId 查询
func (s *LedgerService) GetTransaction(ctx context.Context, txID uint64) (*model.Transaction, error) {
	var rec model.Transaction
	if err := s.db.WithContext(ctx).First(&rec, txID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrTxNotFound.WithMessage("tx %d not found", txID)
		}
		return nil, err
	}
	return &rec, nil
}

// ListTransactions 分页查询，status / operationType 可空
func (s *LedgerService) ListTransactions(ctx context.Context, status model.TxStatus, operationType string, page, pageSize int) ([]model.Transaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&model.Transaction{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if operationType != "" {
		query = query.Where("operation_type = ?", operationType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var recs []model.Transaction
	err := query.Order("id DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&recs).Error
	return recs, total, err
}

// ---------- 内部迁移原语 (元交易路径复用) ----------

// prepareRequest 做全部请求前校验并构造未落库的记录
// STANDARD 载荷的操作类型由 schema 决定，调用方声明不一致时直接拒绝
func (s *LedgerService) prepareRequest(ctx context.Context, in TxRequestInput) (*model.Transaction, *model.OperationType, error) {
	requester, err := signing.ParseAddress(in.Requester)
	if err != nil {
		return nil, nil, err
	}
	target, err := signing.ParseAddress(in.Target)
	if err != nil {
		return nil, nil, err
	}

	if !in.ExecutionType.Valid() {
		return nil, nil, errno.ErrExecutionType.WithMessage("unknown execution type %q", in.ExecutionType)
	}

	if in.ExecutionType == model.ExecStandard {
		schema, err := s.catalog.GetSchemaBySelector(ctx, in.Selector)
		if err != nil {
			return nil, nil, err
		}
		if !schema.SupportsAction(model.ActionRequest) {
			return nil, nil, errno.ErrActionNotSupported.WithMessage(
				"function %s does not support REQUEST", schema.FunctionName)
		}
		if in.OperationType == "" {
			in.OperationType = schema.OperationType
		} else if in.OperationType != schema.OperationType {
			return nil, nil, errno.ErrOperationTypeMismatch.WithMessage(
				"selector %s belongs to %s, not %s", in.Selector, schema.OperationType, in.OperationType)
		}
	} else {
		in.Selector = ""
		if in.ExecutionType == model.ExecNone {
			in.ExecutionOptions = nil
		}
	}

	opType, err := s.catalog.GetOperationType(ctx, in.OperationType)
	if err != nil {
		return nil, nil, err
	}

	if in.Payment != nil {
		if err := validatePayment(in.Payment); err != nil {
			return nil, nil, err
		}
	}

	rec := &model.Transaction{
		Requester:        requester.Hex(),
		Target:           target.Hex(),
		Value:            in.Value,
		GasLimit:         in.GasLimit,
		OperationType:    in.OperationType,
		ExecutionType:    in.ExecutionType,
		Selector:         in.Selector,
		ExecutionOptions: in.ExecutionOptions,
		Status:           model.StatusPending,
	}
	if in.Payment != nil {
		rec.PayRecipient = in.Payment.Recipient
		rec.PayNative = in.Payment.Native
		rec.PayToken = in.Payment.Token
		rec.PayTokenAmount = in.Payment.TokenAmount
	}
	return rec, opType, nil
}

// admitAndCreate 在请求事务内做权限准入、单槽位准入、落库并提交规范摘要
func (s *LedgerService) admitAndCreate(tx *gorm.DB, rec *model.Transaction, opType *model.OperationType, settings *model.EngineSettings, trigger string) error {
	// 请求准入本身就是授权动作: 请求者必须持有对应选择器的 REQUEST 授权
	// (NONE/RAW 记录挂在零选择器上)
	allowed, err := hasActionPermissionTx(tx, rec.Requester, permissionSelector(rec), model.ActionRequest)
	if err != nil {
		return err
	}
	if !allowed {
		return errno.ErrNoPermission.WithMessage(
			"wallet %s lacks %s permission on selector %s",
			rec.Requester, model.ActionRequest, permissionSelector(rec))
	}

	rec.ReleaseTime = time.Now().Add(time.Duration(settings.TimeLockPeriod) * time.Second)

	// 单槽位准入: 锁操作类型行，防止并发请求双双通过计数检查
	if opType.SingleSlot {
		var locked model.OperationType
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", opType.Name).First(&locked).Error; err != nil {
			return err
		}
		var open int64
		if err := tx.Model(&model.Transaction{}).
			Where("operation_type = ? AND status = ?", opType.Name, model.StatusPending).
			Count(&open).Error; err != nil {
			return err
		}
		if open > 0 {
			return errno.ErrRequestAlreadyOpen.WithMessage(
				"operation type %s already has an open request", opType.Name)
		}
	}

	if err := tx.Create(rec).Error; err != nil {
		return err
	}

	// txId 由自增主键分配，摘要必须在拿到 txId 之后计算
	fields, err := recordFields(rec)
	if err != nil {
		return err
	}
	digest := signing.Digest(signing.MetaParams{ChainID: settings.ChainID}, fields)
	rec.Message = digest.Hex()
	if err := tx.Model(rec).Update("message", rec.Message).Error; err != nil {
		return err
	}

	return model.CreateOutboxMessage(tx, event.TopicTransaction, rec.Message, event.TransactionEvent{
		TxID: rec.ID, Trigger: trigger, Status: string(rec.Status),
		Requester: rec.Requester, Target: rec.Target, OperationType: rec.OperationType,
	})
}

// settle 在审批事务内执行载荷并落终态
func (s *LedgerService) settle(ctx context.Context, tx *gorm.DB, rec *model.Transaction, trigger string) error {
	var result []byte

	// 保存点: 分发失败回滚其内部写入，不污染已决定提交的审批事务
	dispatchErr := tx.Transaction(func(inner *gorm.DB) error {
		var err error
		result, err = s.dispatcher.Dispatch(ctx, inner, rec)
		return err
	})

	if dispatchErr != nil {
		rec.Status = model.StatusFailed
		rec.Result = []byte(dispatchErr.Error())
		logger.Warn("dispatch failed, transaction marked FAILED",
			zap.Uint64("tx_id", rec.ID), zap.Error(dispatchErr))
	} else {
		rec.Status = model.StatusCompleted
		rec.Result = result
	}

	if err := tx.Model(rec).Updates(map[string]interface{}{
		"status": rec.Status,
		"result": rec.Result,
	}).Error; err != nil {
		return err
	}

	// 支付只在 COMPLETED 时释放
	if rec.Status == model.StatusCompleted && rec.HasPayment() {
		if err := model.CreateOutboxMessage(tx, event.TopicPayment, rec.Message, event.PaymentReleasedEvent{
			TxID: rec.ID, Recipient: rec.PayRecipient,
			NativeAmount: rec.PayNative.String(),
			Token:        rec.PayToken, TokenAmount: rec.PayTokenAmount.String(),
		}); err != nil {
			return err
		}
	}

	return model.CreateOutboxMessage(tx, event.TopicTransaction, rec.Message, event.TransactionEvent{
		TxID: rec.ID, Trigger: trigger, Status: string(rec.Status),
		Requester: rec.Requester, Target: rec.Target, OperationType: rec.OperationType,
	})
}

func (s *LedgerService) cancel(tx *gorm.DB, rec *model.Transaction, trigger string) error {
	rec.Status = model.StatusCancelled
	if err := tx.Model(rec).Update("status", rec.Status).Error; err != nil {
		return err
	}
	return model.CreateOutboxMessage(tx, event.TopicTransaction, rec.Message, event.TransactionEvent{
		TxID: rec.ID, Trigger: trigger, Status: string(rec.Status),
		Requester: rec.Requester, Target: rec.Target, OperationType: rec.OperationType,
	})
}

// recordSettlement 审批提交后的指标与日志
func (s *LedgerService) recordSettlement(rec *model.Transaction, via string) {
	monitor.Business.PendingTransactions.WithLabelValues(rec.OperationType).Dec()
	if rec.Status == model.StatusCompleted {
		monitor.Business.TxApprovedTotal.WithLabelValues(rec.OperationType, via).Inc()
		if rec.HasPayment() {
			if !rec.PayNative.IsZero() {
				monitor.Business.PaymentsReleasedTotal.WithLabelValues("native").Inc()
			}
			if rec.PayToken != "" && !rec.PayTokenAmount.IsZero() {
				monitor.Business.PaymentsReleasedTotal.WithLabelValues("token").Inc()
			}
		}
	} else {
		monitor.Business.TxFailedTotal.WithLabelValues(rec.OperationType).Inc()
	}
	logger.Info("transaction settled",
		zap.Uint64("tx_id", rec.ID), zap.String("status", string(rec.Status)), zap.String("via", via))
}

// lockPendingTx 行锁读取记录并校验 PENDING 与操作类型
func lockPendingTx(tx *gorm.DB, txID uint64, expectedOperationType string) (*model.Transaction, error) {
	var rec model.Transaction
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&rec, txID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrTxNotFound.WithMessage("tx %d not found", txID)
		}
		return nil, err
	}
	if rec.Status != model.StatusPending {
		return nil, errno.ErrTxNotPending.WithMessage("tx %d is %s", txID, rec.Status)
	}
	if expectedOperationType != "" && rec.OperationType != expectedOperationType {
		return nil, errno.ErrOperationTypeMismatch.WithMessage(
			"tx %d is %s, caller expected %s", txID, rec.OperationType, expectedOperationType)
	}
	return &rec, nil
}

// checkTransitionPermission 迁移前校验两件事:
//  1. 记录的 schema 声明支持该动作 (NONE/RAW 无 schema，不受限)
//  2. 调用方持有 (selector, action) 授权；请求者仅在 schema 开放
//     自批 (self_approval) 时才可以免授权操作自己的记录
//
// 权限在迁移时刻直查数据库，不使用请求时刻的任何缓存结论
func checkTransitionPermission(tx *gorm.DB, caller string, rec *model.Transaction, action model.TxAction) error {
	schema, err := schemaForRecord(tx, rec)
	if err != nil {
		return err
	}
	if schema != nil && !schema.SupportsAction(action) {
		return errno.ErrActionNotSupported.WithMessage(
			"function %s does not support %s", schema.FunctionName, action)
	}
	if caller == rec.Requester && (schema == nil || schema.SelfApproval) {
		return nil
	}
	ok, err := hasActionPermissionTx(tx, caller, permissionSelector(rec), action)
	if err != nil {
		return err
	}
	if !ok {
		return errno.ErrNoPermission.WithMessage(
			"wallet %s lacks %s permission on tx %d", caller, action, rec.ID)
	}
	return nil
}

// schemaForRecord 取 STANDARD 记录对应的函数定义，NONE/RAW 返回 nil
func schemaForRecord(tx *gorm.DB, rec *model.Transaction) (*model.FunctionSchema, error) {
	if rec.ExecutionType != model.ExecStandard {
		return nil, nil
	}
	var schema model.FunctionSchema
	if err := tx.Where("selector = ?", rec.Selector).First(&schema).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrSelectorUnknown.WithMessage("selector %s not registered", rec.Selector)
		}
		return nil, err
	}
	return &schema, nil
}

// permissionSelector STANDARD 用记录自身的选择器，
// NONE/RAW 无选择器，权限挂在零选择器上
func permissionSelector(rec *model.Transaction) string {
	if rec.ExecutionType == model.ExecStandard {
		return rec.Selector
	}
	return WildcardSelector
}

// recordFields 把落库记录转成摘要字段快照
func recordFields(rec *model.Transaction) (signing.TxFields, error) {
	requester, err := signing.ParseAddress(rec.Requester)
	if err != nil {
		return signing.TxFields{}, err
	}
	target, err := signing.ParseAddress(rec.Target)
	if err != nil {
		return signing.TxFields{}, err
	}
	return signing.TxFields{
		TxID:             rec.ID,
		Requester:        requester,
		Target:           target,
		Value:            rec.Value.BigInt(),
		GasLimit:         rec.GasLimit,
		OperationType:    rec.OperationType,
		ExecutionType:    rec.ExecutionType.Code(),
		ExecutionOptions: rec.ExecutionOptions,
	}, nil
}

func validatePayment(p *PaymentInput) error {
	if _, err := signing.ParseAddress(p.Recipient); err != nil {
		return err
	}
	if p.Native.IsNegative() || p.TokenAmount.IsNegative() {
		return errno.ErrDefinitionShape.WithMessage("payment amounts must be non-negative")
	}
	if p.Token != "" {
		if _, err := signing.ParseAddress(p.Token); err != nil {
			return err
		}
	}
	if !p.TokenAmount.IsZero() && p.Token == "" {
		return errno.ErrDefinitionShape.WithMessage("token amount set without token address")
	}
	return nil
}
