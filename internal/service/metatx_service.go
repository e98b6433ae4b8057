package service

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
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

// 元交易入口函数的规范签名，签名域中的 handlerSelector 必须与动作一一对应
var metaHandlerSelectors = map[model.TxAction]string{
	model.ActionMetaApprove:           crypto_util.SelectorFromSignature("executeMetaApproval(uint256)"),
	model.ActionMetaCancel:            crypto_util.SelectorFromSignature("executeMetaCancellation(uint256)"),
	model.ActionMetaRequestAndApprove: crypto_util.SelectorFromSignature("executeMetaRequestAndApprove(bytes)"),
}

// 链下签名授权范围用 SIGN_ 变体动作表达，与执行动作分离
var signScopeActions = map[model.TxAction]model.TxAction{
	model.ActionMetaApprove:           model.ActionSignMetaApprove,
	model.ActionMetaCancel:            model.ActionSignMetaCancel,
	model.ActionMetaRequestAndApprove: model.ActionSignMetaRequestAndApprove,
}

// MetaTxParams 签名者授权的元交易参数，全部参与摘要
type MetaTxParams struct {
	ChainID         uint64          `json:"chain_id"`
	Nonce           uint64          `json:"nonce"`
	HandlerContract string          `json:"handler_contract"`
	HandlerSelector string          `json:"handler_selector"`
	Action          model.TxAction  `json:"action"`
	Deadline        int64           `json:"deadline"` // Unix 秒
	MaxGasPrice     decimal.Decimal `json:"max_gas_price"`
	Signer          string          `json:"signer"`
	Signature       []byte          `json:"signature,omitempty"` // 65 字节 [R||S||V]
}

// MetaTxService 元交易处理器
// 七步校验流水线全部通过后才执行迁移；通过即消耗 nonce (分发失败也消耗，
// 因为签名已经用掉，必须防重放)。元交易审批不受时间锁约束
type MetaTxService struct {
	db     *gorm.DB
	ledger *LedgerService
}

func NewMetaTxService(db *gorm.DB, ledger *LedgerService) *MetaTxService {
	return &MetaTxService{db: db, ledger: ledger}
}

// GenerateUnsignedForExisting 为已存在的记录生成待签摘要
func (s *MetaTxService) GenerateUnsignedForExisting(ctx context.Context, txID uint64, p MetaTxParams) (string, error) {
	rec, err := s.ledger.GetTransaction(ctx, txID)
	if err != nil {
		return "", err
	}
	fields, err := recordFields(rec)
	if err != nil {
		return "", err
	}
	meta, err := buildMeta(p)
	if err != nil {
		return "", err
	}
	return signing.Digest(meta, fields).Hex(), nil
}

// GenerateUnsignedForNew 为 requestAndApprove 生成待签摘要，txId 固定取 0
func (s *MetaTxService) GenerateUnsignedForNew(ctx context.Context, in TxRequestInput, p MetaTxParams) (string, error) {
	rec, _, err := s.ledger.prepareRequest(ctx, in)
	if err != nil {
		return "", err
	}
	fields, err := recordFields(rec) // rec.ID 尚未分配，为 0
	if err != nil {
		return "", err
	}
	meta, err := buildMeta(p)
	if err != nil {
		return "", err
	}
	return signing.Digest(meta, fields).Hex(), nil
}

// ApproveWithMetaTx 凭签名审批已存在的 PENDING 记录
func (s *MetaTxService) ApproveWithMetaTx(ctx context.Context, txID uint64, expectedOperationType string, p MetaTxParams) (*model.Transaction, error) {
	if p.Action != model.ActionMetaApprove {
		return nil, errno.ErrActionNotSupported.WithMessage(
			"approval endpoint requires %s, got %s", model.ActionMetaApprove, p.Action)
	}

	var rec *model.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var settings model.EngineSettings
		if err := tx.First(&settings).Error; err != nil {
			return err
		}

		var err error
		rec, err = lockPendingTx(tx, txID, expectedOperationType)
		if err != nil {
			return err
		}
		selfApproval, err := checkSchemaAction(tx, rec, p.Action)
		if err != nil {
			return err
		}
		fields, err := recordFields(rec)
		if err != nil {
			return err
		}

		nonceRow, err := s.verify(tx, &settings, p, fields, permissionSelector(rec), rec.Requester, selfApproval)
		if err != nil {
			return err
		}

		if err := s.ledger.settle(ctx, tx, rec, "executeMetaApproval"); err != nil {
			return err
		}
		return bumpNonce(tx, nonceRow)
	})
	if err != nil {
		return nil, err
	}

	s.ledger.recordSettlement(rec, "metatx")
	return rec, nil
}

// CancelWithMetaTx 凭签名撤销已存在的 PENDING 记录
func (s *MetaTxService) CancelWithMetaTx(ctx context.Context, txID uint64, expectedOperationType string, p MetaTxParams) (*model.Transaction, error) {
	if p.Action != model.ActionMetaCancel {
		return nil, errno.ErrActionNotSupported.WithMessage(
			"cancellation endpoint requires %s, got %s", model.ActionMetaCancel, p.Action)
	}

	var rec *model.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var settings model.EngineSettings
		if err := tx.First(&settings).Error; err != nil {
			return err
		}

		var err error
		rec, err = lockPendingTx(tx, txID, expectedOperationType)
		if err != nil {
			return err
		}
		selfApproval, err := checkSchemaAction(tx, rec, p.Action)
		if err != nil {
			return err
		}
		fields, err := recordFields(rec)
		if err != nil {
			return err
		}

		nonceRow, err := s.verify(tx, &settings, p, fields, permissionSelector(rec), rec.Requester, selfApproval)
		if err != nil {
			return err
		}

		if err := s.ledger.cancel(tx, rec, "executeMetaCancellation"); err != nil {
			return err
		}
		return bumpNonce(tx, nonceRow)
	})
	if err != nil {
		return nil, err
	}

	monitor.Business.TxCancelledTotal.WithLabelValues(rec.OperationType).Inc()
	monitor.Business.PendingTransactions.WithLabelValues(rec.OperationType).Dec()
	logger.Info("transaction cancelled via meta-tx",
		zap.Uint64("tx_id", rec.ID), zap.String("signer", p.Signer))
	return rec, nil
}

// RequestAndApprove 单次调用里创建记录并立即审批，签名摘要中 txId 取 0
// 创建与审批在同一事务: 任一步失败则整体不存在
func (s *MetaTxService) RequestAndApprove(ctx context.Context, in TxRequestInput, p MetaTxParams) (*model.Transaction, error) {
	if p.Action != model.ActionMetaRequestAndApprove {
		return nil, errno.ErrActionNotSupported.WithMessage(
			"request-and-approve endpoint requires %s, got %s", model.ActionMetaRequestAndApprove, p.Action)
	}

	rec, opType, err := s.ledger.prepareRequest(ctx, in)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var settings model.EngineSettings
		if err := tx.First(&settings).Error; err != nil {
			return err
		}

		selfApproval, err := checkSchemaAction(tx, rec, p.Action)
		if err != nil {
			return err
		}

		// 校验用落库前的字段快照，txId 为 0
		fields, err := recordFields(rec)
		if err != nil {
			return err
		}
		nonceRow, err := s.verify(tx, &settings, p, fields, permissionSelector(rec), rec.Requester, selfApproval)
		if err != nil {
			return err
		}

		if err := s.ledger.admitAndCreate(tx, rec, opType, &settings, "executeMetaRequestAndApprove"); err != nil {
			return err
		}
		if err := s.ledger.settle(ctx, tx, rec, "executeMetaRequestAndApprove"); err != nil {
			return err
		}
		return bumpNonce(tx, nonceRow)
	})
	if err != nil {
		return nil, err
	}

	monitor.Business.TxRequestedTotal.WithLabelValues(rec.OperationType).Inc()
	monitor.Business.PendingTransactions.WithLabelValues(rec.OperationType).Inc()
	s.ledger.recordSettlement(rec, "metatx")
	return rec, nil
}

// GetNonce 查询签名者当前 nonce (下一次签名应使用的值)
func (s *MetaTxService) GetNonce(ctx context.Context, address string) (uint64, error) {
	addr, err := signing.ParseAddress(address)
	if err != nil {
		return 0, err
	}
	var n model.SignerNonce
	if err := s.db.WithContext(ctx).Where("address = ?", addr.Hex()).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return n.Nonce, nil
}

// verify 七步校验流水线
//
//  1. 链 ID 与引擎配置一致
//  2. deadline 未过期
//  3. 处理合约与入口选择器和动作绑定一致
//  4. nonce 与签名者计数器严格相等 (行锁下判定)
//  5. 当前 gas price 不超过签名者设定的上限
//  6. 签名者有链下签名授权 (或本人即请求者)
//  7. 摘要恢复出的地址与声称的签名者一致
//
// 任何一步失败即整体拒绝，不消耗 nonce
func (s *MetaTxService) verify(tx *gorm.DB, settings *model.EngineSettings, p MetaTxParams, fields signing.TxFields, selector string, requester string, selfApproval bool) (*model.SignerNonce, error) {
	signerAddr, err := signing.ParseAddress(p.Signer)
	if err != nil {
		return nil, err
	}

	// 1. 链 ID
	if p.ChainID != settings.ChainID {
		return nil, rejectMeta("chain_id", errno.ErrChainIDMismatch.WithMessage(
			"signed for chain %d, engine runs chain %d", p.ChainID, settings.ChainID))
	}

	// 2. deadline
	if time.Now().Unix() > p.Deadline {
		return nil, rejectMeta("deadline", errno.ErrDeadlineExpired.WithMessage(
			"deadline %d already passed", p.Deadline))
	}

	// 3. 处理合约绑定
	if !common.IsHexAddress(p.HandlerContract) ||
		common.HexToAddress(p.HandlerContract) != common.HexToAddress(settings.HandlerContract) {
		return nil, rejectMeta("handler", errno.ErrHandlerMismatch.WithMessage(
			"signature bound to handler %s, engine handler is %s", p.HandlerContract, settings.HandlerContract))
	}
	expectedSelector, ok := metaHandlerSelectors[p.Action]
	if !ok {
		return nil, rejectMeta("handler", errno.ErrActionNotSupported.WithMessage(
			"action %s cannot be executed via meta-tx", p.Action))
	}
	if p.HandlerSelector != expectedSelector {
		return nil, rejectMeta("handler", errno.ErrHandlerMismatch.WithMessage(
			"action %s requires handler selector %s, signed %s", p.Action, expectedSelector, p.HandlerSelector))
	}

	// 4. nonce 严格相等
	nonceRow, err := lockSignerNonce(tx, signerAddr.Hex())
	if err != nil {
		return nil, err
	}
	if p.Nonce != nonceRow.Nonce {
		return nil, rejectMeta("nonce", errno.ErrNonceMismatch.WithMessage(
			"expected nonce %d, signed %d", nonceRow.Nonce, p.Nonce))
	}

	// 5. gas price 上限 (0 表示签名者不设上限)
	if !p.MaxGasPrice.IsZero() {
		current, err := decimal.NewFromString(config.Global.Engine.GasPrice)
		if err != nil {
			return nil, err
		}
		if current.GreaterThan(p.MaxGasPrice) {
			return nil, rejectMeta("gas_price", errno.ErrGasPriceExceeded.WithMessage(
				"current gas price %s exceeds signed cap %s", current, p.MaxGasPrice))
		}
	}

	// 6. 链下签名授权；请求者本人仅在 schema 开放自批时免授权
	if signerAddr.Hex() != requester || !selfApproval {
		allowed, err := hasActionPermissionTx(tx, signerAddr.Hex(), selector, signScopeActions[p.Action])
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, rejectMeta("permission", errno.ErrNoPermission.WithMessage(
				"signer %s lacks %s scope", signerAddr.Hex(), signScopeActions[p.Action]))
		}
	}

	// 7. 签名恢复
	meta, err := buildMeta(p)
	if err != nil {
		return nil, err
	}
	digest := signing.Digest(meta, fields)
	recovered, err := signing.RecoverSigner(digest, p.Signature)
	if err != nil {
		return nil, rejectMeta("signer", err)
	}
	if recovered != signerAddr {
		return nil, rejectMeta("signer", errno.ErrSignerMismatch.WithMessage(
			"recovered %s, claimed %s", recovered.Hex(), signerAddr.Hex()))
	}

	return nonceRow, nil
}

// checkSchemaAction STANDARD 记录的 schema 必须声明支持本次元交易动作，
// 返回 schema 是否开放请求者自批 (NONE/RAW 无 schema，视为开放)
func checkSchemaAction(tx *gorm.DB, rec *model.Transaction, action model.TxAction) (bool, error) {
	schema, err := schemaForRecord(tx, rec)
	if err != nil {
		return false, err
	}
	if schema == nil {
		return true, nil
	}
	if !schema.SupportsAction(action) {
		return false, errno.ErrActionNotSupported.WithMessage(
			"function %s does not support %s", schema.FunctionName, action)
	}
	return schema.SelfApproval, nil
}

// buildMeta 把 API 层参数转成摘要域参数
func buildMeta(p MetaTxParams) (signing.MetaParams, error) {
	sel, err := signing.ParseSelector(p.HandlerSelector)
	if err != nil {
		return signing.MetaParams{}, err
	}
	if !p.Action.Valid() {
		return signing.MetaParams{}, errno.ErrActionNotSupported.WithMessage("unknown action %q", p.Action)
	}
	signer, err := signing.ParseAddress(p.Signer)
	if err != nil {
		return signing.MetaParams{}, err
	}
	// handlerContract 参与摘要即可，绑定校验在流水线第 3 步
	return signing.MetaParams{
		ChainID:         p.ChainID,
		Nonce:           p.Nonce,
		HandlerContract: common.HexToAddress(p.HandlerContract),
		HandlerSelector: sel,
		Action:          p.Action.Code(),
		Deadline:        p.Deadline,
		MaxGasPrice:     p.MaxGasPrice.BigInt(),
		Signer:          signer,
	}, nil
}

// lockSignerNonce 行锁读取 nonce 计数器，首次出现的签名者从 0 起步
func lockSignerNonce(tx *gorm.DB, signer string) (*model.SignerNonce, error) {
	var n model.SignerNonce
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("address = ?", signer).First(&n).Error
	if err == nil {
		return &n, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	n = model.SignerNonce{Address: signer, Nonce: 0}
	if err := tx.Create(&n).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

func bumpNonce(tx *gorm.DB, n *model.SignerNonce) error {
	n.Nonce++
	return tx.Model(n).Update("nonce", n.Nonce).Error
}

func rejectMeta(reason string, err error) error {
	monitor.Business.MetaTxRejectedTotal.WithLabelValues(reason).Inc()
	return err
}
