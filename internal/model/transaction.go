package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxStatus 交易记录状态机: PENDING -> {COMPLETED | CANCELLED | FAILED}
// 终态不再迁移；txId 不会复用
type TxStatus string

const (
	StatusUndefined TxStatus = "UNDEFINED" // 仅表示 "无此记录"，不落库
	StatusPending   TxStatus = "PENDING"
	StatusCompleted TxStatus = "COMPLETED"
	StatusCancelled TxStatus = "CANCELLED"
	StatusFailed    TxStatus = "FAILED"
)

// IsTerminal 是否为终态
func (s TxStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusFailed
}

// TxAction 执行者可请求的状态迁移类型
type TxAction string

const (
	ActionRequest               TxAction = "REQUEST"
	ActionDelayedApproval       TxAction = "DELAYED_APPROVAL"
	ActionCancel                TxAction = "CANCEL"
	ActionMetaRequestAndApprove TxAction = "EXECUTE_META_REQUEST_AND_APPROVE"
	ActionMetaApprove           TxAction = "EXECUTE_META_APPROVE"
	ActionMetaCancel            TxAction = "EXECUTE_META_CANCEL"
	ActionUpdatePayment         TxAction = "UPDATE_PAYMENT"
	// SIGN_ 变体只用于链下签名授权范围控制，不触发链上迁移
	ActionSignMetaRequestAndApprove TxAction = "SIGN_META_REQUEST_AND_APPROVE"
	ActionSignMetaApprove           TxAction = "SIGN_META_APPROVE"
	ActionSignMetaCancel            TxAction = "SIGN_META_CANCEL"
)

var actionCodes = map[TxAction]uint8{
	ActionRequest:                   1,
	ActionDelayedApproval:           2,
	ActionCancel:                    3,
	ActionMetaRequestAndApprove:     4,
	ActionMetaApprove:               5,
	ActionMetaCancel:                6,
	ActionUpdatePayment:             7,
	ActionSignMetaRequestAndApprove: 8,
	ActionSignMetaApprove:           9,
	ActionSignMetaCancel:            10,
}

// Code 返回动作在签名摘要中的固定字节编码，0 表示未知动作
func (a TxAction) Code() uint8 {
	return actionCodes[a]
}

// Valid 是否为已知动作
func (a TxAction) Valid() bool {
	_, ok := actionCodes[a]
	return ok
}

// ExecutionType 请求时选定的执行载荷类型，记录生命周期内不变
type ExecutionType string

const (
	ExecNone     ExecutionType = "NONE"     // 纯转账，无载荷
	ExecStandard ExecutionType = "STANDARD" // 函数选择器 + 编码参数，审批时内部分发
	ExecRaw      ExecutionType = "RAW"      // 不透明字节，原样分发
)

var executionCodes = map[ExecutionType]uint8{
	ExecNone:     0,
	ExecStandard: 1,
	ExecRaw:      2,
}

// Code 返回执行类型在签名摘要中的固定字节编码
func (e ExecutionType) Code() uint8 {
	return executionCodes[e]
}

// Valid 是否为已知执行类型
func (e ExecutionType) Valid() bool {
	_, ok := executionCodes[e]
	return ok
}

// Transaction 交易记录表 (append-only，终态记录保留作审计)
type Transaction struct {
	ID               uint64          `gorm:"primaryKey;autoIncrement" json:"tx_id"` // txId 从 1 起单调递增，0 表示 "无交易"
	Requester        string          `gorm:"type:varchar(42);not null;index" json:"requester"`
	Target           string          `gorm:"type:varchar(42);not null" json:"target"`
	Value            decimal.Decimal `gorm:"type:decimal(78,0);not null" json:"value"` // wei 级整数
	GasLimit         uint64          `gorm:"not null" json:"gas_limit"`
	OperationType    string          `gorm:"type:varchar(64);not null;index:idx_optype_status" json:"operation_type"`
	ExecutionType    ExecutionType   `gorm:"type:varchar(16);not null" json:"execution_type"`
	Selector         string          `gorm:"type:varchar(10);not null" json:"selector"` // STANDARD 时为 schema 注册的 4 字节选择器
	ExecutionOptions []byte          `gorm:"type:bytea" json:"execution_options,omitempty"`
	ReleaseTime      time.Time       `gorm:"not null" json:"release_time"` // 此时刻之后允许延时审批
	Status           TxStatus        `gorm:"type:varchar(16);not null;index:idx_optype_status" json:"status"`
	Message          string          `gorm:"type:varchar(66);not null" json:"message"` // 请求时提交的规范摘要，之后不变
	Result           []byte          `gorm:"type:bytea" json:"result,omitempty"`       // COMPLETED 前为空

	// Payment Adjunct (可选)，只在 COMPLETED 迁移时释放
	PayRecipient   string          `gorm:"type:varchar(42)" json:"pay_recipient,omitempty"`
	PayNative      decimal.Decimal `gorm:"type:decimal(78,0)" json:"pay_native"`
	PayToken       string          `gorm:"type:varchar(42)" json:"pay_token,omitempty"`
	PayTokenAmount decimal.Decimal `gorm:"type:decimal(78,0)" json:"pay_token_amount"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// HasPayment 是否附加了支付描述
func (t *Transaction) HasPayment() bool {
	return t.PayRecipient != ""
}

// SignerNonce 每个签名者的单调递增计数器，主要的重放防御
type SignerNonce struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Address   string    `gorm:"type:varchar(42);not null;uniqueIndex" json:"address"`
	Nonce     uint64    `gorm:"not null;default:0" json:"nonce"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (SignerNonce) TableName() string {
	return "signer_nonces"
}

// EngineSettings 聚合级可变配置，只有一行
// 初始化后仅时间锁周期和事件转发器地址可变，且只能经由状态机本身修改
type EngineSettings struct {
	ID              uint64    `gorm:"primaryKey" json:"id"`
	ChainID         uint64    `gorm:"not null" json:"chain_id"`
	TimeLockPeriod  int64     `gorm:"not null" json:"time_lock_period"` // 秒
	HandlerContract string    `gorm:"type:varchar(42)" json:"handler_contract"` // 元交易签名域绑定的处理合约地址
	EventForwarder  string    `gorm:"type:varchar(42)" json:"event_forwarder"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (EngineSettings) TableName() string {
	return "engine_settings"
}
