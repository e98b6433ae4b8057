package event

// MQ 主题
const (
	TopicTransaction = "secureop_events_transaction"
	TopicRole        = "secureop_events_role"
	TopicPayment     = "secureop_events_payment"
)

// TransactionEvent 每次状态迁移都发出一条
// 事件转发器是尽力投递的外部协作方，不是正确性的信任依赖
type TransactionEvent struct {
	TxID          uint64 `json:"tx_id"`
	Trigger       string `json:"trigger"` // 触发迁移的函数名
	Status        string `json:"status"`
	Requester     string `json:"requester"`
	Target        string `json:"target"`
	OperationType string `json:"operation_type"`
}

// PaymentReleasedEvent 交易完成时释放支付
type PaymentReleasedEvent struct {
	TxID         uint64 `json:"tx_id"`
	Recipient    string `json:"recipient"`
	NativeAmount string `json:"native_amount"` // Decimal string
	Token        string `json:"token,omitempty"`
	TokenAmount  string `json:"token_amount,omitempty"`
}

// RoleChangedEvent 角色/成员/权限变更通知
type RoleChangedEvent struct {
	RoleHash string `json:"role_hash"`
	Change   string `json:"change"` // created / wallet_assigned / wallet_revoked / wallet_replaced / permission_added / deleted / capacity_updated
	Wallet   string `json:"wallet,omitempty"`
	Selector string `json:"selector,omitempty"`
	Action   string `json:"action,omitempty"`
}
