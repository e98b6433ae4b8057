package request

import "github.com/shopspring/decimal"

// PaymentSpec 可选的支付附件
type PaymentSpec struct {
	Recipient   string          `json:"recipient" binding:"required"`
	Native      decimal.Decimal `json:"native"`
	Token       string          `json:"token"`
	TokenAmount decimal.Decimal `json:"token_amount"`
}

// RequestStandardRequest 函数选择器 + 编码参数的请求
type RequestStandardRequest struct {
	Requester        string          `json:"requester" binding:"required"`
	Target           string          `json:"target" binding:"required"`
	Value            decimal.Decimal `json:"value"`
	GasLimit         uint64          `json:"gas_limit"`
	Selector         string          `json:"selector" binding:"required"`
	ExecutionOptions string          `json:"execution_options"` // 0x 前缀十六进制
	Payment          *PaymentSpec    `json:"payment"`
}

// RequestRawRequest 不透明载荷的请求
type RequestRawRequest struct {
	Requester     string          `json:"requester" binding:"required"`
	Target        string          `json:"target" binding:"required"`
	Value         decimal.Decimal `json:"value"`
	GasLimit      uint64          `json:"gas_limit"`
	OperationType string          `json:"operation_type" binding:"required"`
	Payload       string          `json:"payload" binding:"required"` // 0x 前缀十六进制
	Payment       *PaymentSpec    `json:"payment"`
}

// RequestSimpleRequest 纯转账请求
type RequestSimpleRequest struct {
	Requester     string          `json:"requester" binding:"required"`
	Target        string          `json:"target" binding:"required"`
	Value         decimal.Decimal `json:"value"`
	GasLimit      uint64          `json:"gas_limit"`
	OperationType string          `json:"operation_type" binding:"required"`
	Payment       *PaymentSpec    `json:"payment"`
}

// TransitionRequest 延时审批 / 撤销
// ExpectedOperationType 非空时与记录不符会被拒绝，防止审错对象
type TransitionRequest struct {
	Caller                string `json:"caller" binding:"required"`
	ExpectedOperationType string `json:"expected_operation_type"`
}

// UpdatePaymentRequest 改写支付附件
type UpdatePaymentRequest struct {
	Caller  string      `json:"caller" binding:"required"`
	Payment PaymentSpec `json:"payment" binding:"required"`
}
