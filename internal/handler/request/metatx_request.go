package request

import "github.com/shopspring/decimal"

// MetaParamsSpec 签名域参数，与签名者看到的完全一致
type MetaParamsSpec struct {
	ChainID         uint64          `json:"chain_id" binding:"required"`
	Nonce           uint64          `json:"nonce"`
	HandlerContract string          `json:"handler_contract" binding:"required"`
	HandlerSelector string          `json:"handler_selector" binding:"required"`
	Action          string          `json:"action" binding:"required"`
	Deadline        int64           `json:"deadline" binding:"required"`
	MaxGasPrice     decimal.Decimal `json:"max_gas_price"`
	Signer          string          `json:"signer" binding:"required"`
	Signature       string          `json:"signature"` // 0x 前缀十六进制，生成摘要时可省略
}

// MetaTransitionRequest 凭签名审批 / 撤销已存在的记录
type MetaTransitionRequest struct {
	TxID                  uint64         `json:"tx_id" binding:"required"`
	ExpectedOperationType string         `json:"expected_operation_type"`
	Meta                  MetaParamsSpec `json:"meta" binding:"required"`
}

// TxSpec requestAndApprove 中内嵌的新交易描述
type TxSpec struct {
	Requester        string          `json:"requester" binding:"required"`
	Target           string          `json:"target" binding:"required"`
	Value            decimal.Decimal `json:"value"`
	GasLimit         uint64          `json:"gas_limit"`
	OperationType    string          `json:"operation_type"`
	ExecutionType    string          `json:"execution_type" binding:"required"`
	Selector         string          `json:"selector"`
	ExecutionOptions string          `json:"execution_options"` // 0x 前缀十六进制
	Payment          *PaymentSpec    `json:"payment"`
}

// MetaRequestAndApproveRequest 单次调用创建并审批
type MetaRequestAndApproveRequest struct {
	Tx   TxSpec         `json:"tx" binding:"required"`
	Meta MetaParamsSpec `json:"meta" binding:"required"`
}

// GenerateUnsignedRequest 生成待签摘要
// TxID 与 Tx 二选一: 审批已有记录给 TxID，requestAndApprove 给 Tx
type GenerateUnsignedRequest struct {
	TxID uint64         `json:"tx_id"`
	Tx   *TxSpec        `json:"tx"`
	Meta MetaParamsSpec `json:"meta" binding:"required"`
}
