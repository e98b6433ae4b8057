package handler

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"secureop-core/internal/handler/request"
	"secureop-core/internal/handler/response"
	"secureop-core/internal/model"
	"secureop-core/internal/service"
	"secureop-core/pkg/errno"
	"secureop-core/pkg/validator"
)

type TransactionHandler struct {
	ledger *service.LedgerService
}

func NewTransactionHandler(ledger *service.LedgerService) *TransactionHandler {
	return &TransactionHandler{ledger: ledger}
}

// RequestStandard 发起标准执行请求
// @Summary 发起标准执行请求
// @Description 函数选择器 + 编码参数，操作类型由目录中的 schema 决定
// @Tags Transaction
// @Accept json
// @Produce json
// @Param request body request.RequestStandardRequest true "Standard Request"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/request/standard [post]
func (h *TransactionHandler) RequestStandard(c *gin.Context) {
	// 1. 绑定参数
	var req request.RequestStandardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}

	// 2. 解码执行载荷
	options, err := decodeHex(req.ExecutionOptions)
	if err != nil {
		response.Error(c, err)
		return
	}

	// 3. 调用 Service
	rec, err := h.ledger.RequestStandard(c.Request.Context(),
		req.Requester, req.Target, req.Value, req.GasLimit, req.Selector, options, toPayment(req.Payment))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, rec)
}

// RequestRaw 发起不透明载荷请求
// @Summary 发起不透明载荷请求
// @Tags Transaction
// @Accept json
// @Produce json
// @Param request body request.RequestRawRequest true "Raw Request"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/request/raw [post]
func (h *TransactionHandler) RequestRaw(c *gin.Context) {
	var req request.RequestRawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}

	payload, err := decodeHex(req.Payload)
	if err != nil {
		response.Error(c, err)
		return
	}

	rec, err := h.ledger.RequestRaw(c.Request.Context(),
		req.Requester, req.Target, req.Value, req.GasLimit, req.OperationType, payload, toPayment(req.Payment))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, rec)
}

// RequestSimple 发起纯转账请求
// @Summary 发起纯转账请求
// @Tags Transaction
// @Accept json
// @Produce json
// @Param request body request.RequestSimpleRequest true "Simple Request"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/request/simple [post]
func (h *TransactionHandler) RequestSimple(c *gin.Context) {
	var req request.RequestSimpleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}

	rec, err := h.ledger.RequestSimple(c.Request.Context(),
		req.Requester, req.Target, req.Value, req.GasLimit, req.OperationType, toPayment(req.Payment))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, rec)
}

// Approve 时间锁到期后的延时审批
// @Summary 延时审批
// @Description 记录必须 PENDING 且已过 releaseTime，调用方需为请求者或持有审批权限
// @Tags Transaction
// @Accept json
// @Produce json
// @Param tx_id path int true "Transaction ID"
// @Param request body request.TransitionRequest true "Approval"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/{tx_id}/approve [post]
func (h *TransactionHandler) Approve(c *gin.Context) {
	txID, err := parseTxID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req request.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}

	rec, err := h.ledger.TxDelayedApproval(c.Request.Context(), txID, req.Caller, req.ExpectedOperationType)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, rec)
}

// Cancel 撤销 PENDING 记录
// @Summary 撤销交易
// @Tags Transaction
// @Accept json
// @Produce json
// @Param tx_id path int true "Transaction ID"
// @Param request body request.TransitionRequest true "Cancellation"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/{tx_id}/cancel [post]
func (h *TransactionHandler) Cancel(c *gin.Context) {
	txID, err := parseTxID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req request.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}

	rec, err := h.ledger.TxCancellation(c.Request.Context(), txID, req.Caller, req.ExpectedOperationType)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, rec)
}

// UpdatePayment 改写支付附件
// @Summary 更新支付附件
// @Tags Transaction
// @Accept json
// @Produce json
// @Param tx_id path int true "Transaction ID"
// @Param request body request.UpdatePaymentRequest true "Payment"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/{tx_id}/payment [put]
func (h *TransactionHandler) UpdatePayment(c *gin.Context) {
	txID, err := parseTxID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req request.UpdatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}

	rec, err := h.ledger.UpdatePaymentForTransaction(c.Request.Context(), txID, req.Caller, service.PaymentInput{
		Recipient: req.Payment.Recipient, Native: req.Payment.Native,
		Token: req.Payment.Token, TokenAmount: req.Payment.TokenAmount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, rec)
}

// Get 按 txId 查询
// @Summary 查询交易
// @Tags Transaction
// @Produce json
// @Param tx_id path int true "Transaction ID"
// @Success 200 {object} response.Response
// @Router /api/v1/tx/{tx_id} [get]
func (h *TransactionHandler) Get(c *gin.Context) {
	txID, err := parseTxID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	rec, err := h.ledger.GetTransaction(c.Request.Context(), txID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, rec)
}

// List 分页查询
// @Summary 交易列表
// @Tags Transaction
// @Produce json
// @Param status query string false "Status filter"
// @Param operation_type query string false "Operation type filter"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Response
// @Router /api/v1/tx [get]
func (h *TransactionHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	recs, total, err := h.ledger.ListTransactions(c.Request.Context(),
		model.TxStatus(c.Query("status")), c.Query("operation_type"), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"items": recs, "total": total})
}

func parseTxID(c *gin.Context) (uint64, error) {
	txID, err := strconv.ParseUint(c.Param("tx_id"), 10, 64)
	if err != nil || txID == 0 {
		return 0, errno.ErrBind.WithMessage("tx_id must be a positive integer")
	}
	return txID, nil
}

func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, errno.ErrBind.WithMessage("hex payload must be 0x-prefixed: %v", err)
	}
	return b, nil
}

func toPayment(p *request.PaymentSpec) *service.PaymentInput {
	if p == nil {
		return nil
	}
	return &service.PaymentInput{
		Recipient: p.Recipient, Native: p.Native,
		Token: p.Token, TokenAmount: p.TokenAmount,
	}
}
