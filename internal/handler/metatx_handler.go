package handler

import (
	"github.com/gin-gonic/gin"

	"secureop-core/internal/handler/request"
	"secureop-core/internal/handler/response"
	"secureop-core/internal/model"
	"secureop-core/internal/service"
	"secureop-core/pkg/errno"
	"secureop-core/pkg/validator"
)

type MetaTxHandler struct {
	metatx *service.MetaTxService
}

func NewMetaTxHandler(metatx *service.MetaTxService) *MetaTxHandler {
	return &MetaTxHandler{metatx: metatx}
}

// GenerateUnsigned 生成待签摘要
// @Summary 生成待签摘要
// @Description tx_id 与 tx 二选一: 审批已有记录给 tx_id，requestAndApprove 给 tx
// @Tags MetaTx
// @Accept json
// @Produce json
// @Param request body request.GenerateUnsignedRequest true "Unsigned digest request"
// @Success 200 {object} response.Response
// @Router /api/v1/metatx/unsigned [post]
func (h *MetaTxHandler) GenerateUnsigned(c *gin.Context) {
	var req request.GenerateUnsignedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}

	params, err := toMetaParams(req.Meta)
	if err != nil {
		response.Error(c, err)
		return
	}

	var digest string
	switch {
	case req.TxID != 0:
		digest, err = h.metatx.GenerateUnsignedForExisting(c.Request.Context(), req.TxID, params)
	case req.Tx != nil:
		var in service.TxRequestInput
		in, err = toTxInput(*req.Tx)
		if err == nil {
			digest, err = h.metatx.GenerateUnsignedForNew(c.Request.Context(), in, params)
		}
	default:
		err = errno.ErrBind.WithMessage("either tx_id or tx must be provided")
	}
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, gin.H{"digest": digest})
}

// Approve 凭签名审批
// @Summary 元交易审批
// @Description 七步校验通过后立即执行，不受时间锁约束
// @Tags MetaTx
// @Accept json
// @Produce json
// @Param request body request.MetaTransitionRequest true "Meta approval"
// @Success 200 {object} response.Response
// @Router /api/v1/metatx/approve [post]
func (h *MetaTxHandler) Approve(c *gin.Context) {
	var req request.MetaTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}

	params, err := toMetaParams(req.Meta)
	if err != nil {
		response.Error(c, err)
		return
	}

	rec, err := h.metatx.ApproveWithMetaTx(c.Request.Context(), req.TxID, req.ExpectedOperationType, params)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, rec)
}

// Cancel 凭签名撤销
// @Summary 元交易撤销
// @Tags MetaTx
// @Accept json
// @Produce json
// @Param request body request.MetaTransitionRequest true "Meta cancellation"
// @Success 200 {object} response.Response
// @Router /api/v1/metatx/cancel [post]
func (h *MetaTxHandler) Cancel(c *gin.Context) {
	var req request.MetaTransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}

	params, err := toMetaParams(req.Meta)
	if err != nil {
		response.Error(c, err)
		return
	}

	rec, err := h.metatx.CancelWithMetaTx(c.Request.Context(), req.TxID, req.ExpectedOperationType, params)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, rec)
}

// RequestAndApprove 单次调用创建并审批
// @Summary 元交易创建并审批
// @Description 创建与审批在同一事务，签名摘要中 txId 取 0
// @Tags MetaTx
// @Accept json
// @Produce json
// @Param request body request.MetaRequestAndApproveRequest true "Meta request-and-approve"
// @Success 200 {object} response.Response
// @Router /api/v1/metatx/request_and_approve [post]
func (h *MetaTxHandler) RequestAndApprove(c *gin.Context) {
	var req request.MetaRequestAndApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}

	params, err := toMetaParams(req.Meta)
	if err != nil {
		response.Error(c, err)
		return
	}
	in, err := toTxInput(req.Tx)
	if err != nil {
		response.Error(c, err)
		return
	}

	rec, err := h.metatx.RequestAndApprove(c.Request.Context(), in, params)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, rec)
}

// GetNonce 查询签名者当前 nonce
// @Summary 查询签名者 nonce
// @Tags MetaTx
// @Produce json
// @Param address path string true "Signer address"
// @Success 200 {object} response.Response
// @Router /api/v1/metatx/nonce/{address} [get]
func (h *MetaTxHandler) GetNonce(c *gin.Context) {
	nonce, err := h.metatx.GetNonce(c.Request.Context(), c.Param("address"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"nonce": nonce})
}

func toMetaParams(m request.MetaParamsSpec) (service.MetaTxParams, error) {
	sig, err := decodeHex(m.Signature)
	if err != nil {
		return service.MetaTxParams{}, err
	}
	return service.MetaTxParams{
		ChainID:         m.ChainID,
		Nonce:           m.Nonce,
		HandlerContract: m.HandlerContract,
		HandlerSelector: m.HandlerSelector,
		Action:          model.TxAction(m.Action),
		Deadline:        m.Deadline,
		MaxGasPrice:     m.MaxGasPrice,
		Signer:          m.Signer,
		Signature:       sig,
	}, nil
}

func toTxInput(t request.TxSpec) (service.TxRequestInput, error) {
	options, err := decodeHex(t.ExecutionOptions)
	if err != nil {
		return service.TxRequestInput{}, err
	}
	return service.TxRequestInput{
		Requester:        t.Requester,
		Target:           t.Target,
		Value:            t.Value,
		GasLimit:         t.GasLimit,
		OperationType:    t.OperationType,
		ExecutionType:    model.ExecutionType(t.ExecutionType),
		Selector:         t.Selector,
		ExecutionOptions: options,
		Payment:          toPayment(t.Payment),
	}, nil
}
