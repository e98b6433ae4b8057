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

type RoleHandler struct {
	registry *service.RegistryService
}

func NewRoleHandler(registry *service.RegistryService) *RoleHandler {
	return &RoleHandler{registry: registry}
}

// Create 创建角色
// @Summary 创建角色
// @Tags Role
// @Accept json
// @Produce json
// @Param request body request.CreateRoleRequest true "Role"
// @Success 200 {object} response.Response
// @Router /api/v1/roles [post]
func (h *RoleHandler) Create(c *gin.Context) {
	var req request.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}

	role, err := h.registry.CreateRole(c.Request.Context(), req.Name, req.MaxWallets, req.Protected)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, role)
}

// List 角色列表
// @Summary 角色列表
// @Tags Role
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/roles [get]
func (h *RoleHandler) List(c *gin.Context) {
	roles, err := h.registry.ListRoles(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, roles)
}

// Get 角色详情 (含成员与授权)
// @Summary 角色详情
// @Tags Role
// @Produce json
// @Param role_hash path string true "Role hash"
// @Success 200 {object} response.Response
// @Router /api/v1/roles/{role_hash} [get]
func (h *RoleHandler) Get(c *gin.Context) {
	role, wallets, perms, err := h.registry.GetRole(c.Request.Context(), c.Param("role_hash"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"role": role, "wallets": wallets, "permissions": perms})
}

// Delete 删除角色
// @Summary 删除角色
// @Description 受保护角色不可删除
// @Tags Role
// @Produce json
// @Param role_hash path string true "Role hash"
// @Success 200 {object} response.Response
// @Router /api/v1/roles/{role_hash} [delete]
func (h *RoleHandler) Delete(c *gin.Context) {
	if err := h.registry.DeleteRole(c.Request.Context(), c.Param("role_hash")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// UpdateCapacity 调整角色容量
// @Summary 调整角色容量
// @Tags Role
// @Accept json
// @Produce json
// @Param role_hash path string true "Role hash"
// @Param request body request.UpdateCapacityRequest true "Capacity"
// @Success 200 {object} response.Response
// @Router /api/v1/roles/{role_hash}/capacity [put]
func (h *RoleHandler) UpdateCapacity(c *gin.Context) {
	var req request.UpdateCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}

	if err := h.registry.UpdateRoleCapacity(c.Request.Context(), c.Param("role_hash"), req.MaxWallets); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// AssignWallet 钱包加入角色
// @Summary 钱包加入角色
// @Tags Role
// @Accept json
// @Produce json
// @Param role_hash path string true "Role hash"
// @Param request body request.AssignWalletRequest true "Wallet"
// @Success 200 {object} response.Response
// @Router /api/v1/roles/{role_hash}/wallets [post]
func (h *RoleHandler) AssignWallet(c *gin.Context) {
	var req request.AssignWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}

	if err := h.registry.AssignWallet(c.Request.Context(), c.Param("role_hash"), req.Wallet); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// RevokeWallet 钱包移出角色
// @Summary 钱包移出角色
// @Tags Role
// @Accept json
// @Produce json
// @Param role_hash path string true "Role hash"
// @Param request body request.AssignWalletRequest true "Wallet"
// @Success 200 {object} response.Response
// @Router /api/v1/roles/{role_hash}/wallets/revoke [post]
func (h *RoleHandler) RevokeWallet(c *gin.Context) {
	var req request.AssignWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}

	if err := h.registry.RevokeWallet(c.Request.Context(), c.Param("role_hash"), req.Wallet); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ReplaceWallet 原子替换角色成员
// @Summary 替换角色成员
// @Tags Role
// @Accept json
// @Produce json
// @Param role_hash path string true "Role hash"
// @Param request body request.ReplaceWalletRequest true "Replacement"
// @Success 200 {object} response.Response
// @Router /api/v1/roles/{role_hash}/wallets/replace [post]
func (h *RoleHandler) ReplaceWallet(c *gin.Context) {
	var req request.ReplaceWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}

	if err := h.registry.UpdateAssignedWallet(c.Request.Context(),
		c.Param("role_hash"), req.OldWallet, req.NewWallet); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// AddPermission 授予函数动作权限
// @Summary 授予函数动作权限
// @Tags Role
// @Accept json
// @Produce json
// @Param role_hash path string true "Role hash"
// @Param request body request.AddPermissionRequest true "Permission"
// @Success 200 {object} response.Response
// @Router /api/v1/roles/{role_hash}/permissions [post]
func (h *RoleHandler) AddPermission(c *gin.Context) {
	var req request.AddPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errno.ErrBind.WithMessage("%s", validator.GetErrorMsg(err)))
		return
	}

	actions := make([]model.TxAction, 0, len(req.Actions))
	for _, a := range req.Actions {
		actions = append(actions, model.TxAction(a))
	}

	if err := h.registry.AddFunctionToRole(c.Request.Context(),
		c.Param("role_hash"), req.Selector, actions, req.RequiresSignature, req.OffchainOnly); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// CheckPermission 权限查询 (带缓存的只读路径)
// @Summary 权限查询
// @Tags Role
// @Produce json
// @Param wallet query string true "Wallet address"
// @Param selector query string true "Function selector"
// @Param action query string true "Action"
// @Success 200 {object} response.Response
// @Router /api/v1/permissions/check [get]
func (h *RoleHandler) CheckPermission(c *gin.Context) {
	wallet, selector, action := c.Query("wallet"), c.Query("selector"), c.Query("action")
	if wallet == "" || selector == "" || action == "" {
		response.Error(c, errno.ErrBind.WithMessage("wallet, selector and action are required"))
		return
	}

	ok, err := h.registry.HasActionPermission(c.Request.Context(), wallet, selector, model.TxAction(action))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"allowed": ok})
}
