package request

// CreateRoleRequest 创建角色
type CreateRoleRequest struct {
	Name       string `json:"name" binding:"required"`
	MaxWallets int    `json:"max_wallets" binding:"required,min=1"`
	Protected  bool   `json:"protected"`
}

// UpdateCapacityRequest 调整角色容量
type UpdateCapacityRequest struct {
	MaxWallets int `json:"max_wallets" binding:"required,min=1"`
}

// AssignWalletRequest 加入 / 移出角色
type AssignWalletRequest struct {
	Wallet string `json:"wallet" binding:"required"`
}

// ReplaceWalletRequest 原子替换角色成员
type ReplaceWalletRequest struct {
	OldWallet string `json:"old_wallet" binding:"required"`
	NewWallet string `json:"new_wallet" binding:"required"`
}

// AddPermissionRequest 给角色授予函数动作权限
type AddPermissionRequest struct {
	Selector          string   `json:"selector" binding:"required"`
	Actions           []string `json:"actions" binding:"required,min=1"`
	RequiresSignature bool     `json:"requires_signature"`
	OffchainOnly      bool     `json:"offchain_only"`
}
