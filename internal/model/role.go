package model

import "time"

// 受保护的基础角色，不允许通用角色管理删除或改容量
const (
	RoleNameOwner       = "OWNER_ROLE"
	RoleNameBroadcaster = "BROADCASTER_ROLE"
	RoleNameRecovery    = "RECOVERY_ROLE"
)

// Role 角色表
type Role struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"name"`
	RoleHash   string    `gorm:"type:varchar(66);not null;uniqueIndex" json:"role_hash"` // keccak256(name)
	MaxWallets int       `gorm:"not null" json:"max_wallets"`
	Protected  bool      `gorm:"not null;default:false" json:"protected"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Role) TableName() string {
	return "roles"
}

// RoleWallet 角色成员表 (wallet 数量 <= Role.MaxWallets)
type RoleWallet struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RoleID    uint64    `gorm:"not null;uniqueIndex:idx_role_wallet;index" json:"role_id"`
	Wallet    string    `gorm:"type:varchar(42);not null;uniqueIndex:idx_role_wallet;index" json:"wallet"`
	CreatedAt time.Time `json:"created_at"`
}

func (RoleWallet) TableName() string {
	return "role_wallets"
}

// RolePermission 角色的函数权限授予
// 一条记录表示: 该角色允许对 selector 执行 action
type RolePermission struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RoleID            uint64    `gorm:"not null;uniqueIndex:idx_role_sel_action;index" json:"role_id"`
	Selector          string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_role_sel_action" json:"selector"`
	Action            TxAction  `gorm:"type:varchar(40);not null;uniqueIndex:idx_role_sel_action" json:"action"`
	RequiresSignature bool      `gorm:"not null;default:false" json:"requires_signature"` // 执行是否要求链下签名
	OffchainOnly      bool      `gorm:"not null;default:false" json:"offchain_only"`      // 该步骤是否仅链下
	CreatedAt         time.Time `json:"created_at"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}
