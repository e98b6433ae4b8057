package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"secureop-core/internal/event"
	"secureop-core/internal/model"
	"secureop-core/pkg/cache"
	"secureop-core/pkg/crypto_util"
	"secureop-core/pkg/errno"
	"secureop-core/pkg/signing"
)

// RegistryService 权限注册表
// 管理角色、成员和 (selector, action) 授权；回答 "钱包 W 能否对函数 F 执行动作 A"
type RegistryService struct {
	db    *gorm.DB
	cache cache.Cache
}

const permCacheTTL = 30 * time.Second

func NewRegistryService(db *gorm.DB, c cache.Cache) *RegistryService {
	return &RegistryService{db: db, cache: c}
}

// CreateRole 创建角色
// 失败条件: 名称为空、maxWallets 为 0、角色哈希已存在
func (s *RegistryService) CreateRole(ctx context.Context, name string, maxWallets int, protected bool) (*model.Role, error) {
	if name == "" {
		return nil, errno.ErrEmptyRoleName
	}
	if maxWallets <= 0 {
		return nil, errno.ErrZeroMaxWallets
	}

	role := &model.Role{
		Name:       name,
		RoleHash:   crypto_util.RoleHash(name),
		MaxWallets: maxWallets,
		Protected:  protected,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Role{}).Where("role_hash = ?", role.RoleHash).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errno.ErrRoleExists.WithMessage("role hash %s already exists", role.RoleHash)
		}
		if err := tx.Create(role).Error; err != nil {
			return err
		}
		return model.CreateOutboxMessage(tx, event.TopicRole, role.RoleHash, event.RoleChangedEvent{
			RoleHash: role.RoleHash, Change: "created",
		})
	})
	if err != nil {
		return nil, err
	}
	return role, nil
}

// DeleteRole 删除角色及其成员和授权；受保护角色不可删除
func (s *RegistryService) DeleteRole(ctx context.Context, roleHash string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := findRole(tx, roleHash)
		if err != nil {
			return err
		}
		if role.Protected {
			return errno.ErrProtectedRole.WithMessage("role %s is protected", role.Name)
		}
		if err := tx.Where("role_id = ?", role.ID).Delete(&model.RoleWallet{}).Error; err != nil {
			return err
		}
		if err := tx.Where("role_id = ?", role.ID).Delete(&model.RolePermission{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(role).Error; err != nil {
			return err
		}
		return model.CreateOutboxMessage(tx, event.TopicRole, roleHash, event.RoleChangedEvent{
			RoleHash: roleHash, Change: "deleted",
		})
	})
}

// UpdateRoleCapacity 修改角色容量；受保护角色不可修改，
// 且新容量不能低于当前成员数
func (s *RegistryService) UpdateRoleCapacity(ctx context.Context, roleHash string, maxWallets int) error {
	if maxWallets <= 0 {
		return errno.ErrZeroMaxWallets
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := findRole(tx, roleHash)
		if err != nil {
			return err
		}
		if role.Protected {
			return errno.ErrProtectedRole.WithMessage("role %s is protected", role.Name)
		}
		var members int64
		if err := tx.Model(&model.RoleWallet{}).Where("role_id = ?", role.ID).Count(&members).Error; err != nil {
			return err
		}
		if int64(maxWallets) < members {
			return errno.ErrRoleAtCapacity.WithMessage(
				"cannot shrink capacity to %d below current member count %d", maxWallets, members)
		}
		if err := tx.Model(role).Update("max_wallets", maxWallets).Error; err != nil {
			return err
		}
		return model.CreateOutboxMessage(tx, event.TopicRole, roleHash, event.RoleChangedEvent{
			RoleHash: roleHash, Change: "capacity_updated",
		})
	})
}

// AssignWallet 把钱包加入角色
// 失败条件: 钱包已在角色中、角色已满
func (s *RegistryService) AssignWallet(ctx context.Context, roleHash string, wallet string) error {
	addr, err := signing.ParseAddress(wallet)
	if err != nil {
		return err
	}
	wallet = addr.Hex()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := findRoleLocked(tx, roleHash)
		if err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&model.RoleWallet{}).
			Where("role_id = ? AND wallet = ?", role.ID, wallet).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errno.ErrWalletAlreadyInRole.WithMessage("wallet %s already in role %s", wallet, role.Name)
		}

		var members int64
		if err := tx.Model(&model.RoleWallet{}).Where("role_id = ?", role.ID).Count(&members).Error; err != nil {
			return err
		}
		if members >= int64(role.MaxWallets) {
			return errno.ErrRoleAtCapacity.WithMessage(
				"role %s is at capacity (%d/%d)", role.Name, members, role.MaxWallets)
		}

		if err := tx.Create(&model.RoleWallet{RoleID: role.ID, Wallet: wallet}).Error; err != nil {
			return err
		}
		return model.CreateOutboxMessage(tx, event.TopicRole, roleHash, event.RoleChangedEvent{
			RoleHash: roleHash, Change: "wallet_assigned", Wallet: wallet,
		})
	})
}

// RevokeWallet 把钱包移出角色；钱包必须在角色中
func (s *RegistryService) RevokeWallet(ctx context.Context, roleHash string, wallet string) error {
	addr, err := signing.ParseAddress(wallet)
	if err != nil {
		return err
	}
	wallet = addr.Hex()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := findRoleLocked(tx, roleHash)
		if err != nil {
			return err
		}
		res := tx.Where("role_id = ? AND wallet = ?", role.ID, wallet).Delete(&model.RoleWallet{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errno.ErrWalletNotInRole.WithMessage("wallet %s not in role %s", wallet, role.Name)
		}
		return model.CreateOutboxMessage(tx, event.TopicRole, roleHash, event.RoleChangedEvent{
			RoleHash: roleHash, Change: "wallet_revoked", Wallet: wallet,
		})
	})
}

// UpdateAssignedWallet 原子替换角色成员 (old 必须在，new 必须不在)
func (s *RegistryService) UpdateAssignedWallet(ctx context.Context, roleHash string, oldWallet, newWallet string) error {
	oldAddr, err := signing.ParseAddress(oldWallet)
	if err != nil {
		return err
	}
	newAddr, err := signing.ParseAddress(newWallet)
	if err != nil {
		return err
	}
	if oldAddr == newAddr {
		return errno.ErrUnchangedAddress
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := findRoleLocked(tx, roleHash)
		if err != nil {
			return err
		}

		var count int64
		if err := tx.Model(&model.RoleWallet{}).
			Where("role_id = ? AND wallet = ?", role.ID, newAddr.Hex()).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return errno.ErrWalletAlreadyInRole.WithMessage("wallet %s already in role %s", newAddr.Hex(), role.Name)
		}

		res := tx.Model(&model.RoleWallet{}).
			Where("role_id = ? AND wallet = ?", role.ID, oldAddr.Hex()).
			Update("wallet", newAddr.Hex())
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errno.ErrWalletNotInRole.WithMessage("wallet %s not in role %s", oldAddr.Hex(), role.Name)
		}
		return model.CreateOutboxMessage(tx, event.TopicRole, roleHash, event.RoleChangedEvent{
			RoleHash: roleHash, Change: "wallet_replaced", Wallet: newAddr.Hex(),
		})
	})
}

// AddFunctionToRole 给角色授予函数动作权限
// 同一 (role, selector, action) 重复授予会失败
func (s *RegistryService) AddFunctionToRole(ctx context.Context, roleHash string, selector string, actions []model.TxAction, requiresSignature, offchainOnly bool) error {
	if _, err := signing.ParseSelector(selector); err != nil {
		return err
	}
	for _, a := range actions {
		if !a.Valid() {
			return errno.ErrActionNotSupported.WithMessage("unknown action %q", a)
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := findRole(tx, roleHash)
		if err != nil {
			return err
		}
		for _, a := range actions {
			var count int64
			if err := tx.Model(&model.RolePermission{}).
				Where("role_id = ? AND selector = ? AND action = ?", role.ID, selector, a).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return errno.ErrPermissionExists.WithMessage(
					"role %s already grants %s on %s", role.Name, a, selector)
			}
			perm := &model.RolePermission{
				RoleID:            role.ID,
				Selector:          selector,
				Action:            a,
				RequiresSignature: requiresSignature,
				OffchainOnly:      offchainOnly,
			}
			if err := tx.Create(perm).Error; err != nil {
				return err
			}
			if err := model.CreateOutboxMessage(tx, event.TopicRole, roleHash, event.RoleChangedEvent{
				RoleHash: roleHash, Change: "permission_added", Selector: selector, Action: string(a),
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// HasRole 钱包是否属于角色
func (s *RegistryService) HasRole(ctx context.Context, roleHash string, wallet string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.RoleWallet{}).
		Joins("JOIN roles ON roles.id = role_wallets.role_id").
		Where("roles.role_hash = ? AND role_wallets.wallet = ?", roleHash, wallet).
		Count(&count).Error
	return count > 0, err
}

// RoleHasActionPermission 角色级直接检查
func (s *RegistryService) RoleHasActionPermission(ctx context.Context, roleHash string, selector string, action model.TxAction) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.RolePermission{}).
		Joins("JOIN roles ON roles.id = role_permissions.role_id").
		Where("roles.role_hash = ? AND role_permissions.selector = ? AND role_permissions.action = ?",
			roleHash, selector, action).
		Count(&count).Error
	return count > 0, err
}

// HasActionPermission 带缓存的权限查询，供只读 API 使用。
// 状态迁移路径一律走 hasActionPermissionTx 直查数据库 (审批时重新校验，不用请求时的缓存结果)。
func (s *RegistryService) HasActionPermission(ctx context.Context, wallet string, selector string, action model.TxAction) (bool, error) {
	key := fmt.Sprintf("perm:%s:%s:%s", wallet, selector, action)

	var cached bool
	if s.cache != nil {
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	ok, err := hasActionPermissionTx(s.db.WithContext(ctx), wallet, selector, action)
	if err != nil {
		return false, err
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, ok, permCacheTTL)
	}
	return ok, nil
}

// GetRole 返回角色及其成员与授权
func (s *RegistryService) GetRole(ctx context.Context, roleHash string) (*model.Role, []model.RoleWallet, []model.RolePermission, error) {
	role, err := findRole(s.db.WithContext(ctx), roleHash)
	if err != nil {
		return nil, nil, nil, err
	}
	var wallets []model.RoleWallet
	if err := s.db.WithContext(ctx).Where("role_id = ?", role.ID).Find(&wallets).Error; err != nil {
		return nil, nil, nil, err
	}
	var perms []model.RolePermission
	if err := s.db.WithContext(ctx).Where("role_id = ?", role.ID).Find(&perms).Error; err != nil {
		return nil, nil, nil, err
	}
	return role, wallets, perms, nil
}

// ListRoles 返回全部角色
func (s *RegistryService) ListRoles(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	err := s.db.WithContext(ctx).Order("id").Find(&roles).Error
	return roles, err
}

// hasActionPermissionTx 在给定事务/连接上做权限直查:
// 钱包属于某个角色，且该角色对 selector 授予了 action
func hasActionPermissionTx(tx *gorm.DB, wallet string, selector string, action model.TxAction) (bool, error) {
	var count int64
	err := tx.Model(&model.RoleWallet{}).
		Joins("JOIN role_permissions ON role_permissions.role_id = role_wallets.role_id").
		Where("role_wallets.wallet = ? AND role_permissions.selector = ? AND role_permissions.action = ?",
			wallet, selector, action).
		Count(&count).Error
	return count > 0, err
}

func findRole(tx *gorm.DB, roleHash string) (*model.Role, error) {
	var role model.Role
	if err := tx.Where("role_hash = ?", roleHash).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrRoleNotFound.WithMessage("role hash %s not found", roleHash)
		}
		return nil, err
	}
	return &role, nil
}

// findRoleLocked 行锁版本，成员增删时防并发超容量
func findRoleLocked(tx *gorm.DB, roleHash string) (*model.Role, error) {
	var role model.Role
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("role_hash = ?", roleHash).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrRoleNotFound.WithMessage("role hash %s not found", roleHash)
		}
		return nil, err
	}
	return &role, nil
}
