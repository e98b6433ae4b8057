package service

import (
	"context"
	"errors"
	"os"

	"github.com/spf13/viper"
	"gorm.io/gorm"

	"secureop-core/internal/model"
	"secureop-core/pkg/config"
	"secureop-core/pkg/crypto_util"
	"secureop-core/pkg/errno"
	"secureop-core/pkg/logger"
	"secureop-core/pkg/signing"

	"go.uber.org/zap"
)

// Bootstrapper 启动时初始化聚合状态: 配置行、受保护角色、
// 内置函数 schema 和定义文件里的声明式定义。全程幂等，重启安全
type Bootstrapper struct {
	db         *gorm.DB
	catalog    *CatalogService
	registry   *RegistryService
	dispatcher *Dispatcher
}

func NewBootstrapper(db *gorm.DB, catalog *CatalogService, registry *RegistryService, dispatcher *Dispatcher) *Bootstrapper {
	return &Bootstrapper{db: db, catalog: catalog, registry: registry, dispatcher: dispatcher}
}

// RoleDefinition 定义文件中的角色条目
type RoleDefinition struct {
	Name        string                 `mapstructure:"name"`
	MaxWallets  int                    `mapstructure:"max_wallets"`
	Protected   bool                   `mapstructure:"protected"`
	Wallets     []string               `mapstructure:"wallets"`
	Permissions []PermissionDefinition `mapstructure:"permissions"`
}

// PermissionDefinition 角色对某个函数的动作授权
type PermissionDefinition struct {
	Selector          string   `mapstructure:"selector"`
	Actions           []string `mapstructure:"actions"`
	RequiresSignature bool     `mapstructure:"requires_signature"`
	OffchainOnly      bool     `mapstructure:"offchain_only"`
}

// OperationTypeDefinition 操作类型条目
type OperationTypeDefinition struct {
	Name       string `mapstructure:"name"`
	SingleSlot bool   `mapstructure:"single_slot"`
}

// FunctionDefinition 函数 schema 条目；selector 可省略，由签名推导
type FunctionDefinition struct {
	FunctionName  string   `mapstructure:"function_name"`
	Selector      string   `mapstructure:"selector"`
	OperationType string   `mapstructure:"operation_type"`
	OperationName string   `mapstructure:"operation_name"`
	Actions       []string `mapstructure:"actions"`
	SelfApproval  bool     `mapstructure:"self_approval"`
}

// Definitions 定义文件根结构
type Definitions struct {
	OperationTypes []OperationTypeDefinition `mapstructure:"operation_types"`
	Functions      []FunctionDefinition      `mapstructure:"functions"`
	Roles          []RoleDefinition          `mapstructure:"roles"`
}

// 引擎内置的受保护角色，任何配置都不能移除
var builtinRoles = []struct {
	Name       string
	MaxWallets int
}{
	{model.RoleNameOwner, 1},
	{model.RoleNameBroadcaster, 4},
	{model.RoleNameRecovery, 2},
}

const engineSettingsOpType = "ENGINE_SETTINGS"

// Run 执行全部初始化步骤
func (b *Bootstrapper) Run(ctx context.Context) error {
	if err := b.ensureSettings(ctx); err != nil {
		return err
	}
	if err := b.ensureBuiltinRoles(ctx); err != nil {
		return err
	}
	if err := b.ensureBuiltinSchemas(ctx); err != nil {
		return err
	}
	if err := b.dispatcher.RegisterBuiltins(); err != nil {
		return err
	}
	if err := b.loadDefinitionsFile(ctx); err != nil {
		return err
	}
	logger.Info("bootstrap completed")
	return nil
}

// ensureSettings 单行配置首次启动时从静态配置落库；
// 之后时间锁周期等字段只能经状态机本身修改，不再跟随配置文件
func (b *Bootstrapper) ensureSettings(ctx context.Context) error {
	var count int64
	if err := b.db.WithContext(ctx).Model(&model.EngineSettings{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	eng := config.Global.Engine
	if eng.TimeLockPeriod < eng.MinTimeLock || eng.TimeLockPeriod > eng.MaxTimeLock {
		return errno.ErrTimeLockOutOfBounds.WithMessage(
			"configured time lock %ds outside [%d, %d]", eng.TimeLockPeriod, eng.MinTimeLock, eng.MaxTimeLock)
	}

	settings := &model.EngineSettings{
		ID:             1,
		ChainID:        eng.ChainID,
		TimeLockPeriod: eng.TimeLockPeriod,
	}
	if eng.HandlerContract != "" {
		addr, err := signing.ParseAddress(eng.HandlerContract)
		if err != nil {
			return err
		}
		settings.HandlerContract = addr.Hex()
	}
	if eng.EventForwarder != "" {
		addr, err := signing.ParseAddress(eng.EventForwarder)
		if err != nil {
			return err
		}
		settings.EventForwarder = addr.Hex()
	}

	logger.Info("initializing engine settings",
		zap.Uint64("chain_id", settings.ChainID), zap.Int64("time_lock_period", settings.TimeLockPeriod))
	return b.db.WithContext(ctx).Create(settings).Error
}

func (b *Bootstrapper) ensureBuiltinRoles(ctx context.Context) error {
	for _, r := range builtinRoles {
		_, err := b.registry.CreateRole(ctx, r.Name, r.MaxWallets, true)
		if err != nil && !errno.ErrRoleExists.Is(err) {
			return err
		}
	}
	return nil
}

// ensureBuiltinSchemas 引擎自管理函数也走统一目录，审批权限默认给 OWNER_ROLE
func (b *Bootstrapper) ensureBuiltinSchemas(ctx context.Context) error {
	builtins := []SchemaDefinition{
		{
			FunctionName:  "setTimeLockPeriod(uint256)",
			Selector:      SelectorSetTimeLockPeriod,
			OperationType: engineSettingsOpType,
			OperationName: "Update time lock period",
			Actions: []model.TxAction{
				model.ActionRequest, model.ActionDelayedApproval, model.ActionCancel,
				model.ActionMetaApprove, model.ActionMetaCancel,
				model.ActionSignMetaApprove, model.ActionSignMetaCancel,
			},
		},
		{
			FunctionName:  "setEventForwarder(address)",
			Selector:      SelectorSetEventForwarder,
			OperationType: engineSettingsOpType,
			OperationName: "Update event forwarder",
			Actions: []model.TxAction{
				model.ActionRequest, model.ActionDelayedApproval, model.ActionCancel,
				model.ActionMetaApprove, model.ActionMetaCancel,
				model.ActionSignMetaApprove, model.ActionSignMetaCancel,
			},
		},
	}

	singleSlot := map[string]bool{engineSettingsOpType: true}
	for _, def := range builtins {
		err := b.catalog.LoadDefinitions(ctx, []SchemaDefinition{def}, singleSlot)
		if err != nil && !errno.ErrSelectorExists.Is(err) {
			return err
		}
	}

	for _, def := range builtins {
		err := b.registry.AddFunctionToRole(ctx, crypto_util.RoleHash(model.RoleNameOwner), def.Selector,
			[]model.TxAction{
				model.ActionRequest, model.ActionDelayedApproval, model.ActionCancel,
				model.ActionSignMetaApprove, model.ActionSignMetaCancel,
			}, false, false)
		if err != nil && !errno.ErrPermissionExists.Is(err) {
			return err
		}
	}
	return nil
}

// loadDefinitionsFile 加载部署方的声明式定义；文件不存在时跳过
func (b *Bootstrapper) loadDefinitionsFile(ctx context.Context) error {
	path := config.Global.Engine.DefinitionsFile
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Warn("definitions file not found, skipping", zap.String("path", path))
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return err
	}
	var defs Definitions
	if err := v.Unmarshal(&defs); err != nil {
		return errno.ErrDefinitionShape.WithMessage("cannot decode definitions file: %v", err)
	}

	singleSlot := make(map[string]bool, len(defs.OperationTypes))
	for _, ot := range defs.OperationTypes {
		if ot.Name == "" {
			return errno.ErrDefinitionShape.WithMessage("operation type entry without name")
		}
		singleSlot[ot.Name] = ot.SingleSlot
	}

	for _, fn := range defs.Functions {
		def := SchemaDefinition{
			FunctionName:  fn.FunctionName,
			Selector:      fn.Selector,
			OperationType: fn.OperationType,
			OperationName: fn.OperationName,
			Actions:       toActions(fn.Actions),
			SelfApproval:  fn.SelfApproval,
		}
		if def.Selector == "" {
			def.Selector = crypto_util.SelectorFromSignature(fn.FunctionName)
		}
		err := b.catalog.LoadDefinitions(ctx, []SchemaDefinition{def}, singleSlot)
		if err != nil && !errno.ErrSelectorExists.Is(err) {
			return err
		}
	}

	for _, role := range defs.Roles {
		created, err := b.registry.CreateRole(ctx, role.Name, role.MaxWallets, role.Protected)
		roleHash := crypto_util.RoleHash(role.Name)
		if err != nil {
			if !errno.ErrRoleExists.Is(err) {
				return err
			}
		} else {
			roleHash = created.RoleHash
		}

		for _, w := range role.Wallets {
			if err := b.registry.AssignWallet(ctx, roleHash, w); err != nil &&
				!errno.ErrWalletAlreadyInRole.Is(err) {
				return err
			}
		}
		for _, perm := range role.Permissions {
			err := b.registry.AddFunctionToRole(ctx, roleHash, perm.Selector,
				toActions(perm.Actions), perm.RequiresSignature, perm.OffchainOnly)
			if err != nil && !errno.ErrPermissionExists.Is(err) {
				return err
			}
		}
	}

	logger.Info("definitions loaded",
		zap.Int("functions", len(defs.Functions)), zap.Int("roles", len(defs.Roles)))
	return nil
}

func toActions(names []string) []model.TxAction {
	out := make([]model.TxAction, 0, len(names))
	for _, n := range names {
		out = append(out, model.TxAction(n))
	}
	return out
}
