package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"secureop-core/internal/model"
	"secureop-core/pkg/errno"
	"secureop-core/pkg/signing"
)

// CatalogService 操作目录
// 维护函数选择器 -> 操作类型 -> 支持动作 的映射，以及操作类型注册表
type CatalogService struct {
	db *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{db: db}
}

// SchemaDefinition 批量加载时的单条定义
type SchemaDefinition struct {
	FunctionName  string
	Selector      string
	OperationType string
	OperationName string
	Actions       []model.TxAction
	SelfApproval  bool // 请求者可免授权迁移自己的记录；默认否
}

// CreateFunctionSchema 注册单个函数定义；选择器不可重复
func (s *CatalogService) CreateFunctionSchema(ctx context.Context, def SchemaDefinition) (*model.FunctionSchema, error) {
	schema, err := buildSchema(def)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return insertSchema(tx, schema)
	})
	if err != nil {
		return nil, err
	}
	return schema, nil
}

// LoadDefinitions 批量加载定义，全部成功或全部回滚
// 操作类型按需自动注册
func (s *CatalogService) LoadDefinitions(ctx context.Context, defs []SchemaDefinition, singleSlotTypes map[string]bool) error {
	schemas := make([]*model.FunctionSchema, 0, len(defs))
	for _, def := range defs {
		schema, err := buildSchema(def)
		if err != nil {
			return err
		}
		schemas = append(schemas, schema)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, schema := range schemas {
			if err := insertSchema(tx, schema); err != nil {
				return err
			}
			if err := ensureOperationType(tx, schema.OperationType, singleSlotTypes[schema.OperationType]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetSchemaBySelector 按选择器查函数定义
func (s *CatalogService) GetSchemaBySelector(ctx context.Context, selector string) (*model.FunctionSchema, error) {
	var schema model.FunctionSchema
	if err := s.db.WithContext(ctx).Where("selector = ?", selector).First(&schema).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrSelectorUnknown.WithMessage("selector %s not registered", selector)
		}
		return nil, err
	}
	return &schema, nil
}

// IsActionSupportedByFunction 函数是否声明支持某动作
// 选择器未注册视为不支持，不报错
func (s *CatalogService) IsActionSupportedByFunction(ctx context.Context, selector string, action model.TxAction) (bool, error) {
	var schema model.FunctionSchema
	if err := s.db.WithContext(ctx).Where("selector = ?", selector).First(&schema).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return schema.SupportsAction(action), nil
}

// IsOperationTypeSupported 操作类型是否在目录中注册
func (s *CatalogService) IsOperationTypeSupported(ctx context.Context, name string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.OperationType{}).Where("name = ?", name).Count(&count).Error
	return count > 0, err
}

// GetOperationType 读取操作类型配置 (含单槽位标志)
func (s *CatalogService) GetOperationType(ctx context.Context, name string) (*model.OperationType, error) {
	var ot model.OperationType
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&ot).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrOperationTypeUnknown.WithMessage("operation type %s not registered", name)
		}
		return nil, err
	}
	return &ot, nil
}

// ListSchemas 返回全部函数定义
func (s *CatalogService) ListSchemas(ctx context.Context) ([]model.FunctionSchema, error) {
	var schemas []model.FunctionSchema
	err := s.db.WithContext(ctx).Order("id").Find(&schemas).Error
	return schemas, err
}

func buildSchema(def SchemaDefinition) (*model.FunctionSchema, error) {
	if def.FunctionName == "" || def.OperationType == "" || len(def.Actions) == 0 {
		return nil, errno.ErrDefinitionShape.WithMessage(
			"definition for selector %s is incomplete", def.Selector)
	}
	if _, err := signing.ParseSelector(def.Selector); err != nil {
		return nil, err
	}
	for _, a := range def.Actions {
		if !a.Valid() {
			return nil, errno.ErrActionNotSupported.WithMessage("unknown action %q", a)
		}
	}
	return &model.FunctionSchema{
		FunctionName:  def.FunctionName,
		Selector:      def.Selector,
		OperationType: def.OperationType,
		OperationName: def.OperationName,
		Actions:       model.JoinActions(def.Actions),
		SelfApproval:  def.SelfApproval,
	}, nil
}

func insertSchema(tx *gorm.DB, schema *model.FunctionSchema) error {
	var count int64
	if err := tx.Model(&model.FunctionSchema{}).
		Where("selector = ?", schema.Selector).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errno.ErrSelectorExists.WithMessage("selector %s already registered", schema.Selector)
	}
	return tx.Create(schema).Error
}

// ensureOperationType 操作类型不存在时注册，存在时不改动已有配置
func ensureOperationType(tx *gorm.DB, name string, singleSlot bool) error {
	var count int64
	if err := tx.Model(&model.OperationType{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.Create(&model.OperationType{Name: name, SingleSlot: singleSlot}).Error
}
