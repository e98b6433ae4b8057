package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secureop-core/internal/model"
	"secureop-core/pkg/errno"
)

func TestLoadDefinitions(t *testing.T) {
	db := testDB(t)
	_, catalog, _, _, _ := testServices(t, db)

	selector := uniqSelector()
	opType := uniq("CATALOG_OP")
	defs := []SchemaDefinition{{
		FunctionName:  "mint(address,uint256)",
		Selector:      selector,
		OperationType: opType,
		OperationName: "Mint tokens",
		Actions:       []model.TxAction{model.ActionRequest, model.ActionDelayedApproval},
		SelfApproval:  true,
	}}
	require.NoError(t, catalog.LoadDefinitions(testCtx, defs, map[string]bool{opType: true}))

	schema, err := catalog.GetSchemaBySelector(testCtx, selector)
	require.NoError(t, err)
	assert.Equal(t, opType, schema.OperationType)
	assert.True(t, schema.SupportsAction(model.ActionRequest))
	assert.False(t, schema.SupportsAction(model.ActionCancel))
	assert.True(t, schema.SelfApproval)

	// 操作类型随定义自动注册，带单槽位标志
	ot, err := catalog.GetOperationType(testCtx, opType)
	require.NoError(t, err)
	assert.True(t, ot.SingleSlot)

	// 重复选择器整批回滚
	dup := []SchemaDefinition{{
		FunctionName:  "burn(uint256)",
		Selector:      selector,
		OperationType: uniq("OTHER_OP"),
		Actions:       []model.TxAction{model.ActionRequest},
	}}
	err = catalog.LoadDefinitions(testCtx, dup, nil)
	assert.True(t, errors.Is(err, errno.ErrSelectorExists))
}

func TestLoadDefinitionsValidation(t *testing.T) {
	db := testDB(t)
	_, catalog, _, _, _ := testServices(t, db)

	// 缺操作类型
	err := catalog.LoadDefinitions(testCtx, []SchemaDefinition{{
		FunctionName: "orphan()",
		Selector:     uniqSelector(),
		Actions:      []model.TxAction{model.ActionRequest},
	}}, nil)
	assert.True(t, errors.Is(err, errno.ErrDefinitionShape))

	// 非法动作
	err = catalog.LoadDefinitions(testCtx, []SchemaDefinition{{
		FunctionName:  "bad()",
		Selector:      uniqSelector(),
		OperationType: uniq("BAD_OP"),
		Actions:       []model.TxAction{"NOT_AN_ACTION"},
	}}, nil)
	assert.True(t, errors.Is(err, errno.ErrActionNotSupported))

	// 坏选择器
	err = catalog.LoadDefinitions(testCtx, []SchemaDefinition{{
		FunctionName:  "bad()",
		Selector:      "zz",
		OperationType: uniq("BAD_OP"),
		Actions:       []model.TxAction{model.ActionRequest},
	}}, nil)
	assert.Error(t, err)
}

func TestCatalogLookups(t *testing.T) {
	db := testDB(t)
	_, catalog, _, _, _ := testServices(t, db)

	_, err := catalog.GetSchemaBySelector(testCtx, "0xeeeeeeee")
	assert.True(t, errors.Is(err, errno.ErrSelectorUnknown))

	_, err = catalog.GetOperationType(testCtx, "NO_SUCH_OPERATION")
	assert.True(t, errors.Is(err, errno.ErrOperationTypeUnknown))

	// 未注册的选择器视为不支持任何动作，不报错
	ok, err := catalog.IsActionSupportedByFunction(testCtx, "0xeeeeeeee", model.ActionRequest)
	require.NoError(t, err)
	assert.False(t, ok)

	supported, err := catalog.IsOperationTypeSupported(testCtx, "NO_SUCH_OPERATION")
	require.NoError(t, err)
	assert.False(t, supported)
}

func TestEnsureOperationTypeKeepsConfig(t *testing.T) {
	db := testDB(t)
	_, catalog, _, _, _ := testServices(t, db)

	opType := uniq("STICKY_OP")
	first := []SchemaDefinition{{
		FunctionName:  "a()",
		Selector:      uniqSelector(),
		OperationType: opType,
		Actions:       []model.TxAction{model.ActionRequest},
	}}
	require.NoError(t, catalog.LoadDefinitions(testCtx, first, map[string]bool{opType: true}))

	// 再次加载同类型不覆盖已有的单槽位配置
	second := []SchemaDefinition{{
		FunctionName:  "b()",
		Selector:      uniqSelector(),
		OperationType: opType,
		Actions:       []model.TxAction{model.ActionRequest},
	}}
	require.NoError(t, catalog.LoadDefinitions(testCtx, second, map[string]bool{opType: false}))

	ot, err := catalog.GetOperationType(testCtx, opType)
	require.NoError(t, err)
	assert.True(t, ot.SingleSlot)
}
