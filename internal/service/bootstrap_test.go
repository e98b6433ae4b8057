package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secureop-core/internal/model"
	"secureop-core/pkg/crypto_util"
	"secureop-core/pkg/errno"
)

func TestBootstrapIdempotent(t *testing.T) {
	db := testDB(t)
	registry, catalog, _, _, dispatcher := testServices(t, db)

	boot := NewBootstrapper(db, catalog, registry, dispatcher)
	require.NoError(t, boot.Run(testCtx))

	// 第二次运行不报错，内置角色和 schema 不重复
	boot2 := NewBootstrapper(db, catalog, registry, NewDispatcher())
	require.NoError(t, boot2.Run(testCtx))

	has, err := registry.HasRole(testCtx, crypto_util.RoleHash(model.RoleNameOwner), walletA)
	require.NoError(t, err)
	assert.False(t, has)

	schema, err := catalog.GetSchemaBySelector(testCtx, SelectorSetTimeLockPeriod)
	require.NoError(t, err)
	assert.Equal(t, "ENGINE_SETTINGS", schema.OperationType)
	// 引擎自管理函数不开放请求者自批
	assert.False(t, schema.SelfApproval)

	ot, err := catalog.GetOperationType(testCtx, "ENGINE_SETTINGS")
	require.NoError(t, err)
	assert.True(t, ot.SingleSlot)
}

func TestSetTimeLockPeriodViaStateMachine(t *testing.T) {
	db := testDB(t)
	registry, catalog, ledger, _, dispatcher := testServices(t, db)

	boot := NewBootstrapper(db, catalog, registry, dispatcher)
	require.NoError(t, boot.Run(testCtx))

	// 未授权的钱包连请求都发不出
	_, err := ledger.RequestStandard(testCtx, strangerAddr, testHandlerContract,
		decimal.Zero, 21000, SelectorSetTimeLockPeriod,
		[]byte(`{"time_lock_period": 7200}`), nil)
	assert.True(t, errors.Is(err, errno.ErrNoPermission))

	grantActions(t, registry, SelectorSetTimeLockPeriod, requesterAddr,
		model.ActionRequest, model.ActionDelayedApproval)

	// 引擎配置变更也要走 请求 -> 时间锁 -> 审批
	rec, err := ledger.RequestStandard(testCtx, requesterAddr, testHandlerContract,
		decimal.Zero, 21000, SelectorSetTimeLockPeriod,
		[]byte(`{"time_lock_period": 7200}`), nil)
	require.NoError(t, err)
	forceRelease(t, db, rec.ID)

	done, err := ledger.TxDelayedApproval(testCtx, rec.ID, requesterAddr, "ENGINE_SETTINGS")
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, done.Status)

	var settings model.EngineSettings
	require.NoError(t, db.First(&settings).Error)
	assert.Equal(t, int64(7200), settings.TimeLockPeriod)

	// 复原，避免影响依赖 3600s 默认值的其他用例
	require.NoError(t, db.Model(&settings).Update("time_lock_period", 3600).Error)
}

func TestSetTimeLockPeriodOutOfBounds(t *testing.T) {
	db := testDB(t)
	registry, catalog, ledger, _, dispatcher := testServices(t, db)

	boot := NewBootstrapper(db, catalog, registry, dispatcher)
	require.NoError(t, boot.Run(testCtx))

	grantActions(t, registry, SelectorSetTimeLockPeriod, requesterAddr,
		model.ActionRequest, model.ActionDelayedApproval)

	rec, err := ledger.RequestStandard(testCtx, requesterAddr, testHandlerContract,
		decimal.Zero, 21000, SelectorSetTimeLockPeriod,
		[]byte(`{"time_lock_period": 1}`), nil)
	require.NoError(t, err)
	forceRelease(t, db, rec.ID)

	// 越界值被内置处理器拒绝，记录落 FAILED，配置不变
	failed, err := ledger.TxDelayedApproval(testCtx, rec.ID, requesterAddr, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, failed.Status)

	var settings model.EngineSettings
	require.NoError(t, db.First(&settings).Error)
	assert.Equal(t, int64(3600), settings.TimeLockPeriod)
}
