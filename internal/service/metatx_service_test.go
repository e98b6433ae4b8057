package service

import (
	"crypto/ecdsa"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secureop-core/internal/model"
	"secureop-core/pkg/config"
	"secureop-core/pkg/errno"
	"secureop-core/pkg/signing"
)

func newSigner(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return key, ethcrypto.PubkeyToAddress(key.PublicKey).Hex()
}

// metaParams 按引擎当前配置组装一份会通过绑定校验的参数
func metaParams(action model.TxAction, nonce uint64, signer string) MetaTxParams {
	return MetaTxParams{
		ChainID:         testChainID,
		Nonce:           nonce,
		HandlerContract: testHandlerContract,
		HandlerSelector: metaHandlerSelectors[action],
		Action:          action,
		Deadline:        time.Now().Add(time.Hour).Unix(),
		MaxGasPrice:     decimal.Zero,
		Signer:          signer,
	}
}

// signExisting 为已存在的记录生成摘要并签名
func signExisting(t *testing.T, metatx *MetaTxService, txID uint64, p MetaTxParams, key *ecdsa.PrivateKey) MetaTxParams {
	t.Helper()
	digestHex, err := metatx.GenerateUnsignedForExisting(testCtx, txID, p)
	require.NoError(t, err)
	sig, err := signing.Sign(common.HexToHash(digestHex), key)
	require.NoError(t, err)
	p.Signature = sig
	return p
}

func TestMetaApproveLifecycle(t *testing.T) {
	db := testDB(t)
	registry, catalog, ledger, metatx, dispatcher := testServices(t, db)

	key, signerAddr := newSigner(t)
	selector, opType := registerFunction(t, catalog, dispatcher, false, true, noopHandler([]byte("meta-ok"), nil))
	grantActions(t, registry, selector, signerAddr, model.ActionRequest)

	// schema 开放自批，请求者本人签名不需要额外授权
	rec, err := ledger.RequestStandard(testCtx, signerAddr, targetAddr,
		decimal.NewFromInt(5), 21000, selector, nil, nil)
	require.NoError(t, err)

	nonce, err := metatx.GetNonce(testCtx, signerAddr)
	require.NoError(t, err)
	p := signExisting(t, metatx, rec.ID, metaParams(model.ActionMetaApprove, nonce, signerAddr), key)

	// 元交易审批不受时间锁约束
	done, err := metatx.ApproveWithMetaTx(testCtx, rec.ID, opType, p)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
	assert.Equal(t, []byte("meta-ok"), done.Result)

	// nonce 被消耗
	nonce, err = metatx.GetNonce(testCtx, signerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)

	// 同一签名重放: 记录已是终态
	_, err = metatx.ApproveWithMetaTx(testCtx, rec.ID, "", p)
	assert.True(t, errors.Is(err, errno.ErrTxNotPending))
}

func TestMetaVerificationPipeline(t *testing.T) {
	db := testDB(t)
	registry, catalog, ledger, metatx, dispatcher := testServices(t, db)

	key, signerAddr := newSigner(t)
	selector, _ := registerFunction(t, catalog, dispatcher, false, true, noopHandler(nil, nil))
	grantActions(t, registry, selector, signerAddr, model.ActionRequest)

	rec, err := ledger.RequestStandard(testCtx, signerAddr, targetAddr,
		decimal.Zero, 21000, selector, nil, nil)
	require.NoError(t, err)

	base := metaParams(model.ActionMetaApprove, 0, signerAddr)

	// 链 ID 不匹配
	p := base
	p.ChainID = 999
	p = signExisting(t, metatx, rec.ID, p, key)
	_, err = metatx.ApproveWithMetaTx(testCtx, rec.ID, "", p)
	assert.True(t, errors.Is(err, errno.ErrChainIDMismatch))

	// deadline 已过
	p = base
	p.Deadline = time.Now().Add(-time.Minute).Unix()
	p = signExisting(t, metatx, rec.ID, p, key)
	_, err = metatx.ApproveWithMetaTx(testCtx, rec.ID, "", p)
	assert.True(t, errors.Is(err, errno.ErrDeadlineExpired))

	// 处理合约不匹配
	p = base
	p.HandlerContract = "0x00000000000000000000000000000000000000B2"
	p = signExisting(t, metatx, rec.ID, p, key)
	_, err = metatx.ApproveWithMetaTx(testCtx, rec.ID, "", p)
	assert.True(t, errors.Is(err, errno.ErrHandlerMismatch))

	// 入口选择器与动作不对应
	p = base
	p.HandlerSelector = metaHandlerSelectors[model.ActionMetaCancel]
	p = signExisting(t, metatx, rec.ID, p, key)
	_, err = metatx.ApproveWithMetaTx(testCtx, rec.ID, "", p)
	assert.True(t, errors.Is(err, errno.ErrHandlerMismatch))

	// nonce 不相等
	p = signExisting(t, metatx, rec.ID, metaParams(model.ActionMetaApprove, 42, signerAddr), key)
	_, err = metatx.ApproveWithMetaTx(testCtx, rec.ID, "", p)
	assert.True(t, errors.Is(err, errno.ErrNonceMismatch))

	// 别人的私钥冒充请求者签名
	otherKey, _ := newSigner(t)
	p = signExisting(t, metatx, rec.ID, base, otherKey)
	_, err = metatx.ApproveWithMetaTx(testCtx, rec.ID, "", p)
	assert.True(t, errors.Is(err, errno.ErrSignerMismatch))

	// 端点与动作不匹配
	p = signExisting(t, metatx, rec.ID, metaParams(model.ActionMetaCancel, 0, signerAddr), key)
	_, err = metatx.ApproveWithMetaTx(testCtx, rec.ID, "", p)
	assert.True(t, errors.Is(err, errno.ErrActionNotSupported))

	// 全部拒绝都不消耗 nonce，记录仍然 PENDING
	nonce, err := metatx.GetNonce(testCtx, signerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), nonce)
	stored, err := ledger.GetTransaction(testCtx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
}

func TestMetaGasPriceCap(t *testing.T) {
	db := testDB(t)
	registry, catalog, ledger, metatx, dispatcher := testServices(t, db)

	key, signerAddr := newSigner(t)
	selector, _ := registerFunction(t, catalog, dispatcher, false, true, noopHandler(nil, nil))
	grantActions(t, registry, selector, signerAddr, model.ActionRequest)

	rec, err := ledger.RequestStandard(testCtx, signerAddr, targetAddr,
		decimal.Zero, 21000, selector, nil, nil)
	require.NoError(t, err)

	prev := config.Global.Engine.GasPrice
	config.Global.Engine.GasPrice = "100"
	defer func() { config.Global.Engine.GasPrice = prev }()

	// 当前 gas price 超过签名者上限
	p := metaParams(model.ActionMetaApprove, 0, signerAddr)
	p.MaxGasPrice = decimal.NewFromInt(50)
	p = signExisting(t, metatx, rec.ID, p, key)
	_, err = metatx.ApproveWithMetaTx(testCtx, rec.ID, "", p)
	assert.True(t, errors.Is(err, errno.ErrGasPriceExceeded))

	// 上限为 0 表示不设限
	p = signExisting(t, metatx, rec.ID, metaParams(model.ActionMetaApprove, 0, signerAddr), key)
	done, err := metatx.ApproveWithMetaTx(testCtx, rec.ID, "", p)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
}

func TestMetaApproveByAuthorizedSigner(t *testing.T) {
	db := testDB(t)
	registry, catalog, ledger, metatx, dispatcher := testServices(t, db)

	key, signerAddr := newSigner(t)
	selector, _ := registerFunction(t, catalog, dispatcher, false, false, noopHandler(nil, nil))
	grantActions(t, registry, selector, requesterAddr, model.ActionRequest)

	// 请求者是另一个钱包，签名者需要 SIGN_META_APPROVE 授权
	rec, err := ledger.RequestStandard(testCtx, requesterAddr, targetAddr,
		decimal.Zero, 21000, selector, nil, nil)
	require.NoError(t, err)

	p := signExisting(t, metatx, rec.ID, metaParams(model.ActionMetaApprove, 0, signerAddr), key)
	_, err = metatx.ApproveWithMetaTx(testCtx, rec.ID, "", p)
	assert.True(t, errors.Is(err, errno.ErrNoPermission))

	grantActions(t, registry, selector, signerAddr, model.ActionSignMetaApprove)

	p = signExisting(t, metatx, rec.ID, metaParams(model.ActionMetaApprove, 0, signerAddr), key)
	done, err := metatx.ApproveWithMetaTx(testCtx, rec.ID, "", p)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
}

func TestMetaSelfApprovalDisabled(t *testing.T) {
	db := testDB(t)
	registry, catalog, ledger, metatx, dispatcher := testServices(t, db)

	key, signerAddr := newSigner(t)
	selector, _ := registerFunction(t, catalog, dispatcher, false, false, noopHandler(nil, nil))
	grantActions(t, registry, selector, signerAddr, model.ActionRequest)

	rec, err := ledger.RequestStandard(testCtx, signerAddr, targetAddr,
		decimal.Zero, 21000, selector, nil, nil)
	require.NoError(t, err)

	// schema 不开放自批，请求者本人签名也要持有 SIGN_META_APPROVE
	p := signExisting(t, metatx, rec.ID, metaParams(model.ActionMetaApprove, 0, signerAddr), key)
	_, err = metatx.ApproveWithMetaTx(testCtx, rec.ID, "", p)
	assert.True(t, errors.Is(err, errno.ErrNoPermission))

	// 拒绝不消耗 nonce
	nonce, err := metatx.GetNonce(testCtx, signerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), nonce)

	grantActions(t, registry, selector, signerAddr, model.ActionSignMetaApprove)
	p = signExisting(t, metatx, rec.ID, metaParams(model.ActionMetaApprove, 0, signerAddr), key)
	done, err := metatx.ApproveWithMetaTx(testCtx, rec.ID, "", p)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
}

func TestMetaActionNotInSchema(t *testing.T) {
	db := testDB(t)
	registry, catalog, ledger, metatx, dispatcher := testServices(t, db)

	key, signerAddr := newSigner(t)
	// schema 没有声明 EXECUTE_META_APPROVE
	selector, _ := registerFunctionActions(t, catalog, dispatcher, false, true,
		[]model.TxAction{model.ActionRequest, model.ActionDelayedApproval, model.ActionMetaCancel, model.ActionSignMetaCancel},
		noopHandler(nil, nil))
	grantActions(t, registry, selector, signerAddr, model.ActionRequest)

	rec, err := ledger.RequestStandard(testCtx, signerAddr, targetAddr,
		decimal.Zero, 21000, selector, nil, nil)
	require.NoError(t, err)

	p := signExisting(t, metatx, rec.ID, metaParams(model.ActionMetaApprove, 0, signerAddr), key)
	_, err = metatx.ApproveWithMetaTx(testCtx, rec.ID, "", p)
	assert.True(t, errors.Is(err, errno.ErrActionNotSupported))

	// 拒绝不消耗 nonce，记录仍然 PENDING
	nonce, err := metatx.GetNonce(testCtx, signerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), nonce)

	// 声明过的元交易动作不受影响
	p = signExisting(t, metatx, rec.ID, metaParams(model.ActionMetaCancel, 0, signerAddr), key)
	cancelled, err := metatx.CancelWithMetaTx(testCtx, rec.ID, "", p)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
}

func TestMetaCancel(t *testing.T) {
	db := testDB(t)
	registry, catalog, ledger, metatx, dispatcher := testServices(t, db)

	key, signerAddr := newSigner(t)
	selector, opType := registerFunction(t, catalog, dispatcher, false, true, noopHandler(nil, nil))
	grantActions(t, registry, selector, signerAddr, model.ActionRequest)

	rec, err := ledger.RequestStandard(testCtx, signerAddr, targetAddr,
		decimal.Zero, 21000, selector, nil, nil)
	require.NoError(t, err)

	p := signExisting(t, metatx, rec.ID, metaParams(model.ActionMetaCancel, 0, signerAddr), key)
	cancelled, err := metatx.CancelWithMetaTx(testCtx, rec.ID, opType, p)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)

	nonce, err := metatx.GetNonce(testCtx, signerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)
}

func TestMetaRequestAndApprove(t *testing.T) {
	db := testDB(t)
	registry, catalog, _, metatx, dispatcher := testServices(t, db)

	key, signerAddr := newSigner(t)
	selector, opType := registerFunction(t, catalog, dispatcher, false, true, noopHandler([]byte("one-shot"), nil))
	grantActions(t, registry, selector, signerAddr, model.ActionRequest)

	in := TxRequestInput{
		Requester:     signerAddr,
		Target:        targetAddr,
		Value:         decimal.NewFromInt(7),
		GasLimit:      21000,
		ExecutionType: model.ExecStandard,
		Selector:      selector,
	}

	p := metaParams(model.ActionMetaRequestAndApprove, 0, signerAddr)
	digestHex, err := metatx.GenerateUnsignedForNew(testCtx, in, p)
	require.NoError(t, err)
	sig, err := signing.Sign(common.HexToHash(digestHex), key)
	require.NoError(t, err)
	p.Signature = sig

	// 创建与审批合并成一次迁移，跳过时间锁等待
	rec, err := metatx.RequestAndApprove(testCtx, in, p)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, rec.Status)
	assert.Equal(t, opType, rec.OperationType)
	assert.Equal(t, []byte("one-shot"), rec.Result)
	assert.NotZero(t, rec.ID)

	nonce, err := metatx.GetNonce(testCtx, signerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)
}

func TestMetaRequestAndApprovePermissionRequired(t *testing.T) {
	db := testDB(t)
	_, catalog, _, metatx, dispatcher := testServices(t, db)

	key, signerAddr := newSigner(t)
	selector, _ := registerFunction(t, catalog, dispatcher, false, true, noopHandler(nil, nil))

	in := TxRequestInput{
		Requester:     signerAddr,
		Target:        targetAddr,
		Value:         decimal.Zero,
		GasLimit:      21000,
		ExecutionType: model.ExecStandard,
		Selector:      selector,
	}

	p := metaParams(model.ActionMetaRequestAndApprove, 0, signerAddr)
	digestHex, err := metatx.GenerateUnsignedForNew(testCtx, in, p)
	require.NoError(t, err)
	sig, err := signing.Sign(common.HexToHash(digestHex), key)
	require.NoError(t, err)
	p.Signature = sig

	// 一次性路径同样走请求准入: 没有 REQUEST 授权就拒绝
	_, err = metatx.RequestAndApprove(testCtx, in, p)
	assert.True(t, errors.Is(err, errno.ErrNoPermission))
}

func TestMetaNonceConsumedOnDispatchFailure(t *testing.T) {
	db := testDB(t)
	registry, catalog, ledger, metatx, dispatcher := testServices(t, db)

	key, signerAddr := newSigner(t)
	boom := errno.ErrTimeLockOutOfBounds.WithMessage("rejected by handler")
	selector, _ := registerFunction(t, catalog, dispatcher, false, true, noopHandler(nil, boom))
	grantActions(t, registry, selector, signerAddr, model.ActionRequest)

	rec, err := ledger.RequestStandard(testCtx, signerAddr, targetAddr,
		decimal.Zero, 21000, selector, nil, nil)
	require.NoError(t, err)

	p := signExisting(t, metatx, rec.ID, metaParams(model.ActionMetaApprove, 0, signerAddr), key)
	failed, err := metatx.ApproveWithMetaTx(testCtx, rec.ID, "", p)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, failed.Status)

	// 签名已经用掉，失败的执行也消耗 nonce
	nonce, err := metatx.GetNonce(testCtx, signerAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), nonce)
}
