package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"

	"secureop-core/internal/model"
	"secureop-core/pkg/crypto_util"
	"secureop-core/pkg/errno"
)

func noopHandler(result []byte, err error) HandlerFunc {
	return func(ctx context.Context, dbtx *gorm.DB, rec *model.Transaction) ([]byte, error) {
		return result, err
	}
}

func TestDispatcherRegister(t *testing.T) {
	d := NewDispatcher()

	assert.NoError(t, d.Register("0xdeadbeef", noopHandler(nil, nil)))

	// 重复注册同一选择器
	err := d.Register("0xdeadbeef", noopHandler(nil, nil))
	assert.True(t, errors.Is(err, errno.ErrSelectorExists))

	// 非法选择器
	err = d.Register("not-a-selector", noopHandler(nil, nil))
	assert.Error(t, err)
}

func TestDispatchNone(t *testing.T) {
	d := NewDispatcher()
	rec := &model.Transaction{ExecutionType: model.ExecNone}

	result, err := d.Dispatch(context.Background(), nil, rec)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestDispatchRaw(t *testing.T) {
	d := NewDispatcher()
	payload := []byte{0x01, 0x02, 0x03}
	rec := &model.Transaction{ExecutionType: model.ExecRaw, ExecutionOptions: payload}

	result, err := d.Dispatch(context.Background(), nil, rec)
	assert.NoError(t, err)
	// RAW 结果是载荷的 keccak256
	assert.Equal(t, crypto_util.Keccak256Bytes(payload), result)
}

func TestDispatchStandard(t *testing.T) {
	d := NewDispatcher()

	called := false
	err := d.Register("0xa9059cbb", func(ctx context.Context, dbtx *gorm.DB, rec *model.Transaction) ([]byte, error) {
		called = true
		return []byte("ok"), nil
	})
	assert.NoError(t, err)

	rec := &model.Transaction{ExecutionType: model.ExecStandard, Selector: "0xa9059cbb"}
	result, err := d.Dispatch(context.Background(), nil, rec)
	assert.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, []byte("ok"), result)

	// 未注册的选择器
	rec2 := &model.Transaction{ExecutionType: model.ExecStandard, Selector: "0x11223344"}
	_, err = d.Dispatch(context.Background(), nil, rec2)
	assert.True(t, errors.Is(err, errno.ErrSelectorUnknown))
}

func TestDispatchHandlerError(t *testing.T) {
	d := NewDispatcher()
	boom := errno.ErrTimeLockOutOfBounds.WithMessage("out of bounds")
	assert.NoError(t, d.Register("0x44332211", noopHandler(nil, boom)))

	rec := &model.Transaction{ExecutionType: model.ExecStandard, Selector: "0x44332211"}
	_, err := d.Dispatch(context.Background(), nil, rec)
	assert.True(t, errors.Is(err, errno.ErrTimeLockOutOfBounds))
}

func TestBuiltinSelectorsDerived(t *testing.T) {
	// 内置选择器由函数签名推导，保证与目录注册一致
	assert.Equal(t, crypto_util.SelectorFromSignature("setTimeLockPeriod(uint256)"), SelectorSetTimeLockPeriod)
	assert.Equal(t, crypto_util.SelectorFromSignature("setEventForwarder(address)"), SelectorSetEventForwarder)
	assert.Len(t, SelectorSetTimeLockPeriod, 10)
}
