package signing

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func sampleMeta() MetaParams {
	return MetaParams{
		ChainID:         1,
		Nonce:           7,
		HandlerContract: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		HandlerSelector: [4]byte{0x12, 0x34, 0x56, 0x78},
		Action:          3,
		Deadline:        1767225600,
		MaxGasPrice:     big.NewInt(50_000_000_000),
		Signer:          common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}
}

func sampleTx() TxFields {
	return TxFields{
		TxID:             42,
		Requester:        common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Target:           common.HexToAddress("0x4444444444444444444444444444444444444444"),
		Value:            big.NewInt(1_000_000),
		GasLimit:         210000,
		OperationType:    "OWNERSHIP_TRANSFER",
		ExecutionType:    1,
		ExecutionOptions: []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

func TestDigestDeterministic(t *testing.T) {
	d1 := Digest(sampleMeta(), sampleTx())
	d2 := Digest(sampleMeta(), sampleTx())
	assert.Equal(t, d1, d2)
}

// 任何字段变化都必须产生不同摘要，否则签名可以被挪用
func TestDigestFieldSensitivity(t *testing.T) {
	base := Digest(sampleMeta(), sampleTx())

	tests := []struct {
		name   string
		mutate func(*MetaParams, *TxFields)
	}{
		{"nonce", func(m *MetaParams, _ *TxFields) { m.Nonce++ }},
		{"chain id", func(m *MetaParams, _ *TxFields) { m.ChainID = 5 }},
		{"action", func(m *MetaParams, _ *TxFields) { m.Action = 4 }},
		{"deadline", func(m *MetaParams, _ *TxFields) { m.Deadline++ }},
		{"max gas price", func(m *MetaParams, _ *TxFields) { m.MaxGasPrice = big.NewInt(1) }},
		{"handler selector", func(m *MetaParams, _ *TxFields) { m.HandlerSelector[0] ^= 0xff }},
		{"signer", func(m *MetaParams, _ *TxFields) {
			m.Signer = common.HexToAddress("0x9999999999999999999999999999999999999999")
		}},
		{"tx id", func(_ *MetaParams, tx *TxFields) { tx.TxID++ }},
		{"target", func(_ *MetaParams, tx *TxFields) {
			tx.Target = common.HexToAddress("0x8888888888888888888888888888888888888888")
		}},
		{"value", func(_ *MetaParams, tx *TxFields) { tx.Value = big.NewInt(2_000_000) }},
		{"operation type", func(_ *MetaParams, tx *TxFields) { tx.OperationType = "WITHDRAWAL" }},
		{"execution type", func(_ *MetaParams, tx *TxFields) { tx.ExecutionType = 2 }},
		{"execution options", func(_ *MetaParams, tx *TxFields) { tx.ExecutionOptions = []byte{0x00} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, tx := sampleMeta(), sampleTx()
			tt.mutate(&meta, &tx)
			assert.NotEqual(t, base, Digest(meta, tx))
		})
	}
}

func TestDigestNilBigIntsSafe(t *testing.T) {
	meta, tx := sampleMeta(), sampleTx()
	meta.MaxGasPrice = nil
	tx.Value = nil
	zeroMeta, zeroTx := sampleMeta(), sampleTx()
	zeroMeta.MaxGasPrice = big.NewInt(0)
	zeroTx.Value = big.NewInt(0)

	// nil 与 0 编码一致，避免调用方踩坑
	assert.Equal(t, Digest(zeroMeta, zeroTx), Digest(meta, tx))
}
