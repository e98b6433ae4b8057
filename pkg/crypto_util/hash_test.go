package crypto_util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateKeccak256(t *testing.T) {
	// 以太坊空输入测试向量
	got := CalculateKeccak256([]byte{})
	assert.Equal(t, "c5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470", got)
}

func TestCalculateSHA256(t *testing.T) {
	got := CalculateSHA256([]byte("abc"))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", got)
}

func TestSelectorFromSignature(t *testing.T) {
	tests := []struct {
		signature string
		want      string
	}{
		// 以太坊生态的已知选择器
		{"transfer(address,uint256)", "0xa9059cbb"},
		{"transferOwnership(address)", "0xf2fde38b"},
	}

	for _, tt := range tests {
		t.Run(tt.signature, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectorFromSignature(tt.signature))
		})
	}
}

func TestRoleHashDeterministic(t *testing.T) {
	h1 := RoleHash("OWNER_ROLE")
	h2 := RoleHash("OWNER_ROLE")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 2+64)
	assert.NotEqual(t, h1, RoleHash("BROADCASTER_ROLE"))
}

func TestCalculateBlake3Length(t *testing.T) {
	got := CalculateBlake3([]byte("payload"))
	assert.Len(t, got, 64)
}
