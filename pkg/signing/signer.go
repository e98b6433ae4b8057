package signing

import (
	"crypto/ecdsa"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"secureop-core/pkg/errno"
)

// SignatureLength 签名固定长度 [R || S || V]
const SignatureLength = 65

// Sign 用私钥对摘要签名，返回 65 字节 [R || S || V]，V 为 27/28
func Sign(digest common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, err
	}
	// go-ethereum 返回 V=0/1，链下签名器惯例是 27/28
	sig[64] += 27
	return sig, nil
}

// RecoverSigner 从摘要和签名恢复签名者地址。
// 调用方必须自行校验返回地址非零且与声称的 signer 一致。
func RecoverSigner(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, errno.ErrInvalidSignatureLength.WithMessage(
			"signature must be %d bytes, got %d", SignatureLength, len(signature))
	}

	// 归一化 V: 接受 27/28 和 0/1 两种形式
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, errno.ErrSignatureRecovery.WithMessage(
			"invalid recovery id %d", sig[64])
	}

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, errno.ErrSignatureRecovery.WithMessage(
			"ecrecover: %v", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// ParseSelector 解析 "0xaabbccdd" 形式的 4 字节函数选择器
func ParseSelector(s string) ([4]byte, error) {
	var sel [4]byte
	raw := strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != 4 {
		return sel, errno.ErrInvalidAddress.WithMessage("malformed function selector %q", s)
	}
	copy(sel[:], b)
	return sel, nil
}

// ParseAddress 解析并校验 20 字节十六进制地址，零地址视为非法
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, errno.ErrInvalidAddress.WithMessage("malformed address %q", s)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, errno.ErrZeroAddress
	}
	return addr, nil
}
