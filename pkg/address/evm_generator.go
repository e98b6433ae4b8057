package address

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"secureop-core/pkg/bip32"
)

// EVMAddressFromKey 从扩展密钥派生 EVM 风格地址 (keccak256(pubkey)[12:])。
// 签名者钱包和引擎内的地址表示保持同一套格式。
func EVMAddressFromKey(key bip32.ExtendedKey) (common.Address, error) {
	pub, err := key.ECPubKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("提取公钥失败: %v", err)
	}
	return ethcrypto.PubkeyToAddress(*pub.ToECDSA()), nil
}

// EVMAddressString 同 EVMAddressFromKey，返回 0x 前缀的校验和格式字符串
func EVMAddressString(key bip32.ExtendedKey) (string, error) {
	addr, err := EVMAddressFromKey(key)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}
