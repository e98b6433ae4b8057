package crypto_util

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// CalculateSHA256 计算输入的 SHA256 哈希值。
func CalculateSHA256(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// CalculateKeccak256 计算输入的 Keccak256 哈希值。
// 这是以太坊使用的哈希算法。
func CalculateKeccak256(data []byte) string {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(data)
	return hex.EncodeToString(hash.Sum(nil))
}

// Keccak256Bytes 返回原始 32 字节 Keccak256 摘要。
func Keccak256Bytes(data []byte) []byte {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(data)
	return hash.Sum(nil)
}

// CalculateBlake3 计算输入的 Blake3 哈希值。
// Blake3 是一种现代、高性能的加密哈希函数。
func CalculateBlake3(data []byte) string {
	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// RoleHash 由角色名派生角色哈希标识 (keccak256, 0x 前缀十六进制)。
func RoleHash(name string) string {
	return "0x" + CalculateKeccak256([]byte(name))
}

// SelectorFromSignature 由函数签名派生 4 字节选择器。
// 例如 "transferOwnership(address)" -> "0xf2fde38b"
func SelectorFromSignature(signature string) string {
	digest := Keccak256Bytes([]byte(signature))
	return "0x" + hex.EncodeToString(digest[:4])
}
