package signing

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DomainTag 摘要域分隔前缀，版本升级时必须更换
const DomainTag = "SECOP/1"

// TxFields 参与摘要的交易字段快照
// 对已存在的交易，取 TxRecord 落库时的值；对新请求 (requestAndApprove)，TxID 固定为 0
type TxFields struct {
	TxID             uint64
	Requester        common.Address
	Target           common.Address
	Value            *big.Int
	GasLimit         uint64
	OperationType    string
	ExecutionType    uint8
	ExecutionOptions []byte
}

// MetaParams 元交易签名域参数
type MetaParams struct {
	ChainID         uint64
	Nonce           uint64
	HandlerContract common.Address
	HandlerSelector [4]byte
	Action          uint8
	Deadline        int64
	MaxGasPrice     *big.Int
	Signer          common.Address
}

// Digest 计算元交易的规范摘要。
//
// 编码是定长字段顺序拼接后做 Keccak256：
//
//	DomainTag | chainID u64 | nonce u64 | handlerContract 20B | handlerSelector 4B |
//	action 1B | deadline u64 | maxGasPrice 32B | signer 20B |
//	txId u64 | requester 20B | target 20B | value 32B | gasLimit u64 |
//	keccak(operationType) 32B | executionType 1B | keccak(executionOptions) 32B
//
// 所有变长字段先行哈希，保证编码对字段元组是单射的；
// 任何一个字段变化都会改变摘要，从而使已有签名失效。
func Digest(meta MetaParams, tx TxFields) common.Hash {
	buf := make([]byte, 0, 256)
	buf = append(buf, []byte(DomainTag)...)
	buf = appendUint64(buf, meta.ChainID)
	buf = appendUint64(buf, meta.Nonce)
	buf = append(buf, meta.HandlerContract.Bytes()...)
	buf = append(buf, meta.HandlerSelector[:]...)
	buf = append(buf, meta.Action)
	buf = appendUint64(buf, uint64(meta.Deadline))
	buf = append(buf, bigTo32(meta.MaxGasPrice)...)
	buf = append(buf, meta.Signer.Bytes()...)

	buf = appendUint64(buf, tx.TxID)
	buf = append(buf, tx.Requester.Bytes()...)
	buf = append(buf, tx.Target.Bytes()...)
	buf = append(buf, bigTo32(tx.Value)...)
	buf = appendUint64(buf, tx.GasLimit)
	buf = append(buf, crypto.Keccak256([]byte(tx.OperationType))...)
	buf = append(buf, tx.ExecutionType)
	buf = append(buf, crypto.Keccak256(tx.ExecutionOptions)...)

	return crypto.Keccak256Hash(buf)
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func bigTo32(v *big.Int) []byte {
	out := make([]byte, 32)
	if v != nil {
		v.FillBytes(out)
	}
	return out
}
