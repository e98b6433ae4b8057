package signing

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secureop-core/pkg/errno"
)

func TestSignRecoverRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	digest := Digest(sampleMeta(), sampleTx())
	sig, err := Sign(digest, key)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)

	recovered, err := RecoverSigner(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, addr, recovered)
}

func TestRecoverSignerAcceptsBothVEncodings(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	digest := Digest(sampleMeta(), sampleTx())

	sig, err := Sign(digest, key)
	require.NoError(t, err)

	// V=0/1 形式同样可恢复
	raw := make([]byte, len(sig))
	copy(raw, sig)
	raw[64] -= 27

	a1, err := RecoverSigner(digest, sig)
	require.NoError(t, err)
	a2, err := RecoverSigner(digest, raw)
	require.NoError(t, err)
	assert.Equal(t, a1, a2)
}

func TestRecoverSignerRejectsBadLength(t *testing.T) {
	digest := Digest(sampleMeta(), sampleTx())
	_, err := RecoverSigner(digest, []byte{0x01, 0x02})
	assert.ErrorIs(t, err, errno.ErrInvalidSignatureLength)
}

// 字段被篡改后，签名恢复出的地址不再是原签名者
func TestTamperedDigestChangesRecoveredSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	digest := Digest(sampleMeta(), sampleTx())
	sig, err := Sign(digest, key)
	require.NoError(t, err)

	tamperedTx := sampleTx()
	tamperedTx.Value = tamperedTx.Value.Add(tamperedTx.Value, tamperedTx.Value)
	tampered := Digest(sampleMeta(), tamperedTx)

	recovered, err := RecoverSigner(tampered, sig)
	if err == nil {
		assert.NotEqual(t, addr, recovered)
	}
}

func TestParseSelector(t *testing.T) {
	sel, err := ParseSelector("0x12345678")
	require.NoError(t, err)
	assert.Equal(t, [4]byte{0x12, 0x34, 0x56, 0x78}, sel)

	_, err = ParseSelector("0x1234")
	assert.Error(t, err)
	_, err = ParseSelector("zzzz")
	assert.Error(t, err)
}

func TestParseAddress(t *testing.T) {
	_, err := ParseAddress("0x0000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, errno.ErrZeroAddress)

	_, err = ParseAddress("not-an-address")
	assert.ErrorIs(t, err, errno.ErrInvalidAddress)

	addr, err := ParseAddress("0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), addr)
}
