package replay

import (
	"bytes"
	"testing"

	"github.com/ethereum-optimism/asterisc-replay/merkle"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeLogRoundTrip(t *testing.T) {
	h := merkle.NewHasher()
	proof, err := merkle.NewProof(3, 6)
	require.NoError(t, err)
	proof.TargetAddress = 0x1000
	for i := range proof.Siblings {
		proof.Siblings[i] = h.HashBytes([]byte{byte(i + 1)})
	}
	proof.TargetHash = h.HashBytes(make([]byte, 8))
	proof.RootHash = merkle.RollUp(h, proof.TargetAddress, 3, 6, proof.TargetHash, proof.Siblings)

	log := AccessLog{
		Type:           LogType{HasProofs: true},
		RootHashBefore: proof.RootHash,
		Accesses: []Access{
			{
				Kind:      AccessRead,
				Address:   0x1000,
				Log2Size:  3,
				ReadBytes: make([]byte, 8),
				Proof:     &proof,
			},
		},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, EncodeLog(buf, log))

	decoded, err := DecodeLog(buf)
	require.NoError(t, err)
	require.Equal(t, log.Type, decoded.Type)
	require.Equal(t, log.RootHashBefore, decoded.RootHashBefore)
	require.Len(t, decoded.Accesses, 1)
	require.Equal(t, log.Accesses[0].Address, decoded.Accesses[0].Address)
	require.Equal(t, log.Accesses[0].ReadBytes, decoded.Accesses[0].ReadBytes)
	require.NotNil(t, decoded.Accesses[0].Proof)
	require.Equal(t, proof.RootHash, decoded.Accesses[0].Proof.RootHash)
	require.Equal(t, proof.Siblings, decoded.Accesses[0].Proof.Siblings)
}

func TestEncodeDecodeLogWithoutProofs(t *testing.T) {
	log := AccessLog{
		Type:           LogType{},
		RootHashBefore: merkle.Hash{0x01},
		Accesses: []Access{
			{Kind: AccessRead, Address: 0x8, Log2Size: 3, ReadBytes: make([]byte, 8)},
			{Kind: AccessWrite, Address: 0x8, Log2Size: 3, ReadBytes: make([]byte, 8), WrittenBytes: []byte{1, 0, 0, 0, 0, 0, 0, 0}},
		},
	}
	buf := &bytes.Buffer{}
	require.NoError(t, EncodeLog(buf, log))

	decoded, err := DecodeLog(buf)
	require.NoError(t, err)
	require.Len(t, decoded.Accesses, 2)
	require.Nil(t, decoded.Accesses[0].Proof)
	require.Equal(t, AccessWrite, decoded.Accesses[1].Kind)
	require.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0}, decoded.Accesses[1].WrittenBytes)
}

func TestEncodeLogRejectsMissingProofWhenDeclared(t *testing.T) {
	log := AccessLog{
		Type:           LogType{HasProofs: true},
		RootHashBefore: merkle.Hash{},
		Accesses: []Access{
			{Kind: AccessRead, Address: 0, Log2Size: 3, ReadBytes: make([]byte, 8)},
		},
	}
	buf := &bytes.Buffer{}
	err := EncodeLog(buf, log)
	require.ErrorIs(t, err, merkle.ErrInvalidArgument)
}

func TestEncodeLogRejectsWrongReadBytesLength(t *testing.T) {
	log := AccessLog{
		Accesses: []Access{
			{Kind: AccessRead, Address: 0, Log2Size: 3, ReadBytes: make([]byte, 4)},
		},
	}
	buf := &bytes.Buffer{}
	err := EncodeLog(buf, log)
	require.ErrorIs(t, err, merkle.ErrInvalidArgument)
}

func TestAccessJSONRoundTrip(t *testing.T) {
	a := Access{
		Kind:         AccessWrite,
		Address:      0x2000,
		Log2Size:     3,
		ReadBytes:    make([]byte, 8),
		WrittenBytes: []byte{0xAB, 0, 0, 0, 0, 0, 0, 0},
	}
	data, err := a.MarshalJSON()
	require.NoError(t, err)

	var decoded Access
	require.NoError(t, decoded.UnmarshalJSON(data))
	require.Equal(t, a.Kind, decoded.Kind)
	require.Equal(t, a.Address, decoded.Address)
	require.Equal(t, a.Log2Size, decoded.Log2Size)
	require.Equal(t, a.WrittenBytes, []byte(decoded.WrittenBytes))
}

func TestLogTypeEncodeDecodeRoundTrip(t *testing.T) {
	lt := LogType{HasProofs: true, HasAnnotations: false, HasLargeData: true}
	require.Equal(t, lt, decodeLogType(lt.encode()))
}
