package merkle

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// TestFastHasherMatchesReferenceImplementation cross-checks the
// go:linkname scratch hasher against go-ethereum's straightforward,
// always-correct Keccak-256. The linkname trick pokes at sha3's
// internals to avoid an allocation per hash; any divergence here means
// that trick has silently broken against the vendored x/crypto version.
func TestFastHasherMatchesReferenceImplementation(t *testing.T) {
	h := NewHasher()
	left := h.HashBytes([]byte("left"))
	right := h.HashBytes([]byte("right"))

	want := crypto.Keccak256Hash(left[:], right[:])
	got := h.HashPair(left, right)
	require.Equal(t, Hash(want), got)

	wantLeaf := crypto.Keccak256Hash([]byte("leaf data"))
	gotLeaf := h.HashBytes([]byte("leaf data"))
	require.Equal(t, Hash(wantLeaf), gotLeaf)
}

func TestPristineTableRecurrence(t *testing.T) {
	p, err := NewPristineTable(8, 3)
	require.NoError(t, err)

	h := NewHasher()
	word, err := p.HashOf(3)
	require.NoError(t, err)
	require.Equal(t, h.HashBytes(make([]byte, 8)), word)

	for size := 4; size <= 8; size++ {
		prev, err := p.HashOf(size - 1)
		require.NoError(t, err)
		got, err := p.HashOf(size)
		require.NoError(t, err)
		require.Equal(t, h.HashPair(prev, prev), got)
	}
}

func TestPristineTableRejectsOutOfRange(t *testing.T) {
	p, err := NewPristineTable(8, 3)
	require.NoError(t, err)

	_, err = p.HashOf(2)
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = p.HashOf(9)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestNewPristineTableAcceptsFullAddressSpace(t *testing.T) {
	p, err := NewPristineTable(64, 3)
	require.NoError(t, err)
	root, err := p.HashOf(64)
	require.NoError(t, err)
	require.NotEqual(t, Hash{}, root)
}

func TestNewPristineTableValidatesGeometry(t *testing.T) {
	_, err := NewPristineTable(-1, 0)
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = NewPristineTable(4, 5)
	require.ErrorIs(t, err, ErrOutOfRange)

	_, err = NewPristineTable(65, 0)
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestHashDataMatchesRecursiveHalving(t *testing.T) {
	h := NewHasher()
	data := make([]byte, 32)
	for i := range data {
		data[i] = byte(i)
	}
	// log2Word = 3 (8-byte words), data is 32 bytes -> 4 words.
	got := HashData(h, data, 3)

	w0 := h.HashBytes(data[0:8])
	w1 := h.HashBytes(data[8:16])
	w2 := h.HashBytes(data[16:24])
	w3 := h.HashBytes(data[24:32])
	want := h.HashPair(h.HashPair(w0, w1), h.HashPair(w2, w3))
	require.Equal(t, want, got)
}

func TestHashDataSingleWordIsDirect(t *testing.T) {
	h := NewHasher()
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	require.Equal(t, h.HashBytes(data), HashData(h, data, 3))
}

func TestRollUpMatchesManualPath(t *testing.T) {
	h := NewHasher()
	leaf := h.HashBytes([]byte("leaf"))
	s0 := h.HashBytes([]byte("s0"))
	s1 := h.HashBytes([]byte("s1"))

	// addr = 0b10 at log2Target=0, log2Root=2: bit0=0, bit1=1
	addr := uint64(2)
	rolled := RollUp(h, addr, 0, 2, leaf, []Hash{s0, s1})

	level0 := h.HashPair(leaf, s0) // bit0 of addr is 0 -> leaf is left
	want := h.HashPair(s1, level0) // bit1 of addr is 1 -> level0 is right
	require.Equal(t, want, rolled)
}
