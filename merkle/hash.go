// Package merkle implements the Merkle commitment primitives used to
// produce and verify a single root hash over a RISC-V machine's physical
// address space: a table of precomputed pristine-subtree hashes, a
// self-verifying inclusion proof, a streaming back-tree for append-only
// leaf sequences, and a sparse full address-space tree.
package merkle

import (
	"encoding/json"
	"fmt"
	"reflect"
	_ "unsafe" // for go:linkname below

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// Hash is a 32-byte Keccak-256 digest. It marshals to and from JSON as
// a 0x-prefixed hex string, by delegating to common.Hash, so proofs and
// reports read naturally at the tooling boundary.
type Hash [32]byte

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(common.Hash(h))
}

func (h *Hash) UnmarshalJSON(data []byte) error {
	var ch common.Hash
	if err := json.Unmarshal(data, &ch); err != nil {
		return err
	}
	*h = Hash(ch)
	return nil
}

// Hasher is a cheap, value-type scratch object used to combine node
// hashes. Construct (or reset) one per operation; it holds no state of
// its own.
//
// A freshly reconciled BackTree or Tree rehashes every touched node up
// to the root, and PristineTable precomputes a full column of
// subtree hashes at construction — both are tight loops of
// two-Keccak256-inputs-in, one-digest-out, with nothing else to do
// between calls. sha3.New256 allocates and zeroes a fresh state on
// every call, which shows up directly in those loops; Hasher instead
// drives one process-wide keccakState through the unexported reset/
// write/read triplet below, reusing it across every HashPair/HashBytes
// call. Safe because commitment updates never run concurrently with
// each other within a process.
type Hasher struct{}

// NewHasher returns a scratch hasher.
func NewHasher() Hasher {
	return Hasher{}
}

// HashPair returns H(left || right).
func (Hasher) HashPair(left, right Hash) (out Hash) {
	keccakReset(sharedKeccakState)
	_, _ = keccakWrite(sharedKeccakState, left[:])
	_, _ = keccakWrite(sharedKeccakState, right[:])
	_, _ = keccakRead(sharedKeccakState, out[:])
	return
}

// HashBytes returns H(data) for a single word's worth of bytes.
func (Hasher) HashBytes(data []byte) (out Hash) {
	keccakReset(sharedKeccakState)
	_, _ = keccakWrite(sharedKeccakState, data)
	_, _ = keccakRead(sharedKeccakState, out[:])
	return
}

// keccakState mirrors the layout of golang.org/x/crypto/sha3's private
// state type closely enough for go:linkname to reach its methods
// directly, skipping the sha3.State interface and its allocation.
type keccakState struct {
	a [25]uint64 // permutation state; remaining fields are unused here
}

//go:noescape
//go:linkname keccakReset golang.org/x/crypto/sha3.(*state).Reset
func keccakReset(st *keccakState)

//go:noescape
//go:linkname keccakWrite golang.org/x/crypto/sha3.(*state).Write
func keccakWrite(st *keccakState, p []byte) (n int, err error)

//go:noescape
//go:linkname keccakRead golang.org/x/crypto/sha3.(*state).Read
func keccakRead(st *keccakState, out []byte) (n int, err error)

// sharedKeccakState backs every Hasher value in the process; Hasher
// itself stays a zero-size value type so callers can construct one
// freely without caring that the real state lives here.
var sharedKeccakState = (*keccakState)(reflect.ValueOf(sha3.NewLegacyKeccak256()).UnsafePointer())

// HashData hashes a byte slice of size 2^log2Size down to the node-hash
// semantics of the tree: if the slice is no larger than a word
// (2^log2Word bytes) it is hashed directly, otherwise it is split in
// half and the two halves are hashed and combined recursively. len(data)
// must be a power of two no smaller than 1<<log2Word.
func HashData(h Hasher, data []byte, log2Word int) Hash {
	wordSize := 1 << uint(log2Word)
	if len(data) <= wordSize {
		return h.HashBytes(data)
	}
	half := len(data) / 2
	left := HashData(h, data[:half], log2Word)
	right := HashData(h, data[half:], log2Word)
	return h.HashPair(left, right)
}

// RollUp rolls a starting hash at (addr, log2Target) up to log2Root using
// the given sibling chain (ordered target-level..root-level-1, exactly as
// Proof.Siblings), following the bit decomposition of addr. It is the
// mechanism by which the replay verifier both checks a proof and derives
// a new root after a write, without needing a materialised tree.
func RollUp(h Hasher, addr uint64, log2Target, log2Root int, start Hash, siblings []Hash) Hash {
	rolling := start
	for level := log2Target; level < log2Root; level++ {
		sibling := siblings[level-log2Target]
		if (addr>>uint(level))&1 != 0 {
			rolling = h.HashPair(sibling, rolling)
		} else {
			rolling = h.HashPair(rolling, sibling)
		}
	}
	return rolling
}

// PristineTable precomputes the hash of an all-zero subtree for every
// power-of-two size between a word and the root of a tree geometry. It is
// built once per geometry and is immutable thereafter, so it may be
// shared freely by reference across components.
type PristineTable struct {
	log2Root int
	log2Word int
	hashes   []Hash // hashes[i] == pristine hash of a 2^(log2Word+i)-byte subtree
}

// NewPristineTable builds the pristine-subtree table for a tree covering
// 2^log2Root bytes with atomic words of 2^log2Word bytes.
func NewPristineTable(log2Root, log2Word int) (*PristineTable, error) {
	if log2Word < 0 || log2Root < 0 {
		return nil, fmt.Errorf("%w: log2 parameters must be non-negative", ErrOutOfRange)
	}
	if log2Word > log2Root {
		return nil, fmt.Errorf("%w: log2Word %d is greater than log2Root %d", ErrOutOfRange, log2Word, log2Root)
	}
	if log2Root > 64 {
		return nil, fmt.Errorf("%w: log2Root %d does not fit a 64-bit address space", ErrOutOfRange, log2Root)
	}
	h := NewHasher()
	n := log2Root - log2Word + 1
	hashes := make([]Hash, n)
	hashes[0] = h.HashBytes(make([]byte, 1<<uint(log2Word)))
	for i := 1; i < n; i++ {
		hashes[i] = h.HashPair(hashes[i-1], hashes[i-1])
	}
	return &PristineTable{log2Root: log2Root, log2Word: log2Word, hashes: hashes}, nil
}

// HashOf returns the pristine hash of a 2^log2Size-byte all-zero subtree.
func (p *PristineTable) HashOf(log2Size int) (Hash, error) {
	if log2Size < p.log2Word || log2Size > p.log2Root {
		return Hash{}, fmt.Errorf("%w: log2Size %d outside [%d,%d]", ErrOutOfRange, log2Size, p.log2Word, p.log2Root)
	}
	return p.hashes[log2Size-p.log2Word], nil
}
