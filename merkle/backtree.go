package merkle

import "fmt"

// BackTree incrementally folds an append-only stream of leaf hashes into
// a Merkle root. Pushing a leaf is arithmetically equivalent to
// incrementing a binary counter with carry: one complete subtree exists
// per set bit of leafCount, and a push merges two same-size subtrees into
// one wherever a carry occurs. It stores only log2(n) hashes and runs in
// O(log n) worst case, O(1) amortised per push.
type BackTree struct {
	log2Root  int
	log2Leaf  int
	leafCount uint64
	maxLeaves uint64
	context   []Hash // context[i] is meaningful iff bit i of leafCount is 1
	pristine  *PristineTable
}

// NewBackTree builds an empty streaming back-tree over 2^(log2Root-log2Leaf)
// leaves, each leaf covering 2^log2Leaf bytes, atomic words of
// 2^log2Word bytes.
func NewBackTree(log2Root, log2Leaf, log2Word int) (*BackTree, error) {
	if log2Word < 0 || log2Leaf < 0 || log2Root < 0 {
		return nil, fmt.Errorf("%w: log2 parameters must be non-negative", ErrOutOfRange)
	}
	if log2Leaf > log2Root {
		return nil, fmt.Errorf("%w: log2Leaf %d greater than log2Root %d", ErrOutOfRange, log2Leaf, log2Root)
	}
	if log2Word > log2Leaf {
		return nil, fmt.Errorf("%w: log2Word %d greater than log2Leaf %d", ErrOutOfRange, log2Word, log2Leaf)
	}
	if log2Root-log2Leaf > 63 {
		return nil, fmt.Errorf("%w: 2^%d leaves do not fit a uint64 leaf count", ErrOutOfRange, log2Root-log2Leaf)
	}
	pristine, err := NewPristineTable(log2Root, log2Word)
	if err != nil {
		return nil, err
	}
	depth := log2Root - log2Leaf
	return &BackTree{
		log2Root:  log2Root,
		log2Leaf:  log2Leaf,
		maxLeaves: uint64(1) << uint(depth),
		context:   make([]Hash, depth+1),
		pristine:  pristine,
	}, nil
}

// PushBack appends a new leaf hash to the stream.
func (t *BackTree) PushBack(leafHash Hash) error {
	if t.leafCount >= t.maxLeaves {
		return fmt.Errorf("%w: back-tree already holds the maximum of %d leaves", ErrOutOfRange, t.maxLeaves)
	}
	h := NewHasher()
	right := leafHash
	depth := t.log2Root - t.log2Leaf
	for i := 0; i <= depth; i++ {
		if t.leafCount&(uint64(1)<<uint(i)) != 0 {
			left := t.context[i]
			right = h.HashPair(left, right)
		} else {
			t.context[i] = right
			break
		}
	}
	t.leafCount++
	return nil
}

// LeafCount reports how many leaves have been pushed so far.
func (t *BackTree) LeafCount() uint64 {
	return t.leafCount
}

// RootHash returns the root of a full tree of 2^(log2Root-log2Leaf)
// leaves, where positions at or beyond LeafCount are pristine.
func (t *BackTree) RootHash() Hash {
	depth := t.log2Root - t.log2Leaf
	if t.leafCount == t.maxLeaves {
		return t.context[depth]
	}
	h := NewHasher()
	root, _ := t.pristine.HashOf(t.log2Leaf)
	for i := 0; i < depth; i++ {
		if t.leafCount&(uint64(1)<<uint(i)) != 0 {
			left := t.context[i]
			root = h.HashPair(left, root)
		} else {
			right, _ := t.pristine.HashOf(t.log2Leaf + i)
			root = h.HashPair(root, right)
		}
	}
	return root
}

// NextLeafProof returns a proof that the next-to-be-written leaf slot
// currently holds the pristine leaf hash.
func (t *BackTree) NextLeafProof() (Proof, error) {
	if t.leafCount >= t.maxLeaves {
		return Proof{}, fmt.Errorf("%w: back-tree is full", ErrOutOfRange)
	}
	depth := t.log2Root - t.log2Leaf
	h := NewHasher()
	pristineLeaf, err := t.pristine.HashOf(t.log2Leaf)
	if err != nil {
		return Proof{}, err
	}
	proof, err := NewProof(t.log2Leaf, t.log2Root)
	if err != nil {
		return Proof{}, err
	}
	proof.TargetAddress = t.leafCount << uint(t.log2Leaf)
	proof.TargetHash = pristineLeaf
	hash := pristineLeaf
	for i := 0; i < depth; i++ {
		if t.leafCount&(uint64(1)<<uint(i)) != 0 {
			left := t.context[i]
			if err := proof.SetSiblingAt(t.log2Leaf+i, left); err != nil {
				return Proof{}, err
			}
			hash = h.HashPair(left, hash)
		} else {
			right, _ := t.pristine.HashOf(t.log2Leaf + i)
			if err := proof.SetSiblingAt(t.log2Leaf+i, right); err != nil {
				return Proof{}, err
			}
			hash = h.HashPair(hash, right)
		}
	}
	proof.RootHash = hash
	return proof, nil
}
