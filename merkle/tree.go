package merkle

import "fmt"

// nodeKey identifies a node by its depth from the root and its index
// among nodes at that depth (a generalized index with the leading 1
// stripped). Depth 0 is the root.
type nodeKey struct {
	depth uint8
	index uint64
}

// Tree maintains a Merkle commitment over a mutable 2^log2Root-byte
// address space whose pages (of 2^log2Leaf bytes each) are supplied
// externally, already hashed. Only nodes along paths that have been
// updated are stored; every other node is implicitly pristine at its
// depth. A hash-map from (depth, index) to hash is equivalent to (and,
// for an arbitrary, non-fixed geometry, preferable to) a pointer-linked
// radix tree of heap nodes, while supporting any (log2Root, log2Leaf,
// log2Word) geometry rather than a hard-coded 64-bit/4KiB-page split.
type Tree struct {
	log2Root int
	log2Leaf int
	pristine *PristineTable
	nodes    map[nodeKey]Hash
	dirty    map[nodeKey]struct{}
	updating bool
}

// NewTree builds an empty (fully pristine) tree.
func NewTree(log2Root, log2Leaf, log2Word int) (*Tree, error) {
	if log2Word < 0 || log2Leaf < 0 || log2Root < 0 {
		return nil, fmt.Errorf("%w: log2 parameters must be non-negative", ErrOutOfRange)
	}
	if log2Leaf > log2Root {
		return nil, fmt.Errorf("%w: log2Leaf %d greater than log2Root %d", ErrOutOfRange, log2Leaf, log2Root)
	}
	if log2Word > log2Leaf {
		return nil, fmt.Errorf("%w: log2Word %d greater than log2Leaf %d", ErrOutOfRange, log2Word, log2Leaf)
	}
	pristine, err := NewPristineTable(log2Root, log2Word)
	if err != nil {
		return nil, err
	}
	return &Tree{
		log2Root: log2Root,
		log2Leaf: log2Leaf,
		pristine: pristine,
		nodes:    make(map[nodeKey]Hash),
		dirty:    make(map[nodeKey]struct{}),
	}, nil
}

func (t *Tree) leafDepth() int {
	return t.log2Root - t.log2Leaf
}

// BeginUpdate opens a write-mode bracket. Between BeginUpdate and
// EndUpdate the root may be stale (UpdatePage batches its ancestor
// invalidation) and all queries fail with ErrDirty.
func (t *Tree) BeginUpdate() {
	t.updating = true
}

// EndUpdate recomputes every dirtied ancestor bottom-up and closes the
// write-mode bracket, restoring the invariant that every stored node's
// hash equals the hash of its (possibly implicit) children.
func (t *Tree) EndUpdate() error {
	for depth := t.leafDepth() - 1; depth >= 0; depth-- {
		for key := range t.dirty {
			if int(key.depth) != depth {
				continue
			}
			left := t.nodeHash(depth+1, key.index*2)
			right := t.nodeHash(depth+1, key.index*2+1)
			h := NewHasher()
			t.nodes[key] = h.HashPair(left, right)
			delete(t.dirty, key)
		}
	}
	t.updating = false
	if len(t.dirty) > 0 {
		return fmt.Errorf("%w: %d node(s) could not be reconciled by end_update", ErrDirty, len(t.dirty))
	}
	return nil
}

// UpdatePage replaces the hash of the page-sized subtree rooted at addr
// (which must be page-aligned) and marks its ancestors dirty.
func (t *Tree) UpdatePage(addr uint64, pageHash Hash) error {
	if !t.updating {
		return fmt.Errorf("%w: update_page called outside an update bracket", ErrDirty)
	}
	if t.log2Root < 64 && addr >= uint64(1)<<uint(t.log2Root) {
		return fmt.Errorf("%w: address 0x%x outside [0,2^%d)", ErrOutOfRange, addr, t.log2Root)
	}
	pageSize := uint64(1) << uint(t.log2Leaf)
	if addr%pageSize != 0 {
		return fmt.Errorf("%w: address 0x%x is not page-aligned to 2^%d", ErrInvalidArgument, addr, t.log2Leaf)
	}
	depth := t.leafDepth()
	index := addr >> uint(t.log2Leaf)
	t.nodes[nodeKey{depth: uint8(depth), index: index}] = pageHash
	for d := depth - 1; d >= 0; d-- {
		index >>= 1
		t.dirty[nodeKey{depth: uint8(d), index: index}] = struct{}{}
	}
	return nil
}

// RootHash returns the tree's current root hash.
func (t *Tree) RootHash() (Hash, error) {
	if t.updating {
		return Hash{}, fmt.Errorf("%w: tree queried while an update bracket is open", ErrDirty)
	}
	return t.nodeHash(0, 0), nil
}

// Proof returns a proof for the node at addr of size 2^log2TargetSize.
// log2TargetSize must be at least log2Leaf: the tree only stores page
// hashes, not the structure beneath them, so proofs cannot reach deeper
// than a page boundary.
func (t *Tree) Proof(addr uint64, log2TargetSize int) (Proof, error) {
	if t.updating {
		return Proof{}, fmt.Errorf("%w: tree queried while an update bracket is open", ErrDirty)
	}
	if log2TargetSize < t.log2Leaf || log2TargetSize > t.log2Root {
		return Proof{}, fmt.Errorf("%w: log2TargetSize %d outside [%d,%d]", ErrInvalidArgument, log2TargetSize, t.log2Leaf, t.log2Root)
	}
	if t.log2Root < 64 && addr >= uint64(1)<<uint(t.log2Root) {
		return Proof{}, fmt.Errorf("%w: address 0x%x outside [0,2^%d)", ErrOutOfRange, addr, t.log2Root)
	}
	mask := uint64(1)<<uint(log2TargetSize) - 1
	if addr&mask != 0 {
		return Proof{}, fmt.Errorf("%w: address 0x%x not aligned to 2^%d", ErrInvalidArgument, addr, log2TargetSize)
	}

	proof, err := NewProof(log2TargetSize, t.log2Root)
	if err != nil {
		return Proof{}, err
	}
	proof.TargetAddress = addr

	targetDepth := t.log2Root - log2TargetSize
	index := addr >> uint(log2TargetSize)
	proof.TargetHash = t.nodeHash(targetDepth, index)

	for depth := targetDepth; depth > 0; depth-- {
		level := t.log2Root - depth
		sibling := t.nodeHash(depth, index^1)
		if err := proof.SetSiblingAt(level, sibling); err != nil {
			return Proof{}, err
		}
		index >>= 1
	}
	proof.RootHash = t.nodeHash(0, 0)
	return proof, nil
}

// nodeHash returns the stored hash for (depth, index), or the pristine
// hash for its size if no node has ever been stored there.
func (t *Tree) nodeHash(depth int, index uint64) Hash {
	if h, ok := t.nodes[nodeKey{depth: uint8(depth), index: index}]; ok {
		return h
	}
	h, _ := t.pristine.HashOf(t.log2Root - depth)
	return h
}
