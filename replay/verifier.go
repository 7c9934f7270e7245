package replay

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ethereum-optimism/asterisc-replay/merkle"
)

// Verifier presents an interpreter with the same read/write primitives
// a live machine offers, but backs them by consulting a pre-recorded
// access log instead of real state. It validates each access's shape
// and (optionally) its Merkle proof, and rolls the commitment root
// forward as writes are replayed.
type Verifier struct {
	accesses     []Access
	verifyProofs bool
	oneBased     bool
	cursor       int
	currentRoot  merkle.Hash
	hasher       merkle.Hasher
	pmas         *PMAPool
}

// NewVerifier builds a verifier over log, which must declare has_proofs
// if verifyProofs is requested. When one-based is true, error messages
// report 1-based access indices.
func NewVerifier(log AccessLog, verifyProofs, oneBased bool, pmaCapacity int) (*Verifier, error) {
	if verifyProofs && !log.Type.HasProofs {
		return nil, fmt.Errorf("%w: log has no proofs", merkle.ErrInvalidArgument)
	}
	v := &Verifier{
		accesses:     log.Accesses,
		verifyProofs: verifyProofs,
		oneBased:     oneBased,
		currentRoot:  log.RootHashBefore,
		hasher:       merkle.NewHasher(),
		pmas:         NewPMAPool(pmaCapacity),
	}
	if len(v.accesses) > 0 && verifyProofs {
		first := v.accesses[0]
		if first.Proof == nil {
			return nil, fmt.Errorf("%w: initial access has no proof", merkle.ErrInvalidArgument)
		}
		v.currentRoot = first.Proof.RootHash
	}
	return v, nil
}

// RootHash reports the commitment root before the next unconsumed
// access (equivalently, after the last consumed one). Writes move the
// root only when proofs are verified; without proof verification it
// stays at the root the verifier was built with.
func (v *Verifier) RootHash() merkle.Hash {
	return v.currentRoot
}

// Cursor reports how many accesses have been consumed so far.
func (v *Verifier) Cursor() int {
	return v.cursor
}

// Finish signals that replay is complete. It fails with
// ErrTooManyAccesses if the log has unconsumed records remaining.
func (v *Verifier) Finish() error {
	if v.cursor != len(v.accesses) {
		return fmt.Errorf("%w: %d unused access(es) starting at index %d", ErrTooManyAccesses, len(v.accesses)-v.cursor, v.reportIndex(v.cursor))
	}
	return nil
}

func (v *Verifier) reportIndex(i int) int {
	if v.oneBased {
		return i + 1
	}
	return i
}

// ReadWord checks a logged word read at paligned (8-byte aligned) and
// returns the value read.
func (v *Verifier) ReadWord(paligned uint64) (uint64, error) {
	data, err := v.checkRead(paligned, 3)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(data), nil
}

// WriteWord checks a logged word write at paligned and advances the
// root using the log's recorded written bytes.
func (v *Verifier) WriteWord(paligned uint64, value uint64) error {
	var val [8]byte
	binary.BigEndian.PutUint64(val[:], value)
	return v.checkWrite(paligned, val[:], 3)
}

// ReadBlock checks a logged block read of 2^log2Size bytes at paligned.
func (v *Verifier) ReadBlock(paligned uint64, log2Size int) ([]byte, error) {
	return v.checkRead(paligned, log2Size)
}

// WriteBlock checks a logged block write of 2^log2Size bytes at
// paligned with the given post-image.
func (v *Verifier) WriteBlock(paligned uint64, value []byte, log2Size int) error {
	return v.checkWrite(paligned, value, log2Size)
}

// WriteSubWord performs a read-modify-write of the 8-byte word
// containing a sub-word write of fewer than 8 bytes: it checks the
// superfluous read of the whole word, splices in the new bytes at the
// requested offset, and checks the resulting word write. value must
// have length smaller than 8; the caller supplies the offset of value
// within the containing word (0..7).
func (v *Verifier) WriteSubWord(paligned uint64, offset int, value []byte) error {
	if len(value) >= 8 || offset < 0 || offset+len(value) > 8 {
		return fmt.Errorf("%w: sub-word write of %d bytes at offset %d does not fit an 8-byte word", merkle.ErrInvalidArgument, len(value), offset)
	}
	old, err := v.checkRead(paligned, 3)
	if err != nil {
		return err
	}
	merged := append([]byte(nil), old...)
	copy(merged[offset:], value)
	return v.checkWrite(paligned, merged, 3)
}

// SetFlag performs the read-modify-write of a status word with mask
// bits ORed in, always emitting the superfluous read that set-flag
// operations require for byte-for-byte replay reproducibility.
func (v *Verifier) SetFlag(paligned uint64, mask uint64) error {
	old, err := v.checkRead(paligned, 3)
	if err != nil {
		return err
	}
	newVal := binary.BigEndian.Uint64(old) | mask
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], newVal)
	return v.checkWrite(paligned, buf[:], 3)
}

// ClearFlag is SetFlag's complement: it ANDs mask's complement in.
func (v *Verifier) ClearFlag(paligned uint64, mask uint64) error {
	old, err := v.checkRead(paligned, 3)
	if err != nil {
		return err
	}
	newVal := binary.BigEndian.Uint64(old) &^ mask
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], newVal)
	return v.checkWrite(paligned, buf[:], 3)
}

// FindPMA enumerates PMA board entries in ascending index order,
// reading istart/ilength pairs from the log at the given shadow
// addresses, until it finds one covering addr or reaches a zero-length
// terminator. This enumeration order is load-bearing: replays of logs
// produced by a different order fail.
func (v *Verifier) FindPMA(addr uint64, size uint64, pmaIstartAddr, pmaIlengthAddr func(i int) uint64) (PMA, error) {
	for i := 0; ; i++ {
		istart, err := v.ReadWord(pmaIstartAddr(i))
		if err != nil {
			return PMA{}, err
		}
		ilength, err := v.ReadWord(pmaIlengthAddr(i))
		if err != nil {
			return PMA{}, err
		}
		pma, err := v.pmas.BuildMockPMA(istart, ilength)
		if err != nil {
			return PMA{}, err
		}
		if ilength == 0 {
			return pma, nil
		}
		if pma.Contains(addr, size) {
			return pma, nil
		}
	}
}

// checkRead validates and consumes the next access as a read of
// 2^log2Size bytes at paligned, returning the recorded bytes.
func (v *Verifier) checkRead(paligned uint64, log2Size int) ([]byte, error) {
	access, err := v.checkShape(AccessRead, paligned, log2Size)
	if err != nil {
		return nil, err
	}
	if v.verifyProofs {
		if err := v.checkProof(access, access.ReadBytes); err != nil {
			return nil, err
		}
	}
	v.cursor++
	return access.ReadBytes, nil
}

// checkWrite validates and consumes the next access as a write of
// 2^log2Size bytes at paligned with written-bytes value, and, when
// verifying proofs, rolls the root forward using the written bytes.
func (v *Verifier) checkWrite(paligned uint64, value []byte, log2Size int) error {
	access, err := v.checkShape(AccessWrite, paligned, log2Size)
	if err != nil {
		return err
	}
	if v.verifyProofs {
		if err := v.checkProof(access, access.ReadBytes); err != nil {
			return err
		}
	}
	if !bytes.Equal(access.WrittenBytes, value) {
		return fmt.Errorf("%w: value written in access %d does not match log", ErrValueMismatch, v.reportIndex(v.cursor))
	}
	if v.verifyProofs {
		newTarget := merkle.HashData(v.hasher, access.WrittenBytes, 3)
		v.currentRoot = merkle.RollUp(v.hasher, access.Proof.TargetAddress, access.Proof.Log2TargetSize, access.Proof.Log2RootSize, newTarget, access.Proof.Siblings)
	}
	v.cursor++
	return nil
}

// checkShape performs the advance and shape checks common to every
// primitive call, without consuming the access (the caller advances
// the cursor once proof/value checks, if any, have also passed).
func (v *Verifier) checkShape(kind AccessKind, paligned uint64, log2Size int) (Access, error) {
	if v.cursor >= len(v.accesses) {
		return Access{}, fmt.Errorf("%w: at access %d", ErrTooFewAccesses, v.reportIndex(v.cursor))
	}
	if log2Size < 3 || log2Size > 63 {
		return Access{}, fmt.Errorf("%w: invalid access size 2^%d", merkle.ErrInvalidArgument, log2Size)
	}
	if paligned&(uint64(1)<<uint(log2Size)-1) != 0 {
		return Access{}, fmt.Errorf("%w: address 0x%x not aligned to 2^%d", merkle.ErrInvalidArgument, paligned, log2Size)
	}
	access := v.accesses[v.cursor]
	if access.Kind != kind {
		return Access{}, fmt.Errorf("%w: expected access %d to %s", merkle.ErrInvalidArgument, v.reportIndex(v.cursor), kind)
	}
	if access.Log2Size != log2Size {
		return Access{}, fmt.Errorf("%w: expected access %d to touch 2^%d bytes, log has 2^%d", merkle.ErrInvalidArgument, v.reportIndex(v.cursor), log2Size, access.Log2Size)
	}
	if uint64(len(access.ReadBytes)) != uint64(1)<<uint(log2Size) {
		return Access{}, fmt.Errorf("%w: access %d read_bytes has wrong length", merkle.ErrInvalidArgument, v.reportIndex(v.cursor))
	}
	if kind == AccessWrite && uint64(len(access.WrittenBytes)) != uint64(1)<<uint(log2Size) {
		return Access{}, fmt.Errorf("%w: access %d written_bytes has wrong length", merkle.ErrInvalidArgument, v.reportIndex(v.cursor))
	}
	if access.Address != paligned {
		return Access{}, fmt.Errorf("%w: expected access %d at address 0x%x, log has 0x%x", merkle.ErrInvalidArgument, v.reportIndex(v.cursor), paligned, access.Address)
	}
	return access, nil
}

// checkProof validates an access's proof against the current root and
// the recorded pre-image bytes.
func (v *Verifier) checkProof(access Access, preimage []byte) error {
	if access.Proof == nil {
		return fmt.Errorf("%w: access %d has no proof", merkle.ErrInvalidArgument, v.reportIndex(v.cursor))
	}
	proof := access.Proof
	if proof.TargetAddress != access.Address {
		return fmt.Errorf("%w: access %d proof address does not match access address", ErrProofMismatch, v.reportIndex(v.cursor))
	}
	if proof.RootHash != v.currentRoot {
		return fmt.Errorf("%w: access %d proof root does not match current root", ErrProofMismatch, v.reportIndex(v.cursor))
	}
	target := merkle.HashData(v.hasher, preimage, 3)
	if target != proof.TargetHash {
		return fmt.Errorf("%w: access %d value does not match proof target hash", ErrValueMismatch, v.reportIndex(v.cursor))
	}
	rolled := merkle.RollUp(v.hasher, proof.TargetAddress, proof.Log2TargetSize, proof.Log2RootSize, target, proof.Siblings)
	if rolled != proof.RootHash {
		return fmt.Errorf("%w: access %d sibling chain does not reproduce root", ErrProofMismatch, v.reportIndex(v.cursor))
	}
	return nil
}
