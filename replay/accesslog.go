package replay

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/ethereum-optimism/asterisc-replay/merkle"
)

// AccessKind distinguishes a read from a write in an access record.
type AccessKind uint8

const (
	AccessRead  AccessKind = 0
	AccessWrite AccessKind = 1
)

func (k AccessKind) String() string {
	if k == AccessWrite {
		return "write"
	}
	return "read"
}

// LogType is the header bitfield describing what optional data the
// following access records carry.
type LogType struct {
	HasProofs      bool
	HasAnnotations bool
	HasLargeData   bool
}

const (
	logTypeProofsBit      = 1 << 0
	logTypeAnnotationsBit = 1 << 1
	logTypeLargeDataBit   = 1 << 2
)

func (lt LogType) encode() byte {
	var b byte
	if lt.HasProofs {
		b |= logTypeProofsBit
	}
	if lt.HasAnnotations {
		b |= logTypeAnnotationsBit
	}
	if lt.HasLargeData {
		b |= logTypeLargeDataBit
	}
	return b
}

func decodeLogType(b byte) LogType {
	return LogType{
		HasProofs:      b&logTypeProofsBit != 0,
		HasAnnotations: b&logTypeAnnotationsBit != 0,
		HasLargeData:   b&logTypeLargeDataBit != 0,
	}
}

// Access is a single logged read or write. For a write, ReadBytes holds
// the pre-image overwritten and WrittenBytes the post-image; for a
// read, WrittenBytes is empty. Proof, when present, attests to
// ReadBytes at Address in the root held before this access.
type Access struct {
	Kind         AccessKind
	Address      uint64
	Log2Size     int
	ReadBytes    []byte
	WrittenBytes []byte
	Proof        *merkle.Proof
}

// accessJSON is Access's wire shape for debug/report JSON dumps: hex
// addresses and sizes instead of decimal, matching the surrounding
// codebase's use of hexutil types at JSON boundaries.
type accessJSON struct {
	Kind         AccessKind     `json:"kind"`
	Address      hexutil.Uint64 `json:"address"`
	Log2Size     hexutil.Uint64 `json:"log2Size"`
	ReadBytes    hexutil.Bytes  `json:"readBytes"`
	WrittenBytes hexutil.Bytes  `json:"writtenBytes,omitempty"`
	Proof        *merkle.Proof  `json:"proof,omitempty"`
}

func (a Access) MarshalJSON() ([]byte, error) {
	return json.Marshal(accessJSON{
		Kind:         a.Kind,
		Address:      hexutil.Uint64(a.Address),
		Log2Size:     hexutil.Uint64(a.Log2Size),
		ReadBytes:    a.ReadBytes,
		WrittenBytes: a.WrittenBytes,
		Proof:        a.Proof,
	})
}

func (a *Access) UnmarshalJSON(data []byte) error {
	var aux accessJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	a.Kind = aux.Kind
	a.Address = uint64(aux.Address)
	a.Log2Size = int(aux.Log2Size)
	a.ReadBytes = aux.ReadBytes
	a.WrittenBytes = aux.WrittenBytes
	a.Proof = aux.Proof
	return nil
}

// AccessLog is a header plus an ordered sequence of access records, as
// produced by a recording state accessor and consumed by Verifier.
type AccessLog struct {
	Type           LogType
	RootHashBefore merkle.Hash
	Accesses       []Access
}

// EncodeLog serialises a log in the big-endian binary wire format.
func EncodeLog(w io.Writer, log AccessLog) error {
	buf := &bytes.Buffer{}
	buf.WriteByte(log.Type.encode())
	buf.Write(log.RootHashBefore[:])
	for i, a := range log.Accesses {
		if err := encodeAccess(buf, a, log.Type); err != nil {
			return fmt.Errorf("access %d: %w", i, err)
		}
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func encodeAccess(buf *bytes.Buffer, a Access, lt LogType) error {
	size := uint64(1) << uint(a.Log2Size)
	if a.Log2Size < 3 || a.Log2Size > 63 {
		return fmt.Errorf("%w: log2_size %d outside [3,63]", merkle.ErrOutOfRange, a.Log2Size)
	}
	if uint64(len(a.ReadBytes)) != size {
		return fmt.Errorf("%w: read_bytes length %d does not match 2^%d", merkle.ErrInvalidArgument, len(a.ReadBytes), a.Log2Size)
	}
	buf.WriteByte(byte(a.Kind))
	var addrBuf [8]byte
	binary.BigEndian.PutUint64(addrBuf[:], a.Address)
	buf.Write(addrBuf[:])
	buf.WriteByte(byte(a.Log2Size))
	buf.Write(a.ReadBytes)
	if a.Kind == AccessWrite {
		if uint64(len(a.WrittenBytes)) != size {
			return fmt.Errorf("%w: written_bytes length %d does not match 2^%d", merkle.ErrInvalidArgument, len(a.WrittenBytes), a.Log2Size)
		}
		buf.Write(a.WrittenBytes)
	}
	if lt.HasProofs {
		if a.Proof == nil {
			return fmt.Errorf("%w: log declares has_proofs but access has no proof", merkle.ErrInvalidArgument)
		}
		encodeProof(buf, *a.Proof)
	}
	return nil
}

func encodeProof(buf *bytes.Buffer, p merkle.Proof) {
	var addrBuf [8]byte
	binary.BigEndian.PutUint64(addrBuf[:], p.TargetAddress)
	buf.Write(addrBuf[:])
	buf.WriteByte(byte(p.Log2TargetSize))
	buf.WriteByte(byte(p.Log2RootSize))
	buf.Write(p.TargetHash[:])
	buf.Write(p.RootHash[:])
	for _, s := range p.Siblings {
		buf.Write(s[:])
	}
}

// DecodeLog parses a log in the big-endian binary wire format.
func DecodeLog(r io.Reader) (AccessLog, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufioByteReader{r}
	}
	typeByte, err := br.ReadByte()
	if err != nil {
		return AccessLog{}, fmt.Errorf("reading log_type: %w", err)
	}
	logType := decodeLogType(typeByte)

	var rootBefore merkle.Hash
	if _, err := io.ReadFull(r, rootBefore[:]); err != nil {
		return AccessLog{}, fmt.Errorf("reading root_hash_before: %w", err)
	}

	out := AccessLog{Type: logType, RootHashBefore: rootBefore}
	for i := 0; ; i++ {
		access, err := decodeAccess(r, br, logType)
		if err == io.EOF {
			break
		}
		if err != nil {
			return AccessLog{}, fmt.Errorf("access %d: %w", i, err)
		}
		out.Accesses = append(out.Accesses, access)
	}
	return out, nil
}

func decodeAccess(r io.Reader, br io.ByteReader, lt LogType) (Access, error) {
	kindByte, err := br.ReadByte()
	if err != nil {
		return Access{}, err // io.EOF propagates to signal end of stream
	}
	var addrBuf [8]byte
	if _, err := io.ReadFull(r, addrBuf[:]); err != nil {
		return Access{}, fmt.Errorf("reading address: %w", err)
	}
	sizeByte, err := br.ReadByte()
	if err != nil {
		return Access{}, fmt.Errorf("reading log2_size: %w", err)
	}
	log2Size := int(sizeByte)
	if log2Size < 3 || log2Size > 63 {
		return Access{}, fmt.Errorf("%w: log2_size %d outside [3,63]", merkle.ErrOutOfRange, log2Size)
	}
	size := uint64(1) << uint(log2Size)

	readBytes := make([]byte, size)
	if _, err := io.ReadFull(r, readBytes); err != nil {
		return Access{}, fmt.Errorf("reading read_bytes: %w", err)
	}

	a := Access{
		Kind:      AccessKind(kindByte),
		Address:   binary.BigEndian.Uint64(addrBuf[:]),
		Log2Size:  log2Size,
		ReadBytes: readBytes,
	}

	if a.Kind == AccessWrite {
		writtenBytes := make([]byte, size)
		if _, err := io.ReadFull(r, writtenBytes); err != nil {
			return Access{}, fmt.Errorf("reading written_bytes: %w", err)
		}
		a.WrittenBytes = writtenBytes
	}

	if lt.HasProofs {
		proof, err := decodeProof(r)
		if err != nil {
			return Access{}, fmt.Errorf("reading proof: %w", err)
		}
		a.Proof = &proof
	}
	return a, nil
}

func decodeProof(r io.Reader) (merkle.Proof, error) {
	var addrBuf [8]byte
	if _, err := io.ReadFull(r, addrBuf[:]); err != nil {
		return merkle.Proof{}, err
	}
	var sizesBuf [2]byte
	if _, err := io.ReadFull(r, sizesBuf[:]); err != nil {
		return merkle.Proof{}, err
	}
	log2TargetSize := int(sizesBuf[0])
	log2RootSize := int(sizesBuf[1])

	proof, err := merkle.NewProof(log2TargetSize, log2RootSize)
	if err != nil {
		return merkle.Proof{}, err
	}
	proof.TargetAddress = binary.BigEndian.Uint64(addrBuf[:])

	if _, err := io.ReadFull(r, proof.TargetHash[:]); err != nil {
		return merkle.Proof{}, err
	}
	if _, err := io.ReadFull(r, proof.RootHash[:]); err != nil {
		return merkle.Proof{}, err
	}
	for i := range proof.Siblings {
		if _, err := io.ReadFull(r, proof.Siblings[i][:]); err != nil {
			return merkle.Proof{}, err
		}
	}
	return proof, nil
}

// bufioByteReader adapts an io.Reader without ReadByte support. Access
// logs are normally decoded from a bytes.Reader or bufio.Reader, both
// of which already implement io.ByteReader; this exists only to keep
// DecodeLog total over the io.Reader interface.
type bufioByteReader struct {
	io.Reader
}

func (b bufioByteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.Reader, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}
