package replay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func makeIstart(start uint64, m, io, e, r, w, x, ir, iw bool, did DeviceID) uint64 {
	istart := start
	if m {
		istart |= 1 << istartBitM
	}
	if io {
		istart |= 1 << istartBitIO
	}
	if e {
		istart |= 1 << istartBitE
	}
	if r {
		istart |= 1 << istartBitR
	}
	if w {
		istart |= 1 << istartBitW
	}
	if x {
		istart |= 1 << istartBitX
	}
	if ir {
		istart |= 1 << istartBitIR
	}
	if iw {
		istart |= 1 << istartBitIW
	}
	istart |= uint64(did) << istartDIDShift
	return istart
}

func TestBuildMockPMAMemory(t *testing.T) {
	pool := NewPMAPool(8)
	istart := makeIstart(0x80000000, true, false, false, true, true, true, false, false, DeviceMemory)
	pma, err := pool.BuildMockPMA(istart, 0x1000)
	require.NoError(t, err)
	require.Equal(t, uint64(0x80000000), pma.Start)
	require.True(t, pma.Flags.R)
	require.True(t, pma.Flags.W)
	require.True(t, pma.Flags.X)
	require.Equal(t, 1, pool.Len())
}

func TestBuildMockPMADevice(t *testing.T) {
	pool := NewPMAPool(8)
	istart := makeIstart(0x2000000, false, true, false, false, true, false, false, false, DeviceCLINT)
	pma, err := pool.BuildMockPMA(istart, 0x10000)
	require.NoError(t, err)
	require.Equal(t, DeviceCLINT, pma.Flags.DID)
	require.True(t, pma.Contains(0x2000008, 8))
	require.False(t, pma.Contains(0x2010000, 8))
}

func TestBuildMockPMARejectsNonOneHotDiscriminant(t *testing.T) {
	pool := NewPMAPool(8)
	istart := makeIstart(0, true, true, false, false, false, false, false, false, DeviceMemory)
	_, err := pool.BuildMockPMA(istart, 0x1000)
	require.ErrorIs(t, err, ErrInvalidFlags)
}

func TestBuildMockPMARejectsUnknownDeviceID(t *testing.T) {
	pool := NewPMAPool(8)
	istart := makeIstart(0, false, true, false, false, false, false, false, false, DeviceID(15))
	_, err := pool.BuildMockPMA(istart, 0x1000)
	require.ErrorIs(t, err, ErrInvalidFlags)
}

func TestBuildMockPMAPLIC(t *testing.T) {
	pool := NewPMAPool(8)
	istart := makeIstart(0x40100000, false, true, false, false, true, false, false, false, DevicePLIC)
	pma, err := pool.BuildMockPMA(istart, 0x1000)
	require.NoError(t, err)
	require.Equal(t, DevicePLIC, pma.Flags.DID)
}

func TestBuildMockPMARejectsNoneSet(t *testing.T) {
	pool := NewPMAPool(8)
	istart := makeIstart(0, false, false, false, false, false, false, false, false, DeviceNone)
	_, err := pool.BuildMockPMA(istart, 0x1000)
	require.ErrorIs(t, err, ErrInvalidFlags)
}

func TestPMAPoolExhaustion(t *testing.T) {
	pool := NewPMAPool(1)
	istart := makeIstart(0, false, false, true, false, false, false, false, false, DeviceNone)
	_, err := pool.BuildMockPMA(istart, 0)
	require.NoError(t, err)
	_, err = pool.BuildMockPMA(istart, 0)
	require.ErrorIs(t, err, ErrTooManyPMAs)
}

func TestPMAContainsEmptyEntry(t *testing.T) {
	pma := PMA{}
	require.False(t, pma.Contains(0, 8))
}
