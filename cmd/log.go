package cmd

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/log"
)

// Logger builds a logfmt-handler logger writing to w at the given level.
func Logger(w io.Writer, lvl log.Lvl) log.Logger {
	l := log.New()
	l.SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(w, log.LogfmtFormat())))
	return l
}

// HexU64 lazily formats a physical address for logging.
type HexU64 uint64

func (v HexU64) String() string {
	return fmt.Sprintf("%016x", uint64(v))
}

func (v HexU64) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}
