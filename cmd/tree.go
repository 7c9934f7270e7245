package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/ioutil"
	"github.com/ethereum-optimism/optimism/op-service/jsonutil"

	"github.com/ethereum-optimism/asterisc-replay/merkle"
)

var (
	TreeDumpFlag = &cli.PathFlag{
		Name:     "dump",
		Usage:    "Path to a raw memory dump, page-aligned and a multiple of the page size.",
		Required: true,
	}
	TreeLog2RootFlag = &cli.IntFlag{
		Name:  "log2-root",
		Usage: "Log2 of the address space size in bytes.",
		Value: 64,
	}
	TreeLog2LeafFlag = &cli.IntFlag{
		Name:  "log2-leaf",
		Usage: "Log2 of the page size in bytes.",
		Value: 12,
	}
	TreeLog2WordFlag = &cli.IntFlag{
		Name:  "log2-word",
		Usage: "Log2 of the atomic word size in bytes.",
		Value: 3,
	}
	TreeProofAddressFlag = &cli.Uint64Flag{
		Name:  "proof-address",
		Usage: "If set, also compute a proof for the node covering this address.",
	}
	TreeProofLog2SizeFlag = &cli.IntFlag{
		Name:  "proof-log2-size",
		Usage: "Log2 size of the node to prove, used together with --proof-address.",
		Value: 12,
	}
	TreeOutputFlag = &cli.PathFlag{
		Name:  "output",
		Usage: "Path to write the JSON tree report to.",
	}
)

// TreeReport summarizes a commitment computed over a memory dump.
type TreeReport struct {
	RootHash common.Hash   `json:"rootHash"`
	Proof    *merkle.Proof `json:"proof,omitempty"`
}

// Tree builds a full address-space commitment over a page-aligned
// memory dump and reports its root hash, optionally producing a proof
// for a single node. It exists as offline tooling for a recording state
// accessor: given raw page bytes, it shows how a Tree is populated and
// queried.
func Tree(ctx *cli.Context) error {
	l := Logger(os.Stderr, log.LvlInfo)

	log2Root := ctx.Int(TreeLog2RootFlag.Name)
	log2Leaf := ctx.Int(TreeLog2LeafFlag.Name)
	log2Word := ctx.Int(TreeLog2WordFlag.Name)

	t, err := merkle.NewTree(log2Root, log2Leaf, log2Word)
	if err != nil {
		return fmt.Errorf("failed to construct tree: %w", err)
	}

	f, err := ioutil.OpenDecompressed(ctx.Path(TreeDumpFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to open memory dump: %w", err)
	}
	defer f.Close()

	pageSize := 1 << uint(log2Leaf)
	page := make([]byte, pageSize)
	h := merkle.NewHasher()

	t.BeginUpdate()
	var addr uint64
	var pages int
	for {
		if _, err := io.ReadFull(f, page); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read page at 0x%x: %w", addr, err)
		}
		pageHash := merkle.HashData(h, page, log2Word)
		l.Debug("updating page", "address", HexU64(addr))
		if err := t.UpdatePage(addr, pageHash); err != nil {
			return fmt.Errorf("failed to update page at 0x%x: %w", addr, err)
		}
		addr += uint64(pageSize)
		pages++
	}
	if err := t.EndUpdate(); err != nil {
		return fmt.Errorf("failed to reconcile tree: %w", err)
	}

	root, err := t.RootHash()
	if err != nil {
		return fmt.Errorf("failed to read root hash: %w", err)
	}
	l.Info("tree built", "pages", pages, "root", common.Hash(root))

	report := TreeReport{RootHash: common.Hash(root)}
	if ctx.IsSet(TreeProofAddressFlag.Name) {
		proof, err := t.Proof(ctx.Uint64(TreeProofAddressFlag.Name), ctx.Int(TreeProofLog2SizeFlag.Name))
		if err != nil {
			return fmt.Errorf("failed to build proof: %w", err)
		}
		report.Proof = &proof
	}

	if outPath := ctx.Path(TreeOutputFlag.Name); outPath != "" {
		if err := jsonutil.WriteJSON(outPath, report); err != nil {
			return fmt.Errorf("failed to write tree report: %w", err)
		}
	}
	return nil
}

var TreeCommand = &cli.Command{
	Name:        "tree",
	Usage:       "Build a Merkle commitment over a page-aligned memory dump.",
	Description: "Build a full address-space Merkle tree over a page-aligned memory dump and report its root hash, optionally with a proof for a single node.",
	Action:      Tree,
	Flags: []cli.Flag{
		TreeDumpFlag,
		TreeLog2RootFlag,
		TreeLog2LeafFlag,
		TreeLog2WordFlag,
		TreeProofAddressFlag,
		TreeProofLog2SizeFlag,
		TreeOutputFlag,
	},
}
