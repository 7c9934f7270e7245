package cmd

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/pkg/profile"

	"github.com/ethereum-optimism/optimism/op-service/ioutil"
	"github.com/ethereum-optimism/optimism/op-service/jsonutil"

	"github.com/ethereum-optimism/asterisc-replay/replay"
)

var OutFilePerm = os.FileMode(0o644)

var (
	ReplayLogFlag = &cli.PathFlag{
		Name:     "log",
		Usage:    "Path to the binary access log to replay.",
		Required: true,
	}
	ReplayVerifyProofsFlag = &cli.BoolFlag{
		Name:  "verify-proofs",
		Usage: "Verify each access's Merkle proof against the rolling root.",
		Value: true,
	}
	ReplayOneBasedFlag = &cli.BoolFlag{
		Name:  "one-based",
		Usage: "Report 1-based access indices in error messages.",
	}
	ReplayPMACapacityFlag = &cli.IntFlag{
		Name:  "pma-capacity",
		Usage: "Maximum number of mock PMA descriptors the replay may synthesize.",
		Value: 32,
	}
	ReplayOutputFlag = &cli.PathFlag{
		Name:  "output",
		Usage: "Path to write the JSON replay report to.",
	}
	ReplayPProfCPU = &cli.BoolFlag{
		Name:  "cpuprofile",
		Usage: "Captures a CPU profile of the replay and writes it to cpu.pprof.",
	}
)

// Report summarizes a completed replay for downstream tooling.
type Report struct {
	RootHashBefore common.Hash `json:"rootHashBefore"`
	RootHashAfter  common.Hash `json:"rootHashAfter"`
	AccessCount    int         `json:"accessCount"`
}

// Replay loads an access log from disk and drives a replay.Verifier
// through every recorded access, using each access's own kind,
// address, and size as the "primitive call" an external interpreter
// would otherwise make. This offline mode lets a log be checked for
// internal consistency — every proof chains, every written value
// matches its record — without requiring a live instruction interpreter.
func Replay(ctx *cli.Context) error {
	if ctx.Bool(ReplayPProfCPU.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}

	l := Logger(os.Stderr, log.LvlInfo)

	f, err := ioutil.OpenDecompressed(ctx.Path(ReplayLogFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to open access log: %w", err)
	}
	defer f.Close()

	accessLog, err := replay.DecodeLog(f)
	if err != nil {
		return fmt.Errorf("failed to decode access log: %w", err)
	}

	verifyProofs := ctx.Bool(ReplayVerifyProofsFlag.Name)
	v, err := replay.NewVerifier(accessLog, verifyProofs, ctx.Bool(ReplayOneBasedFlag.Name), ctx.Int(ReplayPMACapacityFlag.Name))
	if err != nil {
		return fmt.Errorf("failed to initialize verifier: %w", err)
	}

	rootBefore := v.RootHash()
	for i, access := range accessLog.Accesses {
		l.Debug("replaying access", "index", i, "kind", access.Kind, "address", HexU64(access.Address))
		switch access.Kind {
		case replay.AccessRead:
			if _, err := v.ReadBlock(access.Address, access.Log2Size); err != nil {
				return fmt.Errorf("access %d: %w", i, err)
			}
		case replay.AccessWrite:
			if err := v.WriteBlock(access.Address, access.WrittenBytes, access.Log2Size); err != nil {
				return fmt.Errorf("access %d: %w", i, err)
			}
		default:
			return fmt.Errorf("access %d: unknown access kind %d", i, access.Kind)
		}
	}
	if err := v.Finish(); err != nil {
		return fmt.Errorf("replay did not consume the whole log: %w", err)
	}

	rootAfter := v.RootHash()
	l.Info("replay complete",
		"accesses", len(accessLog.Accesses),
		"rootBefore", common.Hash(rootBefore),
		"rootAfter", common.Hash(rootAfter),
	)

	if outPath := ctx.Path(ReplayOutputFlag.Name); outPath != "" {
		report := Report{
			RootHashBefore: common.Hash(rootBefore),
			RootHashAfter:  common.Hash(rootAfter),
			AccessCount:    len(accessLog.Accesses),
		}
		if err := jsonutil.WriteJSON(outPath, report); err != nil {
			return fmt.Errorf("failed to write replay report: %w", err)
		}
	}
	return nil
}

var ReplayCommand = &cli.Command{
	Name:        "replay",
	Usage:       "Replay a recorded access log and report the resulting root hash.",
	Description: "Replay a recorded access log against the Merkle commitment rules, verifying every proof and written value, and report the final root hash.",
	Action:      Replay,
	Flags: []cli.Flag{
		ReplayLogFlag,
		ReplayVerifyProofsFlag,
		ReplayOneBasedFlag,
		ReplayPMACapacityFlag,
		ReplayOutputFlag,
		ReplayPProfCPU,
	},
}
