package cmd

import "github.com/urfave/cli/v2"

// App builds the CLI surface for this module's offline tooling: a
// verifier for recorded access logs and a builder for full
// address-space commitments. Neither command touches a live machine
// or its instruction interpreter.
func App() *cli.App {
	app := cli.NewApp()
	app.Name = "asterisc-replay"
	app.Usage = "Verifiable-replay core for a RISC-V machine emulator"
	app.Description = "Merkle commitment and replay verification tooling: build full address-space commitments and replay recorded access logs against them."
	app.Commands = []*cli.Command{
		ReplayCommand,
		TreeCommand,
	}
	return app
}
