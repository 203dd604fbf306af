// Command validator is the Sawtooth-style validator node binary: it wires
// storage, state, scheduling, networking, the journal, and the
// out-of-process consensus interface together and runs them as one
// process (spec.md §6 CLI surface). Grounded on
// cmd/consensus/main.go's cobra root-plus-subcommands shape.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "validator",
		Short: "Sawtooth-style permissioned blockchain validator node",
		Long: `validator runs one node of a permissioned blockchain network: it
validates and publishes blocks, serves the transaction processor and
consensus engine bus endpoints, gossips with peers, and applies
permission and identity policy to every request.`,
	}

	root.AddCommand(keygenCmd(), genesisCmd(), startCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
