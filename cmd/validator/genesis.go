package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hyperledger-archives/sawtooth-core-sub001/genesis"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
)

// genesisCmd composes one or more individually-encoded batch files into
// the data directory's genesis.batch (spec.md §6 "genesis"). The actual
// genesis block is built later, the first time "start" runs against an
// empty chain, since building it requires the component bus and a
// connected transaction processor to execute against (see package
// genesis's doc comment).
func genesisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genesis",
		Short: "Manage the genesis batch file",
	}
	cmd.AddCommand(genesisComposeCmd())
	return cmd
}

func genesisComposeCmd() *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "compose [batch-file ...]",
		Short: "Concatenate individually-encoded batch files into genesis.batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var batches []*protocol.Batch
			for _, path := range args {
				raw, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("genesis compose: read %s: %w", path, err)
				}
				batch, err := protocol.DecodeBatch(raw)
				if err != nil {
					return fmt.Errorf("genesis compose: decode %s: %w", path, err)
				}
				batches = append(batches, batch)
			}

			if err := os.MkdirAll(dataDir, 0o700); err != nil {
				return fmt.Errorf("genesis compose: create data dir: %w", err)
			}
			out := filepath.Join(dataDir, genesis.BatchFileName)
			if err := os.WriteFile(out, genesis.EncodeBatchList(batches), 0o600); err != nil {
				return fmt.Errorf("genesis compose: write %s: %w", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d batches to %s\n", len(batches), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "/var/lib/sawtooth", "validator data directory")
	return cmd
}
