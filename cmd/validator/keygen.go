package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hyperledger-archives/sawtooth-core-sub001/crypto"
)

const validatorKeyFileName = "validator.priv"

func keygenCmd() *cobra.Command {
	var dataDir string
	var force bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate this validator's signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(dataDir, 0o700); err != nil {
				return fmt.Errorf("keygen: create data dir: %w", err)
			}
			path := filepath.Join(dataDir, validatorKeyFileName)
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("keygen: %s already exists, pass --force to overwrite", path)
				}
			}
			key, err := crypto.GeneratePrivateKey()
			if err != nil {
				return fmt.Errorf("keygen: %w", err)
			}
			if err := os.WriteFile(path, []byte(key.Hex()), 0o600); err != nil {
				return fmt.Errorf("keygen: write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "generated key for public key %s at %s\n", key.PublicKeyHex(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "/var/lib/sawtooth", "validator data directory")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key")
	return cmd
}

// loadValidatorKey reads the signing key cmd keygen wrote into dataDir.
func loadValidatorKey(dataDir string) (*crypto.PrivateKey, error) {
	path := filepath.Join(dataDir, validatorKeyFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load validator key: %w (run 'validator keygen' first)", err)
	}
	return crypto.ParsePrivateKeyHex(string(raw))
}
