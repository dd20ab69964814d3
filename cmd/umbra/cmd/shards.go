package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/umbra-privacy/umbra/signer"
)

const (
	flagOutputDir   = "out"
	flagThreshold   = "threshold"
	flagShards      = "shards"
	flagSecret      = "secret"
	flagShardKeyVer = "key-version"
)

func init() {
	rootCmd.AddCommand(createShardsCmd())
}

func createShardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-shards",
		Short: "Deal a key version's signing key into threshold shard files",
		Long: "Deal a BLS12-381 signing key for one key version into total shard files with the\n" +
			"given reconstruction threshold. One shard file is written per signer node; each node\n" +
			"loads only its own shard. Without --secret a fresh random key is dealt.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdFlags := cmd.Flags()
			threshold, _ := cmdFlags.GetUint8(flagThreshold)
			total, _ := cmdFlags.GetUint8(flagShards)
			version, _ := cmdFlags.GetString(flagShardKeyVer)
			out, _ := cmdFlags.GetString(flagOutputDir)
			secretHex, _ := cmdFlags.GetString(flagSecret)

			var secret []byte
			if secretHex != "" {
				var err error
				secret, err = hex.DecodeString(secretHex)
				if err != nil {
					return fmt.Errorf("invalid --secret: %w", err)
				}
			}

			keys, err := signer.DealThresholdShards(version, secret, threshold, total)
			if err != nil {
				return err
			}

			if out == "" {
				out = "."
			}
			if err := os.MkdirAll(out, 0700); err != nil {
				return err
			}

			for _, key := range keys {
				dir := filepath.Join(out, fmt.Sprintf("signer_%d", key.ID))
				if err := os.MkdirAll(dir, 0700); err != nil {
					return err
				}
				file := filepath.Join(dir, fmt.Sprintf("shard_v%s.json", key.KeyVersion))
				if err := key.Save(file); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created shard %d/%d for key version %s at %s\n",
					key.ID, key.Total, key.KeyVersion, file)
			}
			return nil
		},
	}

	cmd.Flags().Uint8(flagThreshold, 0, "threshold number of shards required to sign")
	cmd.Flags().Uint8(flagShards, 0, "total key shards")
	cmd.Flags().String(flagShardKeyVer, "1", "key version the dealt key belongs to")
	cmd.Flags().String(flagOutputDir, "", "output directory")
	cmd.Flags().String(flagSecret, "", "hex-encoded scalar to deal instead of a random key")

	return cmd
}
