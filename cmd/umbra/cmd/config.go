package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/umbra-privacy/umbra/signer"
)

const (
	flagListen      = "listen"
	flagMetricsAddr = "metrics-addr"
	flagChainRPC    = "chain-rpc"
	flagAccounts    = "accounts-contract"
	flagPayments    = "payments-contract"
	flagBaseQuota   = "base-quota"
	flagQueryCost   = "query-cost-wei"
	flagKeysDir     = "keys-dir"
	flagKeyVersion  = "key-version"
	flagOverwrite   = "overwrite"
)

func init() {
	configCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Commands to configure the umbra signer",
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"i"},
		Short:   "initialize configuration file and home directory if one doesn't already exist",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdFlags := cmd.Flags()
			overwrite, _ := cmdFlags.GetBool(flagOverwrite)

			if _, err := os.Stat(config.ConfigFile); !os.IsNotExist(err) && !overwrite {
				return fmt.Errorf("%s already exists. Provide the -o flag to overwrite the existing config",
					config.ConfigFile)
			}

			listen, _ := cmdFlags.GetString(flagListen)
			metricsAddr, _ := cmdFlags.GetString(flagMetricsAddr)
			chainRPC, _ := cmdFlags.GetString(flagChainRPC)
			accounts, _ := cmdFlags.GetString(flagAccounts)
			payments, _ := cmdFlags.GetString(flagPayments)
			baseQuota, _ := cmdFlags.GetUint64(flagBaseQuota)
			queryCost, _ := cmdFlags.GetString(flagQueryCost)
			keyVersion, _ := cmdFlags.GetString(flagKeyVersion)

			keysDirFlag, _ := cmdFlags.GetString(flagKeysDir)
			var keysDir *string
			if keysDirFlag != "" {
				keysDir = &keysDirFlag
			}

			cfg := signer.Config{
				ListenAddress:           listen,
				PrometheusListenAddress: metricsAddr,
				ChainRPC:                chainRPC,
				AccountsContract:        accounts,
				PaymentsContract:        payments,
				BaseQuota:               baseQuota,
				QueryCostWei:            queryCost,
				KeysDir:                 keysDir,
				DefaultKeyVersion:       keyVersion,
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			config.Config = cfg

			// create all directories up to the state directory
			if err := os.MkdirAll(config.StateDir, 0700); err != nil {
				return err
			}
			return config.WriteConfigFile()
		},
	}

	cmd.Flags().String(flagListen, "0.0.0.0:8080", "listen address for the public API")
	cmd.Flags().String(flagMetricsAddr, "", "listen address for prometheus metrics")
	cmd.Flags().String(flagChainRPC, "", "chain JSON-RPC endpoint for delegation and entitlement lookups")
	cmd.Flags().String(flagAccounts, "", "accounts contract address (wallet delegation registry)")
	cmd.Flags().String(flagPayments, "", "payments contract address (quota entitlement source)")
	cmd.Flags().Uint64(flagBaseQuota, 10, "free-tier quota granted to every identity")
	cmd.Flags().String(flagQueryCost, "", "wei required per purchased query")
	cmd.Flags().String(flagKeysDir, "", "directory holding shard key files (default is <home>/keys)")
	cmd.Flags().String(flagKeyVersion, "1", "default key version used when a request does not select one")
	cmd.Flags().BoolP(flagOverwrite, "o", false, "overwrite an existing config file")

	return cmd
}
