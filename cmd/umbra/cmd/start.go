package cmd

import (
	"fmt"
	"os"

	cometlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/umbra-privacy/umbra/chain"
	"github.com/umbra-privacy/umbra/rpc"
	"github.com/umbra-privacy/umbra/signer"
)

func init() {
	rootCmd.AddCommand(startCmd())
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "start",
		Short:        "Start umbra signer process",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			logger := cometlog.NewTMLogger(cometlog.NewSyncWriter(out)).With("module", "signer")

			if err := RequireNotRunning(logger, config.PidFile); err != nil {
				return err
			}

			if err := config.Config.Validate(); err != nil {
				return err
			}

			// create all directories up to the state directory
			if err := os.MkdirAll(config.StateDir, 0700); err != nil {
				return err
			}

			logger.Info(
				"Umbra Signer",
				"default-key-version", config.Config.DefaultKeyVersion,
				"state-dir", config.StateDir,
			)

			keys, err := signer.LoadShardKeys(config.KeysDir())
			if err != nil {
				return fmt.Errorf("failed to load shard keys: %w", err)
			}
			if _, ok := keys[config.Config.DefaultKeyVersion]; !ok {
				return fmt.Errorf("no shard loaded for default key version %s", config.Config.DefaultKeyVersion)
			}
			shardKeys := make([]signer.ThresholdShardKey, 0, len(keys))
			for _, key := range keys {
				logger.Info("Loaded shard key", "key_version", key.KeyVersion, "id", key.ID)
				shardKeys = append(shardKeys, key)
			}
			partialSigner, err := signer.NewThresholdSignerSoft(shardKeys...)
			if err != nil {
				return err
			}

			queryCost, err := config.Config.QueryCost()
			if err != nil {
				return err
			}
			chainClient, err := chain.Dial(cmd.Context(), logger.With("module", "chain"), chain.ClientConfig{
				RPCURL:           config.Config.ChainRPC,
				AccountsContract: common.HexToAddress(config.Config.AccountsContract),
				PaymentsContract: common.HexToAddress(config.Config.PaymentsContract),
				BaseQuota:        config.Config.BaseQuota,
				QueryCost:        queryCost,
			})
			if err != nil {
				return err
			}

			ledger, err := signer.OpenQuotaLedger(config.QuotaLedgerFile())
			if err != nil {
				return err
			}

			orch := signer.NewOrchestrator(
				logger,
				chainClient,
				chainClient,
				ledger,
				partialSigner,
				config.Config.DefaultKeyVersion,
			)

			server := rpc.NewServer(logger.With("module", "rpc"), orch, config.Config.ListenAddress)

			var g errgroup.Group
			g.Go(server.Start)
			if config.Config.PrometheusListenAddress != "" {
				g.Go(func() error {
					StartMetrics(out)
					return nil
				})
			}
			go signer.TrackIdleTime(cmd.Context())

			WaitAndTerminate(logger, config.PidFile, func() {
				if err := server.Stop(); err != nil {
					logger.Error("Error stopping API server", "error", err)
				}
				if err := ledger.Close(); err != nil {
					logger.Error("Error closing quota ledger", "error", err)
				}
				chainClient.Close()
			})

			return g.Wait()
		},
	}

	return cmd
}
