package signer

import (
	"fmt"
	"math/big"
	"net/url"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
)

// Config maps to the on-disk yaml format.
type Config struct {
	ListenAddress           string  `json:"listen-address" yaml:"listen-address"`
	PrometheusListenAddress string  `json:"prometheus-listen-address,omitempty" yaml:"prometheus-listen-address,omitempty"`
	ChainRPC                string  `json:"chain-rpc" yaml:"chain-rpc"`
	AccountsContract        string  `json:"accounts-contract" yaml:"accounts-contract"`
	PaymentsContract        string  `json:"payments-contract" yaml:"payments-contract"`
	BaseQuota               uint64  `json:"base-quota" yaml:"base-quota"`
	QueryCostWei            string  `json:"query-cost-wei" yaml:"query-cost-wei"`
	KeysDir                 *string `json:"keys-dir,omitempty" yaml:"keys-dir,omitempty"`
	DefaultKeyVersion       string  `json:"default-key-version" yaml:"default-key-version"`
}

func (c *Config) Validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("need to have listen-address configured to serve requests")
	}
	if c.ChainRPC == "" {
		return fmt.Errorf("need to have chain-rpc configured for delegation and entitlement lookups")
	}
	if _, err := url.Parse(c.ChainRPC); err != nil {
		return fmt.Errorf("failed to parse chain-rpc address: %w", err)
	}
	if !common.IsHexAddress(c.AccountsContract) {
		return fmt.Errorf("invalid accounts-contract address: %q", c.AccountsContract)
	}
	if !common.IsHexAddress(c.PaymentsContract) {
		return fmt.Errorf("invalid payments-contract address: %q", c.PaymentsContract)
	}
	if _, err := c.QueryCost(); err != nil {
		return err
	}
	if c.DefaultKeyVersion == "" {
		return fmt.Errorf("default-key-version can't be empty")
	}
	return nil
}

// QueryCost parses the configured per-query cost in wei.
func (c *Config) QueryCost() (*big.Int, error) {
	cost, ok := new(big.Int).SetString(c.QueryCostWei, 10)
	if !ok || cost.Sign() <= 0 {
		return nil, fmt.Errorf("query-cost-wei must be a positive integer, got %q", c.QueryCostWei)
	}
	return cost, nil
}

func (c *Config) MustMarshalYaml() []byte {
	out, err := yaml.Marshal(c)
	if err != nil {
		panic(err)
	}
	return out
}

// RuntimeConfig ties the parsed Config to the node's directory layout.
type RuntimeConfig struct {
	HomeDir    string
	ConfigFile string
	StateDir   string
	PidFile    string
	Config     Config
}

// KeysDir is where the per-version shard key files live.
func (c RuntimeConfig) KeysDir() string {
	if c.Config.KeysDir != nil {
		return *c.Config.KeysDir
	}
	return filepath.Join(c.HomeDir, "keys")
}

// QuotaLedgerFile is the bolt database holding quota and replay state.
func (c RuntimeConfig) QuotaLedgerFile() string {
	return filepath.Join(c.StateDir, "quota_ledger.db")
}

func (c RuntimeConfig) WriteConfigFile() error {
	return os.WriteFile(c.ConfigFile, c.Config.MustMarshalYaml(), 0600)
}
