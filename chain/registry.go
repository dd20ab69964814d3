// Package chain implements the on-chain collaborators of the signing node:
// the wallet-delegation registry and the quota entitlement source, both read
// through a JSON-RPC ethereum client.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"
	cometlog "github.com/cometbft/cometbft/libs/log"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	dialAttempts   = 5
	dialRetryDelay = 2 * time.Second
)

const accountsABIJSON = `[{"inputs":[{"internalType":"address","name":"account","type":"address"}],` +
	`"name":"getWalletAddress","outputs":[{"internalType":"address","name":"","type":"address"}],` +
	`"stateMutability":"view","type":"function"}]`

const paymentsABIJSON = `[{"inputs":[{"internalType":"address","name":"account","type":"address"}],` +
	`"name":"totalPaidFor","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],` +
	`"stateMutability":"view","type":"function"}]`

// ClientConfig carries the chain endpoints and the entitlement pricing. The
// entitlement for an identity is BaseQuota plus one query per QueryCost wei
// recorded for it in the payments contract.
type ClientConfig struct {
	RPCURL           string
	AccountsContract common.Address
	PaymentsContract common.Address
	BaseQuota        uint64
	QueryCost        *big.Int
}

// Client resolves wallet delegation and quota entitlement from on-chain state.
// Per-request calls are single-shot; only the startup dial retries.
type Client struct {
	eth         *ethclient.Client
	accountsABI abi.ABI
	paymentsABI abi.ABI
	cfg         ClientConfig
}

// Dial connects to the chain RPC endpoint, retrying on startup so the node
// can come up alongside its chain node.
func Dial(ctx context.Context, logger cometlog.Logger, cfg ClientConfig) (*Client, error) {
	if cfg.QueryCost == nil || cfg.QueryCost.Sign() <= 0 {
		return nil, fmt.Errorf("query cost must be positive")
	}

	accountsABI, err := abi.JSON(strings.NewReader(accountsABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse accounts ABI: %w", err)
	}
	paymentsABI, err := abi.JSON(strings.NewReader(paymentsABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse payments ABI: %w", err)
	}

	var eth *ethclient.Client
	err = retry.Do(func() error {
		var err error
		eth, err = ethclient.DialContext(ctx, cfg.RPCURL)
		return err
	},
		retry.Context(ctx),
		retry.Attempts(dialAttempts),
		retry.Delay(dialRetryDelay),
		retry.OnRetry(func(n uint, err error) {
			logger.Error("Failed to dial chain RPC", "attempt", n+1, "url", cfg.RPCURL, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain RPC at %s: %w", cfg.RPCURL, err)
	}

	return &Client{
		eth:         eth,
		accountsABI: accountsABI,
		paymentsABI: paymentsABI,
		cfg:         cfg,
	}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

// WalletAddress returns the wallet registered for account in the accounts
// contract. The zero address means no delegate is registered.
func (c *Client) WalletAddress(ctx context.Context, account common.Address) (common.Address, bool, error) {
	data, err := c.accountsABI.Pack("getWalletAddress", account)
	if err != nil {
		return common.Address{}, false, err
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.cfg.AccountsContract, Data: data}, nil)
	if err != nil {
		return common.Address{}, false, fmt.Errorf("getWalletAddress call failed: %w", err)
	}

	results, err := c.accountsABI.Unpack("getWalletAddress", out)
	if err != nil {
		return common.Address{}, false, fmt.Errorf("failed to unpack getWalletAddress result: %w", err)
	}
	wallet, ok := results[0].(common.Address)
	if !ok {
		return common.Address{}, false, fmt.Errorf("unexpected getWalletAddress result type %T", results[0])
	}

	if wallet == (common.Address{}) {
		return common.Address{}, false, nil
	}
	return wallet, true, nil
}

// TotalQuota derives the entitlement for identity from its recorded payments.
func (c *Client) TotalQuota(ctx context.Context, identity common.Address) (uint64, error) {
	data, err := c.paymentsABI.Pack("totalPaidFor", identity)
	if err != nil {
		return 0, err
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.cfg.PaymentsContract, Data: data}, nil)
	if err != nil {
		return 0, fmt.Errorf("totalPaidFor call failed: %w", err)
	}

	results, err := c.paymentsABI.Unpack("totalPaidFor", out)
	if err != nil {
		return 0, fmt.Errorf("failed to unpack totalPaidFor result: %w", err)
	}
	paid, ok := results[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected totalPaidFor result type %T", results[0])
	}

	return entitlementFromPayments(paid, c.cfg.QueryCost, c.cfg.BaseQuota)
}

// entitlementFromPayments converts recorded payments into an entitlement:
// the free tier plus one query per queryCost wei, rounded down.
func entitlementFromPayments(paid, queryCost *big.Int, baseQuota uint64) (uint64, error) {
	purchased := new(big.Int).Div(paid, queryCost)
	if !purchased.IsUint64() {
		return 0, fmt.Errorf("purchased quota overflows: %s", purchased)
	}
	return baseQuota + purchased.Uint64(), nil
}
