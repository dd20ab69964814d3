package signer

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	wallets map[common.Address]common.Address
	err     error
}

func (f *fakeRegistry) WalletAddress(_ context.Context, account common.Address) (common.Address, bool, error) {
	if f.err != nil {
		return common.Address{}, false, f.err
	}
	wallet, ok := f.wallets[account]
	return wallet, ok, nil
}

type fakeEntitlements struct {
	quotas map[common.Address]uint64
	err    error
}

func (f *fakeEntitlements) TotalQuota(_ context.Context, identity common.Address) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.quotas[identity], nil
}

func TestIdentityResolverReturnsAccountWithoutDelegate(t *testing.T) {
	resolver := NewIdentityResolver(&fakeRegistry{wallets: map[common.Address]common.Address{}})

	account := common.HexToAddress("0xaa")
	identity, err := resolver.Resolve(context.Background(), account)
	require.NoError(t, err)
	require.Equal(t, account, identity)
}

func TestIdentityResolverFollowsDelegation(t *testing.T) {
	account := common.HexToAddress("0xaa")
	wallet := common.HexToAddress("0xbb")
	resolver := NewIdentityResolver(&fakeRegistry{
		wallets: map[common.Address]common.Address{account: wallet},
	})

	identity, err := resolver.Resolve(context.Background(), account)
	require.NoError(t, err)
	require.Equal(t, wallet, identity)
}

func TestIdentityResolverIgnoresZeroDelegate(t *testing.T) {
	account := common.HexToAddress("0xaa")
	resolver := NewIdentityResolver(&fakeRegistry{
		wallets: map[common.Address]common.Address{account: {}},
	})

	identity, err := resolver.Resolve(context.Background(), account)
	require.NoError(t, err)
	require.Equal(t, account, identity)
}

func TestIdentityResolverPropagatesLookupFailure(t *testing.T) {
	resolver := NewIdentityResolver(&fakeRegistry{err: errors.New("chain node unreachable")})

	_, err := resolver.Resolve(context.Background(), common.HexToAddress("0xaa"))
	depErr := &DependencyError{}
	require.ErrorAs(t, err, &depErr)
}
