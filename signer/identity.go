package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// DelegationRegistry resolves the on-chain wallet delegation for an account.
// The second return is false when the account has no registered wallet.
type DelegationRegistry interface {
	WalletAddress(ctx context.Context, account common.Address) (common.Address, bool, error)
}

// EntitlementSource supplies the total quota an identity is entitled to at
// decision time. The engine only compares and increments against it.
type EntitlementSource interface {
	TotalQuota(ctx context.Context, identity common.Address) (uint64, error)
}

// IdentityResolver maps a claimed account to the effective identity charged
// for quota. Delegation can change between requests, so the resolution is
// performed per request and never cached here.
type IdentityResolver struct {
	registry DelegationRegistry
}

func NewIdentityResolver(registry DelegationRegistry) *IdentityResolver {
	return &IdentityResolver{registry: registry}
}

// Resolve returns the registered wallet address when one exists, otherwise
// the account itself. A registry failure propagates as a dependency error,
// never as "no delegate".
func (r *IdentityResolver) Resolve(ctx context.Context, account common.Address) (common.Address, error) {
	wallet, ok, err := r.registry.WalletAddress(ctx, account)
	if err != nil {
		return common.Address{}, &DependencyError{Op: "delegation lookup", Err: err}
	}
	if ok && wallet != (common.Address{}) {
		return wallet, nil
	}
	return account, nil
}
