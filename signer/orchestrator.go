package signer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	cometlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
)

// SignRequest is the body of a blinded sign request. Timestamp is accepted at
// any age; clients that signed a body long ago can still replay it safely.
type SignRequest struct {
	HashedIdentifier        string `json:"hashedIdentifier"`
	BlindedQueryPhoneNumber string `json:"blindedQueryPhoneNumber"`
	Account                 string `json:"account"`
	Timestamp               *int64 `json:"timestamp,omitempty"`
}

// SignResponse carries the base64 partial signature.
type SignResponse struct {
	Success   bool   `json:"success"`
	Signature string `json:"signature"`
}

// QuotaRequest is the body of a quota query.
type QuotaRequest struct {
	Account          string `json:"account"`
	HashedIdentifier string `json:"hashedIdentifier,omitempty"`
}

// QuotaResponse reports the quota state for the requester's effective
// identity.
type QuotaResponse struct {
	Success             bool   `json:"success"`
	TotalQuota          uint64 `json:"totalQuota"`
	PerformedQueryCount uint64 `json:"performedQueryCount"`
}

// Orchestrator sequences the externally visible operations:
// authenticate, resolve the effective identity, decide admission, sign.
// Both the current and the legacy endpoint run through the same instance.
type Orchestrator struct {
	logger       cometlog.Logger
	auth         Authenticator
	resolver     *IdentityResolver
	entitlements EntitlementSource
	ledger       *QuotaLedger
	signer       PartialSigner

	defaultKeyVersion string
}

func NewOrchestrator(
	logger cometlog.Logger,
	registry DelegationRegistry,
	entitlements EntitlementSource,
	ledger *QuotaLedger,
	partialSigner PartialSigner,
	defaultKeyVersion string,
) *Orchestrator {
	return &Orchestrator{
		logger:            logger,
		resolver:          NewIdentityResolver(registry),
		entitlements:      entitlements,
		ledger:            ledger,
		signer:            partialSigner,
		defaultKeyVersion: defaultKeyVersion,
	}
}

// SignBlinded handles one blinded sign request. body is the exact byte
// sequence the client signed over; credential is the authorization signature;
// keyVersion selects the key shard, with the configured default when empty.
func (o *Orchestrator) SignBlinded(ctx context.Context, body []byte, credential, keyVersion string) (*SignResponse, error) {
	totalSignRequests.Inc()

	if keyVersion == "" {
		keyVersion = o.defaultKeyVersion
	}

	req, blinded, err := o.validateSignRequest(body, keyVersion)
	if err != nil {
		totalMalformedRequests.Inc()
		return nil, err
	}
	account := common.HexToAddress(req.Account)

	if err := o.auth.Verify(body, credential, account); err != nil {
		totalAuthFailures.Inc()
		return nil, err
	}

	identity, err := o.resolver.Resolve(ctx, account)
	if err != nil {
		totalDependencyFailures.Inc()
		return nil, err
	}

	// The entitlement is fetched before entering the per-identity critical
	// section so blocking chain I/O never serializes unrelated identities.
	totalQuota, err := o.entitlements.TotalQuota(ctx, identity)
	if err != nil {
		totalDependencyFailures.Inc()
		return nil, &DependencyError{Op: "entitlement lookup", Err: err}
	}

	decision, record, err := o.ledger.CheckAndReserve(identity, []byte(req.HashedIdentifier), blinded, totalQuota)
	if err != nil {
		return nil, err
	}

	switch decision {
	case Deny:
		totalQuotaDenials.Inc()
		o.logger.Info("Denied sign request",
			"identity", identity.Hex(),
			"performed", record.PerformedQueryCount,
			"total", totalQuota,
		)
		return nil, &QuotaExceededError{
			TotalQuota:          totalQuota,
			PerformedQueryCount: record.PerformedQueryCount,
		}
	case AdmitReplay:
		totalReplayedRequests.Inc()
	}

	// Safe on replay: the partial signature is deterministic for identical
	// input and key version, only the quota charge must not repeat.
	sig, err := o.signer.Sign(blinded, keyVersion)
	if err != nil {
		return nil, err
	}

	totalPartialSignatures.Inc()
	secondsSinceLastPartialSignature.Set(0)
	o.logger.Debug("Produced partial signature",
		"identity", identity.Hex(),
		"key_version", keyVersion,
		"replay", decision == AdmitReplay,
	)

	return &SignResponse{
		Success:   true,
		Signature: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// Quota handles one quota query. It performs no admission decision and never
// mutates ledger state.
func (o *Orchestrator) Quota(ctx context.Context, body []byte, credential string) (*QuotaResponse, error) {
	totalQuotaRequests.Inc()

	var req QuotaRequest
	if err := json.Unmarshal(body, &req); err != nil {
		totalMalformedRequests.Inc()
		return nil, newMalformedInputError("invalid request body: %v", err)
	}
	if !common.IsHexAddress(req.Account) {
		totalMalformedRequests.Inc()
		return nil, newMalformedInputError("invalid account address: %q", req.Account)
	}
	account := common.HexToAddress(req.Account)

	if err := o.auth.Verify(body, credential, account); err != nil {
		totalAuthFailures.Inc()
		return nil, err
	}

	identity, err := o.resolver.Resolve(ctx, account)
	if err != nil {
		totalDependencyFailures.Inc()
		return nil, err
	}

	totalQuota, err := o.entitlements.TotalQuota(ctx, identity)
	if err != nil {
		totalDependencyFailures.Inc()
		return nil, &DependencyError{Op: "entitlement lookup", Err: err}
	}

	record, err := o.ledger.Peek(identity)
	if err != nil {
		return nil, err
	}

	return &QuotaResponse{
		Success:             true,
		TotalQuota:          totalQuota,
		PerformedQueryCount: record.PerformedQueryCount,
	}, nil
}

// validateSignRequest performs the structural checks that precede
// authentication: a parsable body, a present and decodable blinded value, a
// well-formed account address, and a loaded key version.
func (o *Orchestrator) validateSignRequest(body []byte, keyVersion string) (SignRequest, []byte, error) {
	var req SignRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return req, nil, newMalformedInputError("invalid request body: %v", err)
	}
	if req.BlindedQueryPhoneNumber == "" {
		return req, nil, newMalformedInputError("missing blinded query")
	}
	blinded, err := base64.StdEncoding.DecodeString(req.BlindedQueryPhoneNumber)
	if err != nil {
		return req, nil, newMalformedInputError("blinded query is not valid base64: %v", err)
	}
	if err := o.signer.Validate(blinded); err != nil {
		return req, nil, err
	}
	if !common.IsHexAddress(req.Account) {
		return req, nil, newMalformedInputError("invalid account address: %q", req.Account)
	}
	if !o.signer.HasVersion(keyVersion) {
		return req, nil, &UnknownKeyVersionError{Version: keyVersion}
	}
	return req, blinded, nil
}

// TrackIdleTime bumps the idle gauge once per second until ctx is done.
func TrackIdleTime(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			secondsSinceLastPartialSignature.Inc()
		}
	}
}
