package rpc

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	cometlog "github.com/cometbft/cometbft/libs/log"
	bls "github.com/drand/kyber-bls12381"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/umbra-privacy/umbra/signer"
)

type fakeRegistry struct {
	wallets map[common.Address]common.Address
}

func (f *fakeRegistry) WalletAddress(_ context.Context, account common.Address) (common.Address, bool, error) {
	wallet, ok := f.wallets[account]
	return wallet, ok, nil
}

type fakeEntitlements struct {
	quotas map[common.Address]uint64
}

func (f *fakeEntitlements) TotalQuota(_ context.Context, identity common.Address) (uint64, error) {
	return f.quotas[identity], nil
}

type serverFixture struct {
	ts           *httptest.Server
	signer       *signer.ThresholdSignerSoft
	entitlements *fakeEntitlements
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	ledger, err := signer.OpenQuotaLedger(t.TempDir() + "/quota_ledger.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	dealt, err := signer.DealThresholdShards("1", nil, 2, 3)
	require.NoError(t, err)
	partialSigner, err := signer.NewThresholdSignerSoft(dealt[0])
	require.NoError(t, err)

	entitlements := &fakeEntitlements{quotas: map[common.Address]uint64{}}
	orch := signer.NewOrchestrator(
		cometlog.NewNopLogger(),
		&fakeRegistry{wallets: map[common.Address]common.Address{}},
		entitlements,
		ledger,
		partialSigner,
		"1",
	)

	srv := NewServer(cometlog.NewNopLogger(), orch, "127.0.0.1:0")
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &serverFixture{ts: ts, signer: partialSigner, entitlements: entitlements}
}

func newBlindedQuery(t *testing.T) []byte {
	t.Helper()
	suite := bls.NewBLS12381Suite()
	r := suite.G1().Scalar().Pick(suite.RandomStream())
	blinded, err := suite.G1().Point().Mul(r, nil).MarshalBinary()
	require.NoError(t, err)
	return blinded
}

func newAccount(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return key, ethcrypto.PubkeyToAddress(key.PublicKey)
}

func signBody(t *testing.T, key *ecdsa.PrivateKey, body []byte) string {
	t.Helper()
	sig, err := ethcrypto.Sign(ethcrypto.Keccak256(body), key)
	require.NoError(t, err)
	return hex.EncodeToString(sig)
}

func post(t *testing.T, f *serverFixture, route string, body []byte, credential string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.ts.URL+route, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if credential != "" {
		req.Header.Set("Authorization", credential)
	}

	resp, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestSignEndpointsAreEquivalent(t *testing.T) {
	f := newServerFixture(t)

	key, account := newAccount(t)
	f.entitlements.quotas[account] = 5
	blinded := newBlindedQuery(t)

	body, err := json.Marshal(signer.SignRequest{
		HashedIdentifier:        "id",
		BlindedQueryPhoneNumber: base64.StdEncoding.EncodeToString(blinded),
		Account:                 account.Hex(),
	})
	require.NoError(t, err)
	credential := signBody(t, key, body)

	resp, current := post(t, f, RouteSign, body, credential)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, current["success"])

	// The legacy route runs the same orchestrator: identical signature, and
	// the second call is a replay rather than a second charge.
	resp, legacy := post(t, f, RouteSignLegacy, body, credential)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, current["signature"], legacy["signature"])

	sig, err := base64.StdEncoding.DecodeString(current["signature"].(string))
	require.NoError(t, err)
	pubShare, err := f.signer.PublicShare("1")
	require.NoError(t, err)
	require.NoError(t, signer.VerifyPartialSignature(pubShare, blinded, sig))

	quotaBody, err := json.Marshal(signer.QuotaRequest{Account: account.Hex()})
	require.NoError(t, err)
	resp, quota := post(t, f, RouteQuota, quotaBody, signBody(t, key, quotaBody))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(1), quota["performedQueryCount"])
}

func TestSignEndpointStatusCodes(t *testing.T) {
	f := newServerFixture(t)

	key, account := newAccount(t)
	otherKey, _ := newAccount(t)
	f.entitlements.quotas[account] = 1

	makeBody := func(blinded []byte) []byte {
		body, err := json.Marshal(signer.SignRequest{
			HashedIdentifier:        "id",
			BlindedQueryPhoneNumber: base64.StdEncoding.EncodeToString(blinded),
			Account:                 account.Hex(),
		})
		require.NoError(t, err)
		return body
	}

	// Missing blinded value: bad request, even without a credential.
	noBlinded, err := json.Marshal(signer.SignRequest{Account: account.Hex()})
	require.NoError(t, err)
	resp, decoded := post(t, f, RouteSign, noBlinded, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, false, decoded["success"])

	// Wrong signer: unauthorized.
	body := makeBody(newBlindedQuery(t))
	resp, _ = post(t, f, RouteSign, body, signBody(t, otherKey, body))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid request consumes the only quota unit.
	resp, _ = post(t, f, RouteSign, body, signBody(t, key, body))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A fresh blinding is now over quota; the response carries quota state.
	body2 := makeBody(newBlindedQuery(t))
	resp, decoded = post(t, f, RouteSign, body2, signBody(t, key, body2))
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, float64(1), decoded["totalQuota"])
	require.Equal(t, float64(1), decoded["performedQueryCount"])

	// The replayed first request still succeeds at the boundary.
	resp, _ = post(t, f, RouteSign, body, signBody(t, key, body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnknownKeyVersionHeader(t *testing.T) {
	f := newServerFixture(t)

	key, account := newAccount(t)
	f.entitlements.quotas[account] = 5

	body, err := json.Marshal(signer.SignRequest{
		HashedIdentifier:        "id",
		BlindedQueryPhoneNumber: base64.StdEncoding.EncodeToString(newBlindedQuery(t)),
		Account:                 account.Hex(),
	})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, f.ts.URL+RouteSign, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", signBody(t, key, body))
	req.Header.Set(KeyVersionHeader, "9")

	resp, err := f.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatusEndpoint(t *testing.T) {
	f := newServerFixture(t)

	resp, err := f.ts.Client().Get(f.ts.URL + RouteStatus)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSignRequiresPost(t *testing.T) {
	f := newServerFixture(t)

	resp, err := f.ts.Client().Get(f.ts.URL + RouteSign)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
