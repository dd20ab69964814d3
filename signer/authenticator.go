package signer

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Authenticator verifies that a request body was signed by the private key
// matching the claimed account address. The credential is a hex-encoded
// 65-byte secp256k1 recovery signature over keccak256 of the exact body
// bytes. Verification is purely cryptographic: a timestamp carried in the
// body is informational and old signatures remain valid.
type Authenticator struct{}

// Verify checks credential against body and the claimed account.
func (Authenticator) Verify(body []byte, credential string, account common.Address) error {
	sig, err := decodeCredential(credential)
	if err != nil {
		return err
	}

	digest := ethcrypto.Keccak256(body)
	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return newAuthenticationError("credential does not recover a public key: %v", err)
	}

	if ethcrypto.PubkeyToAddress(*pub) != account {
		return newAuthenticationError("credential was not produced by the claimed account")
	}

	return nil
}

func decodeCredential(credential string) ([]byte, error) {
	if credential == "" {
		return nil, newAuthenticationError("missing authorization credential")
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(credential, "0x"))
	if err != nil {
		return nil, newAuthenticationError("credential is not valid hex: %v", err)
	}
	if len(sig) != ethcrypto.SignatureLength {
		return nil, newAuthenticationError("credential must be %d bytes, got %d",
			ethcrypto.SignatureLength, len(sig))
	}

	// Accept both the raw 0/1 recovery id and the legacy 27/28 form.
	if sig[ethcrypto.RecoveryIDOffset] >= 27 {
		sig = append([]byte{}, sig...)
		sig[ethcrypto.RecoveryIDOffset] -= 27
	}
	if sig[ethcrypto.RecoveryIDOffset] > 1 {
		return nil, newAuthenticationError("invalid recovery id")
	}

	return sig, nil
}
