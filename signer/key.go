package signer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cometbft/cometbft/libs/tempfile"
	"github.com/drand/kyber/share"
	bls "github.com/drand/kyber-bls12381"
)

// ThresholdShardKey is the on-disk key material for one signer and one key
// version. PrivateShard is the signer's scalar share, PublicShare the matching
// G2 commitment, and GroupPublicKey the commitment to the dealt secret that
// clients verify combined signatures against.
type ThresholdShardKey struct {
	ID             int    `json:"id"`
	KeyVersion     string `json:"key_version"`
	Threshold      uint8  `json:"threshold"`
	Total          uint8  `json:"total"`
	PrivateShard   []byte `json:"private_shard"`
	PublicShare    []byte `json:"public_share"`
	GroupPublicKey []byte `json:"group_public_key"`
}

// DealThresholdShards splits a signing key for the given key version into
// total shards with the given reconstruction threshold. When secret is nil a
// fresh random scalar is dealt; otherwise secret must be a scalar in the
// MarshalBinary encoding of the BLS12-381 scalar field.
func DealThresholdShards(version string, secret []byte, threshold, total uint8) ([]ThresholdShardKey, error) {
	if version == "" {
		return nil, fmt.Errorf("key version must not be empty")
	}
	if threshold == 0 || total == 0 || threshold > total {
		return nil, fmt.Errorf("invalid threshold %d of %d", threshold, total)
	}

	suite := bls.NewBLS12381Suite()
	g2 := suite.G2()

	scalar := g2.Scalar()
	if secret == nil {
		scalar.Pick(suite.RandomStream())
	} else if err := scalar.UnmarshalBinary(secret); err != nil {
		return nil, fmt.Errorf("invalid secret scalar: %w", err)
	}

	priPoly := share.NewPriPoly(g2, int(threshold), scalar, suite.RandomStream())
	pubPoly := priPoly.Commit(g2.Point().Base())

	groupPub, err := pubPoly.Commit().MarshalBinary()
	if err != nil {
		return nil, err
	}

	shares := priPoly.Shares(int(total))
	out := make([]ThresholdShardKey, total)
	for i, s := range shares {
		shard, err := s.V.MarshalBinary()
		if err != nil {
			return nil, err
		}
		pubShare, err := pubPoly.Eval(s.I).V.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out[i] = ThresholdShardKey{
			ID:             s.I + 1,
			KeyVersion:     version,
			Threshold:      threshold,
			Total:          total,
			PrivateShard:   shard,
			PublicShare:    pubShare,
			GroupPublicKey: groupPub,
		}
	}
	return out, nil
}

// LoadThresholdShardKey loads a persisted shard key from file.
func LoadThresholdShardKey(file string) (ThresholdShardKey, error) {
	key := ThresholdShardKey{}
	raw, err := os.ReadFile(file)
	if err != nil {
		return key, err
	}
	if err := json.Unmarshal(raw, &key); err != nil {
		return key, fmt.Errorf("error reading shard key %s: %w", file, err)
	}
	return key, nil
}

// Save persists the shard key to file.
func (key ThresholdShardKey) Save(file string) error {
	raw, err := json.MarshalIndent(key, "", "  ")
	if err != nil {
		return err
	}
	return tempfile.WriteFileAtomic(file, raw, 0600)
}

// LoadShardKeys loads every *.json shard key under dir, keyed by key version.
// The directory is expected to contain exactly one shard per version; a
// duplicate version is a configuration error.
func LoadShardKeys(dir string) (map[string]ThresholdShardKey, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]ThresholdShardKey)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		key, err := LoadThresholdShardKey(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		if _, ok := keys[key.KeyVersion]; ok {
			return nil, fmt.Errorf("duplicate shard for key version %s in %s", key.KeyVersion, dir)
		}
		keys[key.KeyVersion] = key
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no shard keys found in %s", dir)
	}
	return keys, nil
}
