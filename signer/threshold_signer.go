package signer

import (
	"errors"
	"fmt"

	"github.com/drand/kyber"
	bls "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/pairing"
)

// PartialSigner produces threshold partial signatures over blinded group
// elements. The signer never learns the plaintext behind a blinded query.
type PartialSigner interface {
	// HasVersion reports whether key material is loaded for keyVersion.
	HasVersion(keyVersion string) bool

	// Validate checks that blindedQuery decodes as a usable group element.
	Validate(blindedQuery []byte) error

	// Sign produces a partial signature over blindedQuery with the shard for
	// keyVersion.
	Sign(blindedQuery []byte, keyVersion string) ([]byte, error)

	// PublicShare returns this signer's public share for keyVersion, against
	// which its partial signatures verify.
	PublicShare(keyVersion string) ([]byte, error)
}

var _ PartialSigner = &ThresholdSignerSoft{}

// ThresholdSignerSoft signs blinded BLS12-381 G1 points in software using the
// private scalar shards loaded for each key version. Signing is deterministic:
// identical input and key version always yield the identical partial
// signature.
type ThresholdSignerSoft struct {
	suite  pairing.Suite
	shards map[string]loadedShard
}

type loadedShard struct {
	key      ThresholdShardKey
	scalar   kyber.Scalar
	pubShare kyber.Point
}

func NewThresholdSignerSoft(keys ...ThresholdShardKey) (*ThresholdSignerSoft, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one shard key is required")
	}

	suite := bls.NewBLS12381Suite()
	shards := make(map[string]loadedShard, len(keys))
	for _, key := range keys {
		scalar := suite.G2().Scalar()
		if err := scalar.UnmarshalBinary(key.PrivateShard); err != nil {
			return nil, fmt.Errorf("invalid private shard for key version %s: %w", key.KeyVersion, err)
		}
		pubShare := suite.G2().Point()
		if err := pubShare.UnmarshalBinary(key.PublicShare); err != nil {
			return nil, fmt.Errorf("invalid public share for key version %s: %w", key.KeyVersion, err)
		}
		if _, ok := shards[key.KeyVersion]; ok {
			return nil, fmt.Errorf("duplicate shard for key version %s", key.KeyVersion)
		}
		shards[key.KeyVersion] = loadedShard{key: key, scalar: scalar, pubShare: pubShare}
	}

	return &ThresholdSignerSoft{suite: suite, shards: shards}, nil
}

// HasVersion reports whether a shard is loaded for keyVersion.
func (s *ThresholdSignerSoft) HasVersion(keyVersion string) bool {
	_, ok := s.shards[keyVersion]
	return ok
}

func (s *ThresholdSignerSoft) Validate(blindedQuery []byte) error {
	_, err := s.decodeBlinded(blindedQuery)
	return err
}

func (s *ThresholdSignerSoft) Sign(blindedQuery []byte, keyVersion string) ([]byte, error) {
	shard, ok := s.shards[keyVersion]
	if !ok {
		return nil, &UnknownKeyVersionError{Version: keyVersion}
	}

	point, err := s.decodeBlinded(blindedQuery)
	if err != nil {
		return nil, err
	}

	sig := s.suite.G1().Point().Mul(shard.scalar, point)
	return sig.MarshalBinary()
}

func (s *ThresholdSignerSoft) PublicShare(keyVersion string) ([]byte, error) {
	shard, ok := s.shards[keyVersion]
	if !ok {
		return nil, &UnknownKeyVersionError{Version: keyVersion}
	}
	return shard.key.PublicShare, nil
}

// GroupPublicKey returns the dealt group commitment for keyVersion.
func (s *ThresholdSignerSoft) GroupPublicKey(keyVersion string) ([]byte, error) {
	shard, ok := s.shards[keyVersion]
	if !ok {
		return nil, &UnknownKeyVersionError{Version: keyVersion}
	}
	return shard.key.GroupPublicKey, nil
}

func (s *ThresholdSignerSoft) decodeBlinded(blindedQuery []byte) (kyber.Point, error) {
	point := s.suite.G1().Point()
	if err := point.UnmarshalBinary(blindedQuery); err != nil {
		return nil, newMalformedInputError("blinded query is not a valid group element: %v", err)
	}
	// The identity element would produce the identity signature for any key.
	if point.Equal(s.suite.G1().Point().Null()) {
		return nil, newMalformedInputError("blinded query is the identity element")
	}
	return point, nil
}

// VerifyPartialSignature checks sig against a signer's public share and the
// blinded query it was produced over: e(sig, g2) must equal
// e(blindedQuery, publicShare).
func VerifyPartialSignature(publicShare, blindedQuery, sig []byte) error {
	suite := bls.NewBLS12381Suite()

	pub := suite.G2().Point()
	if err := pub.UnmarshalBinary(publicShare); err != nil {
		return fmt.Errorf("invalid public share: %w", err)
	}
	blinded := suite.G1().Point()
	if err := blinded.UnmarshalBinary(blindedQuery); err != nil {
		return fmt.Errorf("invalid blinded query: %w", err)
	}
	sigPoint := suite.G1().Point()
	if err := sigPoint.UnmarshalBinary(sig); err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}

	left := suite.Pair(sigPoint, suite.G2().Point().Base())
	right := suite.Pair(blinded, pub)
	if !left.Equal(right) {
		return errors.New("partial signature does not verify against public share")
	}
	return nil
}
