package taproot

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const (
	// CompressedKeyLen is the length of a compressed secp256k1 public key
	// including its parity prefix byte.
	CompressedKeyLen = 33

	// XOnlyKeyLen is the length of an x-only public key where the parity
	// of the y coordinate is not part of the encoding.
	XOnlyKeyLen = 32
)

var (
	// ErrInvalidKeyEncoding is returned when parsing a public key that is
	// neither 33 bytes compressed nor 32 bytes x-only.
	ErrInvalidKeyEncoding = errors.New("public key must be serialized in " +
		"33 byte compressed or 32 byte x-only format")
)

// PublicKey is a public key parsed from either the compressed or the x-only
// serialization. The two encodings differ in whether the parity of the y
// coordinate is known: an x-only key is resolved to the even-y candidate, but
// callers can inspect ParityKnown to tell a definite parity from the default.
type PublicKey struct {
	key         *btcec.PublicKey
	parityKnown bool
}

// ParsePublicKey parses a 33 byte compressed or 32 byte x-only public key.
// X-only keys default to an even y coordinate as that is the only information
// the encoding carries.
func ParsePublicKey(keyBytes []byte) (*PublicKey, error) {
	switch len(keyBytes) {
	case CompressedKeyLen:
		key, err := btcec.ParsePubKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("error parsing compressed "+
				"key: %w", err)
		}

		return &PublicKey{key: key, parityKnown: true}, nil

	case XOnlyKeyLen:
		key, err := schnorr.ParsePubKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("error parsing x-only key: %w",
				err)
		}

		return &PublicKey{key: key}, nil

	default:
		return nil, fmt.Errorf("%w: got %d bytes",
			ErrInvalidKeyEncoding, len(keyBytes))
	}
}

// NewPublicKey wraps a fully specified EC public key, so the parity of its y
// coordinate is definite.
func NewPublicKey(key *btcec.PublicKey) *PublicKey {
	return &PublicKey{key: key, parityKnown: true}
}

// PubKey returns the underlying EC public key.
func (p *PublicKey) PubKey() *btcec.PublicKey {
	return p.key
}

// XOnlyBytes returns the 32 byte x-only serialization of the key. Parsing
// the same encoding back yields these exact bytes again.
func (p *PublicKey) XOnlyBytes() []byte {
	return schnorr.SerializePubKey(p.key)
}

// SerializeCompressed returns the 33 byte compressed serialization of the
// key. For keys parsed from the x-only encoding this uses the default even
// parity.
func (p *PublicKey) SerializeCompressed() []byte {
	return p.key.SerializeCompressed()
}

// ParityKnown reports whether the parity of the y coordinate was part of the
// encoding the key was parsed from.
func (p *PublicKey) ParityKnown() bool {
	return p.parityKnown
}

// ParityBit returns 1 if the y coordinate of the key is odd and 0 otherwise.
// Keys parsed from the x-only encoding always report even parity.
func (p *PublicKey) ParityBit() byte {
	if p.key.SerializeCompressed()[0] == secp256k1.PubKeyFormatCompressedOdd {
		return 1
	}

	return 0
}
