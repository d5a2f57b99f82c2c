package spend

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Signer produces BIP-340 Schnorr signatures over 32 byte digests.
type Signer interface {
	// SignSchnorr signs the digest with the given private key and
	// returns the 64 byte serialized signature.
	SignSchnorr(privKey *btcec.PrivateKey, digest []byte) ([]byte, error)
}

// SchnorrSigner signs with the btcec Schnorr implementation.
type SchnorrSigner struct{}

// A compile time check to ensure SchnorrSigner implements Signer.
var _ Signer = (*SchnorrSigner)(nil)

// SignSchnorr signs the digest with the given private key.
func (*SchnorrSigner) SignSchnorr(privKey *btcec.PrivateKey,
	digest []byte) ([]byte, error) {

	sig, err := schnorr.Sign(privKey, digest)
	if err != nil {
		return nil, err
	}

	return sig.Serialize(), nil
}
