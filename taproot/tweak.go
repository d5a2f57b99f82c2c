package taproot

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	// ErrInvalidTweak is returned when adding the tweak scalar to the
	// private key results in an invalid (zero) scalar. The probability of
	// this is negligible, but when it happens it must surface instead of
	// being retried, since signing with a different scalar would change
	// which key spends the output.
	ErrInvalidTweak = errors.New("tweaked private key is zero")
)

// TapTweakHash computes the scalar commitment that binds the internal key to
// the script tree: the TapTweak tagged hash of the x-only internal key
// followed by the merkle root. The root is empty for an output without a
// script tree and for single-leaf trees.
func TapTweakHash(internalX, merkleRoot []byte) *chainhash.Hash {
	return TaggedHash(TagTapTweak, internalX, merkleRoot)
}

// TweakedKeyMaterial is the result of tweaking a key pair for a key path
// spend. The private part is only set when a matching private key was
// supplied. The material is ephemeral: callers must call Zero once the
// signing operation that consumes it has finished, and must not keep it in
// any long lived structure.
type TweakedKeyMaterial struct {
	// PrivKey is the tweaked private key, nil for public-only tweaks.
	PrivKey *btcec.PrivateKey

	// PubKey is the tweaked public key, the taproot output key.
	PubKey *btcec.PublicKey

	// OddY indicates whether the y coordinate of PubKey is odd.
	OddY bool
}

// Zero wipes the tweaked private key material.
func (m *TweakedKeyMaterial) Zero() {
	if m.PrivKey != nil {
		m.PrivKey.Zero()
		m.PrivKey = nil
	}
}

// TweakPrivateKey derives the private key that signs for the key path of an
// output committing to merkleRoot. Per BIP-341 the private key is negated
// first if its public key has an odd y coordinate, then the tweak scalar is
// added mod the curve order. The supplied key is not modified.
func TweakPrivateKey(privKey *btcec.PrivateKey,
	merkleRoot []byte) (*TweakedKeyMaterial, error) {

	// Work on a copy of the scalar so the caller's key survives the
	// possible negation.
	privScalar := new(secp256k1.ModNScalar).Set(&privKey.Key)

	pubKeyBytes := privKey.PubKey().SerializeCompressed()
	if pubKeyBytes[0] == secp256k1.PubKeyFormatCompressedOdd {
		privScalar.Negate()
	}

	tweak := TapTweakHash(pubKeyBytes[1:], merkleRoot)

	var tweakScalar secp256k1.ModNScalar
	tweakScalar.SetBytes((*[32]byte)(tweak))

	privScalar.Add(&tweakScalar)
	if privScalar.IsZero() {
		return nil, ErrInvalidTweak
	}

	tweakedPriv := secp256k1.NewPrivateKey(privScalar)
	tweakedPub := tweakedPriv.PubKey()

	return &TweakedKeyMaterial{
		PrivKey: tweakedPriv,
		PubKey:  tweakedPub,
		OddY: tweakedPub.SerializeCompressed()[0] ==
			secp256k1.PubKeyFormatCompressedOdd,
	}, nil
}

// TweakPublicKey derives the taproot output key from the internal key and
// the merkle root of the script tree: outputKey = internalKey + tweak*G.
// Only the x coordinate of the internal key participates, so keys with
// unknown parity are tweaked in their even-y form.
func TweakPublicKey(internalKey *PublicKey,
	merkleRoot []byte) (*btcec.PublicKey, error) {

	// Re-parse the x-only serialization so the starting point always has
	// an even y coordinate.
	evenKey, err := schnorr.ParsePubKey(internalKey.XOnlyBytes())
	if err != nil {
		return nil, fmt.Errorf("error lifting internal key: %w", err)
	}

	tweak := TapTweakHash(internalKey.XOnlyBytes(), merkleRoot)

	var tweakScalar btcec.ModNScalar
	tweakScalar.SetBytes((*[32]byte)(tweak))

	var internalPoint btcec.JacobianPoint
	evenKey.AsJacobian(&internalPoint)

	var tweakPoint, outputPoint btcec.JacobianPoint
	btcec.ScalarBaseMultNonConst(&tweakScalar, &tweakPoint)
	btcec.AddNonConst(&internalPoint, &tweakPoint, &outputPoint)

	if (outputPoint.X.IsZero() && outputPoint.Y.IsZero()) ||
		outputPoint.Z.IsZero() {

		return nil, ErrInvalidTweak
	}

	outputPoint.ToAffine()

	return btcec.NewPublicKey(&outputPoint.X, &outputPoint.Y), nil
}
