package taproot

import (
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

func testPrivKey(scalar byte) *btcec.PrivateKey {
	privBytes := make([]byte, 32)
	privBytes[31] = scalar
	priv, _ := btcec.PrivKeyFromBytes(privBytes)

	return priv
}

// TestTweakPublicKeyMatchesTxscript cross-checks the output key derivation
// against txscript, both with a script root and with the empty root of a
// script-less output.
func TestTweakPublicKeyMatchesTxscript(t *testing.T) {
	t.Parallel()

	internalPriv := testPrivKey(42)
	internalKey := NewPublicKey(internalPriv.PubKey())

	root, err := RootHash(testLeaves(2))
	require.NoError(t, err)

	for _, merkleRoot := range [][]byte{root, {}} {
		outputKey, err := TweakPublicKey(internalKey, merkleRoot)
		require.NoError(t, err)

		expected := txscript.ComputeTaprootOutputKey(
			internalPriv.PubKey(), merkleRoot,
		)
		require.Equal(
			t, expected.SerializeCompressed(),
			outputKey.SerializeCompressed(),
		)
	}
}

// TestTweakPrivateKeyMatchesPublic asserts the central consistency property:
// the public key of the tweaked private key is exactly the tweaked public
// key, for internal keys of both parities.
func TestTweakPrivateKeyMatchesPublic(t *testing.T) {
	t.Parallel()

	root, err := RootHash(testLeaves(2))
	require.NoError(t, err)

	// Scalar 1 yields an even internal key, scalar 6 an odd one.
	for _, scalar := range []byte{1, 6} {
		internalPriv := testPrivKey(scalar)

		material, err := TweakPrivateKey(internalPriv, root)
		require.NoError(t, err)

		outputKey, err := TweakPublicKey(
			NewPublicKey(internalPriv.PubKey()), root,
		)
		require.NoError(t, err)

		require.Equal(
			t, outputKey.SerializeCompressed(),
			material.PubKey.SerializeCompressed(),
			"scalar %d", scalar,
		)
		require.Equal(
			t, material.PubKey.SerializeCompressed(),
			material.PrivKey.PubKey().SerializeCompressed(),
		)
		require.Equal(
			t,
			material.PubKey.SerializeCompressed()[0] ==
				secp256k1.PubKeyFormatCompressedOdd,
			material.OddY,
		)
	}
}

// TestTweakPrivateKeyMatchesTxscript cross-checks the tweaked scalar against
// the txscript implementation.
func TestTweakPrivateKeyMatchesTxscript(t *testing.T) {
	t.Parallel()

	root, err := RootHash(testLeaves(2))
	require.NoError(t, err)

	material, err := TweakPrivateKey(testPrivKey(99), root)
	require.NoError(t, err)

	expected := txscript.TweakTaprootPrivKey(*testPrivKey(99), root)
	require.Equal(t, expected.Serialize(), material.PrivKey.Serialize())
}

// TestTweakPrivateKeyLeavesInputIntact asserts the supplied key survives the
// internal negation for odd-parity keys.
func TestTweakPrivateKeyLeavesInputIntact(t *testing.T) {
	t.Parallel()

	internalPriv := testPrivKey(6)
	before := internalPriv.Serialize()

	_, err := TweakPrivateKey(internalPriv, []byte{})
	require.NoError(t, err)
	require.Equal(t, before, internalPriv.Serialize())
}

// TestTweakedKeyMaterialZero asserts the ephemeral material wipes its
// private part.
func TestTweakedKeyMaterialZero(t *testing.T) {
	t.Parallel()

	material, err := TweakPrivateKey(testPrivKey(3), []byte{})
	require.NoError(t, err)
	require.NotNil(t, material.PrivKey)

	material.Zero()
	require.Nil(t, material.PrivKey)

	// Zero is idempotent.
	material.Zero()
	require.Nil(t, material.PrivKey)
}

// TestTapTweakHash cross-checks the tweak commitment with the tagged hash
// used by the btcd stack.
func TestTapTweakHash(t *testing.T) {
	t.Parallel()

	internalKey := NewPublicKey(testPrivKey(11).PubKey())
	root, err := RootHash(testLeaves(2))
	require.NoError(t, err)

	tweak := TapTweakHash(internalKey.XOnlyBytes(), root)
	expected := chainhash.TaggedHash(
		chainhash.TagTapTweak, internalKey.XOnlyBytes(), root,
	)
	require.Equal(t, expected, tweak)

	// The x-only serialization already drops the parity, so tweaking is
	// indifferent to it.
	require.Equal(
		t, schnorr.SerializePubKey(testPrivKey(11).PubKey()),
		internalKey.XOnlyBytes(),
	)
}
