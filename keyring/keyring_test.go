package keyring

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

const testLockHeight = 800000

// testSeed is the all zero 16 byte seed, fine for deriving test keys.
var testSeed = make([]byte, 16)

func testKeyRing(t *testing.T) *KeyRing {
	t.Helper()

	rootKey, err := hdkeychain.NewMaster(
		testSeed, &chaincfg.RegressionNetParams,
	)
	require.NoError(t, err)

	return &KeyRing{
		ExtendedKey: rootKey,
		ChainParams: &chaincfg.RegressionNetParams,
	}
}

// TestDeriveVaultKeys asserts the private keys of a vault match the public
// keys the vault itself was built from.
func TestDeriveVaultKeys(t *testing.T) {
	t.Parallel()

	ring := testKeyRing(t)

	vault, err := ring.DeriveVault(0, testLockHeight)
	require.NoError(t, err)

	keys, err := ring.DeriveVaultKeys(0)
	require.NoError(t, err)

	require.Equal(
		t, vault.InternalKey.SerializeCompressed(),
		keys.Internal.PubKey().SerializeCompressed(),
	)
	for idx, signerKey := range vault.SignerKeys {
		require.Equal(
			t, signerKey.SerializeCompressed(),
			keys.Signers[idx].PubKey().SerializeCompressed(),
		)
	}
	require.Equal(
		t, vault.RecoveryKey.SerializeCompressed(),
		keys.Recovery.PubKey().SerializeCompressed(),
	)
}

// TestVaultKeysDistinct asserts no key role or vault index shares a key with
// another.
func TestVaultKeysDistinct(t *testing.T) {
	t.Parallel()

	ring := testKeyRing(t)

	seen := make(map[string]bool)
	track := func(keyBytes []byte) {
		keyStr := string(keyBytes)
		require.False(t, seen[keyStr])
		seen[keyStr] = true
	}

	for vaultIndex := uint32(0); vaultIndex < 3; vaultIndex++ {
		keys, err := ring.DeriveVaultKeys(vaultIndex)
		require.NoError(t, err)

		track(keys.Internal.PubKey().SerializeCompressed())
		for _, signer := range keys.Signers {
			track(signer.PubKey().SerializeCompressed())
		}
		track(keys.Recovery.PubKey().SerializeCompressed())
	}
}

// TestDeriveVaultFromPublicKey asserts an extended public key at the account
// level can rebuild the vault but never its private keys.
func TestDeriveVaultFromPublicKey(t *testing.T) {
	t.Parallel()

	ring := testKeyRing(t)
	vault, err := ring.DeriveVault(1, testLockHeight)
	require.NoError(t, err)

	// Watch-only ring starting at the account level.
	path, err := ParsePath(ring.AccountPath(1))
	require.NoError(t, err)
	account, err := DeriveChildren(ring.ExtendedKey, path)
	require.NoError(t, err)
	accountPub, err := account.Neuter()
	require.NoError(t, err)

	internalKey, err := branchPubKey(accountPub, internalKeyBranch, 0)
	require.NoError(t, err)
	require.Equal(
		t, vault.InternalKey.SerializeCompressed(),
		internalKey.SerializeCompressed(),
	)

	watchRing := &KeyRing{
		ExtendedKey: accountPub,
		ChainParams: &chaincfg.RegressionNetParams,
	}
	_, err = watchRing.DeriveVaultKeys(1)
	require.ErrorContains(t, err, "cannot derive private keys")
}

func TestParsePath(t *testing.T) {
	t.Parallel()

	indices, err := ParsePath("m/86'/1'/0'/1/2")
	require.NoError(t, err)
	require.Equal(t, []uint32{
		HardenedKey(86), HardenedKey(1), HardenedKey(0), 1, 2,
	}, indices)

	_, err = ParsePath("")
	require.ErrorContains(t, err, "cannot be empty")

	_, err = ParsePath("86'/1'")
	require.ErrorContains(t, err, "must start with m/")

	_, err = ParsePath("m/86'/x")
	require.ErrorContains(t, err, "could not parse part")
}

func TestAccountPath(t *testing.T) {
	t.Parallel()

	ring := testKeyRing(t)
	require.Equal(t, "m/86'/1'/7'", ring.AccountPath(7))

	_, err := ring.DeriveVaultKeys(HardenedKeyStart)
	require.ErrorContains(t, err, "out of range")
}
