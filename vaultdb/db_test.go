package vaultdb

import (
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/niumanuwu/BitcoinTaproot/vaultscript"
)

const testLockHeight = 800000

func testStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "vaults.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

func testVault(t *testing.T) *vaultscript.Vault {
	t.Helper()

	privAt := func(scalar byte) *btcec.PublicKey {
		privBytes := make([]byte, 32)
		privBytes[31] = scalar
		_, pub := btcec.PrivKeyFromBytes(privBytes)
		return pub
	}

	var signerKeys [vaultscript.NumSigners]*btcec.PublicKey
	for i := range signerKeys {
		signerKeys[i] = privAt(byte(i + 1))
	}

	vault, err := vaultscript.NewVault(
		privAt(5), signerKeys, privAt(4), testLockHeight,
	)
	require.NoError(t, err)

	return vault
}

// TestStoreRoundTrip asserts a stored record reconstructs the identical
// vault: same merkle root, same output address.
func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	vault := testVault(t)

	require.NoError(t, store.Put(NewRecord("savings", vault)))

	record, err := store.Get("savings")
	require.NoError(t, err)
	require.Equal(t, "savings", record.Name)
	require.EqualValues(t, testLockHeight, record.LockHeight)
	require.False(t, record.CreatedAt.IsZero())

	restored, err := record.Vault()
	require.NoError(t, err)
	require.Equal(t, vault.MerkleRoot, restored.MerkleRoot)

	want, err := vault.OutputKey()
	require.NoError(t, err)
	got, err := restored.OutputKey()
	require.NoError(t, err)
	require.Equal(t, want.SerializeCompressed(), got.SerializeCompressed())
}

func TestStorePutDuplicate(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	record := NewRecord("savings", testVault(t))

	require.NoError(t, store.Put(record))
	require.ErrorIs(t, store.Put(record), ErrVaultExists)
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()

	store := testStore(t)

	_, err := store.Get("nope")
	require.ErrorIs(t, err, ErrVaultNotFound)
}

func TestStoreList(t *testing.T) {
	t.Parallel()

	store := testStore(t)
	vault := testVault(t)

	records, err := store.List()
	require.NoError(t, err)
	require.Empty(t, records)

	require.NoError(t, store.Put(NewRecord("beta", vault)))
	require.NoError(t, store.Put(NewRecord("alpha", vault)))

	records, err = store.List()
	require.NoError(t, err)
	require.Len(t, records, 2)

	// bbolt iterates keys in byte order.
	require.Equal(t, "alpha", records[0].Name)
	require.Equal(t, "beta", records[1].Name)
}

func TestStoreDelete(t *testing.T) {
	t.Parallel()

	store := testStore(t)

	require.NoError(t, store.Put(NewRecord("savings", testVault(t))))
	require.NoError(t, store.Delete("savings"))
	require.ErrorIs(t, store.Delete("savings"), ErrVaultNotFound)

	_, err := store.Get("savings")
	require.ErrorIs(t, err, ErrVaultNotFound)
}

// TestRecordTamper asserts a record with the wrong number of signer keys is
// refused when reconstructing the vault.
func TestRecordTamper(t *testing.T) {
	t.Parallel()

	record := NewRecord("savings", testVault(t))
	record.SignerKeys = record.SignerKeys[:2]

	_, err := record.Vault()
	require.ErrorContains(t, err, "holds 2 signer keys")

	record = NewRecord("savings", testVault(t))
	record.InternalKey = "deadbeef"
	_, err = record.Vault()
	require.ErrorContains(t, err, "error parsing internal key")
}
