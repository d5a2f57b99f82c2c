package keyring

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/niumanuwu/BitcoinTaproot/vaultscript"
)

const (
	HardenedKeyStart = uint32(hdkeychain.HardenedKeyStart)

	// vaultPurpose is the BIP-43 purpose field of all vault keys. BIP-86
	// is the taproot single key derivation scheme.
	vaultPurpose = 86

	// Branches below the vault account, one per key role.
	internalKeyBranch = 0
	signerKeyBranch   = 1
	recoveryKeyBranch = 2
)

// VaultKeys is one vault's complete private key material, derived from a
// single seed. Callers must not retain the keys longer than the signing
// operation needs them.
type VaultKeys struct {
	Internal *btcec.PrivateKey
	Signers  [vaultscript.NumSigners]*btcec.PrivateKey
	Recovery *btcec.PrivateKey
}

// KeyRing derives vault keys from one extended root key. All vault keys of
// one seed live under m/86'/<coin type>'/<vault index>', with one branch per
// key role.
type KeyRing struct {
	ExtendedKey *hdkeychain.ExtendedKey
	ChainParams *chaincfg.Params
}

// AccountPath returns the derivation path of the given vault's account
// level.
func (r *KeyRing) AccountPath(vaultIndex uint32) string {
	return fmt.Sprintf("m/%d'/%d'/%d'", vaultPurpose,
		r.ChainParams.HDCoinType, vaultIndex)
}

// DeriveVaultKeys derives all private keys of the vault at the given index.
// The root key must be an extended private key.
func (r *KeyRing) DeriveVaultKeys(vaultIndex uint32) (*VaultKeys, error) {
	if !r.ExtendedKey.IsPrivate() {
		return nil, errors.New("extended public key cannot derive " +
			"private keys")
	}

	account, err := r.deriveAccount(vaultIndex)
	if err != nil {
		return nil, err
	}

	keys := &VaultKeys{}
	keys.Internal, err = branchPrivKey(account, internalKeyBranch, 0)
	if err != nil {
		return nil, fmt.Errorf("error deriving internal key: %w", err)
	}

	for idx := range keys.Signers {
		keys.Signers[idx], err = branchPrivKey(
			account, signerKeyBranch, uint32(idx),
		)
		if err != nil {
			return nil, fmt.Errorf("error deriving signer key "+
				"%d: %w", idx, err)
		}
	}

	keys.Recovery, err = branchPrivKey(account, recoveryKeyBranch, 0)
	if err != nil {
		return nil, fmt.Errorf("error deriving recovery key: %w", err)
	}

	return keys, nil
}

// DeriveVault derives the vault at the given index, public key material
// only. Works for both extended private and extended public root keys.
func (r *KeyRing) DeriveVault(vaultIndex uint32,
	lockHeight uint32) (*vaultscript.Vault, error) {

	account, err := r.deriveAccount(vaultIndex)
	if err != nil {
		return nil, err
	}

	internalKey, err := branchPubKey(account, internalKeyBranch, 0)
	if err != nil {
		return nil, fmt.Errorf("error deriving internal key: %w", err)
	}

	var signerKeys [vaultscript.NumSigners]*btcec.PublicKey
	for idx := range signerKeys {
		signerKeys[idx], err = branchPubKey(
			account, signerKeyBranch, uint32(idx),
		)
		if err != nil {
			return nil, fmt.Errorf("error deriving signer key "+
				"%d: %w", idx, err)
		}
	}

	recoveryKey, err := branchPubKey(account, recoveryKeyBranch, 0)
	if err != nil {
		return nil, fmt.Errorf("error deriving recovery key: %w", err)
	}

	return vaultscript.NewVault(
		internalKey, signerKeys, recoveryKey, lockHeight,
	)
}

// deriveAccount derives the hardened account level of one vault index. The
// account level is hardened so leaking one vault's keys reveals nothing
// about its siblings.
func (r *KeyRing) deriveAccount(
	vaultIndex uint32) (*hdkeychain.ExtendedKey, error) {

	if vaultIndex >= HardenedKeyStart {
		return nil, fmt.Errorf("vault index %d out of range",
			vaultIndex)
	}

	return DeriveChildren(r.ExtendedKey, []uint32{
		HardenedKey(vaultPurpose),
		HardenedKey(r.ChainParams.HDCoinType),
		HardenedKey(vaultIndex),
	})
}

func branchPrivKey(account *hdkeychain.ExtendedKey, branch,
	index uint32) (*btcec.PrivateKey, error) {

	key, err := DeriveChildren(account, []uint32{branch, index})
	if err != nil {
		return nil, err
	}

	return key.ECPrivKey()
}

func branchPubKey(account *hdkeychain.ExtendedKey, branch,
	index uint32) (*btcec.PublicKey, error) {

	key, err := DeriveChildren(account, []uint32{branch, index})
	if err != nil {
		return nil, err
	}

	return key.ECPubKey()
}

// DeriveChildren derives the given path of child indices below the key.
func DeriveChildren(key *hdkeychain.ExtendedKey, path []uint32) (
	*hdkeychain.ExtendedKey, error) {

	var currentKey = key
	for _, pathPart := range path {
		derivedKey, err := currentKey.Derive(pathPart)
		if err != nil {
			return nil, err
		}
		currentKey = derivedKey
	}
	return currentKey, nil
}

// ParsePath parses a BIP-32 style derivation path like m/86'/0'/0' into its
// child indices, with ' marking hardened levels.
func ParsePath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	if len(path) == 0 {
		return nil, errors.New("path cannot be empty")
	}
	if !strings.HasPrefix(path, "m/") {
		return nil, errors.New("path must start with m/")
	}
	parts := strings.Split(path, "/")
	indices := make([]uint32, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		index := uint32(0)
		part := parts[i]
		if strings.Contains(parts[i], "'") {
			index += HardenedKeyStart
			part = strings.TrimRight(parts[i], "'")
		}
		parsed, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("could not parse part \"%s\": "+
				"%v", part, err)
		}
		indices[i-1] = index + uint32(parsed)
	}
	return indices, nil
}

// HardenedKey returns the hardened form of the given child index.
func HardenedKey(key uint32) uint32 {
	return key + HardenedKeyStart
}
