package vaultscript

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/niumanuwu/BitcoinTaproot/taproot"
)

// Vault is the fully derived description of one taproot vault output: the
// internal key, the ordered leaf set (threshold leaf first, timelock leaf
// second), the merkle root committing to them and the lock height encoded in
// the timelock leaf. A vault is created once and never mutated; every spend
// operation only reads from it. A different script tree or internal key
// needs a new vault.
type Vault struct {
	// InternalKey is the key path key before tweaking. Its parity is
	// always definite since vaults are created from full public keys.
	InternalKey *taproot.PublicKey

	// SignerKeys are the threshold leaf keys in script order.
	SignerKeys [NumSigners]*btcec.PublicKey

	// RecoveryKey is the single key of the timelock leaf.
	RecoveryKey *btcec.PublicKey

	// LockHeight is the absolute block height the timelock leaf matures
	// at.
	LockHeight uint32

	// Leaves is the ordered committed leaf set.
	Leaves []taproot.Leaf

	// MerkleRoot is the root committing to Leaves.
	MerkleRoot []byte
}

// NewVault derives the committed script tree for the given keys and lock
// height and returns the immutable vault aggregate.
func NewVault(internalKey *btcec.PublicKey,
	signerKeys [NumSigners]*btcec.PublicKey, recoveryKey *btcec.PublicKey,
	lockHeight uint32) (*Vault, error) {

	if internalKey == nil {
		return nil, ErrMissingKey
	}

	thresholdScript, err := ThresholdScript(signerKeys)
	if err != nil {
		return nil, err
	}

	timelockScript, err := TimelockScript(lockHeight, recoveryKey)
	if err != nil {
		return nil, err
	}

	leaves := []taproot.Leaf{
		taproot.NewLeaf(thresholdScript),
		taproot.NewLeaf(timelockScript),
	}

	merkleRoot, err := taproot.RootHash(leaves)
	if err != nil {
		return nil, err
	}

	return &Vault{
		InternalKey: taproot.NewPublicKey(internalKey),
		SignerKeys:  signerKeys,
		RecoveryKey: recoveryKey,
		LockHeight:  lockHeight,
		Leaves:      leaves,
		MerkleRoot:  merkleRoot,
	}, nil
}

// ThresholdLeaf returns the leaf holding the 2-of-3 script.
func (v *Vault) ThresholdLeaf() taproot.Leaf {
	return v.Leaves[ThresholdLeafIndex]
}

// TimelockLeaf returns the leaf holding the CLTV recovery script.
func (v *Vault) TimelockLeaf() taproot.Leaf {
	return v.Leaves[TimelockLeafIndex]
}

// OutputKey returns the tweaked key the vault output pays to.
func (v *Vault) OutputKey() (*btcec.PublicKey, error) {
	return taproot.TweakPublicKey(v.InternalKey, v.MerkleRoot)
}

// ControlBlock derives the membership proof for the leaf at the given index.
func (v *Vault) ControlBlock(leafIdx int) (*taproot.ControlBlock, error) {
	return taproot.NewControlBlock(v.InternalKey, v.Leaves, leafIdx)
}

// Address returns the P2TR address of the vault output on the given network.
func (v *Vault) Address(
	params *chaincfg.Params) (*btcutil.AddressTaproot, error) {

	outputKey, err := v.OutputKey()
	if err != nil {
		return nil, err
	}

	return btcutil.NewAddressTaproot(
		schnorr.SerializePubKey(outputKey), params,
	)
}

// PkScript returns the witness program paying to the vault output.
func (v *Vault) PkScript(params *chaincfg.Params) ([]byte, error) {
	addr, err := v.Address(params)
	if err != nil {
		return nil, err
	}

	return txscript.PayToAddrScript(addr)
}
