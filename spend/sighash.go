package spend

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/niumanuwu/BitcoinTaproot/taproot"
)

// SigHasher computes the BIP-341 signature digests of a transaction input.
// The key path digest commits to no script at all, which is the protocol's
// signal that no script path is revealed; the script path digest commits to
// exactly the leaf being spent.
type SigHasher interface {
	// KeyPathSigHash returns the digest a key path signature commits to.
	KeyPathSigHash(tx *wire.MsgTx, inputIndex int) ([]byte, error)

	// ScriptPathSigHash returns the digest a script path signature for
	// the given leaf commits to.
	ScriptPathSigHash(tx *wire.MsgTx, inputIndex int,
		leaf taproot.Leaf) ([]byte, error)
}

// TxSigHasher computes BIP-341 digests with the txscript implementation over
// the spent outputs known to its prevout fetcher.
type TxSigHasher struct {
	fetcher txscript.PrevOutputFetcher
}

// A compile time check to ensure TxSigHasher implements SigHasher.
var _ SigHasher = (*TxSigHasher)(nil)

// NewTxSigHasher creates a sig hasher over the given spent outputs.
func NewTxSigHasher(fetcher txscript.PrevOutputFetcher) *TxSigHasher {
	return &TxSigHasher{fetcher: fetcher}
}

// KeyPathSigHash returns the digest a key path signature commits to.
func (h *TxSigHasher) KeyPathSigHash(tx *wire.MsgTx,
	inputIndex int) ([]byte, error) {

	sigHashes := txscript.NewTxSigHashes(tx, h.fetcher)
	return txscript.CalcTaprootSignatureHash(
		sigHashes, txscript.SigHashDefault, tx, inputIndex, h.fetcher,
	)
}

// ScriptPathSigHash returns the digest a script path signature for the given
// leaf commits to.
func (h *TxSigHasher) ScriptPathSigHash(tx *wire.MsgTx, inputIndex int,
	leaf taproot.Leaf) ([]byte, error) {

	sigHashes := txscript.NewTxSigHashes(tx, h.fetcher)
	tapLeaf := txscript.NewTapLeaf(
		txscript.TapscriptLeafVersion(leaf.Version), leaf.Script,
	)

	return txscript.CalcTapscriptSignaturehash(
		sigHashes, txscript.SigHashDefault, tx, inputIndex, h.fetcher,
		tapLeaf,
	)
}
