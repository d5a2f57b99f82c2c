package taproot

import (
	"bytes"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// BaseLeafVersion is the initial tapscript leaf version as defined in
// BIP-341. All leaves committed to by this package use this version.
const BaseLeafVersion byte = 0xc0

// Leaf is a single script alternative committed to by the taproot output.
// Leaves are value types and compare structurally: two leaves with the same
// version and script bytes are the same leaf.
type Leaf struct {
	// Version is the leaf version byte committed to alongside the script.
	Version byte

	// Script is the raw script executed when this leaf is revealed.
	Script []byte
}

// NewLeaf creates a leaf with the base leaf version for the given script.
func NewLeaf(script []byte) Leaf {
	return Leaf{
		Version: BaseLeafVersion,
		Script:  script,
	}
}

// Hash returns the TapLeaf commitment of the leaf: the tagged hash of the
// leaf version followed by the compact size prefixed script. The compact
// size encoding is the same variable length integer the transaction
// serialization uses, so the commitment matches what verifiers recompute
// from the revealed script.
func (l Leaf) Hash() chainhash.Hash {
	var encoded bytes.Buffer
	_ = encoded.WriteByte(l.Version)
	_ = wire.WriteVarBytes(&encoded, 0, l.Script)

	return *TaggedHash(TagTapLeaf, encoded.Bytes())
}
