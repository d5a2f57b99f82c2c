package taproot

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

const (
	// ControlBlockBaseSize is the size of a control block for a tree with
	// a single leaf: one header byte plus the x-only internal key.
	ControlBlockBaseSize = 1 + XOnlyKeyLen

	// ControlBlockNodeSize is the size each inclusion proof node adds to
	// a control block.
	ControlBlockNodeSize = chainhash.HashSize
)

var (
	// ErrNoLeaves is returned when constructing a commitment over an
	// empty leaf set, which is not a valid tree.
	ErrNoLeaves = errors.New("script tree must contain at least one leaf")

	// ErrLeafIndexOutOfRange is returned when the target leaf index does
	// not exist in the committed leaf set.
	ErrLeafIndexOutOfRange = errors.New("leaf index out of range")

	// ErrParityUnknown is returned when building a control block for an
	// internal key whose y parity was never resolved.
	ErrParityUnknown = errors.New("internal key parity must be known to " +
		"build a control block")
)

// BranchHash computes the TapBranch hash of two child hashes. The children
// are sorted byte-lexicographically before hashing, so the result only
// depends on the pair of values, not on which side of the tree each child
// occupies.
func BranchHash(left, right chainhash.Hash) chainhash.Hash {
	if bytes.Compare(left[:], right[:]) > 0 {
		left, right = right, left
	}

	return *TaggedHash(TagTapBranch, left[:], right[:])
}

// RootHash reduces the ordered leaf set to its merkle root. Per BIP-341 a
// tree with a single leaf commits to an empty root, not to the hash of the
// sole leaf. For larger trees, adjacent hashes are paired level by level; an
// odd trailing hash is carried up to the next level unchanged. The carry rule
// matches the committed tree shape of the two-leaf profile this package
// targets; arbitrary leaf counts would need an explicit, caller supplied
// tree shape instead.
func RootHash(leaves []Leaf) ([]byte, error) {
	switch len(leaves) {
	case 0:
		return nil, ErrNoLeaves

	case 1:
		return []byte{}, nil
	}

	level := leafHashes(leaves)
	for len(level) > 1 {
		level = reduceLevel(level)
	}

	root := level[0]
	return root[:], nil
}

// ControlBlock is the proof of tree membership revealed when spending
// through a script leaf: the leaf version and internal key parity in the
// header byte, the x-only internal key and the sibling hashes on the path
// from the leaf to the root.
type ControlBlock struct {
	// InternalKey is the key the output key was tweaked from.
	InternalKey *PublicKey

	// LeafVersion is the version of the leaf being proven.
	LeafVersion byte

	// InclusionProof is the concatenation of the 32 byte sibling hashes,
	// ordered leaf to root.
	InclusionProof []byte
}

// NewControlBlock derives the membership proof for the leaf at targetIdx in
// the ordered leaf set. The internal key must carry a definite y parity
// since the header byte encodes it.
func NewControlBlock(internalKey *PublicKey, leaves []Leaf,
	targetIdx int) (*ControlBlock, error) {

	if internalKey == nil {
		return nil, errors.New("internal key is required")
	}
	if !internalKey.ParityKnown() {
		return nil, ErrParityUnknown
	}
	if len(leaves) == 0 {
		return nil, ErrNoLeaves
	}
	if targetIdx < 0 || targetIdx >= len(leaves) {
		return nil, fmt.Errorf("%w: index %d with %d leaves",
			ErrLeafIndexOutOfRange, targetIdx, len(leaves))
	}

	block := &ControlBlock{
		InternalKey: internalKey,
		LeafVersion: leaves[targetIdx].Version,
	}

	// A single leaf is committed to directly, there are no siblings to
	// prove.
	if len(leaves) == 1 {
		return block, nil
	}

	// Walk the same level-by-level pairing the root reduction uses and
	// record the sibling of the node on the path to the target. A node
	// carried up unpaired has no sibling at that level.
	level := leafHashes(leaves)
	idx := targetIdx
	for len(level) > 1 {
		if sibling := idx ^ 1; sibling < len(level) {
			block.InclusionProof = append(
				block.InclusionProof, level[sibling][:]...,
			)
		}

		level = reduceLevel(level)
		idx /= 2
	}

	return block, nil
}

// Bytes returns the wire serialization of the control block: header byte
// (leaf version with the internal key's parity bit), x-only internal key and
// the inclusion proof. The length is always 33 + 32*depth bytes.
func (c *ControlBlock) Bytes() []byte {
	serialized := make(
		[]byte, 0, ControlBlockBaseSize+len(c.InclusionProof),
	)
	serialized = append(serialized, c.LeafVersion|c.InternalKey.ParityBit())
	serialized = append(serialized, c.InternalKey.XOnlyBytes()...)
	serialized = append(serialized, c.InclusionProof...)

	return serialized
}

// leafHashes maps the leaf set to its TapLeaf hashes, the lowest level of
// the tree.
func leafHashes(leaves []Leaf) []chainhash.Hash {
	hashes := make([]chainhash.Hash, len(leaves))
	for idx, leaf := range leaves {
		hashes[idx] = leaf.Hash()
	}

	return hashes
}

// reduceLevel pairs up adjacent hashes of one tree level into the next. An
// odd trailing hash is propagated unchanged, not duplicated.
func reduceLevel(level []chainhash.Hash) []chainhash.Hash {
	next := make([]chainhash.Hash, 0, (len(level)+1)/2)
	for idx := 0; idx+1 < len(level); idx += 2 {
		next = append(next, BranchHash(level[idx], level[idx+1]))
	}
	if len(level)%2 == 1 {
		next = append(next, level[len(level)-1])
	}

	return next
}
