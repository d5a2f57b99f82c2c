package taproot

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Tags for the domain separated hashes used by the taproot commitment scheme
// as defined in BIP-341.
const (
	// TagTapLeaf is the tag used when hashing a single script leaf.
	TagTapLeaf = "TapLeaf"

	// TagTapBranch is the tag used when hashing an inner tree node from
	// its two children.
	TagTapBranch = "TapBranch"

	// TagTapTweak is the tag used when deriving the scalar that tweaks
	// the internal key into the output key.
	TagTapTweak = "TapTweak"
)

// The SHA-256 digests of the tags above are fixed, so we pre-compute them once
// instead of hashing the tag string on every call.
var (
	tagTapLeafDigest   = sha256.Sum256([]byte(TagTapLeaf))
	tagTapBranchDigest = sha256.Sum256([]byte(TagTapBranch))
	tagTapTweakDigest  = sha256.Sum256([]byte(TagTapTweak))
)

// TaggedHash computes the domain separated hash of the given message chunks:
// SHA256(SHA256(tag) || SHA256(tag) || msg). Every hash in the commitment
// scheme (TapLeaf, TapBranch, TapTweak) is this function with a fixed tag.
func TaggedHash(tag string, msgs ...[]byte) *chainhash.Hash {
	var tagDigest [sha256.Size]byte
	switch tag {
	case TagTapLeaf:
		tagDigest = tagTapLeafDigest

	case TagTapBranch:
		tagDigest = tagTapBranchDigest

	case TagTapTweak:
		tagDigest = tagTapTweakDigest

	default:
		tagDigest = sha256.Sum256([]byte(tag))
	}

	h := sha256.New()
	_, _ = h.Write(tagDigest[:])
	_, _ = h.Write(tagDigest[:])
	for _, msg := range msgs {
		_, _ = h.Write(msg)
	}

	var digest chainhash.Hash
	copy(digest[:], h.Sum(nil))

	return &digest
}
