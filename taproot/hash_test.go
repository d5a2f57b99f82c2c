package taproot

import (
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

// TestTaggedHashKnownTags verifies that the pre-computed tag digests produce
// the same results as the generic tagged hash of the btcd stack.
func TestTaggedHashKnownTags(t *testing.T) {
	t.Parallel()

	msg := []byte("tagged hash test message")

	testCases := []struct {
		tag       string
		chainTag  []byte
	}{
		{tag: TagTapLeaf, chainTag: chainhash.TagTapLeaf},
		{tag: TagTapBranch, chainTag: chainhash.TagTapBranch},
		{tag: TagTapTweak, chainTag: chainhash.TagTapTweak},
	}
	for _, tc := range testCases {
		ours := TaggedHash(tc.tag, msg)
		theirs := chainhash.TaggedHash(tc.chainTag, msg)
		require.Equal(t, theirs[:], ours[:], "tag %s", tc.tag)
	}
}

// TestTaggedHashArbitraryTag verifies the construction for a tag without a
// pre-computed digest: SHA256(SHA256(tag) || SHA256(tag) || msg).
func TestTaggedHashArbitraryTag(t *testing.T) {
	t.Parallel()

	tag, msg := "SomeOtherTag", []byte{0x01, 0x02, 0x03}

	tagDigest := sha256.Sum256([]byte(tag))
	h := sha256.New()
	_, _ = h.Write(tagDigest[:])
	_, _ = h.Write(tagDigest[:])
	_, _ = h.Write(msg)
	expected := h.Sum(nil)

	result := TaggedHash(tag, msg)
	require.Equal(t, expected, result[:])
}

// TestTaggedHashMultiChunk verifies that message chunks are hashed as their
// plain concatenation.
func TestTaggedHashMultiChunk(t *testing.T) {
	t.Parallel()

	a, b := []byte("first"), []byte("second")

	joined := TaggedHash(TagTapBranch, append(append([]byte{}, a...), b...))
	chunked := TaggedHash(TagTapBranch, a, b)
	require.Equal(t, joined, chunked)
}
