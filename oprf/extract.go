package oprf

import (
	"crypto/elliptic"

	"golang.org/x/crypto/blake2b"

	"github.com/markkurossi/apsi/item"
)

// extractHashLen is the number of bytes extracted from a resolved OPRF
// point: 16 for the HashedItem plus 32 for the LabelKey (spec.md §3,
// §4.B: "first 16 bytes = HashedItem, next 16 bytes = LabelKey" in the
// distilled spec's minimal-key variant; this implementation uses the
// full 32-byte LabelKey width item.LabelKey requires).
const extractHashLen = 16 + item.LabelKeyLen

// ItemHash is the (HashedItem, LabelKey) pair extracted from one resolved
// OPRF point.
type ItemHash struct {
	Hashed   item.HashedItem
	LabelKey item.LabelKey
}

func extractHash(p point) ItemHash {
	h, _ := blake2b.New(extractHashLen, nil)
	buf := elliptic.MarshalCompressed(Curve(), p.x, p.y)
	h.Write(buf)
	digest := h.Sum(nil)

	var result ItemHash
	result.Hashed.SetBytes(digest[:16])
	copy(result.LabelKey[:], digest[16:16+item.LabelKeyLen])
	return result
}
