package oprf

import (
	"crypto/elliptic"
	"fmt"
	"math/big"

	"github.com/markkurossi/apsi/apsierr"
)

// PointLen is the serialized length, in bytes, of a curve point on the
// wire. P-256's field is exactly 256 bits wide, one bit short of fitting
// a sign bit into the spec's nominal 32-byte "x-only plus sign bit"
// layout (that layout fits curves like the original's FourQ, whose field
// is 255 bits). With P-256 the standard library's compressed point
// format needs the extra selector byte; see SPEC_FULL.md §9.4 for this
// deviation from the spec's literal byte count.
const PointLen = 33

// point is an internal helper wrapping curve coordinates.
type point struct {
	x, y *big.Int
}

func marshalPoint(p point) []byte {
	return elliptic.MarshalCompressed(Curve(), p.x, p.y)
}

func unmarshalPoint(data []byte) (point, error) {
	if len(data) != PointLen {
		return point{}, fmt.Errorf("%w: point must be %d bytes, got %d",
			apsierr.ErrCrypto, PointLen, len(data))
	}
	x, y := elliptic.UnmarshalCompressed(Curve(), data)
	if x == nil {
		return point{}, fmt.Errorf("%w: not a valid curve point", apsierr.ErrCrypto)
	}
	return point{x: x, y: y}, nil
}

func (p point) scalarMult(k *big.Int) point {
	x, y := Curve().ScalarMult(p.x, p.y, k.Bytes())
	return point{x: x, y: y}
}

func (p point) isValid() bool {
	return p.x != nil && p.y != nil && Curve().IsOnCurve(p.x, p.y)
}
