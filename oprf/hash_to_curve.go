package oprf

import (
	"fmt"
	"math/big"

	"golang.org/x/crypto/blake2b"

	"github.com/markkurossi/apsi/apsierr"
)

// maxHashToCurveTries bounds the try-and-increment loop below. With a
// ~256-bit prime field the probability of exceeding this is negligible;
// it exists only to make the function total.
const maxHashToCurveTries = 256

// hashToCurve implements SPEC_FULL.md §9.1's resolution of the hash-to-
// curve Open Question: BLAKE2b-hash the input to a candidate x coordinate
// and try-and-increment until a point on the curve is found. This is not
// claimed to be indifferentiable; spec.md leaves that question open and
// this implementation does not attempt to resolve it.
func hashToCurve(data []byte) (point, error) {
	curve := Curve()
	params := curve.Params()

	h, err := blake2b.New256(nil)
	if err != nil {
		return point{}, fmt.Errorf("%w: blake2b init: %v", apsierr.ErrCrypto, err)
	}

	counter := make([]byte, 1)
	for try := 0; try < maxHashToCurveTries; try++ {
		h.Reset()
		h.Write(data)
		counter[0] = byte(try)
		h.Write(counter)
		digest := h.Sum(nil)

		x := new(big.Int).SetBytes(digest)
		x.Mod(x, params.P)

		// y^2 = x^3 - 3x + b (mod p), the short-Weierstrass form used by
		// the P-256 parameters in crypto/elliptic.
		x3 := new(big.Int).Exp(x, big.NewInt(3), params.P)
		threeX := new(big.Int).Mul(x, big.NewInt(3))
		rhs := new(big.Int).Sub(x3, threeX)
		rhs.Add(rhs, params.B)
		rhs.Mod(rhs, params.P)

		y := new(big.Int).ModSqrt(rhs, params.P)
		if y == nil {
			continue
		}
		if !curve.IsOnCurve(x, y) {
			continue
		}
		return point{x: x, y: y}, nil
	}
	return point{}, fmt.Errorf("%w: hash-to-curve exhausted retries", apsierr.ErrCrypto)
}
