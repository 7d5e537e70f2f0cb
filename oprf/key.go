// Package oprf implements the elliptic-curve oblivious pseudorandom
// function used to hide receiver items from the sender and the sender's
// key from the receiver (spec.md §4.B). It follows the teacher codebase's
// Chou-Orlandi OT (ot/co.go) in choosing crypto/elliptic's P-256 curve as
// the concrete prime-order group, rather than reimplementing curve
// arithmetic.
package oprf

import (
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/markkurossi/apsi/apsierr"
)

// KeyLen is the length in bytes of a saved OPRFKey.
const KeyLen = 32

// Curve is the prime-order group used for the OPRF and is exported so
// callers constructing points from wire bytes use a consistent curve.
func Curve() elliptic.Curve {
	return elliptic.P256()
}

// Key owns the sender's OPRF scalar. It is immutable after construction,
// matching spec.md §5 ("OPRF key is immutable after construction").
type Key struct {
	scalar *big.Int
}

// NewKey generates a fresh, uniformly random key from [1, q).
func NewKey() (*Key, error) {
	q := Curve().Params().N
	for {
		k, err := rand.Int(rand.Reader, q)
		if err != nil {
			return nil, fmt.Errorf("oprf: generate key: %w", err)
		}
		if k.Sign() != 0 {
			return &Key{scalar: k}, nil
		}
	}
}

// Save returns the key as exactly KeyLen big-endian bytes.
func (k *Key) Save() []byte {
	buf := make([]byte, KeyLen)
	k.scalar.FillBytes(buf)
	return buf
}

// LoadKey reconstructs a Key from exactly KeyLen bytes saved by Save.
func LoadKey(data []byte) (*Key, error) {
	if len(data) != KeyLen {
		return nil, fmt.Errorf("%w: oprf key must be %d bytes, got %d",
			apsierr.ErrCrypto, KeyLen, len(data))
	}
	scalar := new(big.Int).SetBytes(data)
	q := Curve().Params().N
	if scalar.Sign() == 0 || scalar.Cmp(q) >= 0 {
		return nil, fmt.Errorf("%w: oprf key scalar out of range", apsierr.ErrCrypto)
	}
	return &Key{scalar: scalar}, nil
}
