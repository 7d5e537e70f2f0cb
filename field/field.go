// Package field implements arithmetic modulo the BFV plaintext prime and
// the bitstring<->field-element algebraization (spec.md §4.A, component
// FieldCodec) used to embed items and labels into BFV plaintext slots.
package field

import (
	"fmt"
	"math/bits"

	"github.com/markkurossi/apsi/apsierr"
	"github.com/markkurossi/apsi/item"
)

// Elt is a field element modulo a BFV plaintext prime p < 2^64.
// Arithmetic on Elt values is only meaningful relative to a particular
// Modulus; Elt itself carries no modulus, matching the teacher codebase's
// convention of keeping wire-format integer types free of behavior
// (compare ot.Label, which is a bare pair of uint64 words).
type Elt uint64

// Modulus describes the BFV plaintext prime and the number of bits that
// can be packed per field element without risking modular wraparound
// (spec.md: "one bit below prime bit length").
type Modulus struct {
	P           uint64
	BitsPerFelt int
}

// NewModulus validates p and derives BitsPerFelt.
func NewModulus(p uint64) (Modulus, error) {
	if p < 2 {
		return Modulus{}, fmt.Errorf("field: modulus %d is not usable", p)
	}
	bitLen := bits.Len64(p)
	return Modulus{P: p, BitsPerFelt: bitLen - 1}, nil
}

// Reduce reduces x modulo m.P.
func (m Modulus) Reduce(x uint64) Elt {
	return Elt(x % m.P)
}

// Add returns (a+b) mod p.
func (m Modulus) Add(a, b Elt) Elt {
	s := uint64(a) + uint64(b)
	if s >= m.P {
		s -= m.P
	}
	return Elt(s)
}

// Sub returns (a-b) mod p.
func (m Modulus) Sub(a, b Elt) Elt {
	if a >= b {
		return Elt(uint64(a) - uint64(b))
	}
	return Elt(m.P - (uint64(b) - uint64(a)))
}

// Mul returns (a*b) mod p using 128-bit intermediate multiplication.
func (m Modulus) Mul(a, b Elt) Elt {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	_, rem := bits.Div64(hi%m.P, lo, m.P)
	return Elt(rem)
}

// Neg returns (-a) mod p.
func (m Modulus) Neg(a Elt) Elt {
	if a == 0 {
		return 0
	}
	return Elt(m.P - uint64(a))
}

// Inv returns the multiplicative inverse of a modulo p via Fermat's
// little theorem (p is prime). Returns an error if a is zero.
func (m Modulus) Inv(a Elt) (Elt, error) {
	if a == 0 {
		return 0, fmt.Errorf("field: inverse of zero is undefined")
	}
	return m.Pow(a, m.P-2), nil
}

// Pow returns a^e mod p by square-and-multiply.
func (m Modulus) Pow(a Elt, e uint64) Elt {
	result := Elt(1)
	base := a
	for e > 0 {
		if e&1 == 1 {
			result = m.Mul(result, base)
		}
		base = m.Mul(base, base)
		e >>= 1
	}
	return result
}

// Codec converts between Bitstrings and fixed-length sequences of field
// elements (spec.md §4.A). FeltsPerItem is the target length of an
// AlgItem; Modulus.BitsPerFelt bits are packed into each element,
// LSB-first, least significant element first.
type Codec struct {
	Modulus      Modulus
	FeltsPerItem int
}

// NewCodec validates and builds a Codec.
func NewCodec(m Modulus, feltsPerItem int) (Codec, error) {
	if feltsPerItem <= 0 {
		return Codec{}, fmt.Errorf("field: felts_per_item must be positive")
	}
	return Codec{Modulus: m, FeltsPerItem: feltsPerItem}, nil
}

// Capacity returns the maximum number of bits this codec can encode.
func (c Codec) Capacity() int {
	return c.FeltsPerItem * c.Modulus.BitsPerFelt
}

// ToField converts bits into exactly FeltsPerItem field elements. It
// fails if bits carries more bits than Capacity() can hold.
func (c Codec) ToField(bits item.Bitstring) ([]Elt, error) {
	if bits.BitCount() > c.Capacity() {
		return nil, fmt.Errorf("%w: bitstring has %d bits, codec capacity is %d",
			apsierr.ErrCrypto, bits.BitCount(), c.Capacity())
	}

	felts := make([]Elt, c.FeltsPerItem)
	bpf := c.Modulus.BitsPerFelt

	for feltIdx := 0; feltIdx < c.FeltsPerItem; feltIdx++ {
		var v uint64
		for b := 0; b < bpf; b++ {
			globalBit := feltIdx*bpf + b
			if globalBit >= bits.BitCount() {
				break
			}
			if bits.Bit(globalBit) != 0 {
				v |= uint64(1) << uint(b)
			}
		}
		felts[feltIdx] = Elt(v)
	}
	return felts, nil
}

// FromField inverts ToField, reconstructing a Bitstring of exactly
// bitCount bits from felts. It is the exact inverse of ToField when felts
// and bitCount originated from a ToField call (spec.md round-trip
// invariant).
func (c Codec) FromField(felts []Elt, bitCount int) (item.Bitstring, error) {
	if len(felts) != c.FeltsPerItem {
		return item.Bitstring{}, fmt.Errorf(
			"field: expected %d field elements, got %d", c.FeltsPerItem, len(felts))
	}
	if bitCount <= 0 || bitCount > c.Capacity() {
		return item.Bitstring{}, fmt.Errorf(
			"field: bit count %d out of range for codec capacity %d",
			bitCount, c.Capacity())
	}

	out := make([]byte, (bitCount+7)/8)
	bpf := c.Modulus.BitsPerFelt

	for feltIdx, f := range felts {
		v := uint64(f)
		for b := 0; b < bpf; b++ {
			globalBit := feltIdx*bpf + b
			if globalBit >= bitCount {
				break
			}
			if (v>>uint(b))&1 != 0 {
				out[globalBit/8] |= 1 << uint(globalBit%8)
			}
		}
	}
	return item.NewBitstring(out, bitCount)
}

// AlgItem is the algebraized form of a single Item: a sequence of field
// elements of length FeltsPerItem.
type AlgItem []Elt

// AlgItemLabel pairs an algebraized item with its algebraized label, both
// encoded over the same Codec so they share felt count, per spec.md §4.A.
type AlgItemLabel struct {
	Item  AlgItem
	Label []Elt
}
