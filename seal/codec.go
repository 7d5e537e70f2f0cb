package seal

import (
	"github.com/tuneinsight/lattigo/v4/bfv"
	"github.com/tuneinsight/lattigo/v4/rlwe"
)

// Plaintext is a batched BFV plaintext, NTT-form when produced by
// Encoder.EncodeNTT, matching spec.md §4.D's "batch-encoded BFV
// plaintexts ... NTT-form for efficient ciphertext-plaintext products."
type Plaintext = rlwe.Plaintext

// Ciphertext is a BFV ciphertext.
type Ciphertext = rlwe.Ciphertext

// Encoder batches slices of field elements into plaintext slots and back.
type Encoder struct {
	params Params
	inner  bfv.Encoder
}

// NewEncoder builds an Encoder for the given parameters.
func NewEncoder(params Params) *Encoder {
	return &Encoder{params: params, inner: bfv.NewEncoder(params.Parameters)}
}

// EncodeNTT batches values (one per slot, length <= N) into a plaintext
// in NTT domain, ready for ciphertext-plaintext multiplication.
func (e *Encoder) EncodeNTT(values []uint64) *Plaintext {
	pt := bfv.NewPlaintext(e.params.Parameters, e.params.Parameters.MaxLevel())
	e.inner.Encode(values, pt)
	pt.IsNTT = true
	return pt
}

// Decode de-batches a plaintext back into up-to-N field element values.
func (e *Encoder) Decode(pt *Plaintext) []uint64 {
	values := make([]uint64, e.params.Parameters.N())
	e.inner.Decode(pt, values)
	return values
}

// EncodeZero returns the all-zero NTT plaintext, used by the query
// engine's Paterson-Stockmeyer evaluation to turn a ciphertext into an
// encryption of zero (ct * 0) as the starting point for a degree-0 inner
// polynomial that still needs to carry a constant term forward as a
// ciphertext.
func (e *Encoder) EncodeZero() *Plaintext {
	return e.EncodeNTT(make([]uint64, e.params.Parameters.N()))
}
