package seal

import (
	"github.com/tuneinsight/lattigo/v4/bfv"
	"github.com/tuneinsight/lattigo/v4/rlwe"
)

// Evaluator performs the homomorphic arithmetic the query engine needs:
// ciphertext-ciphertext multiplication with relinearization (PowersDag
// internal nodes, Paterson-Stockmeyer combination) and ciphertext-
// plaintext multiply-accumulate (evaluating a polynomial's coefficient
// row against a computed power).
type Evaluator struct {
	inner *bfv.Evaluator
}

// NewEvaluator builds an Evaluator bound to a relinearization key. A
// single Evaluator is safe to share across goroutines evaluating
// different BinBundles, matching spec.md §5: "Evaluation is parallel over
// BinBundles."
func NewEvaluator(params Params, rlk *RelinKey) *Evaluator {
	evk := rlwe.NewMemEvaluationKeySet(rlk)
	return &Evaluator{inner: bfv.NewEvaluator(params.Parameters, evk)}
}

// MulRelinNew multiplies two ciphertexts and relinearizes the result,
// implementing one PowersDag internal-node step (spec.md §4.E step 1:
// "Each internal-node multiplication is followed by relinearization").
func (e *Evaluator) MulRelinNew(a, b *Ciphertext) *Ciphertext {
	out := e.inner.MulNew(a, b)
	e.inner.Relinearize(out, out)
	return out
}

// MulPlainNew multiplies a ciphertext by a batched plaintext coefficient
// row without relinearization (ciphertext-plaintext products never grow
// the ciphertext degree).
func (e *Evaluator) MulPlainNew(ct *Ciphertext, pt *Plaintext) *Ciphertext {
	return e.inner.MulNew(ct, pt)
}

// AddNew adds two ciphertexts.
func (e *Evaluator) AddNew(a, b *Ciphertext) *Ciphertext {
	return e.inner.AddNew(a, b)
}

// AddPlainNew adds a plaintext into a ciphertext (used for the constant
// term of a Horner-style or Paterson-Stockmeyer evaluation).
func (e *Evaluator) AddPlainNew(ct *Ciphertext, pt *Plaintext) *Ciphertext {
	return e.inner.AddNew(ct, pt)
}

// Accumulate adds src into dst in place, used when folding coefficient
// contributions across a bundle's rows.
func (e *Evaluator) Accumulate(dst, src *Ciphertext) {
	e.inner.Add(dst, src, dst)
}
