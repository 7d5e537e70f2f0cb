// Package seal wraps the BFV leveled homomorphic encryption primitives
// this module needs behind a narrow interface, keeping every other
// package free of a direct lattigo import. spec.md treats "the underlying
// BFV library" as an external collaborator specified only at its
// interface to the core (§1); this package is that interface, backed by
// github.com/tuneinsight/lattigo/v4, the Go ecosystem's lattice-HE
// library.
package seal

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v4/bfv"
	"github.com/tuneinsight/lattigo/v4/rlwe"

	"github.com/markkurossi/apsi/apsierr"
)

// Params bundles the BFV parameter set named by spec.md §3's SEALParams:
// polynomial modulus degree, ciphertext modulus chain, and plaintext
// modulus.
type Params struct {
	bfv.Parameters
}

// NewParams builds a Params from the literal ring degree, ciphertext
// modulus bit-sizes and plaintext modulus, validating them against
// lattigo's own parameter checker.
func NewParams(logN int, logQ, logP []int, plaintextModulus uint64) (Params, error) {
	lit := bfv.ParametersLiteral{
		ParametersLiteral: rlwe.ParametersLiteral{
			LogN: logN,
			LogQ: logQ,
			LogP: logP,
		},
		PlaintextModulus: plaintextModulus,
	}
	p, err := bfv.NewParametersFromLiteral(lit)
	if err != nil {
		return Params{}, fmt.Errorf("%w: bfv parameters: %v", apsierr.ErrConfigInvalid, err)
	}
	return Params{Parameters: p}, nil
}

// N returns the polynomial modulus degree (number of batch slots).
func (p Params) N() int {
	return p.Parameters.N()
}

// PlaintextModulus returns the BFV plaintext prime p from spec.md's
// FieldElt definition.
func (p Params) PlaintextModulus() uint64 {
	return p.Parameters.PlaintextModulus()
}
