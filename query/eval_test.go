package query

import (
	"testing"

	"github.com/markkurossi/apsi/seal"
)

// evalFixture builds a real BFV key pair and evaluator, a coefficient
// row for a small polynomial, and the encrypted powers of a fixed base
// x, so evalPolynomial can be exercised end to end without a SenderDB.
type evalFixture struct {
	evaluator *seal.Evaluator
	decryptor *seal.Decryptor
	encoder   *seal.Encoder
	zero      *seal.Plaintext
	powersCt  map[int]*seal.Ciphertext
	coeffs    []uint64
	modulus   uint64
	n         int
}

func newEvalFixture(t *testing.T, maxDeg int, coeffs []uint64, x uint64) *evalFixture {
	t.Helper()
	if len(coeffs) != maxDeg+1 {
		t.Fatalf("newEvalFixture: need %d coefficients, got %d", maxDeg+1, len(coeffs))
	}

	params, err := seal.NewParams(11, []int{40, 40}, []int{40}, 65537)
	if err != nil {
		t.Fatalf("NewParams: %v", err)
	}
	kp := seal.GenKeyPair(params)
	rlk := seal.GenRelinKey(params, kp.Secret)
	encryptor := seal.NewEncryptor(params, kp.Public)
	decryptor := seal.NewDecryptor(params, kp.Secret)
	encoder := seal.NewEncoder(params)
	evaluator := seal.NewEvaluator(params, rlk)

	modulus := params.PlaintextModulus()
	constant := func(v uint64) []uint64 {
		vals := make([]uint64, params.N())
		for i := range vals {
			vals[i] = v % modulus
		}
		return vals
	}

	powersCt := make(map[int]*seal.Ciphertext, maxDeg)
	xPow := uint64(1)
	for r := 1; r <= maxDeg; r++ {
		xPow = (xPow * x) % modulus
		powersCt[r] = encryptor.EncryptNew(encoder.EncodeNTT(constant(xPow)))
	}

	return &evalFixture{
		evaluator: evaluator,
		decryptor: decryptor,
		encoder:   encoder,
		zero:      encoder.EncodeZero(),
		powersCt:  powersCt,
		coeffs:    coeffs,
		modulus:   modulus,
		n:         params.N(),
	}
}

func (f *evalFixture) coeffRow(r int) *seal.Plaintext {
	vals := make([]uint64, f.n)
	for i := range vals {
		vals[i] = f.coeffs[r]
	}
	return f.encoder.EncodeNTT(vals)
}

// expected computes Sum coeffs[r]*x^r mod modulus directly, independent
// of evalPolynomial, as the reference value both evaluation strategies
// must decrypt to.
func (f *evalFixture) expected(x uint64) uint64 {
	total := f.coeffs[0] % f.modulus
	xPow := uint64(1)
	for r := 1; r < len(f.coeffs); r++ {
		xPow = (xPow * x) % f.modulus
		total = (total + f.coeffs[r]*xPow) % f.modulus
	}
	return total
}

func (f *evalFixture) decryptFirstSlot(ct *seal.Ciphertext) uint64 {
	return f.encoder.Decode(f.decryptor.DecryptNew(ct))[0]
}

// TestPatersonStockmeyerMatchesHornerAndReference covers spec.md §8
// Scenario D: Paterson-Stockmeyer and Horner evaluation of the same
// polynomial must agree with each other and with a plaintext reference,
// for a degree that evenly divides the low-degree split (the only
// configuration psiparams.Validate now allows) as well as the
// low-degree-equal-to-max-degree edge case.
func TestPatersonStockmeyerMatchesHornerAndReference(t *testing.T) {
	coeffs := []uint64{2, 5, 9, 7, 1, 3, 8, 4, 6, 0, 10} // degree 10
	const x = 7
	f := newEvalFixture(t, 10, coeffs, x)
	want := f.expected(x)

	hornerCt := evalPolynomial(f.evaluator, f.zero, f.powersCt, f.coeffRow, 10, 0)
	if got := f.decryptFirstSlot(hornerCt); got != want {
		t.Fatalf("horner: got %d, want %d", got, want)
	}

	for _, low := range []int{1, 2, 5, 10} {
		psCt := evalPolynomial(f.evaluator, f.zero, f.powersCt, f.coeffRow, 10, low)
		if got := f.decryptFirstSlot(psCt); got != want {
			t.Fatalf("paterson-stockmeyer low=%d: got %d, want %d (horner reference: %d)",
				low, got, want, f.decryptFirstSlot(hornerCt))
		}
	}
}

// TestPatersonStockmeyerNonDivisibleDegree covers the boundary case
// psiparams.Validate now rejects at configuration time (max_items_per_bin
// not a multiple of ps_low_degree): evalPolynomial itself must still not
// double-count or panic if ever invoked with such a split directly, since
// its group base rows are bounded by maxDeg/low*low <= maxDeg regardless
// of divisibility.
func TestPatersonStockmeyerNonDivisibleDegree(t *testing.T) {
	coeffs := []uint64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1} // degree 10, x^r term all coefficient 1
	const x = 3
	f := newEvalFixture(t, 10, coeffs, x)
	want := f.expected(x)

	for _, low := range []int{3, 4, 7} {
		psCt := evalPolynomial(f.evaluator, f.zero, f.powersCt, f.coeffRow, 10, low)
		if got := f.decryptFirstSlot(psCt); got != want {
			t.Fatalf("paterson-stockmeyer low=%d: got %d, want %d", low, got, want)
		}
	}
}
