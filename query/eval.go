package query

import "github.com/markkurossi/apsi/seal"

// evalPolynomial computes Sum_r coeffRow(r) * powers[r] for r in [0,maxDeg],
// using either plain Horner-style accumulation (psLowDegree == 0) or
// Paterson-Stockmeyer (psLowDegree > 0), per spec.md §4.E step 2.
// coeffRow(r) returns the batched plaintext of coefficient row r, shared
// between the match and label polynomials by passing BinBundle.MatchPlaintext
// or BinBundle.LabelPlaintext. zero is the all-zero NTT plaintext, needed
// to manufacture a fresh encryption of a pure constant when a
// Paterson-Stockmeyer inner group has no non-constant terms.
func evalPolynomial(ev *seal.Evaluator, zero *seal.Plaintext, powersCt map[int]*seal.Ciphertext, coeffRow func(int) *seal.Plaintext, maxDeg, psLowDegree int) *seal.Ciphertext {
	if psLowDegree <= 0 {
		return horner(ev, powersCt, coeffRow, maxDeg)
	}
	return patersonStockmeyer(ev, zero, powersCt, coeffRow, maxDeg, psLowDegree)
}

// horner computes the dot product Sum_{r=1}^{maxDeg} coeffRow(r)*x^r,
// then folds in the constant term as a plaintext addition (x^0 needs no
// ciphertext, per spec.md §4.E: "C0 ... substituted as plaintext add").
func horner(ev *seal.Evaluator, powersCt map[int]*seal.Ciphertext, coeffRow func(int) *seal.Plaintext, maxDeg int) *seal.Ciphertext {
	var result *seal.Ciphertext
	for r := 1; r <= maxDeg; r++ {
		term := ev.MulPlainNew(powersCt[r], coeffRow(r))
		if result == nil {
			result = term
		} else {
			ev.Accumulate(result, term)
		}
	}
	return ev.AddPlainNew(result, coeffRow(0))
}

// innerPoly evaluates one Paterson-Stockmeyer group's low-degree inner
// polynomial Sum_{i=0}^{top-lo} coeffRow(lo+i)*x^i, where lo = g*low is
// the group's base row and top is its last covered row (top-lo <
// low). powersCt is indexed by the local exponent i (1..top-lo), not the
// global row number; i=0 (the group's constant term) needs no
// ciphertext. Groups never overlap: group g covers rows
// [g*low, g*low+low-1] (clamped to maxDeg), so coeffRow(lo) here is
// never the same row as any other group's constant or non-constant term.
func innerPoly(ev *seal.Evaluator, zero *seal.Plaintext, powersCt map[int]*seal.Ciphertext, coeffRow func(int) *seal.Plaintext, lo, top int) *seal.Ciphertext {
	var result *seal.Ciphertext
	for i := 1; i <= top-lo; i++ {
		term := ev.MulPlainNew(powersCt[i], coeffRow(lo+i))
		if result == nil {
			result = term
		} else {
			ev.Accumulate(result, term)
		}
	}
	base := coeffRow(lo)
	if result == nil {
		// No non-constant terms in this group: manufacture a fresh
		// encryption of zero from any available ciphertext and add the
		// constant on top.
		result = ev.MulPlainNew(powersCt[1], zero)
	}
	return ev.AddPlainNew(result, base)
}

// patersonStockmeyer evaluates the polynomial by splitting its maxDeg+1
// coefficients into non-overlapping groups of size psLowDegree (the last
// group may be shorter), each evaluated as a low-degree inner polynomial
// in x^1..x^(psLowDegree-1), then combined via powers of x^psLowDegree
// (spec.md §4.E step 2, Paterson-Stockmeyer branch). numGroups =
// maxDeg/low + 1, using integer division, which keeps every group's base
// row g*low <= maxDeg regardless of whether low divides maxDeg.
func patersonStockmeyer(ev *seal.Evaluator, zero *seal.Plaintext, powersCt map[int]*seal.Ciphertext, coeffRow func(int) *seal.Plaintext, maxDeg, low int) *seal.Ciphertext {
	numGroups := maxDeg/low + 1

	lowPowers := make(map[int]*seal.Ciphertext, low-1)
	for i := 1; i < low; i++ {
		lowPowers[i] = powersCt[i]
	}
	// innerPoly falls back on x^1 to build an encryption of zero for a
	// group with no non-constant terms, which is every group when low == 1.
	lowPowers[1] = powersCt[1]

	inner := make([]*seal.Ciphertext, numGroups)
	for g := 0; g < numGroups; g++ {
		lo := g * low
		top := lo + low - 1
		if top > maxDeg {
			top = maxDeg
		}
		inner[g] = innerPoly(ev, zero, lowPowers, coeffRow, lo, top)
	}

	result := inner[0]
	xLow := powersCt[low]
	xPow := xLow
	for g := 1; g < numGroups; g++ {
		term := ev.MulRelinNew(inner[g], xPow)
		result = ev.AddNew(result, term)
		if g < numGroups-1 {
			xPow = ev.MulRelinNew(xPow, xLow)
		}
	}
	return result
}
