package senderdb

import "github.com/markkurossi/apsi/field"

// polyFromRoots expands the monic polynomial M(x) = prod (x - roots[i]),
// returning coefficients in ascending order (coeffs[0] is the constant
// term), per spec.md §4.D's match-polynomial definition.
func polyFromRoots(mod field.Modulus, roots []field.Elt) []field.Elt {
	coeffs := make([]field.Elt, len(roots)+1)
	coeffs[0] = field.Elt(1)
	degree := 0
	for _, root := range roots {
		negRoot := mod.Neg(root)
		// Multiply the running product by (x - root): new[i] = old[i-1]
		// + negRoot*old[i], processed high-to-low so old values are read
		// before being overwritten.
		for i := degree + 1; i >= 1; i-- {
			shifted := field.Elt(0)
			if i-1 >= 0 {
				shifted = coeffs[i-1]
			}
			coeffs[i] = mod.Add(shifted, mod.Mul(negRoot, coeffs[i]))
		}
		coeffs[0] = mod.Mul(negRoot, coeffs[0])
		degree++
	}
	return coeffs
}

// newtonInterpolate computes, via divided differences, the coefficients
// (ascending order) of the unique polynomial of degree < len(xs) with
// L(xs[i]) == ys[i] for every i, per spec.md §4.D's label-polynomial
// definition.
func newtonInterpolate(mod field.Modulus, xs, ys []field.Elt) ([]field.Elt, error) {
	n := len(xs)
	table := make([]field.Elt, n)
	copy(table, ys)

	// divDiff[i] accumulates f[x0..xi] in place via Neville's scheme.
	divDiff := make([]field.Elt, n)
	divDiff[0] = table[0]
	for j := 1; j < n; j++ {
		for i := n - 1; i >= j; i-- {
			num := mod.Sub(table[i], table[i-1])
			den := mod.Sub(xs[i], xs[i-j])
			inv, err := mod.Inv(den)
			if err != nil {
				return nil, err
			}
			table[i] = mod.Mul(num, inv)
		}
		divDiff[j] = table[j]
	}

	// Expand the Newton form f[x0] + f[x0,x1](x-x0) + ... into the
	// standard power-basis coefficients. basis tracks the running
	// product (x-x0)...(x-x_{j-1}); coeffs accumulates coeffs[j] * basis.
	coeffs := make([]field.Elt, n)
	coeffs[0] = divDiff[0]
	basis := make([]field.Elt, n)
	basis[0] = field.Elt(1)
	basisDegree := 0
	for j := 1; j < n; j++ {
		negX := mod.Neg(xs[j-1])
		for i := basisDegree + 1; i >= 1; i-- {
			shifted := basis[i-1]
			basis[i] = mod.Add(shifted, mod.Mul(negX, basis[i]))
		}
		basis[0] = mod.Mul(negX, basis[0])
		basisDegree++

		for i := 0; i <= basisDegree; i++ {
			coeffs[i] = mod.Add(coeffs[i], mod.Mul(divDiff[j], basis[i]))
		}
	}
	return coeffs, nil
}
