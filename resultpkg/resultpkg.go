// Package resultpkg defines the ResultPackage the query engine emits and
// the result decoder consumes (spec.md §4.E "Result package", §6
// "ResultPackage"). It is a leaf package so both sides of the protocol
// can depend on it without depending on each other.
package resultpkg

// ResultPackage carries one BinBundle's evaluated match (and optional
// label) ciphertext back to the receiver.
type ResultPackage struct {
	BundleIndex    int
	LabelByteCount int
	NonceByteCount int
	MatchCiphertext []byte
	LabelCiphertext []byte // nil if this bundle carries no label
}
