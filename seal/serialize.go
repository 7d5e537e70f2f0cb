package seal

import (
	"fmt"

	"github.com/markkurossi/apsi/apsierr"
)

// Compress serializes a ciphertext to bytes for the wire, via lattigo's
// own binary marshaling. spec.md §6 mentions an optional "seeded mode"
// where RNG-generated ciphertext components are replaced by an 8-byte
// seed; lattigo's MarshalBinary already omits redundant randomness from
// freshly sampled ciphertexts, so no separate seeded-mode flag is needed
// at this layer.
func Compress(ct *Ciphertext) ([]byte, error) {
	data, err := ct.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: marshal ciphertext: %v", apsierr.ErrCrypto, err)
	}
	return data, nil
}

// Decompress deserializes a ciphertext previously produced by Compress.
func Decompress(data []byte) (*Ciphertext, error) {
	ct := new(Ciphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: unmarshal ciphertext: %v", apsierr.ErrCrypto, err)
	}
	return ct, nil
}

// CompressPlaintext serializes a plaintext to bytes, used when persisting
// a SenderDB's precomputed NTT plaintexts (spec.md §6 Persistence).
func CompressPlaintext(pt *Plaintext) ([]byte, error) {
	data, err := pt.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: marshal plaintext: %v", apsierr.ErrCrypto, err)
	}
	return data, nil
}

// DecompressPlaintext deserializes a plaintext previously produced by
// CompressPlaintext.
func DecompressPlaintext(data []byte) (*Plaintext, error) {
	pt := new(Plaintext)
	if err := pt.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: unmarshal plaintext: %v", apsierr.ErrCrypto, err)
	}
	return pt, nil
}

// RelinKeyBytes serializes a relinearization key.
func RelinKeyBytes(rlk *RelinKey) ([]byte, error) {
	data, err := rlk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("%w: marshal relinearization key: %v", apsierr.ErrCrypto, err)
	}
	return data, nil
}

// ParseRelinKey deserializes a relinearization key previously produced by
// RelinKeyBytes.
func ParseRelinKey(data []byte) (*RelinKey, error) {
	rlk := new(RelinKey)
	if err := rlk.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: unmarshal relinearization key: %v", apsierr.ErrCrypto, err)
	}
	return rlk, nil
}
