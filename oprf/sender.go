package oprf

import (
	"fmt"

	"github.com/markkurossi/apsi/apsierr"
)

// Evaluate computes the sender's side of the OPRF for a batch of blinded
// query points, each PointLen bytes, concatenated. It returns one
// response point per query, same layout. Each query is evaluated
// independently (spec.md §4.B: "embarrassingly parallel per query; no
// shared mutation"); a malformed point aborts only that item, recording
// its index in the returned error slice rather than the whole batch.
func (k *Key) Evaluate(queries []byte) ([]byte, []error) {
	if len(queries)%PointLen != 0 {
		return nil, []error{fmt.Errorf("%w: query buffer length %d not a multiple of %d",
			apsierr.ErrProtocol, len(queries), PointLen)}
	}
	n := len(queries) / PointLen
	out := make([]byte, n*PointLen)
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		q := queries[i*PointLen : (i+1)*PointLen]
		p, err := unmarshalPoint(q)
		if err != nil {
			errs[i] = fmt.Errorf("oprf: query %d: %w", i, err)
			continue
		}
		if !p.isValid() {
			errs[i] = fmt.Errorf("oprf: query %d: %w: point not in subgroup", i, apsierr.ErrCrypto)
			continue
		}
		r := p.scalarMult(k.scalar)
		copy(out[i*PointLen:(i+1)*PointLen], marshalPoint(r))
	}
	return out, errs
}

// ComputeHashes is the direct (non-blinded) sender-side evaluation used
// by tests to establish OPRF correctness against the blinded exchange
// (spec.md §8 property 2): F(k, x) = H(x)^k, extracted the same way the
// receiver extracts it after unblinding.
func (k *Key) ComputeHashes(items [][]byte) ([]ItemHash, error) {
	out := make([]ItemHash, len(items))
	for i, data := range items {
		p, err := hashToCurve(data)
		if err != nil {
			return nil, fmt.Errorf("oprf: item %d: %w", i, err)
		}
		r := p.scalarMult(k.scalar)
		out[i] = extractHash(r)
	}
	return out, nil
}
