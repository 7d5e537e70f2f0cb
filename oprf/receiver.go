package oprf

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/markkurossi/apsi/apsierr"
)

// Receiver accumulates the per-item blinding state for one OPRF exchange:
// hash-to-curve each item, pick a random blinding scalar, remember its
// inverse, and produce the blinded query batch to send to the sender.
// Mirrors spec.md §4.B's receiver-side steps and, in shape, the teacher
// codebase's per-transfer OT state objects (ot.COReceiverXfer).
type Receiver struct {
	invFactors []*big.Int
}

// NewReceiver blinds items (raw, pre-hash bytes) and returns the
// receiver state together with the serialized query batch to send to the
// sender. Each item uses its own CSPRNG draw, per spec.md §4.B's
// concurrency note that a process-global PRNG must not be assumed.
func NewReceiver(items [][]byte) (*Receiver, []byte, error) {
	q := Curve().Params().N
	r := &Receiver{invFactors: make([]*big.Int, len(items))}
	out := make([]byte, len(items)*PointLen)

	for i, data := range items {
		p, err := hashToCurve(data)
		if err != nil {
			return nil, nil, fmt.Errorf("oprf: blind item %d: %w", i, err)
		}

		var blind *big.Int
		for {
			b, err := rand.Int(rand.Reader, q)
			if err != nil {
				return nil, nil, fmt.Errorf("oprf: blind item %d: %w", i, err)
			}
			if b.Sign() != 0 {
				blind = b
				break
			}
		}

		inv := new(big.Int).ModInverse(blind, q)
		if inv == nil {
			return nil, nil, fmt.Errorf("oprf: blind item %d: %w: non-invertible blind",
				i, apsierr.ErrCrypto)
		}
		r.invFactors[i] = inv

		blinded := p.scalarMult(blind)
		copy(out[i*PointLen:(i+1)*PointLen], marshalPoint(blinded))
	}
	return r, out, nil
}

// Finalize unblinds the sender's responses and extracts the HashedItem
// and LabelKey for each item, in the same order items were passed to
// NewReceiver.
func (r *Receiver) Finalize(responses []byte) ([]ItemHash, error) {
	if len(responses) != len(r.invFactors)*PointLen {
		return nil, fmt.Errorf("%w: expected %d response bytes, got %d",
			apsierr.ErrProtocol, len(r.invFactors)*PointLen, len(responses))
	}

	out := make([]ItemHash, len(r.invFactors))
	for i, inv := range r.invFactors {
		raw := responses[i*PointLen : (i+1)*PointLen]
		p, err := unmarshalPoint(raw)
		if err != nil {
			return nil, fmt.Errorf("oprf: response %d: %w", i, err)
		}
		if !p.isValid() {
			return nil, fmt.Errorf("oprf: response %d: %w: point not in subgroup",
				i, apsierr.ErrCrypto)
		}
		unblinded := p.scalarMult(inv)
		out[i] = extractHash(unblinded)
	}
	return out, nil
}
