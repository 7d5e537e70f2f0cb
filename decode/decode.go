// Package decode implements the receiver-side result decoder (spec.md
// §4.F, component F): decrypting ResultPackages, de-batching them back
// into per-bin field elements, detecting zero-slot matches, and
// reconstructing labels.
package decode

import (
	"fmt"

	"github.com/markkurossi/apsi/apsierr"
	"github.com/markkurossi/apsi/cuckoo"
	"github.com/markkurossi/apsi/field"
	"github.com/markkurossi/apsi/item"
	"github.com/markkurossi/apsi/psiparams"
	"github.com/markkurossi/apsi/resultpkg"
	"github.com/markkurossi/apsi/seal"
)

// MatchRecord is the per-receiver-item outcome of a query, per spec.md
// §4.F and the GLOSSARY's MatchRecord references.
type MatchRecord struct {
	Item  item.Item
	Found bool
	Label []byte
}

// Decoder reconstructs MatchRecords from a stream of ResultPackages for
// one receiver query.
type Decoder struct {
	params         psiparams.PSIParams
	mod            field.Modulus
	codec          field.Codec
	itemsPerBundle int

	// placed maps a cuckoo cell index to the raw item the receiver put
	// there, so a zero-slot match can be attributed back to the original
	// query item (spec.md §4.F step 3).
	placed map[uint64]item.Item
}

// NewDecoder builds a Decoder for params. placements maps each cuckoo
// table cell index the receiver occupied to the plaintext item it holds,
// as produced by the receiver's own cuckoo.Table.
func NewDecoder(params psiparams.PSIParams, placements map[uint64]item.Item) (*Decoder, error) {
	mod, err := params.FieldModulus()
	if err != nil {
		return nil, err
	}
	codec, err := field.NewCodec(mod, params.Item.FeltsPerItem)
	if err != nil {
		return nil, err
	}
	return &Decoder{
		params:         params,
		mod:            mod,
		codec:          codec,
		itemsPerBundle: params.ItemsPerBundle(),
		placed:         placements,
	}, nil
}

// Decode processes one ResultPackage, decrypting and de-batching the
// match (and, if present, label) ciphertext and emitting a MatchRecord
// for every cuckoo cell in this bundle's range that the receiver had
// actually occupied.
func (d *Decoder) Decode(pkg resultpkg.ResultPackage, decryptor *seal.Decryptor, encoder *seal.Encoder, labelKeys map[uint64]item.LabelKey) ([]MatchRecord, error) {
	matchCt, err := seal.Decompress(pkg.MatchCiphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress match ciphertext: %v", apsierr.ErrCrypto, err)
	}
	matchSlots := encoder.Decode(decryptor.DecryptNew(matchCt))

	var labelSlots []uint64
	if len(pkg.LabelCiphertext) > 0 {
		labelCt, err := seal.Decompress(pkg.LabelCiphertext)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress label ciphertext: %v", apsierr.ErrCrypto, err)
		}
		labelSlots = encoder.Decode(decryptor.DecryptNew(labelCt))
	}

	var records []MatchRecord
	feltsPerItem := d.params.Item.FeltsPerItem

	for bin := 0; bin < d.itemsPerBundle; bin++ {
		cellIdx := uint64(pkg.BundleIndex*d.itemsPerBundle + bin)
		raw, placed := d.placed[cellIdx]
		if !placed {
			continue
		}

		matched := true
		matchFelts := make([]field.Elt, feltsPerItem)
		for c := 0; c < feltsPerItem; c++ {
			v := field.Elt(matchSlots[c*d.itemsPerBundle+bin])
			matchFelts[c] = v
			if v != 0 {
				matched = false
			}
		}

		record := MatchRecord{Item: raw, Found: matched}

		if matched && labelSlots != nil {
			labelFelts := make([]field.Elt, feltsPerItem)
			for c := 0; c < feltsPerItem; c++ {
				labelFelts[c] = field.Elt(labelSlots[c*d.itemsPerBundle+bin])
			}
			bitCount := 8 * (pkg.NonceByteCount + pkg.LabelByteCount)
			bits, err := d.codec.FromField(labelFelts, bitCount)
			if err != nil {
				return nil, fmt.Errorf("%w: de-algebraize label: %v", apsierr.ErrCrypto, err)
			}
			key, ok := labelKeys[cellIdx]
			if !ok {
				return nil, fmt.Errorf("%w: no label key recorded for matched cell",
					apsierr.ErrNotFound)
			}
			plain, err := item.DecryptLabel(key, item.EncryptedLabel(bits.Bytes()), pkg.NonceByteCount)
			if err != nil {
				return nil, fmt.Errorf("%w: decrypt label: %v", apsierr.ErrCrypto, err)
			}
			record.Label = plain
		}

		records = append(records, record)
	}

	return records, nil
}

// LocatePlacements derives the {cell index -> raw item} map Decode needs
// by replaying the receiver's own cuckoo placement, since that placement
// already happened on this same side of the protocol (spec.md §4.F
// "PowersDag reconstruction" makes the analogous point about the DAG:
// everything the decoder needs is already available locally).
func LocatePlacements(t *cuckoo.Table, items map[item.HashedItem]item.Item) map[uint64]item.Item {
	out := make(map[uint64]item.Item, len(items))
	for hashed, raw := range items {
		if loc, ok := t.LocationOf(hashed); ok {
			out[loc] = raw
		}
	}
	return out
}
