package senderdb

import (
	"fmt"

	"github.com/markkurossi/apsi/apsierr"
	"github.com/markkurossi/apsi/field"
	"github.com/markkurossi/apsi/item"
	"github.com/markkurossi/apsi/seal"
)

// BinBundle is one cell of the SenderDB grid (spec.md §3, §4.D). It owns
// itemsPerBundle bins; each bin holds up to maxItemsPerBin items, one
// match polynomial per felt coordinate (and, for labeled databases, one
// label polynomial per coordinate), and the NTT-form batched plaintexts
// those polynomials encode to.
//
// A single receiver item is placed into exactly one bin of the bundle,
// but its felts_per_item coordinates occupy felts_per_item parallel
// "slices" of that bin — matching requires every coordinate's polynomial
// to evaluate to zero simultaneously (spec.md §4.F step 3).
type BinBundle struct {
	itemsPerBundle int
	feltsPerItem   int
	maxItemsPerBin int
	mod            field.Modulus
	hasLabels      bool

	bins []bin

	dirty           bool
	matchPlaintexts []*seal.Plaintext
	labelPlaintexts []*seal.Plaintext

	// binLoads snapshots each bin's item count for bundles whose raw
	// entries are gone (after Strip, or after Deserialize): Load reads
	// from here once bins is nil.
	binLoads []int
}

// newBinBundle allocates an empty bundle.
func newBinBundle(itemsPerBundle, feltsPerItem, maxItemsPerBin int, mod field.Modulus, hasLabels bool) *BinBundle {
	return &BinBundle{
		itemsPerBundle: itemsPerBundle,
		feltsPerItem:   feltsPerItem,
		maxItemsPerBin: maxItemsPerBin,
		mod:            mod,
		hasLabels:      hasLabels,
		bins:           make([]bin, itemsPerBundle),
		dirty:          true,
	}
}

// Load returns the number of items currently stored in bin binIdx, or, if
// the bundle's raw entries have been discarded (Strip, or a bundle
// rebuilt by Deserialize), the load count recorded at that time.
func (bb *BinBundle) Load(binIdx int) int {
	if bb.bins == nil {
		return bb.binLoads[binIdx]
	}
	return bb.bins[binIdx].load()
}

// TryInsert places hashed (with its algebraized coordinates and, if
// hasLabels, label coordinates) into bin binIdx. It returns inserted=true
// if the bin's state changed (new item appended, or an existing labeled
// item's label was overwritten), and duplicate=true if hashed was already
// present. Per spec.md §4.D idempotence: a duplicate in an unlabeled
// bundle is a silent no-op; in a labeled bundle the label is replaced.
func (bb *BinBundle) TryInsert(binIdx int, hashed item.HashedItem, coords, label []field.Elt) (inserted, duplicate bool) {
	b := &bb.bins[binIdx]
	if idx := b.indexOf(hashed); idx >= 0 {
		if bb.hasLabels {
			b.entries[idx].label = label
			bb.dirty = true
			return true, true
		}
		return false, true
	}
	if b.load() >= bb.maxItemsPerBin {
		return false, false
	}
	b.entries = append(b.entries, entry{hashed: hashed, coords: coords, label: label})
	bb.dirty = true
	return true, false
}

// Stale reports whether the bundle's plaintexts need recomputing.
func (bb *BinBundle) Stale() bool {
	return bb.dirty
}

// Compute (re)derives every bin's match (and label) polynomial and
// re-batches the coefficient rows into NTT plaintexts, per spec.md §4.D
// "Batch encoding". It is a no-op if the bundle is not dirty.
func (bb *BinBundle) Compute(encoder *seal.Encoder) error {
	if !bb.dirty {
		return nil
	}

	rows := bb.maxItemsPerBin + 1
	slotsPerRow := bb.itemsPerBundle * bb.feltsPerItem

	matchRows := make([][]uint64, rows)
	var labelRows [][]uint64
	if bb.hasLabels {
		labelRows = make([][]uint64, rows)
	}
	for r := range matchRows {
		matchRows[r] = make([]uint64, slotsPerRow)
		if bb.hasLabels {
			labelRows[r] = make([]uint64, slotsPerRow)
		}
	}

	for j := range bb.bins {
		entries := bb.bins[j].entries
		for c := 0; c < bb.feltsPerItem; c++ {
			roots := make([]field.Elt, len(entries))
			for i, e := range entries {
				roots[i] = e.coords[c]
			}
			matchCoeffs := polyFromRoots(bb.mod, roots)
			slot := c*bb.itemsPerBundle + j
			for r, coeff := range matchCoeffs {
				matchRows[r][slot] = uint64(coeff)
			}

			if bb.hasLabels && len(entries) > 0 {
				ys := make([]field.Elt, len(entries))
				for i, e := range entries {
					ys[i] = e.label[c]
				}
				labelCoeffs, err := newtonInterpolate(bb.mod, roots, ys)
				if err != nil {
					return fmt.Errorf("%w: label interpolation: %v", apsierr.ErrCrypto, err)
				}
				for r, coeff := range labelCoeffs {
					labelRows[r][slot] = uint64(coeff)
				}
			}
		}
	}

	bb.matchPlaintexts = make([]*seal.Plaintext, rows)
	for r, values := range matchRows {
		bb.matchPlaintexts[r] = encoder.EncodeNTT(values)
	}
	if bb.hasLabels {
		bb.labelPlaintexts = make([]*seal.Plaintext, rows)
		for r, values := range labelRows {
			bb.labelPlaintexts[r] = encoder.EncodeNTT(values)
		}
	}

	bb.dirty = false
	return nil
}

// MatchPlaintext returns the cached NTT plaintext for coefficient row r
// of the match polynomials. Compute must have been called since the last
// mutation.
func (bb *BinBundle) MatchPlaintext(r int) *seal.Plaintext {
	return bb.matchPlaintexts[r]
}

// LabelPlaintext returns the cached NTT plaintext for coefficient row r
// of the label polynomials, or nil if the bundle carries no labels.
func (bb *BinBundle) LabelPlaintext(r int) *seal.Plaintext {
	if !bb.hasLabels {
		return nil
	}
	return bb.labelPlaintexts[r]
}

// Rows returns the number of coefficient rows (max_items_per_bin + 1).
func (bb *BinBundle) Rows() int {
	return bb.maxItemsPerBin + 1
}

// Strip discards the raw items, keeping only the precomputed plaintexts,
// per spec.md §4.D "Stripping". Bin loads are snapshotted first so Load
// keeps reporting accurate counts afterward.
func (bb *BinBundle) Strip() {
	bb.binLoads = make([]int, bb.itemsPerBundle)
	for j := range bb.bins {
		bb.binLoads[j] = bb.bins[j].load()
	}
	bb.bins = nil
}
