package senderdb

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/markkurossi/apsi/apsierr"
	"github.com/markkurossi/apsi/field"
	"github.com/markkurossi/apsi/oprf"
	"github.com/markkurossi/apsi/psiparams"
	"github.com/markkurossi/apsi/seal"
	"github.com/markkurossi/apsi/workerpool"
)

// Serialize encodes the DB's persistence format, spec.md §6: the
// PSIParams blob, the label flag and label/nonce byte counts, the
// stripped flag, the OPRF key (omitted if the DB is stripped), and
// every row's BinBundles (bin loads, coefficient
// rows, and the optional label rows' precomputed NTT plaintexts).
// Every BinBundle must already be computed; Serialize returns
// apsierr.ErrStateError if any row holds a dirty (uncomputed) bundle,
// since persistence carries batched plaintexts, not raw items.
func (db *SenderDB) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	writeU32 := func(v uint32) { binary.Write(&buf, binary.LittleEndian, v) }
	writeBlob := func(b []byte) { writeU32(uint32(len(b))); buf.Write(b) }

	paramsBlob := db.params.Serialize()
	writeBlob(paramsBlob)

	writeU32(boolU32(db.hasLabels))
	writeU32(uint32(db.labelByteCount))
	writeU32(uint32(db.nonceByteCount))
	writeU32(boolU32(db.stripped.Load()))

	if !db.stripped.Load() {
		buf.Write(db.oprfKey.Save())
	}

	writeU32(uint32(len(db.rows)))
	for rowIdx := range db.rows {
		db.rowMu[rowIdx].RLock()
		row := db.rows[rowIdx]
		writeU32(uint32(len(row)))
		for _, bb := range row {
			blob, err := bb.serialize()
			if err != nil {
				db.rowMu[rowIdx].RUnlock()
				return nil, fmt.Errorf("%w: bundle index %d: %v", apsierr.ErrStateError, rowIdx, err)
			}
			writeBlob(blob)
		}
		db.rowMu[rowIdx].RUnlock()
	}

	return buf.Bytes(), nil
}

// Deserialize reconstructs a SenderDB previously produced by Serialize.
// pool, if nil, gets a fresh workerpool.Pool sized to NumCPU, matching
// New. The rebuilt cuckoo locator is a pure function of table_size and
// hash_func_count (cuckoo.Table's candidate locations do not depend on
// insertion history), so it need not be part of the wire format.
func Deserialize(data []byte, pool *workerpool.Pool) (*SenderDB, error) {
	r := bytes.NewReader(data)
	readU32 := func() (uint32, error) {
		var v uint32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, fmt.Errorf("%w: truncated SenderDB: %v", apsierr.ErrProtocol, err)
		}
		return v, nil
	}
	readBlob := func() ([]byte, error) {
		n, err := readU32()
		if err != nil {
			return nil, err
		}
		blob := make([]byte, n)
		if _, err := io.ReadFull(r, blob); err != nil {
			return nil, fmt.Errorf("%w: truncated SenderDB blob: %v", apsierr.ErrProtocol, err)
		}
		return blob, nil
	}

	paramsBlob, err := readBlob()
	if err != nil {
		return nil, err
	}
	params, err := psiparams.Deserialize(paramsBlob)
	if err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	hasLabelsU32, err := readU32()
	if err != nil {
		return nil, err
	}
	labelByteCount, err := readU32()
	if err != nil {
		return nil, err
	}
	nonceByteCount, err := readU32()
	if err != nil {
		return nil, err
	}
	strippedU32, err := readU32()
	if err != nil {
		return nil, err
	}

	db, err := New(params, hasLabelsU32 != 0, int(labelByteCount), int(nonceByteCount), pool)
	if err != nil {
		return nil, err
	}

	if strippedU32 != 0 {
		db.oprfKey = nil
	} else {
		keyBytes := make([]byte, oprf.KeyLen)
		if _, err := io.ReadFull(r, keyBytes); err != nil {
			return nil, fmt.Errorf("%w: truncated OPRF key: %v", apsierr.ErrProtocol, err)
		}
		key, err := oprf.LoadKey(keyBytes)
		if err != nil {
			return nil, err
		}
		db.oprfKey = key
	}
	db.stripped.Store(strippedU32 != 0)

	bundleIndexCount, err := readU32()
	if err != nil {
		return nil, err
	}
	if int(bundleIndexCount) != len(db.rows) {
		return nil, fmt.Errorf("%w: SenderDB bundle_index_count %d does not match params-derived %d",
			apsierr.ErrProtocol, bundleIndexCount, len(db.rows))
	}

	for rowIdx := 0; rowIdx < int(bundleIndexCount); rowIdx++ {
		rowLen, err := readU32()
		if err != nil {
			return nil, err
		}
		row := make([]*BinBundle, rowLen)
		for i := range row {
			blob, err := readBlob()
			if err != nil {
				return nil, err
			}
			bb, err := deserializeBinBundle(blob, db.mod, db.hasLabels)
			if err != nil {
				return nil, err
			}
			if bb.itemsPerBundle != db.itemsPerBundle || bb.maxItemsPerBin != params.Table.MaxItemsPerBin {
				return nil, fmt.Errorf("%w: bundle index %d has shape (%d,%d), want (%d,%d)",
					apsierr.ErrProtocol, rowIdx, bb.itemsPerBundle, bb.maxItemsPerBin,
					db.itemsPerBundle, params.Table.MaxItemsPerBin)
			}
			row[i] = bb
		}
		db.rows[rowIdx] = row
	}

	return db, nil
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// serialize encodes one BinBundle's persisted state: its shape
// parameters, every bin's load, and the computed coefficient rows'
// batched plaintexts. bb must not be dirty.
func (bb *BinBundle) serialize() ([]byte, error) {
	if bb.dirty {
		return nil, fmt.Errorf("bin bundle not computed")
	}

	var buf bytes.Buffer
	writeU32 := func(v uint32) { binary.Write(&buf, binary.LittleEndian, v) }
	writeBlob := func(b []byte) { writeU32(uint32(len(b))); buf.Write(b) }

	writeU32(uint32(bb.itemsPerBundle))
	writeU32(uint32(bb.feltsPerItem))
	writeU32(uint32(bb.maxItemsPerBin))

	for j := 0; j < bb.itemsPerBundle; j++ {
		writeU32(uint32(bb.Load(j)))
	}

	rows := bb.Rows()
	writeU32(uint32(rows))
	for r := 0; r < rows; r++ {
		pt, err := seal.CompressPlaintext(bb.matchPlaintexts[r])
		if err != nil {
			return nil, err
		}
		writeBlob(pt)
	}
	if bb.hasLabels {
		for r := 0; r < rows; r++ {
			pt, err := seal.CompressPlaintext(bb.labelPlaintexts[r])
			if err != nil {
				return nil, err
			}
			writeBlob(pt)
		}
	}

	return buf.Bytes(), nil
}

// deserializeBinBundle reconstructs a BinBundle from serialize's output.
// The returned bundle carries no raw item entries (bins is nil, matching
// Strip's post-condition): only the precomputed plaintexts the query
// engine needs and the bin load counts, exposed through Load.
func deserializeBinBundle(data []byte, mod field.Modulus, hasLabels bool) (*BinBundle, error) {
	r := bytes.NewReader(data)
	readU32 := func() (uint32, error) {
		var v uint32
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return 0, fmt.Errorf("%w: truncated BinBundle: %v", apsierr.ErrProtocol, err)
		}
		return v, nil
	}
	readBlob := func() ([]byte, error) {
		n, err := readU32()
		if err != nil {
			return nil, err
		}
		blob := make([]byte, n)
		if _, err := io.ReadFull(r, blob); err != nil {
			return nil, fmt.Errorf("%w: truncated BinBundle blob: %v", apsierr.ErrProtocol, err)
		}
		return blob, nil
	}

	itemsPerBundle, err := readU32()
	if err != nil {
		return nil, err
	}
	feltsPerItem, err := readU32()
	if err != nil {
		return nil, err
	}
	maxItemsPerBin, err := readU32()
	if err != nil {
		return nil, err
	}

	loads := make([]int, itemsPerBundle)
	for j := range loads {
		v, err := readU32()
		if err != nil {
			return nil, err
		}
		loads[j] = int(v)
	}

	rows, err := readU32()
	if err != nil {
		return nil, err
	}
	matchPlaintexts := make([]*seal.Plaintext, rows)
	for r := range matchPlaintexts {
		blob, err := readBlob()
		if err != nil {
			return nil, err
		}
		pt, err := seal.DecompressPlaintext(blob)
		if err != nil {
			return nil, err
		}
		matchPlaintexts[r] = pt
	}

	var labelPlaintexts []*seal.Plaintext
	if hasLabels {
		labelPlaintexts = make([]*seal.Plaintext, rows)
		for r := range labelPlaintexts {
			blob, err := readBlob()
			if err != nil {
				return nil, err
			}
			pt, err := seal.DecompressPlaintext(blob)
			if err != nil {
				return nil, err
			}
			labelPlaintexts[r] = pt
		}
	}

	bb := &BinBundle{
		itemsPerBundle:  int(itemsPerBundle),
		feltsPerItem:    int(feltsPerItem),
		maxItemsPerBin:  int(maxItemsPerBin),
		mod:             mod,
		hasLabels:       hasLabels,
		dirty:           false,
		matchPlaintexts: matchPlaintexts,
		labelPlaintexts: labelPlaintexts,
		binLoads:        loads,
	}
	return bb, nil
}
