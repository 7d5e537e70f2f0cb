// Package senderdb implements the sender-side item store (spec.md §3,
// §4.D, component D): a 2-D grid of BinBundles, one row per cuckoo
// bundle index, each row a growable list of BinBundles.
package senderdb

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/markkurossi/apsi/apsierr"
	"github.com/markkurossi/apsi/cuckoo"
	"github.com/markkurossi/apsi/field"
	"github.com/markkurossi/apsi/item"
	"github.com/markkurossi/apsi/oprf"
	"github.com/markkurossi/apsi/psiparams"
	"github.com/markkurossi/apsi/seal"
	"github.com/markkurossi/apsi/workerpool"
)

// SenderDB owns the BinBundle matrix, the OPRF key, and the strip flag
// (spec.md §3). Encode is parallelized over bundle rows using a thread
// pool; InsertOrAssign inserts one item at a time on the caller's
// goroutine and does not use the pool. Within a bundle row a mutex
// serializes modifications (spec.md §4.D "Concurrency").
type SenderDB struct {
	params         psiparams.PSIParams
	mod            field.Modulus
	codec          field.Codec
	locator        *cuckoo.Table
	itemsPerBundle int
	hasLabels      bool
	labelByteCount int
	nonceByteCount int
	pool           *workerpool.Pool

	oprfKey  *oprf.Key
	stripped atomic.Bool
	writing  atomic.Bool

	rowMu []sync.RWMutex
	rows  [][]*BinBundle
}

// New builds an empty SenderDB for params, generating a fresh OPRF key.
// hasLabels selects whether inserted items carry labels of exactly
// labelByteCount bytes, encrypted with nonceByteCount bytes of nonce
// (spec.md §3 EncryptedLabel).
func New(params psiparams.PSIParams, hasLabels bool, labelByteCount, nonceByteCount int, pool *workerpool.Pool) (*SenderDB, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	mod, err := params.FieldModulus()
	if err != nil {
		return nil, err
	}
	codec, err := field.NewCodec(mod, params.Item.FeltsPerItem)
	if err != nil {
		return nil, err
	}
	locator, err := cuckoo.NewTable(params.Table.TableSize, params.Table.HashFuncCount)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = workerpool.New(0)
	}

	oprfKey, err := oprf.NewKey()
	if err != nil {
		return nil, err
	}

	bundleIndexCount := params.BundleIndexCount()
	db := &SenderDB{
		params:         params,
		mod:            mod,
		codec:          codec,
		locator:        locator,
		itemsPerBundle: params.ItemsPerBundle(),
		hasLabels:      hasLabels,
		labelByteCount: labelByteCount,
		nonceByteCount: nonceByteCount,
		pool:           pool,
		oprfKey:        oprfKey,
		rowMu:          make([]sync.RWMutex, bundleIndexCount),
		rows:           make([][]*BinBundle, bundleIndexCount),
	}
	return db, nil
}

// OPRFKeyBytes returns the DB's OPRF key in its 32-byte saved form, from
// which a network.SenderSession builds the key it evaluates OPRF
// requests with; the key itself is never sent. Returns an error if the
// DB has been stripped.
func (db *SenderDB) OPRFKeyBytes() ([]byte, error) {
	if db.stripped.Load() {
		return nil, fmt.Errorf("%w: OPRF key discarded by strip()", apsierr.ErrStateError)
	}
	return db.oprfKey.Save(), nil
}

// Params returns the DB's configuration.
func (db *SenderDB) Params() psiparams.PSIParams {
	return db.params
}

// InsertOrAssign inserts rawItem (and, if hasLabels, label) into the DB.
// The sender holds its own OPRF key, so it hashes the item directly
// (spec.md §4.B "Sender evaluation" applied to its own plaintext data)
// rather than running the interactive blind/unblind exchange. Returns
// apsierr.ErrStateError if the DB is stripped and apsierr.ErrCrypto if
// label's length does not match labelByteCount. A full bin does not make
// insertion fail: the bundle row gains a new BinBundle instead.
func (db *SenderDB) InsertOrAssign(rawItem []byte, label []byte) error {
	if db.stripped.Load() {
		return fmt.Errorf("%w: insert on stripped DB", apsierr.ErrStateError)
	}
	if db.hasLabels && len(label) != db.labelByteCount {
		return fmt.Errorf("%w: label length %d does not match configured %d",
			apsierr.ErrCrypto, len(label), db.labelByteCount)
	}

	hashes, err := db.oprfKey.ComputeHashes([][]byte{rawItem})
	if err != nil {
		return err
	}
	hashed := hashes[0].Hashed
	labelKey := hashes[0].LabelKey

	hashedBytes := hashed.Bytes()
	itemBits, err := item.NewBitstring(hashedBytes[:], 128)
	if err != nil {
		return err
	}
	coords, err := db.codec.ToField(itemBits)
	if err != nil {
		return err
	}

	var labelCoords []field.Elt
	if db.hasLabels {
		enc, err := item.EncryptLabel(labelKey, label, db.nonceByteCount)
		if err != nil {
			return err
		}
		bitCount := 8 * len(enc)
		encBits, err := item.NewBitstring(enc, bitCount)
		if err != nil {
			return err
		}
		labelCoords, err = db.codec.ToField(encBits)
		if err != nil {
			return err
		}
	}

	return db.insertHashed(hashed, coords, labelCoords)
}

// insertHashed places an already-algebraized item at its first cuckoo
// location, in an existing BinBundle of that row with room at the bin or
// else in a newly appended one, per spec.md §4.D steps 2-4.
func (db *SenderDB) insertHashed(hashed item.HashedItem, coords, labelCoords []field.Elt) error {
	locs := db.locator.Locations(hashed)

	for _, loc := range locs {
		rowIdx := int(loc) / db.itemsPerBundle
		binIdx := int(loc) % db.itemsPerBundle

		db.rowMu[rowIdx].Lock()
		_, handled := db.tryInsertInRow(rowIdx, binIdx, hashed, coords, labelCoords)
		db.rowMu[rowIdx].Unlock()

		if handled {
			return nil
		}
	}

	return fmt.Errorf("%w: every candidate bundle row is full", apsierr.ErrInsufficientCapacity)
}

// tryInsertInRow attempts insertion into an existing BinBundle in the
// row, appending a new BinBundle if every existing one is full at
// binIdx. handled reports whether this candidate location accepted (or
// already held, per idempotence) the item; since a new BinBundle is
// appended when needed, it is always true.
func (db *SenderDB) tryInsertInRow(rowIdx, binIdx int, hashed item.HashedItem, coords, labelCoords []field.Elt) (inserted, handled bool) {
	row := db.rows[rowIdx]

	for _, bb := range row {
		if idx := bb.bins[binIdx].indexOf(hashed); idx >= 0 {
			ins, _ := bb.TryInsert(binIdx, hashed, coords, labelCoords)
			return ins, true
		}
	}

	for _, bb := range row {
		if ins, dup := bb.TryInsert(binIdx, hashed, coords, labelCoords); ins || dup {
			return ins, true
		}
	}

	bb := newBinBundle(db.itemsPerBundle, db.params.Item.FeltsPerItem, db.params.Table.MaxItemsPerBin, db.mod, db.hasLabels)
	ins, _ := bb.TryInsert(binIdx, hashed, coords, labelCoords)
	db.rows[rowIdx] = append(row, bb)
	return ins, true
}

// SetWriting toggles the coarse writing-mode flag spec.md §4.D names:
// "during writes, queries fail-fast."
func (db *SenderDB) SetWriting(writing bool) {
	db.writing.Store(writing)
}

// CheckReadable returns apsierr.ErrStateError if the DB is currently in
// writing mode.
func (db *SenderDB) CheckReadable() error {
	if db.writing.Load() {
		return fmt.Errorf("%w: query during write", apsierr.ErrStateError)
	}
	return nil
}

// Encode recomputes and re-batches every dirty BinBundle's polynomials,
// parallelized across bundle rows through the DB's thread pool (spec.md
// §4.D "Insertion is internally parallelized ... using a thread pool").
func (db *SenderDB) Encode(encoder *seal.Encoder) error {
	return db.pool.Run(len(db.rows), func(rowIdx int) error {
		db.rowMu[rowIdx].Lock()
		defer db.rowMu[rowIdx].Unlock()
		for _, bb := range db.rows[rowIdx] {
			if err := bb.Compute(encoder); err != nil {
				return err
			}
		}
		return nil
	})
}

// Strip discards raw items and the OPRF key from every row, retaining
// only the batched plaintexts (spec.md §4.D "Stripping"). The DB must
// already be fully encoded; Strip does not call Encode itself.
func (db *SenderDB) Strip() {
	for i := range db.rows {
		db.rowMu[i].Lock()
		for _, bb := range db.rows[i] {
			bb.Strip()
		}
		db.rowMu[i].Unlock()
	}
	db.oprfKey = nil
	db.stripped.Store(true)
}

// Stripped reports whether Strip has been called.
func (db *SenderDB) Stripped() bool {
	return db.stripped.Load()
}

// Row returns the BinBundles for bundle index rowIdx, taking a shared
// lock for the duration of the read. Callers must not retain the slice
// beyond the query pass that obtained it if concurrent inserts may
// follow.
func (db *SenderDB) Row(rowIdx int) []*BinBundle {
	db.rowMu[rowIdx].RLock()
	defer db.rowMu[rowIdx].RUnlock()
	return append([]*BinBundle(nil), db.rows[rowIdx]...)
}

// BundleIndexCount returns the number of bundle-index rows in the grid.
func (db *SenderDB) BundleIndexCount() int {
	return len(db.rows)
}

// ItemsPerBundle returns the number of bins per BinBundle.
func (db *SenderDB) ItemsPerBundle() int {
	return db.itemsPerBundle
}

// LabelByteCount returns the configured plaintext label length.
func (db *SenderDB) LabelByteCount() int {
	return db.labelByteCount
}

// NonceByteCount returns the configured label nonce length.
func (db *SenderDB) NonceByteCount() int {
	return db.nonceByteCount
}

// HasLabels reports whether this DB stores labels.
func (db *SenderDB) HasLabels() bool {
	return db.hasLabels
}
