// Package cuckoo implements the kuku-style cuckoo hash table used to place
// OPRF-hashed items into a fixed-size table with a bounded number of
// candidate locations per item (spec.md §4.C).
package cuckoo

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/bits"

	"github.com/markkurossi/apsi/apsierr"
	"github.com/markkurossi/apsi/item"
)

// defaultMaxProbe bounds the number of displacement steps attempted
// before an insertion is declared a hard failure, following the spec's
// "max_probe steps" language without pinning a specific constant to the
// public API.
const defaultMaxProbe = 500

// cell is one slot of the table.
type cell struct {
	occupied bool
	value    item.HashedItem
	locIdx   int // which of the h hash functions placed value here
}

// Table implements deterministic cuckoo hashing over a fixed-size array.
// Each item occupies exactly one of HashFuncCount deterministic
// locations; insertion displaces existing occupants (Bloom-aging
// displacement) until a free cell is found or the probe limit
// (defaultMaxProbe) is exceeded.
type Table struct {
	cells         []cell
	tableSize     uint64
	hashFuncCount int
	maxProbe      int

	// Rand supplies randomness for eviction candidate selection. If nil,
	// crypto/rand.Reader is used, mirroring the teacher codebase's env.Config
	// convention of defaulting an io.Reader field rather than hardwiring
	// a global PRNG.
	Rand io.Reader
}

// NewTable constructs an empty table of the given size with
// hashFuncCount candidate locations per item.
func NewTable(tableSize uint64, hashFuncCount int) (*Table, error) {
	if hashFuncCount < 1 || hashFuncCount > 8 {
		return nil, fmt.Errorf("%w: hash_func_count must be in [1,8], got %d",
			apsierr.ErrConfigInvalid, hashFuncCount)
	}
	if tableSize == 0 || (tableSize&(tableSize-1)) != 0 {
		return nil, fmt.Errorf("%w: table_size must be a power of two, got %d",
			apsierr.ErrConfigInvalid, tableSize)
	}
	return &Table{
		cells:         make([]cell, tableSize),
		tableSize:     tableSize,
		hashFuncCount: hashFuncCount,
		maxProbe:      defaultMaxProbe,
	}, nil
}

// Size returns the number of cells in the table.
func (t *Table) Size() uint64 {
	return t.tableSize
}

// HashFuncCount returns the configured number of candidate locations per
// item.
func (t *Table) HashFuncCount() int {
	return t.hashFuncCount
}

// locationHash derives the funcIdx-th candidate location for an item,
// using a splitmix64-style mixer seeded by the item's 64-bit cuckoo seed
// and the function index, giving deterministic, well-distributed
// locations without depending on a general-purpose hash library.
func (t *Table) locationHash(seed uint64, funcIdx int) uint64 {
	x := seed ^ (uint64(funcIdx+1) * 0x9E3779B97F4A7C15)
	x = (x ^ (x >> 30)) * 0xBF58476D1CE4E5B9
	x = (x ^ (x >> 27)) * 0x94D049BB133111EB
	x = x ^ (x >> 31)
	return x % t.tableSize
}

// Locations returns the deterministic candidate cell indices for hi,
// one per configured hash function.
func (t *Table) Locations(hi item.HashedItem) []uint64 {
	seed := hi.CuckooLocationSeed()
	locs := make([]uint64, t.hashFuncCount)
	for i := range locs {
		locs[i] = t.locationHash(seed, i)
	}
	return locs
}

func (t *Table) randIndex(n int) (int, error) {
	r := t.Rand
	if r == nil {
		r = rand.Reader
	}
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("cuckoo: read randomness: %w", err)
	}
	v := uint64(0)
	for _, b := range buf {
		v = (v << 8) | uint64(b)
	}
	return int(v % uint64(n)), nil
}

// Insert places hi into the table, evicting occupants via random-walk
// cuckoo displacement as needed. It returns apsierr.ErrInsufficientCapacity
// if no placement is found within defaultMaxProbe steps, per spec.md §4.C: "a
// hard failure: the parameter set is unusable and the receiver aborts."
func (t *Table) Insert(hi item.HashedItem) error {
	if t.Contains(hi) {
		return nil
	}

	cur := hi

	for probe := 0; probe < t.maxProbe; probe++ {
		locs := t.Locations(cur)

		for li, loc := range locs {
			if !t.cells[loc].occupied {
				t.cells[loc] = cell{occupied: true, value: cur, locIdx: li}
				return nil
			}
		}

		// No free candidate; evict from a random candidate location.
		idx, err := t.randIndex(len(locs))
		if err != nil {
			return err
		}
		evictLoc := locs[idx]
		evicted := t.cells[evictLoc]
		t.cells[evictLoc] = cell{occupied: true, value: cur, locIdx: idx}

		cur = evicted.value
	}

	return fmt.Errorf("%w: exceeded %d probes placing item",
		apsierr.ErrInsufficientCapacity, t.maxProbe)
}

// Contains reports whether hi is already present in the table.
func (t *Table) Contains(hi item.HashedItem) bool {
	for _, loc := range t.Locations(hi) {
		c := t.cells[loc]
		if c.occupied && c.value.Equal(hi) {
			return true
		}
	}
	return false
}

// LocationOf returns the cell index occupied by hi and true, or
// (0, false) if hi is not present.
func (t *Table) LocationOf(hi item.HashedItem) (uint64, bool) {
	for _, loc := range t.Locations(hi) {
		c := t.cells[loc]
		if c.occupied && c.value.Equal(hi) {
			return loc, true
		}
	}
	return 0, false
}

// bitLen64 is exposed for callers that need to reason about table
// indexing bit widths (e.g. deriving default table sizes).
func bitLen64(v uint64) int {
	return bits.Len64(v)
}

// BitLen returns ceil(log2(tableSize)), useful for PowersDag-adjacent
// capacity reasoning.
func (t *Table) BitLen() int {
	return bitLen64(t.tableSize - 1)
}

// CheckInvariants verifies that every occupied cell's item actually maps
// to that cell under its recorded hash-function index, and that no item
// value appears twice, per spec.md §4.C's two table invariants. It is
// intended for tests, not the hot insert/query path.
func (t *Table) CheckInvariants() error {
	seen := make(map[item.HashedItem]bool)
	for idx, c := range t.cells {
		if !c.occupied {
			continue
		}
		if seen[c.value] {
			return fmt.Errorf("cuckoo: item %s occupies more than one cell", c.value)
		}
		seen[c.value] = true

		locs := t.Locations(c.value)
		if c.locIdx < 0 || c.locIdx >= len(locs) || locs[c.locIdx] != uint64(idx) {
			return fmt.Errorf("cuckoo: cell %d holds item %s under inconsistent location index",
				idx, c.value)
		}
	}
	return nil
}
