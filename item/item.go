// Package item implements APSI's fixed-width item representation and the
// bitstring/field-element algebraization used to embed items and labels
// into BFV plaintext slots.
package item

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Item is an opaque 128-bit value, stored as two big-endian 64-bit words.
// It is modeled directly on the wire-label representation used elsewhere
// in the teacher codebase's OT layer (a pair of uint64 words), since an APSI item
// and a 128-bit OT label have identical shape and equality semantics.
type Item struct {
	Hi uint64
	Lo uint64
}

// HashedItem is an Item produced by the OPRF. It is a distinct type so
// that plaintext items and OPRF-hashed items can never be mixed by
// accident: the type checker enforces the data-flow boundary that the
// protocol's security depends on.
type HashedItem struct {
	Hi uint64
	Lo uint64
}

// FromBytes hashes an arbitrary byte string down to a 128-bit Item using
// BLAKE2b-128.
func FromBytes(data []byte) (Item, error) {
	h, err := blake2b.New(16, nil)
	if err != nil {
		return Item{}, fmt.Errorf("item: blake2b init: %w", err)
	}
	if _, err := h.Write(data); err != nil {
		return Item{}, fmt.Errorf("item: hash input: %w", err)
	}
	sum := h.Sum(nil)
	return FromRawBytes(sum), nil
}

// FromRawBytes interprets exactly 16 bytes, big-endian, as an Item. It
// does not hash; callers that already have a 16-byte value (e.g. decoded
// from the wire) use this directly.
func FromRawBytes(b []byte) Item {
	var it Item
	it.SetBytes(b)
	return it
}

// SetBytes sets the item from 16 bytes, big-endian. Panics if len(b) < 16,
// matching the teacher codebase's Label.SetBytes convention of trusting
// the caller to have validated length at the framing layer.
func (it *Item) SetBytes(b []byte) {
	it.Hi = binary.BigEndian.Uint64(b[0:8])
	it.Lo = binary.BigEndian.Uint64(b[8:16])
}

// Bytes returns the item's 16-byte big-endian encoding.
func (it Item) Bytes() [16]byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], it.Hi)
	binary.BigEndian.PutUint64(buf[8:16], it.Lo)
	return buf
}

// Equal reports whether two items have the same byte value.
func (it Item) Equal(o Item) bool {
	return it.Hi == o.Hi && it.Lo == o.Lo
}

// String renders the item as a hex string for logging.
func (it Item) String() string {
	return fmt.Sprintf("%016x%016x", it.Hi, it.Lo)
}

// SetBytes sets a HashedItem from 16 bytes, big-endian.
func (hi *HashedItem) SetBytes(b []byte) {
	hi.Hi = binary.BigEndian.Uint64(b[0:8])
	hi.Lo = binary.BigEndian.Uint64(b[8:16])
}

// Bytes returns the hashed item's 16-byte big-endian encoding.
func (hi HashedItem) Bytes() [16]byte {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], hi.Hi)
	binary.BigEndian.PutUint64(buf[8:16], hi.Lo)
	return buf
}

// Equal reports whether two hashed items have the same byte value.
func (hi HashedItem) Equal(o HashedItem) bool {
	return hi.Hi == o.Hi && hi.Lo == o.Lo
}

// String renders the hashed item as a hex string for logging.
func (hi HashedItem) String() string {
	return fmt.Sprintf("%016x%016x", hi.Hi, hi.Lo)
}

// CuckooLocationSeed returns the 64-bit seed used by the cuckoo table to
// derive per-hash-function candidate locations for this hashed item, per
// spec.md §4.D step 2 ("derived from the first 64 bits of the hashed
// item").
func (hi HashedItem) CuckooLocationSeed() uint64 {
	return hi.Hi
}
