package senderdb

import (
	"github.com/markkurossi/apsi/field"
	"github.com/markkurossi/apsi/item"
)

// entry is one item occupying a bin: its algebraized coordinates (one
// field element per felt position, used as a polynomial root) and,
// for labeled databases, the matching label coordinates.
type entry struct {
	hashed item.HashedItem
	coords []field.Elt
	label  []field.Elt
}

// bin holds the items assigned to one (bundle, bin-index) slot. Per
// spec.md §3's BinBundle invariant, load never exceeds max_items_per_bin.
type bin struct {
	entries []entry
}

func (b *bin) load() int {
	return len(b.entries)
}

func (b *bin) indexOf(hi item.HashedItem) int {
	for i, e := range b.entries {
		if e.hashed.Equal(hi) {
			return i
		}
	}
	return -1
}
