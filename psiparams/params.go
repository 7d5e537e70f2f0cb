// Package psiparams defines the immutable PSIParams configuration shared
// by the sender and receiver (spec.md §3) and validates the invariants
// that tie its four sub-configurations together.
package psiparams

import (
	"fmt"
	"sort"

	"github.com/markkurossi/apsi/apsierr"
	"github.com/markkurossi/apsi/field"
	"github.com/markkurossi/apsi/seal"
)

// ItemParams configures item algebraization.
type ItemParams struct {
	FeltsPerItem int
}

// TableParams configures the cuckoo table and bin bundle layout.
type TableParams struct {
	HashFuncCount  int
	TableSize      uint64
	MaxItemsPerBin int
}

// QueryParams configures the PowersDag and Paterson-Stockmeyer split.
type QueryParams struct {
	// PSLowDegree is the Paterson-Stockmeyer low-degree split; 0 selects
	// plain Horner evaluation.
	PSLowDegree int
	// QueryPowers is the explicit set of source powers the receiver
	// transmits; it must contain 1 and must be sufficient to derive
	// every power in [1, MaxItemsPerBin] via the PowersDag.
	QueryPowers []int
}

// SEALParams configures the BFV scheme.
type SEALParams struct {
	LogPolyModulusDegree int
	LogCoeffModulus      []int
	LogAuxModulus        []int
	PlaintextModulus     uint64
}

// PSIParams is the complete, immutable configuration for one PSI
// deployment, shared byte-for-byte between sender and receiver via the
// PARMS wire operation (spec.md §6).
type PSIParams struct {
	Item  ItemParams
	Table TableParams
	Query QueryParams
	Seal  SEALParams

	// MaxBundleIndexCount bounds table_size/items_per_bundle, resolving
	// the bundle-index-overflow Open Question (SPEC_FULL.md §9.3): the
	// spec's original aborts rather than degrading gracefully, so this
	// implementation rejects the configuration up front instead.
	MaxBundleIndexCount int
}

// ItemsPerBundle is n / felts_per_item, the number of bins per BinBundle
// row (spec.md §4.D).
func (p PSIParams) ItemsPerBundle() int {
	return (1 << p.Seal.LogPolyModulusDegree) / p.Item.FeltsPerItem
}

// BundleIndexCount is table_size / items_per_bundle (spec.md §4.D).
func (p PSIParams) BundleIndexCount() int {
	return int(p.Table.TableSize) / p.ItemsPerBundle()
}

// SealParams builds the seal.Params this configuration maps to.
func (p PSIParams) SealParams() (seal.Params, error) {
	return seal.NewParams(p.Seal.LogPolyModulusDegree, p.Seal.LogCoeffModulus,
		p.Seal.LogAuxModulus, p.Seal.PlaintextModulus)
}

// FieldModulus builds the field.Modulus for this configuration's
// plaintext prime.
func (p PSIParams) FieldModulus() (field.Modulus, error) {
	return field.NewModulus(p.Seal.PlaintextModulus)
}

// Validate checks every invariant named in spec.md §3.
func (p PSIParams) Validate() error {
	if p.Item.FeltsPerItem <= 0 {
		return fmt.Errorf("%w: felts_per_item must be positive", apsierr.ErrConfigInvalid)
	}
	if p.Table.HashFuncCount < 1 || p.Table.HashFuncCount > 8 {
		return fmt.Errorf("%w: hash_func_count must be in [1,8]", apsierr.ErrConfigInvalid)
	}
	if p.Table.TableSize == 0 || (p.Table.TableSize&(p.Table.TableSize-1)) != 0 {
		return fmt.Errorf("%w: table_size must be a power of two", apsierr.ErrConfigInvalid)
	}
	if p.Table.MaxItemsPerBin <= 0 {
		return fmt.Errorf("%w: max_items_per_bin must be positive", apsierr.ErrConfigInvalid)
	}
	n := 1 << p.Seal.LogPolyModulusDegree
	if n < 2048 {
		return fmt.Errorf("%w: poly_modulus_degree must be >= 2048", apsierr.ErrConfigInvalid)
	}

	mod, err := p.FieldModulus()
	if err != nil {
		return fmt.Errorf("%w: %v", apsierr.ErrConfigInvalid, err)
	}
	bitWidth := p.Item.FeltsPerItem * mod.BitsPerFelt
	if bitWidth < 80 || bitWidth > 128 {
		return fmt.Errorf(
			"%w: felts_per_item*bits_per_felt must be in [80,128], got %d",
			apsierr.ErrConfigInvalid, bitWidth)
	}

	itemsPerBundle := p.ItemsPerBundle()
	if itemsPerBundle <= 0 {
		return fmt.Errorf("%w: poly_modulus_degree must be a multiple of felts_per_item",
			apsierr.ErrConfigInvalid)
	}
	if n%p.Item.FeltsPerItem != 0 {
		return fmt.Errorf("%w: poly_modulus_degree must be a multiple of felts_per_item",
			apsierr.ErrConfigInvalid)
	}
	if p.Table.TableSize%uint64(itemsPerBundle) != 0 {
		return fmt.Errorf("%w: table_size must be a multiple of n/felts_per_item",
			apsierr.ErrConfigInvalid)
	}
	if p.Table.TableSize < uint64(p.Item.FeltsPerItem) {
		return fmt.Errorf("%w: table_size must be >= felts_per_item", apsierr.ErrConfigInvalid)
	}

	bundleIndexCount := p.BundleIndexCount()
	if p.MaxBundleIndexCount > 0 && bundleIndexCount > p.MaxBundleIndexCount {
		return fmt.Errorf("%w: bundle_index_count %d exceeds configured ceiling %d",
			apsierr.ErrConfigInvalid, bundleIndexCount, p.MaxBundleIndexCount)
	}

	if len(p.Query.QueryPowers) == 0 {
		return fmt.Errorf("%w: query_powers must be non-empty", apsierr.ErrConfigInvalid)
	}
	sorted := append([]int(nil), p.Query.QueryPowers...)
	sort.Ints(sorted)
	if sorted[0] != 1 {
		return fmt.Errorf("%w: query_powers must contain 1", apsierr.ErrConfigInvalid)
	}
	if p.Query.PSLowDegree < 0 {
		return fmt.Errorf("%w: ps_low_degree must be >= 0", apsierr.ErrConfigInvalid)
	}
	if p.Query.PSLowDegree > p.Table.MaxItemsPerBin {
		return fmt.Errorf("%w: ps_low_degree must be <= max_items_per_bin", apsierr.ErrConfigInvalid)
	}
	if p.Query.PSLowDegree > 0 && p.Table.MaxItemsPerBin%p.Query.PSLowDegree != 0 {
		return fmt.Errorf("%w: max_items_per_bin must be a multiple of ps_low_degree",
			apsierr.ErrConfigInvalid)
	}

	return nil
}
