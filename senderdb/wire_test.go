package senderdb

import (
	"testing"

	"github.com/markkurossi/apsi/seal"
)

func TestSerializeRejectsDirtyBundle(t *testing.T) {
	db, err := New(testParams(), false, 0, 0, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := db.InsertOrAssign([]byte("alice"), nil); err != nil {
		t.Fatalf("InsertOrAssign: %v", err)
	}
	if _, err := db.Serialize(); err == nil {
		t.Fatal("Serialize should reject a DB with an uncomputed (dirty) bundle")
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	params := testParams()
	db, err := New(params, true, 8, 4, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := db.InsertOrAssign([]byte("alice"), []byte("al-label")); err != nil {
		t.Fatalf("InsertOrAssign: %v", err)
	}
	if err := db.InsertOrAssign([]byte("bob"), []byte("bo-label")); err != nil {
		t.Fatalf("InsertOrAssign: %v", err)
	}

	sealParams, err := params.SealParams()
	if err != nil {
		t.Fatalf("SealParams: %v", err)
	}
	encoder := seal.NewEncoder(sealParams)
	if err := db.Encode(encoder); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	t.Run("before strip", func(t *testing.T) {
		blob, err := db.Serialize()
		if err != nil {
			t.Fatalf("Serialize: %v", err)
		}
		reloaded, err := Deserialize(blob, nil)
		if err != nil {
			t.Fatalf("Deserialize: %v", err)
		}
		if reloaded.Stripped() {
			t.Fatal("Deserialize reported stripped for a DB that was never stripped")
		}
		if _, err := reloaded.OPRFKeyBytes(); err != nil {
			t.Fatalf("an unstripped, reloaded DB should retain its OPRF key: %v", err)
		}
		if reloaded.BundleIndexCount() != db.BundleIndexCount() {
			t.Fatalf("BundleIndexCount() = %d, want %d", reloaded.BundleIndexCount(), db.BundleIndexCount())
		}
		for rowIdx := 0; rowIdx < reloaded.BundleIndexCount(); rowIdx++ {
			want := db.Row(rowIdx)
			got := reloaded.Row(rowIdx)
			if len(got) != len(want) {
				t.Fatalf("row %d: %d bundles, want %d", rowIdx, len(got), len(want))
			}
			for i := range want {
				for bin := 0; bin < db.ItemsPerBundle(); bin++ {
					if got[i].Load(bin) != want[i].Load(bin) {
						t.Fatalf("row %d bundle %d bin %d: Load() = %d, want %d",
							rowIdx, i, bin, got[i].Load(bin), want[i].Load(bin))
					}
				}
			}
		}
	})

	t.Run("after strip", func(t *testing.T) {
		db.Strip()
		blob, err := db.Serialize()
		if err != nil {
			t.Fatalf("Serialize: %v", err)
		}
		reloaded, err := Deserialize(blob, nil)
		if err != nil {
			t.Fatalf("Deserialize: %v", err)
		}
		if !reloaded.Stripped() {
			t.Fatal("Deserialize lost the stripped flag")
		}
		if _, err := reloaded.OPRFKeyBytes(); err == nil {
			t.Fatal("a stripped, reloaded DB should not carry an OPRF key")
		}
		reblob, err := reloaded.Serialize()
		if err != nil {
			t.Fatalf("re-Serialize: %v", err)
		}
		if len(reblob) != len(blob) {
			t.Fatalf("re-serialized length %d, want %d", len(reblob), len(blob))
		}
	})
}

func TestDeserializeRejectsTruncatedData(t *testing.T) {
	params := testParams()
	db, err := New(params, false, 0, 0, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := db.InsertOrAssign([]byte("alice"), nil); err != nil {
		t.Fatalf("InsertOrAssign: %v", err)
	}
	sealParams, err := params.SealParams()
	if err != nil {
		t.Fatalf("SealParams: %v", err)
	}
	if err := db.Encode(seal.NewEncoder(sealParams)); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	blob, err := db.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if _, err := Deserialize(blob[:len(blob)-10], nil); err == nil {
		t.Fatal("Deserialize should reject truncated data")
	}
}
