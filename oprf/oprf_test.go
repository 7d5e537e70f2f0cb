package oprf

import (
	"bytes"
	"testing"
)

func TestKeySaveLoadStable(t *testing.T) {
	k, err := NewKey()
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	saved := k.Save()
	if len(saved) != KeyLen {
		t.Fatalf("Save length = %d, want %d", len(saved), KeyLen)
	}

	loaded, err := LoadKey(saved)
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	resaved := loaded.Save()
	if !bytes.Equal(saved, resaved) {
		t.Fatal("saved/loaded key bytes do not round trip")
	}

	hashes1, err := k.ComputeHashes([][]byte{[]byte("alice")})
	if err != nil {
		t.Fatalf("ComputeHashes: %v", err)
	}
	hashes2, err := loaded.ComputeHashes([][]byte{[]byte("alice")})
	if err != nil {
		t.Fatalf("ComputeHashes: %v", err)
	}
	if !hashes1[0].Hashed.Equal(hashes2[0].Hashed) {
		t.Fatal("loaded key does not reproduce the same OPRF evaluation")
	}
}

func TestLoadKeyRejectsWrongLength(t *testing.T) {
	if _, err := LoadKey(make([]byte, KeyLen-1)); err == nil {
		t.Fatal("LoadKey should reject a short buffer")
	}
}

// TestBlindedExchangeMatchesDirect establishes spec.md §8 property 2: the
// receiver's unblinded result of a full blind/evaluate/unblind exchange
// equals the sender's direct ComputeHashes, byte for byte.
func TestBlindedExchangeMatchesDirect(t *testing.T) {
	k, err := NewKey()
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}

	items := [][]byte{[]byte("alice"), []byte("bob"), []byte("carol")}

	receiver, blinded, err := NewReceiver(items)
	if err != nil {
		t.Fatalf("NewReceiver: %v", err)
	}

	evaluated, errs := k.Evaluate(blinded)
	for i, e := range errs {
		if e != nil {
			t.Fatalf("Evaluate: item %d: %v", i, e)
		}
	}

	unblinded, err := receiver.Finalize(evaluated)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	direct, err := k.ComputeHashes(items)
	if err != nil {
		t.Fatalf("ComputeHashes: %v", err)
	}

	for i := range items {
		if !unblinded[i].Hashed.Equal(direct[i].Hashed) {
			t.Fatalf("item %d: blinded exchange HashedItem %v != direct %v",
				i, unblinded[i].Hashed, direct[i].Hashed)
		}
		if unblinded[i].LabelKey != direct[i].LabelKey {
			t.Fatalf("item %d: blinded exchange LabelKey != direct LabelKey", i)
		}
	}
}

func TestEvaluateRejectsMalformedQueryLength(t *testing.T) {
	k, err := NewKey()
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	_, errs := k.Evaluate(make([]byte, PointLen-1))
	if len(errs) != 1 || errs[0] == nil {
		t.Fatal("Evaluate should report an error for a malformed query buffer")
	}
}
