package query

import (
	"bytes"
	"testing"

	"github.com/markkurossi/apsi/cuckoo"
	"github.com/markkurossi/apsi/decode"
	"github.com/markkurossi/apsi/field"
	"github.com/markkurossi/apsi/item"
	"github.com/markkurossi/apsi/oprf"
	"github.com/markkurossi/apsi/resultpkg"
	"github.com/markkurossi/apsi/seal"
	"github.com/markkurossi/apsi/senderdb"
)

// TestStripSerializeReloadQuery covers spec.md §8 Scenario F: a SenderDB
// is populated, encoded, stripped, serialized, and reloaded from bytes
// alone; a query run against the reloaded DB must still report the same
// matches and labels as a query run before persistence would have.
func TestStripSerializeReloadQuery(t *testing.T) {
	const labelByteCount = 8
	const nonceByteCount = 4

	params := testParams()
	db, err := senderdb.New(params, true, labelByteCount, nonceByteCount, nil)
	if err != nil {
		t.Fatalf("senderdb.New: %v", err)
	}

	present := map[string][]byte{
		"alice": []byte("al-label"),
		"bob":   []byte("bo-label"),
	}
	for raw, label := range present {
		if err := db.InsertOrAssign([]byte(raw), label); err != nil {
			t.Fatalf("InsertOrAssign(%q): %v", raw, err)
		}
	}

	keyBytes, err := db.OPRFKeyBytes()
	if err != nil {
		t.Fatalf("OPRFKeyBytes: %v", err)
	}

	sealParams, err := params.SealParams()
	if err != nil {
		t.Fatalf("SealParams: %v", err)
	}
	encoder := seal.NewEncoder(sealParams)

	if err := db.Encode(encoder); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	db.Strip()
	if !db.Stripped() {
		t.Fatal("Stripped() = false after Strip()")
	}

	blob, err := db.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	reloaded, err := senderdb.Deserialize(blob, nil)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if !reloaded.Stripped() {
		t.Fatal("Deserialize did not preserve the stripped flag")
	}
	if _, err := reloaded.OPRFKeyBytes(); err == nil {
		t.Fatal("a stripped, reloaded DB should not carry an OPRF key")
	}
	if reloaded.BundleIndexCount() != db.BundleIndexCount() {
		t.Fatalf("reloaded BundleIndexCount() = %d, want %d",
			reloaded.BundleIndexCount(), db.BundleIndexCount())
	}

	reblob, err := reloaded.Serialize()
	if err != nil {
		t.Fatalf("re-Serialize of a reloaded DB: %v", err)
	}
	if !bytes.Equal(blob, reblob) {
		t.Fatal("Serialize(Deserialize(blob)) != blob")
	}

	// Build the receiver's side of the query exactly as apsi-receiver does:
	// re-derive the OPRF key from the bytes captured before stripping (a
	// stand-in for the interactive OPRF exchange, which the sender answers
	// without ever sending its key), hash every
	// query item, place them in a local cuckoo table, and batch-encrypt
	// their field coordinates per configured source power.
	oprfKey, err := oprf.LoadKey(keyBytes)
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	queryRaw := [][]byte{[]byte("alice"), []byte("bob"), []byte("carol")}
	hashes, err := oprfKey.ComputeHashes(queryRaw)
	if err != nil {
		t.Fatalf("ComputeHashes: %v", err)
	}

	table, err := cuckoo.NewTable(params.Table.TableSize, params.Table.HashFuncCount)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	mod, err := params.FieldModulus()
	if err != nil {
		t.Fatalf("FieldModulus: %v", err)
	}
	codec, err := field.NewCodec(mod, params.Item.FeltsPerItem)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}

	items := make(map[item.HashedItem]item.Item, len(queryRaw))
	labelKeys := make(map[uint64]item.LabelKey, len(queryRaw))
	coords := make(map[uint64][]field.Elt, len(queryRaw))
	for i, raw := range queryRaw {
		it, err := item.FromBytes(raw)
		if err != nil {
			t.Fatalf("FromBytes(%q): %v", raw, err)
		}
		items[hashes[i].Hashed] = it
		if err := table.Insert(hashes[i].Hashed); err != nil {
			t.Fatalf("table.Insert: %v", err)
		}
		loc, ok := table.LocationOf(hashes[i].Hashed)
		if !ok {
			t.Fatalf("item %q not placed after Insert", raw)
		}
		labelKeys[loc] = hashes[i].LabelKey

		hashedBytes := hashes[i].Hashed.Bytes()
		bits, err := item.NewBitstring(hashedBytes[:], 128)
		if err != nil {
			t.Fatalf("NewBitstring: %v", err)
		}
		felts, err := codec.ToField(bits)
		if err != nil {
			t.Fatalf("ToField: %v", err)
		}
		coords[loc] = felts
	}
	placements := decode.LocatePlacements(table, items)

	kp := seal.GenKeyPair(sealParams)
	rlk := seal.GenRelinKey(sealParams, kp.Secret)
	receiverEncryptor := seal.NewEncryptor(sealParams, kp.Public)
	receiverEncoder := seal.NewEncoder(sealParams)
	decryptor := seal.NewDecryptor(sealParams, kp.Secret)

	itemsPerBundle := params.ItemsPerBundle()
	bundleCount := params.BundleIndexCount()

	reqPowers := make(map[int][]*seal.Ciphertext, len(params.Query.QueryPowers))
	for _, power := range params.Query.QueryPowers {
		cts := make([]*seal.Ciphertext, bundleCount)
		for bundleIdx := 0; bundleIdx < bundleCount; bundleIdx++ {
			slots := make([]uint64, itemsPerBundle*params.Item.FeltsPerItem)
			base := uint64(bundleIdx * itemsPerBundle)
			for bin := 0; bin < itemsPerBundle; bin++ {
				felts, ok := coords[base+uint64(bin)]
				if !ok {
					continue
				}
				for c, v := range felts {
					slots[c*itemsPerBundle+bin] = uint64(mod.Pow(v, uint64(power)))
				}
			}
			cts[bundleIdx] = receiverEncryptor.EncryptNew(receiverEncoder.EncodeNTT(slots))
		}
		reqPowers[power] = cts
	}

	evaluator := seal.NewEvaluator(sealParams, rlk)
	engine := NewEngine(reloaded, nil, encoder)

	decoder, err := decode.NewDecoder(params, placements)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}

	results := make(map[string]decode.MatchRecord)
	err = engine.Evaluate(Request{RelinKey: rlk, Powers: reqPowers}, evaluator,
		func(pkg resultpkg.ResultPackage) error {
			records, err := decoder.Decode(pkg, decryptor, receiverEncoder, labelKeys)
			if err != nil {
				return err
			}
			for _, rec := range records {
				results[rec.Item.String()] = rec
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	for raw, label := range present {
		it, _ := item.FromBytes([]byte(raw))
		rec, ok := results[it.String()]
		if !ok {
			t.Fatalf("no MatchRecord for %q", raw)
		}
		if !rec.Found {
			t.Fatalf("%q: Found = false, want true", raw)
		}
		if !bytes.Equal(rec.Label, label) {
			t.Fatalf("%q: Label = %q, want %q", raw, rec.Label, label)
		}
	}

	absentItem, _ := item.FromBytes([]byte("carol"))
	rec, ok := results[absentItem.String()]
	if !ok {
		t.Fatal("no MatchRecord for \"carol\"")
	}
	if rec.Found {
		t.Fatal("\"carol\": Found = true, want false (not in the sender's set)")
	}
}
