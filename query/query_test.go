package query

import (
	"testing"

	"github.com/markkurossi/apsi/psiparams"
	"github.com/markkurossi/apsi/resultpkg"
	"github.com/markkurossi/apsi/seal"
	"github.com/markkurossi/apsi/senderdb"
)

func testParams() psiparams.PSIParams {
	return psiparams.PSIParams{
		Item:  psiparams.ItemParams{FeltsPerItem: 8},
		Table: psiparams.TableParams{HashFuncCount: 3, TableSize: 256, MaxItemsPerBin: 16},
		Query: psiparams.QueryParams{PSLowDegree: 0, QueryPowers: []int{1}},
		Seal: psiparams.SEALParams{
			LogPolyModulusDegree: 11,
			LogCoeffModulus:      []int{40, 40},
			LogAuxModulus:        []int{40},
			PlaintextModulus:     65537,
		},
	}
}

func newTestEngine(t *testing.T) (*Engine, psiparams.PSIParams) {
	t.Helper()
	params := testParams()
	if err := params.Validate(); err != nil {
		t.Fatalf("testParams() should validate: %v", err)
	}
	db, err := senderdb.New(params, false, 0, 0, nil)
	if err != nil {
		t.Fatalf("senderdb.New: %v", err)
	}
	sealParams, err := params.SealParams()
	if err != nil {
		t.Fatalf("SealParams: %v", err)
	}
	encoder := seal.NewEncoder(sealParams)
	return NewEngine(db, nil, encoder), params
}

func noopEmit(resultpkg.ResultPackage) error { return nil }

func TestEvaluateRejectsWrongSourcePowerCount(t *testing.T) {
	engine, _ := newTestEngine(t)
	req := Request{Powers: map[int][]*seal.Ciphertext{}}
	if err := engine.Evaluate(req, nil, noopEmit); err == nil {
		t.Fatal("Evaluate should reject a request missing its configured source powers")
	}
}

func TestEvaluateRejectsUnconfiguredSourcePower(t *testing.T) {
	engine, params := newTestEngine(t)
	bundleCount := params.BundleIndexCount()
	req := Request{Powers: map[int][]*seal.Ciphertext{
		99: make([]*seal.Ciphertext, bundleCount),
	}}
	if err := engine.Evaluate(req, nil, noopEmit); err == nil {
		t.Fatal("Evaluate should reject an unconfigured source power")
	}
}

func TestEvaluateRejectsWrongCiphertextCount(t *testing.T) {
	engine, _ := newTestEngine(t)
	req := Request{Powers: map[int][]*seal.Ciphertext{
		1: make([]*seal.Ciphertext, 0),
	}}
	if err := engine.Evaluate(req, nil, noopEmit); err == nil {
		t.Fatal("Evaluate should reject a source power with the wrong ciphertext count")
	}
}

func TestEvaluateRejectsWriteInProgress(t *testing.T) {
	params := testParams()
	db, err := senderdb.New(params, false, 0, 0, nil)
	if err != nil {
		t.Fatalf("senderdb.New: %v", err)
	}
	sealParams, err := params.SealParams()
	if err != nil {
		t.Fatalf("SealParams: %v", err)
	}
	encoder := seal.NewEncoder(sealParams)
	engine := NewEngine(db, nil, encoder)

	db.SetWriting(true)
	req := Request{Powers: map[int][]*seal.Ciphertext{
		1: make([]*seal.Ciphertext, params.BundleIndexCount()),
	}}
	if err := engine.Evaluate(req, nil, noopEmit); err == nil {
		t.Fatal("Evaluate should reject a query while the DB is in writing mode")
	}
}
