package network

import (
	"bytes"
	"testing"

	"github.com/markkurossi/apsi/psiparams"
	"github.com/markkurossi/apsi/resultpkg"
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

func TestPipeChannelSendReceiveData(t *testing.T) {
	a, b := NewPipeChannel()
	defer a.Close()
	defer b.Close()

	want := []byte("hello apsi")
	errc := make(chan error, 1)
	go func() { errc <- a.SendData(want) }()

	got, err := b.ReceiveData()
	if err != nil {
		t.Fatalf("ReceiveData: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("SendData: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("ReceiveData = %q, want %q", got, want)
	}
}

func TestPipeChannelSendReceiveUint32(t *testing.T) {
	a, b := NewPipeChannel()
	defer a.Close()
	defer b.Close()

	errc := make(chan error, 1)
	go func() { errc <- a.SendUint32(424242) }()

	got, err := b.ReceiveUint32()
	if err != nil {
		t.Fatalf("ReceiveUint32: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("SendUint32: %v", err)
	}
	if got != 424242 {
		t.Fatalf("ReceiveUint32 = %d, want 424242", got)
	}
}

func TestOperationRoundTripParms(t *testing.T) {
	a, b := NewPipeChannel()
	defer a.Close()
	defer b.Close()

	op := SenderOperation{Type: OpParms, Parms: &ParmsRequest{}}
	errc := make(chan error, 1)
	go func() { errc <- SendOperation(a, op) }()

	got, err := ReceiveOperation(b)
	if err != nil {
		t.Fatalf("ReceiveOperation: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("SendOperation: %v", err)
	}
	if got.Type != OpParms || got.Parms == nil {
		t.Fatalf("ReceiveOperation = %+v, want a PARMS request", got)
	}
}

func TestOperationRoundTripOPRF(t *testing.T) {
	a, b := NewPipeChannel()
	defer a.Close()
	defer b.Close()

	queries := []byte{1, 2, 3, 4, 5}
	op := SenderOperation{Type: OpOPRF, OPRF: &OPRFRequest{Queries: queries}}
	errc := make(chan error, 1)
	go func() { errc <- SendOperation(a, op) }()

	got, err := ReceiveOperation(b)
	if err != nil {
		t.Fatalf("ReceiveOperation: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("SendOperation: %v", err)
	}
	if got.Type != OpOPRF || got.OPRF == nil || !bytes.Equal(got.OPRF.Queries, queries) {
		t.Fatalf("ReceiveOperation = %+v, want OPRF request with Queries=%v", got, queries)
	}
}

func TestOperationRoundTripQuery(t *testing.T) {
	a, b := NewPipeChannel()
	defer a.Close()
	defer b.Close()

	req := &QueryRequest{
		RelinKeyBytes: []byte{9, 9, 9},
		Powers: map[int][][]byte{
			1: {{1, 1}, {2, 2}},
			2: {{3, 3}, {4, 4}},
		},
	}
	op := SenderOperation{Type: OpQuery, Query: req}
	errc := make(chan error, 1)
	go func() { errc <- SendOperation(a, op) }()

	got, err := ReceiveOperation(b)
	if err != nil {
		t.Fatalf("ReceiveOperation: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("SendOperation: %v", err)
	}
	if got.Type != OpQuery || got.Query == nil {
		t.Fatalf("ReceiveOperation = %+v, want a QUERY request", got)
	}
	if !bytes.Equal(got.Query.RelinKeyBytes, req.RelinKeyBytes) {
		t.Fatalf("RelinKeyBytes = %v, want %v", got.Query.RelinKeyBytes, req.RelinKeyBytes)
	}
	if len(got.Query.Powers) != len(req.Powers) {
		t.Fatalf("Powers has %d entries, want %d", len(got.Query.Powers), len(req.Powers))
	}
	for power, cts := range req.Powers {
		gotCts, ok := got.Query.Powers[power]
		if !ok || len(gotCts) != len(cts) {
			t.Fatalf("power %d: got %v, want %v", power, gotCts, cts)
		}
		for i := range cts {
			if !bytes.Equal(gotCts[i], cts[i]) {
				t.Fatalf("power %d ciphertext %d: got %v, want %v", power, i, gotCts[i], cts[i])
			}
		}
	}
}

func TestParmsResponseRoundTrip(t *testing.T) {
	a, b := NewPipeChannel()
	defer a.Close()
	defer b.Close()

	params := testParams()
	errc := make(chan error, 1)
	go func() { errc <- SendParmsResponse(a, params) }()

	got, err := ReceiveParmsResponse(b)
	if err != nil {
		t.Fatalf("ReceiveParmsResponse: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("SendParmsResponse: %v", err)
	}
	if got.Item.FeltsPerItem != params.Item.FeltsPerItem ||
		got.Table.TableSize != params.Table.TableSize ||
		got.Seal.PlaintextModulus != params.Seal.PlaintextModulus {
		t.Fatalf("ReceiveParmsResponse = %+v, want %+v", got, params)
	}
}

func TestOPRFResponseRoundTrip(t *testing.T) {
	a, b := NewPipeChannel()
	defer a.Close()
	defer b.Close()

	evaluated := []byte{1, 2, 3, 4}
	failed := []bool{false, true, false}
	errc := make(chan error, 1)
	go func() { errc <- SendOPRFResponse(a, evaluated, failed) }()

	gotEval, gotFailed, err := ReceiveOPRFResponse(b)
	if err != nil {
		t.Fatalf("ReceiveOPRFResponse: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("SendOPRFResponse: %v", err)
	}
	if !bytes.Equal(gotEval, evaluated) {
		t.Fatalf("evaluated = %v, want %v", gotEval, evaluated)
	}
	if len(gotFailed) != len(failed) {
		t.Fatalf("failed has %d entries, want %d", len(gotFailed), len(failed))
	}
	for i := range failed {
		if gotFailed[i] != failed[i] {
			t.Fatalf("failed[%d] = %v, want %v", i, gotFailed[i], failed[i])
		}
	}
}

func TestResultPackageStreamRoundTrip(t *testing.T) {
	a, b := NewPipeChannel()
	defer a.Close()
	defer b.Close()

	pkgs := []resultpkg.ResultPackage{
		{BundleIndex: 0, LabelByteCount: 4, NonceByteCount: 12, MatchCiphertext: []byte{1, 2}, LabelCiphertext: []byte{3, 4}},
		{BundleIndex: 1, MatchCiphertext: []byte{5, 6, 7}},
	}

	errc := make(chan error, 1)
	go func() {
		if err := SendQueryResponseHeader(a, len(pkgs)); err != nil {
			errc <- err
			return
		}
		for _, pkg := range pkgs {
			if err := SendResultPackage(a, pkg); err != nil {
				errc <- err
				return
			}
		}
		errc <- nil
	}()

	var got []resultpkg.ResultPackage
	err := ReceiveResultPackages(b, func(pkg resultpkg.ResultPackage) error {
		got = append(got, pkg)
		return nil
	})
	if err != nil {
		t.Fatalf("ReceiveResultPackages: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("send side: %v", err)
	}
	if len(got) != len(pkgs) {
		t.Fatalf("got %d packages, want %d", len(got), len(pkgs))
	}
	for i := range pkgs {
		if got[i].BundleIndex != pkgs[i].BundleIndex ||
			!bytes.Equal(got[i].MatchCiphertext, pkgs[i].MatchCiphertext) ||
			!bytes.Equal(got[i].LabelCiphertext, pkgs[i].LabelCiphertext) {
			t.Fatalf("package %d = %+v, want %+v", i, got[i], pkgs[i])
		}
	}
}
