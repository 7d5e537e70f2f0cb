// session.go implements the SenderSession spec.md §9 and SPEC_FULL.md
// §4.G call for: the object a Dispatch handler routes decoded
// SenderOperation variants into, wrapping a SenderDB and query.Engine
// behind the three wire operations.
package network

import (
	"fmt"

	"github.com/markkurossi/apsi/oprf"
	"github.com/markkurossi/apsi/psiparams"
	"github.com/markkurossi/apsi/query"
	"github.com/markkurossi/apsi/resultpkg"
	"github.com/markkurossi/apsi/seal"
	"github.com/markkurossi/apsi/senderdb"
)

// SenderSession binds one SenderDB and its query engine to a connection,
// answering PARMS, OPRF, and QUERY requests.
type SenderSession struct {
	params  psiparams.PSIParams
	db      *senderdb.SenderDB
	engine  *query.Engine
	sealP   seal.Params
	oprfKey []byte
}

// NewSenderSession builds a session over db, ready to answer requests.
// engine must already be bound to db (see query.NewEngine).
func NewSenderSession(params psiparams.PSIParams, db *senderdb.SenderDB, engine *query.Engine, sealP seal.Params) (*SenderSession, error) {
	keyBytes, err := db.OPRFKeyBytes()
	if err != nil {
		return nil, err
	}
	return &SenderSession{
		params:  params,
		db:      db,
		engine:  engine,
		sealP:   sealP,
		oprfKey: keyBytes,
	}, nil
}

// Serve reads one operation from ch, dispatches it, and writes the
// matching response. It returns after handling exactly one request;
// callers loop to keep serving a persistent connection.
func (s *SenderSession) Serve(ch Channel) error {
	op, err := ReceiveOperation(ch)
	if err != nil {
		return err
	}
	return Dispatch(op,
		func(ParmsRequest) error { return SendParmsResponse(ch, s.params) },
		func(req OPRFRequest) error { return s.handleOPRF(ch, req) },
		func(req QueryRequest) error { return s.handleQuery(ch, req) },
	)
}

func (s *SenderSession) handleOPRF(ch Channel, req OPRFRequest) error {
	key, err := oprf.LoadKey(s.oprfKey)
	if err != nil {
		return err
	}
	evaluated, errs := key.Evaluate(req.Queries)
	failed := make([]bool, len(errs))
	for i, e := range errs {
		failed[i] = e != nil
	}
	return SendOPRFResponse(ch, evaluated, failed)
}

func (s *SenderSession) handleQuery(ch Channel, req QueryRequest) error {
	rlk, err := seal.ParseRelinKey(req.RelinKeyBytes)
	if err != nil {
		return err
	}

	powers := make(map[int][]*seal.Ciphertext, len(req.Powers))
	for power, ctBytesSlice := range req.Powers {
		cts := make([]*seal.Ciphertext, len(ctBytesSlice))
		for i, b := range ctBytesSlice {
			ct, err := seal.Decompress(b)
			if err != nil {
				return err
			}
			cts[i] = ct
		}
		powers[power] = cts
	}

	evaluator := seal.NewEvaluator(s.sealP, rlk)
	qreq := query.Request{RelinKey: rlk, Powers: powers}

	var pkgs []resultpkg.ResultPackage
	if err := s.engine.Evaluate(qreq, evaluator, func(pkg resultpkg.ResultPackage) error {
		pkgs = append(pkgs, pkg)
		return nil
	}); err != nil {
		return fmt.Errorf("network: evaluate query: %w", err)
	}

	if err := SendQueryResponseHeader(ch, len(pkgs)); err != nil {
		return err
	}
	for _, pkg := range pkgs {
		if err := SendResultPackage(ch, pkg); err != nil {
			return err
		}
	}
	return ch.Flush()
}
