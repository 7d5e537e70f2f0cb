// wire.go frames the three SenderOperation request/response pairs
// (PARMS, OPRF, QUERY) spec.md §6 defines on top of the Channel trait,
// plus the streamed ResultPackage sequence a QUERY response ends with.
package network

import (
	"fmt"

	"github.com/markkurossi/apsi/apsierr"
	"github.com/markkurossi/apsi/psiparams"
	"github.com/markkurossi/apsi/resultpkg"
)

// SendOperation writes the tagged SenderOperation envelope: a 4-byte
// type tag followed by the variant's own framing.
func SendOperation(ch Channel, op SenderOperation) error {
	if err := ch.SendUint32(int(op.Type)); err != nil {
		return err
	}
	switch op.Type {
	case OpParms:
		// no payload
	case OpOPRF:
		if err := ch.SendData(op.OPRF.Queries); err != nil {
			return err
		}
	case OpQuery:
		if err := sendQueryRequest(ch, *op.Query); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown operation type %d", apsierr.ErrProtocol, op.Type)
	}
	return ch.Flush()
}

// ReceiveOperation reads back what SendOperation wrote.
func ReceiveOperation(ch Channel) (SenderOperation, error) {
	tag, err := ch.ReceiveUint32()
	if err != nil {
		return SenderOperation{}, err
	}
	op := SenderOperation{Type: OperationType(tag)}
	switch op.Type {
	case OpParms:
		op.Parms = &ParmsRequest{}
	case OpOPRF:
		queries, err := ch.ReceiveData()
		if err != nil {
			return SenderOperation{}, err
		}
		op.OPRF = &OPRFRequest{Queries: queries}
	case OpQuery:
		q, err := receiveQueryRequest(ch)
		if err != nil {
			return SenderOperation{}, err
		}
		op.Query = &q
	default:
		return SenderOperation{}, fmt.Errorf("%w: unknown operation type %d", apsierr.ErrProtocol, tag)
	}
	return op, nil
}

func sendQueryRequest(ch Channel, q QueryRequest) error {
	if err := ch.SendData(q.RelinKeyBytes); err != nil {
		return err
	}
	powers := q.Powers
	if err := ch.SendUint32(len(powers)); err != nil {
		return err
	}
	for power, cts := range powers {
		if err := ch.SendUint32(power); err != nil {
			return err
		}
		if err := ch.SendUint32(len(cts)); err != nil {
			return err
		}
		for _, ct := range cts {
			if err := ch.SendData(ct); err != nil {
				return err
			}
		}
	}
	return nil
}

func receiveQueryRequest(ch Channel) (QueryRequest, error) {
	relinBytes, err := ch.ReceiveData()
	if err != nil {
		return QueryRequest{}, err
	}
	numPowers, err := ch.ReceiveUint32()
	if err != nil {
		return QueryRequest{}, err
	}
	powers := make(map[int][][]byte, numPowers)
	for i := 0; i < numPowers; i++ {
		power, err := ch.ReceiveUint32()
		if err != nil {
			return QueryRequest{}, err
		}
		numCts, err := ch.ReceiveUint32()
		if err != nil {
			return QueryRequest{}, err
		}
		cts := make([][]byte, numCts)
		for j := range cts {
			ct, err := ch.ReceiveData()
			if err != nil {
				return QueryRequest{}, err
			}
			cts[j] = ct
		}
		powers[power] = cts
	}
	return QueryRequest{RelinKeyBytes: relinBytes, Powers: powers}, nil
}

// SendParmsResponse writes a PSIParams response to a PARMS request.
func SendParmsResponse(ch Channel, params psiparams.PSIParams) error {
	if err := ch.SendData(params.Serialize()); err != nil {
		return err
	}
	return ch.Flush()
}

// ReceiveParmsResponse reads back what SendParmsResponse wrote.
func ReceiveParmsResponse(ch Channel) (psiparams.PSIParams, error) {
	data, err := ch.ReceiveData()
	if err != nil {
		return psiparams.PSIParams{}, err
	}
	return psiparams.Deserialize(data)
}

// SendOPRFResponse writes the sender's OPRF evaluation response: the
// evaluated points, then the query count and one error-indicator byte
// per query (per oprf.Evaluate's partial-failure contract).
func SendOPRFResponse(ch Channel, evaluated []byte, failed []bool) error {
	if err := ch.SendData(evaluated); err != nil {
		return err
	}
	if err := ch.SendUint32(len(failed)); err != nil {
		return err
	}
	flags := make([]byte, len(failed))
	for i, f := range failed {
		if f {
			flags[i] = 1
		}
	}
	if err := ch.SendData(flags); err != nil {
		return err
	}
	return ch.Flush()
}

// ReceiveOPRFResponse reads back what SendOPRFResponse wrote.
func ReceiveOPRFResponse(ch Channel) (evaluated []byte, failed []bool, err error) {
	evaluated, err = ch.ReceiveData()
	if err != nil {
		return nil, nil, err
	}
	n, err := ch.ReceiveUint32()
	if err != nil {
		return nil, nil, err
	}
	flags, err := ch.ReceiveData()
	if err != nil {
		return nil, nil, err
	}
	if len(flags) != n {
		return nil, nil, fmt.Errorf("%w: oprf response flag count mismatch", apsierr.ErrProtocol)
	}
	failed = make([]bool, n)
	for i, f := range flags {
		failed[i] = f != 0
	}
	return evaluated, failed, nil
}

// SendQueryResponseHeader announces the number of ResultPackages that
// will follow, so the receiver can pre-size its collection without
// buffering an unbounded stream (spec.md §6's "upfront announced
// count").
func SendQueryResponseHeader(ch Channel, count int) error {
	if err := ch.SendUint32(count); err != nil {
		return err
	}
	return ch.Flush()
}

// ReceiveQueryResponseHeader reads back the count SendQueryResponseHeader
// announced.
func ReceiveQueryResponseHeader(ch Channel) (int, error) {
	return ch.ReceiveUint32()
}

// SendResultPackage streams one ResultPackage, matching the BinBundle
// evaluation order the query engine emits in (spec.md §4.E "no global
// barrier": packages may be sent as soon as each is ready).
func SendResultPackage(ch Channel, pkg resultpkg.ResultPackage) error {
	if err := ch.SendUint32(pkg.BundleIndex); err != nil {
		return err
	}
	if err := ch.SendUint32(pkg.LabelByteCount); err != nil {
		return err
	}
	if err := ch.SendUint32(pkg.NonceByteCount); err != nil {
		return err
	}
	if err := ch.SendData(pkg.MatchCiphertext); err != nil {
		return err
	}
	if err := ch.SendData(pkg.LabelCiphertext); err != nil {
		return err
	}
	return ch.Flush()
}

// ReceiveResultPackage reads back one ResultPackage written by
// SendResultPackage. An empty LabelCiphertext means the query had no
// labels, matching resultpkg.ResultPackage's zero value.
func ReceiveResultPackage(ch Channel) (resultpkg.ResultPackage, error) {
	var pkg resultpkg.ResultPackage
	var err error
	if pkg.BundleIndex, err = ch.ReceiveUint32(); err != nil {
		return pkg, err
	}
	if pkg.LabelByteCount, err = ch.ReceiveUint32(); err != nil {
		return pkg, err
	}
	if pkg.NonceByteCount, err = ch.ReceiveUint32(); err != nil {
		return pkg, err
	}
	if pkg.MatchCiphertext, err = ch.ReceiveData(); err != nil {
		return pkg, err
	}
	if pkg.LabelCiphertext, err = ch.ReceiveData(); err != nil {
		return pkg, err
	}
	return pkg, nil
}

// ReceiveResultPackages reads the announced count of ResultPackages,
// calling emit for each as it arrives.
func ReceiveResultPackages(ch Channel, emit func(resultpkg.ResultPackage) error) error {
	count, err := ReceiveQueryResponseHeader(ch)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		pkg, err := ReceiveResultPackage(ch)
		if err != nil {
			return err
		}
		if err := emit(pkg); err != nil {
			return err
		}
	}
	return nil
}
