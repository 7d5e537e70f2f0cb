package network

import (
	"fmt"

	"github.com/markkurossi/apsi/apsierr"
)

// OperationType tags the variant carried by a SenderOperation, per
// spec.md §9's note that the C++ virtual SenderOperation hierarchy
// "becomes a tagged variant... with exhaustive matching in the
// dispatcher" in an idiomatic Go rendition.
type OperationType uint8

const (
	// OpParms requests the sender's PSIParams.
	OpParms OperationType = iota + 1
	// OpOPRF submits blinded OPRF queries.
	OpOPRF
	// OpQuery submits an encrypted PSI query.
	OpQuery
)

func (t OperationType) String() string {
	switch t {
	case OpParms:
		return "parms"
	case OpOPRF:
		return "oprf"
	case OpQuery:
		return "query"
	default:
		return fmt.Sprintf("operation(%d)", uint8(t))
	}
}

// ParmsRequest carries no payload; its presence on the wire is the
// request.
type ParmsRequest struct{}

// OPRFRequest carries the receiver's blinded query points, one per
// queried item, serialized the way oprf.Evaluate expects.
type OPRFRequest struct {
	Queries []byte
}

// QueryRequest carries the encrypted PSI query: a relinearization key
// plus one compressed ciphertext per (source power, bundle index) pair.
type QueryRequest struct {
	RelinKeyBytes []byte
	// Powers maps a source power to one compressed ciphertext per bundle
	// index, mirroring query.Request before (de)serialization.
	Powers map[int][][]byte
}

// SenderOperation is the tagged variant read off the wire; exactly one
// of Parms, OPRF, Query is non-nil, selected by Type.
type SenderOperation struct {
	Type  OperationType
	Parms *ParmsRequest
	OPRF  *OPRFRequest
	Query *QueryRequest
}

// Dispatch calls the handler matching op.Type, returning ErrProtocol for
// an operation type with no registered handler or a tag/payload
// mismatch. It is the "exhaustive matching" spec.md §9 calls for.
func Dispatch(op SenderOperation, onParms func(ParmsRequest) error, onOPRF func(OPRFRequest) error, onQuery func(QueryRequest) error) error {
	switch op.Type {
	case OpParms:
		if op.Parms == nil {
			return fmt.Errorf("%w: parms operation missing payload", apsierr.ErrProtocol)
		}
		return onParms(*op.Parms)
	case OpOPRF:
		if op.OPRF == nil {
			return fmt.Errorf("%w: oprf operation missing payload", apsierr.ErrProtocol)
		}
		return onOPRF(*op.OPRF)
	case OpQuery:
		if op.Query == nil {
			return fmt.Errorf("%w: query operation missing payload", apsierr.ErrProtocol)
		}
		return onQuery(*op.Query)
	default:
		return fmt.Errorf("%w: unknown operation type %d", apsierr.ErrProtocol, op.Type)
	}
}
