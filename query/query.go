// Package query implements the sender-side query evaluation engine
// (spec.md §4.E, component E): homomorphic power computation driven by
// the PowersDag, Paterson-Stockmeyer (or plain Horner) polynomial
// evaluation, and streamed ResultPackage production.
package query

import (
	"fmt"
	"sync"

	"github.com/markkurossi/apsi/apsierr"
	"github.com/markkurossi/apsi/powers"
	"github.com/markkurossi/apsi/psiparams"
	"github.com/markkurossi/apsi/resultpkg"
	"github.com/markkurossi/apsi/seal"
	"github.com/markkurossi/apsi/senderdb"
	"github.com/markkurossi/apsi/workerpool"
)

// Request is one receiver query: a relinearization key and, for every
// source power configured in PSIParams.Query.QueryPowers, one ciphertext
// per bundle index (spec.md §6: "a map power -> vector<compressed
// ciphertext> keyed by source power").
type Request struct {
	RelinKey *seal.RelinKey
	Powers   map[int][]*seal.Ciphertext // power -> ciphertext per bundle index
}

// Engine evaluates queries against a SenderDB.
type Engine struct {
	db     *senderdb.SenderDB
	params psiparams.PSIParams
	pool   *workerpool.Pool
	zero   *seal.Plaintext
}

// NewEngine builds a query engine bound to db. encoder is used only to
// derive the all-zero plaintext Paterson-Stockmeyer needs; it need not be
// the same Encoder instance the caller uses elsewhere.
func NewEngine(db *senderdb.SenderDB, pool *workerpool.Pool, encoder *seal.Encoder) *Engine {
	if pool == nil {
		pool = workerpool.New(0)
	}
	return &Engine{db: db, params: db.Params(), pool: pool, zero: encoder.EncodeZero()}
}

// validate checks the request's source powers against PSIParams.Query.QueryPowers,
// per spec.md §4.E failure mode "InvalidQuery if the query's source powers
// do not match those configured."
func (e *Engine) validate(req Request) error {
	configured := make(map[int]bool, len(e.params.Query.QueryPowers))
	for _, p := range e.params.Query.QueryPowers {
		configured[p] = true
	}
	if len(req.Powers) != len(configured) {
		return fmt.Errorf("%w: query supplies %d source powers, configured %d",
			apsierr.ErrProtocol, len(req.Powers), len(configured))
	}
	for p, cts := range req.Powers {
		if !configured[p] {
			return fmt.Errorf("%w: unconfigured source power %d", apsierr.ErrProtocol, p)
		}
		if len(cts) != e.db.BundleIndexCount() {
			return fmt.Errorf("%w: source power %d carries %d ciphertexts, want %d per bundle index",
				apsierr.ErrProtocol, p, len(cts), e.db.BundleIndexCount())
		}
	}
	return nil
}

// Evaluate runs req against the engine's SenderDB and invokes emit once
// per evaluated BinBundle, in completion order (spec.md §4.E "streams
// packages to the receiver as they are computed, no global barrier").
// Evaluation is parallel over BinBundles; within one BinBundle the power
// accumulation is single-threaded (spec.md §4.E "Concurrency").
func (e *Engine) Evaluate(req Request, evaluator *seal.Evaluator, emit func(resultpkg.ResultPackage) error) error {
	if err := e.db.CheckReadable(); err != nil {
		return err
	}
	if err := e.validate(req); err != nil {
		return err
	}

	dag, err := powers.New(e.params.Query.QueryPowers, e.params.Table.MaxItemsPerBin)
	if err != nil {
		return err
	}
	layers := dag.TopologicalLayers()

	type job struct {
		bundleIdx int
		bundle    *senderdb.BinBundle
	}
	var jobs []job
	for bundleIdx := 0; bundleIdx < e.db.BundleIndexCount(); bundleIdx++ {
		for _, bb := range e.db.Row(bundleIdx) {
			jobs = append(jobs, job{bundleIdx: bundleIdx, bundle: bb})
		}
	}

	var emitMu sync.Mutex
	return e.pool.Run(len(jobs), func(i int) error {
		j := jobs[i]

		powersCt, err := derivePowers(req, dag, layers, j.bundleIdx, evaluator)
		if err != nil {
			return err
		}

		matchCt := evalPolynomial(evaluator, e.zero, powersCt, j.bundle.MatchPlaintext,
			j.bundle.Rows()-1, e.params.Query.PSLowDegree)
		matchBytes, err := seal.Compress(matchCt)
		if err != nil {
			return err
		}

		pkg := resultpkg.ResultPackage{
			BundleIndex:     j.bundleIdx,
			LabelByteCount:  e.db.LabelByteCount(),
			NonceByteCount:  e.db.NonceByteCount(),
			MatchCiphertext: matchBytes,
		}

		if e.db.HasLabels() {
			labelCt := evalPolynomial(evaluator, e.zero, powersCt, j.bundle.LabelPlaintext,
				j.bundle.Rows()-1, e.params.Query.PSLowDegree)
			labelBytes, err := seal.Compress(labelCt)
			if err != nil {
				return err
			}
			pkg.LabelCiphertext = labelBytes
		}

		emitMu.Lock()
		defer emitMu.Unlock()
		return emit(pkg)
	})
}

// derivePowers computes the full power map {1,...,maxItemsPerBin} for one
// bundle index from the request's source-power ciphertexts, following the
// PowersDag's topological layers so that independent nodes within a
// layer could run in parallel (spec.md §4.E step 1). Layers for a single
// bundle are evaluated sequentially here, since the parallelism this
// engine exploits is already across BinBundles.
func derivePowers(req Request, dag *powers.Dag, layers [][]int, bundleIdx int, evaluator *seal.Evaluator) (map[int]*seal.Ciphertext, error) {
	result := make(map[int]*seal.Ciphertext, dag.MaxPower)
	for p, cts := range req.Powers {
		result[p] = cts[bundleIdx]
	}
	for _, layer := range layers {
		for _, p := range layer {
			node, _ := dag.Node(p)
			a, aok := result[node.ParentA]
			b, bok := result[node.ParentB]
			if !aok || !bok {
				return nil, fmt.Errorf("%w: powers dag node %d missing parent ciphertext",
					apsierr.ErrProtocol, p)
			}
			result[p] = evaluator.MulRelinNew(a, b)
		}
	}
	return result, nil
}
