package scheduler

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/state"
)

// ParallelScheduler executes a batch's non-conflicting transactions
// concurrently, using each transaction's declared inputs/outputs to
// compute a dependency graph within the batch: transaction i depends on
// the nearest preceding transaction j whose declared namespaces overlap
// i's (spec.md §4.2 "schedulers may execute non-conflicting transactions
// concurrently provided the observable per-txn verdicts and resulting
// state_root_hash match the serial scheduler exactly"). Batches themselves
// still commit in slate order, since a batch's parent root is only known
// once the previous batch resolves.
//
// Grounded on the other_examples go-ethereum core.StateProcessor's use of
// golang.org/x/sync/errgroup for a bounded worker pool.
type ParallelScheduler struct {
	trie        *state.Trie
	exec        Executor
	concurrency int
}

// NewParallel constructs a ParallelScheduler with the given worker
// concurrency (at least 1).
func NewParallel(trie *state.Trie, exec Executor, concurrency int) *ParallelScheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ParallelScheduler{trie: trie, exec: exec, concurrency: concurrency}
}

func touchesNamespace(hdr *protocol.TransactionHeader) []string {
	out := make([]string, 0, len(hdr.Inputs)+len(hdr.Outputs))
	out = append(out, hdr.Inputs...)
	out = append(out, hdr.Outputs...)
	return out
}

func namespacesOverlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if strings.HasPrefix(x, y) || strings.HasPrefix(y, x) {
				return true
			}
		}
	}
	return false
}

// dependencyOf returns the index of the nearest preceding transaction in
// txns[:i] whose namespaces overlap touched[i], or -1 if none.
func dependencyOf(touched [][]string, i int) int {
	for j := i - 1; j >= 0; j-- {
		if namespacesOverlap(touched[j], touched[i]) {
			return j
		}
	}
	return -1
}

type txnOutcome struct {
	root string
	res  TxnResult
	err  error
}

// Run has the same contract as SerialScheduler.Run.
func (s *ParallelScheduler) Run(ctx context.Context, parentRoot string, slate []*protocol.Batch) (*Result, error) {
	root := parentRoot
	res := &Result{}
	for _, batch := range slate {
		br, newRoot, err := s.runBatch(ctx, root, batch)
		if err != nil {
			return nil, err
		}
		if br.Valid {
			root = newRoot
		}
		res.Batches = append(res.Batches, br)
	}
	res.StateRoot = root
	return res, nil
}

func (s *ParallelScheduler) runBatch(ctx context.Context, batchRoot string, batch *protocol.Batch) (BatchResult, string, error) {
	txns := batch.Transactions
	n := len(txns)
	headers := make([]*protocol.TransactionHeader, n)
	touched := make([][]string, n)
	for i, t := range txns {
		hdr, err := t.Header()
		if err != nil {
			return BatchResult{}, batchRoot, err
		}
		headers[i] = hdr
		touched[i] = touchesNamespace(hdr)
	}
	deps := make([]int, n)
	for i := range txns {
		deps[i] = dependencyOf(touched, i)
	}

	done := make([]chan struct{}, n)
	for i := range done {
		done[i] = make(chan struct{})
	}
	outcomes := make([]txnOutcome, n)

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.concurrency)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			if deps[i] >= 0 {
				select {
				case <-done[deps[i]]:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			sem <- struct{}{}
			defer func() { <-sem }()

			inputRoot := batchRoot
			if deps[i] >= 0 {
				inputRoot = outcomes[deps[i]].root
			}
			newRoot, txnRes, err := applyTxn(gctx, s.trie, s.exec, inputRoot, txns[i])
			outcomes[i] = txnOutcome{root: newRoot, res: txnRes, err: err}
			close(done[i])
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return BatchResult{}, batchRoot, err
	}

	// The worker phase above applied each txn in isolation against its own
	// dependency's root, so outcomes[i].root only reflects that one chain's
	// writes. Independent txns (deps[i] == -1) all wrote on top of
	// batchRoot in parallel, not on top of each other. Re-apply every
	// valid txn's recorded state changes onto a single accumulating root,
	// in slate order, so the batch's final root incorporates every
	// non-conflicting txn's writes exactly as SerialScheduler would.
	br := BatchResult{BatchID: batch.ID(), Valid: true}
	finalRoot := batchRoot
	for i := 0; i < n; i++ {
		br.Txns = append(br.Txns, outcomes[i].res)
		if outcomes[i].res.Status != protocol.TxnValid {
			br.Valid = false
			break
		}
		changes := make([]state.Change, 0, len(outcomes[i].res.StateChanges))
		for _, c := range outcomes[i].res.StateChanges {
			changes = append(changes, state.Change{Address: c.Address, Kind: c.Kind, Value: c.Value})
		}
		newRoot, err := s.trie.Apply(finalRoot, changes)
		if err != nil {
			return BatchResult{}, batchRoot, err
		}
		finalRoot = newRoot
	}
	return br, finalRoot, nil
}
