package scheduler

import (
	"context"

	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/state"
)

// SerialScheduler executes a slate's transactions strictly in order, one
// at a time. It is the reference implementation: simple, always correct,
// and the baseline ParallelScheduler's output must match.
type SerialScheduler struct {
	trie *state.Trie
	exec Executor
}

func NewSerial(trie *state.Trie, exec Executor) *SerialScheduler {
	return &SerialScheduler{trie: trie, exec: exec}
}

// Run executes every batch in slate order against parentRoot and returns
// the resulting new root plus per-batch, per-txn verdicts.
func (s *SerialScheduler) Run(ctx context.Context, parentRoot string, slate []*protocol.Batch) (*Result, error) {
	root := parentRoot
	res := &Result{}
	for _, batch := range slate {
		batchRoot := root
		br := BatchResult{BatchID: batch.ID(), Valid: true}
		for _, txn := range batch.Transactions {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
			newRoot, txnRes, err := applyTxn(ctx, s.trie, s.exec, batchRoot, txn)
			if err != nil {
				return nil, err
			}
			br.Txns = append(br.Txns, txnRes)
			if txnRes.Status != protocol.TxnValid {
				br.Valid = false
				break
			}
			batchRoot = newRoot
		}
		if br.Valid {
			root = batchRoot
		}
		res.Batches = append(res.Batches, br)
	}
	res.StateRoot = root
	return res, nil
}
