// Package scheduler implements C8: ordering and dispatching a block's
// batches of transactions for execution against a single parent state
// root, producing a deterministic new state_root_hash and a per-txn
// valid/invalid verdict (spec.md §4.2). Two schedulers are provided,
// Serial and Parallel; both must produce identical observable results for
// the same slate and parent root (spec.md §8), differing only in how much
// concurrent execution they attempt internally.
//
// Grounded on engine/chain/block.ChainVM's dispatch shape
// (context.Context-scoped Verify/Accept calls returning an error), and on
// go-ethereum core.StateProcessor's worker-pool use of
// golang.org/x/sync/errgroup for independent transaction validation.
package scheduler

import (
	"context"

	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/sawerr"
	"github.com/hyperledger-archives/sawtooth-core-sub001/state"
)

// Executor is C9's entry point as seen by the scheduler: execute one
// transaction against its context, returning the outcome. Implementations
// dispatch to a registered transaction processor over the component bus
// and block until a response or timeout.
type Executor interface {
	Execute(ctx context.Context, txnCtx *state.Context, txn *protocol.Transaction) (status protocol.TxnStatus, invalidReason string, err error)
}

// TxnResult is one transaction's outcome plus the receipt fragments it
// produced, in slate order.
type TxnResult struct {
	TransactionID string
	Status        protocol.TxnStatus
	InvalidReason string
	StateChanges  []protocol.StateChange
	Events        []protocol.Event
	Data          [][]byte
}

// BatchResult is one batch's outcome: a batch is valid only if every one
// of its transactions is valid (spec.md §4.2 "a batch's validity is the
// conjunction of its transactions' validity").
type BatchResult struct {
	BatchID string
	Valid   bool
	Txns    []TxnResult
}

// Result is a whole slate's outcome: the new state_root_hash and each
// batch's per-txn results, in slate order.
type Result struct {
	StateRoot string
	Batches   []BatchResult
}

func namespacesFor(addrs []string) []string { return addrs }

// applyTxn runs one transaction's declared-namespace-scoped context against
// exec and folds its staged changes into the trie, returning the new root
// and the txn's result. Invalid transactions contribute no state change
// and the batch containing them is marked invalid (spec.md §4.2).
func applyTxn(ctx context.Context, trie *state.Trie, exec Executor, root string, txn *protocol.Transaction) (string, TxnResult, error) {
	hdr, err := txn.Header()
	if err != nil {
		return root, TxnResult{}, sawerr.Validation(sawerr.ReasonBadSignature, txn.ID(), err)
	}
	txnCtx := state.NewContext(trie, root, namespacesFor(hdr.Inputs), namespacesFor(hdr.Outputs))

	status, reason, err := exec.Execute(ctx, txnCtx, txn)
	if err != nil {
		return root, TxnResult{}, err
	}
	result := TxnResult{TransactionID: txn.ID(), Status: status, InvalidReason: reason}
	if status != protocol.TxnValid {
		return root, result, nil
	}

	changes := txnCtx.Changes()
	newRoot, err := trie.Apply(root, changes)
	if err != nil {
		return root, TxnResult{}, err
	}
	for _, c := range changes {
		result.StateChanges = append(result.StateChanges, protocol.StateChange{Address: c.Address, Kind: c.Kind, Value: c.Value})
	}
	result.Events = txnCtx.Events()
	result.Data = txnCtx.ReceiptData()
	return newRoot, result, nil
}
