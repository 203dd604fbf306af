package journal

import (
	"context"

	"github.com/luxfi/log"

	"github.com/hyperledger-archives/sawtooth-core-sub001/permission"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/scheduler"
	"github.com/hyperledger-archives/sawtooth-core-sub001/state"
	"github.com/hyperledger-archives/sawtooth-core-sub001/storage/blockstore"
)

// Scheduler is the subset of scheduler.SerialScheduler/ParallelScheduler the
// block validator drives; both produce identical observable results for the
// same slate and parent root (spec.md §4.2 "observable semantics"), so
// either satisfies this.
type Scheduler interface {
	Run(ctx context.Context, parentRoot string, slate []*protocol.Batch) (*scheduler.Result, error)
}

// ConsensusChecker asks the consensus engine to accept a candidate's
// consensus bytes (spec.md §4.4 step 6: "Submit block header's consensus
// bytes to C13 for engine-specific acceptance").
type ConsensusChecker interface {
	CheckConsensus(ctx context.Context, block *protocol.Block) error
}

// Validator is the block validator (C10): replays a candidate block's
// batches against its parent's state and confirms the result matches the
// header's claims (spec.md §4.4).
type Validator struct {
	store      *blockstore.Store
	scheduler  Scheduler
	permission *permission.Verifier
	consensus  ConsensusChecker
	log        log.Logger
}

func NewValidator(store *blockstore.Store, sched Scheduler, perm *permission.Verifier, consensus ConsensusChecker, logger log.Logger) *Validator {
	return &Validator{store: store, scheduler: sched, permission: perm, consensus: consensus, log: logger}
}

// Validate runs spec.md §4.4's six steps against block, given its parent's
// header and state_root. It returns a BlockReceipt covering every
// transaction on success, or an *InvalidBlockError identifying the first
// failure otherwise.
func (v *Validator) Validate(ctx context.Context, block *protocol.Block, parentID string, parentHeader *protocol.BlockHeader, parentStateRoot string) (*protocol.BlockReceipt, error) {
	// Step 1: header signature, previous_block_id, block_num.
	if err := block.VerifyStructure(parentID, parentHeader); err != nil {
		return nil, &InvalidBlockError{BlockID: block.ID(), Reason: ReasonBadParent, Detail: err.Error()}
	}

	// Step 2: every batch and contained transaction signature, payload hash.
	for _, batch := range block.Batches {
		if err := batch.Verify(); err != nil {
			return nil, &InvalidBlockError{BlockID: block.ID(), Reason: ReasonBadSignature, BatchID: batch.ID(), Detail: err.Error()}
		}
	}

	// Step 3: permission verifier for every batch and txn signer.
	if v.permission != nil {
		for _, batch := range block.Batches {
			bh, err := batch.Header()
			if err != nil {
				return nil, &InvalidBlockError{BlockID: block.ID(), Reason: ReasonBadSignature, BatchID: batch.ID(), Detail: err.Error()}
			}
			ok, err := v.permission.Check(parentStateRoot, permission.RoleTransactorBatchSigner, bh.SignerPublicKey)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &InvalidBlockError{BlockID: block.ID(), Reason: ReasonPermissionDenied, BatchID: batch.ID(), Detail: "batch signer denied"}
			}
			for _, txn := range batch.Transactions {
				th, err := txn.Header()
				if err != nil {
					return nil, &InvalidBlockError{BlockID: block.ID(), Reason: ReasonBadSignature, BatchID: batch.ID(), Detail: err.Error()}
				}
				ok, err := v.permission.Check(parentStateRoot, permission.RoleTransactorTransactionSigner, th.SignerPublicKey)
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, &InvalidBlockError{BlockID: block.ID(), Reason: ReasonPermissionDenied, BatchID: batch.ID(), TxnID: txn.ID(), Detail: "transaction signer denied"}
				}
			}
		}
	}

	// Step 4: schedule and execute every batch atop the parent state.
	result, err := v.scheduler.Run(ctx, parentStateRoot, block.Batches)
	if err != nil {
		return nil, err
	}

	// Step 5: state root and per-batch validity.
	hdr, err := block.Header()
	if err != nil {
		return nil, err
	}
	for _, br := range result.Batches {
		if !br.Valid {
			var invalidTxnID, invalidReason string
			for _, tr := range br.Txns {
				if tr.Status != protocol.TxnValid {
					invalidTxnID, invalidReason = tr.TransactionID, tr.InvalidReason
					break
				}
			}
			return nil, &InvalidBlockError{BlockID: block.ID(), Reason: ReasonBatchInvalid, BatchID: br.BatchID, TxnID: invalidTxnID, Detail: invalidReason}
		}
	}
	if result.StateRoot != hdr.StateRootHash {
		return nil, &InvalidBlockError{BlockID: block.ID(), Reason: ReasonBadStateRoot, Detail: "produced state_root does not match block header"}
	}

	// Step 6: engine-specific consensus acceptance.
	if v.consensus != nil {
		if err := v.consensus.CheckConsensus(ctx, block); err != nil {
			return nil, &InvalidBlockError{BlockID: block.ID(), Reason: ReasonConsensusReject, Detail: err.Error()}
		}
	}

	receipt := &protocol.BlockReceipt{BlockID: block.ID()}
	for _, br := range result.Batches {
		for _, tr := range br.Txns {
			receipt.TransactionReceipts = append(receipt.TransactionReceipts, &protocol.TransactionReceipt{
				TransactionID: tr.TransactionID,
				Status:        tr.Status,
				InvalidReason: tr.InvalidReason,
				StateChanges:  tr.StateChanges,
				Events:        tr.Events,
				Data:          tr.Data,
			})
		}
	}
	return receipt, nil
}

// MissingDependency is emitted when a block references a parent or batch
// not yet held locally (spec.md §4.4 "Dependency gap"). The chain
// controller reports it to the engine as BlockInvalid with this reason; it
// does not ask C7 to pull the missing data and does not retry validation.
func MissingDependency(blockID, detail string) *InvalidBlockError {
	return &InvalidBlockError{BlockID: blockID, Reason: ReasonMissingDependency, Detail: detail}
}
