package journal

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/log"

	"github.com/hyperledger-archives/sawtooth-core-sub001/crypto"
	"github.com/hyperledger-archives/sawtooth-core-sub001/permission"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/sawerr"
	"github.com/hyperledger-archives/sawtooth-core-sub001/scheduler"
	"github.com/hyperledger-archives/sawtooth-core-sub001/settings"
	"github.com/hyperledger-archives/sawtooth-core-sub001/state"
	"github.com/hyperledger-archives/sawtooth-core-sub001/storage/blockstore"
)

// Injector synthesizes a batch to prepend to every candidate block (e.g.
// block-info, consensus registration), named by an on-chain ordered list
// (spec.md §4.5 step 2 "block injectors").
type Injector interface {
	Name() string
	Inject(ctx context.Context, parentStateRoot string) (*protocol.Batch, error)
}

// candidate is the publisher's single in-flight block build (spec.md §4.5
// "at most one candidate per parent at a time").
type candidate struct {
	previousBlockID string
	blockNum        uint64
	stateRoot       string
	batches         []*protocol.Batch
	results         []scheduler.BatchResult
	seenTxns        map[string]bool
}

// Publisher is the block publisher (C11): assembles a candidate block atop
// a parent's state, driven by the consensus engine's
// InitializeBlock/FinalizeBlock/CancelBlock directives (spec.md §4.5).
// Grounded on block.ChainVM.BuildBlock, generalized from a
// single in-process call to a multi-step open/drain/finalize sequence
// matching the out-of-process engine protocol in package consensus.
type Publisher struct {
	scheduler  Scheduler
	store      *blockstore.Store
	settings   *settings.Reader
	permission *permission.Verifier
	signer     *crypto.PrivateKey
	injectors  []Injector
	log        log.Logger

	mu      sync.Mutex
	cand    *candidate
	pending []*protocol.Batch // arrival order
}

func NewPublisher(sched Scheduler, store *blockstore.Store, settingsReader *settings.Reader, perm *permission.Verifier, signer *crypto.PrivateKey, injectors []Injector, logger log.Logger) *Publisher {
	return &Publisher{
		scheduler:  sched,
		store:      store,
		settings:   settingsReader,
		permission: perm,
		signer:     signer,
		injectors:  injectors,
		log:        logger,
	}
}

// AddBatch admits a batch to the pending pool in arrival order (spec.md
// §4.5 step 3 "Drain the pending batch pool in arrival order"), deduping
// against already-committed batches.
func (p *Publisher) AddBatch(batch *protocol.Batch) error {
	if ok, err := p.store.HasBatch(batch.ID()); err != nil {
		return err
	} else if ok {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.pending {
		if b.ID() == batch.ID() {
			return nil
		}
	}
	p.pending = append(p.pending, batch)
	return nil
}

// Initialize opens a new candidate atop previousBlockID's state, applies
// on-chain block injectors, then drains as much of the pending pool as
// the per-block cap and dependency ordering allow (spec.md §4.5 steps 1-3).
func (p *Publisher) Initialize(ctx context.Context, previousBlockID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cand != nil {
		return fmt.Errorf("journal: publisher already has a candidate open (spec.md §4.5: at most one per parent)")
	}

	var parentRoot string
	var blockNum uint64
	if previousBlockID == protocol.NullBlockID {
		parentRoot = state.EmptyStateRootHash
		blockNum = 0
	} else {
		parent, err := p.store.GetBlock(previousBlockID)
		if err != nil {
			return err
		}
		ph, err := parent.Header()
		if err != nil {
			return err
		}
		parentRoot = ph.StateRootHash
		blockNum = ph.BlockNum + 1
	}

	c := &candidate{previousBlockID: previousBlockID, blockNum: blockNum, stateRoot: parentRoot, seenTxns: map[string]bool{}}
	p.cand = c

	for _, inj := range p.orderedInjectors(parentRoot) {
		batch, err := inj.Inject(ctx, c.stateRoot)
		if err != nil {
			return fmt.Errorf("journal: injector %s: %w", inj.Name(), err)
		}
		if batch == nil {
			continue
		}
		if err := p.tryAppend(ctx, batch); err != nil {
			return fmt.Errorf("journal: injector %s produced invalid batch: %w", inj.Name(), err)
		}
	}

	p.drainLocked(ctx)
	return nil
}

// orderedInjectors resolves the on-chain block-injector order (spec.md
// §4.5 step 2 "ordered list identified by a settings value"), falling back
// to construction order if no setting is present or no reader is wired.
func (p *Publisher) orderedInjectors(stateRoot string) []Injector {
	if p.settings == nil || len(p.injectors) == 0 {
		return p.injectors
	}
	names, err := p.settings.GetList(stateRoot, settings.KeyBlockInjectors)
	if err != nil || len(names) == 0 {
		return p.injectors
	}
	byName := make(map[string]Injector, len(p.injectors))
	for _, inj := range p.injectors {
		byName[inj.Name()] = inj
	}
	ordered := make([]Injector, 0, len(names))
	for _, n := range names {
		if inj, ok := byName[n]; ok {
			ordered = append(ordered, inj)
		}
	}
	return ordered
}

// maxBatchesPerBlock resolves the per-block cap from on-chain settings,
// defaulting to defaultCap when unset or unreadable (spec.md §4.5 step 3).
func (p *Publisher) maxBatchesPerBlock(stateRoot, defaultCap int) int {
	if p.settings == nil {
		return defaultCap
	}
	n, err := p.settings.GetInt(stateRoot, settings.KeyMaxBatchesPerBlock, defaultCap)
	if err != nil {
		return defaultCap
	}
	return n
}

// drainLocked admits pending batches into the open candidate until the cap
// is reached or the pool is exhausted, skipping batches whose transaction
// dependencies are not yet satisfied (spec.md §4.5 step 3 "dependency
// ordering"); caller holds p.mu.
func (p *Publisher) drainLocked(ctx context.Context) {
	if p.cand == nil {
		return
	}
	maxBatches := p.maxBatchesPerBlock(p.cand.stateRoot, 100)
	var remaining []*protocol.Batch
	for _, batch := range p.pending {
		if len(p.cand.batches) >= maxBatches {
			remaining = append(remaining, batch)
			continue
		}
		if !p.dependenciesSatisfied(batch) {
			remaining = append(remaining, batch)
			continue
		}
		if err := p.tryAppend(ctx, batch); err != nil {
			if p.log != nil {
				p.log.Warn("dropping batch from candidate", "batch_id", batch.ID(), "err", err)
			}
			continue // dropped: invalid or permission-denied (spec.md §4.5 "Drop invalid/denied batches")
		}
	}
	p.pending = remaining
}

func (p *Publisher) dependenciesSatisfied(batch *protocol.Batch) bool {
	for _, txn := range batch.Transactions {
		th, err := txn.Header()
		if err != nil {
			return false
		}
		for _, dep := range th.Dependencies {
			if p.cand.seenTxns[dep] {
				continue
			}
			if _, err := p.store.GetTransaction(dep); err != nil {
				return false
			}
		}
	}
	return true
}

// tryAppend runs batch through the permission verifier then the scheduler
// atop the candidate's current state root, appending it on success and
// advancing the root; returns an error (never panics) if the batch is
// invalid or denied, leaving the candidate unmodified.
func (p *Publisher) tryAppend(ctx context.Context, batch *protocol.Batch) error {
	if p.permission != nil {
		bh, err := batch.Header()
		if err != nil {
			return err
		}
		ok, err := p.permission.Check(p.cand.stateRoot, permission.RoleTransactorBatchSigner, bh.SignerPublicKey)
		if err != nil {
			return err
		}
		if !ok {
			return sawerr.Permission(sawerr.ReasonTransactorDenied, batch.ID(), nil)
		}
	}
	result, err := p.scheduler.Run(ctx, p.cand.stateRoot, []*protocol.Batch{batch})
	if err != nil {
		return err
	}
	if len(result.Batches) != 1 || !result.Batches[0].Valid {
		return sawerr.Validation(sawerr.ReasonBatchInvalid, batch.ID(), nil)
	}
	p.cand.stateRoot = result.StateRoot
	p.cand.batches = append(p.cand.batches, batch)
	p.cand.results = append(p.cand.results, result.Batches[0])
	for _, txn := range batch.Transactions {
		p.cand.seenTxns[txn.ID()] = true
	}
	return nil
}

// Summarize answers the engine's SummarizeBlock request with the
// candidate's current state hash and batch count (spec.md §4.7).
func (p *Publisher) Summarize(_ context.Context) (string, int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cand == nil {
		return "", 0, fmt.Errorf("journal: no open candidate to summarize")
	}
	return p.cand.stateRoot, len(p.cand.batches), nil
}

// Finalize freezes the candidate, signs it, and closes it out (spec.md
// §4.5 step 4). It also returns the receipt already produced while
// draining batches, so the chain controller can commit without re-running
// the scheduler. The caller owns what happens to the resulting block next;
// Publisher does not persist or broadcast it.
func (p *Publisher) Finalize(_ context.Context, consensusData []byte) (*protocol.Block, *protocol.BlockReceipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cand == nil {
		return nil, nil, fmt.Errorf("journal: no open candidate to finalize")
	}
	block, err := protocol.NewSignedBlock(p.cand.blockNum, p.cand.previousBlockID, p.cand.batches, p.cand.stateRoot, consensusData, p.signer)
	if err != nil {
		return nil, nil, err
	}
	receipt := &protocol.BlockReceipt{BlockID: block.ID()}
	for _, br := range p.cand.results {
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
	p.cand = nil
	return block, receipt, nil
}

// Cancel drops the open candidate atomically (spec.md §4.5 "cancellation
// on CancelBlock drops the candidate atomically"), returning its batches
// to the pending pool so they are retried on the next Initialize.
func (p *Publisher) Cancel(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cand == nil {
		return nil
	}
	p.pending = append(p.cand.batches, p.pending...)
	p.cand = nil
	return nil
}
