package journal

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/log"

	"github.com/hyperledger-archives/sawtooth-core-sub001/bus"
	"github.com/hyperledger-archives/sawtooth-core-sub001/consensus"
	"github.com/hyperledger-archives/sawtooth-core-sub001/network"
	"github.com/hyperledger-archives/sawtooth-core-sub001/nodectx"
	"github.com/hyperledger-archives/sawtooth-core-sub001/permission"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/storage/blockstore"
)

// MsgConsensusPeerMessage carries opaque consensus engine-to-engine payload
// relayed through the validator, peer-to-peer (spec.md §4.7 SendTo/
// Broadcast, gated by the "network.consensus" role per spec.md §4.8).
const MsgConsensusPeerMessage = "journal.ConsensusPeerMessage"

// BlockBroadcaster is the subset of *gossip.Gossip the controller drives
// after committing new chain state.
type BlockBroadcaster interface {
	BroadcastBlock(block *protocol.Block, skip string)
	BroadcastBatch(batch *protocol.Batch, skip string)
}

// Controller is the chain controller (C12): owns chain_head, drives C10
// validation of incoming blocks, and relays C11's candidates and C13's
// directives. Grounded on engine/chain/engine.go's single
// state+mu struct serializing all head updates behind one critical
// section, generalized from snowman-consensus bookkeeping to spec.md
// §4.6's commit/fork-switch invariants.
//
// Simplification (recorded in DESIGN.md): because package state's trie is
// content-addressed and every validated block's changes are already
// persisted as immutable nodes during CheckBlocks, switching chain_head to
// a block on a different fork never requires re-execution -- it is a
// pointer update plus a BlockCommit/BlockInvalid notification pass. Real
// Sawtooth's fork switch additionally rolls back state_view caches kept
// outside the merkle store; this validator keeps no such cache.
type Controller struct {
	nc        nodectx.NodeContext
	store     *blockstore.Store
	validator *Validator
	publisher *Publisher
	engine    consensus.EngineLink
	net       *network.Network
	bus       bus.Bus
	broadcast BlockBroadcaster
	log       log.Logger

	mu           sync.Mutex
	head         BlockInfo
	pendingFinal map[string]*pendingBlock // blocks validated or built, awaiting CommitBlock/IgnoreBlock/FailBlock
	onCommit     func(block *protocol.Block, receipt *protocol.BlockReceipt)
}

type pendingBlock struct {
	block   *protocol.Block
	receipt *protocol.BlockReceipt
}

func NewController(nc nodectx.NodeContext, store *blockstore.Store, validator *Validator, publisher *Publisher, engine consensus.EngineLink, net *network.Network, b bus.Bus, broadcaster BlockBroadcaster) *Controller {
	c := &Controller{
		nc:           nc,
		store:        store,
		validator:    validator,
		publisher:    publisher,
		engine:       engine,
		net:          net,
		bus:          b,
		broadcast:    broadcaster,
		log:          nc.Log,
		pendingFinal: map[string]*pendingBlock{},
	}
	if b != nil {
		b.Handle(MsgConsensusPeerMessage, c.handleConsensusPeerMessage)
	}
	return c
}

// SetOnCommit registers a callback fired after every successful commit, in
// commit order (spec.md §5 "Events to subscribers are delivered in block
// commit order"); wired to package events.
func (c *Controller) SetOnCommit(f func(block *protocol.Block, receipt *protocol.BlockReceipt)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCommit = f
}

// InitializeGenesis seeds chain_head from an already-committed block:
// either block 0, freshly built by package genesis before the controller
// starts, or the persisted head of a chain the validator is resuming.
func (c *Controller) InitializeGenesis(block *protocol.Block) error {
	h, err := block.Header()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.head = BlockInfo{BlockID: block.ID(), PreviousBlockID: h.PreviousBlockID, BlockNum: h.BlockNum, StateRoot: h.StateRootHash}
	return c.store.SetChainHead(block.ID())
}

// ChainHead returns the current head's metadata.
func (c *Controller) ChainHead() BlockInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}

// Startup sends the engine its StartupInfo (spec.md §4.7).
func (c *Controller) Startup(ctx context.Context, peers []string) error {
	head := c.ChainHead()
	return c.engine.StartupInfo(ctx, consensus.StartupInfo{
		ChainHead:     head.BlockID,
		Peers:         peers,
		LocalPeerInfo: c.nc.LocalPeerID,
	})
}

// HandleNewBlock is C10's entry point for a candidate arriving over gossip
// or from the local publisher: it announces the block to the engine and
// waits for a subsequent CheckBlocks directive to actually validate it
// (spec.md §4.7 "BlockNew ... CheckBlocks{block_ids} -> triggers C10
// validation"). The block is cached so CheckBlocks can find it by id.
func (c *Controller) HandleNewBlock(ctx context.Context, block *protocol.Block) error {
	if ok, err := c.store.HasBlock(block.ID()); err != nil {
		return err
	} else if ok {
		return nil
	}
	if _, err := block.Header(); err != nil {
		return err
	}

	c.mu.Lock()
	c.pendingFinal[block.ID()] = &pendingBlock{block: block}
	c.mu.Unlock()

	var summary int
	for _, bt := range block.Batches {
		summary += len(bt.Transactions)
	}
	return c.engine.BlockNew(ctx, block.HeaderBytes, summary)
}

// resolveParent returns the parent's header and state root for a block
// whose previous_block_id is previousBlockID, or a MissingDependency error
// if the parent is not yet local (spec.md §4.4 "Dependency gap").
func (c *Controller) resolveParent(previousBlockID string) (*protocol.BlockHeader, string, error) {
	if previousBlockID == protocol.NullBlockID {
		return nil, "", nil
	}
	parent, err := c.store.GetBlock(previousBlockID)
	if err != nil {
		return nil, "", MissingDependency(previousBlockID, "parent block not local")
	}
	ph, err := parent.Header()
	if err != nil {
		return nil, "", err
	}
	return ph, ph.StateRootHash, nil
}

// CheckBlocks runs the block validator (C10) on each named, already-cached
// block id and reports the verdict back to the engine (spec.md §4.7).
func (c *Controller) CheckBlocks(ctx context.Context, blockIDs []string) error {
	for _, id := range blockIDs {
		c.mu.Lock()
		pb, ok := c.pendingFinal[id]
		c.mu.Unlock()
		if !ok {
			if err := c.engine.BlockInvalid(ctx, id, string(ReasonMissingDependency)); err != nil {
				return err
			}
			continue
		}

		h, err := pb.block.Header()
		if err != nil {
			return err
		}
		parentHeader, parentRoot, err := c.resolveParent(h.PreviousBlockID)
		if err != nil {
			var ib *InvalidBlockError
			reason := ReasonMissingDependency
			if asInvalidBlockError(err, &ib) {
				reason = ib.Reason
			}
			if err := c.engine.BlockInvalid(ctx, id, string(reason)); err != nil {
				return err
			}
			continue
		}

		receipt, err := c.validator.Validate(ctx, pb.block, h.PreviousBlockID, parentHeader, parentRoot)
		if err != nil {
			var ib *InvalidBlockError
			reason := ReasonBadParent
			detail := err.Error()
			if asInvalidBlockError(err, &ib) {
				reason, detail = ib.Reason, ib.Error()
			}
			if c.log != nil {
				c.log.Info("block invalid", "block_id", id, "reason", reason, "detail", detail)
			}
			if err := c.engine.BlockInvalid(ctx, id, string(reason)); err != nil {
				return err
			}
			c.mu.Lock()
			delete(c.pendingFinal, id)
			c.mu.Unlock()
			continue
		}

		c.mu.Lock()
		pb.receipt = receipt
		c.mu.Unlock()
		if err := c.engine.BlockValid(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func asInvalidBlockError(err error, out **InvalidBlockError) bool {
	ib, ok := err.(*InvalidBlockError)
	if ok {
		*out = ib
	}
	return ok
}

// CommitBlock makes blockID the new chain_head: exactly one commit
// operation is in flight at a time (spec.md §4.6 "single-threaded critical
// section around chain_head updates").
func (c *Controller) CommitBlock(ctx context.Context, blockID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pb, ok := c.pendingFinal[blockID]
	if !ok {
		return fmt.Errorf("journal: CommitBlock(%s): not a known validated or built block", blockID)
	}
	if err := c.store.PutBlock(pb.block); err != nil {
		return err
	}
	if pb.receipt != nil {
		if err := c.store.PutReceipt(pb.receipt); err != nil {
			return err
		}
	}

	h, err := pb.block.Header()
	if err != nil {
		return err
	}
	c.head = BlockInfo{BlockID: pb.block.ID(), PreviousBlockID: h.PreviousBlockID, BlockNum: h.BlockNum, StateRoot: h.StateRootHash}
	if err := c.store.SetChainHead(pb.block.ID()); err != nil {
		return err
	}
	delete(c.pendingFinal, blockID)

	if c.broadcast != nil {
		c.broadcast.BroadcastBlock(pb.block, "")
	}
	if c.onCommit != nil && pb.receipt != nil {
		c.onCommit(pb.block, pb.receipt)
	}
	return c.engine.BlockCommit(ctx, blockID)
}

// IgnoreBlock discards a candidate the engine declined to commit, without
// treating it as invalid (spec.md §4.7 IgnoreBlock).
func (c *Controller) IgnoreBlock(_ context.Context, blockID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pendingFinal, blockID)
	return nil
}

// FailBlock discards a candidate the engine rejected outright (spec.md
// §4.7 FailBlock); behaves the same as IgnoreBlock at the storage layer,
// the distinction (retryable vs. permanently rejected) is the engine's to
// keep track of.
func (c *Controller) FailBlock(ctx context.Context, blockID string) error {
	return c.IgnoreBlock(ctx, blockID)
}

// InitializeBlock forwards to the publisher (spec.md §4.7
// InitializeBlock -> C11 BuildBlock).
func (c *Controller) InitializeBlock(ctx context.Context, previousBlockID string) error {
	return c.publisher.Initialize(ctx, previousBlockID)
}

func (c *Controller) SummarizeBlock(ctx context.Context) (string, int, error) {
	return c.publisher.Summarize(ctx)
}

// FinalizeBlock forwards to the publisher, then caches the produced block
// so a later CommitBlock can find it (spec.md §4.7 FinalizeBlock ->
// candidate produced).
func (c *Controller) FinalizeBlock(ctx context.Context, consensusData []byte) (string, error) {
	block, receipt, err := c.publisher.Finalize(ctx, consensusData)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.pendingFinal[block.ID()] = &pendingBlock{block: block, receipt: receipt}
	c.mu.Unlock()
	return block.ID(), nil
}

func (c *Controller) CancelBlock(ctx context.Context) error {
	return c.publisher.Cancel(ctx)
}

// SendTo relays an opaque consensus payload to one peer (spec.md §4.7
// SendTo); gated at ingress by the network.consensus role (spec.md §4.8).
func (c *Controller) SendTo(_ context.Context, peerID string, payload []byte) error {
	if c.bus == nil {
		return fmt.Errorf("journal: no bus wired for consensus peer messaging")
	}
	return c.bus.Send(peerID, bus.Frame{MessageType: MsgConsensusPeerMessage, Content: payload})
}

// Broadcast relays an opaque consensus payload to every authorized peer
// (spec.md §4.7 Broadcast).
func (c *Controller) Broadcast(ctx context.Context, payload []byte) error {
	if c.net == nil {
		return nil
	}
	for _, p := range c.net.Peers() {
		if err := c.SendTo(ctx, p.Identity, payload); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) handleConsensusPeerMessage(ctx context.Context, from string, f bus.Frame) (*bus.Frame, error) {
	if err := c.engine.PeerMessage(ctx, from, f.Content); err != nil {
		return nil, err
	}
	return nil, nil
}
