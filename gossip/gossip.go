// Package gossip implements C7: flooding new blocks and batches to every
// authorized peer once (with a seen-set to prevent loops), and satisfying
// pull requests for missing data by id (spec.md §4.8). Grounded on the
// teacher's networking/router (handler registration keyed by message type)
// and networking/handler.Connected/Disconnected lifecycle shape, reused
// here through the network package's peer table and Guard.
package gossip

import (
	"context"
	"sync"
	"time"

	"github.com/luxfi/log"

	"github.com/hyperledger-archives/sawtooth-core-sub001/bus"
	"github.com/hyperledger-archives/sawtooth-core-sub001/network"
	"github.com/hyperledger-archives/sawtooth-core-sub001/nodectx"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
)

// Message type names carried in a bus.Frame's MessageType field.
const (
	MsgGossipBlock                    = "GossipBlock"
	MsgGossipBatch                    = "GossipBatch"
	MsgGossipBlockRequest             = "GossipBlockRequest"
	MsgGossipBatchByBatchIdRequest    = "GossipBatchByBatchIdRequest"
	MsgGossipBatchByTransactionIdRequest = "GossipBatchByTransactionIdRequest"
)

// BlockSource looks up a previously committed or gossiped block by id,
// answering pull requests (spec.md §4.8).
type BlockSource interface {
	GetBlock(id string) (*protocol.Block, bool)
}

// BatchSource looks up a batch by its own id or by a contained
// transaction's id, answering pull requests.
type BatchSource interface {
	GetBatch(id string) (*protocol.Batch, bool)
	GetBatchByTransactionID(txnID string) (*protocol.Batch, bool)
}

// Gossip is C7: it floods newly observed blocks/batches once per peer and
// serves pull requests for ones it already has.
type Gossip struct {
	nc      nodectx.NodeContext
	net     *network.Network
	bus     bus.Bus
	blocks  BlockSource
	batches BatchSource

	seenMu      sync.Mutex
	seenBlocks  map[string]bool
	seenBatches map[string]bool

	outboxMu sync.Mutex
	outboxes map[string]*outbox
	depth    int

	onNewBlock func(*protocol.Block)
	onNewBatch func(*protocol.Batch)

	log log.Logger
}

// New constructs a Gossip instance bound to net's peer table and b's
// message bus.
func New(nc nodectx.NodeContext, net *network.Network, b bus.Bus, blocks BlockSource, batches BatchSource) *Gossip {
	depth := 1024
	if nc.Config != nil && nc.Config.OutgoingQueueDepth > 0 {
		depth = nc.Config.OutgoingQueueDepth
	}
	g := &Gossip{
		nc:          nc,
		net:         net,
		bus:         b,
		blocks:      blocks,
		batches:     batches,
		seenBlocks:  make(map[string]bool),
		seenBatches: make(map[string]bool),
		outboxes:    make(map[string]*outbox),
		depth:       depth,
		log:         nc.Log,
	}
	g.registerHandlers()
	return g
}

// OnNewBlock/OnNewBatch register the callback invoked when a not-previously-
// seen block/batch arrives (typically the journal's block validator, C10).
func (g *Gossip) OnNewBlock(f func(*protocol.Block)) { g.onNewBlock = f }
func (g *Gossip) OnNewBatch(f func(*protocol.Batch)) { g.onNewBatch = f }

func (g *Gossip) registerHandlers() {
	g.bus.Handle(MsgGossipBlock, g.net.Guard(network.RoleNetwork, g.handleGossipBlock))
	g.bus.Handle(MsgGossipBatch, g.net.Guard(network.RoleNetwork, g.handleGossipBatch))
	g.bus.Handle(MsgGossipBlockRequest, g.net.Guard(network.RoleNetwork, g.handleGossipBlockRequest))
	g.bus.Handle(MsgGossipBatchByBatchIdRequest, g.net.Guard(network.RoleNetwork, g.handleGossipBatchByBatchIdRequest))
	g.bus.Handle(MsgGossipBatchByTransactionIdRequest, g.net.Guard(network.RoleNetwork, g.handleGossipBatchByTransactionIdRequest))
}

func (g *Gossip) markSeenBlock(id string) (alreadySeen bool) {
	g.seenMu.Lock()
	defer g.seenMu.Unlock()
	if g.seenBlocks[id] {
		return true
	}
	g.seenBlocks[id] = true
	return false
}

func (g *Gossip) markSeenBatch(id string) (alreadySeen bool) {
	g.seenMu.Lock()
	defer g.seenMu.Unlock()
	if g.seenBatches[id] {
		return true
	}
	g.seenBatches[id] = true
	return false
}

// BroadcastBlock floods block to every authorized peer (except skip, the
// peer it was received from, if any), marking it seen first so a later
// re-flood of the same block from another peer is dropped.
func (g *Gossip) BroadcastBlock(block *protocol.Block, skip string) {
	g.markSeenBlock(block.ID())
	content := block.Encode()
	for _, peer := range g.net.Peers() {
		if peer.Identity == skip {
			continue
		}
		g.enqueue(peer.Identity, priorityGossip, MsgGossipBlock, content)
	}
}

// BroadcastBatch floods batch the same way BroadcastBlock floods a block.
func (g *Gossip) BroadcastBatch(batch *protocol.Batch, skip string) {
	g.markSeenBatch(batch.ID())
	content := batch.Encode()
	for _, peer := range g.net.Peers() {
		if peer.Identity == skip {
			continue
		}
		g.enqueue(peer.Identity, priorityGossip, MsgGossipBatch, content)
	}
}

func (g *Gossip) handleGossipBlock(_ context.Context, from string, f bus.Frame) (*bus.Frame, error) {
	block, err := protocol.DecodeBlock(f.Content)
	if err != nil {
		return nil, err
	}
	if g.markSeenBlock(block.ID()) {
		return nil, nil
	}
	if g.onNewBlock != nil {
		g.onNewBlock(block)
	}
	g.BroadcastBlock(block, from)
	return nil, nil
}

func (g *Gossip) handleGossipBatch(_ context.Context, from string, f bus.Frame) (*bus.Frame, error) {
	batch, err := protocol.DecodeBatch(f.Content)
	if err != nil {
		return nil, err
	}
	if g.markSeenBatch(batch.ID()) {
		return nil, nil
	}
	if g.onNewBatch != nil {
		g.onNewBatch(batch)
	}
	g.BroadcastBatch(batch, from)
	return nil, nil
}

func (g *Gossip) handleGossipBlockRequest(_ context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeGossipBlockRequest(f.Content)
	if err != nil {
		return nil, err
	}
	block, ok := g.blocks.GetBlock(req.BlockID)
	if !ok {
		return &bus.Frame{MessageType: MsgGossipBlockRequest, Content: GossipBlockResponse{Found: false}.Encode()}, nil
	}
	return &bus.Frame{MessageType: MsgGossipBlockRequest, Content: GossipBlockResponse{Found: true, BlockBytes: block.Encode()}.Encode()}, nil
}

func (g *Gossip) handleGossipBatchByBatchIdRequest(_ context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeGossipBatchByBatchIdRequest(f.Content)
	if err != nil {
		return nil, err
	}
	batch, ok := g.batches.GetBatch(req.BatchID)
	if !ok {
		return &bus.Frame{MessageType: MsgGossipBatchByBatchIdRequest, Content: GossipBatchResponse{Found: false}.Encode()}, nil
	}
	return &bus.Frame{MessageType: MsgGossipBatchByBatchIdRequest, Content: GossipBatchResponse{Found: true, BatchBytes: batch.Encode()}.Encode()}, nil
}

func (g *Gossip) handleGossipBatchByTransactionIdRequest(_ context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeGossipBatchByTransactionIdRequest(f.Content)
	if err != nil {
		return nil, err
	}
	batch, ok := g.batches.GetBatchByTransactionID(req.TransactionID)
	if !ok {
		return &bus.Frame{MessageType: MsgGossipBatchByTransactionIdRequest, Content: GossipBatchResponse{Found: false}.Encode()}, nil
	}
	return &bus.Frame{MessageType: MsgGossipBatchByTransactionIdRequest, Content: GossipBatchResponse{Found: true, BatchBytes: batch.Encode()}.Encode()}, nil
}

func (g *Gossip) outboxFor(identity string) *outbox {
	g.outboxMu.Lock()
	defer g.outboxMu.Unlock()
	ob, ok := g.outboxes[identity]
	if !ok {
		ob = newOutbox(g.depth)
		g.outboxes[identity] = ob
	}
	return ob
}

// enqueue queues a message for identity instead of sending it inline, so a
// burst of gossip traffic is smoothed and subject to priority backpressure
// (spec.md §4.8).
func (g *Gossip) enqueue(identity string, p priority, messageType string, content []byte) {
	g.outboxFor(identity).enqueue(outboundMsg{priority: p, messageType: messageType, content: content})
}

// RequestPeerListRefresh queues a GetPeersRequest to identity at the
// lowest priority, so it is the first thing dropped under backpressure
// (spec.md §4.8).
func (g *Gossip) RequestPeerListRefresh(identity string) {
	g.enqueue(identity, priorityPeerListRefresh, network.MsgGetPeersRequest, network.GetPeersRequest{}.Encode())
}

// Run drains every peer's outbox at the given interval until ctx is done.
func (g *Gossip) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.drainOnce()
		}
	}
}

// drainOnce flushes every peer's outbox via a one-way Send, in priority
// order. Exposed for deterministic tests that don't want to wait on Run's
// ticker.
func (g *Gossip) drainOnce() {
	g.outboxMu.Lock()
	identities := make([]string, 0, len(g.outboxes))
	for id := range g.outboxes {
		identities = append(identities, id)
	}
	g.outboxMu.Unlock()

	for _, identity := range identities {
		ob := g.outboxFor(identity)
		for _, m := range ob.dequeueAll() {
			if err := g.bus.Send(identity, bus.Frame{MessageType: m.messageType, Content: m.content}); err != nil && g.log != nil {
				g.log.Warn("gossip: send failed", "to", identity, "message_type", m.messageType, "err", err)
			}
		}
	}
}
