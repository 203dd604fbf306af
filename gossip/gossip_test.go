package gossip

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger-archives/sawtooth-core-sub001/bus"
	"github.com/hyperledger-archives/sawtooth-core-sub001/config"
	"github.com/hyperledger-archives/sawtooth-core-sub001/crypto"
	"github.com/hyperledger-archives/sawtooth-core-sub001/network"
	"github.com/hyperledger-archives/sawtooth-core-sub001/nodectx"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
)

// pairBus connects exactly two in-process nodes by name, routing Request
// calls to the other side's registered handler directly. Mirrors
// network_test.go's double of the same name.
type pairBus struct {
	name     string
	other    *pairBus
	handlers map[string]bus.Handler
}

func newPairBus(name string) *pairBus { return &pairBus{name: name, handlers: map[string]bus.Handler{}} }

func link(a, b *pairBus) { a.other = b; b.other = a }

func (p *pairBus) Handle(messageType string, h bus.Handler) { p.handlers[messageType] = h }

func (p *pairBus) Request(ctx context.Context, _ string, f bus.Frame) (bus.Frame, error) {
	h, ok := p.other.handlers[f.MessageType]
	if !ok {
		return bus.Frame{}, fmt.Errorf("pairBus: %s has no handler for %s", p.other.name, f.MessageType)
	}
	reply, err := h(ctx, p.name, f)
	if err != nil {
		return bus.Frame{}, err
	}
	if reply == nil {
		return bus.Frame{}, nil
	}
	return *reply, nil
}

func (p *pairBus) Send(_ string, f bus.Frame) error {
	h, ok := p.other.handlers[f.MessageType]
	if !ok {
		return fmt.Errorf("pairBus: %s has no handler for %s", p.other.name, f.MessageType)
	}
	_, err := h(context.Background(), p.name, f)
	return err
}

func (p *pairBus) Serve(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }
func (p *pairBus) Close() error                    { return nil }

// memSource is a BlockSource/BatchSource backed by plain maps.
type memSource struct {
	blocks     map[string]*protocol.Block
	batches    map[string]*protocol.Batch
	byTxnID    map[string]*protocol.Batch
}

func newMemSource() *memSource {
	return &memSource{blocks: map[string]*protocol.Block{}, batches: map[string]*protocol.Batch{}, byTxnID: map[string]*protocol.Batch{}}
}

func (m *memSource) GetBlock(id string) (*protocol.Block, bool) { b, ok := m.blocks[id]; return b, ok }
func (m *memSource) GetBatch(id string) (*protocol.Batch, bool) { b, ok := m.batches[id]; return b, ok }
func (m *memSource) GetBatchByTransactionID(txnID string) (*protocol.Batch, bool) {
	b, ok := m.byTxnID[txnID]
	return b, ok
}

func (m *memSource) addBatch(b *protocol.Batch) {
	m.batches[b.ID()] = b
	for _, t := range b.Transactions {
		m.byTxnID[t.ID()] = b
	}
}

func mustSignedBatch(t *testing.T) *protocol.Batch {
	t.Helper()
	signer, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	txn, err := protocol.NewSignedTransaction(protocol.TransactionHeader{
		FamilyName: "intkey", FamilyVersion: "1.0",
		Inputs: []string{"1cf126"}, Outputs: []string{"1cf126"},
	}, []byte("inc"), signer)
	require.NoError(t, err)
	batch, err := protocol.NewSignedBatch([]*protocol.Transaction{txn}, signer)
	require.NoError(t, err)
	return batch
}

func mustSignedBlock(t *testing.T, batch *protocol.Batch) *protocol.Block {
	t.Helper()
	signer, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	block, err := protocol.NewSignedBlock(0, protocol.NullBlockID, []*protocol.Batch{batch}, protocol.NullBlockID, nil, signer)
	require.NoError(t, err)
	return block
}

type testNode struct {
	net     *network.Network
	gossip  *Gossip
	sources *memSource
	bus     *pairBus
}

func newTestPair(t *testing.T) (a, b testNode) {
	t.Helper()
	cfg := config.Default()
	cfg.OutgoingQueueDepth = 4

	signerA, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	signerB, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	busA, busB := newPairBus("a"), newPairBus("b")
	link(busA, busB)

	ncA := nodectx.New(cfg, nil, nil, "a")
	ncB := nodectx.New(cfg, nil, nil, "b")

	netA := network.New(*ncA, busA, signerA, network.DefaultAuthorizer{}, []string{network.RoleNetwork})
	netB := network.New(*ncB, busB, signerB, network.DefaultAuthorizer{}, []string{network.RoleNetwork})

	require.NoError(t, netA.Connect(context.Background(), "b"))
	require.NoError(t, netB.Connect(context.Background(), "a"))

	srcA, srcB := newMemSource(), newMemSource()
	gA := New(*ncA, netA, busA, srcA, srcA)
	gB := New(*ncB, netB, busB, srcB, srcB)

	return testNode{net: netA, gossip: gA, sources: srcA, bus: busA}, testNode{net: netB, gossip: gB, sources: srcB, bus: busB}
}

func TestGossipFloodsNewBatchOnceAndDedupesReflood(t *testing.T) {
	a, b := newTestPair(t)
	batch := mustSignedBatch(t)
	a.sources.addBatch(batch)
	b.gossip.OnNewBatch(func(bt *protocol.Batch) { b.sources.addBatch(bt) })

	a.gossip.BroadcastBatch(batch, "")
	a.gossip.drainOnce()

	_, ok := b.sources.GetBatch(batch.ID())
	require.True(t, ok)

	// B re-broadcasts what it just received; since its only peer is the one
	// it received the batch from, that rebroadcast is skipped and A's
	// outbox for "b" (already drained above) stays empty.
	require.Zero(t, a.gossip.outboxFor("b").len())
}

func TestGossipNewBatchCallbackFires(t *testing.T) {
	a, b := newTestPair(t)
	batch := mustSignedBatch(t)
	a.sources.addBatch(batch)

	var received *protocol.Batch
	b.gossip.OnNewBatch(func(bt *protocol.Batch) { received = bt })

	a.gossip.BroadcastBatch(batch, "")
	a.gossip.drainOnce()

	require.NotNil(t, received)
	require.Equal(t, batch.ID(), received.ID())
}

func TestGossipPullBlockByIDFindsAndMisses(t *testing.T) {
	a, b := newTestPair(t)
	batch := mustSignedBatch(t)
	block := mustSignedBlock(t, batch)
	a.sources.blocks[block.ID()] = block

	reply, reqErr := requestFrom(b, "a", MsgGossipBlockRequest, GossipBlockRequest{BlockID: block.ID()}.Encode())
	require.NoError(t, reqErr)
	got, decErr := DecodeGossipBlockResponse(reply)
	require.NoError(t, decErr)
	require.True(t, got.Found)
	gotBlock, err := protocol.DecodeBlock(got.BlockBytes)
	require.NoError(t, err)
	require.Equal(t, block.ID(), gotBlock.ID())

	reply, reqErr = requestFrom(b, "a", MsgGossipBlockRequest, GossipBlockRequest{BlockID: "nonexistent"}.Encode())
	require.NoError(t, reqErr)
	miss, decErr := DecodeGossipBlockResponse(reply)
	require.NoError(t, decErr)
	require.False(t, miss.Found)
}

func TestGossipPullBatchByTransactionID(t *testing.T) {
	a, b := newTestPair(t)
	batch := mustSignedBatch(t)
	a.sources.addBatch(batch)

	reply, err := requestFrom(b, "a", MsgGossipBatchByTransactionIdRequest,
		GossipBatchByTransactionIdRequest{TransactionID: batch.Transactions[0].ID()}.Encode())
	require.NoError(t, err)
	got, err := DecodeGossipBatchResponse(reply)
	require.NoError(t, err)
	require.True(t, got.Found)
	gotBatch, err := protocol.DecodeBatch(got.BatchBytes)
	require.NoError(t, err)
	require.Equal(t, batch.ID(), gotBatch.ID())
}

func TestOutboxDropsLowerPriorityUnderBackpressure(t *testing.T) {
	ob := newOutbox(2)
	require.True(t, ob.enqueue(outboundMsg{priority: priorityPeerListRefresh, messageType: "x", content: []byte("1")}))
	require.True(t, ob.enqueue(outboundMsg{priority: priorityPeerListRefresh, messageType: "x", content: []byte("2")}))
	// Outbox is full of two peer-list-refresh items; a gossip item must
	// evict one of them rather than being dropped itself.
	require.True(t, ob.enqueue(outboundMsg{priority: priorityGossip, messageType: "y", content: []byte("3")}))
	require.Equal(t, 2, ob.len())

	drained := ob.dequeueAll()
	require.Equal(t, priorityGossip, drained[0].priority)

	// A second gossip item cannot evict another gossip item of equal rank.
	ob2 := newOutbox(1)
	require.True(t, ob2.enqueue(outboundMsg{priority: priorityGossip, messageType: "y", content: []byte("1")}))
	require.False(t, ob2.enqueue(outboundMsg{priority: priorityGossip, messageType: "y", content: []byte("2")}))
}

// requestFrom drives node's registered handler for messageType directly,
// as if the peer at identity had sent it, without going through node's own
// outbox (handlers answer inline; only flood broadcasts are queued).
func requestFrom(node testNode, identity, messageType string, content []byte) ([]byte, error) {
	resp, err := node.bus.Request(context.Background(), identity, bus.Frame{MessageType: messageType, Content: content})
	if err != nil {
		return nil, err
	}
	return resp.Content, nil
}
