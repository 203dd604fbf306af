package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger-archives/sawtooth-core-sub001/bus"
	"github.com/hyperledger-archives/sawtooth-core-sub001/crypto"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
)

// fakeBus is a minimal bus.Bus double that records every Send and
// dispatches Handle'd handlers directly, enough to exercise Hub without a
// real ZMQ transport.
type fakeBus struct {
	handlers map[string]bus.Handler
	sent     []sentFrame
}

type sentFrame struct {
	dest string
	f    bus.Frame
}

func newFakeBus() *fakeBus { return &fakeBus{handlers: map[string]bus.Handler{}} }

func (b *fakeBus) Handle(messageType string, h bus.Handler) { b.handlers[messageType] = h }
func (b *fakeBus) Request(ctx context.Context, dest string, f bus.Frame) (bus.Frame, error) {
	h, ok := b.handlers[f.MessageType]
	if !ok {
		return bus.Frame{}, nil
	}
	resp, err := h(ctx, dest, f)
	if err != nil || resp == nil {
		return bus.Frame{}, err
	}
	return *resp, nil
}
func (b *fakeBus) Send(dest string, f bus.Frame) error {
	b.sent = append(b.sent, sentFrame{dest: dest, f: f})
	return nil
}
func (b *fakeBus) Serve(ctx context.Context) error { return nil }
func (b *fakeBus) Close() error                    { return nil }

func (b *fakeBus) dispatch(t *testing.T, identity string, messageType string, content []byte) {
	t.Helper()
	h, ok := b.handlers[messageType]
	require.True(t, ok, "no handler registered for %s", messageType)
	_, err := h(context.Background(), identity, bus.Frame{MessageType: messageType, Content: content})
	require.NoError(t, err)
}

func makeBlockAndReceipt(t *testing.T) (*protocol.Block, *protocol.BlockReceipt) {
	t.Helper()
	signer, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	txn, err := protocol.NewSignedTransaction(protocol.TransactionHeader{FamilyName: "intkey", FamilyVersion: "1.0"}, []byte("p"), signer)
	require.NoError(t, err)
	batch, err := protocol.NewSignedBatch([]*protocol.Transaction{txn}, signer)
	require.NoError(t, err)
	block, err := protocol.NewSignedBlock(1, protocol.NullBlockID, []*protocol.Batch{batch}, "root", nil, signer)
	require.NoError(t, err)

	receipt := &protocol.BlockReceipt{
		BlockID: block.ID(),
		TransactionReceipts: []*protocol.TransactionReceipt{
			{
				TransactionID: txn.ID(),
				Status:        protocol.TxnValid,
				StateChanges: []protocol.StateChange{
					{Address: "1cf126aaaa", Kind: protocol.Set, Value: []byte("42")},
					{Address: "deadbeef", Kind: protocol.Set, Value: []byte("ignored")},
				},
			},
		},
	}
	return block, receipt
}

func TestHubSubscribeAndPublishDeliversMatchingEvents(t *testing.T) {
	b := newFakeBus()
	h := NewHub(b, nil)

	req := SubscribeRequest{Types: []string{"block_commit", "state_delta", "transaction_receipt"}, AddressPrefixes: []string{"1cf126"}}
	b.dispatch(t, "subscriber-1", MsgSubscribeRequest, req.Encode())

	block, receipt := makeBlockAndReceipt(t)
	h.Publish(block, receipt)

	require.Len(t, b.sent, 3)
	require.Equal(t, MsgBlockCommitEvent, b.sent[0].f.MessageType)
	require.Equal(t, MsgTransactionReceiptEvent, b.sent[1].f.MessageType)
	require.Equal(t, MsgStateDeltaEvent, b.sent[2].f.MessageType)

	delta, err := DecodeStateDeltaEvent(b.sent[2].f.Content)
	require.NoError(t, err)
	require.Equal(t, "1cf126aaaa", delta.Address)
}

func TestHubUnsubscribeStopsDelivery(t *testing.T) {
	b := newFakeBus()
	h := NewHub(b, nil)

	req := SubscribeRequest{Types: []string{"block_commit"}}
	b.dispatch(t, "subscriber-1", MsgSubscribeRequest, req.Encode())
	b.dispatch(t, "subscriber-1", MsgUnsubscribeRequest, nil)

	block, receipt := makeBlockAndReceipt(t)
	h.Publish(block, receipt)

	require.Empty(t, b.sent)
}

func TestHubPublishSkipsSubscribersWithNoAddressMatch(t *testing.T) {
	b := newFakeBus()
	h := NewHub(b, nil)

	req := SubscribeRequest{Types: []string{"state_delta"}, AddressPrefixes: []string{"ffffff"}}
	b.dispatch(t, "subscriber-1", MsgSubscribeRequest, req.Encode())

	block, receipt := makeBlockAndReceipt(t)
	h.Publish(block, receipt)

	require.Empty(t, b.sent)
}

func TestBlockCommitEventEncodeDecodeRoundTrip(t *testing.T) {
	e := BlockCommitEvent{BlockID: "b1", BlockNum: 7, PreviousBlockID: "b0", StateRootHash: "root"}
	got, err := DecodeBlockCommitEvent(e.Encode())
	require.NoError(t, err)
	require.Equal(t, e, got)
}
