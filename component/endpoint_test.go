package component

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	busPkg "github.com/hyperledger-archives/sawtooth-core-sub001/bus"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/state"
)

// memBus is a synchronous, in-process bus.Bus double: Request invokes the
// registered handler directly instead of going over a real socket.
type memBus struct {
	handlers map[string]busPkg.Handler
}

func newMemBus() *memBus { return &memBus{handlers: map[string]busPkg.Handler{}} }

func (m *memBus) Handle(messageType string, h busPkg.Handler) { m.handlers[messageType] = h }

func (m *memBus) Request(ctx context.Context, dest string, f busPkg.Frame) (busPkg.Frame, error) {
	h, ok := m.handlers[f.MessageType]
	if !ok {
		return busPkg.Frame{}, nil
	}
	reply, err := h(ctx, dest, f)
	if err != nil {
		return busPkg.Frame{}, err
	}
	if reply == nil {
		return busPkg.Frame{}, nil
	}
	return *reply, nil
}

func (m *memBus) Send(dest string, f busPkg.Frame) error {
	if h, ok := m.handlers[f.MessageType]; ok {
		_, _ = h(context.Background(), dest, f)
	}
	return nil
}

func (m *memBus) Serve(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }
func (m *memBus) Close() error                    { return nil }

func testAddr() string {
	return "1cf126" + strings.Repeat("0", 64)
}

func TestEndpointRegisterProcessor(t *testing.T) {
	ep := NewEndpoint(newMemBus(), nil)
	req := RegisterRequest{FamilyName: "intkey", FamilyVersion: "1.0", Namespaces: []string{"1cf126"}, MaxOccupancy: 4}
	_, err := ep.Bus.Request(context.Background(), "processor-1", busPkg.Frame{MessageType: MsgRegisterRequest, Content: req.Encode()})
	require.NoError(t, err)

	reg, err := ep.Processors.Pick("intkey", "1.0", nil)
	require.NoError(t, err)
	require.Equal(t, "processor-1", reg.Identity)
}

func TestEndpointGetSetDeleteStateRoundTrip(t *testing.T) {
	ep := NewEndpoint(newMemBus(), nil)
	trie := state.New(newMemDB(), nil, nil)
	ns := "1cf126"
	txnCtx := state.NewContext(trie, state.EmptyStateRootHash, []string{ns}, []string{ns})
	contextID := ep.Contexts.Open(txnCtx)

	addr := testAddr()
	setReq := SetStateRequest{ContextID: contextID, Entries: []stateEntry{{Address: addr, Value: []byte("v1")}}}
	_, err := ep.Bus.Request(context.Background(), "p", busPkg.Frame{MessageType: MsgSetStateRequest, Content: setReq.Encode()})
	require.NoError(t, err)

	getReq := GetStateRequest{ContextID: contextID, Addresses: []string{addr}}
	resp, err := ep.Bus.Request(context.Background(), "p", busPkg.Frame{MessageType: MsgGetStateRequest, Content: getReq.Encode()})
	require.NoError(t, err)
	got, err := DecodeGetStateResponse(resp.Content)
	require.NoError(t, err)
	require.Len(t, got.Entries, 1)
	require.Equal(t, "v1", string(got.Entries[0].Value))

	delReq := DeleteStateRequest{ContextID: contextID, Addresses: []string{addr}}
	_, err = ep.Bus.Request(context.Background(), "p", busPkg.Frame{MessageType: MsgDeleteStateRequest, Content: delReq.Encode()})
	require.NoError(t, err)

	changes := txnCtx.Changes()
	require.Len(t, changes, 1)
	require.Equal(t, protocol.Delete, changes[0].Kind)
}

func TestEndpointUnknownContextIDFails(t *testing.T) {
	ep := NewEndpoint(newMemBus(), nil)
	req := GetStateRequest{ContextID: "nonexistent", Addresses: []string{testAddr()}}
	_, err := ep.Bus.Request(context.Background(), "p", busPkg.Frame{MessageType: MsgGetStateRequest, Content: req.Encode()})
	require.Error(t, err)
}

func TestEndpointAddEventAndReceiptData(t *testing.T) {
	ep := NewEndpoint(newMemBus(), nil)
	trie := state.New(newMemDB(), nil, nil)
	txnCtx := state.NewContext(trie, state.EmptyStateRootHash, nil, nil)
	contextID := ep.Contexts.Open(txnCtx)

	evReq := AddEventRequest{ContextID: contextID, Type: "intkey/set", Attributes: map[string]string{"k": "v"}, Data: []byte("d")}
	_, err := ep.Bus.Request(context.Background(), "p", busPkg.Frame{MessageType: MsgAddEventRequest, Content: evReq.Encode()})
	require.NoError(t, err)
	require.Len(t, txnCtx.Events(), 1)

	rdReq := AddReceiptDataRequest{ContextID: contextID, Data: []byte("extra")}
	_, err = ep.Bus.Request(context.Background(), "p", busPkg.Frame{MessageType: MsgAddReceiptDataRequest, Content: rdReq.Encode()})
	require.NoError(t, err)
	require.Len(t, txnCtx.ReceiptData(), 1)
}
