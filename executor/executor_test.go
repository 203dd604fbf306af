package executor

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger-archives/sawtooth-core-sub001/bus"
	"github.com/hyperledger-archives/sawtooth-core-sub001/component"
	"github.com/hyperledger-archives/sawtooth-core-sub001/crypto"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/state"
	"github.com/hyperledger-archives/sawtooth-core-sub001/storage"
)

type memBus struct {
	handlers map[string]bus.Handler
	// processor simulates the external processor side: it answers
	// ProcessRequest frames sent to a given identity.
	processorReply func(component.ProcessRequest) component.ProcessResponse
	processorErr   map[string]bool // identities whose requests always fail (simulating timeout)
}

func newMemBus() *memBus { return &memBus{handlers: map[string]bus.Handler{}, processorErr: map[string]bool{}} }

func (m *memBus) Handle(messageType string, h bus.Handler) { m.handlers[messageType] = h }

func (m *memBus) Request(ctx context.Context, dest string, f bus.Frame) (bus.Frame, error) {
	if f.MessageType == "ProcessRequest" {
		if m.processorErr[dest] {
			<-ctx.Done()
			return bus.Frame{}, ctx.Err()
		}
		req, err := component.DecodeProcessRequest(f.Content)
		if err != nil {
			return bus.Frame{}, err
		}
		resp := m.processorReply(req)
		return bus.Frame{MessageType: f.MessageType, Content: resp.Encode()}, nil
	}
	h, ok := m.handlers[f.MessageType]
	if !ok {
		return bus.Frame{}, nil
	}
	reply, err := h(ctx, dest, f)
	if err != nil || reply == nil {
		return bus.Frame{}, err
	}
	return *reply, nil
}

func (m *memBus) Send(dest string, f bus.Frame) error { return nil }
func (m *memBus) Serve(ctx context.Context) error      { <-ctx.Done(); return ctx.Err() }
func (m *memBus) Close() error                         { return nil }

type memDB struct{ m map[string][]byte }

func newMemDB() *memDB { return &memDB{m: map[string][]byte{}} }

func (d *memDB) Has(key []byte) (bool, error) { _, ok := d.m[string(key)]; return ok, nil }
func (d *memDB) Get(key []byte) ([]byte, error) {
	v, ok := d.m[string(key)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}
func (d *memDB) Put(key, value []byte) error { d.m[string(key)] = append([]byte(nil), value...); return nil }
func (d *memDB) Delete(key []byte) error     { delete(d.m, string(key)); return nil }
func (d *memDB) Close() error                { return nil }
func (d *memDB) NewBatch() storage.Batch     { return &memBatch{db: d} }
func (d *memDB) NewIterator(start, end []byte) (storage.Iterator, error) {
	var keys []string
	for k := range d.m {
		if k >= string(start) && (end == nil || k < string(end)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return &memIterator{db: d, keys: keys, i: -1}, nil
}

type memBatch struct {
	db  *memDB
	ops []func()
}

func (b *memBatch) Put(key, value []byte) error {
	k, v := string(key), append([]byte(nil), value...)
	b.ops = append(b.ops, func() { b.db.m[k] = v })
	return nil
}
func (b *memBatch) Delete(key []byte) error {
	k := string(key)
	b.ops = append(b.ops, func() { delete(b.db.m, k) })
	return nil
}
func (b *memBatch) Size() int    { return len(b.ops) }
func (b *memBatch) Write() error { for _, op := range b.ops { op() }; return nil }
func (b *memBatch) Reset()       { b.ops = nil }

type memIterator struct {
	db   *memDB
	keys []string
	i    int
}

func (it *memIterator) Next() bool    { it.i++; return it.i < len(it.keys) }
func (it *memIterator) Key() []byte   { return []byte(it.keys[it.i]) }
func (it *memIterator) Value() []byte { return it.db.m[it.keys[it.i]] }
func (it *memIterator) Error() error  { return nil }
func (it *memIterator) Close() error  { return nil }

func buildTxn(t *testing.T) (*crypto.PrivateKey, *protocol.Transaction) {
	t.Helper()
	signer, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	txn, err := protocol.NewSignedTransaction(protocol.TransactionHeader{
		FamilyName: "intkey", FamilyVersion: "1.0",
		Inputs: []string{"1cf126"}, Outputs: []string{"1cf126"},
	}, []byte("inc"), signer)
	require.NoError(t, err)
	return signer, txn
}

func TestExecutorSuccessfulDispatch(t *testing.T) {
	mb := newMemBus()
	mb.processorReply = func(component.ProcessRequest) component.ProcessResponse {
		return component.ProcessResponse{Status: component.StatusOK}
	}
	ep := component.NewEndpoint(mb, nil)
	ep.Processors.Register(&component.Registration{Identity: "proc-1", FamilyName: "intkey", FamilyVersion: "1.0"})

	_, txn := buildTxn(t)
	trie := state.New(newMemDB(), nil, nil)
	txnCtx := state.NewContext(trie, state.EmptyStateRootHash, []string{"1cf126"}, []string{"1cf126"})

	ex := New(ep, time.Second, 3, nil)
	status, reason, err := ex.Execute(context.Background(), txnCtx, txn)
	require.NoError(t, err)
	require.Equal(t, protocol.TxnValid, status)
	require.Empty(t, reason)
}

func TestExecutorInvalidTransactionStatus(t *testing.T) {
	mb := newMemBus()
	mb.processorReply = func(component.ProcessRequest) component.ProcessResponse {
		return component.ProcessResponse{Status: component.StatusInvalidTransaction, Message: "BadValue"}
	}
	ep := component.NewEndpoint(mb, nil)
	ep.Processors.Register(&component.Registration{Identity: "proc-1", FamilyName: "intkey", FamilyVersion: "1.0"})

	_, txn := buildTxn(t)
	trie := state.New(newMemDB(), nil, nil)
	txnCtx := state.NewContext(trie, state.EmptyStateRootHash, []string{"1cf126"}, []string{"1cf126"})

	ex := New(ep, time.Second, 3, nil)
	status, reason, err := ex.Execute(context.Background(), txnCtx, txn)
	require.NoError(t, err)
	require.Equal(t, protocol.TxnInvalid, status)
	require.Equal(t, "BadValue", reason)
}

func TestExecutorRetriesOnTimeoutThenFails(t *testing.T) {
	mb := newMemBus()
	mb.processorErr["proc-1"] = true
	mb.processorErr["proc-2"] = true
	ep := component.NewEndpoint(mb, nil)
	ep.Processors.Register(&component.Registration{Identity: "proc-1", FamilyName: "intkey", FamilyVersion: "1.0"})
	ep.Processors.Register(&component.Registration{Identity: "proc-2", FamilyName: "intkey", FamilyVersion: "1.0"})

	_, txn := buildTxn(t)
	trie := state.New(newMemDB(), nil, nil)
	txnCtx := state.NewContext(trie, state.EmptyStateRootHash, []string{"1cf126"}, []string{"1cf126"})

	ex := New(ep, 10*time.Millisecond, 2, nil)
	status, reason, err := ex.Execute(context.Background(), txnCtx, txn)
	require.NoError(t, err)
	require.Equal(t, protocol.TxnInvalid, status)
	require.Equal(t, "ProcessorTimeout", reason)
}

func TestExecutorSurfacesInternalErrorOnUnexpectedProcessorStatus(t *testing.T) {
	mb := newMemBus()
	mb.processorReply = func(component.ProcessRequest) component.ProcessResponse {
		return component.ProcessResponse{Status: component.StatusInternalError}
	}
	ep := component.NewEndpoint(mb, nil)
	ep.Processors.Register(&component.Registration{Identity: "proc-1", FamilyName: "intkey", FamilyVersion: "1.0"})

	_, txn := buildTxn(t)
	trie := state.New(newMemDB(), nil, nil)
	txnCtx := state.NewContext(trie, state.EmptyStateRootHash, []string{"1cf126"}, []string{"1cf126"})

	ex := New(ep, time.Second, 2, nil)
	status, reason, err := ex.Execute(context.Background(), txnCtx, txn)
	require.NoError(t, err)
	require.Equal(t, protocol.TxnInvalid, status)
	require.Equal(t, "InternalError", reason)
}

func TestExecutorUnknownFamilyIsInvalid(t *testing.T) {
	mb := newMemBus()
	ep := component.NewEndpoint(mb, nil)

	_, txn := buildTxn(t)
	trie := state.New(newMemDB(), nil, nil)
	txnCtx := state.NewContext(trie, state.EmptyStateRootHash, []string{"1cf126"}, []string{"1cf126"})

	ex := New(ep, time.Second, 3, nil)
	status, reason, err := ex.Execute(context.Background(), txnCtx, txn)
	require.NoError(t, err)
	require.Equal(t, protocol.TxnInvalid, status)
	require.Equal(t, "UnknownTransactionFamily", reason)
}
