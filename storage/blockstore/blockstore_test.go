package blockstore

import (
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger-archives/sawtooth-core-sub001/crypto"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/sawerr"
	"github.com/hyperledger-archives/sawtooth-core-sub001/storage"
)

// memDB is a minimal in-memory storage.Database for unit tests, avoiding a
// dependency on the pebble-backed store for pure data-model coverage.
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
func (b *memBatch) Size() int { return len(b.ops) }
func (b *memBatch) Write() error {
	for _, op := range b.ops {
		op()
	}
	return nil
}
func (b *memBatch) Reset() { b.ops = nil }

type memIterator struct {
	db   *memDB
	keys []string
	i    int
}

func (it *memIterator) Next() bool { it.i++; return it.i < len(it.keys) }
func (it *memIterator) Key() []byte { return []byte(it.keys[it.i]) }
func (it *memIterator) Value() []byte { return it.db.m[it.keys[it.i]] }
func (it *memIterator) Error() error  { return nil }
func (it *memIterator) Close() error  { return nil }

func buildBlock(t *testing.T) *protocol.Block {
	t.Helper()
	signer, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	txn, err := protocol.NewSignedTransaction(protocol.TransactionHeader{FamilyName: "intkey", FamilyVersion: "1.0"}, []byte("p"), signer)
	require.NoError(t, err)
	batch, err := protocol.NewSignedBatch([]*protocol.Transaction{txn}, signer)
	require.NoError(t, err)
	block, err := protocol.NewSignedBlock(0, protocol.NullBlockID, []*protocol.Batch{batch}, "root", nil, signer)
	require.NoError(t, err)
	return block
}

func TestBlockstoreRoundTrip(t *testing.T) {
	s := New(newMemDB())
	block := buildBlock(t)

	require.NoError(t, s.PutBlock(block))

	got, err := s.GetBlock(block.ID())
	require.NoError(t, err)
	require.Equal(t, block.HeaderSignature, got.HeaderSignature)
	require.Len(t, got.Batches, 1)
	require.Len(t, got.Batches[0].Transactions, 1)

	byNum, err := s.GetBlockByNum(0)
	require.NoError(t, err)
	require.Equal(t, block.ID(), byNum.ID())

	ok, err := s.HasBatch(block.Batches[0].ID())
	require.NoError(t, err)
	require.True(t, ok)

	blkID, err := s.BlockIDForBatch(block.Batches[0].ID())
	require.NoError(t, err)
	require.Equal(t, block.ID(), blkID)

	txn, err := s.GetTransaction(block.Batches[0].Transactions[0].ID())
	require.NoError(t, err)
	require.Equal(t, block.Batches[0].Transactions[0].Payload, txn.Payload)

	batchID, err := s.BatchIDForTransaction(block.Batches[0].Transactions[0].ID())
	require.NoError(t, err)
	require.Equal(t, block.Batches[0].ID(), batchID)
}

func TestBlockstoreReceiptRoundTrip(t *testing.T) {
	s := New(newMemDB())
	receipt := &protocol.BlockReceipt{
		BlockID: "abc",
		TransactionReceipts: []*protocol.TransactionReceipt{
			{
				TransactionID: "t1",
				Status:        protocol.TxnValid,
				StateChanges: []protocol.StateChange{
					{Address: protocol.Address("1cf126" + "00000000000000000000000000000000000000000000000000000000000000"), Kind: protocol.Set, Value: []byte("999")},
				},
			},
			{
				TransactionID: "t2",
				Status:        protocol.TxnInvalid,
				InvalidReason: "BadStateRoot",
			},
		},
	}
	require.NoError(t, s.PutReceipt(receipt))

	got, err := s.GetReceipt("abc")
	require.NoError(t, err)
	require.Len(t, got.TransactionReceipts, 2)
	require.Equal(t, protocol.TxnValid, got.TransactionReceipts[0].Status)
	require.Equal(t, "999", string(got.TransactionReceipts[0].StateChanges[0].Value))
	require.Equal(t, "BadStateRoot", got.TransactionReceipts[1].InvalidReason)
}

func TestBlockstoreHasBlockMissing(t *testing.T) {
	s := New(newMemDB())
	ok, err := s.HasBlock("nonexistent")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBlockstoreChainHeadNotFoundBeforeSet(t *testing.T) {
	s := New(newMemDB())
	_, err := s.ChainHead()
	require.Error(t, err)
	var se *sawerr.Error
	require.True(t, errors.As(err, &se))
	require.Equal(t, sawerr.ReasonNotFound, se.Reason)
}

func TestBlockstoreChainHeadRoundTrip(t *testing.T) {
	s := New(newMemDB())
	block := buildBlock(t)
	require.NoError(t, s.PutBlock(block))

	require.NoError(t, s.SetChainHead(block.ID()))

	got, err := s.ChainHead()
	require.NoError(t, err)
	require.Equal(t, block.ID(), got.ID())
}
