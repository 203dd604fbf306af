package settings

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger-archives/sawtooth-core-sub001/state"
	"github.com/hyperledger-archives/sawtooth-core-sub001/storage"
)

// memDB duplicates the in-memory storage.Database test double used across
// this repo's other package tests (state, identity) rather than sharing one.
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

func (it *memIterator) Next() bool    { it.i++; return it.i < len(it.keys) }
func (it *memIterator) Key() []byte   { return []byte(it.keys[it.i]) }
func (it *memIterator) Value() []byte { return it.db.m[it.keys[it.i]] }
func (it *memIterator) Error() error  { return nil }
func (it *memIterator) Close() error  { return nil }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	v, err := Decode(Encode("42"))
	require.NoError(t, err)
	require.Equal(t, "42", v)
}

func TestAddressIsStableAndNamespaced(t *testing.T) {
	a1 := Address(KeyMaxBatchesPerBlock)
	a2 := Address(KeyMaxBatchesPerBlock)
	require.Equal(t, a1, a2)
	require.NotEqual(t, a1, Address(KeyConsensusAlgorithmName))
	require.Len(t, string(a1), 70)
}

func TestReaderGetMissingKey(t *testing.T) {
	trie := state.New(newMemDB(), nil, nil)
	r := New(trie)
	_, ok, err := r.Get(state.EmptyStateRootHash, KeyMaxBatchesPerBlock)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReaderGetIntAndList(t *testing.T) {
	trie := state.New(newMemDB(), nil, nil)
	root := state.EmptyStateRootHash

	root, err := trie.Apply(root, []state.Change{
		{Address: Address(KeyMaxBatchesPerBlock), Kind: 0, Value: Encode("250")},
		{Address: Address(KeyIdentityAllowedKeys), Kind: 0, Value: Encode("abc, def,ghi")},
	})
	require.NoError(t, err)

	r := New(trie)

	n, err := r.GetInt(root, KeyMaxBatchesPerBlock, 100)
	require.NoError(t, err)
	require.Equal(t, 250, n)

	n, err = r.GetInt(root, KeyConsensusAlgorithmVersion, 7)
	require.NoError(t, err)
	require.Equal(t, 7, n)

	keys, err := r.GetList(root, KeyIdentityAllowedKeys)
	require.NoError(t, err)
	require.Equal(t, []string{"abc", "def", "ghi"}, keys)

	keys, err = r.GetList(root, KeyValidatorTransactionFamilies)
	require.NoError(t, err)
	require.Nil(t, keys)
}
