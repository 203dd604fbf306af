package state

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/storage"
)

// memDB is a minimal in-memory storage.Database for unit tests, the same
// double used in storage/blockstore's tests.
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

func addr(suffix string) protocol.Address {
	ns := "1cf126"
	s := ns + suffix
	for len(s) < 70 {
		s += "0"
	}
	return protocol.Address(s[:70])
}

func TestTrieEmptyRoot(t *testing.T) {
	tr := New(newMemDB(), nil, nil)
	_, ok, err := tr.Get(EmptyStateRootHash, addr("aa"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTrieSetGetRoundTrip(t *testing.T) {
	tr := New(newMemDB(), nil, nil)
	root, err := tr.Apply(EmptyStateRootHash, []Change{
		{Address: addr("aa"), Kind: protocol.Set, Value: []byte("one")},
	})
	require.NoError(t, err)
	require.NotEqual(t, EmptyStateRootHash, root)

	v, ok, err := tr.Get(root, addr("aa"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "one", string(v))
}

func TestTrieMultipleAddressesDivergingPaths(t *testing.T) {
	tr := New(newMemDB(), nil, nil)
	root, err := tr.Apply(EmptyStateRootHash, []Change{
		{Address: addr("aa"), Kind: protocol.Set, Value: []byte("A")},
		{Address: addr("ab"), Kind: protocol.Set, Value: []byte("B")},
		{Address: addr("ff"), Kind: protocol.Set, Value: []byte("C")},
	})
	require.NoError(t, err)

	for suffix, want := range map[string]string{"aa": "A", "ab": "B", "ff": "C"} {
		v, ok, err := tr.Get(root, addr(suffix))
		require.NoError(t, err)
		require.True(t, ok, suffix)
		require.Equal(t, want, string(v), suffix)
	}
}

func TestTrieOverwriteValue(t *testing.T) {
	tr := New(newMemDB(), nil, nil)
	root, err := tr.Apply(EmptyStateRootHash, []Change{{Address: addr("aa"), Kind: protocol.Set, Value: []byte("old")}})
	require.NoError(t, err)
	root2, err := tr.Apply(root, []Change{{Address: addr("aa"), Kind: protocol.Set, Value: []byte("new")}})
	require.NoError(t, err)

	v, ok, err := tr.Get(root2, addr("aa"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "new", string(v))
}

func TestTrieDeleteRestoresEmptyRoot(t *testing.T) {
	tr := New(newMemDB(), nil, nil)
	root, err := tr.Apply(EmptyStateRootHash, []Change{{Address: addr("aa"), Kind: protocol.Set, Value: []byte("v")}})
	require.NoError(t, err)

	root2, err := tr.Apply(root, []Change{{Address: addr("aa"), Kind: protocol.Delete}})
	require.NoError(t, err)
	require.Equal(t, EmptyStateRootHash, root2)
}

func TestTrieDeleteMergesSiblingPath(t *testing.T) {
	tr := New(newMemDB(), nil, nil)
	root, err := tr.Apply(EmptyStateRootHash, []Change{
		{Address: addr("aa"), Kind: protocol.Set, Value: []byte("A")},
		{Address: addr("ab"), Kind: protocol.Set, Value: []byte("B")},
	})
	require.NoError(t, err)

	root2, err := tr.Apply(root, []Change{{Address: addr("aa"), Kind: protocol.Delete}})
	require.NoError(t, err)

	_, ok, err := tr.Get(root2, addr("aa"))
	require.NoError(t, err)
	require.False(t, ok)

	v, ok, err := tr.Get(root2, addr("ab"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "B", string(v))
}

// Same change set applied to the same parent root always produces the same
// new root (spec.md §8 determinism property).
func TestTrieApplyDeterministic(t *testing.T) {
	changes := []Change{
		{Address: addr("aa"), Kind: protocol.Set, Value: []byte("A")},
		{Address: addr("ab"), Kind: protocol.Set, Value: []byte("B")},
		{Address: addr("cd"), Kind: protocol.Set, Value: []byte("C")},
	}

	tr1 := New(newMemDB(), nil, nil)
	root1, err := tr1.Apply(EmptyStateRootHash, changes)
	require.NoError(t, err)

	tr2 := New(newMemDB(), nil, nil)
	root2, err := tr2.Apply(EmptyStateRootHash, changes)
	require.NoError(t, err)

	require.Equal(t, root1, root2)
}

func TestTrieRejectsMalformedAddress(t *testing.T) {
	tr := New(newMemDB(), nil, nil)
	_, err := tr.Apply(EmptyStateRootHash, []Change{{Address: protocol.Address("short"), Kind: protocol.Set, Value: []byte("x")}})
	require.Error(t, err)
}

func TestTrieGetMulti(t *testing.T) {
	tr := New(newMemDB(), nil, nil)
	root, err := tr.Apply(EmptyStateRootHash, []Change{
		{Address: addr("aa"), Kind: protocol.Set, Value: []byte("A")},
		{Address: addr("bb"), Kind: protocol.Set, Value: []byte("B")},
	})
	require.NoError(t, err)

	got, err := tr.GetMulti(root, []protocol.Address{addr("aa"), addr("bb"), addr("cc")})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "A", string(got[addr("aa")]))
}
