package identity

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger-archives/sawtooth-core-sub001/state"
	"github.com/hyperledger-archives/sawtooth-core-sub001/storage"
)

// memDB is a minimal in-memory storage.Database for unit tests, the same
// double duplicated across this repo's other package tests (state,
// storage/blockstore) rather than shared.
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

func TestPolicyEvaluateFirstMatchWins(t *testing.T) {
	p := Policy{Name: "policy1", Rules: []Rule{
		{Type: DenyKey, Key: "abc"},
		{Type: PermitKey, Key: "*"},
	}}
	require.False(t, p.Evaluate("abc"))
	require.True(t, p.Evaluate("def"))
}

func TestPolicyEvaluateImplicitDeny(t *testing.T) {
	p := Policy{Name: "empty"}
	require.False(t, p.Evaluate("anything"))
}

func TestRoleAndPolicyEncodeDecodeRoundTrip(t *testing.T) {
	policyName := "policy1"
	roleBytes := EncodeRole(policyName)
	got, err := DecodeRole(roleBytes)
	require.NoError(t, err)
	require.Equal(t, policyName, got)

	p := Policy{Name: policyName, Rules: []Rule{
		{Type: PermitKey, Key: "02abcd"},
		{Type: DenyKey, Key: "*"},
	}}
	policyBytes := EncodePolicy(p)
	gotPolicy, err := DecodePolicy(policyBytes)
	require.NoError(t, err)
	require.Equal(t, p, gotPolicy)
}

func TestSourceRolePolicyResolvesThroughState(t *testing.T) {
	trie := state.New(newMemDB(), nil, nil)
	root := state.EmptyStateRootHash

	policy := Policy{Name: "policy1", Rules: []Rule{{Type: PermitKey, Key: "*"}}}
	root, err := trie.Apply(root, []state.Change{
		{Address: RoleAddress("network"), Kind: 0, Value: EncodeRole("policy1")},
		{Address: PolicyAddress("policy1"), Kind: 0, Value: EncodePolicy(policy)},
	})
	require.NoError(t, err)

	src := New(trie)
	got, ok, err := src.RolePolicy(root, "network")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, policy, got)

	_, ok, err = src.RolePolicy(root, "nonexistent")
	require.NoError(t, err)
	require.False(t, ok)
}
