package state

import (
	"encoding/hex"
	"fmt"

	"github.com/luxfi/log"

	"github.com/hyperledger-archives/sawtooth-core-sub001/metrics"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/sawerr"
	"github.com/hyperledger-archives/sawtooth-core-sub001/storage"
)

// EmptyStateRootHash is the root of a trie with no entries: the hash of an
// empty node with no path fragment, no children, and no value.
var EmptyStateRootHash = hashNode(&node{}).String()

// Change is one address's write or delete, part of an ordered change set
// applied in a single Apply call (spec.md §4.1
// "writer(parent_root).apply(changes) -> new_root").
type Change struct {
	Address protocol.Address
	Kind    protocol.ChangeKind
	Value   []byte
}

// Trie is the authenticated Merkle-Radix trie over global state (C2).
// Readers and writers both go through it; state_root_hash values identify
// a specific (address -> bytes) mapping (spec.md §3 "Global state").
//
// Grounded on engine/graph/state.Serializer's constructor shape
// (log.Logger, database.Database, metric.Metrics), generalized from a no-op
// stub into a real path-compressed radix trie.
type Trie struct {
	store   *nodeStore
	log     log.Logger
	metrics *metrics.Metrics
}

func New(db storage.Database, logger log.Logger, m *metrics.Metrics) *Trie {
	return &Trie{store: &nodeStore{db: db}, log: logger, metrics: m}
}

func decodeRoot(root string) (NodeID, error) {
	if root == "" || root == EmptyStateRootHash {
		return NodeID{}, nil
	}
	raw, err := hex.DecodeString(root)
	if err != nil || len(raw) != 32 {
		return NodeID{}, sawerr.Storage(sawerr.ReasonCorruption, root, fmt.Errorf("state: malformed state_root_hash %q", root))
	}
	var id NodeID
	copy(id[:], raw)
	return id, nil
}

// Get looks up a single address under root.
func (t *Trie) Get(root string, address protocol.Address) ([]byte, bool, error) {
	if err := address.Validate(); err != nil {
		return nil, false, sawerr.Validation(sawerr.ReasonTxnOutOfNamespace, string(address), err)
	}
	rootID, err := decodeRoot(root)
	if err != nil {
		return nil, false, err
	}
	return t.get(rootID, string(address))
}

func (t *Trie) get(id NodeID, remaining string) ([]byte, bool, error) {
	if id.isZero() {
		return nil, false, nil
	}
	n, err := t.store.get(id)
	if err != nil {
		return nil, false, sawerr.Storage(sawerr.ReasonCorruption, id.String(), err)
	}
	if len(remaining) < len(n.pathFragment) || remaining[:len(n.pathFragment)] != n.pathFragment {
		return nil, false, nil
	}
	remaining = remaining[len(n.pathFragment):]
	if remaining == "" {
		if n.hasValue {
			return append([]byte(nil), n.value...), true, nil
		}
		return nil, false, nil
	}
	idx := nibbleIndex(remaining[0])
	if idx < 0 {
		return nil, false, fmt.Errorf("state: address has non-hex character %q", remaining[0])
	}
	return t.get(n.children[idx], remaining[1:])
}

// GetMulti fetches several addresses at once, the shape the scheduler's
// get_state context call uses (spec.md §4.1).
func (t *Trie) GetMulti(root string, addresses []protocol.Address) (map[protocol.Address][]byte, error) {
	out := make(map[protocol.Address][]byte, len(addresses))
	for _, a := range addresses {
		v, ok, err := t.Get(root, a)
		if err != nil {
			return nil, err
		}
		if ok {
			out[a] = v
		}
	}
	return out, nil
}

// Apply applies an ordered change set on top of root and returns the new
// root (spec.md §4.1). Applying the empty change set to root returns root
// unchanged; applying the same change set to the same parent root always
// returns the same new root (spec.md §8).
func (t *Trie) Apply(root string, changes []Change) (string, error) {
	rootID, err := decodeRoot(root)
	if err != nil {
		return "", err
	}
	batch := t.store.db.NewBatch()
	for _, c := range changes {
		if err := c.Address.Validate(); err != nil {
			return "", sawerr.Validation(sawerr.ReasonTxnOutOfNamespace, string(c.Address), err)
		}
		switch c.Kind {
		case protocol.Set:
			rootID, err = t.insert(batch, rootID, string(c.Address), c.Value)
		case protocol.Delete:
			rootID, _, err = t.delete(batch, rootID, string(c.Address))
		default:
			err = fmt.Errorf("state: unknown change kind %d", c.Kind)
		}
		if err != nil {
			return "", err
		}
	}
	if err := batch.Write(); err != nil {
		return "", sawerr.Storage(sawerr.ReasonCorruption, "", err)
	}
	if rootID.isZero() {
		return EmptyStateRootHash, nil
	}
	return rootID.String(), nil
}

// commonPrefixLen returns the length of the shared prefix of a and b.
func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// insert writes value at key under the subtree rooted at id, returning the
// new subtree root. Path compression is maintained by splitting a node's
// fragment at the first point it diverges from key, inserting a branch
// node there (spec.md §4.1 "internal nodes branch on the next hex
// character; a node's fragment is the longest run of characters common to
// every address currently stored beneath it").
func (t *Trie) insert(batch storage.Batch, id NodeID, key string, value []byte) (NodeID, error) {
	if id.isZero() {
		leaf := &node{pathFragment: key, hasValue: true, value: value}
		return t.store.put(batch, leaf), nil
	}
	n, err := t.store.get(id)
	if err != nil {
		return id, sawerr.Storage(sawerr.ReasonCorruption, id.String(), err)
	}
	cp := commonPrefixLen(n.pathFragment, key)

	switch {
	case cp == len(n.pathFragment) && cp == len(key):
		// Exact match: replace this node's value in place.
		n.hasValue = true
		n.value = value
		return t.store.put(batch, n), nil

	case cp == len(n.pathFragment):
		// key extends past this node's fragment: descend into (or create)
		// the child keyed by the next nibble.
		rest := key[cp:]
		idx := nibbleIndex(rest[0])
		if idx < 0 {
			return id, fmt.Errorf("state: address has non-hex character %q", rest[0])
		}
		childID, err := t.insert(batch, n.children[idx], rest[1:], value)
		if err != nil {
			return id, err
		}
		n.children[idx] = childID
		return t.store.put(batch, n), nil

	case cp == len(key):
		// key ends exactly where this node's fragment continues: split
		// this node into a value-bearing parent and a demoted child
		// carrying the remainder of the old fragment.
		remainder := n.pathFragment[cp:]
		demoted := &node{pathFragment: remainder[1:], children: n.children, hasValue: n.hasValue, value: n.value}
		demotedID := t.store.put(batch, demoted)
		parent := &node{pathFragment: key[:cp], hasValue: true, value: value}
		parent.children[nibbleIndex(remainder[0])] = demotedID
		return t.store.put(batch, parent), nil

	default:
		// Fragments diverge partway through: split into a branch node
		// with two children, one for the old fragment's remainder, one
		// for key's remainder.
		oldRemainder := n.pathFragment[cp:]
		demoted := &node{pathFragment: oldRemainder[1:], children: n.children, hasValue: n.hasValue, value: n.value}
		demotedID := t.store.put(batch, demoted)

		newRemainder := key[cp:]
		leaf := &node{pathFragment: newRemainder[1:], hasValue: true, value: value}
		leafID := t.store.put(batch, leaf)

		branch := &node{pathFragment: key[:cp]}
		branch.children[nibbleIndex(oldRemainder[0])] = demotedID
		branch.children[nibbleIndex(newRemainder[0])] = leafID
		return t.store.put(batch, branch), nil
	}
}

// delete removes key from the subtree rooted at id, returning the new
// subtree root and whether key was present. A node that loses its last
// value and has exactly one remaining child is merged with that child so
// path compression is preserved after deletion (spec.md §4.1).
func (t *Trie) delete(batch storage.Batch, id NodeID, key string) (NodeID, bool, error) {
	if id.isZero() {
		return id, false, nil
	}
	n, err := t.store.get(id)
	if err != nil {
		return id, false, sawerr.Storage(sawerr.ReasonCorruption, id.String(), err)
	}
	cp := commonPrefixLen(n.pathFragment, key)
	if cp != len(n.pathFragment) {
		return id, false, nil
	}
	rest := key[cp:]

	if rest == "" {
		if !n.hasValue {
			return id, false, nil
		}
		return t.collapse(batch, n)
	}

	idx := nibbleIndex(rest[0])
	if idx < 0 {
		return id, false, fmt.Errorf("state: address has non-hex character %q", rest[0])
	}
	childID, found, err := t.delete(batch, n.children[idx], rest[1:])
	if err != nil {
		return id, false, err
	}
	if !found {
		return id, false, nil
	}
	n.children[idx] = childID
	newID, err := t.normalize(batch, n)
	return newID, true, err
}

// collapse drops a node's value, then normalizes it: a node with no value
// and no children vanishes, one with no value and one child merges with
// that child, and otherwise it is kept as a valueless branch.
func (t *Trie) collapse(batch storage.Batch, n *node) (NodeID, bool, error) {
	n.hasValue = false
	n.value = nil
	id, err := t.normalize(batch, n)
	return id, true, err
}

// normalize rewrites n to its canonical compressed form after a child or
// value changed, merging a lone remaining child's fragment into n's own.
func (t *Trie) normalize(batch storage.Batch, n *node) (NodeID, error) {
	if n.hasValue {
		return t.store.put(batch, n), nil
	}
	var onlyIdx = -1
	childCount := 0
	for i, c := range n.children {
		if !c.isZero() {
			childCount++
			onlyIdx = i
		}
	}
	switch childCount {
	case 0:
		return NodeID{}, nil
	case 1:
		child, err := t.store.get(n.children[onlyIdx])
		if err != nil {
			return NodeID{}, sawerr.Storage(sawerr.ReasonCorruption, n.children[onlyIdx].String(), err)
		}
		merged := &node{
			pathFragment: n.pathFragment + hexDigit(onlyIdx) + child.pathFragment,
			children:     child.children,
			hasValue:     child.hasValue,
			value:        child.value,
		}
		return t.store.put(batch, merged), nil
	default:
		return t.store.put(batch, n), nil
	}
}

func hexDigit(idx int) string {
	const digits = "0123456789abcdef"
	return string(digits[idx])
}
