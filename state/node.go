// Package state implements C2: the authenticated Merkle-Radix trie over
// global state (spec.md §4.1). Grounded on
// engine/graph/state.Serializer's constructor shape (log.Logger,
// database.Database, metric.Metrics), generalized from a no-op stub into a
// real path-compressed radix trie with content-addressed nodes.
package state

import (
	"crypto/sha256"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/hyperledger-archives/sawtooth-core-sub001/storage"
)

// NodeID is a node's content address: SHA-256 of its canonical encoding
// (spec.md §4.1 "each node is serialized canonically and addressed by
// SHA256 ... of its serialization").
type NodeID [32]byte

func (id NodeID) String() string { return fmt.Sprintf("%x", id[:]) }

func (id NodeID) isZero() bool { return id == NodeID{} }

const nibbleCount = 16

// node is one trie node: an optional path-compressed fragment of hex
// characters consumed before branching, up to 16 children keyed by the
// next hex nibble, and an optional value present when some address
// terminates exactly at this node (spec.md §4.1 "internal nodes hold a
// fixed-size child slot vector plus optional value bytes; leaf nodes
// compress common suffixes").
type node struct {
	pathFragment string
	children     [nibbleCount]NodeID
	hasValue     bool
	value        []byte
}

func nibbleIndex(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return -1
	}
}

// encode produces the canonical byte serialization whose SHA-256 is the
// node's id. Children are iterated in fixed nibble order, so two nodes
// with the same logical content always serialize identically.
func (n *node) encode() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.BytesType)
	b = protowire.AppendString(b, n.pathFragment)
	for i := 0; i < nibbleCount; i++ {
		if n.children[i].isZero() {
			continue
		}
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		entry := protowire.AppendVarint(nil, uint64(i))
		entry = protowire.AppendBytes(entry, n.children[i][:])
		b = protowire.AppendBytes(b, entry)
	}
	if n.hasValue {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, n.value)
	}
	return b
}

func hashNode(n *node) NodeID {
	return sha256.Sum256(n.encode())
}

func decodeNode(buf []byte) (*node, error) {
	n := &node{}
	for len(buf) > 0 {
		num, typ, tn := protowire.ConsumeTag(buf)
		if tn < 0 {
			return nil, fmt.Errorf("state: bad node tag: %w", protowire.ParseError(tn))
		}
		buf = buf[tn:]
		v, vn := protowire.ConsumeBytes(buf)
		if vn < 0 {
			return nil, fmt.Errorf("state: bad node field: %w", protowire.ParseError(vn))
		}
		buf = buf[vn:]
		if typ != protowire.BytesType {
			continue
		}
		switch num {
		case 1:
			n.pathFragment = string(v)
		case 2:
			idx, m := protowire.ConsumeVarint(v)
			if m < 0 {
				return nil, fmt.Errorf("state: bad child index: %w", protowire.ParseError(m))
			}
			var id NodeID
			copy(id[:], v[m:])
			if idx >= nibbleCount {
				return nil, fmt.Errorf("state: child index %d out of range", idx)
			}
			n.children[idx] = id
		case 3:
			n.hasValue = true
			n.value = append([]byte(nil), v...)
		}
	}
	return n, nil
}

// nodeStore persists trie nodes by content address under the "m/" prefix.
// The block store's metadata keys share that prefix in the same
// storage.Database; they never collide with node keys, which are always the
// prefix plus exactly 32 id bytes.
type nodeStore struct {
	db storage.Database
}

const nodeNamespace = "m/"

func nodeKey(id NodeID) []byte {
	k := make([]byte, 0, len(nodeNamespace)+32)
	k = append(k, nodeNamespace...)
	return append(k, id[:]...)
}

func (s *nodeStore) get(id NodeID) (*node, error) {
	raw, err := s.db.Get(nodeKey(id))
	if err != nil {
		return nil, err
	}
	return decodeNode(raw)
}

func (s *nodeStore) put(batch storage.Batch, n *node) NodeID {
	id := hashNode(n)
	// Path-copy sharing (spec.md §4.1): an unchanged subtree's node id is
	// unchanged, so re-putting it is a harmless idempotent overwrite of an
	// already-identical value rather than a new write.
	_ = batch.Put(nodeKey(id), n.encode())
	return id
}
