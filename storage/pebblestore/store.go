// Package pebblestore implements storage.Database over cockroachdb/pebble,
// an embedded ordered LSM key-value store, the same way clydemeng-bsc uses
// cockroachdb/pebble directly as a chain-data backend.
package pebblestore

import (
	"errors"

	"github.com/cockroachdb/pebble"

	"github.com/hyperledger-archives/sawtooth-core-sub001/sawerr"
	"github.com/hyperledger-archives/sawtooth-core-sub001/storage"
)

// Store adapts a *pebble.DB to the validator's storage.Database contract.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if absent) a pebble store at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, sawerr.Storage(sawerr.ReasonCorruption, dir, err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the underlying pebble database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Has reports whether key exists.
func (s *Store) Has(key []byte) (bool, error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, sawerr.Storage(sawerr.ReasonCorruption, "", err)
	}
	_ = v
	return true, closer.Close()
}

// Get returns a copy of the value stored at key.
func (s *Store) Get(key []byte) ([]byte, error) {
	v, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, sawerr.Storage(sawerr.ReasonNotFound, string(key), storage.ErrNotFound)
	}
	if err != nil {
		return nil, sawerr.Storage(sawerr.ReasonCorruption, "", err)
	}
	out := append([]byte(nil), v...)
	return out, closer.Close()
}

// Put writes a single key-value pair immediately.
func (s *Store) Put(key, value []byte) error {
	if err := s.db.Set(key, value, pebble.Sync); err != nil {
		return sawerr.Storage(sawerr.ReasonCorruption, "", err)
	}
	return nil
}

// Delete removes a single key.
func (s *Store) Delete(key []byte) error {
	if err := s.db.Delete(key, pebble.Sync); err != nil {
		return sawerr.Storage(sawerr.ReasonCorruption, "", err)
	}
	return nil
}

// NewBatch returns a batch that applies atomically on Write, satisfying
// spec.md §3's "atomic multi-key writes" for the state trie's path-copy
// updates and block/batch/txn/receipt persistence.
func (s *Store) NewBatch() storage.Batch {
	return &Batch{b: s.db.NewBatch()}
}

// Batch accumulates writes for one atomic commit.
type Batch struct {
	b   *pebble.Batch
	ops int
}

func (b *Batch) Put(key, value []byte) error {
	b.ops++
	return b.b.Set(key, value, nil)
}

func (b *Batch) Delete(key []byte) error {
	b.ops++
	return b.b.Delete(key, nil)
}

// Size reports the number of queued operations.
func (b *Batch) Size() int { return b.ops }

// Write commits the batch atomically.
func (b *Batch) Write() error {
	if err := b.b.Commit(pebble.Sync); err != nil {
		return sawerr.Storage(sawerr.ReasonCorruption, "", err)
	}
	return nil
}

// Reset clears the batch for reuse.
func (b *Batch) Reset() {
	b.b.Reset()
	b.ops = 0
}

// NewIterator returns a key-ordered iterator over [start, end); end == nil
// means "to the end of the keyspace".
func (s *Store) NewIterator(start, end []byte) (storage.Iterator, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: start, UpperBound: end})
	if err != nil {
		return nil, sawerr.Storage(sawerr.ReasonCorruption, "", err)
	}
	it.First()
	return &Iterator{it: it, started: true}, nil
}

var _ storage.Database = (*Store)(nil)

// Iterator walks pebble's iterator with the validator's simpler Next/Key/
// Value/Error/Close shape.
type Iterator struct {
	it      *pebble.Iterator
	started bool
}

func (it *Iterator) Next() bool {
	if it.started {
		it.started = false
		return it.it.Valid()
	}
	return it.it.Next()
}

func (it *Iterator) Key() []byte   { return it.it.Key() }
func (it *Iterator) Value() []byte { return it.it.Value() }
func (it *Iterator) Error() error  { return it.it.Error() }
func (it *Iterator) Close() error  { return it.it.Close() }
