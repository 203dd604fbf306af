// Package storage defines the validator's ordered key-value store contract
// (spec.md §4.1 "C1 KV store": "Ordered byte-key -> byte-value store with
// atomic multi-key writes"), grounded on github.com/luxfi/
// database.Database usage elsewhere (block/block.go's ChainVM.Initialize
// takes a database.Database; chains/atomic uses database.Batch for atomic
// applies). The interfaces below are shaped the same way but locally
// owned, since every concrete backend in this repo (storage/pebblestore)
// is its own adapter rather than a re-export of that module.
package storage

import "errors"

// ErrNotFound is returned by Get when a key is absent.
var ErrNotFound = errors.New("storage: not found")

// Database is the KV contract every subsystem (the trie's node store, the
// block/batch/txn store) is built on.
type Database interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	NewBatch() Batch
	NewIterator(start, end []byte) (Iterator, error)
	Close() error
}

// Batch accumulates a set of puts/deletes for atomic application
// (spec.md §3 "atomic multi-key writes").
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Size() int
	Write() error
	Reset()
}

// Iterator walks a key range in key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}
