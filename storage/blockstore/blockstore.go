// Package blockstore implements C3: content-addressed persistence of
// blocks, batches, transactions, and receipts, with secondary indexes by
// id (spec.md §4 C3, §2 data flow). Grounded on
// engine/graph/bootstrap/queue's "namespaced lookup over a database.Database"
// idiom, generalized from a single job queue to four content-addressed
// collections plus a block_num -> block_id index.
package blockstore

import (
	"encoding/binary"
	"fmt"

	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/sawerr"
	"github.com/hyperledger-archives/sawtooth-core-sub001/storage"
)

// Namespaces partition the underlying keyspace so blocks, batches, txns,
// and receipts never collide.
const (
	nsBlock      = "b/"
	nsBatch      = "t/"
	nsTxn        = "x/"
	nsReceipt    = "r/"
	nsBlockByNum = "n/"
	nsBatchToBlk = "i/" // batch id -> containing block id
	nsTxnToBatch = "j/" // txn id -> containing batch id
	nsMeta       = "m/"
)

// headKey is the nsMeta key holding the current chain_head block id,
// written by the chain controller when it takes the genesis block as head
// and on each commit (spec.md §4.6, §6 "... if chain_head is absent").
const headKey = "chain_head"

// Store is the validator's content-addressed ledger store.
type Store struct {
	db storage.Database
}

func New(db storage.Database) *Store {
	return &Store{db: db}
}

func key(ns, id string) []byte { return []byte(ns + id) }

// PutBlock persists a block and its secondary indexes atomically: the
// block by id, block_num -> id, and batch id -> block id for every
// contained batch (spec.md §4 C3 "secondary indexes by id").
func (s *Store) PutBlock(b *protocol.Block) error {
	h, err := b.Header()
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	if err := batch.Put(key(nsBlock, b.ID()), encodeBlock(b)); err != nil {
		return sawerr.Storage(sawerr.ReasonCorruption, b.ID(), err)
	}
	if err := batch.Put(key(nsBlockByNum, blockNumKey(h.BlockNum)), []byte(b.ID())); err != nil {
		return sawerr.Storage(sawerr.ReasonCorruption, b.ID(), err)
	}
	for _, bt := range b.Batches {
		if err := s.putBatchLocked(batch, bt); err != nil {
			return err
		}
		if err := batch.Put(key(nsBatchToBlk, bt.ID()), []byte(b.ID())); err != nil {
			return sawerr.Storage(sawerr.ReasonCorruption, bt.ID(), err)
		}
	}
	if err := batch.Write(); err != nil {
		return sawerr.Storage(sawerr.ReasonCorruption, b.ID(), err)
	}
	return nil
}

func (s *Store) putBatchLocked(batch storage.Batch, bt *protocol.Batch) error {
	if err := batch.Put(key(nsBatch, bt.ID()), encodeBatch(bt)); err != nil {
		return sawerr.Storage(sawerr.ReasonCorruption, bt.ID(), err)
	}
	for _, t := range bt.Transactions {
		if err := batch.Put(key(nsTxn, t.ID()), encodeTxn(t)); err != nil {
			return sawerr.Storage(sawerr.ReasonCorruption, t.ID(), err)
		}
		if err := batch.Put(key(nsTxnToBatch, t.ID()), []byte(bt.ID())); err != nil {
			return sawerr.Storage(sawerr.ReasonCorruption, t.ID(), err)
		}
	}
	return nil
}

// GetBlock fetches a block by id.
func (s *Store) GetBlock(id string) (*protocol.Block, error) {
	raw, err := s.db.Get(key(nsBlock, id))
	if err != nil {
		return nil, sawerr.Storage(sawerr.ReasonNotFound, id, err)
	}
	return decodeBlock(raw)
}

// GetBlockByNum resolves a block_num through the secondary index.
func (s *Store) GetBlockByNum(num uint64) (*protocol.Block, error) {
	id, err := s.db.Get(key(nsBlockByNum, blockNumKey(num)))
	if err != nil {
		return nil, sawerr.Storage(sawerr.ReasonNotFound, fmt.Sprintf("block_num=%d", num), err)
	}
	return s.GetBlock(string(id))
}

// HasBlock reports whether a block id is already stored (used by the block
// validator to short-circuit already-seen blocks, spec.md §4.4).
func (s *Store) HasBlock(id string) (bool, error) {
	ok, err := s.db.Has(key(nsBlock, id))
	if err != nil {
		return false, sawerr.Storage(sawerr.ReasonCorruption, id, err)
	}
	return ok, nil
}

// GetBatch fetches a batch by id.
func (s *Store) GetBatch(id string) (*protocol.Batch, error) {
	raw, err := s.db.Get(key(nsBatch, id))
	if err != nil {
		return nil, sawerr.Storage(sawerr.ReasonNotFound, id, err)
	}
	return decodeBatch(raw)
}

// HasBatch reports whether a batch id is already stored (used by the
// pending batch pool to dedup admission, spec.md §5).
func (s *Store) HasBatch(id string) (bool, error) {
	ok, err := s.db.Has(key(nsBatch, id))
	if err != nil {
		return false, sawerr.Storage(sawerr.ReasonCorruption, id, err)
	}
	return ok, nil
}

// BlockIDForBatch resolves the committed block containing a batch, if any.
func (s *Store) BlockIDForBatch(batchID string) (string, error) {
	id, err := s.db.Get(key(nsBatchToBlk, batchID))
	if err != nil {
		return "", sawerr.Storage(sawerr.ReasonNotFound, batchID, err)
	}
	return string(id), nil
}

// BatchIDForTransaction resolves the batch containing a transaction, if
// any (used to answer gossip's pull-by-transaction-id requests, spec.md
// §4.8 "GossipBatchByTransactionIdRequest").
func (s *Store) BatchIDForTransaction(txnID string) (string, error) {
	id, err := s.db.Get(key(nsTxnToBatch, txnID))
	if err != nil {
		return "", sawerr.Storage(sawerr.ReasonNotFound, txnID, err)
	}
	return string(id), nil
}

// GetTransaction fetches a transaction by id.
func (s *Store) GetTransaction(id string) (*protocol.Transaction, error) {
	raw, err := s.db.Get(key(nsTxn, id))
	if err != nil {
		return nil, sawerr.Storage(sawerr.ReasonNotFound, id, err)
	}
	return decodeTxn(raw)
}

// PutReceipt persists a block's receipt set.
func (s *Store) PutReceipt(r *protocol.BlockReceipt) error {
	return s.db.Put(key(nsReceipt, r.BlockID), encodeReceipt(r))
}

// GetReceipt fetches a block's receipt set.
func (s *Store) GetReceipt(blockID string) (*protocol.BlockReceipt, error) {
	raw, err := s.db.Get(key(nsReceipt, blockID))
	if err != nil {
		return nil, sawerr.Storage(sawerr.ReasonNotFound, blockID, err)
	}
	return decodeReceipt(raw)
}

// SetChainHead persists the chain controller's current head block id, so
// a restarted validator can recover it without rescanning block_num.
func (s *Store) SetChainHead(blockID string) error {
	return s.db.Put(key(nsMeta, headKey), []byte(blockID))
}

// ChainHead returns the persisted chain head block, or a ReasonNotFound
// error if the chain has never been initialized.
func (s *Store) ChainHead() (*protocol.Block, error) {
	raw, err := s.db.Get(key(nsMeta, headKey))
	if err != nil {
		return nil, sawerr.Storage(sawerr.ReasonNotFound, headKey, err)
	}
	return s.GetBlock(string(raw))
}

func blockNumKey(num uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], num)
	return string(b[:])
}
