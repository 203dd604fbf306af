// Package genesis seeds an empty chain with block 0 from a genesis batch
// file (spec.md §6 "genesis" paragraph; SPEC_FULL.md §4.10). Grounded on
// engine/chain/bootstrap's "replay from a known-good starting point"
// shape, generalized from a bootstrapper that requests blocks from peers
// to one that reads a single local file and applies it directly, since a
// validator with no chain_head and a genesis.batch on disk has nothing to
// sync from yet.
//
// Kept as a top-level package rather than nested under an internal/
// boundary, matching the flat package layout the rest of this module
// already uses (journal, consensus, permission, settings), which in turn
// follows engine/, networking/, and block/'s own flat layout at module
// root, not under internal/.
package genesis

import (
	"context"
	"errors"
	"fmt"
	"os"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/luxfi/log"

	"github.com/hyperledger-archives/sawtooth-core-sub001/crypto"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/sawerr"
	"github.com/hyperledger-archives/sawtooth-core-sub001/scheduler"
	"github.com/hyperledger-archives/sawtooth-core-sub001/state"
	"github.com/hyperledger-archives/sawtooth-core-sub001/storage/blockstore"
)

// BatchFileName is the well-known file a data directory holds its genesis
// batch list under (spec.md §6).
const BatchFileName = "genesis.batch"

const fieldListBatch protowire.Number = 1

// EncodeBatchList serializes an ordered list of batches to the wire form
// genesis.batch is written in: each batch length-prefixed via its own
// Batch.Encode, one after another.
func EncodeBatchList(batches []*protocol.Batch) []byte {
	var out []byte
	for _, b := range batches {
		out = protowire.AppendBytes(protowire.AppendTag(out, fieldListBatch, protowire.BytesType), b.Encode())
	}
	return out
}

// DecodeBatchList parses bytes produced by EncodeBatchList.
func DecodeBatchList(buf []byte) ([]*protocol.Batch, error) {
	var batches []*protocol.Batch
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		if num != fieldListBatch || typ != protowire.BytesType {
			return nil, fmt.Errorf("genesis: unexpected field %d in batch list", num)
		}
		v, m := protowire.ConsumeBytes(buf[n:])
		if m < 0 {
			return nil, protowire.ParseError(m)
		}
		batch, err := protocol.DecodeBatch(v)
		if err != nil {
			return nil, fmt.Errorf("genesis: decode batch list entry: %w", err)
		}
		batches = append(batches, batch)
		buf = buf[n+m:]
	}
	return batches, nil
}

// Scheduler is the subset of scheduler.SerialScheduler/ParallelScheduler
// genesis bootstrap needs.
type Scheduler interface {
	Run(ctx context.Context, parentRoot string, slate []*protocol.Batch) (*scheduler.Result, error)
}

// Bootstrapper applies a genesis batch list to an empty trie and commits
// the resulting block 0 (spec.md §4.10).
type Bootstrapper struct {
	store     *blockstore.Store
	scheduler Scheduler
	log       log.Logger
}

func New(store *blockstore.Store, sched Scheduler, logger log.Logger) *Bootstrapper {
	return &Bootstrapper{store: store, scheduler: sched, log: logger}
}

// NeedsGenesis reports whether the chain has no block 0 yet and therefore
// needs to be bootstrapped before the chain controller can start.
func (g *Bootstrapper) NeedsGenesis() (bool, error) {
	_, err := g.store.GetBlockByNum(0)
	if err == nil {
		return false, nil
	}
	var se *sawerr.Error
	if errors.As(err, &se) && se.Reason == sawerr.ReasonNotFound {
		return true, nil
	}
	return false, err
}

// LoadBatchList reads and decodes a genesis batch file from path.
func LoadBatchList(path string) ([]*protocol.Batch, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read %s: %w", path, err)
	}
	batches, err := DecodeBatchList(buf)
	if err != nil {
		return nil, err
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("genesis: %s contains no batches", path)
	}
	return batches, nil
}

// Bootstrap applies batches to an empty trie and signs, persists, and
// returns the resulting block 0. Every batch must be unconditionally
// valid, since genesis has no validator to reject against (spec.md §4.10
// "applies it via C8/C9 on an empty trie").
func (g *Bootstrapper) Bootstrap(ctx context.Context, batches []*protocol.Batch, signer *crypto.PrivateKey) (*protocol.Block, error) {
	result, err := g.scheduler.Run(ctx, state.EmptyStateRootHash, batches)
	if err != nil {
		return nil, err
	}
	for _, br := range result.Batches {
		if !br.Valid {
			return nil, fmt.Errorf("genesis: batch %s invalid, cannot bootstrap chain", br.BatchID)
		}
	}

	block, err := protocol.NewSignedBlock(0, protocol.NullBlockID, batches, result.StateRoot, nil, signer)
	if err != nil {
		return nil, err
	}

	receipt := &protocol.BlockReceipt{BlockID: block.ID()}
	for _, br := range result.Batches {
		for _, tr := range br.Txns {
			receipt.TransactionReceipts = append(receipt.TransactionReceipts, &protocol.TransactionReceipt{
				TransactionID: tr.TransactionID,
				Status:        tr.Status,
				InvalidReason: tr.InvalidReason,
				StateChanges:  tr.StateChanges,
				Events:        tr.Events,
				Data:          tr.Data,
			})
		}
	}

	if err := g.store.PutBlock(block); err != nil {
		return nil, err
	}
	if err := g.store.PutReceipt(receipt); err != nil {
		return nil, err
	}
	if g.log != nil {
		g.log.Info("genesis block committed", "block_id", block.ID(), "state_root", result.StateRoot)
	}
	return block, nil
}
