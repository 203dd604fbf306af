package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/hyperledger-archives/sawtooth-core-sub001/crypto"
)

// NullBlockID is previous_block_id for the genesis block (spec.md §6).
const NullBlockID = "0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000"

// BlockHeader is the signed portion of a Block (spec.md §3 "Block").
type BlockHeader struct {
	BlockNum        uint64
	PreviousBlockID string
	SignerPublicKey string
	BatchIDs        []string
	StateRootHash   string
	// Consensus is opaque bytes accepted by the active consensus engine
	// (spec.md §3, §4.7).
	Consensus []byte
}

func (h *BlockHeader) Encode() []byte {
	var b []byte
	b = appendVarint(b, fieldBlockNum, h.BlockNum)
	b = appendString(b, fieldPreviousBlockID, h.PreviousBlockID)
	b = appendString(b, fieldSignerPublicKey, h.SignerPublicKey)
	b = appendStringRepeated(b, fieldBatchIDs, h.BatchIDs)
	b = appendString(b, fieldStateRootHash, h.StateRootHash)
	b = appendBytes(b, fieldConsensus, h.Consensus)
	return b
}

func DecodeBlockHeader(buf []byte) (*BlockHeader, error) {
	h := &BlockHeader{}
	err := fieldReader(buf, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch num {
		case fieldBlockNum:
			h.BlockNum = bytesToVarint(v)
		case fieldPreviousBlockID:
			h.PreviousBlockID = bytesToString(v)
		case fieldSignerPublicKey:
			h.SignerPublicKey = bytesToString(v)
		case fieldBatchIDs:
			h.BatchIDs = append(h.BatchIDs, bytesToString(v))
		case fieldStateRootHash:
			h.StateRootHash = bytesToString(v)
		case fieldConsensus:
			h.Consensus = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: decode block header: %w", err)
	}
	return h, nil
}

// Block is a signed container of batches plus header metadata linking it
// to a parent and a state root (spec.md §3 "Block").
type Block struct {
	HeaderBytes     []byte
	HeaderSignature string
	Batches         []*Batch

	header *BlockHeader
}

func (b *Block) Header() (*BlockHeader, error) {
	if b.header == nil {
		h, err := DecodeBlockHeader(b.HeaderBytes)
		if err != nil {
			return nil, err
		}
		b.header = h
	}
	return b.header, nil
}

// ID is the block's content address: its header_signature.
func (b *Block) ID() string { return b.HeaderSignature }

// NewSignedBlock signs a finished candidate block (spec.md §4.5 step 4:
// "freeze the candidate ... fill the block header, sign it with the
// validator key").
func NewSignedBlock(blockNum uint64, previousBlockID string, batches []*Batch, stateRootHash string, consensus []byte, signer *crypto.PrivateKey) (*Block, error) {
	batchIDs := make([]string, len(batches))
	for i, bt := range batches {
		batchIDs[i] = bt.ID()
	}
	h := BlockHeader{
		BlockNum:        blockNum,
		PreviousBlockID: previousBlockID,
		SignerPublicKey: signer.PublicKeyHex(),
		BatchIDs:        batchIDs,
		StateRootHash:   stateRootHash,
		Consensus:       consensus,
	}
	headerBytes := h.Encode()
	return &Block{
		HeaderBytes:     headerBytes,
		HeaderSignature: signer.Sign(headerBytes),
		Batches:         batches,
		header:          &h,
	}, nil
}

// VerifyStructure checks the block's own signature and internal
// consistency (batch_ids order, block_num vs. previous), matching spec.md
// §3's Block invariants minus the state_root/consensus checks, which
// require replay and are performed by the block validator (C10, package
// journal) instead.
func (b *Block) VerifyStructure(parentID string, parent *BlockHeader) error {
	h, err := b.Header()
	if err != nil {
		return err
	}
	if err := crypto.Verify(b.HeaderBytes, b.HeaderSignature, h.SignerPublicKey); err != nil {
		return fmt.Errorf("protocol: block %s: %w", b.ID(), err)
	}
	if len(h.BatchIDs) != len(b.Batches) {
		return fmt.Errorf("protocol: block %s: batch_ids length %d != batches length %d", b.ID(), len(h.BatchIDs), len(b.Batches))
	}
	for i, bt := range b.Batches {
		if bt.ID() != h.BatchIDs[i] {
			return fmt.Errorf("protocol: block %s: batch_ids[%d] does not match contained batch", b.ID(), i)
		}
	}
	if parent == nil {
		if h.BlockNum != 0 {
			return fmt.Errorf("protocol: block %s: block_num %d but no parent given", b.ID(), h.BlockNum)
		}
		if h.PreviousBlockID != NullBlockID {
			return fmt.Errorf("protocol: block %s: genesis block must have previous_block_id == NULL_BLOCK_ID", b.ID())
		}
		return nil
	}
	if h.PreviousBlockID != parentID {
		return fmt.Errorf("protocol: block %s: previous_block_id %s does not match parent %s", b.ID(), h.PreviousBlockID, parentID)
	}
	if h.BlockNum != parent.BlockNum+1 {
		return fmt.Errorf("protocol: block %s: block_num %d != parent.block_num+1 (%d)", b.ID(), h.BlockNum, parent.BlockNum+1)
	}
	return nil
}
