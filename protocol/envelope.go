package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope field numbers cover the whole-entity wire form gossip (C7) and
// the network endpoint exchange: header bytes, signature, and either a
// payload or nested child entities. Each Encode/Decode pair below operates
// on its own independent buffer, so reusing field number 3 for both
// "payload" (Transaction) and "children" (Batch, Block) causes no
// ambiguity (spec.md §6 "length-prefixed structured records").
const (
	fieldEnvHeaderBytes     protowire.Number = 1
	fieldEnvHeaderSignature protowire.Number = 2
	fieldEnvPayload         protowire.Number = 3
	fieldEnvChildren        protowire.Number = 3
)

// Encode serializes a transaction's full wire form for gossip/pull
// responses, distinct from Header().Encode which only covers the signed
// header portion.
func (t *Transaction) Encode() []byte {
	var b []byte
	b = appendBytes(b, fieldEnvHeaderBytes, t.HeaderBytes)
	b = appendString(b, fieldEnvHeaderSignature, t.HeaderSignature)
	b = appendBytes(b, fieldEnvPayload, t.Payload)
	return b
}

// DecodeTransaction parses bytes produced by Transaction.Encode.
func DecodeTransaction(buf []byte) (*Transaction, error) {
	txn := &Transaction{}
	err := fieldReader(buf, func(num protowire.Number, _ protowire.Type, v []byte) error {
		switch num {
		case fieldEnvHeaderBytes:
			txn.HeaderBytes = append([]byte(nil), v...)
		case fieldEnvHeaderSignature:
			txn.HeaderSignature = bytesToString(v)
		case fieldEnvPayload:
			txn.Payload = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: decode transaction: %w", err)
	}
	return txn, nil
}

// Encode serializes a batch and every transaction it contains.
func (b *Batch) Encode() []byte {
	var out []byte
	out = appendBytes(out, fieldEnvHeaderBytes, b.HeaderBytes)
	out = appendString(out, fieldEnvHeaderSignature, b.HeaderSignature)
	for _, t := range b.Transactions {
		out = appendBytes(out, fieldEnvChildren, t.Encode())
	}
	return out
}

// DecodeBatch parses bytes produced by Batch.Encode.
func DecodeBatch(buf []byte) (*Batch, error) {
	bt := &Batch{}
	err := fieldReader(buf, func(num protowire.Number, _ protowire.Type, v []byte) error {
		switch num {
		case fieldEnvHeaderBytes:
			bt.HeaderBytes = append([]byte(nil), v...)
		case fieldEnvHeaderSignature:
			bt.HeaderSignature = bytesToString(v)
		case fieldEnvChildren:
			txn, err := DecodeTransaction(v)
			if err != nil {
				return err
			}
			bt.Transactions = append(bt.Transactions, txn)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: decode batch: %w", err)
	}
	return bt, nil
}

// Encode serializes a block and every batch it contains.
func (blk *Block) Encode() []byte {
	var out []byte
	out = appendBytes(out, fieldEnvHeaderBytes, blk.HeaderBytes)
	out = appendString(out, fieldEnvHeaderSignature, blk.HeaderSignature)
	for _, bt := range blk.Batches {
		out = appendBytes(out, fieldEnvChildren, bt.Encode())
	}
	return out
}

// DecodeBlock parses bytes produced by Block.Encode.
func DecodeBlock(buf []byte) (*Block, error) {
	blk := &Block{}
	err := fieldReader(buf, func(num protowire.Number, _ protowire.Type, v []byte) error {
		switch num {
		case fieldEnvHeaderBytes:
			blk.HeaderBytes = append([]byte(nil), v...)
		case fieldEnvHeaderSignature:
			blk.HeaderSignature = bytesToString(v)
		case fieldEnvChildren:
			bt, err := DecodeBatch(v)
			if err != nil {
				return err
			}
			blk.Batches = append(blk.Batches, bt)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("protocol: decode block: %w", err)
	}
	return blk, nil
}
