package blockstore

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
)

// The encodings below are the store's on-disk representation, independent
// of the wire encoding in package protocol: each entity is stored as its
// header bytes, its signature, and its payload (transactions) or children
// (batches/blocks), all length-prefixed so decoding never has to guess a
// boundary.

func appendLenPrefixed(b []byte, v []byte) []byte {
	b = protowire.AppendVarint(b, uint64(len(v)))
	return append(b, v...)
}

func consumeLenPrefixed(buf []byte) (v, rest []byte, err error) {
	n, m := protowire.ConsumeVarint(buf)
	if m < 0 {
		return nil, nil, fmt.Errorf("blockstore: bad length prefix: %w", protowire.ParseError(m))
	}
	buf = buf[m:]
	if uint64(len(buf)) < n {
		return nil, nil, fmt.Errorf("blockstore: truncated record")
	}
	return buf[:n], buf[n:], nil
}

func encodeTxn(t *protocol.Transaction) []byte {
	var b []byte
	b = appendLenPrefixed(b, t.HeaderBytes)
	b = appendLenPrefixed(b, []byte(t.HeaderSignature))
	b = appendLenPrefixed(b, t.Payload)
	return b
}

func decodeTxn(buf []byte) (*protocol.Transaction, error) {
	header, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return nil, err
	}
	sig, rest, err := consumeLenPrefixed(rest)
	if err != nil {
		return nil, err
	}
	payload, _, err := consumeLenPrefixed(rest)
	if err != nil {
		return nil, err
	}
	return &protocol.Transaction{
		HeaderBytes:     append([]byte(nil), header...),
		HeaderSignature: string(sig),
		Payload:         append([]byte(nil), payload...),
	}, nil
}

func encodeBatch(bt *protocol.Batch) []byte {
	var b []byte
	b = appendLenPrefixed(b, bt.HeaderBytes)
	b = appendLenPrefixed(b, []byte(bt.HeaderSignature))
	b = protowire.AppendVarint(b, uint64(len(bt.Transactions)))
	for _, t := range bt.Transactions {
		b = appendLenPrefixed(b, encodeTxn(t))
	}
	return b
}

func decodeBatch(buf []byte) (*protocol.Batch, error) {
	header, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return nil, err
	}
	sig, rest, err := consumeLenPrefixed(rest)
	if err != nil {
		return nil, err
	}
	count, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return nil, fmt.Errorf("blockstore: bad batch txn count: %w", protowire.ParseError(n))
	}
	rest = rest[n:]
	txns := make([]*protocol.Transaction, 0, count)
	for i := uint64(0); i < count; i++ {
		raw, next, err := consumeLenPrefixed(rest)
		if err != nil {
			return nil, err
		}
		txn, err := decodeTxn(raw)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
		rest = next
	}
	return &protocol.Batch{
		HeaderBytes:     append([]byte(nil), header...),
		HeaderSignature: string(sig),
		Transactions:    txns,
	}, nil
}

func encodeBlock(blk *protocol.Block) []byte {
	var b []byte
	b = appendLenPrefixed(b, blk.HeaderBytes)
	b = appendLenPrefixed(b, []byte(blk.HeaderSignature))
	b = protowire.AppendVarint(b, uint64(len(blk.Batches)))
	for _, bt := range blk.Batches {
		b = appendLenPrefixed(b, encodeBatch(bt))
	}
	return b
}

func decodeBlock(buf []byte) (*protocol.Block, error) {
	header, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return nil, err
	}
	sig, rest, err := consumeLenPrefixed(rest)
	if err != nil {
		return nil, err
	}
	count, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return nil, fmt.Errorf("blockstore: bad block batch count: %w", protowire.ParseError(n))
	}
	rest = rest[n:]
	batches := make([]*protocol.Batch, 0, count)
	for i := uint64(0); i < count; i++ {
		raw, next, err := consumeLenPrefixed(rest)
		if err != nil {
			return nil, err
		}
		bt, err := decodeBatch(raw)
		if err != nil {
			return nil, err
		}
		batches = append(batches, bt)
		rest = next
	}
	return &protocol.Block{
		HeaderBytes:     append([]byte(nil), header...),
		HeaderSignature: string(sig),
		Batches:         batches,
	}, nil
}

func encodeReceipt(r *protocol.BlockReceipt) []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(r.BlockID))
	b = protowire.AppendVarint(b, uint64(len(r.TransactionReceipts)))
	for _, tr := range r.TransactionReceipts {
		b = appendLenPrefixed(b, encodeTxnReceipt(tr))
	}
	return b
}

func decodeReceipt(buf []byte) (*protocol.BlockReceipt, error) {
	blockID, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return nil, err
	}
	count, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return nil, fmt.Errorf("blockstore: bad receipt count: %w", protowire.ParseError(n))
	}
	rest = rest[n:]
	receipts := make([]*protocol.TransactionReceipt, 0, count)
	for i := uint64(0); i < count; i++ {
		raw, next, err := consumeLenPrefixed(rest)
		if err != nil {
			return nil, err
		}
		tr, err := decodeTxnReceipt(raw)
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, tr)
		rest = next
	}
	return &protocol.BlockReceipt{BlockID: string(blockID), TransactionReceipts: receipts}, nil
}

func encodeTxnReceipt(tr *protocol.TransactionReceipt) []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(tr.TransactionID))
	b = protowire.AppendVarint(b, uint64(tr.Status))
	b = appendLenPrefixed(b, []byte(tr.InvalidReason))
	b = protowire.AppendVarint(b, uint64(len(tr.StateChanges)))
	for _, sc := range tr.StateChanges {
		b = appendLenPrefixed(b, []byte(sc.Address))
		b = protowire.AppendVarint(b, uint64(sc.Kind))
		b = appendLenPrefixed(b, sc.Value)
	}
	return b
}

func decodeTxnReceipt(buf []byte) (*protocol.TransactionReceipt, error) {
	id, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return nil, err
	}
	status, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return nil, fmt.Errorf("blockstore: bad receipt status: %w", protowire.ParseError(n))
	}
	rest = rest[n:]
	reason, rest, err := consumeLenPrefixed(rest)
	if err != nil {
		return nil, err
	}
	count, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return nil, fmt.Errorf("blockstore: bad state change count: %w", protowire.ParseError(n))
	}
	rest = rest[n:]
	changes := make([]protocol.StateChange, 0, count)
	for i := uint64(0); i < count; i++ {
		addr, next, err := consumeLenPrefixed(rest)
		if err != nil {
			return nil, err
		}
		rest = next
		kind, n := protowire.ConsumeVarint(rest)
		if n < 0 {
			return nil, fmt.Errorf("blockstore: bad state change kind: %w", protowire.ParseError(n))
		}
		rest = rest[n:]
		val, next, err := consumeLenPrefixed(rest)
		if err != nil {
			return nil, err
		}
		rest = next
		changes = append(changes, protocol.StateChange{
			Address: protocol.Address(addr),
			Kind:    protocol.ChangeKind(kind),
			Value:   append([]byte(nil), val...),
		})
	}
	return &protocol.TransactionReceipt{
		TransactionID: string(id),
		Status:        protocol.TxnStatus(status),
		InvalidReason: string(reason),
		StateChanges:  changes,
	}, nil
}
