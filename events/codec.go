package events

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire helpers mirror the other packages' local length-prefixed codec,
// independent per this repo's per-package codec convention.

func appendLenPrefixed(b []byte, v []byte) []byte {
	b = protowire.AppendVarint(b, uint64(len(v)))
	return append(b, v...)
}

func consumeLenPrefixed(buf []byte) (v, rest []byte, err error) {
	n, m := protowire.ConsumeVarint(buf)
	if m < 0 {
		return nil, nil, fmt.Errorf("events: bad length prefix: %w", protowire.ParseError(m))
	}
	buf = buf[m:]
	if uint64(len(buf)) < n {
		return nil, nil, fmt.Errorf("events: truncated message")
	}
	return buf[:n], buf[n:], nil
}

func appendStringList(b []byte, vs []string) []byte {
	b = protowire.AppendVarint(b, uint64(len(vs)))
	for _, v := range vs {
		b = appendLenPrefixed(b, []byte(v))
	}
	return b
}

func consumeStringList(buf []byte) ([]string, []byte, error) {
	count, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return nil, nil, fmt.Errorf("events: bad list count: %w", protowire.ParseError(n))
	}
	buf = buf[n:]
	out := make([]string, 0, count)
	for i := uint64(0); i < count; i++ {
		v, rest, err := consumeLenPrefixed(buf)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, string(v))
		buf = rest
	}
	return out, buf, nil
}

// Bus message types: SubscribeRequest/UnsubscribeRequest travel
// subscriber -> hub; the three Event types travel hub -> subscriber
// (spec.md §6 "subscriptions for block-commit, state-delta, and
// transaction-receipt events").
const (
	MsgSubscribeRequest        = "events.SubscribeRequest"
	MsgUnsubscribeRequest      = "events.UnsubscribeRequest"
	MsgBlockCommitEvent        = "events.BlockCommitEvent"
	MsgStateDeltaEvent         = "events.StateDeltaEvent"
	MsgTransactionReceiptEvent = "events.TransactionReceiptEvent"
)

// SubscribeRequest names which event types a subscriber wants, and
// (for state-delta) which address prefixes to filter to; an empty
// AddressPrefixes list means "every address".
type SubscribeRequest struct {
	Types           []string
	AddressPrefixes []string
}

func (m SubscribeRequest) Encode() []byte {
	var b []byte
	b = appendStringList(b, m.Types)
	b = appendStringList(b, m.AddressPrefixes)
	return b
}

func DecodeSubscribeRequest(buf []byte) (SubscribeRequest, error) {
	types, rest, err := consumeStringList(buf)
	if err != nil {
		return SubscribeRequest{}, err
	}
	prefixes, _, err := consumeStringList(rest)
	if err != nil {
		return SubscribeRequest{}, err
	}
	return SubscribeRequest{Types: types, AddressPrefixes: prefixes}, nil
}

// BlockCommitEvent announces a newly committed block (spec.md §5 "Events
// to subscribers are delivered in block commit order").
type BlockCommitEvent struct {
	BlockID         string
	BlockNum        uint64
	PreviousBlockID string
	StateRootHash   string
}

func (m BlockCommitEvent) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(m.BlockID))
	b = protowire.AppendVarint(b, m.BlockNum)
	b = appendLenPrefixed(b, []byte(m.PreviousBlockID))
	b = appendLenPrefixed(b, []byte(m.StateRootHash))
	return b
}

func DecodeBlockCommitEvent(buf []byte) (BlockCommitEvent, error) {
	id, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return BlockCommitEvent{}, err
	}
	num, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return BlockCommitEvent{}, fmt.Errorf("events: bad block_num: %w", protowire.ParseError(n))
	}
	rest = rest[n:]
	prev, rest, err := consumeLenPrefixed(rest)
	if err != nil {
		return BlockCommitEvent{}, err
	}
	root, _, err := consumeLenPrefixed(rest)
	if err != nil {
		return BlockCommitEvent{}, err
	}
	return BlockCommitEvent{BlockID: string(id), BlockNum: num, PreviousBlockID: string(prev), StateRootHash: string(root)}, nil
}

// StateDeltaEvent carries one changed address from a committed block's
// receipts (spec.md §3 "Block receipt", state changes).
type StateDeltaEvent struct {
	BlockID string
	Address string
	Kind    int
	Value   []byte
}

func (m StateDeltaEvent) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(m.BlockID))
	b = appendLenPrefixed(b, []byte(m.Address))
	b = protowire.AppendVarint(b, uint64(m.Kind))
	b = appendLenPrefixed(b, m.Value)
	return b
}

func DecodeStateDeltaEvent(buf []byte) (StateDeltaEvent, error) {
	blockID, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return StateDeltaEvent{}, err
	}
	addr, rest, err := consumeLenPrefixed(rest)
	if err != nil {
		return StateDeltaEvent{}, err
	}
	kind, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return StateDeltaEvent{}, fmt.Errorf("events: bad kind: %w", protowire.ParseError(n))
	}
	rest = rest[n:]
	value, _, err := consumeLenPrefixed(rest)
	if err != nil {
		return StateDeltaEvent{}, err
	}
	return StateDeltaEvent{BlockID: string(blockID), Address: string(addr), Kind: int(kind), Value: append([]byte(nil), value...)}, nil
}

// TransactionReceiptEvent carries one transaction's outcome from a
// committed block.
type TransactionReceiptEvent struct {
	BlockID       string
	TransactionID string
	Status        int
	InvalidReason string
}

func (m TransactionReceiptEvent) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(m.BlockID))
	b = appendLenPrefixed(b, []byte(m.TransactionID))
	b = protowire.AppendVarint(b, uint64(m.Status))
	b = appendLenPrefixed(b, []byte(m.InvalidReason))
	return b
}

func DecodeTransactionReceiptEvent(buf []byte) (TransactionReceiptEvent, error) {
	blockID, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return TransactionReceiptEvent{}, err
	}
	txnID, rest, err := consumeLenPrefixed(rest)
	if err != nil {
		return TransactionReceiptEvent{}, err
	}
	status, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return TransactionReceiptEvent{}, fmt.Errorf("events: bad status: %w", protowire.ParseError(n))
	}
	rest = rest[n:]
	reason, _, err := consumeLenPrefixed(rest)
	if err != nil {
		return TransactionReceiptEvent{}, err
	}
	return TransactionReceiptEvent{BlockID: string(blockID), TransactionID: string(txnID), Status: int(status), InvalidReason: string(reason)}, nil
}
