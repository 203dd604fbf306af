// Package protocol implements the validator's wire data model: Transaction,
// Batch, Block, their headers, and receipts (spec.md §3, §6). Headers are
// encoded with google.golang.org/protobuf's low-level protowire encoder
// directly (no generated .pb.go), grounded on the hand-rolled message
// layout in proto/pb/p2p and the length-prefixed framing spec.md §6
// requires.
package protocol

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers shared by the three header messages. Each header type's
// Encode method shows which of these it uses.
const (
	fieldFamilyName        protowire.Number = 1
	fieldFamilyVersion     protowire.Number = 2
	fieldInputs            protowire.Number = 3
	fieldOutputs           protowire.Number = 4
	fieldDependencies      protowire.Number = 5
	fieldNonce             protowire.Number = 6
	fieldSignerPublicKey   protowire.Number = 7
	fieldBatcherPublicKey  protowire.Number = 8
	fieldPayloadSha512     protowire.Number = 9

	fieldTransactionIDs protowire.Number = 10

	fieldBlockNum         protowire.Number = 11
	fieldPreviousBlockID  protowire.Number = 12
	fieldBatchIDs         protowire.Number = 13
	fieldStateRootHash    protowire.Number = 14
	fieldConsensus        protowire.Number = 15
)

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringRepeated(b []byte, num protowire.Number, vs []string) []byte {
	for _, v := range vs {
		b = appendString(b, num, v)
	}
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// fieldReader walks a protowire-encoded message, dispatching each field to
// cb. Unknown fields are skipped, matching protobuf's forward-compatibility
// rule.
func fieldReader(buf []byte, cb func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return fmt.Errorf("protocol: bad tag: %w", protowire.ParseError(n))
		}
		buf = buf[n:]

		var val []byte
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(buf)
			if n < 0 {
				return fmt.Errorf("protocol: bad varint: %w", protowire.ParseError(n))
			}
			val = protowire.AppendVarint(nil, v)
			buf = buf[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return fmt.Errorf("protocol: bad bytes field: %w", protowire.ParseError(n))
			}
			val = v
			buf = buf[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, buf)
			if n < 0 {
				return fmt.Errorf("protocol: bad field: %w", protowire.ParseError(n))
			}
			buf = buf[n:]
			continue
		}
		if err := cb(num, typ, val); err != nil {
			return err
		}
	}
	return nil
}

func bytesToString(v []byte) string { return string(v) }

func bytesToVarint(v []byte) uint64 {
	n, _ := protowire.ConsumeVarint(v)
	return n
}
