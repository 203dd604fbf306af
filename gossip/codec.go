package gossip

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire messages below are C7's pull-by-id requests/responses (spec.md
// §4.8 "Missing data is pulled by id"), carried inside a bus.Frame's
// Content field. Flooded new-block/new-batch announcements reuse
// protocol.Block/Batch's own Encode/Decode directly and need no envelope
// here.

func appendLenPrefixed(b []byte, v []byte) []byte {
	b = protowire.AppendVarint(b, uint64(len(v)))
	return append(b, v...)
}

func consumeLenPrefixed(buf []byte) (v, rest []byte, err error) {
	n, m := protowire.ConsumeVarint(buf)
	if m < 0 {
		return nil, nil, fmt.Errorf("gossip: bad length prefix: %w", protowire.ParseError(m))
	}
	buf = buf[m:]
	if uint64(len(buf)) < n {
		return nil, nil, fmt.Errorf("gossip: truncated message")
	}
	return buf[:n], buf[n:], nil
}

// GossipBlockRequest asks a peer for a block by id.
type GossipBlockRequest struct {
	BlockID string
}

func (r GossipBlockRequest) Encode() []byte { return appendLenPrefixed(nil, []byte(r.BlockID)) }

func DecodeGossipBlockRequest(buf []byte) (GossipBlockRequest, error) {
	id, _, err := consumeLenPrefixed(buf)
	if err != nil {
		return GossipBlockRequest{}, err
	}
	return GossipBlockRequest{BlockID: string(id)}, nil
}

// GossipBlockResponse answers a GossipBlockRequest; Found is false for a
// negative acknowledgement (spec.md §4.8 "responses may negatively
// acknowledge").
type GossipBlockResponse struct {
	Found      bool
	BlockBytes []byte
}

func (r GossipBlockResponse) Encode() []byte {
	var b []byte
	if r.Found {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	return appendLenPrefixed(b, r.BlockBytes)
}

func DecodeGossipBlockResponse(buf []byte) (GossipBlockResponse, error) {
	if len(buf) < 1 {
		return GossipBlockResponse{}, fmt.Errorf("gossip: truncated block response")
	}
	found := buf[0] == 1
	data, _, err := consumeLenPrefixed(buf[1:])
	if err != nil {
		return GossipBlockResponse{}, err
	}
	return GossipBlockResponse{Found: found, BlockBytes: append([]byte(nil), data...)}, nil
}

// GossipBatchByBatchIdRequest asks a peer for a batch by batch id.
type GossipBatchByBatchIdRequest struct {
	BatchID string
}

func (r GossipBatchByBatchIdRequest) Encode() []byte { return appendLenPrefixed(nil, []byte(r.BatchID)) }

func DecodeGossipBatchByBatchIdRequest(buf []byte) (GossipBatchByBatchIdRequest, error) {
	id, _, err := consumeLenPrefixed(buf)
	if err != nil {
		return GossipBatchByBatchIdRequest{}, err
	}
	return GossipBatchByBatchIdRequest{BatchID: string(id)}, nil
}

// GossipBatchByTransactionIdRequest asks a peer for the batch containing a
// given transaction id.
type GossipBatchByTransactionIdRequest struct {
	TransactionID string
}

func (r GossipBatchByTransactionIdRequest) Encode() []byte {
	return appendLenPrefixed(nil, []byte(r.TransactionID))
}

func DecodeGossipBatchByTransactionIdRequest(buf []byte) (GossipBatchByTransactionIdRequest, error) {
	id, _, err := consumeLenPrefixed(buf)
	if err != nil {
		return GossipBatchByTransactionIdRequest{}, err
	}
	return GossipBatchByTransactionIdRequest{TransactionID: string(id)}, nil
}

// GossipBatchResponse answers either batch pull request.
type GossipBatchResponse struct {
	Found      bool
	BatchBytes []byte
}

func (r GossipBatchResponse) Encode() []byte {
	var b []byte
	if r.Found {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	return appendLenPrefixed(b, r.BatchBytes)
}

func DecodeGossipBatchResponse(buf []byte) (GossipBatchResponse, error) {
	if len(buf) < 1 {
		return GossipBatchResponse{}, fmt.Errorf("gossip: truncated batch response")
	}
	found := buf[0] == 1
	data, _, err := consumeLenPrefixed(buf[1:])
	if err != nil {
		return GossipBatchResponse{}, err
	}
	return GossipBatchResponse{Found: found, BatchBytes: append([]byte(nil), data...)}, nil
}
