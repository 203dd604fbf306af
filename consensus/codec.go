package consensus

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire helpers mirror component/codec.go's length-prefixed encoding,
// independent of that package per this repo's per-package codec convention.

func appendLenPrefixed(b []byte, v []byte) []byte {
	b = protowire.AppendVarint(b, uint64(len(v)))
	return append(b, v...)
}

func consumeLenPrefixed(buf []byte) (v, rest []byte, err error) {
	n, m := protowire.ConsumeVarint(buf)
	if m < 0 {
		return nil, nil, fmt.Errorf("consensus: bad length prefix: %w", protowire.ParseError(m))
	}
	buf = buf[m:]
	if uint64(len(buf)) < n {
		return nil, nil, fmt.Errorf("consensus: truncated message")
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
		return nil, nil, fmt.Errorf("consensus: bad list count: %w", protowire.ParseError(n))
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

// Validator -> engine message types (spec.md §4.7).
const (
	MsgStartupInfo     = "consensus.StartupInfo"
	MsgBlockNew        = "consensus.BlockNew"
	MsgBlockValid      = "consensus.BlockValid"
	MsgBlockInvalid    = "consensus.BlockInvalid"
	MsgBlockCommit     = "consensus.BlockCommit"
	MsgPeerConnected   = "consensus.PeerConnected"
	MsgPeerDisconnected = "consensus.PeerDisconnected"
	MsgPeerMessage     = "consensus.PeerMessage"
)

// Engine -> validator message types (spec.md §4.7).
const (
	MsgInitializeBlock = "consensus.InitializeBlock"
	MsgSummarizeBlock  = "consensus.SummarizeBlock"
	MsgFinalizeBlock   = "consensus.FinalizeBlock"
	MsgCancelBlock     = "consensus.CancelBlock"
	MsgCheckBlocks     = "consensus.CheckBlocks"
	MsgCommitBlock     = "consensus.CommitBlock"
	MsgIgnoreBlock     = "consensus.IgnoreBlock"
	MsgFailBlock       = "consensus.FailBlock"
	MsgSendTo          = "consensus.SendTo"
	MsgBroadcast       = "consensus.Broadcast"
)

// StartupInfo carries the validator's state at engine startup.
type StartupInfo struct {
	ChainHead      string
	Peers          []string
	LocalPeerInfo  string
}

func (m StartupInfo) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(m.ChainHead))
	b = appendStringList(b, m.Peers)
	b = appendLenPrefixed(b, []byte(m.LocalPeerInfo))
	return b
}

func DecodeStartupInfo(buf []byte) (StartupInfo, error) {
	chainHead, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return StartupInfo{}, err
	}
	peers, rest, err := consumeStringList(rest)
	if err != nil {
		return StartupInfo{}, err
	}
	local, _, err := consumeLenPrefixed(rest)
	if err != nil {
		return StartupInfo{}, err
	}
	return StartupInfo{ChainHead: string(chainHead), Peers: peers, LocalPeerInfo: string(local)}, nil
}

// BlockNew announces a just-validated candidate along with a batch-count
// summary (spec.md §4.7: "block_header, batches_summary").
type BlockNew struct {
	BlockHeader    []byte
	BatchesSummary int
}

func (m BlockNew) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, m.BlockHeader)
	b = protowire.AppendVarint(b, uint64(m.BatchesSummary))
	return b
}

func DecodeBlockNew(buf []byte) (BlockNew, error) {
	header, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return BlockNew{}, err
	}
	count, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return BlockNew{}, fmt.Errorf("consensus: bad batches_summary: %w", protowire.ParseError(n))
	}
	return BlockNew{BlockHeader: append([]byte(nil), header...), BatchesSummary: int(count)}, nil
}

// BlockID wraps a single block id, the shape shared by BlockValid,
// BlockCommit, CommitBlock, IgnoreBlock, FailBlock.
type BlockID struct{ BlockID string }

func (m BlockID) Encode() []byte { return appendLenPrefixed(nil, []byte(m.BlockID)) }

func DecodeBlockID(buf []byte) (BlockID, error) {
	id, _, err := consumeLenPrefixed(buf)
	if err != nil {
		return BlockID{}, err
	}
	return BlockID{BlockID: string(id)}, nil
}

// BlockInvalid carries the stable InvalidBlock reason category (spec.md
// §4.4) alongside the rejected block id.
type BlockInvalid struct {
	BlockID string
	Reason  string
}

func (m BlockInvalid) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(m.BlockID))
	b = appendLenPrefixed(b, []byte(m.Reason))
	return b
}

func DecodeBlockInvalid(buf []byte) (BlockInvalid, error) {
	id, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return BlockInvalid{}, err
	}
	reason, _, err := consumeLenPrefixed(rest)
	if err != nil {
		return BlockInvalid{}, err
	}
	return BlockInvalid{BlockID: string(id), Reason: string(reason)}, nil
}

// PeerID wraps a single peer identity, the shape shared by PeerConnected and
// PeerDisconnected.
type PeerID struct{ PeerID string }

func (m PeerID) Encode() []byte { return appendLenPrefixed(nil, []byte(m.PeerID)) }

func DecodePeerID(buf []byte) (PeerID, error) {
	id, _, err := consumeLenPrefixed(buf)
	if err != nil {
		return PeerID{}, err
	}
	return PeerID{PeerID: string(id)}, nil
}

// PeerMessage/SendTo/Broadcast share the {peer_id, payload} or {payload}
// shape for opaque consensus gossip passed through the validator.
type PeerPayload struct {
	PeerID  string
	Payload []byte
}

func (m PeerPayload) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(m.PeerID))
	b = appendLenPrefixed(b, m.Payload)
	return b
}

func DecodePeerPayload(buf []byte) (PeerPayload, error) {
	id, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return PeerPayload{}, err
	}
	payload, _, err := consumeLenPrefixed(rest)
	if err != nil {
		return PeerPayload{}, err
	}
	return PeerPayload{PeerID: string(id), Payload: append([]byte(nil), payload...)}, nil
}

type Broadcast struct{ Payload []byte }

func (m Broadcast) Encode() []byte { return appendLenPrefixed(nil, m.Payload) }

func DecodeBroadcast(buf []byte) (Broadcast, error) {
	payload, _, err := consumeLenPrefixed(buf)
	if err != nil {
		return Broadcast{}, err
	}
	return Broadcast{Payload: append([]byte(nil), payload...)}, nil
}

// InitializeBlock requests a new candidate built atop previous_block_id.
type InitializeBlock struct{ PreviousBlockID string }

func (m InitializeBlock) Encode() []byte { return appendLenPrefixed(nil, []byte(m.PreviousBlockID)) }

func DecodeInitializeBlock(buf []byte) (InitializeBlock, error) {
	id, _, err := consumeLenPrefixed(buf)
	if err != nil {
		return InitializeBlock{}, err
	}
	return InitializeBlock{PreviousBlockID: string(id)}, nil
}

// SummarizeBlockResponse answers SummarizeBlock with the candidate's current
// state hash and contained batch count.
type SummarizeBlockResponse struct {
	StateHash  string
	BatchCount int
}

func (m SummarizeBlockResponse) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(m.StateHash))
	b = protowire.AppendVarint(b, uint64(m.BatchCount))
	return b
}

func DecodeSummarizeBlockResponse(buf []byte) (SummarizeBlockResponse, error) {
	hash, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return SummarizeBlockResponse{}, err
	}
	count, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return SummarizeBlockResponse{}, fmt.Errorf("consensus: bad batch_count: %w", protowire.ParseError(n))
	}
	return SummarizeBlockResponse{StateHash: string(hash), BatchCount: int(count)}, nil
}

// FinalizeBlock supplies engine-produced consensus data for the candidate.
type FinalizeBlock struct{ ConsensusData []byte }

func (m FinalizeBlock) Encode() []byte { return appendLenPrefixed(nil, m.ConsensusData) }

func DecodeFinalizeBlock(buf []byte) (FinalizeBlock, error) {
	data, _, err := consumeLenPrefixed(buf)
	if err != nil {
		return FinalizeBlock{}, err
	}
	return FinalizeBlock{ConsensusData: append([]byte(nil), data...)}, nil
}

// FinalizeBlockResponse returns the produced candidate's block id.
type FinalizeBlockResponse struct{ BlockID string }

func (m FinalizeBlockResponse) Encode() []byte { return appendLenPrefixed(nil, []byte(m.BlockID)) }

func DecodeFinalizeBlockResponse(buf []byte) (FinalizeBlockResponse, error) {
	id, _, err := consumeLenPrefixed(buf)
	if err != nil {
		return FinalizeBlockResponse{}, err
	}
	return FinalizeBlockResponse{BlockID: string(id)}, nil
}

// CheckBlocks triggers C10 validation of the named block ids.
type CheckBlocks struct{ BlockIDs []string }

func (m CheckBlocks) Encode() []byte { return appendStringList(nil, m.BlockIDs) }

func DecodeCheckBlocks(buf []byte) (CheckBlocks, error) {
	ids, _, err := consumeStringList(buf)
	if err != nil {
		return CheckBlocks{}, err
	}
	return CheckBlocks{BlockIDs: ids}, nil
}
