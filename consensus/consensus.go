// Package consensus implements the engine-agnostic consensus interface
// (spec.md §4.7, C13): a narrow message protocol carried over the component
// bus so a consensus engine can run out-of-process, the same way C9
// transaction processors do. Grounded on block.ChainVM's
// Initialize/BuildBlock/ParseBlock/SetPreference/LastAccepted, generalized
// from an in-process VM interface to an out-of-process engine reached
// through bus.Bus requests and the handler-registration pattern
// component.Endpoint already establishes for processors.
package consensus

import (
	"context"
	"fmt"

	"github.com/luxfi/log"

	"github.com/hyperledger-archives/sawtooth-core-sub001/bus"
)

// EngineLink is the validator -> engine half of the protocol: one-way
// notifications the journal emits as chain state evolves. The ordering
// guarantee in spec.md §4.7 ("never commits a block without an explicit
// CommitBlock ... except genesis") is the caller's responsibility; EngineLink
// only transports.
type EngineLink interface {
	StartupInfo(ctx context.Context, info StartupInfo) error
	BlockNew(ctx context.Context, blockHeader []byte, batchesSummary int) error
	BlockValid(ctx context.Context, blockID string) error
	BlockInvalid(ctx context.Context, blockID, reason string) error
	BlockCommit(ctx context.Context, blockID string) error
	PeerConnected(ctx context.Context, peerID string) error
	PeerDisconnected(ctx context.Context, peerID string) error
	PeerMessage(ctx context.Context, peerID string, payload []byte) error
}

// BusEngineLink sends EngineLink notifications to the engine's registered
// bus identity.
type BusEngineLink struct {
	Bus        bus.Bus
	EngineID   string
}

func NewBusEngineLink(b bus.Bus, engineID string) *BusEngineLink {
	return &BusEngineLink{Bus: b, EngineID: engineID}
}

func (l *BusEngineLink) send(messageType string, content []byte) error {
	return l.Bus.Send(l.EngineID, bus.Frame{MessageType: messageType, Content: content})
}

func (l *BusEngineLink) StartupInfo(_ context.Context, info StartupInfo) error {
	return l.send(MsgStartupInfo, info.Encode())
}

func (l *BusEngineLink) BlockNew(_ context.Context, blockHeader []byte, batchesSummary int) error {
	return l.send(MsgBlockNew, BlockNew{BlockHeader: blockHeader, BatchesSummary: batchesSummary}.Encode())
}

func (l *BusEngineLink) BlockValid(_ context.Context, blockID string) error {
	return l.send(MsgBlockValid, BlockID{BlockID: blockID}.Encode())
}

func (l *BusEngineLink) BlockInvalid(_ context.Context, blockID, reason string) error {
	return l.send(MsgBlockInvalid, BlockInvalid{BlockID: blockID, Reason: reason}.Encode())
}

func (l *BusEngineLink) BlockCommit(_ context.Context, blockID string) error {
	return l.send(MsgBlockCommit, BlockID{BlockID: blockID}.Encode())
}

func (l *BusEngineLink) PeerConnected(_ context.Context, peerID string) error {
	return l.send(MsgPeerConnected, PeerID{PeerID: peerID}.Encode())
}

func (l *BusEngineLink) PeerDisconnected(_ context.Context, peerID string) error {
	return l.send(MsgPeerDisconnected, PeerID{PeerID: peerID}.Encode())
}

func (l *BusEngineLink) PeerMessage(_ context.Context, peerID string, payload []byte) error {
	return l.send(MsgPeerMessage, PeerPayload{PeerID: peerID, Payload: payload}.Encode())
}

// Validator is the engine -> validator half of the protocol: requests the
// engine drives block production and chain validation with. The journal
// package implements this against its publisher and block validator.
type Validator interface {
	InitializeBlock(ctx context.Context, previousBlockID string) error
	SummarizeBlock(ctx context.Context) (stateHash string, batchCount int, err error)
	FinalizeBlock(ctx context.Context, consensusData []byte) (blockID string, err error)
	CancelBlock(ctx context.Context) error
	CheckBlocks(ctx context.Context, blockIDs []string) error
	CommitBlock(ctx context.Context, blockID string) error
	IgnoreBlock(ctx context.Context, blockID string) error
	FailBlock(ctx context.Context, blockID string) error
	SendTo(ctx context.Context, peerID string, payload []byte) error
	Broadcast(ctx context.Context, payload []byte) error
}

// Service registers bus handlers for every engine -> validator message type,
// dispatching each to a Validator implementation. Mirrors
// component.Endpoint's registerHandlers shape.
type Service struct {
	bus       bus.Bus
	validator Validator
	log       log.Logger
}

func NewService(b bus.Bus, v Validator, logger log.Logger) *Service {
	s := &Service{bus: b, validator: v, log: logger}
	s.registerHandlers()
	return s
}

func (s *Service) registerHandlers() {
	s.bus.Handle(MsgInitializeBlock, s.handleInitializeBlock)
	s.bus.Handle(MsgSummarizeBlock, s.handleSummarizeBlock)
	s.bus.Handle(MsgFinalizeBlock, s.handleFinalizeBlock)
	s.bus.Handle(MsgCancelBlock, s.handleCancelBlock)
	s.bus.Handle(MsgCheckBlocks, s.handleCheckBlocks)
	s.bus.Handle(MsgCommitBlock, s.handleCommitBlock)
	s.bus.Handle(MsgIgnoreBlock, s.handleIgnoreBlock)
	s.bus.Handle(MsgFailBlock, s.handleFailBlock)
	s.bus.Handle(MsgSendTo, s.handleSendTo)
	s.bus.Handle(MsgBroadcast, s.handleBroadcast)
}

func (s *Service) handleInitializeBlock(ctx context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeInitializeBlock(f.Content)
	if err != nil {
		return nil, err
	}
	if err := s.validator.InitializeBlock(ctx, req.PreviousBlockID); err != nil {
		return nil, err
	}
	return &bus.Frame{MessageType: MsgInitializeBlock}, nil
}

func (s *Service) handleSummarizeBlock(ctx context.Context, _ string, _ bus.Frame) (*bus.Frame, error) {
	hash, count, err := s.validator.SummarizeBlock(ctx)
	if err != nil {
		return nil, err
	}
	resp := SummarizeBlockResponse{StateHash: hash, BatchCount: count}
	return &bus.Frame{MessageType: MsgSummarizeBlock, Content: resp.Encode()}, nil
}

func (s *Service) handleFinalizeBlock(ctx context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeFinalizeBlock(f.Content)
	if err != nil {
		return nil, err
	}
	blockID, err := s.validator.FinalizeBlock(ctx, req.ConsensusData)
	if err != nil {
		return nil, err
	}
	resp := FinalizeBlockResponse{BlockID: blockID}
	return &bus.Frame{MessageType: MsgFinalizeBlock, Content: resp.Encode()}, nil
}

func (s *Service) handleCancelBlock(ctx context.Context, _ string, _ bus.Frame) (*bus.Frame, error) {
	return nil, s.validator.CancelBlock(ctx)
}

func (s *Service) handleCheckBlocks(ctx context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeCheckBlocks(f.Content)
	if err != nil {
		return nil, err
	}
	return nil, s.validator.CheckBlocks(ctx, req.BlockIDs)
}

func (s *Service) handleCommitBlock(ctx context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeBlockID(f.Content)
	if err != nil {
		return nil, err
	}
	return nil, s.validator.CommitBlock(ctx, req.BlockID)
}

func (s *Service) handleIgnoreBlock(ctx context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeBlockID(f.Content)
	if err != nil {
		return nil, err
	}
	return nil, s.validator.IgnoreBlock(ctx, req.BlockID)
}

func (s *Service) handleFailBlock(ctx context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeBlockID(f.Content)
	if err != nil {
		return nil, err
	}
	return nil, s.validator.FailBlock(ctx, req.BlockID)
}

func (s *Service) handleSendTo(ctx context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodePeerPayload(f.Content)
	if err != nil {
		return nil, err
	}
	return nil, s.validator.SendTo(ctx, req.PeerID, req.Payload)
}

func (s *Service) handleBroadcast(ctx context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeBroadcast(f.Content)
	if err != nil {
		return nil, err
	}
	return nil, s.validator.Broadcast(ctx, req.Payload)
}

// ForkChoice is the decision returned from asking the engine to arbitrate
// between the current head and a candidate chain (spec.md §4.6: "engine
// returns KeepCurrent or SwitchTo(B)"). It is not one of the messages above,
// and nothing in this repository produces or consumes one: the journal's
// chain controller asks no fork-choice question and moves chain_head only
// when the engine sends CommitBlock.
type ForkChoiceDecision int

const (
	KeepCurrent ForkChoiceDecision = iota
	SwitchToCandidate
)

func (d ForkChoiceDecision) String() string {
	switch d {
	case KeepCurrent:
		return "KeepCurrent"
	case SwitchToCandidate:
		return "SwitchToCandidate"
	default:
		return fmt.Sprintf("ForkChoiceDecision(%d)", int(d))
	}
}
