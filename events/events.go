// Package events implements the subscription fan-out for block-commit,
// state-delta, and transaction-receipt events (spec.md §6; SPEC_FULL.md
// §3.2 "Event"). Grounded on component.Endpoint's handler-registration
// pattern (one bus.Bus.Handle per message type), generalized from a
// request/response round-trip to a push model: subscribers register once
// via MsgSubscribeRequest, then receive a Frame per matching event sent
// with bus.Bus.Send rather than returned as a Request reply.
package events

import (
	"context"
	"strings"
	"sync"

	"github.com/luxfi/log"

	"github.com/hyperledger-archives/sawtooth-core-sub001/bus"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
)

// Type names an event category a subscriber can ask for.
type Type int

const (
	TypeBlockCommit Type = iota
	TypeStateDelta
	TypeTransactionReceipt
)

func parseType(s string) (Type, bool) {
	switch s {
	case "block_commit":
		return TypeBlockCommit, true
	case "state_delta":
		return TypeStateDelta, true
	case "transaction_receipt":
		return TypeTransactionReceipt, true
	default:
		return 0, false
	}
}

type subscription struct {
	identity        string
	types           map[Type]bool
	addressPrefixes []string
}

func (s *subscription) wants(t Type) bool { return s.types[t] }

func (s *subscription) matchesAddress(addr string) bool {
	if len(s.addressPrefixes) == 0 {
		return true
	}
	for _, p := range s.addressPrefixes {
		if strings.HasPrefix(addr, p) {
			return true
		}
	}
	return false
}

// Hub owns the subscriber set and publishes events as blocks commit
// (spec.md §5 "Events ... delivered in block commit order").
type Hub struct {
	bus bus.Bus
	log log.Logger

	mu   sync.Mutex
	subs map[string]*subscription
}

func NewHub(b bus.Bus, logger log.Logger) *Hub {
	h := &Hub{bus: b, log: logger, subs: map[string]*subscription{}}
	h.bus.Handle(MsgSubscribeRequest, h.handleSubscribe)
	h.bus.Handle(MsgUnsubscribeRequest, h.handleUnsubscribe)
	return h
}

func (h *Hub) handleSubscribe(_ context.Context, identity string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeSubscribeRequest(f.Content)
	if err != nil {
		return nil, err
	}
	types := map[Type]bool{}
	for _, s := range req.Types {
		if t, ok := parseType(s); ok {
			types[t] = true
		}
	}
	h.mu.Lock()
	h.subs[identity] = &subscription{identity: identity, types: types, addressPrefixes: req.AddressPrefixes}
	h.mu.Unlock()
	if h.log != nil {
		h.log.Info("event subscription added", "identity", identity, "types", req.Types)
	}
	return nil, nil
}

func (h *Hub) handleUnsubscribe(_ context.Context, identity string, _ bus.Frame) (*bus.Frame, error) {
	h.mu.Lock()
	delete(h.subs, identity)
	h.mu.Unlock()
	if h.log != nil {
		h.log.Info("event subscription removed", "identity", identity)
	}
	return nil, nil
}

// Publish fans out every event a newly committed block produces to its
// matching subscribers, in block-commit-then-slate order: one
// BlockCommitEvent, then one TransactionReceiptEvent and its
// StateDeltaEvents per transaction receipt in the block.
func (h *Hub) Publish(block *protocol.Block, receipt *protocol.BlockReceipt) {
	header, err := block.Header()
	if err != nil {
		if h.log != nil {
			h.log.Error("events: cannot publish block with unreadable header", "block_id", block.ID(), "error", err)
		}
		return
	}

	h.mu.Lock()
	subs := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	commit := BlockCommitEvent{
		BlockID:         block.ID(),
		BlockNum:        header.BlockNum,
		PreviousBlockID: header.PreviousBlockID,
		StateRootHash:   header.StateRootHash,
	}
	for _, s := range subs {
		if s.wants(TypeBlockCommit) {
			h.send(s.identity, MsgBlockCommitEvent, commit.Encode())
		}
	}

	for _, tr := range receipt.TransactionReceipts {
		rcpt := TransactionReceiptEvent{
			BlockID:       block.ID(),
			TransactionID: tr.TransactionID,
			Status:        int(tr.Status),
			InvalidReason: tr.InvalidReason,
		}
		for _, s := range subs {
			if s.wants(TypeTransactionReceipt) {
				h.send(s.identity, MsgTransactionReceiptEvent, rcpt.Encode())
			}
		}

		for _, change := range tr.StateChanges {
			delta := StateDeltaEvent{
				BlockID: block.ID(),
				Address: string(change.Address),
				Kind:    int(change.Kind),
				Value:   change.Value,
			}
			for _, s := range subs {
				if s.wants(TypeStateDelta) && s.matchesAddress(delta.Address) {
					h.send(s.identity, MsgStateDeltaEvent, delta.Encode())
				}
			}
		}
	}
}

func (h *Hub) send(identity, messageType string, content []byte) {
	if err := h.bus.Send(identity, bus.Frame{MessageType: messageType, Content: content}); err != nil && h.log != nil {
		h.log.Warn("events: failed to deliver event", "identity", identity, "message_type", messageType, "error", err)
	}
}
