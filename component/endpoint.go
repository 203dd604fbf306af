package component

import (
	"context"

	"github.com/luxfi/log"

	"github.com/hyperledger-archives/sawtooth-core-sub001/bus"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
)

// Message type names carried in a bus.Frame's MessageType field.
const (
	MsgRegisterRequest      = "RegisterRequest"
	MsgGetStateRequest      = "GetStateRequest"
	MsgSetStateRequest      = "SetStateRequest"
	MsgDeleteStateRequest   = "DeleteStateRequest"
	MsgAddEventRequest      = "AddEventRequest"
	MsgAddReceiptDataRequest = "AddReceiptDataRequest"
)

// Endpoint is C5: the bound bus.Bus processors, the consensus engine, and
// the REST API all connect to. It registers handlers for every context
// round-trip a processor may make, and owns the ProcessorRegistry the
// executor (C9) consults to dispatch work.
type Endpoint struct {
	Bus        bus.Bus
	Processors *ProcessorRegistry
	Contexts   *ContextTable
	log        log.Logger
}

func NewEndpoint(b bus.Bus, logger log.Logger) *Endpoint {
	e := &Endpoint{
		Bus:        b,
		Processors: NewProcessorRegistry(),
		Contexts:   NewContextTable(),
		log:        logger,
	}
	e.registerHandlers()
	return e
}

func (e *Endpoint) registerHandlers() {
	e.Bus.Handle(MsgRegisterRequest, e.handleRegister)
	e.Bus.Handle(MsgGetStateRequest, e.handleGetState)
	e.Bus.Handle(MsgSetStateRequest, e.handleSetState)
	e.Bus.Handle(MsgDeleteStateRequest, e.handleDeleteState)
	e.Bus.Handle(MsgAddEventRequest, e.handleAddEvent)
	e.Bus.Handle(MsgAddReceiptDataRequest, e.handleAddReceiptData)
}

func (e *Endpoint) handleRegister(_ context.Context, identity string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeRegisterRequest(f.Content)
	if err != nil {
		return nil, err
	}
	e.Processors.Register(&Registration{
		Identity:      identity,
		FamilyName:    req.FamilyName,
		FamilyVersion: req.FamilyVersion,
		Namespaces:    req.Namespaces,
		MaxOccupancy:  req.MaxOccupancy,
	})
	if e.log != nil {
		e.log.Info("processor registered", "family_name", req.FamilyName, "family_version", req.FamilyVersion, "identity", identity)
	}
	return nil, nil
}

func (e *Endpoint) handleGetState(_ context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeGetStateRequest(f.Content)
	if err != nil {
		return nil, err
	}
	txnCtx, err := e.Contexts.get(req.ContextID)
	if err != nil {
		return nil, err
	}
	addrs := make([]protocol.Address, len(req.Addresses))
	for i, a := range req.Addresses {
		addrs[i] = protocol.Address(a)
	}
	values, err := txnCtx.GetState(addrs)
	if err != nil {
		return nil, err
	}
	resp := GetStateResponse{}
	for _, a := range req.Addresses {
		if v, ok := values[protocol.Address(a)]; ok {
			resp.Entries = append(resp.Entries, stateEntry{Address: a, Value: v})
		}
	}
	return &bus.Frame{MessageType: MsgGetStateRequest, Content: resp.Encode()}, nil
}

func (e *Endpoint) handleSetState(_ context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeSetStateRequest(f.Content)
	if err != nil {
		return nil, err
	}
	txnCtx, err := e.Contexts.get(req.ContextID)
	if err != nil {
		return nil, err
	}
	entries := make(map[protocol.Address][]byte, len(req.Entries))
	for _, entry := range req.Entries {
		entries[protocol.Address(entry.Address)] = entry.Value
	}
	if err := txnCtx.SetState(entries); err != nil {
		return nil, err
	}
	return &bus.Frame{MessageType: MsgSetStateRequest}, nil
}

func (e *Endpoint) handleDeleteState(_ context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeDeleteStateRequest(f.Content)
	if err != nil {
		return nil, err
	}
	txnCtx, err := e.Contexts.get(req.ContextID)
	if err != nil {
		return nil, err
	}
	addrs := make([]protocol.Address, len(req.Addresses))
	for i, a := range req.Addresses {
		addrs[i] = protocol.Address(a)
	}
	if err := txnCtx.DeleteState(addrs); err != nil {
		return nil, err
	}
	return &bus.Frame{MessageType: MsgDeleteStateRequest}, nil
}

func (e *Endpoint) handleAddEvent(_ context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeAddEventRequest(f.Content)
	if err != nil {
		return nil, err
	}
	txnCtx, err := e.Contexts.get(req.ContextID)
	if err != nil {
		return nil, err
	}
	txnCtx.AddEvent(req.Type, req.Attributes, req.Data)
	return &bus.Frame{MessageType: MsgAddEventRequest}, nil
}

func (e *Endpoint) handleAddReceiptData(_ context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeAddReceiptDataRequest(f.Content)
	if err != nil {
		return nil, err
	}
	txnCtx, err := e.Contexts.get(req.ContextID)
	if err != nil {
		return nil, err
	}
	txnCtx.AddReceiptData(req.Data)
	return &bus.Frame{MessageType: MsgAddReceiptDataRequest}, nil
}
