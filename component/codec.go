package component

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// The wire messages below are the component endpoint's C4 payloads,
// carried inside a bus.Frame's Content field (MessageType names the kind).

func appendLenPrefixed(b []byte, v []byte) []byte {
	b = protowire.AppendVarint(b, uint64(len(v)))
	return append(b, v...)
}

func consumeLenPrefixed(buf []byte) (v, rest []byte, err error) {
	n, m := protowire.ConsumeVarint(buf)
	if m < 0 {
		return nil, nil, fmt.Errorf("component: bad length prefix: %w", protowire.ParseError(m))
	}
	buf = buf[m:]
	if uint64(len(buf)) < n {
		return nil, nil, fmt.Errorf("component: truncated message")
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
		return nil, nil, fmt.Errorf("component: bad list count: %w", protowire.ParseError(n))
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

// RegisterRequest is sent once by a processor on connecting (spec.md §4.3).
type RegisterRequest struct {
	FamilyName    string
	FamilyVersion string
	Namespaces    []string
	MaxOccupancy  int
}

func (r RegisterRequest) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(r.FamilyName))
	b = appendLenPrefixed(b, []byte(r.FamilyVersion))
	b = appendStringList(b, r.Namespaces)
	b = protowire.AppendVarint(b, uint64(r.MaxOccupancy))
	return b
}

func DecodeRegisterRequest(buf []byte) (RegisterRequest, error) {
	name, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return RegisterRequest{}, err
	}
	version, rest, err := consumeLenPrefixed(rest)
	if err != nil {
		return RegisterRequest{}, err
	}
	namespaces, rest, err := consumeStringList(rest)
	if err != nil {
		return RegisterRequest{}, err
	}
	occ, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return RegisterRequest{}, fmt.Errorf("component: bad max_occupancy: %w", protowire.ParseError(n))
	}
	return RegisterRequest{FamilyName: string(name), FamilyVersion: string(version), Namespaces: namespaces, MaxOccupancy: int(occ)}, nil
}

// ProcessRequest is sent to a matching processor for each transaction
// (spec.md §4.3).
type ProcessRequest struct {
	ContextID string
	Header    []byte
	Payload   []byte
	Signature string
}

func (r ProcessRequest) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(r.ContextID))
	b = appendLenPrefixed(b, r.Header)
	b = appendLenPrefixed(b, r.Payload)
	b = appendLenPrefixed(b, []byte(r.Signature))
	return b
}

func DecodeProcessRequest(buf []byte) (ProcessRequest, error) {
	contextID, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return ProcessRequest{}, err
	}
	header, rest, err := consumeLenPrefixed(rest)
	if err != nil {
		return ProcessRequest{}, err
	}
	payload, rest, err := consumeLenPrefixed(rest)
	if err != nil {
		return ProcessRequest{}, err
	}
	sig, _, err := consumeLenPrefixed(rest)
	if err != nil {
		return ProcessRequest{}, err
	}
	return ProcessRequest{ContextID: string(contextID), Header: append([]byte(nil), header...), Payload: append([]byte(nil), payload...), Signature: string(sig)}, nil
}

// ProcessResponseStatus mirrors spec.md §4.3's OK|INVALID_TRANSACTION|INTERNAL_ERROR.
type ProcessResponseStatus int

const (
	StatusOK ProcessResponseStatus = iota
	StatusInvalidTransaction
	StatusInternalError
)

// ProcessResponse is the processor's reply to a ProcessRequest.
type ProcessResponse struct {
	Status  ProcessResponseStatus
	Message string
}

func (r ProcessResponse) Encode() []byte {
	var b []byte
	b = protowire.AppendVarint(b, uint64(r.Status))
	b = appendLenPrefixed(b, []byte(r.Message))
	return b
}

func DecodeProcessResponse(buf []byte) (ProcessResponse, error) {
	status, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return ProcessResponse{}, fmt.Errorf("component: bad status: %w", protowire.ParseError(n))
	}
	buf = buf[n:]
	msg, _, err := consumeLenPrefixed(buf)
	if err != nil {
		return ProcessResponse{}, err
	}
	return ProcessResponse{Status: ProcessResponseStatus(status), Message: string(msg)}, nil
}

// GetStateRequest/Response implement the get_state context call.
type GetStateRequest struct {
	ContextID string
	Addresses []string
}

func (r GetStateRequest) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(r.ContextID))
	b = appendStringList(b, r.Addresses)
	return b
}

func DecodeGetStateRequest(buf []byte) (GetStateRequest, error) {
	contextID, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return GetStateRequest{}, err
	}
	addrs, _, err := consumeStringList(rest)
	if err != nil {
		return GetStateRequest{}, err
	}
	return GetStateRequest{ContextID: string(contextID), Addresses: addrs}, nil
}

type stateEntry struct {
	Address string
	Value   []byte
}

type GetStateResponse struct {
	Entries []stateEntry
}

func (r GetStateResponse) Encode() []byte {
	var b []byte
	b = protowire.AppendVarint(b, uint64(len(r.Entries)))
	for _, e := range r.Entries {
		b = appendLenPrefixed(b, []byte(e.Address))
		b = appendLenPrefixed(b, e.Value)
	}
	return b
}

func DecodeGetStateResponse(buf []byte) (GetStateResponse, error) {
	count, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return GetStateResponse{}, fmt.Errorf("component: bad entry count: %w", protowire.ParseError(n))
	}
	buf = buf[n:]
	out := GetStateResponse{}
	for i := uint64(0); i < count; i++ {
		addr, rest, err := consumeLenPrefixed(buf)
		if err != nil {
			return GetStateResponse{}, err
		}
		val, rest2, err := consumeLenPrefixed(rest)
		if err != nil {
			return GetStateResponse{}, err
		}
		out.Entries = append(out.Entries, stateEntry{Address: string(addr), Value: append([]byte(nil), val...)})
		buf = rest2
	}
	return out, nil
}

// SetStateRequest/Response implement the set_state context call.
type SetStateRequest struct {
	ContextID string
	Entries   []stateEntry
}

func (r SetStateRequest) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(r.ContextID))
	b = protowire.AppendVarint(b, uint64(len(r.Entries)))
	for _, e := range r.Entries {
		b = appendLenPrefixed(b, []byte(e.Address))
		b = appendLenPrefixed(b, e.Value)
	}
	return b
}

func DecodeSetStateRequest(buf []byte) (SetStateRequest, error) {
	contextID, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return SetStateRequest{}, err
	}
	count, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return SetStateRequest{}, fmt.Errorf("component: bad entry count: %w", protowire.ParseError(n))
	}
	rest = rest[n:]
	out := SetStateRequest{ContextID: string(contextID)}
	for i := uint64(0); i < count; i++ {
		addr, next, err := consumeLenPrefixed(rest)
		if err != nil {
			return SetStateRequest{}, err
		}
		val, next2, err := consumeLenPrefixed(next)
		if err != nil {
			return SetStateRequest{}, err
		}
		out.Entries = append(out.Entries, stateEntry{Address: string(addr), Value: append([]byte(nil), val...)})
		rest = next2
	}
	return out, nil
}

// DeleteStateRequest implements the delete_state context call.
type DeleteStateRequest struct {
	ContextID string
	Addresses []string
}

func (r DeleteStateRequest) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(r.ContextID))
	b = appendStringList(b, r.Addresses)
	return b
}

func DecodeDeleteStateRequest(buf []byte) (DeleteStateRequest, error) {
	contextID, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return DeleteStateRequest{}, err
	}
	addrs, _, err := consumeStringList(rest)
	if err != nil {
		return DeleteStateRequest{}, err
	}
	return DeleteStateRequest{ContextID: string(contextID), Addresses: addrs}, nil
}

// AddEventRequest implements the add_event context call.
type AddEventRequest struct {
	ContextID  string
	Type       string
	Attributes map[string]string
	Data       []byte
}

func (r AddEventRequest) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(r.ContextID))
	b = appendLenPrefixed(b, []byte(r.Type))
	b = protowire.AppendVarint(b, uint64(len(r.Attributes)))
	for k, v := range r.Attributes {
		b = appendLenPrefixed(b, []byte(k))
		b = appendLenPrefixed(b, []byte(v))
	}
	b = appendLenPrefixed(b, r.Data)
	return b
}

func DecodeAddEventRequest(buf []byte) (AddEventRequest, error) {
	contextID, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return AddEventRequest{}, err
	}
	typ, rest, err := consumeLenPrefixed(rest)
	if err != nil {
		return AddEventRequest{}, err
	}
	count, n := protowire.ConsumeVarint(rest)
	if n < 0 {
		return AddEventRequest{}, fmt.Errorf("component: bad attribute count: %w", protowire.ParseError(n))
	}
	rest = rest[n:]
	attrs := make(map[string]string, count)
	for i := uint64(0); i < count; i++ {
		k, next, err := consumeLenPrefixed(rest)
		if err != nil {
			return AddEventRequest{}, err
		}
		v, next2, err := consumeLenPrefixed(next)
		if err != nil {
			return AddEventRequest{}, err
		}
		attrs[string(k)] = string(v)
		rest = next2
	}
	data, _, err := consumeLenPrefixed(rest)
	if err != nil {
		return AddEventRequest{}, err
	}
	return AddEventRequest{ContextID: string(contextID), Type: string(typ), Attributes: attrs, Data: append([]byte(nil), data...)}, nil
}

// AddReceiptDataRequest implements the add_receipt_data context call.
type AddReceiptDataRequest struct {
	ContextID string
	Data      []byte
}

func (r AddReceiptDataRequest) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(r.ContextID))
	b = appendLenPrefixed(b, r.Data)
	return b
}

func DecodeAddReceiptDataRequest(buf []byte) (AddReceiptDataRequest, error) {
	contextID, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return AddReceiptDataRequest{}, err
	}
	data, _, err := consumeLenPrefixed(rest)
	if err != nil {
		return AddReceiptDataRequest{}, err
	}
	return AddReceiptDataRequest{ContextID: string(contextID), Data: append([]byte(nil), data...)}, nil
}
