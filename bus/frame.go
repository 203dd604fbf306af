// Package bus implements C4: the validator's internal message bus, a
// correlation-id framed, bidirectional request/response and one-way
// messaging transport that the component endpoint (C5), network endpoint
// (C6), and executor (C9) are all built on top of (spec.md §4, §6).
//
// Grounded on utils/transport/zmq.Transport's ZMQ
// PUB/SUB+ROUTER/DEALER socket pair behind a zmq build tag, generalized
// from broadcast-only messaging to the request/correlate/respond pattern
// Sawtooth's internal protocol needs, and wired to
// github.com/go-zeromq/zmq4 (a pure-Go ZMQ4 implementation, so it needs
// no cgo or system libzmq).
package bus

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Frame is one message on the bus: a correlation id binding a request to
// its response, a string message type the receiver dispatches on, and an
// opaque content payload (spec.md §6). On the wire each of the three fields
// is written as a varint length followed by its bytes, in that order.
type Frame struct {
	CorrelationID string
	MessageType   string
	Content       []byte
}

// Encode serializes f to the wire framing every bus transport uses.
func (f Frame) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(f.CorrelationID))
	b = appendLenPrefixed(b, []byte(f.MessageType))
	b = appendLenPrefixed(b, f.Content)
	return b
}

// DecodeFrame parses bytes produced by Frame.Encode.
func DecodeFrame(buf []byte) (Frame, error) {
	corr, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return Frame{}, fmt.Errorf("bus: bad correlation id: %w", err)
	}
	typ, rest, err := consumeLenPrefixed(rest)
	if err != nil {
		return Frame{}, fmt.Errorf("bus: bad message type: %w", err)
	}
	content, _, err := consumeLenPrefixed(rest)
	if err != nil {
		return Frame{}, fmt.Errorf("bus: bad content: %w", err)
	}
	return Frame{CorrelationID: string(corr), MessageType: string(typ), Content: content}, nil
}

func appendLenPrefixed(b []byte, v []byte) []byte {
	b = protowire.AppendVarint(b, uint64(len(v)))
	return append(b, v...)
}

func consumeLenPrefixed(buf []byte) (v, rest []byte, err error) {
	n, m := protowire.ConsumeVarint(buf)
	if m < 0 {
		return nil, nil, fmt.Errorf("bad length prefix: %w", protowire.ParseError(m))
	}
	buf = buf[m:]
	if uint64(len(buf)) < n {
		return nil, nil, fmt.Errorf("truncated frame")
	}
	return buf[:n], buf[n:], nil
}
