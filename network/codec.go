package network

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Wire messages below are C6's network-endpoint payloads (spec.md §4.8,
// §6 "Network endpoint"), carried inside a bus.Frame's Content field.

func appendLenPrefixed(b []byte, v []byte) []byte {
	b = protowire.AppendVarint(b, uint64(len(v)))
	return append(b, v...)
}

func consumeLenPrefixed(buf []byte) (v, rest []byte, err error) {
	n, m := protowire.ConsumeVarint(buf)
	if m < 0 {
		return nil, nil, fmt.Errorf("network: bad length prefix: %w", protowire.ParseError(m))
	}
	buf = buf[m:]
	if uint64(len(buf)) < n {
		return nil, nil, fmt.Errorf("network: truncated message")
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
		return nil, nil, fmt.Errorf("network: bad list count: %w", protowire.ParseError(n))
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

// ConnectionRequest opens the handshake, advertising the initiator's
// protocol version, requested roles, and validator public key (spec.md
// §4.8).
type ConnectionRequest struct {
	ProtocolVersion string
	Roles           []string
	PublicKeyHex    string
}

func (r ConnectionRequest) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(r.ProtocolVersion))
	b = appendStringList(b, r.Roles)
	b = appendLenPrefixed(b, []byte(r.PublicKeyHex))
	return b
}

func DecodeConnectionRequest(buf []byte) (ConnectionRequest, error) {
	version, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return ConnectionRequest{}, err
	}
	roles, rest, err := consumeStringList(rest)
	if err != nil {
		return ConnectionRequest{}, err
	}
	pub, _, err := consumeLenPrefixed(rest)
	if err != nil {
		return ConnectionRequest{}, err
	}
	return ConnectionRequest{ProtocolVersion: string(version), Roles: roles, PublicKeyHex: string(pub)}, nil
}

// ConnectionResponse ends the handshake: Accepted is true once the peer is
// authorized (under the challenge scheme, after the nonce round trip has
// already succeeded), false with RejectReason set otherwise.
type ConnectionResponse struct {
	ProtocolVersion string
	Accepted        bool
	Roles           []string
	RejectReason    string
}

func (r ConnectionResponse) Encode() []byte {
	var b []byte
	b = appendLenPrefixed(b, []byte(r.ProtocolVersion))
	if r.Accepted {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = appendStringList(b, r.Roles)
	b = appendLenPrefixed(b, []byte(r.RejectReason))
	return b
}

func DecodeConnectionResponse(buf []byte) (ConnectionResponse, error) {
	version, rest, err := consumeLenPrefixed(buf)
	if err != nil {
		return ConnectionResponse{}, err
	}
	if len(rest) < 1 {
		return ConnectionResponse{}, fmt.Errorf("network: truncated connection response")
	}
	accepted := rest[0] == 1
	rest = rest[1:]
	roles, rest, err := consumeStringList(rest)
	if err != nil {
		return ConnectionResponse{}, err
	}
	reason, _, err := consumeLenPrefixed(rest)
	if err != nil {
		return ConnectionResponse{}, err
	}
	return ConnectionResponse{ProtocolVersion: string(version), Accepted: accepted, Roles: roles, RejectReason: string(reason)}, nil
}

// AuthorizationChallenge carries a random nonce the peer must sign with its
// validator key (challenge scheme only, spec.md §4.8).
type AuthorizationChallenge struct {
	Nonce []byte
}

func (c AuthorizationChallenge) Encode() []byte {
	return appendLenPrefixed(nil, c.Nonce)
}

func DecodeAuthorizationChallenge(buf []byte) (AuthorizationChallenge, error) {
	nonce, _, err := consumeLenPrefixed(buf)
	if err != nil {
		return AuthorizationChallenge{}, err
	}
	return AuthorizationChallenge{Nonce: append([]byte(nil), nonce...)}, nil
}

// AuthorizationChallengeResponse is the signature over the challenge nonce.
type AuthorizationChallengeResponse struct {
	SignatureHex string
}

func (r AuthorizationChallengeResponse) Encode() []byte {
	return appendLenPrefixed(nil, []byte(r.SignatureHex))
}

func DecodeAuthorizationChallengeResponse(buf []byte) (AuthorizationChallengeResponse, error) {
	sig, _, err := consumeLenPrefixed(buf)
	if err != nil {
		return AuthorizationChallengeResponse{}, err
	}
	return AuthorizationChallengeResponse{SignatureHex: string(sig)}, nil
}

// Ping/Pong carry no payload beyond the message type itself; liveness is
// the round trip completing within HeartbeatTimeout (spec.md §4.8, §5).
type Ping struct{}

func (Ping) Encode() []byte { return nil }

type Pong struct{}

func (Pong) Encode() []byte { return nil }

// GetPeersRequest/Response implement dynamic-peering topology discovery
// (spec.md §4.8 "Dynamic").
type GetPeersRequest struct{}

func (GetPeersRequest) Encode() []byte { return nil }

type peerInfo struct {
	Identity string
	Endpoint string
}

type GetPeersResponse struct {
	Peers []peerInfo
}

func (r GetPeersResponse) Encode() []byte {
	var b []byte
	b = protowire.AppendVarint(b, uint64(len(r.Peers)))
	for _, p := range r.Peers {
		b = appendLenPrefixed(b, []byte(p.Identity))
		b = appendLenPrefixed(b, []byte(p.Endpoint))
	}
	return b
}

func DecodeGetPeersResponse(buf []byte) (GetPeersResponse, error) {
	count, n := protowire.ConsumeVarint(buf)
	if n < 0 {
		return GetPeersResponse{}, fmt.Errorf("network: bad peer count: %w", protowire.ParseError(n))
	}
	buf = buf[n:]
	out := GetPeersResponse{}
	for i := uint64(0); i < count; i++ {
		identity, rest, err := consumeLenPrefixed(buf)
		if err != nil {
			return GetPeersResponse{}, err
		}
		endpoint, rest2, err := consumeLenPrefixed(rest)
		if err != nil {
			return GetPeersResponse{}, err
		}
		out.Peers = append(out.Peers, peerInfo{Identity: string(identity), Endpoint: string(endpoint)})
		buf = rest2
	}
	return out, nil
}
