// Package network implements C6: peer handshake, authorization (trust and
// challenge schemes), heartbeat-based liveness, and role-gated message
// filtering (spec.md §4.8). Grounded on validators.Connector's
// SetCallbackListener shape (connection lifecycle callbacks) and
// networking/router's handler-registration pattern, generalized from
// weighted-validator-set bookkeeping to Sawtooth's trust/challenge
// handshake and PERMIT/DENY role model.
package network

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/log"

	"github.com/hyperledger-archives/sawtooth-core-sub001/bus"
	"github.com/hyperledger-archives/sawtooth-core-sub001/config"
	"github.com/hyperledger-archives/sawtooth-core-sub001/crypto"
	"github.com/hyperledger-archives/sawtooth-core-sub001/nodectx"
	"github.com/hyperledger-archives/sawtooth-core-sub001/sawerr"
)

// Message type names carried in a bus.Frame's MessageType field.
const (
	MsgConnectionRequest            = "ConnectionRequest"
	MsgAuthorizationChallenge       = "AuthorizationChallenge"
	MsgPing                         = "Ping"
	MsgPong                         = "Pong"
	MsgGetPeersRequest              = "GetPeersRequest"
)

const protocolVersion = "1"

// defaultMaxViolations is how many dropped, role-lacking messages a peer
// may send before its connection is closed (spec.md §4.8 "repeated
// violations").
const defaultMaxViolations = 3

// Connected and Disconnected are invoked as a peer is authorized and as it
// is evicted, mirroring validators.Connector's callback shape.
type Connected func(ctx context.Context, peer *Peer)
type Disconnected func(ctx context.Context, identity string)

// Network is C6's endpoint: it owns the handshake/authorization state
// machine and the authorized peer table that C7 (gossip) and C13
// (consensus PeerMessage routing) consult.
type Network struct {
	nc         nodectx.NodeContext
	bus        bus.Bus
	signer     *crypto.PrivateKey
	localRoles []string
	authorizer Authorizer
	scheme     config.AuthorizationScheme

	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	maxViolations     int

	mu    sync.RWMutex
	peers map[string]*Peer

	onConnected    Connected
	onDisconnected Disconnected

	log log.Logger
}

// New constructs a Network bound to b, using signer as this node's
// validator identity in both handshake directions.
func New(nc nodectx.NodeContext, b bus.Bus, signer *crypto.PrivateKey, authorizer Authorizer, localRoles []string) *Network {
	if authorizer == nil {
		authorizer = DefaultAuthorizer{}
	}
	scheme := config.AuthTrust
	heartbeatInterval := 10 * time.Second
	heartbeatTimeout := 30 * time.Second
	if nc.Config != nil {
		scheme = nc.Config.AuthorizationScheme
		heartbeatInterval = nc.Config.HeartbeatInterval
		heartbeatTimeout = nc.Config.HeartbeatTimeout
	}
	n := &Network{
		nc:                nc,
		bus:               b,
		signer:            signer,
		localRoles:        localRoles,
		authorizer:        authorizer,
		scheme:            scheme,
		heartbeatInterval: heartbeatInterval,
		heartbeatTimeout:  heartbeatTimeout,
		maxViolations:     defaultMaxViolations,
		peers:             make(map[string]*Peer),
		log:               nc.Log,
	}
	n.registerHandlers()
	return n
}

// OnConnected/OnDisconnected register lifecycle callbacks (e.g. gossip
// seeding a newly authorized peer, or the permission cache dropping one).
func (n *Network) OnConnected(f Connected)       { n.onConnected = f }
func (n *Network) OnDisconnected(f Disconnected) { n.onDisconnected = f }

func (n *Network) registerHandlers() {
	n.bus.Handle(MsgConnectionRequest, n.handleConnectionRequest)
	n.bus.Handle(MsgAuthorizationChallenge, n.handleAuthorizationChallenge)
	n.bus.Handle(MsgPing, n.handlePing)
	n.bus.Handle(MsgGetPeersRequest, n.handleGetPeersRequest)
}

// Connect drives the initiator side of the handshake against dest
// (spec.md §4.8). The resulting peer record is created on the responder
// side by handleConnectionRequest; Connect only reports success/failure.
func (n *Network) Connect(ctx context.Context, dest string) error {
	req := ConnectionRequest{ProtocolVersion: protocolVersion, Roles: n.localRoles, PublicKeyHex: n.signer.PublicKeyHex()}
	resp, err := n.bus.Request(ctx, dest, bus.Frame{MessageType: MsgConnectionRequest, Content: req.Encode()})
	if err != nil {
		return sawerr.Network(sawerr.ReasonPeerUnreachable, dest, err)
	}
	connResp, err := DecodeConnectionResponse(resp.Content)
	if err != nil {
		return sawerr.Network(sawerr.ReasonHandshakeFailed, dest, err)
	}
	if !connResp.Accepted {
		return sawerr.Network(sawerr.ReasonHandshakeFailed, dest, fmt.Errorf("%s", connResp.RejectReason))
	}
	return nil
}

func (n *Network) handleConnectionRequest(ctx context.Context, from string, f bus.Frame) (*bus.Frame, error) {
	req, err := DecodeConnectionRequest(f.Content)
	if err != nil {
		return nil, err
	}
	if req.ProtocolVersion != protocolVersion {
		return n.reject("protocol_version_mismatch"), nil
	}

	if n.scheme == config.AuthChallenge {
		if err := n.runChallenge(ctx, from, req.PublicKeyHex); err != nil {
			if n.log != nil {
				n.log.Warn("network: challenge failed", "peer", from, "err", err)
			}
			return n.reject("challenge_failed"), nil
		}
	}

	granted, err := n.authorizer.Authorize(ctx, req.PublicKeyHex, req.Roles)
	if err != nil || len(granted) == 0 {
		return n.reject("role_denied"), nil
	}

	peer := newPeer(from, req.PublicKeyHex, from, granted)
	n.addPeer(peer)
	if n.onConnected != nil {
		n.onConnected(ctx, peer)
	}
	return &bus.Frame{MessageType: MsgConnectionRequest, Content: ConnectionResponse{ProtocolVersion: protocolVersion, Accepted: true, Roles: granted}.Encode()}, nil
}

func (n *Network) reject(reason string) *bus.Frame {
	return &bus.Frame{MessageType: MsgConnectionRequest, Content: ConnectionResponse{ProtocolVersion: protocolVersion, Accepted: false, RejectReason: reason}.Encode()}
}

// runChallenge sends a random nonce to the identity completing the
// handshake and verifies its signature over that nonce (spec.md §4.8
// "Challenge").
func (n *Network) runChallenge(ctx context.Context, identity, publicKeyHex string) error {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("network: generate nonce: %w", err)
	}
	resp, err := n.bus.Request(ctx, identity, bus.Frame{MessageType: MsgAuthorizationChallenge, Content: AuthorizationChallenge{Nonce: nonce}.Encode()})
	if err != nil {
		return fmt.Errorf("network: challenge round trip: %w", err)
	}
	ack, err := DecodeAuthorizationChallengeResponse(resp.Content)
	if err != nil {
		return err
	}
	if err := crypto.Verify(nonce, ack.SignatureHex, publicKeyHex); err != nil {
		return sawerr.Permission(sawerr.ReasonPeerDenied, identity, err)
	}
	return nil
}

func (n *Network) handleAuthorizationChallenge(_ context.Context, _ string, f bus.Frame) (*bus.Frame, error) {
	chal, err := DecodeAuthorizationChallenge(f.Content)
	if err != nil {
		return nil, err
	}
	sigHex := n.signer.Sign(chal.Nonce)
	return &bus.Frame{MessageType: MsgAuthorizationChallenge, Content: AuthorizationChallengeResponse{SignatureHex: sigHex}.Encode()}, nil
}

func (n *Network) handlePing(_ context.Context, from string, _ bus.Frame) (*bus.Frame, error) {
	if peer, ok := n.Peer(from); ok {
		peer.touch()
	}
	return &bus.Frame{MessageType: MsgPong, Content: Pong{}.Encode()}, nil
}

func (n *Network) handleGetPeersRequest(_ context.Context, _ string, _ bus.Frame) (*bus.Frame, error) {
	n.mu.RLock()
	resp := GetPeersResponse{Peers: make([]peerInfo, 0, len(n.peers))}
	for _, p := range n.peers {
		resp.Peers = append(resp.Peers, peerInfo{Identity: p.Identity, Endpoint: p.Endpoint})
	}
	n.mu.RUnlock()
	return &bus.Frame{MessageType: MsgGetPeersRequest, Content: resp.Encode()}, nil
}

func (n *Network) addPeer(p *Peer) {
	n.mu.Lock()
	n.peers[p.Identity] = p
	count := len(n.peers)
	n.mu.Unlock()
	if n.nc.Metrics != nil {
		n.nc.Metrics.PeerCount.Set(float64(count))
	}
}

// Peer returns the authorized peer record for identity, if any.
func (n *Network) Peer(identity string) (*Peer, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.peers[identity]
	return p, ok
}

// Peers returns a snapshot of every currently authorized peer.
func (n *Network) Peers() []*Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p)
	}
	return out
}

// Disconnect evicts identity from the peer table (spec.md §4.8
// "the connection closed with AuthorizationViolation").
func (n *Network) Disconnect(ctx context.Context, identity string) {
	n.mu.Lock()
	_, existed := n.peers[identity]
	delete(n.peers, identity)
	count := len(n.peers)
	n.mu.Unlock()
	if n.nc.Metrics != nil {
		n.nc.Metrics.PeerCount.Set(float64(count))
	}
	if existed && n.onDisconnected != nil {
		n.onDisconnected(ctx, identity)
	}
}

// Guard wraps an application handler (e.g. gossip's GossipBlockRequest
// handler) so that messages from peers lacking requiredRole are dropped
// instead of processed (spec.md §4.8 "Messages are filtered at ingress").
// Repeated violations close the connection.
func (n *Network) Guard(requiredRole string, h bus.Handler) bus.Handler {
	return func(ctx context.Context, from string, f bus.Frame) (*bus.Frame, error) {
		peer, ok := n.Peer(from)
		if !ok || !peer.hasRole(requiredRole) {
			if ok {
				if peer.recordViolation() >= n.maxViolations {
					if n.log != nil {
						n.log.Warn("network: closing connection after repeated authorization violations", "peer", from, "required_role", requiredRole)
					}
					n.Disconnect(ctx, from)
				}
			}
			return nil, sawerr.Permission(sawerr.ReasonPeerDenied, from, fmt.Errorf("missing role %q", requiredRole))
		}
		return h(ctx, from, f)
	}
}

// RunHeartbeats pings every authorized peer every heartbeatInterval,
// evicting any peer that fails to answer within heartbeatTimeout (spec.md
// §4.8, §5's "Network I/O" worker).
func (n *Network) RunHeartbeats(ctx context.Context) {
	ticker := time.NewTicker(n.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.pingAll(ctx)
		}
	}
}

func (n *Network) pingAll(ctx context.Context) {
	for _, peer := range n.Peers() {
		pingCtx, cancel := context.WithTimeout(ctx, n.heartbeatTimeout)
		_, err := n.bus.Request(pingCtx, peer.Identity, bus.Frame{MessageType: MsgPing, Content: Ping{}.Encode()})
		cancel()
		if err != nil {
			if n.log != nil {
				n.log.Warn("network: peer failed heartbeat, disconnecting", "peer", peer.Identity, "err", err)
			}
			n.Disconnect(ctx, peer.Identity)
			continue
		}
		peer.touch()
	}
}
