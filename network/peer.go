package network

import (
	"crypto/sha256"
	"sync"
	"time"

	"github.com/luxfi/ids"
)

// Well-known roles a handshake may grant (spec.md §4.8). "network" lets a
// peer participate in gossip; "network.consensus" additionally lets it
// exchange consensus-engine PeerMessage traffic (spec.md §4.7).
const (
	RoleNetwork          = "network"
	RoleNetworkConsensus = "network.consensus"
)

// nodeIDFromPublicKeyHex derives a stable, comparable ids.NodeID from a
// peer's validator public key. ids.NodeID follows the lux/avalanche
// convention of a 20-byte short identifier (distinct from the 32-byte
// ids.ID used for content hashes), so only the leading 20 bytes of the
// key's digest are kept.
func nodeIDFromPublicKeyHex(publicKeyHex string) ids.NodeID {
	digest := sha256.Sum256([]byte(publicKeyHex))
	var arr [20]byte
	copy(arr[:], digest[:20])
	return ids.NodeID(arr)
}

// Peer is an authorized connection: a handshake has completed and a role
// set has been granted.
type Peer struct {
	NodeID       ids.NodeID
	Identity     string
	PublicKeyHex string
	Endpoint     string
	Roles        map[string]bool

	mu           sync.Mutex
	lastSeen     time.Time
	violations   int
}

func newPeer(identity, publicKeyHex, endpoint string, roles []string) *Peer {
	roleSet := make(map[string]bool, len(roles))
	for _, r := range roles {
		roleSet[r] = true
	}
	return &Peer{
		NodeID:       nodeIDFromPublicKeyHex(publicKeyHex),
		Identity:     identity,
		PublicKeyHex: publicKeyHex,
		Endpoint:     endpoint,
		Roles:        roleSet,
		lastSeen:     time.Now(),
	}
}

func (p *Peer) hasRole(role string) bool { return p.Roles[role] }

func (p *Peer) touch() {
	p.mu.Lock()
	p.lastSeen = time.Now()
	p.mu.Unlock()
}

func (p *Peer) lastSeenAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

// recordViolation returns the violation count after incrementing it, so
// the caller can decide whether to close the connection (spec.md §4.8
// "repeated violations").
func (p *Peer) recordViolation() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.violations++
	return p.violations
}
