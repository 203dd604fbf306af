// Package nodectx defines NodeContext, the explicit handle bundle threaded
// through every component constructor in place of package-level globals
// (SPEC_FULL.md §9 "Design Notes": replace global mutable state with an
// explicit NodeContext). Grounded on ChainContext (context_values.go),
// generalized from a single consensus runtime to the full set of
// validator subsystems.
package nodectx

import (
	"github.com/luxfi/log"

	"github.com/hyperledger-archives/sawtooth-core-sub001/config"
	"github.com/hyperledger-archives/sawtooth-core-sub001/metrics"
)

// NodeContext is passed by value (it only holds handles) to every
// component's constructor. It carries no behavior of its own.
type NodeContext struct {
	Config  *config.Config
	Log     log.Logger
	Metrics *metrics.Metrics

	// LocalPeerID identifies this validator in network and consensus
	// messages (spec.md §4.7 StartupInfo.local_peer_info).
	LocalPeerID string
}

// New constructs a NodeContext from its parts. Subsystems further down the
// stack (storage handles, the trie, the scheduler) are attached by the
// caller once they exist, since their construction order depends on the
// data directory being opened first.
func New(cfg *config.Config, logger log.Logger, m *metrics.Metrics, localPeerID string) *NodeContext {
	return &NodeContext{
		Config:      cfg,
		Log:         logger,
		Metrics:     m,
		LocalPeerID: localPeerID,
	}
}

// With returns a copy of nc with its logger annotated, the way every
// subsystem constructor should: `nc.With("component", "journal")`.
func (nc NodeContext) With(kv ...interface{}) NodeContext {
	nc.Log = nc.Log.With(kv...)
	return nc
}
