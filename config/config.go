// Package config holds the validator node's local, off-chain configuration:
// data directory, bind endpoints, publisher caps, and network peering mode.
// On-chain settings (sawtooth.* keys) live in package settings and are
// looked up per state_root instead, per SPEC_FULL.md §2.1.
package config

import (
	"fmt"
	"time"
)

// PeeringMode selects the topology-discovery strategy (spec.md §4.8).
type PeeringMode string

const (
	PeeringStatic  PeeringMode = "static"
	PeeringDynamic PeeringMode = "dynamic"
)

// AuthorizationScheme selects the peer handshake's trust model (spec.md §4.8).
type AuthorizationScheme string

const (
	AuthTrust     AuthorizationScheme = "trust"
	AuthChallenge AuthorizationScheme = "challenge"
)

// Config is the validator node's local configuration.
type Config struct {
	// DataDir holds the KV store, genesis.batch, and the validator's signing key.
	DataDir string `json:"data_dir"`

	// ComponentEndpoint is the ZMQ bind address processors/consensus/REST
	// API connect to (C5).
	ComponentEndpoint string `json:"component_endpoint"`
	// NetworkEndpoint is the ZMQ bind address peers connect to (C6).
	NetworkEndpoint string `json:"network_endpoint"`

	PeeringMode  PeeringMode `json:"peering_mode"`
	Peers        []string    `json:"peers"`
	Seeds        []string    `json:"seeds"`
	TargetDegree int         `json:"target_degree"`

	AuthorizationScheme AuthorizationScheme `json:"authorization_scheme"`

	// MaxBatchesPerBlock is validated here but not passed to the block
	// publisher: journal.Publisher reads the on-chain
	// sawtooth.publisher.max_batches_per_block setting and falls back to a
	// fixed 100 when it is unset.
	MaxBatchesPerBlock int `json:"max_batches_per_block"`

	// SchedulerParallelism selects the parallel scheduler's worker count;
	// 0 means use the serial scheduler.
	SchedulerParallelism int `json:"scheduler_parallelism"`

	// ProcessorTimeout and ProcessorMaxAttempts bound executor retries
	// (spec.md §4.3).
	ProcessorTimeout     time.Duration `json:"processor_timeout"`
	ProcessorMaxAttempts int           `json:"processor_max_attempts"`

	// HeartbeatInterval and HeartbeatTimeout bound network connection
	// liveness (spec.md §4.8, §5).
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `json:"heartbeat_timeout"`

	// OutgoingQueueDepth bounds each peer's outgoing message queue
	// (spec.md §4.8 backpressure).
	OutgoingQueueDepth int `json:"outgoing_queue_depth"`

	// GossipDrainInterval paces how often each peer's outgoing gossip
	// queue is flushed (spec.md §4.8).
	GossipDrainInterval time.Duration `json:"gossip_drain_interval"`

	// PermissionCacheTTL is carried in the configuration but not read:
	// permission.Verifier caches per state_root with no time limit and is
	// cleared only by InvalidateHead on each commit (spec.md §4.9).
	PermissionCacheTTL time.Duration `json:"permission_cache_ttl"`

	// BatchStatusTTL is carried in the configuration but not read; the
	// validator keeps no batch-status table to expire (spec.md §7).
	BatchStatusTTL time.Duration `json:"batch_status_ttl"`

	MetricsBindAddr string `json:"metrics_bind_addr"`
}

// Default returns the out-of-the-box single-node development configuration.
// It selects static peering with no peers, so it does not pass Validate
// until a peer is added or the peering mode is changed.
func Default() *Config {
	return &Config{
		DataDir:              "/var/lib/sawtooth",
		ComponentEndpoint:    "tcp://127.0.0.1:4004",
		NetworkEndpoint:      "tcp://127.0.0.1:8800",
		PeeringMode:          PeeringStatic,
		AuthorizationScheme:  AuthTrust,
		MaxBatchesPerBlock:   100,
		SchedulerParallelism: 0,
		ProcessorTimeout:     5 * time.Second,
		ProcessorMaxAttempts: 3,
		HeartbeatInterval:    10 * time.Second,
		HeartbeatTimeout:     30 * time.Second,
		OutgoingQueueDepth:   1024,
		GossipDrainInterval:  200 * time.Millisecond,
		PermissionCacheTTL:   30 * time.Second,
		BatchStatusTTL:       10 * time.Minute,
		MetricsBindAddr:      "127.0.0.1:9100",
	}
}

// Validate reports configuration errors that would otherwise surface as
// confusing failures deep inside a subsystem.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must be set")
	}
	if c.ComponentEndpoint == "" {
		return fmt.Errorf("config: component_endpoint must be set")
	}
	if c.NetworkEndpoint == "" {
		return fmt.Errorf("config: network_endpoint must be set")
	}
	if c.MaxBatchesPerBlock <= 0 {
		return fmt.Errorf("config: max_batches_per_block must be positive, got %d", c.MaxBatchesPerBlock)
	}
	if c.ProcessorMaxAttempts <= 0 {
		return fmt.Errorf("config: processor_max_attempts must be positive, got %d", c.ProcessorMaxAttempts)
	}
	switch c.PeeringMode {
	case PeeringStatic, PeeringDynamic:
	default:
		return fmt.Errorf("config: unknown peering_mode %q", c.PeeringMode)
	}
	switch c.AuthorizationScheme {
	case AuthTrust, AuthChallenge:
	default:
		return fmt.Errorf("config: unknown authorization_scheme %q", c.AuthorizationScheme)
	}
	if c.PeeringMode == PeeringStatic && len(c.Peers) == 0 {
		return fmt.Errorf("config: static peering requires at least one entry in peers")
	}
	return nil
}
