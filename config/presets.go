package config

import "time"

// LocalPreset is a single-node development configuration: static peering
// with no peers, trust-based authorization, tight timeouts. As returned it
// does not pass Validate, which requires at least one peer under static
// peering.
func LocalPreset() *Config {
	c := Default()
	c.AuthorizationScheme = AuthTrust
	c.PeeringMode = PeeringStatic
	c.ProcessorTimeout = 2 * time.Second
	return c
}

// TestnetPreset is a multi-node configuration with challenge-based
// authorization and dynamic peer discovery from a fixed seed set.
func TestnetPreset(seeds ...string) *Config {
	c := Default()
	c.AuthorizationScheme = AuthChallenge
	c.PeeringMode = PeeringDynamic
	c.Seeds = seeds
	c.TargetDegree = 8
	c.HeartbeatInterval = 15 * time.Second
	c.HeartbeatTimeout = 45 * time.Second
	return c
}

// MainnetPreset is a production-shaped configuration: conservative
// timeouts, challenge authorization, and a larger batch-status retention
// window for client polling.
func MainnetPreset(seeds ...string) *Config {
	c := TestnetPreset(seeds...)
	c.BatchStatusTTL = 1 * time.Hour
	c.OutgoingQueueDepth = 4096
	c.TargetDegree = 15
	return c
}
