package config

import "time"

// Builder provides a fluent interface for constructing a Config, mirroring
// the config.Builder pattern so test fixtures read the same way
// consensus-parameter fixtures elsewhere in this codebase do.
type Builder struct {
	cfg *Config
	err error
}

// NewBuilder starts from Default.
func NewBuilder() *Builder {
	return &Builder{cfg: Default()}
}

func (b *Builder) WithDataDir(dir string) *Builder {
	if b.err != nil {
		return b
	}
	b.cfg.DataDir = dir
	return b
}

func (b *Builder) WithEndpoints(component, network string) *Builder {
	if b.err != nil {
		return b
	}
	b.cfg.ComponentEndpoint = component
	b.cfg.NetworkEndpoint = network
	return b
}

func (b *Builder) WithStaticPeers(peers ...string) *Builder {
	if b.err != nil {
		return b
	}
	b.cfg.PeeringMode = PeeringStatic
	b.cfg.Peers = peers
	return b
}

func (b *Builder) WithDynamicSeeds(targetDegree int, seeds ...string) *Builder {
	if b.err != nil {
		return b
	}
	b.cfg.PeeringMode = PeeringDynamic
	b.cfg.Seeds = seeds
	b.cfg.TargetDegree = targetDegree
	return b
}

func (b *Builder) WithAuthorizationScheme(scheme AuthorizationScheme) *Builder {
	if b.err != nil {
		return b
	}
	b.cfg.AuthorizationScheme = scheme
	return b
}

func (b *Builder) WithSchedulerParallelism(workers int) *Builder {
	if b.err != nil {
		return b
	}
	b.cfg.SchedulerParallelism = workers
	return b
}

func (b *Builder) WithProcessorTimeout(timeout time.Duration, maxAttempts int) *Builder {
	if b.err != nil {
		return b
	}
	b.cfg.ProcessorTimeout = timeout
	b.cfg.ProcessorMaxAttempts = maxAttempts
	return b
}

// Build validates and returns the constructed Config.
func (b *Builder) Build() (*Config, error) {
	if b.err != nil {
		return nil, b.err
	}
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	return b.cfg, nil
}
