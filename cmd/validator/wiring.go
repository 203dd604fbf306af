package main

import (
	"context"
	"fmt"

	"github.com/luxfi/log"

	"github.com/hyperledger-archives/sawtooth-core-sub001/bus"
	"github.com/hyperledger-archives/sawtooth-core-sub001/component"
	"github.com/hyperledger-archives/sawtooth-core-sub001/config"
	"github.com/hyperledger-archives/sawtooth-core-sub001/consensus"
	"github.com/hyperledger-archives/sawtooth-core-sub001/crypto"
	"github.com/hyperledger-archives/sawtooth-core-sub001/events"
	"github.com/hyperledger-archives/sawtooth-core-sub001/executor"
	"github.com/hyperledger-archives/sawtooth-core-sub001/gossip"
	"github.com/hyperledger-archives/sawtooth-core-sub001/identity"
	"github.com/hyperledger-archives/sawtooth-core-sub001/journal"
	"github.com/hyperledger-archives/sawtooth-core-sub001/metrics"
	"github.com/hyperledger-archives/sawtooth-core-sub001/network"
	"github.com/hyperledger-archives/sawtooth-core-sub001/nodectx"
	"github.com/hyperledger-archives/sawtooth-core-sub001/permission"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
	"github.com/hyperledger-archives/sawtooth-core-sub001/scheduler"
	"github.com/hyperledger-archives/sawtooth-core-sub001/settings"
	"github.com/hyperledger-archives/sawtooth-core-sub001/state"
	"github.com/hyperledger-archives/sawtooth-core-sub001/storage"
	"github.com/hyperledger-archives/sawtooth-core-sub001/storage/blockstore"
	"github.com/hyperledger-archives/sawtooth-core-sub001/storage/pebblestore"
)

// engineBusIdentity is the well-known identity the consensus engine
// registers under when it connects to the component endpoint (spec.md
// §4.7: "out-of-process engine over the component endpoint").
const engineBusIdentity = "consensus-engine"

// node bundles every long-lived subsystem handle start/genesis construct,
// following the practice of building one struct in main rather than
// threading a dozen loose values through function arguments.
type node struct {
	cfg     *config.Config
	nc      nodectx.NodeContext
	log     log.Logger
	m       *metrics.Metrics
	db      storage.Database
	trie    *state.Trie
	store   *blockstore.Store
	sources *storeSources

	componentBus bus.Bus
	networkBus   bus.Bus
	endpoint     *component.Endpoint

	perm           *permission.Verifier
	settingsReader *settings.Reader
	identitySource *identity.Source
	signer         *crypto.PrivateKey

	net *network.Network
	gsp *gossip.Gossip
	hub *events.Hub

	engine     consensus.EngineLink
	validator  *journal.Validator
	publisher  *journal.Publisher
	controller *journal.Controller
	service    *consensus.Service
}

// storeSources adapts *blockstore.Store (error-returning lookups) to the
// bool-returning gossip.BlockSource/gossip.BatchSource contracts.
type storeSources struct{ store *blockstore.Store }

func (s *storeSources) GetBlock(id string) (*protocol.Block, bool) {
	b, err := s.store.GetBlock(id)
	return b, err == nil
}
func (s *storeSources) GetBatch(id string) (*protocol.Batch, bool) {
	b, err := s.store.GetBatch(id)
	return b, err == nil
}
func (s *storeSources) GetBatchByTransactionID(txnID string) (*protocol.Batch, bool) {
	batchID, err := s.store.BatchIDForTransaction(txnID)
	if err != nil {
		return nil, false
	}
	b, err := s.store.GetBatch(batchID)
	return b, err == nil
}

// buildNode opens storage and wires every subsystem up to (but not
// including) the engine link, since start and genesis differ in whether a
// chain already exists when this runs.
func buildNode(cfg *config.Config, signer *crypto.PrivateKey) (*node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.NewLogger("validator")
	m := metrics.New()
	nc := nodectx.New(cfg, logger, m, signer.PublicKeyHex())

	db, err := pebblestore.Open(cfg.DataDir + "/db")
	if err != nil {
		return nil, fmt.Errorf("open data dir: %w", err)
	}

	trie := state.New(db, logger, m)
	store := blockstore.New(db)
	settingsReader := settings.New(trie)
	identitySource := identity.New(trie)
	perm := permission.New(identitySource, nil)

	componentBus, err := bus.NewZMQBus(cfg.ComponentEndpoint, nc.With("bus", "component").Log)
	if err != nil {
		return nil, fmt.Errorf("open component bus: %w", err)
	}
	networkBus, err := bus.NewZMQBus(cfg.NetworkEndpoint, nc.With("bus", "network").Log)
	if err != nil {
		return nil, fmt.Errorf("open network bus: %w", err)
	}
	endpoint := component.NewEndpoint(componentBus, nc.Log)

	n := &node{
		cfg:            cfg,
		nc:             *nc,
		log:            logger,
		m:              m,
		db:             db,
		trie:           trie,
		store:          store,
		sources:        &storeSources{store: store},
		componentBus:   componentBus,
		networkBus:     networkBus,
		endpoint:       endpoint,
		perm:           perm,
		settingsReader: settingsReader,
		identitySource: identitySource,
		signer:         signer,
	}
	return n, nil
}

// newScheduler builds a fresh scheduler bound to n's trie and executor, sized
// per config (spec.md §4.2: serial is the reference; parallel, used when
// scheduler_parallelism > 0, produces the same results with more workers).
func (n *node) newScheduler() journal.Scheduler {
	exec := executor.New(n.endpoint, n.cfg.ProcessorTimeout, n.cfg.ProcessorMaxAttempts, n.log)
	if n.cfg.SchedulerParallelism > 0 {
		return scheduler.NewParallel(n.trie, exec, n.cfg.SchedulerParallelism)
	}
	return scheduler.NewSerial(n.trie, exec)
}

// wireJournal constructs the block validator, publisher, chain controller,
// network, gossip, and event hub, and registers the consensus.Service over
// the component bus. chainHead must already be committed to storage (the
// genesis block, at minimum) before this is called.
func (n *node) wireJournal(chainHead *protocol.Block, injectors []journal.Injector) error {
	var controller *journal.Controller
	authorizer := permission.NetworkAuthorizer{
		Verifier: n.perm,
		HeadState: func() string {
			if controller == nil {
				return ""
			}
			return controller.ChainHead().StateRoot
		},
	}
	localRoles := []string{permission.RoleNetwork, permission.RoleNetworkConsensus}
	n.net = network.New(n.nc, n.networkBus, n.signer, authorizer, localRoles)

	n.gsp = gossip.New(n.nc, n.net, n.networkBus, n.sources, n.sources)
	n.hub = events.NewHub(n.componentBus, n.log)

	n.engine = consensus.NewBusEngineLink(n.componentBus, engineBusIdentity)

	n.validator = journal.NewValidator(n.store, n.newScheduler(), n.perm, nil, n.log)
	n.publisher = journal.NewPublisher(n.newScheduler(), n.store, n.settingsReader, n.perm, n.signer, injectors, n.log)

	controller = journal.NewController(n.nc, n.store, n.validator, n.publisher, n.engine, n.net, n.componentBus, n.gsp)
	n.controller = controller
	if err := controller.InitializeGenesis(chainHead); err != nil {
		return err
	}
	controller.SetOnCommit(func(block *protocol.Block, receipt *protocol.BlockReceipt) {
		n.perm.InvalidateHead()
		n.hub.Publish(block, receipt)
	})
	n.service = consensus.NewService(n.componentBus, controller, n.log)

	n.gsp.OnNewBlock(func(block *protocol.Block) {
		if err := controller.HandleNewBlock(context.Background(), block); err != nil {
			n.log.Warn("failed to announce gossiped block", "block_id", block.ID(), "err", err)
		}
	})
	return nil
}
