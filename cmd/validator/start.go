package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hyperledger-archives/sawtooth-core-sub001/config"
	"github.com/hyperledger-archives/sawtooth-core-sub001/genesis"
	"github.com/hyperledger-archives/sawtooth-core-sub001/network"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
)

func startCmd() *cobra.Command {
	cfg := config.Default()
	// A freshly started single-node network has no peers to list yet;
	// dynamic peering tolerates that, static peering does not (spec.md
	// §4.8, config.Validate). --peer switches back to static.
	cfg.PeeringMode = config.PeeringDynamic
	var peers []string

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the validator node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(peers) > 0 {
				cfg.Peers = peers
				cfg.PeeringMode = config.PeeringStatic
			}

			signer, err := loadValidatorKey(cfg.DataDir)
			if err != nil {
				return err
			}

			n, err := buildNode(cfg, signer)
			if err != nil {
				return err
			}
			defer n.db.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			group, ctx := errgroup.WithContext(ctx)
			group.Go(func() error { return n.componentBus.Serve(ctx) })
			group.Go(func() error { return n.networkBus.Serve(ctx) })

			chainHead, err := ensureGenesis(ctx, n, cfg.DataDir)
			if err != nil {
				return fmt.Errorf("start: %w", err)
			}

			if err := n.wireJournal(chainHead, nil); err != nil {
				return fmt.Errorf("start: wire journal: %w", err)
			}

			n.net.OnConnected(func(_ context.Context, peer *network.Peer) {
				n.log.Info("peer connected", "identity", peer.Identity, "endpoint", peer.Endpoint)
			})
			group.Go(func() error { n.net.RunHeartbeats(ctx); return nil })
			group.Go(func() error { n.gsp.Run(ctx, cfg.GossipDrainInterval); return nil })

			for _, peer := range cfg.Peers {
				if err := n.net.Connect(ctx, peer); err != nil {
					n.log.Warn("failed to connect to configured peer", "peer", peer, "err", err)
				}
			}

			if err := n.controller.Startup(ctx, cfg.Peers); err != nil {
				n.log.Warn("consensus engine startup notification failed", "err", err)
			}

			n.log.Info("validator started",
				"component_endpoint", cfg.ComponentEndpoint,
				"network_endpoint", cfg.NetworkEndpoint,
				"chain_head", chainHead.ID())

			<-ctx.Done()
			n.log.Info("shutting down")
			_ = n.componentBus.Close()
			_ = n.networkBus.Close()
			return group.Wait()
		},
	}

	cmd.Flags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "validator data directory")
	cmd.Flags().StringVar(&cfg.ComponentEndpoint, "bind-component", cfg.ComponentEndpoint, "component bus bind address")
	cmd.Flags().StringVar(&cfg.NetworkEndpoint, "bind-network", cfg.NetworkEndpoint, "network bus bind address")
	cmd.Flags().StringSliceVar(&peers, "peer", nil, "static peer endpoint (repeatable)")
	cmd.Flags().IntVar(&cfg.SchedulerParallelism, "scheduler-parallelism", cfg.SchedulerParallelism, "parallel scheduler worker count (0 selects the serial scheduler)")
	cmd.Flags().IntVar(&cfg.MaxBatchesPerBlock, "max-batches-per-block", cfg.MaxBatchesPerBlock, "must be positive; not read by the block publisher, which uses the on-chain setting or 100")
	return cmd
}

// ensureGenesis returns the chain head, bootstrapping the genesis block from
// dataDir/genesis.batch on a node's first run. Bootstrapping requires the
// component bus already serving, since it executes the genesis batches
// against a connected transaction processor like any other block.
func ensureGenesis(ctx context.Context, n *node, dataDir string) (*protocol.Block, error) {
	boot := genesis.New(n.store, n.newScheduler(), n.log)
	needs, err := boot.NeedsGenesis()
	if err != nil {
		return nil, fmt.Errorf("check genesis: %w", err)
	}
	if !needs {
		head, err := n.store.ChainHead()
		if err != nil {
			return nil, fmt.Errorf("read existing chain head: %w", err)
		}
		return head, nil
	}

	path := filepath.Join(dataDir, genesis.BatchFileName)
	batches, err := genesis.LoadBatchList(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	n.log.Info("bootstrapping genesis block", "batches", len(batches))
	block, err := boot.Bootstrap(ctx, batches, n.signer)
	if err != nil {
		return nil, fmt.Errorf("bootstrap genesis: %w", err)
	}
	return block, nil
}
