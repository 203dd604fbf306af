package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/log"

	"github.com/hyperledger-archives/sawtooth-core-sub001/config"
	"github.com/hyperledger-archives/sawtooth-core-sub001/consensus"
	"github.com/hyperledger-archives/sawtooth-core-sub001/metrics"
	"github.com/hyperledger-archives/sawtooth-core-sub001/nodectx"
	"github.com/hyperledger-archives/sawtooth-core-sub001/protocol"
)

// fakeEngineLink records the BlockCommit calls it receives; every other
// method is a no-op.
type fakeEngineLink struct {
	committed []string
}

func (f *fakeEngineLink) StartupInfo(context.Context, consensus.StartupInfo) error { return nil }
func (f *fakeEngineLink) BlockNew(context.Context, []byte, int) error              { return nil }
func (f *fakeEngineLink) BlockValid(context.Context, string) error                { return nil }
func (f *fakeEngineLink) BlockInvalid(context.Context, string, string) error       { return nil }
func (f *fakeEngineLink) BlockCommit(_ context.Context, blockID string) error {
	f.committed = append(f.committed, blockID)
	return nil
}
func (f *fakeEngineLink) PeerConnected(context.Context, string) error       { return nil }
func (f *fakeEngineLink) PeerDisconnected(context.Context, string) error    { return nil }
func (f *fakeEngineLink) PeerMessage(context.Context, string, []byte) error { return nil }

func newTestNodeContext(t *testing.T) nodectx.NodeContext {
	t.Helper()
	cfg := config.Default()
	nc := nodectx.New(cfg, log.NewNoOpLogger(), metrics.New(), "test-validator")
	return *nc
}

func TestControllerInitializeGenesisPersistsChainHead(t *testing.T) {
	store := newBlockstoreForTest(t)
	batch, signer := signedBatch(t, "intkey")
	genesisBlock, err := protocol.NewSignedBlock(0, protocol.NullBlockID, []*protocol.Batch{batch}, "root", nil, signer)
	require.NoError(t, err)
	require.NoError(t, store.PutBlock(genesisBlock))

	c := NewController(newTestNodeContext(t), store, nil, nil, &fakeEngineLink{}, nil, nil, nil)
	require.NoError(t, c.InitializeGenesis(genesisBlock))

	require.Equal(t, genesisBlock.ID(), c.ChainHead().BlockID)

	head, err := store.ChainHead()
	require.NoError(t, err)
	require.Equal(t, genesisBlock.ID(), head.ID())
}

func TestControllerCommitBlockUpdatesPersistedChainHead(t *testing.T) {
	store := newBlockstoreForTest(t)
	genesisBatch, signer := signedBatch(t, "intkey")
	genesisBlock, err := protocol.NewSignedBlock(0, protocol.NullBlockID, []*protocol.Batch{genesisBatch}, "root0", nil, signer)
	require.NoError(t, err)
	require.NoError(t, store.PutBlock(genesisBlock))

	engine := &fakeEngineLink{}
	c := NewController(newTestNodeContext(t), store, nil, nil, engine, nil, nil, nil)
	require.NoError(t, c.InitializeGenesis(genesisBlock))

	nextBatch, _ := signedBatch(t, "intkey")
	nextBlock, err := protocol.NewSignedBlock(1, genesisBlock.ID(), []*protocol.Batch{nextBatch}, "root1", nil, signer)
	require.NoError(t, err)

	c.mu.Lock()
	c.pendingFinal[nextBlock.ID()] = &pendingBlock{block: nextBlock, receipt: &protocol.BlockReceipt{BlockID: nextBlock.ID()}}
	c.mu.Unlock()

	require.NoError(t, c.CommitBlock(context.Background(), nextBlock.ID()))

	require.Equal(t, nextBlock.ID(), c.ChainHead().BlockID)
	require.Equal(t, []string{nextBlock.ID()}, engine.committed)

	head, err := store.ChainHead()
	require.NoError(t, err)
	require.Equal(t, nextBlock.ID(), head.ID())

	_, err = store.GetBlock(nextBlock.ID())
	require.NoError(t, err)
}
