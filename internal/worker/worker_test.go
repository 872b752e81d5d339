package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/metrics"
	"github.com/feral-file/ff-ownership-indexer/internal/mocks"
	"github.com/feral-file/ff-ownership-indexer/internal/ownership"
	"github.com/feral-file/ff-ownership-indexer/internal/reconcile"
	"github.com/feral-file/ff-ownership-indexer/internal/store"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	err := logger.Initialize(logger.Config{
		Debug: false,
	})
	if err != nil {
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

type testWorkerMocks struct {
	ctrl       *gomock.Controller
	chain      *mocks.MockChainClient
	heads      *mocks.MockHeadProvider
	syncer     *mocks.MockSyncer
	reconciler *mocks.MockReconciler
	queue      *mocks.MockQueue
	store      store.Store
}

func setupTestWorker(t *testing.T, cfg Config) (*testWorkerMocks, *Dispatcher) {
	ctrl := gomock.NewController(t)
	m := &testWorkerMocks{
		ctrl:       ctrl,
		chain:      mocks.NewMockChainClient(ctrl),
		heads:      mocks.NewMockHeadProvider(ctrl),
		syncer:     mocks.NewMockSyncer(ctrl),
		reconciler: mocks.NewMockReconciler(ctrl),
		queue:      mocks.NewMockQueue(ctrl),
		store:      store.NewMemoryStore(),
	}

	d := NewDispatcher(metrics.New())
	NewHandlers(cfg, m.store, m.chain, m.heads, m.syncer, m.reconciler, m.queue).Register(d)
	return m, d
}

func tearDownTestWorker(m *testWorkerMocks) {
	m.ctrl.Finish()
}

func newTask(t *testing.T, name domain.JobName, payload any) *asynq.Task {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		require.NoError(t, err)
	}
	return asynq.NewTask(string(name), data)
}

func TestDispatcher_RegistersEveryHandledJob(t *testing.T) {
	m, d := setupTestWorker(t, Config{})
	defer tearDownTestWorker(m)

	for _, name := range []domain.JobName{
		domain.JobProcessBlock,
		domain.JobFindFinalizedBlocks,
		domain.JobFindMissingBlocks,
		domain.JobProcessNftOwners,
		domain.JobRefetchNftHolders,
		domain.JobRefetchNftHoldersGenTask,
	} {
		assert.True(t, d.Handles(name), name)
	}
	assert.False(t, d.Handles(domain.JobUpdateTokenPricing))
}

func TestDispatcher_UnknownJobIsNotRetried(t *testing.T) {
	m, d := setupTestWorker(t, Config{})
	defer tearDownTestWorker(m)

	err := d.ProcessTask(context.Background(), newTask(t, domain.JobUpdateTokenPricing, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnknownJob))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.Contains(t, err.Error(), "UPDATE_TOKEN_PRICING_DETAILS")
}

func TestDispatcher_PropagatesHandlerError(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register("TEST_JOB", func(ctx context.Context, payload []byte) error {
		assert.Equal(t, []byte(`{"a":1}`), payload)
		return errors.New("boom")
	})

	err := d.ProcessTask(context.Background(), asynq.NewTask("TEST_JOB", []byte(`{"a":1}`)))
	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestProcessBlock(t *testing.T) {
	m, d := setupTestWorker(t, Config{})
	defer tearDownTestWorker(m)

	block := &domain.Block{Number: 42, Hash: "0xabc", Timestamp: time.Unix(1700000000, 0).UTC()}
	txs := []domain.EvmTransaction{{
		Hash:        "0xdef",
		BlockNumber: 42,
		Events: []domain.EvmLogEvent{{
			Type: domain.StandardERC721, EventName: "Transfer",
			Address: "0x3333333333333333333333333333333333333333",
			From:    domain.ETHEREUM_ZERO_ADDRESS, To: "0x1111111111111111111111111111111111111111", TokenID: "1",
		}},
	}}
	m.chain.EXPECT().FetchBlock(gomock.Any(), uint64(42)).Return(block, txs, nil)

	require.NoError(t, d.ProcessTask(context.Background(), newTask(t, domain.JobProcessBlock, domain.BlockJobPayload{BlockNumber: 42})))

	last, ok, err := m.store.GetLastBlockNumber(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), last)

	stored, err := m.store.FindUnprocessedEvmTransactions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "0xdef", stored[0].Hash)
}

func TestProcessBlock_FetchError(t *testing.T) {
	m, d := setupTestWorker(t, Config{})
	defer tearDownTestWorker(m)

	m.chain.EXPECT().FetchBlock(gomock.Any(), uint64(42)).Return(nil, nil, errors.New("rpc down"))

	err := d.ProcessTask(context.Background(), newTask(t, domain.JobProcessBlock, domain.BlockJobPayload{BlockNumber: 42}))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	_, ok, err := m.store.GetLastBlockNumber(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProcessBlock_InvalidPayload(t *testing.T) {
	m, d := setupTestWorker(t, Config{})
	defer tearDownTestWorker(m)

	err := d.ProcessTask(context.Background(), asynq.NewTask(string(domain.JobProcessBlock), []byte("not json")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestFindFinalizedBlocks(t *testing.T) {
	m, d := setupTestWorker(t, Config{})
	defer tearDownTestWorker(m)

	ctx := context.Background()
	for n := uint64(1); n <= 5; n++ {
		require.NoError(t, m.store.SaveBlock(ctx, domain.Block{Number: n}))
	}
	m.heads.EXPECT().GetFinalizedBlock(gomock.Any()).Return(uint64(3), nil)

	require.NoError(t, d.ProcessTask(ctx, newTask(t, domain.JobFindFinalizedBlocks, nil)))

	// 1..3 are already finalized
	n, err := m.store.MarkBlocksFinalized(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestFindFinalizedBlocks_HeadError(t *testing.T) {
	m, d := setupTestWorker(t, Config{})
	defer tearDownTestWorker(m)

	m.heads.EXPECT().GetFinalizedBlock(gomock.Any()).Return(uint64(0), errors.New("rpc down"))
	require.Error(t, d.ProcessTask(context.Background(), newTask(t, domain.JobFindFinalizedBlocks, nil)))
}

func TestFindMissingBlocks(t *testing.T) {
	m, d := setupTestWorker(t, Config{StartBlock: 1})
	defer tearDownTestWorker(m)

	ctx := context.Background()
	for _, n := range []uint64{2, 5, 6, 9} {
		require.NoError(t, m.store.SaveBlock(ctx, domain.Block{Number: n}))
	}

	require.NoError(t, d.ProcessTask(ctx, newTask(t, domain.JobFindMissingBlocks, nil)))

	value, err := m.store.GetKeyValue(ctx, domain.MISSING_BLOCKS_KEY)
	require.NoError(t, err)

	var ranges []domain.BlockRange
	require.NoError(t, json.Unmarshal([]byte(value), &ranges))
	assert.Equal(t, []domain.BlockRange{{From: 1, To: 1}, {From: 3, To: 4}, {From: 7, To: 8}}, ranges)
}

func TestFindMissingBlocks_NoBlocks(t *testing.T) {
	m, d := setupTestWorker(t, Config{})
	defer tearDownTestWorker(m)

	require.NoError(t, d.ProcessTask(context.Background(), newTask(t, domain.JobFindMissingBlocks, nil)))

	value, err := m.store.GetKeyValue(context.Background(), domain.MISSING_BLOCKS_KEY)
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestProcessNftOwners(t *testing.T) {
	m, d := setupTestWorker(t, Config{})
	defer tearDownTestWorker(m)

	m.syncer.EXPECT().Run(gomock.Any()).Return(ownership.SyncResult{Events: 3, Updated: 2}, nil)
	require.NoError(t, d.ProcessTask(context.Background(), newTask(t, domain.JobProcessNftOwners, nil)))

	m.syncer.EXPECT().Run(gomock.Any()).Return(ownership.SyncResult{}, domain.ErrUnsupportedEvent)
	err := d.ProcessTask(context.Background(), newTask(t, domain.JobProcessNftOwners, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnsupportedEvent))
}

func TestRefetchNftHolders(t *testing.T) {
	m, d := setupTestWorker(t, Config{})
	defer tearDownTestWorker(m)

	contract := domain.CollectionIDToSingleAddress(7)
	supply := uint64(500)
	m.reconciler.EXPECT().
		Reconcile(gomock.Any(), contract, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, totalSupply *uint64) (reconcile.Result, error) {
			require.NotNil(t, totalSupply)
			assert.Equal(t, supply, *totalSupply)
			return reconcile.Result{Upserted: 1}, nil
		})

	payload := domain.RefetchHoldersPayload{ContractAddress: contract, TotalSupply: &supply}
	require.NoError(t, d.ProcessTask(context.Background(), newTask(t, domain.JobRefetchNftHolders, payload)))
}

func TestRefetchNftHolders_MissingContract(t *testing.T) {
	m, d := setupTestWorker(t, Config{})
	defer tearDownTestWorker(m)

	err := d.ProcessTask(context.Background(), newTask(t, domain.JobRefetchNftHolders, domain.RefetchHoldersPayload{}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestGenRefetchTasks(t *testing.T) {
	m, d := setupTestWorker(t, Config{})
	defer tearDownTestWorker(m)

	ctx := context.Background()
	single := domain.CollectionIDToSingleAddress(1)
	balance := domain.CollectionIDToBalanceAddress(2)
	require.NoError(t, m.store.UpsertCollection(ctx, domain.Collection{ContractAddress: single, Kind: domain.TokenKindSingle}))
	require.NoError(t, m.store.UpsertCollection(ctx, domain.Collection{ContractAddress: balance, Kind: domain.TokenKindBalance}))

	var keys []string
	m.queue.EXPECT().
		Enqueue(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, job domain.Job) error {
			assert.Equal(t, domain.JobRefetchNftHolders, job.Name)
			assert.Equal(t, domain.PriorityRefetch, job.Priority)
			keys = append(keys, job.DedupeKey)
			return nil
		}).
		Times(2)

	require.NoError(t, d.ProcessTask(ctx, newTask(t, domain.JobRefetchNftHoldersGenTask, nil)))
	assert.ElementsMatch(t, []string{
		"REFETCH_NFT_HOLDERS_" + single,
		"REFETCH_NFT_HOLDERS_" + balance,
	}, keys)
}

func TestGenRefetchTasks_EnqueueError(t *testing.T) {
	m, d := setupTestWorker(t, Config{})
	defer tearDownTestWorker(m)

	ctx := context.Background()
	require.NoError(t, m.store.UpsertCollection(ctx, domain.Collection{ContractAddress: domain.CollectionIDToSingleAddress(1), Kind: domain.TokenKindSingle}))
	require.NoError(t, m.store.UpsertCollection(ctx, domain.Collection{ContractAddress: domain.CollectionIDToSingleAddress(2), Kind: domain.TokenKindSingle}))

	gomock.InOrder(
		m.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(errors.New("redis down")),
		m.queue.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return(nil),
	)

	err := d.ProcessTask(ctx, newTask(t, domain.JobRefetchNftHoldersGenTask, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
}
