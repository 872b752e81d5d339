package scheduler

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

	"github.com/feral-file/ff-ownership-indexer/internal/admission"
	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/mocks"
	"github.com/feral-file/ff-ownership-indexer/internal/providers/ethereum"
	"github.com/feral-file/ff-ownership-indexer/internal/queue"
	"github.com/feral-file/ff-ownership-indexer/internal/store"
)

func TestMain(m *testing.M) {
	if err := logger.Initialize(logger.Config{Debug: false}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type testSchedulerMocks struct {
	ctrl     *gomock.Controller
	chain    *mocks.MockChainClient
	queue    *mocks.MockQueue
	periodic *mocks.MockQueueScheduler
	clock    *mocks.MockClock
	store    store.Store
	limiter  *admission.Limiter[uint64]
}

func setupTestScheduler(t *testing.T, cfg Config) (*testSchedulerMocks, *Scheduler) {
	ctrl := gomock.NewController(t)
	m := &testSchedulerMocks{
		ctrl:     ctrl,
		chain:    mocks.NewMockChainClient(ctrl),
		queue:    mocks.NewMockQueue(ctrl),
		periodic: mocks.NewMockQueueScheduler(ctrl),
		clock:    mocks.NewMockClock(ctrl),
		store:    store.NewMemoryStore(),
	}
	m.limiter = admission.NewLimiter(admission.Config{InFlightLimit: 10, Interval: time.Second}, m.queue, domain.NewBlockJob, m.clock, nil)

	s := NewScheduler(cfg, m.store, m.chain, m.limiter, m.periodic, queue.Config{MaxRetry: 3}, m.clock)
	return m, s
}

func tearDownTestScheduler(m *testSchedulerMocks) {
	m.ctrl.Finish()
}

func saveBlocks(t *testing.T, st store.Store, numbers ...uint64) {
	for _, n := range numbers {
		require.NoError(t, st.SaveBlock(context.Background(), domain.Block{Number: n}))
	}
}

func TestRecurringJobs_OnlyEnabled(t *testing.T) {
	m, s := setupTestScheduler(t, Config{
		FinalizedBlocksInterval: 4 * time.Second,
		OwnershipSyncInterval:   30 * time.Second,
		ReconcileRefreshPeriod:  24 * time.Hour,
	})
	defer tearDownTestScheduler(m)

	jobs := s.RecurringJobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, domain.JobFindFinalizedBlocks, jobs[0].Name)
	assert.Equal(t, domain.JobProcessNftOwners, jobs[1].Name)
	assert.Equal(t, domain.JobRefetchNftHoldersGenTask, jobs[2].Name)
	for _, job := range jobs {
		assert.Equal(t, string(job.Name), job.DedupeKey)
	}
}

func TestBootstrap_RegistersRecurringJobs(t *testing.T) {
	m, s := setupTestScheduler(t, Config{
		FinalizedBlocksInterval: 4 * time.Second,
		MissingBlocksInterval:   6 * time.Hour,
	})
	defer tearDownTestScheduler(m)

	registered := map[string]string{}
	unique := map[string]interface{}{}
	m.periodic.EXPECT().
		Register(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(spec string, task *asynq.Task, opts ...asynq.Option) (string, error) {
			for _, opt := range opts {
				// a task id would stay taken by an archived run and block later periods
				assert.NotEqual(t, asynq.TaskIDOpt, opt.Type())
				if opt.Type() == asynq.UniqueOpt {
					unique[task.Type()] = opt.Value()
				}
			}
			registered[task.Type()] = spec
			return "entry-" + task.Type(), nil
		}).
		Times(2)
	m.periodic.EXPECT().Start().Return(nil)

	require.NoError(t, s.Bootstrap(context.Background()))
	assert.Equal(t, map[string]string{
		string(domain.JobFindFinalizedBlocks): "@every 4s",
		string(domain.JobFindMissingBlocks):   "@every 6h0m0s",
	}, registered)
	assert.Equal(t, map[string]interface{}{
		string(domain.JobFindFinalizedBlocks): 4 * time.Second,
		string(domain.JobFindMissingBlocks):   6 * time.Hour,
	}, unique)
}

func TestBootstrap_RegisterError(t *testing.T) {
	m, s := setupTestScheduler(t, Config{FinalizedBlocksInterval: 4 * time.Second})
	defer tearDownTestScheduler(m)

	m.periodic.EXPECT().Register(gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("bad spec"))

	err := s.Bootstrap(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FIND_FINALIZED_BLOCKS")
}

func TestBackfill(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		stored   []uint64
		head     uint64
		gaps     []domain.BlockRange
		expected int
	}{
		{
			name:     "empty store starts at zero",
			head:     5,
			expected: 6,
		},
		{
			name:     "empty store starts at start block",
			cfg:      Config{StartBlock: 3},
			head:     5,
			expected: 3,
		},
		{
			name:     "resumes after last stored block",
			stored:   []uint64{99, 100},
			head:     105,
			expected: 5,
		},
		{
			name:     "rewinds before last stored block",
			cfg:      Config{BackfillRewind: 10},
			stored:   []uint64{100},
			head:     105,
			expected: 15,
		},
		{
			name:     "rewind larger than chain",
			cfg:      Config{BackfillRewind: 1000},
			stored:   []uint64{4},
			head:     5,
			expected: 6,
		},
		{
			name:     "caught up",
			stored:   []uint64{105},
			head:     105,
			expected: 0,
		},
		{
			name:     "adds recorded gaps",
			stored:   []uint64{105},
			head:     105,
			gaps:     []domain.BlockRange{{From: 10, To: 12}, {From: 50, To: 50}},
			expected: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, s := setupTestScheduler(t, tt.cfg)
			defer tearDownTestScheduler(m)

			saveBlocks(t, m.store, tt.stored...)
			if tt.gaps != nil {
				data, err := json.Marshal(tt.gaps)
				require.NoError(t, err)
				require.NoError(t, m.store.SetKeyValue(context.Background(), domain.MISSING_BLOCKS_KEY, string(data)))
			}
			m.chain.EXPECT().GetChainHead(gomock.Any()).Return(tt.head, nil)

			head, err := s.Backfill(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.head, head)
			assert.Equal(t, tt.expected, m.limiter.Len())
		})
	}
}

func TestBackfill_HeadError(t *testing.T) {
	m, s := setupTestScheduler(t, Config{})
	defer tearDownTestScheduler(m)

	m.chain.EXPECT().GetChainHead(gomock.Any()).Return(uint64(0), errors.New("rpc down"))

	_, err := s.Backfill(context.Background())
	require.Error(t, err)
	assert.Zero(t, m.limiter.Len())
}

func TestFeedGaps_InvalidValue(t *testing.T) {
	m, s := setupTestScheduler(t, Config{})
	defer tearDownTestScheduler(m)

	require.NoError(t, m.store.SetKeyValue(context.Background(), domain.MISSING_BLOCKS_KEY, "not json"))

	_, err := s.FeedGaps(context.Background())
	require.Error(t, err)
}

func TestOnNewBlock_FillsSkippedBlocks(t *testing.T) {
	m, s := setupTestScheduler(t, Config{})
	defer tearDownTestScheduler(m)

	saveBlocks(t, m.store, 105)
	m.chain.EXPECT().GetChainHead(gomock.Any()).Return(uint64(105), nil)
	_, err := s.Backfill(context.Background())
	require.NoError(t, err)
	require.Zero(t, m.limiter.Len())

	ctx := context.Background()
	require.NoError(t, s.OnNewBlock(ctx, 106))
	assert.Equal(t, 1, m.limiter.Len())

	// 107 and 108 were never announced
	require.NoError(t, s.OnNewBlock(ctx, 109))
	assert.Equal(t, 4, m.limiter.Len())

	// stale or repeated heads add nothing
	require.NoError(t, s.OnNewBlock(ctx, 109))
	require.NoError(t, s.OnNewBlock(ctx, 100))
	assert.Equal(t, 4, m.limiter.Len())
}

func TestRun(t *testing.T) {
	m, s := setupTestScheduler(t, Config{OwnershipSyncInterval: time.Minute, GapPollInterval: time.Minute})
	defer tearDownTestScheduler(m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticker := mocks.NewMockTicker(m.ctrl)
	ticker.EXPECT().C().Return(make(chan time.Time)).AnyTimes()
	ticker.EXPECT().Stop().Times(2)
	m.clock.EXPECT().NewTicker(gomock.Any()).Return(ticker).Times(2)

	m.periodic.EXPECT().Register("@every 1m0s", gomock.Any(), gomock.Any()).Return("entry", nil)
	m.periodic.EXPECT().Start().Return(nil)
	m.periodic.EXPECT().Shutdown()
	m.chain.EXPECT().GetChainHead(gomock.Any()).Return(uint64(5), nil)
	m.chain.EXPECT().
		SubscribeNewBlocks(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, handler ethereum.BlockHandler) error {
			assert.NoError(t, handler(ctx, 7))
			cancel()
			<-ctx.Done()
			return nil
		})

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 8, m.limiter.Len())
}
