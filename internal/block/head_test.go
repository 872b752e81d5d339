package block_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"github.com/feral-file/ff-ownership-indexer/internal/block"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/mocks"
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

// testHeadProviderMocks contains all the mocks needed for testing the head provider
type testHeadProviderMocks struct {
	ctrl     *gomock.Controller
	fetcher  *mocks.MockBlockFetcher
	clock    *mocks.MockClock
	provider block.HeadProvider
}

func setupTest(t *testing.T) *testHeadProviderMocks {
	ctrl := gomock.NewController(t)

	mockFetcher := mocks.NewMockBlockFetcher(ctrl)
	mockClock := mocks.NewMockClock(ctrl)

	provider := block.NewHeadProvider(mockFetcher, block.Config{
		TTL:         10 * time.Second,
		StaleWindow: 2 * time.Minute,
	}, mockClock)

	return &testHeadProviderMocks{
		ctrl:     ctrl,
		fetcher:  mockFetcher,
		clock:    mockClock,
		provider: provider,
	}
}

func tearDownTest(tm *testHeadProviderMocks) {
	tm.ctrl.Finish()
}

// headCase binds one head of the provider to the fetcher call backing it
type headCase struct {
	name   string
	get    func(p block.HeadProvider, ctx context.Context) (uint64, error)
	expect func(f *mocks.MockBlockFetcher, ctx context.Context) *gomock.Call
}

var headCases = []headCase{
	{
		name: "latest",
		get: func(p block.HeadProvider, ctx context.Context) (uint64, error) {
			return p.GetLatestBlock(ctx)
		},
		expect: func(f *mocks.MockBlockFetcher, ctx context.Context) *gomock.Call {
			return f.EXPECT().FetchLatestBlock(ctx)
		},
	},
	{
		name: "finalized",
		get: func(p block.HeadProvider, ctx context.Context) (uint64, error) {
			return p.GetFinalizedBlock(ctx)
		},
		expect: func(f *mocks.MockBlockFetcher, ctx context.Context) *gomock.Call {
			return f.EXPECT().FetchFinalizedBlock(ctx)
		},
	},
}

func TestHeadProvider_UsesCacheWithinTTL(t *testing.T) {
	for _, hc := range headCases {
		t.Run(hc.name, func(t *testing.T) {
			tm := setupTest(t)
			defer tearDownTest(tm)

			ctx := context.Background()
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

			tm.clock.EXPECT().Now().Return(now)
			hc.expect(tm.fetcher, ctx).Return(uint64(1000), nil)

			n, err := hc.get(tm.provider, ctx)
			assert.NoError(t, err)
			assert.Equal(t, uint64(1000), n)

			// Within TTL: the fetcher is not called again
			tm.clock.EXPECT().Now().Return(now.Add(5 * time.Second))

			n, err = hc.get(tm.provider, ctx)
			assert.NoError(t, err)
			assert.Equal(t, uint64(1000), n)
		})
	}
}

func TestHeadProvider_RefreshesAfterTTL(t *testing.T) {
	for _, hc := range headCases {
		t.Run(hc.name, func(t *testing.T) {
			tm := setupTest(t)
			defer tearDownTest(tm)

			ctx := context.Background()
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

			tm.clock.EXPECT().Now().Return(now)
			hc.expect(tm.fetcher, ctx).Return(uint64(1000), nil)
			_, err := hc.get(tm.provider, ctx)
			assert.NoError(t, err)

			tm.clock.EXPECT().Now().Return(now.Add(15 * time.Second))
			hc.expect(tm.fetcher, ctx).Return(uint64(1100), nil)

			n, err := hc.get(tm.provider, ctx)
			assert.NoError(t, err)
			assert.Equal(t, uint64(1100), n)
		})
	}
}

func TestHeadProvider_NeverMovesBackwards(t *testing.T) {
	tm := setupTest(t)
	defer tearDownTest(tm)

	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tm.clock.EXPECT().Now().Return(now)
	tm.fetcher.EXPECT().FetchLatestBlock(ctx).Return(uint64(1000), nil)
	_, err := tm.provider.GetLatestBlock(ctx)
	assert.NoError(t, err)

	// A lagging RPC node reports an older head
	tm.clock.EXPECT().Now().Return(now.Add(15 * time.Second))
	tm.fetcher.EXPECT().FetchLatestBlock(ctx).Return(uint64(990), nil)

	n, err := tm.provider.GetLatestBlock(ctx)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1000), n)
}

func TestHeadProvider_UsesStaleCacheOnError(t *testing.T) {
	for _, hc := range headCases {
		t.Run(hc.name, func(t *testing.T) {
			tm := setupTest(t)
			defer tearDownTest(tm)

			ctx := context.Background()
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

			tm.clock.EXPECT().Now().Return(now)
			hc.expect(tm.fetcher, ctx).Return(uint64(1000), nil)
			_, err := hc.get(tm.provider, ctx)
			assert.NoError(t, err)

			// Beyond TTL but within StaleWindow
			tm.clock.EXPECT().Now().Return(now.Add(30 * time.Second))
			hc.expect(tm.fetcher, ctx).Return(uint64(0), errors.New("network error"))

			n, err := hc.get(tm.provider, ctx)
			assert.NoError(t, err)
			assert.Equal(t, uint64(1000), n)
		})
	}
}

func TestHeadProvider_ErrorWithoutUsableCache(t *testing.T) {
	for _, hc := range headCases {
		t.Run(hc.name+"/no cache", func(t *testing.T) {
			tm := setupTest(t)
			defer tearDownTest(tm)

			ctx := context.Background()
			tm.clock.EXPECT().Now().Return(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
			hc.expect(tm.fetcher, ctx).Return(uint64(0), errors.New("network error"))

			n, err := hc.get(tm.provider, ctx)
			assert.Error(t, err)
			assert.Equal(t, uint64(0), n)
			assert.Contains(t, err.Error(), "no valid cache available")
		})

		t.Run(hc.name+"/beyond stale window", func(t *testing.T) {
			tm := setupTest(t)
			defer tearDownTest(tm)

			ctx := context.Background()
			now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

			tm.clock.EXPECT().Now().Return(now)
			hc.expect(tm.fetcher, ctx).Return(uint64(1000), nil)
			_, err := hc.get(tm.provider, ctx)
			assert.NoError(t, err)

			tm.clock.EXPECT().Now().Return(now.Add(5 * time.Minute))
			hc.expect(tm.fetcher, ctx).Return(uint64(0), errors.New("network error"))

			n, err := hc.get(tm.provider, ctx)
			assert.Error(t, err)
			assert.Equal(t, uint64(0), n)
		})
	}
}

func TestHeadProvider_HeadsAreCachedIndependently(t *testing.T) {
	tm := setupTest(t)
	defer tearDownTest(tm)

	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tm.clock.EXPECT().Now().Return(now).Times(4)
	tm.fetcher.EXPECT().FetchLatestBlock(ctx).Return(uint64(1000), nil).Times(1)
	tm.fetcher.EXPECT().FetchFinalizedBlock(ctx).Return(uint64(990), nil).Times(1)

	for range 2 {
		latest, err := tm.provider.GetLatestBlock(ctx)
		assert.NoError(t, err)
		assert.Equal(t, uint64(1000), latest)

		finalized, err := tm.provider.GetFinalizedBlock(ctx)
		assert.NoError(t, err)
		assert.Equal(t, uint64(990), finalized)
	}
}

func TestHeadProvider_ConcurrentAccess(t *testing.T) {
	tm := setupTest(t)
	defer tearDownTest(tm)

	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tm.fetcher.EXPECT().FetchLatestBlock(ctx).Return(uint64(1000), nil).AnyTimes()
	tm.clock.EXPECT().Now().Return(now).AnyTimes()

	done := make(chan bool, 10)
	for range 10 {
		go func() {
			blockNum, err := tm.provider.GetLatestBlock(ctx)
			assert.NoError(t, err)
			assert.Equal(t, uint64(1000), blockNum)
			done <- true
		}()
	}

	for range 10 {
		<-done
	}
}
