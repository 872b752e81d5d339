package admission

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
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

type testLimiterMocks struct {
	ctrl  *gomock.Controller
	queue *mocks.MockQueue
	clock *mocks.MockClock
}

func setupTestLimiter(t *testing.T, limit int) (*testLimiterMocks, *Limiter[uint64]) {
	ctrl := gomock.NewController(t)
	m := &testLimiterMocks{
		ctrl:  ctrl,
		queue: mocks.NewMockQueue(ctrl),
		clock: mocks.NewMockClock(ctrl),
	}
	l := NewLimiter(Config{InFlightLimit: limit, Interval: time.Second}, m.queue, domain.NewBlockJob, m.clock, nil)
	return m, l
}

func tearDownTestLimiter(m *testLimiterMocks) {
	m.ctrl.Finish()
}

func blockRange(from, to uint64) []uint64 {
	var items []uint64
	for n := from; n <= to; n++ {
		items = append(items, n)
	}
	return items
}

func dedupeKeys(jobs []domain.Job) []string {
	keys := make([]string, len(jobs))
	for i, job := range jobs {
		keys[i] = job.DedupeKey
	}
	return keys
}

func TestTick_EmptyBufferIsNoop(t *testing.T) {
	m, l := setupTestLimiter(t, 10)
	defer tearDownTestLimiter(m)

	admitted, err := l.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, admitted)
}

func TestTick_AdmitsOldestFirstUpToRoom(t *testing.T) {
	m, l := setupTestLimiter(t, 10)
	defer tearDownTestLimiter(m)

	l.AddBulk(blockRange(1, 50))

	m.queue.EXPECT().CurrentDepth(gomock.Any()).Return(4, nil)
	m.queue.EXPECT().
		EnqueueBulk(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, jobs []domain.Job) (int, error) {
			assert.Equal(t, []string{"BLOCK_1", "BLOCK_2", "BLOCK_3", "BLOCK_4", "BLOCK_5", "BLOCK_6"}, dedupeKeys(jobs))
			return len(jobs), nil
		})

	admitted, err := l.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, admitted)
	assert.Equal(t, 44, l.Len())
}

func TestTick_QueueFull(t *testing.T) {
	m, l := setupTestLimiter(t, 10)
	defer tearDownTestLimiter(m)

	l.Add(1)
	m.queue.EXPECT().CurrentDepth(gomock.Any()).Return(12, nil)

	admitted, err := l.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, admitted)
	assert.Equal(t, 1, l.Len())
}

func TestTick_BackpressureBound(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		depth    int
		buffered int
		expected int
	}{
		{name: "room larger than buffer", limit: 100, depth: 0, buffered: 7, expected: 7},
		{name: "buffer larger than room", limit: 100, depth: 60, buffered: 1000, expected: 40},
		{name: "exactly full", limit: 100, depth: 100, buffered: 5, expected: 0},
		{name: "over full", limit: 100, depth: 250, buffered: 5, expected: 0},
		{name: "one slot", limit: 1, depth: 0, buffered: 3, expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, l := setupTestLimiter(t, tt.limit)
			defer tearDownTestLimiter(m)

			l.AddBulk(blockRange(1, uint64(tt.buffered)))
			m.queue.EXPECT().CurrentDepth(gomock.Any()).Return(tt.depth, nil)
			if tt.expected > 0 {
				m.queue.EXPECT().
					EnqueueBulk(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, jobs []domain.Job) (int, error) {
						assert.LessOrEqual(t, len(jobs), max(0, tt.limit-tt.depth))
						return len(jobs), nil
					})
			}

			admitted, err := l.Tick(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, admitted)
			assert.Equal(t, tt.buffered-tt.expected, l.Len())
		})
	}
}

func TestTick_PartialEnqueueKeepsRemainder(t *testing.T) {
	m, l := setupTestLimiter(t, 10)
	defer tearDownTestLimiter(m)

	l.AddBulk(blockRange(1, 5))
	m.queue.EXPECT().CurrentDepth(gomock.Any()).Return(0, nil)
	m.queue.EXPECT().EnqueueBulk(gomock.Any(), gomock.Any()).Return(2, errors.New("redis down"))

	admitted, err := l.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, admitted)
	assert.Equal(t, 3, l.Len())

	// The remainder is retried first on the next tick
	m.queue.EXPECT().CurrentDepth(gomock.Any()).Return(0, nil)
	m.queue.EXPECT().
		EnqueueBulk(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, jobs []domain.Job) (int, error) {
			assert.Equal(t, []string{"BLOCK_3", "BLOCK_4", "BLOCK_5"}, dedupeKeys(jobs))
			return len(jobs), nil
		})

	admitted, err = l.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, admitted)
	assert.Zero(t, l.Len())
}

func TestTick_DepthError(t *testing.T) {
	m, l := setupTestLimiter(t, 10)
	defer tearDownTestLimiter(m)

	l.Add(1)
	m.queue.EXPECT().CurrentDepth(gomock.Any()).Return(0, errors.New("redis down"))

	_, err := l.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, l.Len())
}

func TestRun_TicksUntilCanceled(t *testing.T) {
	m, l := setupTestLimiter(t, 10)
	defer tearDownTestLimiter(m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := make(chan time.Time, 1)
	ticker := mocks.NewMockTicker(m.ctrl)
	ticker.EXPECT().C().Return(ticks).AnyTimes()
	ticker.EXPECT().Stop()
	m.clock.EXPECT().NewTicker(time.Second).Return(ticker)

	l.AddBulk(blockRange(1, 3))
	m.queue.EXPECT().CurrentDepth(gomock.Any()).Return(0, nil)
	m.queue.EXPECT().
		EnqueueBulk(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, jobs []domain.Job) (int, error) {
			cancel()
			return len(jobs), nil
		})

	ticks <- time.Now()
	require.NoError(t, l.Run(ctx))
	assert.Zero(t, l.Len())
}

func TestAdd_ConcurrentWithTick(t *testing.T) {
	m, l := setupTestLimiter(t, 1000)
	defer tearDownTestLimiter(m)

	m.queue.EXPECT().CurrentDepth(gomock.Any()).Return(0, nil).AnyTimes()
	m.queue.EXPECT().
		EnqueueBulk(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, jobs []domain.Job) (int, error) {
			return len(jobs), nil
		}).
		AnyTimes()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for n := uint64(0); n < 500; n++ {
			l.Add(n)
		}
	}()

	total := 0
	for i := 0; i < 50; i++ {
		admitted, err := l.Tick(context.Background())
		require.NoError(t, err)
		total += admitted
	}
	<-done

	for l.Len() > 0 {
		admitted, err := l.Tick(context.Background())
		require.NoError(t, err)
		total += admitted
	}
	assert.Equal(t, 500, total)
}
