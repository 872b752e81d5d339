package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/feral-file/ff-ownership-indexer/internal/adapter"
	"github.com/feral-file/ff-ownership-indexer/internal/admission"
	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/providers/ethereum"
	"github.com/feral-file/ff-ownership-indexer/internal/queue"
	"github.com/feral-file/ff-ownership-indexer/internal/store"
)

// Config holds the scheduler configuration.
// A zero interval leaves the recurring job unregistered.
type Config struct {
	FinalizedBlocksInterval   time.Duration
	MissingBlocksInterval     time.Duration
	OwnershipSyncInterval     time.Duration
	ReconcileRefreshPeriod    time.Duration
	PricingInterval           time.Duration
	VerifiedContractsInterval time.Duration
	StakingValidatorsInterval time.Duration
	BackfillRewind            uint64
	GapPollInterval           time.Duration
	StartBlock                uint64
}

// Scheduler bootstraps recurring jobs and feeds discovered blocks into admission
type Scheduler struct {
	cfg       Config
	store     store.Store
	chain     ethereum.ChainClient
	admission *admission.Limiter[uint64]
	periodic  adapter.QueueScheduler
	queueCfg  queue.Config
	clock     adapter.Clock

	mu       sync.Mutex
	lastSeen uint64
}

// NewScheduler creates a new scheduler
func NewScheduler(
	cfg Config,
	st store.Store,
	chain ethereum.ChainClient,
	limiter *admission.Limiter[uint64],
	periodic adapter.QueueScheduler,
	queueCfg queue.Config,
	clock adapter.Clock,
) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		store:     st,
		chain:     chain,
		admission: limiter,
		periodic:  periodic,
		queueCfg:  queueCfg,
		clock:     clock,
	}
}

// RecurringJobs returns the recurring jobs enabled by the configuration
func (s *Scheduler) RecurringJobs() []domain.Job {
	intervals := []struct {
		name     domain.JobName
		interval time.Duration
	}{
		{domain.JobFindFinalizedBlocks, s.cfg.FinalizedBlocksInterval},
		{domain.JobFindMissingBlocks, s.cfg.MissingBlocksInterval},
		{domain.JobProcessNftOwners, s.cfg.OwnershipSyncInterval},
		{domain.JobRefetchNftHoldersGenTask, s.cfg.ReconcileRefreshPeriod},
		{domain.JobUpdateTokenPricing, s.cfg.PricingInterval},
		{domain.JobCheckVerifiedContracts, s.cfg.VerifiedContractsInterval},
		{domain.JobUpdateStakingValidators, s.cfg.StakingValidatorsInterval},
	}

	var jobs []domain.Job
	for _, i := range intervals {
		if i.interval > 0 {
			jobs = append(jobs, domain.NewRecurringJob(i.name, i.interval))
		}
	}
	return jobs
}

// Bootstrap registers the recurring jobs. A run is not enqueued while the previous
// one of the same job still holds its uniqueness lock.
func (s *Scheduler) Bootstrap(ctx context.Context) error {
	for _, job := range s.RecurringJobs() {
		task, opts, err := queue.NewTask(job, s.queueCfg)
		if err != nil {
			return err
		}

		spec := fmt.Sprintf("@every %s", job.RepeatInterval)
		if _, err := s.periodic.Register(spec, task, opts...); err != nil {
			return fmt.Errorf("failed to register recurring job %s: %w", job.Name, err)
		}

		logger.InfoCtx(ctx, "Registered recurring job",
			zap.String("job", string(job.Name)),
			zap.Duration("interval", job.RepeatInterval),
		)
	}

	if err := s.periodic.Start(); err != nil {
		return fmt.Errorf("failed to start periodic scheduler: %w", err)
	}
	return nil
}

// Backfill feeds every block between the last stored block and the chain head,
// plus the recorded gaps, into admission. It returns the chain head.
func (s *Scheduler) Backfill(ctx context.Context) (uint64, error) {
	head, err := s.chain.GetChainHead(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get chain head: %w", err)
	}

	last, ok, err := s.store.GetLastBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get last stored block: %w", err)
	}

	from := s.cfg.StartBlock
	if ok {
		from = max(s.cfg.StartBlock, last+1-min(s.cfg.BackfillRewind, last+1))
	}

	if from <= head {
		s.admission.AddBulk(blockNumbers(domain.BlockRange{From: from, To: head}))
	}
	s.setLastSeen(head)

	logger.InfoCtx(ctx, "Backfill range scheduled",
		zap.Uint64("from", from),
		zap.Uint64("to", head),
		zap.Bool("hasStoredBlocks", ok),
	)

	if _, err := s.FeedGaps(ctx); err != nil {
		return head, err
	}
	return head, nil
}

// FeedGaps adds the block ranges recorded as missing to admission and returns how many blocks were added
func (s *Scheduler) FeedGaps(ctx context.Context) (int, error) {
	value, err := s.store.GetKeyValue(ctx, domain.MISSING_BLOCKS_KEY)
	if err != nil {
		return 0, fmt.Errorf("failed to get missing blocks: %w", err)
	}
	if value == "" {
		return 0, nil
	}

	var ranges []domain.BlockRange
	if err := json.Unmarshal([]byte(value), &ranges); err != nil {
		return 0, fmt.Errorf("failed to unmarshal missing blocks: %w", err)
	}

	added := 0
	for _, r := range ranges {
		numbers := blockNumbers(r)
		s.admission.AddBulk(numbers)
		added += len(numbers)
	}

	if added > 0 {
		logger.InfoCtx(ctx, "Scheduled missing blocks", zap.Int("ranges", len(ranges)), zap.Int("blocks", added))
	}
	return added, nil
}

// OnNewBlock feeds a newly observed head, and any block skipped since the previous head, into admission
func (s *Scheduler) OnNewBlock(ctx context.Context, blockNumber uint64) error {
	s.mu.Lock()
	from := s.lastSeen + 1
	if blockNumber > s.lastSeen {
		s.lastSeen = blockNumber
	}
	s.mu.Unlock()

	if blockNumber < from {
		return nil
	}

	if skipped := blockNumber - from; skipped > 0 {
		logger.WarnCtx(ctx, "Skipped blocks between heads", zap.Uint64("from", from), zap.Uint64("count", skipped))
	}
	s.admission.AddBulk(blockNumbers(domain.BlockRange{From: from, To: blockNumber}))
	return nil
}

func (s *Scheduler) setLastSeen(blockNumber uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if blockNumber > s.lastSeen {
		s.lastSeen = blockNumber
	}
}

// Run bootstraps, backfills and then runs the admission loop, the head
// subscription and the gap poller until the context is canceled
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Bootstrap(ctx); err != nil {
		return err
	}
	defer s.periodic.Shutdown()

	if _, err := s.Backfill(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.admission.Run(ctx)
	})
	g.Go(func() error {
		return s.chain.SubscribeNewBlocks(ctx, s.OnNewBlock)
	})
	g.Go(func() error {
		return s.pollGaps(ctx)
	})

	return g.Wait()
}

func (s *Scheduler) pollGaps(ctx context.Context) error {
	if s.cfg.GapPollInterval <= 0 {
		return nil
	}

	ticker := s.clock.NewTicker(s.cfg.GapPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			if _, err := s.FeedGaps(ctx); err != nil {
				logger.ErrorCtx(ctx, err)
			}
		}
	}
}

func blockNumbers(r domain.BlockRange) []uint64 {
	numbers := make([]uint64, 0, r.Len())
	for n := r.From; n <= r.To; n++ {
		numbers = append(numbers, n)
		if n == r.To {
			break
		}
	}
	return numbers
}
