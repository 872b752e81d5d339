package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/feral-file/ff-ownership-indexer/internal/block"
	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/ownership"
	"github.com/feral-file/ff-ownership-indexer/internal/providers/ethereum"
	"github.com/feral-file/ff-ownership-indexer/internal/queue"
	"github.com/feral-file/ff-ownership-indexer/internal/reconcile"
	"github.com/feral-file/ff-ownership-indexer/internal/store"
)

// Config holds the handler configuration
type Config struct {
	// StartBlock is the first block the missing block scan covers
	StartBlock uint64
}

// Handlers implements the job handlers of the worker
type Handlers struct {
	cfg        Config
	store      store.Store
	chain      ethereum.ChainClient
	heads      block.HeadProvider
	syncer     ownership.Syncer
	reconciler reconcile.Reconciler
	queue      queue.Queue
}

// NewHandlers creates the job handlers
func NewHandlers(
	cfg Config,
	st store.Store,
	chain ethereum.ChainClient,
	heads block.HeadProvider,
	syncer ownership.Syncer,
	reconciler reconcile.Reconciler,
	q queue.Queue,
) *Handlers {
	return &Handlers{
		cfg:        cfg,
		store:      st,
		chain:      chain,
		heads:      heads,
		syncer:     syncer,
		reconciler: reconciler,
		queue:      q,
	}
}

// Register registers every handler on the dispatcher
func (h *Handlers) Register(d *Dispatcher) {
	d.Register(domain.JobProcessBlock, h.ProcessBlock)
	d.Register(domain.JobFindFinalizedBlocks, h.FindFinalizedBlocks)
	d.Register(domain.JobFindMissingBlocks, h.FindMissingBlocks)
	d.Register(domain.JobProcessNftOwners, h.ProcessNftOwners)
	d.Register(domain.JobRefetchNftHolders, h.RefetchNftHolders)
	d.Register(domain.JobRefetchNftHoldersGenTask, h.GenRefetchTasks)
}

// ProcessBlock stores a block and its token transfer transactions.
// Transactions are stored first so a stored block always has its transactions.
func (h *Handlers) ProcessBlock(ctx context.Context, payload []byte) error {
	var p domain.BlockJobPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	b, txs, err := h.chain.FetchBlock(ctx, p.BlockNumber)
	if err != nil {
		return fmt.Errorf("failed to fetch block %d: %w", p.BlockNumber, err)
	}

	if len(txs) > 0 {
		if err := h.store.SaveEvmTransactions(ctx, txs); err != nil {
			return fmt.Errorf("failed to save transactions of block %d: %w", p.BlockNumber, err)
		}
	}
	if err := h.store.SaveBlock(ctx, *b); err != nil {
		return fmt.Errorf("failed to save block %d: %w", p.BlockNumber, err)
	}

	logger.DebugCtx(ctx, "Processed block", zap.Uint64("block", p.BlockNumber), zap.Int("transactions", len(txs)))
	return nil
}

// FindFinalizedBlocks marks the stored blocks up to the finalized head as finalized
func (h *Handlers) FindFinalizedBlocks(ctx context.Context, _ []byte) error {
	finalized, err := h.heads.GetFinalizedBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to get finalized block: %w", err)
	}

	n, err := h.store.MarkBlocksFinalized(ctx, finalized)
	if err != nil {
		return fmt.Errorf("failed to mark blocks finalized: %w", err)
	}

	if n > 0 {
		logger.InfoCtx(ctx, "Marked blocks finalized", zap.Uint64("upTo", finalized), zap.Int64("count", n))
	}
	return nil
}

// FindMissingBlocks records the gaps between the start block and the last stored block
func (h *Handlers) FindMissingBlocks(ctx context.Context, _ []byte) error {
	last, ok, err := h.store.GetLastBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get last stored block: %w", err)
	}
	if !ok || last < h.cfg.StartBlock {
		return nil
	}

	ranges, err := h.store.FindMissingBlockRanges(ctx, h.cfg.StartBlock, last)
	if err != nil {
		return fmt.Errorf("failed to find missing blocks: %w", err)
	}

	data, err := json.Marshal(ranges)
	if err != nil {
		return fmt.Errorf("failed to marshal missing blocks: %w", err)
	}
	if err := h.store.SetKeyValue(ctx, domain.MISSING_BLOCKS_KEY, string(data)); err != nil {
		return fmt.Errorf("failed to save missing blocks: %w", err)
	}

	var missing uint64
	for _, r := range ranges {
		missing += r.Len()
	}
	logger.InfoCtx(ctx, "Recorded missing blocks", zap.Int("ranges", len(ranges)), zap.Uint64("blocks", missing))
	return nil
}

// ProcessNftOwners runs the incremental ownership sync to convergence
func (h *Handlers) ProcessNftOwners(ctx context.Context, _ []byte) error {
	result, err := h.syncer.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to sync ownership: %w", err)
	}

	logger.InfoCtx(ctx, "Ownership synced",
		zap.Int("events", result.Events),
		zap.Int("transactions", result.Transactions),
		zap.Int("updated", result.Updated),
		zap.Int("deleted", result.Deleted),
	)
	return nil
}

// RefetchNftHolders reconciles one collection against chain state
func (h *Handlers) RefetchNftHolders(ctx context.Context, payload []byte) error {
	var p domain.RefetchHoldersPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if p.ContractAddress == "" {
		return fmt.Errorf("missing contract address: %w", asynq.SkipRetry)
	}

	if _, err := h.reconciler.Reconcile(ctx, p.ContractAddress, p.TotalSupply); err != nil {
		return fmt.Errorf("failed to reconcile %s: %w", p.ContractAddress, err)
	}
	return nil
}

// GenRefetchTasks enqueues one reconciliation job per tracked collection
func (h *Handlers) GenRefetchTasks(ctx context.Context, _ []byte) error {
	collections, err := h.store.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	var errs []error
	enqueued := 0
	for _, collection := range collections {
		if !collection.Kind.IsValid() {
			continue
		}
		if err := h.queue.Enqueue(ctx, domain.NewRefetchHoldersJob(collection)); err != nil {
			errs = append(errs, err)
			continue
		}
		enqueued++
	}

	logger.InfoCtx(ctx, "Generated reconciliation jobs", zap.Int("enqueued", enqueued), zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}
