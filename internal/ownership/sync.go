package ownership

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/messaging"
	"github.com/feral-file/ff-ownership-indexer/internal/metadata"
	"github.com/feral-file/ff-ownership-indexer/internal/metrics"
	"github.com/feral-file/ff-ownership-indexer/internal/parser"
	"github.com/feral-file/ff-ownership-indexer/internal/store"
)

// Config holds the sync engine configuration
type Config struct {
	FetchLimit          int // Unprocessed records fetched per source kind and round
	SubBatchSize        int // Records applied per transaction
	MetadataConcurrency int // Concurrent metadata lookups per sub-batch
}

// SyncResult summarises one run to convergence
type SyncResult struct {
	Events       int
	Transactions int
	Updated      int
	Deleted      int
}

// Syncer converts unprocessed source records into ownership writes
//
//go:generate mockgen -source=sync.go -destination=../mocks/ownership_syncer.go -package=mocks -mock_names=Syncer=MockSyncer
type Syncer interface {
	// Run processes the backlog until a fetch returns fewer records than the fetch limit
	Run(ctx context.Context) (SyncResult, error)
}

type syncer struct {
	cfg       Config
	store     store.Store
	registry  *parser.Registry
	resolver  metadata.Resolver
	publisher messaging.Publisher
	metrics   *metrics.Metrics
}

// NewSyncer creates a new incremental ownership sync engine.
// A nil resolver leaves metadata untouched, a nil publisher disables change notifications.
func NewSyncer(
	cfg Config,
	st store.Store,
	registry *parser.Registry,
	resolver metadata.Resolver,
	publisher messaging.Publisher,
	m *metrics.Metrics,
) Syncer {
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = domain.DEFAULT_SYNC_FETCH_LIMIT
	}
	if cfg.SubBatchSize <= 0 {
		cfg.SubBatchSize = domain.DEFAULT_SYNC_SUB_BATCH_SIZE
	}
	if cfg.MetadataConcurrency <= 0 {
		cfg.MetadataConcurrency = 10
	}
	if registry == nil {
		registry = parser.NewRegistry()
	}
	if publisher == nil {
		publisher = messaging.NewNopPublisher()
	}

	return &syncer{
		cfg:       cfg,
		store:     st,
		registry:  registry,
		resolver:  resolver,
		publisher: publisher,
		metrics:   m,
	}
}

func (s *syncer) Run(ctx context.Context) (SyncResult, error) {
	var result SyncResult
	start := time.Now()

	pool := pond.NewPool(s.cfg.MetadataConcurrency, pond.WithContext(ctx))
	defer pool.StopAndWait()

	for round := 1; ; round++ {
		events, err := s.store.FindUnprocessedEvents(ctx, s.cfg.FetchLimit)
		if err != nil {
			return result, fmt.Errorf("failed to fetch unprocessed events: %w", err)
		}
		txs, err := s.store.FindUnprocessedEvmTransactions(ctx, s.cfg.FetchLimit)
		if err != nil {
			return result, fmt.Errorf("failed to fetch unprocessed EVM transactions: %w", err)
		}

		logger.DebugCtx(ctx, "Fetched unprocessed source records",
			zap.Int("round", round),
			zap.Int("events", len(events)),
			zap.Int("transactions", len(txs)),
		)

		for _, part := range chunk(events, s.cfg.SubBatchSize) {
			if err := s.applyEvents(ctx, pool, part, &result); err != nil {
				return s.stop(ctx, result, err)
			}
		}
		for _, part := range chunk(txs, s.cfg.SubBatchSize) {
			if err := s.applyTransactions(ctx, pool, part, &result); err != nil {
				return s.stop(ctx, result, err)
			}
		}

		if len(events) < s.cfg.FetchLimit && len(txs) < s.cfg.FetchLimit {
			break
		}
	}

	logger.InfoCtx(ctx, "Ownership sync caught up",
		zap.Int("events", result.Events),
		zap.Int("transactions", result.Transactions),
		zap.Int("updated", result.Updated),
		zap.Int("deleted", result.Deleted),
		zap.Duration("duration", time.Since(start)),
	)

	return result, nil
}

// stop ends a run on a sub-batch error. A claim conflict means another run owns
// the backlog, so this run yields without failing.
func (s *syncer) stop(ctx context.Context, result SyncResult, err error) (SyncResult, error) {
	if errors.Is(err, domain.ErrSourceAlreadyProcessed) {
		logger.WarnCtx(ctx, "Source records claimed by another run, stopping", zap.Error(err))
		return result, nil
	}
	return result, err
}

func (s *syncer) applyEvents(ctx context.Context, pool pond.Pool, events []domain.Event, result *SyncResult) error {
	agg := newAggregator()
	ids := make([]string, 0, len(events))

	for _, event := range events {
		deltas, err := s.registry.ParseEvent(event)
		if err != nil {
			return fmt.Errorf("failed to parse sub-batch starting at event %s: %w", events[0].EventID, err)
		}
		agg.add(deltas...)
		ids = append(ids, event.EventID)
	}

	batch := agg.batch()
	batch.EventIDs = ids
	if err := s.apply(ctx, pool, agg, batch); err != nil {
		return err
	}

	result.Events += len(events)
	result.Updated += len(batch.Sets) + len(batch.Increments)
	result.Deleted += len(batch.Deletes)
	s.metrics.ObserveSyncRecords(string(domain.SourceKindEvent), len(events))
	return nil
}

func (s *syncer) applyTransactions(ctx context.Context, pool pond.Pool, txs []domain.EvmTransaction, result *SyncResult) error {
	collections, err := s.store.GetCollectionsByAddresses(ctx, logAddresses(txs))
	if err != nil {
		return fmt.Errorf("failed to get collections: %w", err)
	}

	agg := newAggregator()
	hashes := make([]string, 0, len(txs))

	for _, tx := range txs {
		for _, log := range tx.Events {
			collection, ok := collections[domain.NormalizeAddress(log.Address)]
			// Native events already cover precompile collections
			if !ok || collection.IsNative() {
				continue
			}

			deltas, err := s.registry.ParseEvmLog(tx, log)
			if err != nil {
				return fmt.Errorf("failed to parse sub-batch starting at transaction %s: %w", txs[0].Hash, err)
			}
			agg.add(deltas...)
		}
		hashes = append(hashes, tx.Hash)
	}

	batch := agg.batch()
	batch.TransactionHashes = hashes
	if err := s.apply(ctx, pool, agg, batch); err != nil {
		return err
	}

	result.Transactions += len(txs)
	result.Updated += len(batch.Sets) + len(batch.Increments)
	result.Deleted += len(batch.Deletes)
	s.metrics.ObserveSyncRecords(string(domain.SourceKindEvmTransaction), len(txs))
	return nil
}

// apply resolves metadata, writes the batch and publishes the per contract changes
func (s *syncer) apply(ctx context.Context, pool pond.Pool, agg *aggregator, batch store.SyncBatch) error {
	s.resolveMetadata(ctx, pool, batch.Sets)
	s.resolveMetadata(ctx, pool, batch.Increments)

	if err := s.store.ApplySyncBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to apply sync batch: %w", err)
	}

	s.metrics.ObserveSyncDeltas(string(domain.TokenKindSingle), "set", len(batch.Sets))
	s.metrics.ObserveSyncDeltas(string(domain.TokenKindSingle), "delete", len(batch.Deletes))
	s.metrics.ObserveSyncDeltas(string(domain.TokenKindBalance), "increment", len(batch.Increments))

	messaging.PublishChanges(ctx, s.publisher, agg.changes(domain.ChangeSourceSync))
	return nil
}

// resolveMetadata fills the metadata of the records in place. A token without
// metadata gets an empty value so the write clears any stale one; lookup
// failures are logged and leave the stored metadata untouched.
func (s *syncer) resolveMetadata(ctx context.Context, pool pond.Pool, records []domain.OwnershipRecord) {
	if s.resolver == nil || len(records) == 0 {
		return
	}

	type tokenRef struct {
		contract string
		tokenID  string
	}

	var mu sync.Mutex
	resolved := make(map[tokenRef]*domain.Metadata)
	seen := make(map[tokenRef]struct{})

	group := pool.NewGroup()
	for _, record := range records {
		ref := tokenRef{contract: record.ContractAddress, tokenID: record.TokenID}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}

		group.Submit(func() {
			md, err := s.resolver.Resolve(ctx, ref.contract, ref.tokenID)
			if err != nil {
				logger.WarnCtx(ctx, "Failed to resolve token metadata",
					zap.String("contract", ref.contract),
					zap.String("tokenID", ref.tokenID),
					zap.Error(err),
				)
				return
			}
			if md.IsEmpty() {
				md = &domain.Metadata{}
			}

			mu.Lock()
			resolved[ref] = md
			mu.Unlock()
		})
	}
	if err := group.Wait(); err != nil {
		logger.WarnCtx(ctx, "Metadata resolution interrupted", zap.Error(err))
	}

	for i := range records {
		if md, ok := resolved[tokenRef{contract: records[i].ContractAddress, tokenID: records[i].TokenID}]; ok {
			records[i].Metadata = md
		}
	}
}

func logAddresses(txs []domain.EvmTransaction) []string {
	seen := make(map[string]struct{})
	var addresses []string
	for _, tx := range txs {
		for _, log := range tx.Events {
			address := domain.NormalizeAddress(log.Address)
			if _, ok := seen[address]; ok {
				continue
			}
			seen[address] = struct{}{}
			addresses = append(addresses, address)
		}
	}
	return addresses
}

func chunk[T any](items []T, size int) [][]T {
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
