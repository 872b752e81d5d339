package reconcile

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"go.uber.org/zap"

	"github.com/feral-file/ff-ownership-indexer/internal/adapter"
	"github.com/feral-file/ff-ownership-indexer/internal/domain"
	"github.com/feral-file/ff-ownership-indexer/internal/logger"
	"github.com/feral-file/ff-ownership-indexer/internal/messaging"
	"github.com/feral-file/ff-ownership-indexer/internal/metrics"
	"github.com/feral-file/ff-ownership-indexer/internal/parser"
	"github.com/feral-file/ff-ownership-indexer/internal/providers/ethereum"
	"github.com/feral-file/ff-ownership-indexer/internal/store"
)

// Config holds the reconciliation configuration
type Config struct {
	SingleWindowSize int // Token ids read per ownerOf multicall
	BalanceBatchSize int // Holders read per balanceOfBatch multicall
}

// Result summarises one reconciliation run
type Result struct {
	RunID    string
	Kind     domain.TokenKind
	Resumed  bool
	Upserted int
	Deleted  int
	// Inconclusive counts failed reads that left stored state untouched
	Inconclusive int
	// Skipped is set when the collection has no known total supply
	Skipped bool
}

// Reconciler rebuilds the ownership of one collection from live chain state
//
//go:generate mockgen -source=reconciler.go -destination=../mocks/reconciler.go -package=mocks -mock_names=Reconciler=MockReconciler
type Reconciler interface {
	// Reconcile corrects the stored ownership of the contract, resuming a previously interrupted run.
	// totalSupply overrides the collection's stored supply when not nil.
	Reconcile(ctx context.Context, contractAddress string, totalSupply *uint64) (Result, error)
}

type reconciler struct {
	cfg       Config
	store     store.Store
	chain     ethereum.ChainClient
	registry  *parser.Registry
	publisher messaging.Publisher
	metrics   *metrics.Metrics
	clock     adapter.Clock
}

// NewReconciler creates a new full reconciliation engine
func NewReconciler(
	cfg Config,
	st store.Store,
	chain ethereum.ChainClient,
	registry *parser.Registry,
	publisher messaging.Publisher,
	m *metrics.Metrics,
	clock adapter.Clock,
) Reconciler {
	if cfg.SingleWindowSize <= 0 {
		cfg.SingleWindowSize = domain.DEFAULT_SINGLE_WINDOW_SIZE
	}
	if cfg.BalanceBatchSize <= 0 {
		cfg.BalanceBatchSize = domain.DEFAULT_BALANCE_BATCH_SIZE
	}
	if registry == nil {
		registry = parser.NewRegistry()
	}
	if publisher == nil {
		publisher = messaging.NewNopPublisher()
	}

	return &reconciler{
		cfg:       cfg,
		store:     st,
		chain:     chain,
		registry:  registry,
		publisher: publisher,
		metrics:   m,
		clock:     clock,
	}
}

func (r *reconciler) Reconcile(ctx context.Context, contractAddress string, totalSupply *uint64) (Result, error) {
	address := domain.NormalizeAddress(contractAddress)

	collection, err := r.store.GetCollection(ctx, address)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get collection: %w", err)
	}
	if collection == nil {
		return Result{}, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, address)
	}
	if totalSupply == nil {
		totalSupply = collection.TotalSupply
	}
	if totalSupply == nil {
		logger.InfoCtx(ctx, "Skipping reconciliation, total supply unknown", zap.String("contract", address))
		return Result{Kind: collection.Kind, Skipped: true}, nil
	}

	progress, resumed, err := loadProgress(ctx, r.store, address, collection.Kind)
	if err != nil {
		return Result{}, err
	}

	run := &run{
		reconciler: r,
		collection: *collection,
		progress:   progress,
		result:     Result{RunID: progress.RunID, Kind: collection.Kind, Resumed: resumed},
		touched:    make(map[string]struct{}),
	}

	logger.InfoCtx(ctx, "Starting reconciliation",
		zap.String("contract", address),
		zap.String("kind", string(collection.Kind)),
		zap.String("runID", progress.RunID),
		zap.Bool("resumed", resumed),
		zap.Uint64("offset", progress.Offset),
	)

	start := r.clock.Now()
	switch collection.Kind {
	case domain.TokenKindSingle:
		err = run.single(ctx, *totalSupply)
	case domain.TokenKindBalance:
		err = run.balance(ctx, *totalSupply)
	default:
		err = fmt.Errorf("unknown token kind: %s", collection.Kind)
	}
	if err != nil {
		return run.result, err
	}

	if err := clearProgress(ctx, r.store, address); err != nil {
		return run.result, err
	}

	messaging.PublishChanges(ctx, r.publisher, run.changes())

	logger.InfoCtx(ctx, "Reconciliation completed",
		zap.String("contract", address),
		zap.String("runID", progress.RunID),
		zap.Int("upserted", run.result.Upserted),
		zap.Int("deleted", run.result.Deleted),
		zap.Int("inconclusive", run.result.Inconclusive),
		zap.Duration("duration", r.clock.Since(start)),
	)

	return run.result, nil
}

// run is the state of one reconciliation of one collection
type run struct {
	*reconciler
	collection domain.Collection
	progress   Progress
	result     Result
	touched    map[string]struct{}
}

// apply writes one window's diff and advances the stored progress past it
func (r *run) apply(ctx context.Context, batch store.ReconcileBatch, next uint64) error {
	if !batch.IsEmpty() {
		if err := r.store.ApplyReconcileBatch(ctx, batch); err != nil {
			return fmt.Errorf("failed to apply reconcile batch: %w", err)
		}
	}

	for _, record := range batch.Upserts {
		r.touched[record.TokenID] = struct{}{}
	}
	for _, key := range batch.Deletes {
		r.touched[key.TokenID] = struct{}{}
	}
	r.result.Upserted += len(batch.Upserts)
	r.result.Deleted += len(batch.Deletes)

	kind := string(r.collection.Kind)
	r.metrics.ObserveReconcile(kind, "upsert", len(batch.Upserts))
	r.metrics.ObserveReconcile(kind, "delete", len(batch.Deletes))

	r.progress.Offset = next
	return saveProgress(ctx, r.store, r.collection.ContractAddress, r.progress)
}

func (r *run) inconclusive(n int) {
	r.result.Inconclusive += n
	r.metrics.ObserveReconcile(string(r.collection.Kind), "inconclusive", n)
}

// record builds an absolute ownership record for the collection
func (r *run) record(tokenID, owner string, amount *big.Int) domain.OwnershipRecord {
	return domain.OwnershipRecord{
		Kind:            r.collection.Kind,
		ContractAddress: r.collection.ContractAddress,
		CollectionID:    r.collection.CollectionID,
		TokenID:         tokenID,
		Owner:           owner,
		Amount:          amount,
		Provenance:      domain.Provenance{Timestamp: r.clock.Now().UTC()},
	}
}

func (r *run) changes() []domain.OwnershipChange {
	if r.result.Upserted == 0 && r.result.Deleted == 0 {
		return nil
	}

	tokenIDs := make([]string, 0, len(r.touched))
	for id := range r.touched {
		tokenIDs = append(tokenIDs, id)
	}
	sort.Slice(tokenIDs, func(i, j int) bool {
		if len(tokenIDs[i]) != len(tokenIDs[j]) {
			return len(tokenIDs[i]) < len(tokenIDs[j])
		}
		return tokenIDs[i] < tokenIDs[j]
	})

	return []domain.OwnershipChange{{
		ContractAddress: r.collection.ContractAddress,
		Kind:            r.collection.Kind,
		Source:          domain.ChangeSourceReconcile,
		Updated:         r.result.Upserted,
		Deleted:         r.result.Deleted,
		TokenIDs:        tokenIDs,
		Timestamp:       r.clock.Now().UTC(),
	}}
}
